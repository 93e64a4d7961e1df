package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/biologidex-backend/internal/middleware"
	"github.com/yungbote/biologidex-backend/internal/services"
)

type UserHandler struct {
	userService   services.UserService
	socialService services.SocialService
}

func NewUserHandler(userService services.UserService, socialService services.SocialService) *UserHandler {
	return &UserHandler{userService: userService, socialService: socialService}
}

func (uh *UserHandler) GetMe(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	profile, err := uh.userService.GetMe(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			RespondError(c, http.StatusNotFound, CodeNotFound, err)
			return
		}
		RespondError(c, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	RespondOK(c, profile)
}

func (uh *UserHandler) RegenerateFriendCode(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	code, err := uh.socialService.RegenerateFriendCode(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	RespondOK(c, gin.H{"friend_code": code})
}
