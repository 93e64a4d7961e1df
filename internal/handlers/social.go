package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/biologidex-backend/internal/middleware"
	"github.com/yungbote/biologidex-backend/internal/services"
)

type SocialHandler struct {
	socialService services.SocialService
}

func NewSocialHandler(socialService services.SocialService) *SocialHandler {
	return &SocialHandler{socialService: socialService}
}

func (sh *SocialHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	friends, err := sh.socialService.List(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	RespondOK(c, gin.H{"friends": friends})
}

func (sh *SocialHandler) Request(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	var req struct {
		FriendCode string `json:"friend_code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.FriendCode == "" {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("friend_code is required"))
		return
	}
	friendship, err := sh.socialService.RequestByFriendCode(c.Request.Context(), userID, req.FriendCode)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrFriendCodeUnknown):
			RespondError(c, http.StatusNotFound, CodeNotFound, err)
		case errors.Is(err, services.ErrSelfFriendship):
			RespondError(c, http.StatusBadRequest, CodeValidation, err)
		case errors.Is(err, services.ErrFriendshipExists):
			RespondError(c, http.StatusConflict, CodeConflict, err)
		default:
			RespondError(c, http.StatusInternalServerError, CodeInternal, err)
		}
		return
	}
	c.JSON(http.StatusCreated, gin.H{"friendship": friendship})
}

func (sh *SocialHandler) Respond(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	friendshipID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("invalid friendship id"))
		return
	}
	var req struct {
		Accept bool `json:"accept"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("invalid request body"))
		return
	}
	friendship, err := sh.socialService.Respond(c.Request.Context(), userID, friendshipID, req.Accept)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrFriendshipNotFound):
			RespondError(c, http.StatusNotFound, CodeNotFound, err)
		case errors.Is(err, services.ErrNotRequestRecipient):
			RespondError(c, http.StatusForbidden, CodeForbidden, err)
		default:
			RespondError(c, http.StatusConflict, CodeConflict, err)
		}
		return
	}
	RespondOK(c, gin.H{"friendship": friendship})
}

func (sh *SocialHandler) Remove(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	friendshipID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("invalid friendship id"))
		return
	}
	if err := sh.socialService.Remove(c.Request.Context(), userID, friendshipID); err != nil {
		if errors.Is(err, services.ErrFriendshipNotFound) {
			RespondError(c, http.StatusNotFound, CodeNotFound, err)
			return
		}
		RespondError(c, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	RespondOK(c, gin.H{"removed": true})
}
