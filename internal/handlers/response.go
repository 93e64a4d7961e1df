package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeUnsupportedMedia = "UNSUPPORTED_MEDIA"
	CodeInvalidTransform = "INVALID_TRANSFORM"
	CodeNotFound         = "NOT_FOUND"
	CodeGone             = "GONE"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeConflict         = "CONFLICT"
	CodeUpstream         = "UPSTREAM_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
