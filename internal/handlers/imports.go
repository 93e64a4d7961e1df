package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/biologidex-backend/internal/services"
)

type ImportHandler struct {
	importer services.ImporterService
}

func NewImportHandler(importer services.ImporterService) *ImportHandler {
	return &ImportHandler{importer: importer}
}

func (ih *ImportHandler) Start(c *gin.Context) {
	var req struct {
		Source     string `json:"source"`
		DatasetKey int    `json:"dataset_key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Source == "" {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("source is required"))
		return
	}
	job, err := ih.importer.StartImport(c.Request.Context(), req.Source, req.DatasetKey)
	if err != nil {
		if errors.Is(err, services.ErrImportAlreadyRunning) {
			RespondError(c, http.StatusConflict, CodeConflict, err)
			return
		}
		RespondError(c, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"job": job})
}

func (ih *ImportHandler) Get(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("invalid job id"))
		return
	}
	job, err := ih.importer.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, services.ErrImportJobNotFound) {
			RespondError(c, http.StatusNotFound, CodeNotFound, err)
			return
		}
		RespondError(c, http.StatusInternalServerError, CodeInternal, err)
		return
	}
	RespondOK(c, gin.H{"job": job})
}
