package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/biologidex-backend/internal/middleware"
	"github.com/yungbote/biologidex-backend/internal/services"
)

type GraphHandler struct {
	treeService services.TreeService
}

func NewGraphHandler(treeService services.TreeService) *GraphHandler {
	return &GraphHandler{treeService: treeService}
}

func parseScopeIDs(raw string) []uuid.UUID {
	if raw == "" {
		return nil
	}
	var ids []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		if id, err := uuid.Parse(strings.TrimSpace(part)); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func (gh *GraphHandler) GetTree(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	mode := c.DefaultQuery("mode", services.TreeModePersonal)
	scopeIDs := parseScopeIDs(c.Query("friend_ids"))

	tree, err := gh.treeService.GetTree(c.Request.Context(), userID, middleware.IsAdmin(c), mode, scopeIDs)
	if err != nil {
		gh.respondTreeError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"nodes": tree.Nodes,
		"edges": tree.Edges,
		"layout": gin.H{
			"positions":      tree.Positions,
			"world_bounds":   tree.ChunkIndex.WorldBounds,
			"chunk_metadata": tree.ChunkIndex.Chunks,
			"chunk_size":     tree.ChunkIndex.ChunkSize,
		},
		"stats": tree.Stats,
		"metadata": gin.H{
			"mode":         tree.Mode,
			"generated_at": tree.GeneratedAt,
		},
	})
}

func (gh *GraphHandler) GetChunk(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	x, xErr := strconv.Atoi(c.Param("x"))
	y, yErr := strconv.Atoi(c.Param("y"))
	if xErr != nil || yErr != nil {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("chunk coordinates must be integers"))
		return
	}
	mode := c.DefaultQuery("mode", services.TreeModePersonal)
	scopeIDs := parseScopeIDs(c.Query("friend_ids"))

	chunk, err := gh.treeService.GetChunk(c.Request.Context(), userID, middleware.IsAdmin(c), mode, scopeIDs, x, y)
	if err != nil {
		gh.respondTreeError(c, err)
		return
	}
	RespondOK(c, chunk)
}

func (gh *GraphHandler) Invalidate(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		RespondError(c, http.StatusUnauthorized, CodeUnauthorized, errors.New("not authenticated"))
		return
	}
	var req struct {
		Scope string `json:"scope"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, CodeValidation, errors.New("invalid request body"))
		return
	}
	global := req.Scope == "global"
	if err := gh.treeService.Invalidate(c.Request.Context(), userID, middleware.IsAdmin(c), global); err != nil {
		gh.respondTreeError(c, err)
		return
	}
	RespondOK(c, gin.H{"invalidated": true, "scope": req.Scope})
}

func (gh *GraphHandler) respondTreeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrGlobalTreeForbidden):
		RespondError(c, http.StatusForbidden, CodeForbidden, err)
	case errors.Is(err, services.ErrUnknownTreeMode):
		RespondError(c, http.StatusBadRequest, CodeValidation, err)
	default:
		RespondError(c, http.StatusInternalServerError, CodeInternal, err)
	}
}
