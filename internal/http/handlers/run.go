package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/lessonforge/internal/http/response"
	"github.com/yungbote/lessonforge/internal/services"
)

type RunHandler struct {
	generation services.GenerationService
}

func NewRunHandler(generation services.GenerationService) *RunHandler {
	return &RunHandler{generation: generation}
}

// GET /api/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	view, err := h.generation.GetRun(c.Request.Context(), runID)
	if err != nil {
		response.RespondServiceError(c, "get_run_failed", err)
		return
	}
	response.RespondOK(c, view)
}
