package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/lessonforge/internal/http/response"
	"github.com/yungbote/lessonforge/internal/services"
)

type ActivityHandler struct {
	generation services.GenerationService
}

func NewActivityHandler(generation services.GenerationService) *ActivityHandler {
	return &ActivityHandler{generation: generation}
}

// POST /api/activities/:id/retry
func (h *ActivityHandler) Retry(c *gin.Context) {
	activityID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_activity_id", err)
		return
	}
	d, err := h.generation.RetryActivity(c.Request.Context(), activityID)
	if err != nil {
		response.RespondServiceError(c, "retry_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{"dispatch": d})
}
