package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/lessonforge/internal/http/response"
	"github.com/yungbote/lessonforge/internal/services"
)

type LessonHandler struct {
	generation services.GenerationService
}

func NewLessonHandler(generation services.GenerationService) *LessonHandler {
	return &LessonHandler{generation: generation}
}

// POST /api/lessons/:id/generate
func (h *LessonHandler) Generate(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_lesson_id", err)
		return
	}
	d, err := h.generation.StartLesson(c.Request.Context(), lessonID)
	if err != nil {
		response.RespondServiceError(c, "generate_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{"dispatch": d})
}

// GET /api/lessons/:id/activities
func (h *LessonHandler) ListActivities(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_lesson_id", err)
		return
	}
	acts, err := h.generation.ListActivities(c.Request.Context(), lessonID)
	if err != nil {
		response.RespondServiceError(c, "list_activities_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"activities": acts})
}
