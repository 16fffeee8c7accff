package generation

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/observability"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
)

// HandleFailure fails every activity still running under runID, marks the run
// failed, records a terminal error event and wakes waiters on the failed
// kinds. It returns cause.
func (e *Engine) HandleFailure(ctx context.Context, runID uuid.UUID, lessonID uuid.UUID, cause error) error {
	if cause == nil {
		cause = errors.New("run aborted")
	}
	wctx := context.WithoutCancel(ctx)
	dbc := dbctx.Context{Ctx: wctx}
	log := e.log.With("run_id", runID, "lesson_id", lessonID)

	var held []*lesson.Activity
	if lessonID != uuid.Nil {
		rows, err := e.repos.Activities.ListByLesson(dbc, lessonID)
		if err != nil {
			log.Warn("Failed to list activities before abort", "error", err)
		}
		for _, a := range rows {
			if a.GenerationStatus == lesson.StatusRunning && a.OwnedBy(runID) {
				held = append(held, a)
			}
		}
	}

	n, err := e.repos.Activities.FailRunningByRun(dbc, runID, string(ReasonRunAborted))
	if err != nil {
		log.Error("Failed to fail running activities", "error", err)
	}
	if err := e.repos.Runs.Finish(dbc, runID, lesson.RunStatusFailed, cause.Error()); err != nil {
		log.Warn("Failed to finish run record", "error", err)
	}
	e.sink.Record(wctx, observability.Event{
		RunID:    runID,
		LessonID: lessonID,
		Step:     "run",
		Status:   observability.EventError,
		Detail:   cause.Error(),
	})
	for _, a := range held {
		if ferr := e.hub.Fire(wctx, Token(a.Kind, lessonID), SignalPayload{
			Kind:     a.Kind,
			LessonID: lessonID,
			Failed:   true,
			Reason:   ReasonRunAborted,
		}); ferr != nil {
			log.Warn("Signal fire failed", "kind", a.Kind, "error", ferr)
		}
	}
	log.Error("Lesson generation aborted", "error", cause, "failed_activities", n)
	return cause
}
