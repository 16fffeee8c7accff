package generation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/observability"
	"github.com/yungbote/lessonforge/internal/pkg/ctxutil"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
	apperrors "github.com/yungbote/lessonforge/internal/pkg/errors"
)

// Supports reports whether kind has a lane.
func (e *Engine) Supports(kind lesson.ActivityKind) bool {
	if !kind.Valid() {
		return false
	}
	_, ok := e.gen.producers.Get(kind)
	return ok
}

// RetryActivity resets one activity to pending and replays only its lane
// under a fresh run. Unsupported kinds fail with ErrUnsupportedKind.
func (e *Engine) RetryActivity(ctx context.Context, activityID uuid.UUID, opts RunOptions) (summary *RunSummary, err error) {
	dbc := dbctx.Context{Ctx: ctx}
	act, err := e.repos.Activities.GetByID(dbc, activityID)
	if err != nil {
		return nil, fmt.Errorf("load activity %s: %w", activityID, err)
	}
	if act == nil {
		return nil, fmt.Errorf("activity %s: %w", activityID, apperrors.ErrNotFound)
	}
	if !e.Supports(act.Kind) {
		return nil, fmt.Errorf("activity %s kind %q: %w", activityID, act.Kind, apperrors.ErrUnsupportedKind)
	}

	runID := opts.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	// a re-executed attempt of the same run must not reset its own claim
	if !act.OwnedBy(runID) {
		if err := e.repos.Activities.ResetPending(dbc, act.ID); err != nil {
			return nil, fmt.Errorf("reset activity %s: %w", act.ID, err)
		}
	}

	rs, err := e.loadRun(ctx, runID, act.LessonID)
	if err != nil {
		return nil, err
	}
	target := findByID(rs.siblings, act.ID)
	if target == nil {
		return nil, fmt.Errorf("activity %s vanished: %w", act.ID, apperrors.ErrNotFound)
	}
	actID := act.ID
	if _, err := e.repos.Runs.Start(dbc, &lesson.GenerationRun{
		ID:         runID,
		LessonID:   act.LessonID,
		ActivityID: &actID,
		Trigger:    lesson.RunTriggerRetry,
		ExternalID: opts.ExternalID,
	}); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	ctx = ctxutil.WithRunData(ctx, &ctxutil.RunData{RunID: runID, LessonID: act.LessonID, Trigger: lesson.RunTriggerRetry})
	e.log.Info("Retrying activity", "run_id", runID, "activity_id", act.ID, "kind", act.Kind)
	e.record(ctx, rs, target, "retry", observability.EventStarted, "")

	if err := e.isolatedLane(ctx, rs, target); err != nil {
		return nil, e.HandleFailure(ctx, runID, act.LessonID, err)
	}
	e.finishRun(ctx, rs, lesson.RunStatusSucceeded, "")

	all, err := e.Summarize(ctx, runID, act.LessonID)
	if err != nil {
		return nil, err
	}
	out := &RunSummary{RunID: runID, LessonID: act.LessonID}
	for _, a := range all.Activities {
		if a.ActivityID == act.ID {
			out.Activities = append(out.Activities, a)
		}
	}
	return out, nil
}

func findByID(acts []*lesson.Activity, id uuid.UUID) *lesson.Activity {
	for _, a := range acts {
		if a != nil && a.ID == id {
			return a
		}
	}
	return nil
}
