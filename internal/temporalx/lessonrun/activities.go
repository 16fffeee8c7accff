package lessonrun

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/lessonforge/internal/generation"
	apperrors "github.com/yungbote/lessonforge/internal/pkg/errors"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
)

// Engine is the part of the generation engine the activities drive.
type Engine interface {
	GenerateLesson(ctx context.Context, lessonID uuid.UUID, opts generation.RunOptions) (*generation.RunSummary, error)
	RetryActivity(ctx context.Context, activityID uuid.UUID, opts generation.RunOptions) (*generation.RunSummary, error)
	HandleFailure(ctx context.Context, runID uuid.UUID, lessonID uuid.UUID, cause error) error
}

type Activities struct {
	Log    *logger.Logger
	Engine Engine
	// HeartbeatEvery defaults to 10s.
	HeartbeatEvery time.Duration
}

func (a *Activities) Generate(ctx context.Context, p RunParams) (*Result, error) {
	if a == nil || a.Engine == nil {
		return nil, fmt.Errorf("lessonrun: activity not configured")
	}
	lessonID, err := parseID("lesson_id", p.LessonID)
	if err != nil {
		return nil, err
	}
	runID, err := parseID("run_id", p.RunID)
	if err != nil {
		return nil, err
	}
	stop := a.startHeartbeat(ctx)
	defer stop()

	summary, err := a.Engine.GenerateLesson(ctx, lessonID, generation.RunOptions{RunID: runID, ExternalID: p.ExternalID})
	if err != nil {
		return nil, applicationError(err)
	}
	return toResult(summary), nil
}

func (a *Activities) Retry(ctx context.Context, p RunParams) (*Result, error) {
	if a == nil || a.Engine == nil {
		return nil, fmt.Errorf("lessonrun: activity not configured")
	}
	activityID, err := parseID("activity_id", p.ActivityID)
	if err != nil {
		return nil, err
	}
	runID, err := parseID("run_id", p.RunID)
	if err != nil {
		return nil, err
	}
	stop := a.startHeartbeat(ctx)
	defer stop()

	summary, err := a.Engine.RetryActivity(ctx, activityID, generation.RunOptions{RunID: runID, ExternalID: p.ExternalID})
	if err != nil {
		return nil, applicationError(err)
	}
	return toResult(summary), nil
}

// MarkRunFailed is the workflow's last word after every attempt failed.
func (a *Activities) MarkRunFailed(ctx context.Context, p FailureParams) error {
	if a == nil || a.Engine == nil {
		return fmt.Errorf("lessonrun: activity not configured")
	}
	runID, err := parseID("run_id", p.RunID)
	if err != nil {
		return err
	}
	lessonID, err := parseID("lesson_id", p.LessonID)
	if err != nil {
		return err
	}
	msg := strings.TrimSpace(p.Error)
	if msg == "" {
		msg = "lesson workflow failed"
	}
	_ = a.Engine.HandleFailure(ctx, runID, lessonID, errors.New(msg))
	return nil
}

func (a *Activities) startHeartbeat(ctx context.Context) func() {
	every := a.HeartbeatEvery
	if every <= 0 {
		every = 10 * time.Second
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, temporal.NewNonRetryableApplicationError("invalid "+field, ErrTypeNotFound, err)
	}
	return id, nil
}

// applicationError stops Temporal retrying errors another attempt cannot fix.
func applicationError(err error) error {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeNotFound, err)
	case errors.Is(err, apperrors.ErrUnsupportedKind):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeUnsupported, err)
	default:
		return err
	}
}

func toResult(s *generation.RunSummary) *Result {
	if s == nil {
		return &Result{}
	}
	out := &Result{RunID: s.RunID.String(), LessonID: s.LessonID.String(), Failed: s.Failed()}
	for _, a := range s.Activities {
		out.Activities = append(out.Activities, Outcome{
			ActivityID: a.ActivityID.String(),
			Kind:       string(a.Kind),
			Status:     string(a.Status),
			Reason:     a.Reason,
			Steps:      a.Steps,
		})
	}
	return out
}
