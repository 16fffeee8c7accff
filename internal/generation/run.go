package generation

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/observability"
	"github.com/yungbote/lessonforge/internal/pkg/ctxutil"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
)

type RunOptions struct {
	// RunID defaults to a fresh id. A durable host passes its own so a
	// re-executed attempt re-enters the same run.
	RunID      uuid.UUID
	ExternalID string
}

type ActivityOutcome struct {
	ActivityID uuid.UUID               `json:"activity_id"`
	Kind       lesson.ActivityKind     `json:"kind"`
	Status     lesson.GenerationStatus `json:"status"`
	Reason     string                  `json:"reason,omitempty"`
	Steps      int64                   `json:"steps"`
}

type RunSummary struct {
	RunID      uuid.UUID         `json:"run_id"`
	LessonID   uuid.UUID         `json:"lesson_id"`
	Activities []ActivityOutcome `json:"activities"`
}

// Failed counts activities that ended failed.
func (s *RunSummary) Failed() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, a := range s.Activities {
		if a.Status == lesson.StatusFailed {
			n++
		}
	}
	return n
}

var languageKinds = map[lesson.ActivityKind]bool{
	lesson.KindVocabulary:     true,
	lesson.KindReading:        true,
	lesson.KindListening:      true,
	lesson.KindLanguageReview: true,
}

// GenerateLesson runs every family of the lesson concurrently: the core
// waves, the language lane, one lane per custom activity and a standalone
// lane for every other kind. Errors escaping the schedulers go through
// HandleFailure.
func (e *Engine) GenerateLesson(ctx context.Context, lessonID uuid.UUID, opts RunOptions) (summary *RunSummary, err error) {
	runID := opts.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	rs, err := e.loadRun(ctx, runID, lessonID)
	if err != nil {
		return nil, err
	}
	if _, err := e.repos.Runs.Start(dbctx.Context{Ctx: ctx}, &lesson.GenerationRun{
		ID:         runID,
		LessonID:   lessonID,
		Trigger:    lesson.RunTriggerPipeline,
		ExternalID: opts.ExternalID,
	}); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	ctx = ctxutil.WithRunData(ctx, &ctxutil.RunData{RunID: runID, LessonID: lessonID, Trigger: lesson.RunTriggerPipeline})
	log := e.log.With("run_id", runID, "lesson_id", lessonID)
	log.Info("Lesson generation started", "activities", len(rs.siblings))
	e.record(ctx, rs, nil, "run", observability.EventStarted, "")

	defer func() {
		if r := recover(); r != nil {
			log.Error("Lesson generation panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			err = e.HandleFailure(ctx, runID, lessonID, err)
			return
		}
		e.finishRun(ctx, rs, lesson.RunStatusSucceeded, "")
		summary, err = e.Summarize(ctx, runID, lessonID)
	}()

	planned := map[lesson.ActivityKind]bool{}
	for _, k := range e.plan.Kinds() {
		planned[k] = true
	}

	g, gctx := errgroup.WithContext(ctx)
	safeGo(g, func() error { return e.runWaves(gctx, rs) })
	safeGo(g, func() error { return e.runLanguageLane(gctx, rs) })
	for _, a := range rs.siblings {
		if planned[a.Kind] || languageKinds[a.Kind] {
			continue
		}
		// custom activities and standalone kinds (grammar, language-story)
		safeGo(g, func() error { return e.isolatedLane(gctx, rs, a) })
	}
	return nil, g.Wait()
}

func safeGo(g *errgroup.Group, fn func() error) {
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
			}
		}()
		return fn()
	})
}

func (e *Engine) finishRun(ctx context.Context, rs *runState, status string, msg string) {
	wctx := context.WithoutCancel(ctx)
	if err := e.repos.Runs.Finish(dbctx.Context{Ctx: wctx}, rs.id, status, msg); err != nil {
		e.log.Warn("Failed to finish run record", "run_id", rs.id, "error", err)
	}
	e.record(wctx, rs, nil, "run", observability.EventSucceeded, status)
}

// Summarize reads the lesson's persisted activity outcomes.
func (e *Engine) Summarize(ctx context.Context, runID uuid.UUID, lessonID uuid.UUID) (*RunSummary, error) {
	rows, err := e.repos.Activities.ListByLesson(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, lessonID)
	if err != nil {
		return nil, fmt.Errorf("summarize lesson %s: %w", lessonID, err)
	}
	out := &RunSummary{RunID: runID, LessonID: lessonID}
	for _, a := range rows {
		out.Activities = append(out.Activities, ActivityOutcome{
			ActivityID: a.ID,
			Kind:       a.Kind,
			Status:     a.GenerationStatus,
			Reason:     a.GenerationFailureReason,
			Steps:      a.StepCount,
		})
	}
	return out, nil
}
