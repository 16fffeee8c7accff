package generation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/lessonforge/internal/data/repos"
	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
)

const DefaultDependencyTimeout = 10 * time.Minute

// Resolution is a dependency's content. Empty Steps means unavailable and
// Reason says why.
type Resolution struct {
	Steps  []*lesson.Step
	Reason ReasonCode
}

func (r Resolution) Empty() bool { return len(r.Steps) == 0 }

type Resolver struct {
	log        *logger.Logger
	activities repos.ActivityRepo
	steps      repos.StepRepo
	hub        SignalHub
	timeout    time.Duration
}

func NewResolver(log *logger.Logger, activities repos.ActivityRepo, steps repos.StepRepo, hub SignalHub, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultDependencyTimeout
	}
	return &Resolver{
		log:        log.With("service", "DependencyResolver"),
		activities: activities,
		steps:      steps,
		hub:        hub,
		timeout:    timeout,
	}
}

func findKind(siblings []*lesson.Activity, kind lesson.ActivityKind) *lesson.Activity {
	for _, a := range siblings {
		if a != nil && a.Kind == kind {
			return a
		}
	}
	return nil
}

// Resolve never returns an error. Waiting only ends on a signal or ctx.
func (r *Resolver) Resolve(ctx context.Context, siblings []*lesson.Activity, dep lesson.ActivityKind, lessonID uuid.UUID) Resolution {
	row := findKind(siblings, dep)
	if row == nil {
		return Resolution{Reason: ReasonDependencyUnmet}
	}

	if res, done := r.fromStorage(ctx, row.ID); done {
		return res
	}

	w, err := r.hub.Register(ctx, Token(dep, lessonID))
	if err != nil {
		if ctx.Err() != nil {
			return Resolution{Reason: ReasonRunAborted}
		}
		r.log.Warn("Signal register failed", "kind", dep, "lesson_id", lessonID, "error", err)
		return Resolution{Reason: ReasonDependencyUnmet}
	}
	defer w.Cancel()

	// the producer may have fired between the first check and Register
	if res, done := r.fromStorage(ctx, row.ID); done {
		return res
	}

	p, err := w.Wait(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Resolution{Reason: ReasonRunAborted}
		}
		r.log.Warn("Signal wait failed", "kind", dep, "lesson_id", lessonID, "error", err)
		return Resolution{Reason: ReasonDependencyUnmet}
	}
	if p.Failed {
		return Resolution{Reason: ReasonDependencyUnmet}
	}
	if len(p.Steps) > 0 {
		return Resolution{Steps: p.Steps}
	}
	// payload without steps (e.g. a slim cross-process signal): read storage
	if res, done := r.fromStorage(ctx, row.ID); done {
		return res
	}
	return Resolution{Reason: ReasonDependencyUnmet}
}

// fromStorage reports done when the dependency's row settles the question
// without waiting.
func (r *Resolver) fromStorage(ctx context.Context, activityID uuid.UUID) (Resolution, bool) {
	dbc := dbctx.Context{Ctx: ctx}
	fresh, err := r.activities.GetByID(dbc, activityID)
	if err != nil {
		r.log.Warn("Dependency lookup failed", "activity_id", activityID, "error", err)
		return Resolution{}, false
	}
	if fresh == nil {
		return Resolution{Reason: ReasonDependencyUnmet}, true
	}
	if contentAvailable(fresh) {
		steps, err := r.steps.ListByActivity(dbc, activityID)
		if err != nil {
			r.log.Warn("Dependency steps read failed", "activity_id", activityID, "error", err)
			return Resolution{}, false
		}
		if len(steps) > 0 {
			return Resolution{Steps: steps}, true
		}
	}
	if fresh.GenerationStatus == lesson.StatusFailed {
		return Resolution{Reason: ReasonDependencyUnmet}, true
	}
	return Resolution{}, false
}

// ResolveWithTimeout bounds Resolve by the configured dependency timeout.
func (r *Resolver) ResolveWithTimeout(ctx context.Context, siblings []*lesson.Activity, dep lesson.ActivityKind, lessonID uuid.UUID) Resolution {
	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res := r.Resolve(tctx, siblings, dep, lessonID)
	if res.Reason == ReasonRunAborted && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		r.log.Warn("Dependency wait timed out", "kind", dep, "lesson_id", lessonID, "timeout", r.timeout)
		return Resolution{Reason: ReasonDependencyTimeout}
	}
	return res
}
