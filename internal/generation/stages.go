package generation

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/generation/enrich"
	"github.com/yungbote/lessonforge/internal/generation/producers"
	"github.com/yungbote/lessonforge/internal/observability"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
)

// Stage names a step of a lane; waves schedule (stage, kind) pairs.
type Stage string

const (
	StageContent  Stage = "content"
	StageVisuals  Stage = "visuals"
	StageImages   Stage = "images"
	StageComplete Stage = "complete"
)

var stageOrder = map[Stage]int{StageContent: 0, StageVisuals: 1, StageImages: 2, StageComplete: 3}

func (s Stage) Valid() bool {
	_, ok := stageOrder[s]
	return ok
}

type stageFunc func(ctx context.Context, rs *runState, act *lesson.Activity) error

func (e *Engine) stageFunc(s Stage) stageFunc {
	switch s {
	case StageContent:
		return e.contentStage
	case StageVisuals:
		return e.visualsStage
	case StageImages:
		return e.assetsStage
	case StageComplete:
		return e.completeStage
	}
	return nil
}

func (e *Engine) contentStage(ctx context.Context, rs *runState, act *lesson.Activity) error {
	ctx, span := e.span(ctx, rs, "content", act)
	defer span.End()
	log := e.log.With("lesson_id", rs.lesson.ID, "activity_id", act.ID, "kind", act.Kind, "run_id", rs.id)

	row, err := e.repos.Activities.GetByID(dbctx.Context{Ctx: ctx}, act.ID)
	if err != nil {
		return fmt.Errorf("load activity %s: %w", act.ID, err)
	}
	req := GenerateRequest{RunID: rs.id, Lesson: rs.lesson, Activity: act}

	switch Classify(row, rs.id) {
	case DecisionSkip:
		log.Debug("Lane skipped", "status", statusOf(row))
		rs.set(act, func(ls *laneState) { ls.done = true })
		return nil
	case DecisionNotifyOnly:
		res, err := e.gen.Generate(ctx, req)
		if err != nil {
			return err
		}
		rs.set(act, func(ls *laneState) {
			ls.steps = res.Steps
			ls.done = true
		})
		return nil
	}

	upstream := map[lesson.ActivityKind][]*lesson.Step{}
	for _, dep := range Prerequisites(act.Kind) {
		steps := rs.upstream(dep)
		reason := ReasonNone
		if len(steps) == 0 {
			res := e.resolver.ResolveWithTimeout(ctx, rs.siblings, dep, rs.lesson.ID)
			steps, reason = res.Steps, res.Reason
		}
		if len(steps) == 0 && act.Kind == lesson.KindReading && dep == lesson.KindVocabulary {
			seeds, err := e.persistedSeeds(ctx, rs.lesson.ID)
			if err != nil {
				log.Warn("Persisted word lookup failed", "error", err)
			}
			if len(seeds) > 0 {
				log.Info("Seeding reading from persisted lesson words", "words", len(seeds))
				req.SeedWords = seeds
				continue
			}
		}
		if len(steps) == 0 {
			if reason == ReasonRunAborted {
				return fmt.Errorf("waiting for %s: %w", dep, context.Cause(ctx))
			}
			if reason == ReasonNone {
				reason = ReasonDependencyUnmet
			}
			log.Warn("Prerequisite unavailable", "dependency", dep, "reason", reason)
			return e.failLane(ctx, rs, act, reason, "prerequisite "+string(dep))
		}
		upstream[dep] = steps
	}
	req.Upstream = upstream

	res, err := e.gen.Generate(ctx, req)
	if err != nil {
		return err
	}
	switch {
	case res.Decision != DecisionGenerate:
		rs.set(act, func(ls *laneState) {
			ls.steps = res.Steps
			ls.done = true
		})
	case res.Failed():
		e.metrics.LaneStarted()
		rs.set(act, func(ls *laneState) { ls.started = time.Now() })
		e.settle(rs, act, res.Reason)
	default:
		e.metrics.LaneStarted()
		rs.set(act, func(ls *laneState) {
			ls.started = time.Now()
			ls.steps = res.Steps
			ls.words = res.Words
			ls.produced = true
		})
	}
	return nil
}

func (e *Engine) persistedSeeds(ctx context.Context, lessonID uuid.UUID) ([]producers.WordSeed, error) {
	words, err := e.repos.Words.ListByLesson(dbctx.Context{Ctx: ctx}, lessonID)
	if err != nil {
		return nil, err
	}
	out := make([]producers.WordSeed, 0, len(words))
	for _, w := range words {
		out = append(out, producers.WordSeed{Word: w.Word, Translation: w.Translation})
	}
	return out, nil
}

// active reports whether later stages still apply to act in this run.
func (rs *runState) active(act *lesson.Activity) (laneState, bool) {
	ls := rs.snapshot(act)
	return ls, ls.produced && !ls.done
}

func (e *Engine) visualsStage(ctx context.Context, rs *runState, act *lesson.Activity) error {
	ls, ok := rs.active(act)
	if !ok || !ProfileFor(act.Kind).Visuals {
		return nil
	}
	ctx, span := e.span(ctx, rs, "visuals", act)
	defer span.End()

	steps, err := e.enrich.Visuals(ctx, enrich.VisualRequest{Lesson: rs.lesson, Activity: act, Steps: ls.steps})
	if err != nil {
		return e.enrichmentFailed(ctx, rs, act, "visuals", err)
	}
	rs.set(act, func(ls *laneState) { ls.steps = steps })
	e.record(ctx, rs, act, "visuals:"+string(act.Kind), observability.EventSucceeded, "")
	return nil
}

// assetsStage renders images and audio, per the kind's profile.
func (e *Engine) assetsStage(ctx context.Context, rs *runState, act *lesson.Activity) error {
	ls, ok := rs.active(act)
	profile := ProfileFor(act.Kind)
	if !ok || !(profile.Images || profile.Audio) {
		return nil
	}
	ctx, span := e.span(ctx, rs, "assets", act)
	defer span.End()

	steps := ls.steps
	if profile.Images {
		var err error
		steps, err = e.enrich.Images(ctx, rs.lesson.ID, act, steps)
		if err != nil {
			return e.enrichmentFailed(ctx, rs, act, "images", err)
		}
	}
	if profile.Audio {
		var hasWords, hasSentences bool
		for _, st := range steps {
			hasWords = hasWords || st.WordID != nil
			hasSentences = hasSentences || st.SentenceID != nil
		}
		if hasWords {
			if err := e.enrich.WordAudio(ctx, rs.lesson, act, steps); err != nil {
				return e.enrichmentFailed(ctx, rs, act, "audio", err)
			}
		}
		if hasSentences {
			if err := e.enrich.SentenceAudio(ctx, rs.lesson, act, steps); err != nil {
				return e.enrichmentFailed(ctx, rs, act, "audio", err)
			}
		}
	}
	rs.set(act, func(ls *laneState) { ls.steps = steps })
	e.record(ctx, rs, act, "assets:"+string(act.Kind), observability.EventSucceeded, "")
	return nil
}

func (e *Engine) completeStage(ctx context.Context, rs *runState, act *lesson.Activity) error {
	if _, ok := rs.active(act); !ok {
		return nil
	}
	ok, err := e.repos.Activities.MarkCompleted(dbctx.Context{Ctx: ctx}, act.ID, rs.id)
	if err != nil {
		return fmt.Errorf("mark activity %s completed: %w", act.ID, err)
	}
	if !ok {
		e.log.Warn("Activity no longer held by this run, not completing", "activity_id", act.ID, "run_id", rs.id)
	} else {
		e.record(ctx, rs, act, "complete:"+string(act.Kind), observability.EventSucceeded, "")
	}
	e.settle(rs, act, ReasonNone)
	return nil
}

func (e *Engine) enrichmentFailed(ctx context.Context, rs *runState, act *lesson.Activity, stage string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s for %s: %w", stage, act.Kind, context.Cause(ctx))
	}
	reason := ReasonGenerationFailed
	switch {
	case errors.Is(err, enrich.ErrVisualFailed):
		reason = ReasonVisualFailed
	case errors.Is(err, enrich.ErrPronunciationFailed):
		reason = ReasonPronunciationFailed
	case errors.Is(err, enrich.ErrPersistFailed):
		reason = ReasonEnrichmentPersistFailed
	}
	e.log.Warn("Enrichment failed", "activity_id", act.ID, "kind", act.Kind, "stage", stage, "error", err)
	return e.failLane(ctx, rs, act, reason, err.Error())
}

// failLane records the failure and ends the lane for this run.
func (e *Engine) failLane(ctx context.Context, rs *runState, act *lesson.Activity, reason ReasonCode, detail string) error {
	if err := e.gen.MarkFailed(ctx, rs.id, rs.lesson.ID, act, reason, detail); err != nil {
		return err
	}
	rs.set(act, func(ls *laneState) {
		if ls.started.IsZero() {
			ls.started = time.Now()
			e.metrics.LaneStarted()
		}
	})
	e.settle(rs, act, reason)
	return nil
}

// settle ends the lane and observes it once.
func (e *Engine) settle(rs *runState, act *lesson.Activity, reason ReasonCode) {
	var (
		observe bool
		started time.Time
	)
	rs.set(act, func(ls *laneState) {
		ls.done = true
		ls.reason = reason
		if !ls.observed && !ls.started.IsZero() {
			ls.observed = true
			observe = true
			started = ls.started
		}
	})
	if !observe {
		return
	}
	status := string(lesson.StatusCompleted)
	if reason != ReasonNone {
		status = string(lesson.StatusFailed)
	}
	e.metrics.ObserveLane(string(act.Kind), status, string(reason), time.Since(started))
}

// isolate runs one branch. Expected failures and panics become the branch
// fallback (activity failed); only run cancellation escapes.
func (e *Engine) isolate(ctx context.Context, rs *runState, act *lesson.Activity, name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("Branch panicked", "branch", name, "activity_id", act.ID, "kind", act.Kind, "panic", r, "stack", string(debug.Stack()))
			err = e.fallback(ctx, rs, act, fmt.Sprintf("panic in %s: %v", name, r))
		}
	}()
	if ferr := fn(ctx); ferr != nil {
		if ctx.Err() != nil {
			return ferr
		}
		e.log.Warn("Branch failed", "branch", name, "activity_id", act.ID, "kind", act.Kind, "error", ferr)
		return e.fallback(ctx, rs, act, ferr.Error())
	}
	return nil
}

func (e *Engine) fallback(ctx context.Context, rs *runState, act *lesson.Activity, detail string) error {
	if ctx.Err() != nil {
		return context.Cause(ctx)
	}
	if err := e.failLane(ctx, rs, act, ReasonGenerationFailed, detail); err != nil {
		e.log.Error("Branch fallback could not record failure", "activity_id", act.ID, "error", err)
	}
	return nil
}
