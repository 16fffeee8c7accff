package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/lessonforge/internal/data/repos"
	"github.com/yungbote/lessonforge/internal/data/repos/lessons"
	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/generation/producers"
	"github.com/yungbote/lessonforge/internal/observability"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
)

type GenerateRequest struct {
	RunID     uuid.UUID
	Lesson    *lesson.Lesson
	Activity  *lesson.Activity
	Upstream  map[lesson.ActivityKind][]*lesson.Step
	SeedWords []producers.WordSeed
}

type GenerateResult struct {
	Decision Decision
	// Activity is the row as re-read at the start of generation.
	Activity  *lesson.Activity
	Steps     []*lesson.Step
	Words     []*lesson.Word
	Sentences []*lesson.Sentence
	Reason    ReasonCode
	// Reused is set on crash re-entry when this run's steps were already stored.
	Reused bool
}

func (r GenerateResult) Failed() bool { return r.Reason != ReasonNone }

// Produced reports whether the lane should continue to enrichment.
func (r GenerateResult) Produced() bool {
	return r.Decision == DecisionGenerate && !r.Failed() && len(r.Steps) > 0
}

// Generator runs the common content contract around a per-kind Producer.
type Generator struct {
	log       *logger.Logger
	repos     repos.Set
	hub       SignalHub
	producers producers.Registry
	sink      observability.EventSink
}

func NewGenerator(log *logger.Logger, rs repos.Set, hub SignalHub, reg producers.Registry, sink observability.EventSink) *Generator {
	if sink == nil {
		sink = observability.NopSink()
	}
	return &Generator{
		log:       log.With("service", "ContentGenerator"),
		repos:     rs,
		hub:       hub,
		producers: reg,
		sink:      sink,
	}
}

// Generate returns an error only when the activity's status could not be
// recorded. Every expected failure is a Reason on the result.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	if req.Activity == nil || req.Lesson == nil {
		return GenerateResult{Decision: DecisionSkip}, nil
	}
	dbc := dbctx.Context{Ctx: ctx}
	log := g.log.With("lesson_id", req.Lesson.ID, "activity_id", req.Activity.ID, "kind", req.Activity.Kind, "run_id", req.RunID)

	row, err := g.repos.Activities.GetByID(dbc, req.Activity.ID)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("load activity %s: %w", req.Activity.ID, err)
	}
	decision := Classify(row, req.RunID)
	res := GenerateResult{Decision: decision, Activity: row}

	switch decision {
	case DecisionSkip:
		log.Debug("Skipping content generation", "status", statusOf(row))
		g.event(ctx, req, "content", observability.EventSkipped, string(statusOf(row)))
		return res, nil
	case DecisionNotifyOnly:
		steps, err := g.repos.Steps.ListByActivity(dbc, row.ID)
		if err != nil {
			return res, fmt.Errorf("load steps for %s: %w", row.ID, err)
		}
		res.Steps = steps
		g.fire(ctx, req, SignalPayload{Steps: steps})
		g.event(ctx, req, "content", observability.EventSkipped, "already completed")
		return res, nil
	}

	// crash re-entry after steps were committed
	if row.GenerationStatus == lesson.StatusRunning && row.OwnedBy(req.RunID) && row.StepCount > 0 {
		steps, err := g.repos.Steps.ListByActivity(dbc, row.ID)
		if err != nil {
			return res, fmt.Errorf("load steps for %s: %w", row.ID, err)
		}
		log.Info("Reusing steps committed earlier in this run", "steps", len(steps))
		res.Steps, res.Reused = steps, true
		g.fire(ctx, req, SignalPayload{Steps: steps})
		return res, nil
	}

	claimed, err := g.repos.Activities.Claim(dbc, row.ID, req.RunID)
	if err != nil {
		log.Error("Claim failed", "error", err)
		return g.fail(ctx, req, res, ReasonPersistFailed, err.Error())
	}
	if !claimed {
		log.Info("Activity claimed by another run, skipping")
		res.Decision = DecisionSkip
		g.event(ctx, req, "content", observability.EventSkipped, "claimed by another run")
		return res, nil
	}

	if row.GenerationStatus == lesson.StatusFailed || row.StepCount > 0 {
		n, err := g.repos.Steps.DeleteByActivity(dbc, row.ID)
		if err != nil {
			log.Error("Stale step delete failed", "error", err)
			return g.fail(ctx, req, res, ReasonPersistFailed, err.Error())
		}
		if n > 0 {
			log.Info("Deleted stale steps", "count", n)
		}
	}

	producer, ok := g.producers.Get(row.Kind)
	if !ok {
		return g.fail(ctx, req, res, ReasonGenerationFailed, "no producer for kind "+string(row.Kind))
	}
	g.event(ctx, req, "content", observability.EventStarted, "")

	out, err := producer.Produce(ctx, producers.Input{
		Lesson:    req.Lesson,
		Activity:  row,
		Upstream:  req.Upstream,
		SeedWords: req.SeedWords,
	})
	if err != nil {
		if ctx.Err() != nil {
			// the row stays claimed; HandleFailure settles it for the run
			return res, fmt.Errorf("produce %s: %w", row.Kind, context.Cause(ctx))
		}
		log.Warn("Producer failed", "error", err)
		return g.fail(ctx, req, res, ReasonGenerationFailed, err.Error())
	}
	if out.Empty() {
		log.Warn("Producer returned no steps")
		return g.fail(ctx, req, res, ReasonEmptyResult, "")
	}

	persisted, err := g.persist(ctx, req.Lesson, row, out)
	if err != nil {
		log.Error("Persist failed", "error", err)
		return g.fail(ctx, req, res, ReasonPersistFailed, err.Error())
	}
	res.Steps, res.Words, res.Sentences = persisted.steps, persisted.words, persisted.sentences

	g.fire(ctx, req, SignalPayload{Steps: res.Steps})
	g.event(ctx, req, "content", observability.EventSucceeded, fmt.Sprintf("%d steps", len(res.Steps)))
	log.Info("Content generated", "steps", len(res.Steps))
	return res, nil
}

type persisted struct {
	steps     []*lesson.Step
	words     []*lesson.Word
	sentences []*lesson.Sentence
}

// persist writes words, sentences, lesson links, steps and activity metadata
// in one transaction.
func (g *Generator) persist(ctx context.Context, lsn *lesson.Lesson, act *lesson.Activity, out *producers.Output) (persisted, error) {
	var p persisted
	pair := lessons.LanguagePair{
		OrganizationID: lsn.OrganizationID,
		TargetLanguage: lsn.TargetLanguage,
		UserLanguage:   lsn.UserLanguage,
	}
	err := g.repos.Tx.InTx(ctx, func(dbc dbctx.Context) error {
		wordByText := map[string]*lesson.Word{}
		if len(out.Words) > 0 {
			rows := make([]*lesson.Word, 0, len(out.Words))
			for _, w := range out.Words {
				rows = append(rows, &lesson.Word{Word: w.Word, Translation: w.Translation})
			}
			words, err := g.repos.Words.Upsert(dbc, pair, rows)
			if err != nil {
				return fmt.Errorf("upsert words: %w", err)
			}
			ids := make([]uuid.UUID, 0, len(words))
			for _, w := range words {
				wordByText[w.Word] = w
				ids = append(ids, w.ID)
			}
			if err := g.repos.Words.LinkToLesson(dbc, lsn.ID, ids); err != nil {
				return fmt.Errorf("link words: %w", err)
			}
			p.words = words
		}

		sentenceByText := map[string]*lesson.Sentence{}
		if len(out.Sentences) > 0 {
			rows := make([]*lesson.Sentence, 0, len(out.Sentences))
			for _, s := range out.Sentences {
				rows = append(rows, &lesson.Sentence{Sentence: s.Sentence, Translation: s.Translation})
			}
			sentences, err := g.repos.Sentences.Upsert(dbc, pair, rows)
			if err != nil {
				return fmt.Errorf("upsert sentences: %w", err)
			}
			ids := make([]uuid.UUID, 0, len(sentences))
			for _, s := range sentences {
				sentenceByText[s.Sentence] = s
				ids = append(ids, s.ID)
			}
			if err := g.repos.Sentences.LinkToLesson(dbc, lsn.ID, ids); err != nil {
				return fmt.Errorf("link sentences: %w", err)
			}
			p.sentences = sentences
		}

		steps := make([]*lesson.Step, 0, len(out.Steps))
		for i, d := range out.Steps {
			raw, err := json.Marshal(d.Content)
			if err != nil {
				return fmt.Errorf("encode step %d: %w", i, err)
			}
			st := &lesson.Step{
				ActivityID: act.ID,
				Kind:       d.Kind,
				Position:   i,
				Content:    datatypes.JSON(raw),
				WordID:     d.WordID,
				SentenceID: d.SentenceID,
			}
			if d.WordIndex != nil {
				if *d.WordIndex < 0 || *d.WordIndex >= len(out.Words) {
					return fmt.Errorf("step %d: word index %d out of range", i, *d.WordIndex)
				}
				w := wordByText[out.Words[*d.WordIndex].Word]
				if w == nil {
					return fmt.Errorf("step %d: word %q not stored", i, out.Words[*d.WordIndex].Word)
				}
				st.WordID = &w.ID
			}
			if d.SentenceIndex != nil {
				if *d.SentenceIndex < 0 || *d.SentenceIndex >= len(out.Sentences) {
					return fmt.Errorf("step %d: sentence index %d out of range", i, *d.SentenceIndex)
				}
				s := sentenceByText[out.Sentences[*d.SentenceIndex].Sentence]
				if s == nil {
					return fmt.Errorf("step %d: sentence %q not stored", i, out.Sentences[*d.SentenceIndex].Sentence)
				}
				st.SentenceID = &s.ID
			}
			steps = append(steps, st)
		}
		created, err := g.repos.Steps.Create(dbc, steps)
		if err != nil {
			return fmt.Errorf("create steps: %w", err)
		}
		p.steps = created

		if out.Metadata != nil {
			raw, err := json.Marshal(out.Metadata)
			if err != nil {
				return fmt.Errorf("encode metadata: %w", err)
			}
			if err := g.repos.Activities.UpdateFields(dbc, act.ID, map[string]interface{}{"metadata": datatypes.JSON(raw)}); err != nil {
				return fmt.Errorf("update metadata: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return persisted{}, err
	}
	return p, nil
}

// fail records the failure and wakes waiters with a failed payload. The row is
// only touched when this run may write it.
func (g *Generator) fail(ctx context.Context, req GenerateRequest, res GenerateResult, reason ReasonCode, detail string) (GenerateResult, error) {
	res.Reason = reason
	res.Steps = nil
	if err := g.MarkFailed(ctx, req.RunID, req.Lesson.ID, req.Activity, reason, detail); err != nil {
		return res, err
	}
	return res, nil
}

// MarkFailed sets the activity failed under runID and fires a failed signal.
func (g *Generator) MarkFailed(ctx context.Context, runID uuid.UUID, lessonID uuid.UUID, act *lesson.Activity, reason ReasonCode, detail string) error {
	// status writes outlive a canceled run so the row never stays running
	wctx := context.WithoutCancel(ctx)
	ok, err := g.repos.Activities.MarkFailed(dbctx.Context{Ctx: wctx}, act.ID, runID, string(reason))
	if err != nil {
		return fmt.Errorf("mark activity %s failed: %w", act.ID, err)
	}
	req := GenerateRequest{RunID: runID, Lesson: &lesson.Lesson{ID: lessonID}, Activity: act}
	if !ok {
		g.log.Info("Activity held by another run, failure not recorded", "activity_id", act.ID, "reason", reason)
		return nil
	}
	d := string(reason)
	if strings.TrimSpace(detail) != "" {
		d += ": " + detail
	}
	g.event(wctx, req, "content", observability.EventFailed, d)
	g.fire(wctx, req, SignalPayload{Failed: true, Reason: reason})
	return nil
}

func (g *Generator) fire(ctx context.Context, req GenerateRequest, p SignalPayload) {
	p.Kind = req.Activity.Kind
	p.LessonID = req.Lesson.ID
	if err := g.hub.Fire(ctx, Token(req.Activity.Kind, req.Lesson.ID), p); err != nil {
		g.log.Warn("Signal fire failed", "kind", req.Activity.Kind, "lesson_id", req.Lesson.ID, "error", err)
	}
}

func (g *Generator) event(ctx context.Context, req GenerateRequest, stage, status, detail string) {
	id := req.Activity.ID
	g.sink.Record(ctx, observability.Event{
		RunID:      req.RunID,
		LessonID:   req.Lesson.ID,
		ActivityID: &id,
		Step:       stage + ":" + string(req.Activity.Kind),
		Status:     status,
		Detail:     detail,
	})
}

func statusOf(a *lesson.Activity) lesson.GenerationStatus {
	if a == nil {
		return ""
	}
	return a.GenerationStatus
}
