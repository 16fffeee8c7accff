package generation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/lessonforge/internal/data/repos"
	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/generation/enrich"
	"github.com/yungbote/lessonforge/internal/generation/producers"
	"github.com/yungbote/lessonforge/internal/observability"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
)

type Deps struct {
	Log       *logger.Logger
	Repos     repos.Set
	Hub       SignalHub
	Producers producers.Registry
	Enricher  *enrich.Stage
	Sink      observability.EventSink
	Metrics   *observability.Metrics
	Plan      *Plan

	DependencyTimeout time.Duration
}

// Engine drives lanes and waves for one deployment.
type Engine struct {
	log      *logger.Logger
	repos    repos.Set
	hub      SignalHub
	gen      *Generator
	resolver *Resolver
	enrich   *enrich.Stage
	sink     observability.EventSink
	metrics  *observability.Metrics
	plan     *Plan
	tracer   trace.Tracer
}

func NewEngine(d Deps) (*Engine, error) {
	if d.Log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if d.Hub == nil {
		return nil, fmt.Errorf("signal hub required")
	}
	if d.Enricher == nil {
		return nil, fmt.Errorf("enrichment stage required")
	}
	if err := ValidateGraph(); err != nil {
		return nil, err
	}
	if d.Plan == nil {
		d.Plan = DefaultPlan()
	}
	if err := d.Plan.Validate(); err != nil {
		return nil, fmt.Errorf("wave plan: %w", err)
	}
	if d.Sink == nil {
		d.Sink = observability.NopSink()
	}
	return &Engine{
		log:      d.Log.With("service", "GenerationEngine"),
		repos:    d.Repos,
		hub:      d.Hub,
		gen:      NewGenerator(d.Log, d.Repos, d.Hub, d.Producers, d.Sink),
		resolver: NewResolver(d.Log, d.Repos.Activities, d.Repos.Steps, d.Hub, d.DependencyTimeout),
		enrich:   d.Enricher,
		sink:     d.Sink,
		metrics:  d.Metrics,
		plan:     d.Plan,
		tracer:   otel.Tracer("lessonforge/generation"),
	}, nil
}

// laneState is one activity's progress within a run. Only its own lane writes
// it; other lanes read steps through runState.upstream.
type laneState struct {
	act      *lesson.Activity
	steps    []*lesson.Step
	words    []*lesson.Word
	produced bool
	done     bool
	reason   ReasonCode
	started  time.Time
	observed bool
}

type runState struct {
	id     uuid.UUID
	lesson *lesson.Lesson

	mu       sync.Mutex
	siblings []*lesson.Activity
	lanes    map[uuid.UUID]*laneState
}

func newRunState(id uuid.UUID, lsn *lesson.Lesson, siblings []*lesson.Activity) *runState {
	rs := &runState{id: id, lesson: lsn, siblings: siblings, lanes: map[uuid.UUID]*laneState{}}
	for _, a := range siblings {
		rs.lanes[a.ID] = &laneState{act: a}
	}
	return rs
}

func (rs *runState) lane(act *lesson.Activity) *laneState {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	ls := rs.lanes[act.ID]
	if ls == nil {
		ls = &laneState{act: act}
		rs.lanes[act.ID] = ls
	}
	return ls
}

func (rs *runState) byKind(kind lesson.ActivityKind) *lesson.Activity {
	return findKind(rs.siblings, kind)
}

// upstream returns the in-run steps of kind's activity, if this run produced
// or re-announced them.
func (rs *runState) upstream(kind lesson.ActivityKind) []*lesson.Step {
	a := rs.byKind(kind)
	if a == nil {
		return nil
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	ls := rs.lanes[a.ID]
	if ls == nil {
		return nil
	}
	return ls.steps
}

func (rs *runState) set(act *lesson.Activity, fn func(ls *laneState)) {
	ls := rs.lane(act)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	fn(ls)
}

func (rs *runState) snapshot(act *lesson.Activity) laneState {
	ls := rs.lane(act)
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return *ls
}

func (e *Engine) span(ctx context.Context, rs *runState, name string, act *lesson.Activity) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("run_id", rs.id.String()),
		attribute.String("lesson_id", rs.lesson.ID.String()),
		attribute.String("activity_id", act.ID.String()),
		attribute.String("kind", string(act.Kind)),
	))
}

func (e *Engine) record(ctx context.Context, rs *runState, act *lesson.Activity, step, status, detail string) {
	var id *uuid.UUID
	if act != nil {
		aid := act.ID
		id = &aid
	}
	e.sink.Record(ctx, observability.Event{
		RunID:      rs.id,
		LessonID:   rs.lesson.ID,
		ActivityID: id,
		Step:       step,
		Status:     status,
		Detail:     detail,
	})
}
