package observability

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/lessonforge/internal/data/repos"
	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/pkg/ctxutil"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
)

const (
	EventStarted   = "started"
	EventSucceeded = "succeeded"
	EventSkipped   = "skipped"
	EventFailed    = "failed"
	EventError     = "error"
)

// Event is one (run, step, status) record.
type Event struct {
	RunID      uuid.UUID
	LessonID   uuid.UUID
	ActivityID *uuid.UUID
	Step       string
	Status     string
	Detail     string
}

// EventSink is append-only. Record never fails the caller.
type EventSink interface {
	Record(ctx context.Context, ev Event)
}

type nopSink struct{}

func (nopSink) Record(context.Context, Event) {}

func NopSink() EventSink { return nopSink{} }

// DBSink appends generation_event rows.
type DBSink struct {
	log    *logger.Logger
	events repos.EventRepo
}

func NewDBSink(log *logger.Logger, events repos.EventRepo) *DBSink {
	return &DBSink{log: log.With("service", "EventDBSink"), events: events}
}

func (s *DBSink) Record(ctx context.Context, ev Event) {
	if ev.RunID == uuid.Nil {
		return
	}
	// the row outlives a canceled run context
	wctx := context.WithoutCancel(ctx)
	err := s.events.Append(dbctx.Context{Ctx: wctx}, &lesson.GenerationEvent{
		RunID:      ev.RunID,
		LessonID:   ev.LessonID,
		ActivityID: ev.ActivityID,
		Step:       ev.Step,
		Status:     ev.Status,
		Detail:     ev.Detail,
	})
	if err != nil {
		s.log.Warn("Failed to append generation event", "run_id", ev.RunID, "step", ev.Step, "error", err)
	}
}

// OtelSink attaches events to the active span, if any.
type OtelSink struct {
	tracer trace.Tracer
}

func NewOtelSink() *OtelSink {
	return &OtelSink{tracer: otel.Tracer("lessonforge/generation")}
}

func (s *OtelSink) Record(ctx context.Context, ev Event) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("run_id", ev.RunID.String()),
		attribute.String("lesson_id", ev.LessonID.String()),
		attribute.String("status", ev.Status),
	}
	if ev.ActivityID != nil {
		attrs = append(attrs, attribute.String("activity_id", ev.ActivityID.String()))
	}
	if ev.Detail != "" {
		attrs = append(attrs, attribute.String("detail", ev.Detail))
	}
	span.AddEvent(ev.Step, trace.WithAttributes(attrs...))
	if ev.Status == EventError {
		span.RecordError(errors.New(ev.Detail))
	}
}

// Tracer returns the engine's tracer for lane spans.
func (s *OtelSink) Tracer() trace.Tracer { return s.tracer }

type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log.With("service", "GenerationEvents")}
}

func (s *LogSink) Record(ctx context.Context, ev Event) {
	kv := []interface{}{"run_id", ev.RunID, "lesson_id", ev.LessonID, "step", ev.Step, "status", ev.Status}
	if rd := ctxutil.GetRunData(ctx); rd != nil && rd.Trigger != "" {
		kv = append(kv, "trigger", rd.Trigger)
	}
	if ev.ActivityID != nil {
		kv = append(kv, "activity_id", *ev.ActivityID)
	}
	if ev.Detail != "" {
		kv = append(kv, "detail", ev.Detail)
	}
	switch ev.Status {
	case EventFailed, EventError:
		s.log.Warn("Generation event", kv...)
	default:
		s.log.Debug("Generation event", kv...)
	}
}

type MetricsSink struct {
	m *Metrics
}

func NewMetricsSink(m *Metrics) MetricsSink { return MetricsSink{m: m} }

func (s MetricsSink) Record(ctx context.Context, ev Event) { s.m.IncEvent(ev.Step, ev.Status) }

// Multi fans an event out to every sink in order.
type Multi []EventSink

func (m Multi) Record(ctx context.Context, ev Event) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, ev)
		}
	}
}
