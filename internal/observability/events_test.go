package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lessonforge/internal/data/repos"
	"github.com/yungbote/lessonforge/internal/data/repos/testutil"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
)

type recordingSink struct{ got []Event }

func (r *recordingSink) Record(ctx context.Context, ev Event) { r.got = append(r.got, ev) }

func TestMultiFansOutAndDBSinkAppends(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	events := repos.NewEventRepo(db, log)

	rec := &recordingSink{}
	m := NewMetrics()
	sink := Multi{NewDBSink(log, events), NewLogSink(log), NewMetricsSink(m), rec, nil}

	runID, lessonID, actID := uuid.New(), uuid.New(), uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	sink.Record(ctx, Event{RunID: runID, LessonID: lessonID, ActivityID: &actID, Step: "content:background", Status: EventStarted})
	cancel()
	sink.Record(ctx, Event{RunID: runID, LessonID: lessonID, ActivityID: &actID, Step: "content:background", Status: EventFailed, Detail: "empty_result"})

	require.Len(t, rec.got, 2)
	rows, err := events.ListByRun(dbctx.Context{Ctx: context.Background()}, runID)
	require.NoError(t, err)
	require.Len(t, rows, 2, "events recorded after cancellation are still stored")
	details := []string{rows[0].Detail, rows[1].Detail}
	assert.Contains(t, details, "empty_result")

	var buf bytes.Buffer
	require.NoError(t, m.WritePrometheus(&buf))
	assert.True(t, strings.Contains(buf.String(), `lf_generation_events_total{status="failed",step="content:background"} 1`))
}

func TestDBSinkIgnoresEventsWithoutRun(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	events := repos.NewEventRepo(db, log)
	NewDBSink(log, events).Record(context.Background(), Event{Step: "x", Status: EventStarted})
	rows, err := events.ListByRun(dbctx.Context{Ctx: context.Background()}, uuid.Nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.LaneStarted()
	m.ObserveLane("quiz", "completed", "", 0)
	m.IncEvent("x", "y")
	assert.NoError(t, m.WritePrometheus(&bytes.Buffer{}))
}
