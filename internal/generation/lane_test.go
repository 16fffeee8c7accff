package generation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lessonforge/internal/data/repos/testutil"
	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
	apperrors "github.com/yungbote/lessonforge/internal/pkg/errors"
)

func TestLaneDependentObservesSignal(t *testing.T) {
	h := newHarness(t)
	e := h.build()
	l := h.lesson(lesson.LessonKindCore)
	bg := h.activity(l, lesson.KindBackground, lesson.StatusPending)
	ex := h.activity(l, lesson.KindExplanation, lesson.StatusPending)

	// explanation's lane starts first and parks on the background token
	require.NoError(t, e.RunLanes(h.ctx, uuid.New(), l.ID, ex.ID, bg.ID))

	bgRow, exRow := h.reload(bg.ID), h.reload(ex.ID)
	assert.Equal(t, lesson.StatusCompleted, bgRow.GenerationStatus)
	assert.Equal(t, int64(2), bgRow.StepCount)
	assert.Equal(t, lesson.StatusCompleted, exRow.GenerationStatus)
	assert.Equal(t, 2, h.prods[lesson.KindExplanation].sawUpstream(lesson.KindBackground))
	assert.Equal(t, []lesson.ActivityKind{lesson.KindBackground, lesson.KindExplanation}, h.log.order())
	assert.Equal(t, 0, h.hub.Pending(Token(lesson.KindBackground, l.ID)))
}

func TestLaneEmptyPrerequisiteCascades(t *testing.T) {
	h := newHarness(t)
	h.prods[lesson.KindBackground].steps = 0
	e := h.build()
	l := h.lesson(lesson.LessonKindCore)
	bg := h.activity(l, lesson.KindBackground, lesson.StatusPending)
	ex := h.activity(l, lesson.KindExplanation, lesson.StatusPending)

	start := time.Now()
	require.NoError(t, e.RunLanes(h.ctx, uuid.New(), l.ID, bg.ID, ex.ID))
	assert.Less(t, time.Since(start), h.timeout, "dependents must not wait out the timeout")

	bgRow, exRow := h.reload(bg.ID), h.reload(ex.ID)
	assert.Equal(t, lesson.StatusFailed, bgRow.GenerationStatus)
	assert.Equal(t, string(ReasonEmptyResult), bgRow.GenerationFailureReason)
	assert.Equal(t, lesson.StatusFailed, exRow.GenerationStatus)
	assert.Equal(t, string(ReasonDependencyUnmet), exRow.GenerationFailureReason)
	assert.Equal(t, int32(0), h.prods[lesson.KindExplanation].calls.Load())
}

func TestLaneProducerErrorLeavesCompletedPrerequisite(t *testing.T) {
	h := newHarness(t)
	h.prods[lesson.KindExplanation].err = errBoom
	e := h.build()
	l := h.lesson(lesson.LessonKindCore)
	bg := h.activity(l, lesson.KindBackground, lesson.StatusCompleted)
	testutil.SeedSteps(t, h.ctx, h.db, bg.ID, 2)
	ex := h.activity(l, lesson.KindExplanation, lesson.StatusPending)

	require.NoError(t, e.RunLanes(h.ctx, uuid.New(), l.ID, bg.ID, ex.ID))

	bgRow, exRow := h.reload(bg.ID), h.reload(ex.ID)
	assert.Equal(t, lesson.StatusCompleted, bgRow.GenerationStatus)
	assert.Equal(t, int64(2), bgRow.StepCount)
	assert.Equal(t, lesson.StatusFailed, exRow.GenerationStatus)
	assert.Equal(t, string(ReasonGenerationFailed), exRow.GenerationFailureReason)
	assert.Equal(t, int64(0), exRow.StepCount)
	assert.Equal(t, int32(0), h.prods[lesson.KindBackground].calls.Load())
}

func TestRetryReplacesStaleSteps(t *testing.T) {
	h := newHarness(t)
	h.prods[lesson.KindExamples].steps = 4
	e := h.build()
	l := h.lesson(lesson.LessonKindCore)
	ex := h.activity(l, lesson.KindExplanation, lesson.StatusCompleted)
	testutil.SeedSteps(t, h.ctx, h.db, ex.ID, 1)
	act := h.activity(l, lesson.KindExamples, lesson.StatusFailed)
	stale := testutil.SeedSteps(t, h.ctx, h.db, act.ID, 1)

	summary, err := e.RetryActivity(h.ctx, act.ID, RunOptions{})
	require.NoError(t, err)
	require.Len(t, summary.Activities, 1)
	assert.Equal(t, lesson.StatusCompleted, summary.Activities[0].Status)

	steps, err := h.repos.Steps.ListByActivity(dbctx.Context{Ctx: h.ctx}, act.ID)
	require.NoError(t, err)
	require.Len(t, steps, 4)
	for _, st := range steps {
		assert.NotEqual(t, stale[0].ID, st.ID)
	}
	run, err := h.repos.Runs.GetByID(dbctx.Context{Ctx: h.ctx}, summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, lesson.RunTriggerRetry, run.Trigger)
	assert.Equal(t, lesson.RunStatusSucceeded, run.Status)
}

func TestRetryRejectsUnsupportedKind(t *testing.T) {
	h := newHarness(t)
	delete(h.prods, lesson.KindCustom)
	e := h.build()
	l := h.lesson(lesson.LessonKindCore)
	act := h.activity(l, lesson.KindCustom, lesson.StatusFailed)

	_, err := e.RetryActivity(h.ctx, act.ID, RunOptions{})
	require.ErrorIs(t, err, apperrors.ErrUnsupportedKind)
	assert.Equal(t, lesson.StatusFailed, h.reload(act.ID).GenerationStatus)

	_, err = e.RetryActivity(h.ctx, uuid.New(), RunOptions{})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLaneSkipsActivityHeldByAnotherRun(t *testing.T) {
	h := newHarness(t)
	e := h.build()
	l := h.lesson(lesson.LessonKindCore)
	act := h.activity(l, lesson.KindBackground, lesson.StatusPending)
	other := uuid.New()
	ok, err := h.repos.Activities.Claim(dbctx.Context{Ctx: h.ctx}, act.ID, other)
	require.NoError(t, err)
	require.True(t, ok)
	before := h.reload(act.ID)

	require.NoError(t, e.RunLane(h.ctx, uuid.New(), l.ID, act.ID))

	after := h.reload(act.ID)
	assert.Equal(t, int32(0), h.aiCalls())
	assert.Equal(t, lesson.StatusRunning, after.GenerationStatus)
	assert.True(t, after.OwnedBy(other))
	assert.Equal(t, int64(0), after.StepCount)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt), "no write may touch a row another run holds")
}

func TestLaneDependencyTimeout(t *testing.T) {
	h := newHarness(t)
	h.timeout = 100 * time.Millisecond
	e := h.build()
	l := h.lesson(lesson.LessonKindCore)
	h.activity(l, lesson.KindBackground, lesson.StatusPending)
	ex := h.activity(l, lesson.KindExplanation, lesson.StatusPending)

	// nothing ever runs background
	require.NoError(t, e.RunLane(h.ctx, uuid.New(), l.ID, ex.ID))

	row := h.reload(ex.ID)
	assert.Equal(t, lesson.StatusFailed, row.GenerationStatus)
	assert.Equal(t, string(ReasonDependencyTimeout), row.GenerationFailureReason)
	assert.Equal(t, int32(0), h.aiCalls())
}

func TestLaneAbsentPrerequisiteFailsWithoutWaiting(t *testing.T) {
	h := newHarness(t)
	e := h.build()
	l := h.lesson(lesson.LessonKindCore)
	quiz := h.activity(l, lesson.KindQuiz, lesson.StatusPending)

	require.NoError(t, e.RunLane(h.ctx, uuid.New(), l.ID, quiz.ID))
	row := h.reload(quiz.ID)
	assert.Equal(t, lesson.StatusFailed, row.GenerationStatus)
	assert.Equal(t, string(ReasonDependencyUnmet), row.GenerationFailureReason)
	assert.Equal(t, int32(0), h.aiCalls())
}

func TestLanePanicBecomesBranchFailure(t *testing.T) {
	h := newHarness(t)
	h.prods[lesson.KindBackground].panic = "producer bug"
	e := h.build()
	l := h.lesson(lesson.LessonKindCore)
	bg := h.activity(l, lesson.KindBackground, lesson.StatusPending)
	c1 := h.activity(l, lesson.KindCustom, lesson.StatusPending)

	require.NoError(t, e.RunLanes(h.ctx, uuid.New(), l.ID, bg.ID, c1.ID))
	assert.Equal(t, lesson.StatusFailed, h.reload(bg.ID).GenerationStatus)
	assert.Equal(t, string(ReasonGenerationFailed), h.reload(bg.ID).GenerationFailureReason)
	assert.Equal(t, lesson.StatusCompleted, h.reload(c1.ID).GenerationStatus)
}

func TestLaneCrashReentryReusesCommittedSteps(t *testing.T) {
	h := newHarness(t)
	e := h.build()
	l := h.lesson(lesson.LessonKindCore)
	act := h.activity(l, lesson.KindStory, lesson.StatusPending)
	ex := h.activity(l, lesson.KindExplanation, lesson.StatusCompleted)
	testutil.SeedSteps(t, h.ctx, h.db, ex.ID, 1)

	runID := uuid.New()
	ok, err := h.repos.Activities.Claim(dbctx.Context{Ctx: h.ctx}, act.ID, runID)
	require.NoError(t, err)
	require.True(t, ok)
	testutil.SeedSteps(t, h.ctx, h.db, act.ID, 3)

	require.NoError(t, e.RunLane(h.ctx, runID, l.ID, act.ID))
	row := h.reload(act.ID)
	assert.Equal(t, lesson.StatusCompleted, row.GenerationStatus)
	assert.Equal(t, int64(3), row.StepCount)
	assert.Equal(t, int32(0), h.aiCalls())
}

func TestLaneCanceledRunEscapes(t *testing.T) {
	h := newHarness(t)
	e := h.build()
	l := h.lesson(lesson.LessonKindCore)
	h.activity(l, lesson.KindBackground, lesson.StatusPending)
	ex := h.activity(l, lesson.KindExplanation, lesson.StatusPending)

	ctx, cancel := context.WithCancel(h.ctx)
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := e.RunLane(ctx, uuid.New(), l.ID, ex.ID)
	require.Error(t, err)
	assert.Equal(t, lesson.StatusPending, h.reload(ex.ID).GenerationStatus)
}

func TestLaneBrokenSubscriptionFailsAsUnmet(t *testing.T) {
	h := newHarness(t)
	h.signals = closedHub{}
	e := h.build()
	l := h.lesson(lesson.LessonKindCore)
	h.activity(l, lesson.KindExplanation, lesson.StatusPending)
	story := h.activity(l, lesson.KindStory, lesson.StatusPending)

	require.NoError(t, e.RunLane(h.ctx, uuid.New(), l.ID, story.ID))
	row := h.reload(story.ID)
	assert.Equal(t, lesson.StatusFailed, row.GenerationStatus)
	assert.Equal(t, string(ReasonDependencyUnmet), row.GenerationFailureReason)
	assert.Equal(t, int32(0), h.prods[lesson.KindStory].calls.Load())
}

func TestRunLanesUnknownIDStartsNothing(t *testing.T) {
	h := newHarness(t)
	e := h.build()
	l := h.lesson(lesson.LessonKindCore)
	bg := h.activity(l, lesson.KindBackground, lesson.StatusPending)

	err := e.RunLanes(h.ctx, uuid.New(), l.ID, bg.ID, uuid.New())
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, int32(0), h.aiCalls())
	assert.Equal(t, lesson.StatusPending, h.reload(bg.ID).GenerationStatus)
}
