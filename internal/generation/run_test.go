package generation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lessonforge/internal/data/repos/lessons"
	"github.com/yungbote/lessonforge/internal/data/repos/testutil"
	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/generation/producers"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
)

var coreKinds = []lesson.ActivityKind{
	lesson.KindBackground, lesson.KindExplanation, lesson.KindMechanics, lesson.KindQuiz,
	lesson.KindExamples, lesson.KindStory, lesson.KindChallenge, lesson.KindReview,
}

func TestGenerateLessonCompletesCoreWaves(t *testing.T) {
	h := newHarness(t)
	e := h.build()
	l := h.lesson(lesson.LessonKindCore)
	for _, k := range coreKinds {
		h.activity(l, k, lesson.StatusPending)
	}
	c1 := h.activity(l, lesson.KindCustom, lesson.StatusPending)
	c2 := h.activity(l, lesson.KindCustom, lesson.StatusPending)

	summary, err := e.GenerateLesson(h.ctx, l.ID, RunOptions{})
	require.NoError(t, err)
	require.Len(t, summary.Activities, len(coreKinds)+2)
	assert.Equal(t, 0, summary.Failed())
	for _, a := range summary.Activities {
		assert.Equal(t, lesson.StatusCompleted, a.Status, "kind %s", a.Kind)
		assert.Equal(t, int64(2), a.Steps, "kind %s", a.Kind)
	}
	assert.Equal(t, int32(2), h.prods[lesson.KindCustom].calls.Load())
	assert.Equal(t, lesson.StatusCompleted, h.reload(c1.ID).GenerationStatus)
	assert.Equal(t, lesson.StatusCompleted, h.reload(c2.ID).GenerationStatus)

	// each kind's producer starts after all of its prerequisites finished
	order := h.log.order()
	position := map[lesson.ActivityKind]int{}
	for i, k := range order {
		if _, seen := position[k]; !seen {
			position[k] = i + 1
		}
	}
	for _, k := range coreKinds {
		for _, dep := range Prerequisites(k) {
			assert.Less(t, h.log.ends[dep], position[k], "%s started before %s finished", k, dep)
		}
	}

	run, err := h.repos.Runs.GetByID(dbctx.Context{Ctx: h.ctx}, summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, lesson.RunStatusSucceeded, run.Status)
	events, err := h.repos.Events.ListByRun(dbctx.Context{Ctx: h.ctx}, summary.RunID)
	require.NoError(t, err)
	assert.NotEmpty(t, events)
}

func TestGenerateLessonResumeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	e := h.build()
	l := h.lesson(lesson.LessonKindCore)
	for _, k := range coreKinds {
		h.activity(l, k, lesson.StatusPending)
	}
	_, err := e.GenerateLesson(h.ctx, l.ID, RunOptions{})
	require.NoError(t, err)

	ai, vis, img := h.aiCalls(), h.visuals.calls.Load(), h.images.calls.Load()
	require.Greater(t, ai, int32(0))

	summary, err := e.GenerateLesson(h.ctx, l.ID, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Failed())
	assert.Equal(t, ai, h.aiCalls(), "completed activities must not be regenerated")
	assert.Equal(t, vis, h.visuals.calls.Load())
	assert.Equal(t, img, h.images.calls.Load())
}

func TestGenerateLessonIsolatesCustomFailures(t *testing.T) {
	h := newHarness(t)
	h.prods[lesson.KindCustom].build = func(in producers.Input) *producers.Output {
		if in.Activity.Title == "broken" {
			return &producers.Output{}
		}
		return &producers.Output{Steps: []producers.StepDraft{{Kind: lesson.StepStatic, Content: lesson.StaticContent{Text: "ok"}}}}
	}
	e := h.build()
	l := h.lesson(lesson.LessonKindCore)
	good := h.activity(l, lesson.KindCustom, lesson.StatusPending)
	bad := h.activity(l, lesson.KindCustom, lesson.StatusPending)
	require.NoError(t, h.db.Model(bad).Update("title", "broken").Error)

	summary, err := e.GenerateLesson(h.ctx, l.ID, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed())
	assert.Equal(t, lesson.StatusCompleted, h.reload(good.ID).GenerationStatus)
	assert.Equal(t, string(ReasonEmptyResult), h.reload(bad.ID).GenerationFailureReason)
}

// languageProducers makes vocabulary emit two words and reading one sentence
// per word. onReading, when set, runs as the reading producer starts.
func languageProducers(h *harness, onReading func()) {
	h.prods[lesson.KindVocabulary].build = func(in producers.Input) *producers.Output {
		out := &producers.Output{}
		for i, w := range []string{"pan", "queso"} {
			idx := i
			out.Words = append(out.Words, producers.WordDraft{Word: w, Translation: w + "-en"})
			out.Steps = append(out.Steps, producers.StepDraft{Kind: lesson.StepVocabulary, Content: lesson.VocabularyContent{Word: w}, WordIndex: &idx})
		}
		return out
	}
	h.prods[lesson.KindReading].build = func(in producers.Input) *producers.Output {
		if onReading != nil {
			onReading()
		}
		seeds := in.SeedWords
		if len(seeds) == 0 {
			seeds = producers.SeedsFromSteps(in.Upstream[lesson.KindVocabulary])
		}
		out := &producers.Output{}
		for i, s := range seeds {
			idx := i
			sentence := "Quiero " + s.Word + "."
			out.Sentences = append(out.Sentences, producers.SentenceDraft{Sentence: sentence})
			out.Steps = append(out.Steps, producers.StepDraft{Kind: lesson.StepReading, Content: lesson.SentenceContent{Sentence: sentence}, SentenceIndex: &idx})
		}
		return out
	}
}

func TestGenerateLessonLanguageLane(t *testing.T) {
	h := newHarness(t)
	languageProducers(h, nil)
	copies := producers.NewRegistry(nil)
	for _, k := range []lesson.ActivityKind{lesson.KindListening, lesson.KindLanguageReview} {
		p, ok := copies.Get(k)
		require.True(t, ok)
		h.prods[k].build = func(in producers.Input) *producers.Output {
			out, err := p.Produce(context.Background(), in)
			require.NoError(t, err)
			return out
		}
	}
	e := h.build()

	l := h.lesson(lesson.LessonKindLanguage)
	vocab := h.activity(l, lesson.KindVocabulary, lesson.StatusPending)
	reading := h.activity(l, lesson.KindReading, lesson.StatusPending)
	listen := h.activity(l, lesson.KindListening, lesson.StatusPending)
	lr := h.activity(l, lesson.KindLanguageReview, lesson.StatusPending)
	grammar := h.activity(l, lesson.KindGrammar, lesson.StatusPending)

	summary, err := e.GenerateLesson(h.ctx, l.ID, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Failed())

	assert.Equal(t, int64(2), h.reload(vocab.ID).StepCount)
	assert.Equal(t, int64(2), h.reload(reading.ID).StepCount)
	assert.Equal(t, int64(2), h.reload(listen.ID).StepCount)
	assert.Equal(t, int64(4), h.reload(lr.ID).StepCount)
	assert.Equal(t, lesson.StatusCompleted, h.reload(grammar.ID).GenerationStatus)
	assert.Equal(t, 2, h.prods[lesson.KindReading].sawUpstream(lesson.KindVocabulary))

	// one bulk pronunciation call, one speech render per word and sentence
	assert.Equal(t, int32(1), h.pron.calls.Load())
	assert.Equal(t, int32(4), h.speak.calls.Load())

	dbc := dbctx.Context{Ctx: h.ctx}
	words, err := h.repos.Words.ListByLesson(dbc, l.ID)
	require.NoError(t, err)
	require.Len(t, words, 2)
	steps, err := h.repos.Steps.ListByActivity(dbc, listen.ID)
	require.NoError(t, err)
	for _, st := range steps {
		assert.NotEmpty(t, st.AudioURL, "listening copies carry the sentence audio")
	}
}

func TestReadingFallsBackToPersistedWords(t *testing.T) {
	h := newHarness(t)
	h.prods[lesson.KindVocabulary].steps = 0
	h.prods[lesson.KindReading].build = func(in producers.Input) *producers.Output {
		out := &producers.Output{}
		for i, s := range in.SeedWords {
			idx := i
			out.Sentences = append(out.Sentences, producers.SentenceDraft{Sentence: s.Word + "!"})
			out.Steps = append(out.Steps, producers.StepDraft{Kind: lesson.StepReading, Content: lesson.SentenceContent{Sentence: s.Word + "!"}, SentenceIndex: &idx})
		}
		return out
	}
	e := h.build()
	l := h.lesson(lesson.LessonKindLanguage)
	dbc := dbctx.Context{Ctx: h.ctx}
	words, err := h.repos.Words.Upsert(dbc, pairOf(l), []*lesson.Word{{Word: "leche", Translation: "milk"}})
	require.NoError(t, err)
	require.NoError(t, h.repos.Words.LinkToLesson(dbc, l.ID, []uuid.UUID{words[0].ID}))
	vocab := h.activity(l, lesson.KindVocabulary, lesson.StatusPending)
	reading := h.activity(l, lesson.KindReading, lesson.StatusPending)

	_, err = e.GenerateLesson(h.ctx, l.ID, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, lesson.StatusFailed, h.reload(vocab.ID).GenerationStatus)
	assert.Equal(t, lesson.StatusCompleted, h.reload(reading.ID).GenerationStatus)
	h.prods[lesson.KindReading].mu.Lock()
	defer h.prods[lesson.KindReading].mu.Unlock()
	require.Len(t, h.prods[lesson.KindReading].seeds, 1)
	assert.Equal(t, "leche", h.prods[lesson.KindReading].seeds[0].Word)
}

func TestHandleFailureOnlyTouchesRowsOfTheRun(t *testing.T) {
	h := newHarness(t)
	e := h.build()
	l := h.lesson(lesson.LessonKindCore)
	dbc := dbctx.Context{Ctx: h.ctx}
	runID, other := uuid.New(), uuid.New()

	ours := h.activity(l, lesson.KindBackground, lesson.StatusPending)
	theirs := h.activity(l, lesson.KindExplanation, lesson.StatusPending)
	pending := h.activity(l, lesson.KindQuiz, lesson.StatusPending)
	done := h.activity(l, lesson.KindStory, lesson.StatusCompleted)
	testutil.SeedSteps(t, h.ctx, h.db, done.ID, 1)
	_, err := h.repos.Runs.Start(dbc, &lesson.GenerationRun{ID: runID, LessonID: l.ID})
	require.NoError(t, err)
	for id, run := range map[uuid.UUID]uuid.UUID{ours.ID: runID, theirs.ID: other} {
		ok, err := h.repos.Activities.Claim(dbc, id, run)
		require.NoError(t, err)
		require.True(t, ok)
	}
	w, err := h.hub.Register(h.ctx, Token(lesson.KindBackground, l.ID))
	require.NoError(t, err)

	cause := context.DeadlineExceeded
	got := e.HandleFailure(h.ctx, runID, l.ID, cause)
	assert.ErrorIs(t, got, cause)

	assert.Equal(t, lesson.StatusFailed, h.reload(ours.ID).GenerationStatus)
	assert.Equal(t, string(ReasonRunAborted), h.reload(ours.ID).GenerationFailureReason)
	assert.Equal(t, lesson.StatusRunning, h.reload(theirs.ID).GenerationStatus)
	assert.Equal(t, lesson.StatusPending, h.reload(pending.ID).GenerationStatus)
	assert.Equal(t, lesson.StatusCompleted, h.reload(done.ID).GenerationStatus)

	p, err := w.Wait(h.ctx)
	require.NoError(t, err)
	assert.True(t, p.Failed)

	run, err := h.repos.Runs.GetByID(dbc, runID)
	require.NoError(t, err)
	assert.Equal(t, lesson.RunStatusFailed, run.Status)
}

func pairOf(l *lesson.Lesson) lessons.LanguagePair {
	return lessons.LanguagePair{OrganizationID: l.OrganizationID, TargetLanguage: l.TargetLanguage, UserLanguage: l.UserLanguage}
}

func TestLanguageLaneReadingStartsBeforeVocabularyAudio(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.speak.gate = gate
	readingStarted := make(chan struct{})
	var once sync.Once
	languageProducers(h, func() { once.Do(func() { close(readingStarted) }) })
	e := h.build()
	l := h.lesson(lesson.LessonKindLanguage)
	vocab := h.activity(l, lesson.KindVocabulary, lesson.StatusPending)
	reading := h.activity(l, lesson.KindReading, lesson.StatusPending)

	done := make(chan error, 1)
	go func() {
		_, err := e.GenerateLesson(h.ctx, l.ID, RunOptions{})
		done <- err
	}()

	select {
	case <-readingStarted:
	case <-time.After(5 * time.Second):
		close(gate)
		t.Fatal("reading waited for vocabulary audio")
	}
	// word audio is still held, so vocabulary cannot have completed
	assert.Equal(t, lesson.StatusRunning, h.reload(vocab.ID).GenerationStatus)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, lesson.StatusCompleted, h.reload(vocab.ID).GenerationStatus)
	assert.Equal(t, lesson.StatusCompleted, h.reload(reading.ID).GenerationStatus)
}

func TestLanguageLaneCompletesVocabularyWithoutWaitingForReading(t *testing.T) {
	h := newHarness(t)
	hold := make(chan struct{})
	languageProducers(h, func() {
		select {
		case <-hold:
		case <-time.After(10 * time.Second):
		}
	})
	e := h.build()
	l := h.lesson(lesson.LessonKindLanguage)
	vocab := h.activity(l, lesson.KindVocabulary, lesson.StatusPending)
	reading := h.activity(l, lesson.KindReading, lesson.StatusPending)

	done := make(chan error, 1)
	go func() {
		_, err := e.GenerateLesson(h.ctx, l.ID, RunOptions{})
		done <- err
	}()

	require.Eventually(t, func() bool {
		return h.reload(vocab.ID).GenerationStatus == lesson.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, lesson.StatusRunning, h.reload(reading.ID).GenerationStatus)

	close(hold)
	require.NoError(t, <-done)
	assert.Equal(t, lesson.StatusCompleted, h.reload(reading.ID).GenerationStatus)
}

func TestGenerateLessonCancelAbortsClaimedActivities(t *testing.T) {
	h := newHarness(t)
	entered := make(chan struct{})
	h.prods[lesson.KindBackground].entered = entered
	e := h.build()
	l := h.lesson(lesson.LessonKindCore)
	bg := h.activity(l, lesson.KindBackground, lesson.StatusPending)
	ex := h.activity(l, lesson.KindExplanation, lesson.StatusPending)

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()
	runID := uuid.New()
	done := make(chan error, 1)
	go func() {
		_, err := e.GenerateLesson(ctx, l.ID, RunOptions{RunID: runID})
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("background producer never ran")
	}
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	row := h.reload(bg.ID)
	assert.Equal(t, lesson.StatusFailed, row.GenerationStatus)
	assert.Equal(t, string(ReasonRunAborted), row.GenerationFailureReason)
	assert.Equal(t, lesson.StatusPending, h.reload(ex.ID).GenerationStatus)

	run, err := h.repos.Runs.GetByID(dbctx.Context{Ctx: h.ctx}, runID)
	require.NoError(t, err)
	assert.Equal(t, lesson.RunStatusFailed, run.Status)
}

func TestGenerateLessonDeadlineLeavesForeignClaims(t *testing.T) {
	h := newHarness(t)
	e := h.build()
	l := h.lesson(lesson.LessonKindCore)
	bg := h.activity(l, lesson.KindBackground, lesson.StatusPending)
	ex := h.activity(l, lesson.KindExplanation, lesson.StatusPending)
	owner := uuid.New()
	ok, err := h.repos.Activities.Claim(dbctx.Context{Ctx: h.ctx}, bg.ID, owner)
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(h.ctx, 200*time.Millisecond)
	defer cancel()
	_, err = e.GenerateLesson(ctx, l.ID, RunOptions{})
	require.Error(t, err)

	row := h.reload(bg.ID)
	assert.Equal(t, lesson.StatusRunning, row.GenerationStatus)
	assert.True(t, row.OwnedBy(owner))
	assert.Equal(t, lesson.StatusPending, h.reload(ex.ID).GenerationStatus)
	assert.Equal(t, int32(0), h.aiCalls())
}
