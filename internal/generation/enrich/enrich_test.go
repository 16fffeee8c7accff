package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/lessonforge/internal/clients/gcp"
	"github.com/yungbote/lessonforge/internal/data/repos"
	"github.com/yungbote/lessonforge/internal/data/repos/lessons"
	"github.com/yungbote/lessonforge/internal/data/repos/testutil"
	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
)

type fakeVisuals struct {
	calls atomic.Int32
	err   error
	short bool
}

func (f *fakeVisuals) Describe(ctx context.Context, req VisualRequest) VisualResult {
	f.calls.Add(1)
	if f.err != nil {
		return VisualResult{Err: f.err}
	}
	n := len(req.Steps)
	if f.short {
		n--
	}
	out := make([]lesson.VisualPayload, n)
	for i := range out {
		out[i] = lesson.VisualPayload{Kind: lesson.VisualImage, Description: "a leaf", Prompt: "a green leaf in sunlight"}
	}
	return VisualResult{Data: out}
}

type fakeImages struct {
	calls  atomic.Int32
	failOn string
}

func (f *fakeImages) Render(ctx context.Context, prompt string) ImageResult {
	f.calls.Add(1)
	if f.failOn != "" && strings.Contains(prompt, f.failOn) {
		return ImageResult{Err: errors.New("render refused")}
	}
	return ImageResult{Data: []byte("png"), MimeType: "image/png"}
}

type fakePronouncer struct {
	calls atomic.Int32
	err   error
}

func (f *fakePronouncer) Pronounce(ctx context.Context, language string, words []string) PronunciationResult {
	f.calls.Add(1)
	if f.err != nil {
		return PronunciationResult{Err: f.err}
	}
	out := map[string]string{}
	for _, w := range words {
		out[w] = "/" + w + "/"
	}
	return PronunciationResult{Data: out}
}

type fakeSpeaker struct {
	calls atomic.Int32
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string, language string) AudioResult {
	f.calls.Add(1)
	return AudioResult{Data: []byte("mp3"), MimeType: "audio/mpeg"}
}

type fixture struct {
	db     *gorm.DB
	repos  repos.Set
	store  *gcp.MemoryStore
	vis    *fakeVisuals
	img    *fakeImages
	pron   *fakePronouncer
	speak  *fakeSpeaker
	stage  *Stage
	lesson *lesson.Lesson
}

func newFixture(t *testing.T, kind lesson.LessonKind) *fixture {
	t.Helper()
	db := testutil.DB(t)
	f := &fixture{
		db:    db,
		repos: repos.NewSet(db, testutil.Logger(t)),
		store: gcp.NewMemoryStore("https://cdn.test"),
		vis:   &fakeVisuals{},
		img:   &fakeImages{},
		pron:  &fakePronouncer{},
		speak: &fakeSpeaker{},
	}
	f.stage = NewStage(Deps{
		Log:         testutil.Logger(t),
		Repos:       f.repos,
		Store:       f.store,
		Visuals:     f.vis,
		Images:      f.img,
		Pronouncer:  f.pron,
		Speaker:     f.speak,
		Concurrency: 2,
	})
	f.lesson = testutil.SeedLesson(t, context.Background(), db, kind)
	return f
}

func (f *fixture) steps(t *testing.T, activityID uuid.UUID) []*lesson.Step {
	t.Helper()
	out, err := f.repos.Steps.ListByActivity(dbctx.Context{Ctx: context.Background()}, activityID)
	require.NoError(t, err)
	return out
}

func TestVisualsSkipWhenEveryStepHasPayload(t *testing.T) {
	f := newFixture(t, lesson.LessonKindCore)
	ctx := context.Background()
	act := testutil.SeedActivity(t, ctx, f.db, f.lesson, lesson.KindBackground, lesson.StatusRunning)
	steps := testutil.SeedSteps(t, ctx, f.db, act.ID, 2)
	for _, st := range steps {
		st.Visual = datatypes.JSON(`{"kind":"quote","description":"a quote"}`)
		require.NoError(t, f.db.Save(st).Error)
	}

	_, err := f.stage.Visuals(ctx, VisualRequest{Lesson: f.lesson, Activity: act, Steps: steps})
	require.NoError(t, err)
	assert.Equal(t, int32(0), f.vis.calls.Load())
}

func TestVisualsWritesEveryPayloadOrNone(t *testing.T) {
	f := newFixture(t, lesson.LessonKindCore)
	ctx := context.Background()
	act := testutil.SeedActivity(t, ctx, f.db, f.lesson, lesson.KindBackground, lesson.StatusRunning)
	steps := testutil.SeedSteps(t, ctx, f.db, act.ID, 3)

	f.vis.short = true
	_, err := f.stage.Visuals(ctx, VisualRequest{Lesson: f.lesson, Activity: act, Steps: steps})
	require.ErrorIs(t, err, ErrVisualFailed)
	for _, st := range f.steps(t, act.ID) {
		assert.False(t, st.HasVisual(), "no payload may be written on a partial result")
	}

	f.vis.short = false
	_, err = f.stage.Visuals(ctx, VisualRequest{Lesson: f.lesson, Activity: act, Steps: steps})
	require.NoError(t, err)
	for _, st := range f.steps(t, act.ID) {
		require.True(t, st.HasVisual())
		assert.True(t, st.DecodeVisual().WantsImage())
	}
	assert.Equal(t, int32(2), f.vis.calls.Load())
}

func TestVisualsCollaboratorErrorFails(t *testing.T) {
	f := newFixture(t, lesson.LessonKindCore)
	ctx := context.Background()
	act := testutil.SeedActivity(t, ctx, f.db, f.lesson, lesson.KindExplanation, lesson.StatusRunning)
	steps := testutil.SeedSteps(t, ctx, f.db, act.ID, 1)

	f.vis.err = errors.New("model unavailable")
	_, err := f.stage.Visuals(ctx, VisualRequest{Lesson: f.lesson, Activity: act, Steps: steps})
	require.ErrorIs(t, err, ErrVisualFailed)
}

func imageSteps(t *testing.T, f *fixture, act *lesson.Activity, prompts ...string) []*lesson.Step {
	t.Helper()
	steps := testutil.SeedSteps(t, context.Background(), f.db, act.ID, len(prompts))
	for i, st := range steps {
		raw, _ := json.Marshal(lesson.VisualPayload{Kind: lesson.VisualImage, Prompt: prompts[i]})
		st.Visual = datatypes.JSON(raw)
		require.NoError(t, f.db.Save(st).Error)
	}
	return steps
}

func TestImagesRerunIsNoopWhenURLsPresent(t *testing.T) {
	f := newFixture(t, lesson.LessonKindCore)
	ctx := context.Background()
	act := testutil.SeedActivity(t, ctx, f.db, f.lesson, lesson.KindBackground, lesson.StatusRunning)
	steps := imageSteps(t, f, act, "a leaf", "a root")
	for i, st := range steps {
		st.ImageURL = "https://cdn.test/existing-" + string(rune('a'+i)) + ".png"
		require.NoError(t, f.db.Save(st).Error)
	}

	out, err := f.stage.Images(ctx, f.lesson.ID, act, steps)
	require.NoError(t, err)
	assert.Equal(t, int32(0), f.img.calls.Load())
	assert.Equal(t, "https://cdn.test/existing-a.png", out[0].ImageURL)
	assert.Equal(t, "https://cdn.test/existing-b.png", out[1].ImageURL)
	assert.Equal(t, 0, f.store.Len())
}

func TestImagesTolerateSingleRenderFailure(t *testing.T) {
	f := newFixture(t, lesson.LessonKindCore)
	ctx := context.Background()
	act := testutil.SeedActivity(t, ctx, f.db, f.lesson, lesson.KindMechanics, lesson.StatusRunning)
	steps := imageSteps(t, f, act, "a gear", "a broken lever", "a pulley")
	f.img.failOn = "broken"

	_, err := f.stage.Images(ctx, f.lesson.ID, act, steps)
	require.NoError(t, err)
	assert.Equal(t, int32(3), f.img.calls.Load())

	stored := f.steps(t, act.ID)
	assert.NotEmpty(t, stored[0].ImageURL)
	assert.Empty(t, stored[1].ImageURL)
	assert.NotEmpty(t, stored[2].ImageURL)

	// only the missing one is retried
	f.img.failOn = ""
	_, err = f.stage.Images(ctx, f.lesson.ID, act, stored)
	require.NoError(t, err)
	assert.Equal(t, int32(4), f.img.calls.Load())
}

func TestImagesRenderSelectImageOptions(t *testing.T) {
	f := newFixture(t, lesson.LessonKindCore)
	ctx := context.Background()
	act := testutil.SeedActivity(t, ctx, f.db, f.lesson, lesson.KindQuiz, lesson.StatusRunning)
	content, _ := json.Marshal(lesson.SelectImageContent{
		Question: "Which one makes sugar?",
		Options: []lesson.SelectImageOption{
			{ID: "a", Prompt: "a leaf", IsCorrect: true},
			{ID: "b", Prompt: "a rock"},
		},
	})
	st := &lesson.Step{ActivityID: act.ID, Kind: lesson.StepSelectImage, Content: datatypes.JSON(content)}
	_, err := f.repos.Steps.Create(dbctx.Context{Ctx: ctx}, []*lesson.Step{st})
	require.NoError(t, err)

	_, err = f.stage.Images(ctx, f.lesson.ID, act, []*lesson.Step{st})
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.img.calls.Load())

	stored := f.steps(t, act.ID)
	var got lesson.SelectImageContent
	require.NoError(t, json.Unmarshal(stored[0].Content, &got))
	assert.Empty(t, got.MissingImages())
	assert.Contains(t, got.Options[0].ImageURL, st.ID.String()+"-a")
}

func TestWordAudioPronouncesOnceAndRendersSpeech(t *testing.T) {
	f := newFixture(t, lesson.LessonKindLanguage)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	act := testutil.SeedActivity(t, ctx, f.db, f.lesson, lesson.KindVocabulary, lesson.StatusRunning)

	pair := lessons.LanguagePair{OrganizationID: f.lesson.OrganizationID, TargetLanguage: "es", UserLanguage: "en"}
	words, err := f.repos.Words.Upsert(dbc, pair, []*lesson.Word{{Word: "manzana", Translation: "apple"}, {Word: "pan", Translation: "bread"}})
	require.NoError(t, err)
	var steps []*lesson.Step
	for i, w := range words {
		steps = append(steps, &lesson.Step{ActivityID: act.ID, Kind: lesson.StepVocabulary, Position: i, WordID: testutil.PtrUUID(w.ID), Content: datatypes.JSON(`{}`)})
	}
	_, err = f.repos.Steps.Create(dbc, steps)
	require.NoError(t, err)

	require.NoError(t, f.stage.WordAudio(ctx, f.lesson, act, steps))
	assert.Equal(t, int32(1), f.pron.calls.Load())
	assert.Equal(t, int32(2), f.speak.calls.Load())

	stored, err := f.repos.Words.GetByIDs(dbc, []uuid.UUID{words[0].ID, words[1].ID})
	require.NoError(t, err)
	for _, w := range stored {
		assert.NotEmpty(t, w.Pronunciation)
		assert.NotEmpty(t, w.AudioURL)
	}
	for _, st := range f.steps(t, act.ID) {
		assert.NotEmpty(t, st.AudioURL)
	}

	// resume: nothing left to do
	require.NoError(t, f.stage.WordAudio(ctx, f.lesson, act, f.steps(t, act.ID)))
	assert.Equal(t, int32(1), f.pron.calls.Load())
	assert.Equal(t, int32(2), f.speak.calls.Load())
}

func TestWordAudioPronunciationFailureIsBulk(t *testing.T) {
	f := newFixture(t, lesson.LessonKindLanguage)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	act := testutil.SeedActivity(t, ctx, f.db, f.lesson, lesson.KindVocabulary, lesson.StatusRunning)
	pair := lessons.LanguagePair{OrganizationID: f.lesson.OrganizationID, TargetLanguage: "es", UserLanguage: "en"}
	words, err := f.repos.Words.Upsert(dbc, pair, []*lesson.Word{{Word: "queso", Translation: "cheese"}})
	require.NoError(t, err)
	steps := []*lesson.Step{{ActivityID: act.ID, Kind: lesson.StepVocabulary, WordID: testutil.PtrUUID(words[0].ID), Content: datatypes.JSON(`{}`)}}
	_, err = f.repos.Steps.Create(dbc, steps)
	require.NoError(t, err)

	f.pron.err = errors.New("quota")
	err = f.stage.WordAudio(ctx, f.lesson, act, steps)
	require.ErrorIs(t, err, ErrPronunciationFailed)
	assert.Equal(t, int32(0), f.speak.calls.Load())
}

func TestSentenceAudioCopiesURLToSteps(t *testing.T) {
	f := newFixture(t, lesson.LessonKindLanguage)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	act := testutil.SeedActivity(t, ctx, f.db, f.lesson, lesson.KindReading, lesson.StatusRunning)
	pair := lessons.LanguagePair{OrganizationID: f.lesson.OrganizationID, TargetLanguage: "es", UserLanguage: "en"}
	sentences, err := f.repos.Sentences.Upsert(dbc, pair, []*lesson.Sentence{{Sentence: "Quiero pan.", Translation: "I want bread."}})
	require.NoError(t, err)
	steps := []*lesson.Step{{ActivityID: act.ID, Kind: lesson.StepReading, SentenceID: testutil.PtrUUID(sentences[0].ID), Content: datatypes.JSON(`{}`)}}
	_, err = f.repos.Steps.Create(dbc, steps)
	require.NoError(t, err)

	require.NoError(t, f.stage.SentenceAudio(ctx, f.lesson, act, steps))
	assert.Equal(t, int32(1), f.speak.calls.Load())
	stored := f.steps(t, act.ID)
	require.Len(t, stored, 1)
	assert.Equal(t, "https://cdn.test/audio/sentences/"+sentences[0].ID.String()+".mp3", stored[0].AudioURL)
}
