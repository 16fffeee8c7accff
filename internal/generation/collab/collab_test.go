package collab

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/yungbote/lessonforge/internal/clients/openai"
	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/generation/enrich"
)

type scriptedAI struct {
	out map[string]any
	err error
}

func (s *scriptedAI) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	return s.out, s.err
}

func steps(n int) []*lesson.Step {
	out := make([]*lesson.Step, n)
	for i := range out {
		out[i] = &lesson.Step{Kind: lesson.StepStatic, Content: datatypes.JSON(`{"text":"chlorophyll absorbs light"}`)}
	}
	return out
}

func TestVisualsOrdersByStepIndex(t *testing.T) {
	ai := &scriptedAI{out: map[string]any{"visuals": []any{
		map[string]any{"step": 1, "kind": "quote", "description": "q", "prompt": ""},
		map[string]any{"step": 0, "kind": "image", "description": "leaf", "prompt": "a leaf"},
	}}}
	res := NewVisuals(ai).Describe(context.Background(), enrich.VisualRequest{Steps: steps(2)})
	require.NoError(t, res.Err)
	require.Len(t, res.Data, 2)
	assert.Equal(t, lesson.VisualImage, res.Data[0].Kind)
	assert.Equal(t, lesson.VisualQuote, res.Data[1].Kind)
}

func TestVisualsMissingStepIsError(t *testing.T) {
	ai := &scriptedAI{out: map[string]any{"visuals": []any{
		map[string]any{"step": 0, "kind": "none", "description": "", "prompt": ""},
	}}}
	res := NewVisuals(ai).Describe(context.Background(), enrich.VisualRequest{Steps: steps(2)})
	assert.Error(t, res.Err)
}

func TestPronouncerMapsWords(t *testing.T) {
	ai := &scriptedAI{out: map[string]any{"words": []any{
		map[string]any{"word": "pan", "pronunciation": " pahn "},
	}}}
	res := NewPronouncer(ai).Pronounce(context.Background(), "es", []string{"pan"})
	require.NoError(t, res.Err)
	assert.Equal(t, "pahn", res.Data["pan"])

	res = NewPronouncer(&scriptedAI{err: errors.New("boom")}).Pronounce(context.Background(), "es", []string{"pan"})
	assert.Error(t, res.Err)
}

type fakeMedia struct{ err error }

func (f fakeMedia) GenerateImage(ctx context.Context, prompt string) (openai.ImageGeneration, error) {
	return openai.ImageGeneration{Bytes: []byte("png"), MimeType: "image/png"}, f.err
}

func (f fakeMedia) GenerateSpeech(ctx context.Context, text, language string) (openai.SpeechGeneration, error) {
	return openai.SpeechGeneration{Bytes: []byte("mp3"), MimeType: "audio/mpeg"}, f.err
}

func TestMediaAdaptersCarryErrorsAsValues(t *testing.T) {
	ok := NewImages(fakeMedia{}).Render(context.Background(), "a leaf")
	require.NoError(t, ok.Err)
	assert.Equal(t, "image/png", ok.MimeType)

	bad := NewSpeaker(fakeMedia{err: errors.New("tts down")}).Speak(context.Background(), "hola", "es")
	assert.Error(t, bad.Err)
}
