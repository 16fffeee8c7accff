// Package collab adapts the OpenAI client to the enrichment collaborators.
package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/lessonforge/internal/clients/openai"
	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/generation/enrich"
	"github.com/yungbote/lessonforge/internal/generation/producers"
)

type Visuals struct {
	ai producers.JSONGenerator
}

func NewVisuals(ai producers.JSONGenerator) *Visuals { return &Visuals{ai: ai} }

var visualSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"visuals"},
	"properties": map[string]any{
		"visuals": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"step", "kind", "description", "prompt"},
				"properties": map[string]any{
					"step":        map[string]any{"type": "integer"},
					"kind":        map[string]any{"type": "string", "enum": []string{"image", "diagram", "quote", "none"}},
					"description": map[string]any{"type": "string"},
					"prompt":      map[string]any{"type": "string"},
				},
			},
		},
	},
}

const visualSystem = `You design the visual for each step of a lesson activity.
Return exactly one entry per step, keyed by the step number you were given.
Use kind "image" with a concrete illustration prompt when a picture helps,
"diagram" or "quote" when those fit better, and "none" otherwise.`

func (v *Visuals) Describe(ctx context.Context, req enrich.VisualRequest) enrich.VisualResult {
	var b strings.Builder
	if req.Lesson != nil {
		fmt.Fprintf(&b, "Lesson: %s\n", req.Lesson.Title)
	}
	if req.Activity != nil {
		fmt.Fprintf(&b, "Activity kind: %s\n\n", req.Activity.Kind)
	}
	for i, st := range req.Steps {
		fmt.Fprintf(&b, "Step %d (%s): %s\n", i, st.Kind, producers.StepText(st))
	}

	obj, err := v.ai.GenerateJSON(ctx, visualSystem, b.String(), "step_visuals", visualSchema)
	if err != nil {
		return enrich.VisualResult{Err: err}
	}
	var parsed struct {
		Visuals []struct {
			Step        int    `json:"step"`
			Kind        string `json:"kind"`
			Description string `json:"description"`
			Prompt      string `json:"prompt"`
		} `json:"visuals"`
	}
	if err := remarshal(obj, &parsed); err != nil {
		return enrich.VisualResult{Err: err}
	}
	out := make([]lesson.VisualPayload, len(req.Steps))
	seen := make([]bool, len(req.Steps))
	for _, e := range parsed.Visuals {
		if e.Step < 0 || e.Step >= len(out) || seen[e.Step] {
			continue
		}
		seen[e.Step] = true
		out[e.Step] = lesson.VisualPayload{Kind: lesson.VisualKind(e.Kind), Description: e.Description, Prompt: e.Prompt}
	}
	for i, ok := range seen {
		if !ok {
			return enrich.VisualResult{Err: fmt.Errorf("no visual returned for step %d", i)}
		}
	}
	return enrich.VisualResult{Data: out}
}

type Pronouncer struct {
	ai producers.JSONGenerator
}

func NewPronouncer(ai producers.JSONGenerator) *Pronouncer { return &Pronouncer{ai: ai} }

var pronunciationSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"words"},
	"properties": map[string]any{
		"words": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"word", "pronunciation"},
				"properties": map[string]any{
					"word":          map[string]any{"type": "string"},
					"pronunciation": map[string]any{"type": "string"},
				},
			},
		},
	},
}

func (p *Pronouncer) Pronounce(ctx context.Context, language string, words []string) enrich.PronunciationResult {
	system := "Give a learner-friendly pronunciation guide for each word, spelled for an English speaker. Return every word exactly as given."
	user := fmt.Sprintf("Language: %s\nWords:\n%s", language, strings.Join(words, "\n"))
	obj, err := p.ai.GenerateJSON(ctx, system, user, "word_pronunciations", pronunciationSchema)
	if err != nil {
		return enrich.PronunciationResult{Err: err}
	}
	var parsed struct {
		Words []struct {
			Word          string `json:"word"`
			Pronunciation string `json:"pronunciation"`
		} `json:"words"`
	}
	if err := remarshal(obj, &parsed); err != nil {
		return enrich.PronunciationResult{Err: err}
	}
	out := make(map[string]string, len(parsed.Words))
	for _, w := range parsed.Words {
		out[w.Word] = strings.TrimSpace(w.Pronunciation)
	}
	return enrich.PronunciationResult{Data: out}
}

type imageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (openai.ImageGeneration, error)
}

type Images struct {
	ai imageGenerator
}

func NewImages(ai imageGenerator) *Images { return &Images{ai: ai} }

func (i *Images) Render(ctx context.Context, prompt string) enrich.ImageResult {
	img, err := i.ai.GenerateImage(ctx, prompt)
	if err != nil {
		return enrich.ImageResult{Err: err}
	}
	return enrich.ImageResult{Data: img.Bytes, MimeType: img.MimeType}
}

type speechGenerator interface {
	GenerateSpeech(ctx context.Context, text string, language string) (openai.SpeechGeneration, error)
}

type Speaker struct {
	ai speechGenerator
}

func NewSpeaker(ai speechGenerator) *Speaker { return &Speaker{ai: ai} }

func (s *Speaker) Speak(ctx context.Context, text string, language string) enrich.AudioResult {
	sp, err := s.ai.GenerateSpeech(ctx, text, language)
	if err != nil {
		return enrich.AudioResult{Err: err}
	}
	return enrich.AudioResult{Data: sp.Bytes, MimeType: sp.MimeType}
}

func remarshal(in map[string]any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
