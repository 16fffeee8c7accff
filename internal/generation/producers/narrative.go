package producers

import (
	"context"
	"errors"
	"strings"

	"github.com/yungbote/lessonforge/internal/domain/lesson"
)

const (
	storyPrompt     = "You write a short interactive story that puts the explanation provided into a real situation. Give an intro, one decision point with 2 to 4 choices and their consequences, and a closing reflection."
	challengePrompt = "You write a practical challenge built on the explanation provided. Give an intro framing the problem, one decision point with 2 to 4 choices and their consequences, and a closing reflection."
)

var narrativeSchema = objectSchema(map[string]any{
	"intro":     stringSchema,
	"situation": stringSchema,
	"choices": arrayOf(objectSchema(map[string]any{
		"text":        stringSchema,
		"consequence": stringSchema,
		"is_correct":  boolSchema,
	})),
	"reflection": stringSchema,
})

// narrativeProducer expands one AI result into intro, choice and reflection
// steps; intro and reflection are also kept as activity metadata.
type narrativeProducer struct {
	kind   lesson.ActivityKind
	ai     JSONGenerator
	system string
}

func newNarrativeProducer(kind lesson.ActivityKind, ai JSONGenerator, system string) *narrativeProducer {
	return &narrativeProducer{kind: kind, ai: ai, system: system}
}

func (p *narrativeProducer) Kind() lesson.ActivityKind { return p.kind }

func (p *narrativeProducer) Produce(ctx context.Context, in Input) (*Output, error) {
	if p.ai == nil {
		return nil, errors.New("ai client not configured")
	}
	user := lessonContext(in) + upstreamText(in, prerequisitesFor(p.kind)...)
	obj, err := p.ai.GenerateJSON(ctx, p.system, user, string(p.kind)+"_narrative", narrativeSchema)
	if err != nil {
		return nil, err
	}
	var res struct {
		Intro     string `json:"intro"`
		Situation string `json:"situation"`
		Choices   []struct {
			Text        string `json:"text"`
			Consequence string `json:"consequence"`
			IsCorrect   bool   `json:"is_correct"`
		} `json:"choices"`
		Reflection string `json:"reflection"`
	}
	if err := decode(obj, &res); err != nil {
		return nil, err
	}

	choice := lesson.StoryChoiceContent{Situation: strings.TrimSpace(res.Situation)}
	for i, c := range res.Choices {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		choice.Options = append(choice.Options, lesson.StoryChoiceOption{
			ID:          optionID(i),
			Text:        strings.TrimSpace(c.Text),
			Consequence: strings.TrimSpace(c.Consequence),
			IsCorrect:   c.IsCorrect,
		})
	}
	// a narrative without a decision point is not usable
	if len(choice.Options) < 2 {
		return &Output{}, nil
	}

	intro := strings.TrimSpace(res.Intro)
	reflection := strings.TrimSpace(res.Reflection)
	out := &Output{Metadata: &lesson.ActivityMetadata{Intro: intro, Reflection: reflection}}
	if intro != "" {
		out.Steps = append(out.Steps, StepDraft{Kind: lesson.StepStoryIntro, Content: lesson.StaticContent{Text: intro}})
	}
	out.Steps = append(out.Steps, StepDraft{Kind: lesson.StepStoryChoice, Content: choice})
	if reflection != "" {
		out.Steps = append(out.Steps, StepDraft{Kind: lesson.StepStoryReflection, Content: lesson.StaticContent{Text: reflection}})
	}
	return out, nil
}
