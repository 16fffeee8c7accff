package producers

import (
	"context"
	"errors"
	"strings"

	"github.com/yungbote/lessonforge/internal/domain/lesson"
)

const (
	backgroundPrompt  = "You write the background section of a lesson: the context, history and motivation a learner needs before the core idea. Return 3 to 6 short steps, each one self-contained paragraph."
	explanationPrompt = "You write the core explanation of a lesson. Build directly on the background provided. Return 4 to 8 short steps that introduce one idea each."
	mechanicsPrompt   = "You explain the mechanics behind the lesson's core idea: how it works step by step. Build on the explanation provided. Return 3 to 6 steps."
	examplesPrompt    = "You write worked, concrete examples that apply the explanation provided. Return 3 to 5 steps, one example each."
	customPrompt      = "You write a lesson activity following the activity focus exactly. Return 3 to 6 short steps."
)

var staticSchema = objectSchema(map[string]any{
	"steps": arrayOf(objectSchema(map[string]any{
		"text": stringSchema,
	})),
})

// staticProducer serves every kind whose output is a list of text steps.
type staticProducer struct {
	kind   lesson.ActivityKind
	ai     JSONGenerator
	system string
}

func newStaticProducer(kind lesson.ActivityKind, ai JSONGenerator, system string) *staticProducer {
	return &staticProducer{kind: kind, ai: ai, system: system}
}

func (p *staticProducer) Kind() lesson.ActivityKind { return p.kind }

func (p *staticProducer) Produce(ctx context.Context, in Input) (*Output, error) {
	if p.ai == nil {
		return nil, errors.New("ai client not configured")
	}
	user := lessonContext(in) + upstreamText(in, prerequisitesFor(p.kind)...)
	obj, err := p.ai.GenerateJSON(ctx, p.system, user, string(p.kind)+"_steps", staticSchema)
	if err != nil {
		return nil, err
	}
	var res struct {
		Steps []struct {
			Text string `json:"text"`
		} `json:"steps"`
	}
	if err := decode(obj, &res); err != nil {
		return nil, err
	}
	out := &Output{}
	for _, s := range res.Steps {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		out.Steps = append(out.Steps, StepDraft{Kind: lesson.StepStatic, Content: lesson.StaticContent{Text: text}})
	}
	return out, nil
}

// prerequisitesFor lists the upstream kinds whose content feeds a prompt.
func prerequisitesFor(kind lesson.ActivityKind) []lesson.ActivityKind {
	switch kind {
	case lesson.KindExplanation:
		return []lesson.ActivityKind{lesson.KindBackground}
	case lesson.KindMechanics, lesson.KindQuiz, lesson.KindExamples, lesson.KindStory, lesson.KindChallenge:
		return []lesson.ActivityKind{lesson.KindExplanation}
	case lesson.KindReview:
		return []lesson.ActivityKind{lesson.KindBackground, lesson.KindExplanation, lesson.KindMechanics, lesson.KindExamples}
	default:
		return nil
	}
}
