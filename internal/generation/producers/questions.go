package producers

import (
	"context"
	"errors"
	"strings"

	"github.com/yungbote/lessonforge/internal/domain/lesson"
)

const (
	quizPrompt   = "You write a short quiz on the explanation provided. Mix multiple_choice questions with select_image questions whose options are image prompts. Each question has exactly one correct option."
	reviewPrompt = "You write a cumulative review of the whole lesson provided. Mix multiple_choice questions with select_image questions whose options are image prompts. Each question has exactly one correct option."
)

var questionSchema = objectSchema(map[string]any{
	"questions": arrayOf(objectSchema(map[string]any{
		"kind":     map[string]any{"type": "string", "enum": []string{"multiple_choice", "select_image"}},
		"question": stringSchema,
		"options": arrayOf(objectSchema(map[string]any{
			"text":       stringSchema,
			"prompt":     stringSchema,
			"is_correct": boolSchema,
			"feedback":   stringSchema,
		})),
	})),
})

type questionResult struct {
	Questions []aiQuestion `json:"questions"`
}

type aiQuestion struct {
	Kind     string `json:"kind"`
	Question string `json:"question"`
	Options  []struct {
		Text      string `json:"text"`
		Prompt    string `json:"prompt"`
		IsCorrect bool   `json:"is_correct"`
		Feedback  string `json:"feedback"`
	} `json:"options"`
}

// questionProducer maps each question object 1:1 to a step whose shape follows
// the question's own sub-kind.
type questionProducer struct {
	kind   lesson.ActivityKind
	ai     JSONGenerator
	system string
}

func newQuestionProducer(kind lesson.ActivityKind, ai JSONGenerator, system string) *questionProducer {
	return &questionProducer{kind: kind, ai: ai, system: system}
}

func (p *questionProducer) Kind() lesson.ActivityKind { return p.kind }

func (p *questionProducer) Produce(ctx context.Context, in Input) (*Output, error) {
	if p.ai == nil {
		return nil, errors.New("ai client not configured")
	}
	user := lessonContext(in) + upstreamText(in, prerequisitesFor(p.kind)...)
	obj, err := p.ai.GenerateJSON(ctx, p.system, user, string(p.kind)+"_questions", questionSchema)
	if err != nil {
		return nil, err
	}
	var res questionResult
	if err := decode(obj, &res); err != nil {
		return nil, err
	}
	out := &Output{}
	for _, q := range res.Questions {
		if d, ok := questionStep(q); ok {
			out.Steps = append(out.Steps, d)
		}
	}
	return out, nil
}

func questionStep(q aiQuestion) (StepDraft, bool) {
	question := strings.TrimSpace(q.Question)
	if question == "" || len(q.Options) < 2 {
		return StepDraft{}, false
	}
	if q.Kind == string(lesson.StepSelectImage) {
		c := lesson.SelectImageContent{Question: question}
		for i, o := range q.Options {
			prompt := strings.TrimSpace(o.Prompt)
			if prompt == "" {
				prompt = strings.TrimSpace(o.Text)
			}
			c.Options = append(c.Options, lesson.SelectImageOption{
				ID:        optionID(i),
				Prompt:    prompt,
				IsCorrect: o.IsCorrect,
				Feedback:  o.Feedback,
			})
		}
		return StepDraft{Kind: lesson.StepSelectImage, Content: c}, true
	}
	c := lesson.MultipleChoiceContent{Question: question}
	for i, o := range q.Options {
		c.Options = append(c.Options, lesson.MultipleChoiceOption{
			ID:        optionID(i),
			Text:      strings.TrimSpace(o.Text),
			IsCorrect: o.IsCorrect,
			Feedback:  o.Feedback,
		})
	}
	return StepDraft{Kind: lesson.StepMultipleChoice, Content: c}, true
}
