package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/lessonforge/internal/domain/lesson"
)

// JSONGenerator is the AI content collaborator.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

type WordSeed struct {
	Word        string
	Translation string
}

type Input struct {
	Lesson   *lesson.Lesson
	Activity *lesson.Activity
	// Upstream holds each prerequisite's content steps.
	Upstream map[lesson.ActivityKind][]*lesson.Step
	// SeedWords seeds the reading kind.
	SeedWords []WordSeed
}

// StepDraft is a step before persistence. WordIndex/SentenceIndex point into
// the Output's Words/Sentences; WordID/SentenceID reference existing rows.
type StepDraft struct {
	Kind          lesson.StepKind
	Content       any
	WordIndex     *int
	SentenceIndex *int
	WordID        *uuid.UUID
	SentenceID    *uuid.UUID
}

type WordDraft struct {
	Word        string
	Translation string
}

type SentenceDraft struct {
	Sentence    string
	Translation string
}

type Output struct {
	Steps     []StepDraft
	Metadata  *lesson.ActivityMetadata
	Words     []WordDraft
	Sentences []SentenceDraft
}

func (o *Output) Empty() bool { return o == nil || len(o.Steps) == 0 }

type Producer interface {
	Kind() lesson.ActivityKind
	Produce(ctx context.Context, in Input) (*Output, error)
}

type Registry map[lesson.ActivityKind]Producer

func (r Registry) Get(kind lesson.ActivityKind) (Producer, bool) {
	p, ok := r[kind]
	return p, ok
}

// NewRegistry wires one producer per kind over the AI collaborator.
func NewRegistry(ai JSONGenerator) Registry {
	list := []Producer{
		newStaticProducer(lesson.KindBackground, ai, backgroundPrompt),
		newStaticProducer(lesson.KindExplanation, ai, explanationPrompt),
		newStaticProducer(lesson.KindMechanics, ai, mechanicsPrompt),
		newStaticProducer(lesson.KindExamples, ai, examplesPrompt),
		newStaticProducer(lesson.KindCustom, ai, customPrompt),
		newQuestionProducer(lesson.KindQuiz, ai, quizPrompt),
		newQuestionProducer(lesson.KindReview, ai, reviewPrompt),
		newNarrativeProducer(lesson.KindStory, ai, storyPrompt),
		newNarrativeProducer(lesson.KindChallenge, ai, challengePrompt),
		&vocabularyProducer{ai: ai},
		&readingProducer{ai: ai},
		&grammarProducer{ai: ai},
		&languageStoryProducer{ai: ai},
		&listeningProducer{},
		&languageReviewProducer{},
	}
	out := make(Registry, len(list))
	for _, p := range list {
		out[p.Kind()] = p
	}
	return out
}

// decode round-trips an AI object into a typed struct.
func decode(obj map[string]any, out any) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode ai result: %w", err)
	}
	return nil
}

func lessonContext(in Input) string {
	var b strings.Builder
	if in.Lesson != nil {
		fmt.Fprintf(&b, "Lesson: %s\n", in.Lesson.Title)
		if in.Lesson.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", in.Lesson.Description)
		}
		if in.Lesson.ChapterTitle != "" {
			fmt.Fprintf(&b, "Chapter: %s\n", in.Lesson.ChapterTitle)
		}
		if in.Lesson.CourseTitle != "" {
			fmt.Fprintf(&b, "Course: %s\n", in.Lesson.CourseTitle)
		}
	}
	if in.Activity != nil {
		if in.Activity.Title != "" {
			fmt.Fprintf(&b, "Activity: %s\n", in.Activity.Title)
		}
		if in.Activity.Description != "" {
			fmt.Fprintf(&b, "Activity focus: %s\n", in.Activity.Description)
		}
		fmt.Fprintf(&b, "Write in language: %s\n", languageOf(in))
	}
	return b.String()
}

func languageOf(in Input) string {
	if in.Activity != nil && in.Activity.Language != "" {
		return in.Activity.Language
	}
	if in.Lesson != nil && in.Lesson.UserLanguage != "" {
		return in.Lesson.UserLanguage
	}
	return "en"
}

// upstreamText flattens prerequisite content into prompt text, in the order
// kinds are listed.
func upstreamText(in Input, kinds ...lesson.ActivityKind) string {
	var b strings.Builder
	for _, k := range kinds {
		steps := in.Upstream[k]
		if len(steps) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s\n", k)
		for _, s := range steps {
			if t := StepText(s); t != "" {
				b.WriteString("- ")
				b.WriteString(t)
				b.WriteString("\n")
			}
		}
	}
	return b.String()
}

// StepText extracts the readable text of a step regardless of its shape.
func StepText(s *lesson.Step) string {
	if s == nil || len(s.Content) == 0 {
		return ""
	}
	var probe struct {
		Text      string `json:"text"`
		Question  string `json:"question"`
		Situation string `json:"situation"`
		Word      string `json:"word"`
		Sentence  string `json:"sentence"`
	}
	if err := json.Unmarshal(s.Content, &probe); err != nil {
		return ""
	}
	for _, v := range []string{probe.Text, probe.Question, probe.Situation, probe.Word, probe.Sentence} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func objectSchema(props map[string]any) map[string]any {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	sort.Strings(required)
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func arrayOf(item map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": item}
}

var (
	stringSchema = map[string]any{"type": "string"}
	boolSchema   = map[string]any{"type": "boolean"}
)

func optionID(i int) string { return string(rune('a' + i)) }

func intPtr(i int) *int { return &i }
