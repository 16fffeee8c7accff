package producers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/lessonforge/internal/domain/lesson"
)

func targetLanguage(in Input) string {
	if in.Lesson != nil && in.Lesson.TargetLanguage != "" {
		return in.Lesson.TargetLanguage
	}
	return "es"
}

func userLanguage(in Input) string {
	if in.Lesson != nil && in.Lesson.UserLanguage != "" {
		return in.Lesson.UserLanguage
	}
	return "en"
}

func languageHeader(in Input) string {
	return lessonContext(in) + fmt.Sprintf("Target language: %s\nLearner language: %s\n", targetLanguage(in), userLanguage(in))
}

var wordsSchema = objectSchema(map[string]any{
	"words": arrayOf(objectSchema(map[string]any{
		"word":        stringSchema,
		"translation": stringSchema,
	})),
})

type vocabularyProducer struct {
	ai JSONGenerator
}

func (p *vocabularyProducer) Kind() lesson.ActivityKind { return lesson.KindVocabulary }

func (p *vocabularyProducer) Produce(ctx context.Context, in Input) (*Output, error) {
	if p.ai == nil {
		return nil, errors.New("ai client not configured")
	}
	system := "You pick 6 to 10 useful vocabulary words for the lesson topic, in the target language, with a translation into the learner language. Use the dictionary form of each word."
	obj, err := p.ai.GenerateJSON(ctx, system, languageHeader(in), "vocabulary_words", wordsSchema)
	if err != nil {
		return nil, err
	}
	var res struct {
		Words []WordSeed `json:"words"`
	}
	if err := decode(obj, &res); err != nil {
		return nil, err
	}
	out := &Output{}
	seen := map[string]bool{}
	for _, w := range res.Words {
		word := strings.TrimSpace(w.Word)
		key := strings.ToLower(word)
		if word == "" || seen[key] {
			continue
		}
		seen[key] = true
		idx := len(out.Words)
		out.Words = append(out.Words, WordDraft{Word: word, Translation: strings.TrimSpace(w.Translation)})
		out.Steps = append(out.Steps, StepDraft{
			Kind:      lesson.StepVocabulary,
			Content:   lesson.VocabularyContent{Word: word, Translation: strings.TrimSpace(w.Translation)},
			WordIndex: intPtr(idx),
		})
	}
	return out, nil
}

// SeedsFromSteps recovers the word list from persisted vocabulary steps.
func SeedsFromSteps(steps []*lesson.Step) []WordSeed {
	var out []WordSeed
	for _, s := range steps {
		if s == nil || s.Kind != lesson.StepVocabulary {
			continue
		}
		var c lesson.VocabularyContent
		if err := json.Unmarshal(s.Content, &c); err != nil || strings.TrimSpace(c.Word) == "" {
			continue
		}
		out = append(out, WordSeed{Word: c.Word, Translation: c.Translation})
	}
	return out
}

var sentencesSchema = objectSchema(map[string]any{
	"sentences": arrayOf(objectSchema(map[string]any{
		"sentence":    stringSchema,
		"translation": stringSchema,
	})),
})

type readingProducer struct {
	ai JSONGenerator
}

func (p *readingProducer) Kind() lesson.ActivityKind { return lesson.KindReading }

func (p *readingProducer) Produce(ctx context.Context, in Input) (*Output, error) {
	if p.ai == nil {
		return nil, errors.New("ai client not configured")
	}
	seeds := in.SeedWords
	if len(seeds) == 0 {
		seeds = SeedsFromSteps(in.Upstream[lesson.KindVocabulary])
	}
	if len(seeds) == 0 {
		return &Output{}, nil
	}
	var b strings.Builder
	b.WriteString(languageHeader(in))
	b.WriteString("Words to practice:\n")
	for _, w := range seeds {
		fmt.Fprintf(&b, "- %s (%s)\n", w.Word, w.Translation)
	}
	system := "You write 4 to 8 short reading sentences in the target language. Every sentence uses at least one of the given words. Give a translation into the learner language."
	obj, err := p.ai.GenerateJSON(ctx, system, b.String(), "reading_sentences", sentencesSchema)
	if err != nil {
		return nil, err
	}
	var res struct {
		Sentences []struct {
			Sentence    string `json:"sentence"`
			Translation string `json:"translation"`
		} `json:"sentences"`
	}
	if err := decode(obj, &res); err != nil {
		return nil, err
	}
	out := &Output{}
	seen := map[string]bool{}
	for _, s := range res.Sentences {
		text := strings.TrimSpace(s.Sentence)
		if text == "" || seen[text] {
			continue
		}
		seen[text] = true
		idx := len(out.Sentences)
		out.Sentences = append(out.Sentences, SentenceDraft{Sentence: text, Translation: strings.TrimSpace(s.Translation)})
		out.Steps = append(out.Steps, StepDraft{
			Kind:          lesson.StepReading,
			Content:       lesson.SentenceContent{Sentence: text, Translation: strings.TrimSpace(s.Translation)},
			SentenceIndex: intPtr(idx),
		})
	}
	return out, nil
}

var explainAndPracticeSchema = objectSchema(map[string]any{
	"paragraphs": arrayOf(stringSchema),
	"questions": arrayOf(objectSchema(map[string]any{
		"question": stringSchema,
		"options": arrayOf(objectSchema(map[string]any{
			"text":       stringSchema,
			"is_correct": boolSchema,
			"feedback":   stringSchema,
		})),
	})),
})

type explainAndPractice struct {
	Paragraphs []string `json:"paragraphs"`
	Questions  []struct {
		Question string `json:"question"`
		Options  []struct {
			Text      string `json:"text"`
			IsCorrect bool   `json:"is_correct"`
			Feedback  string `json:"feedback"`
		} `json:"options"`
	} `json:"questions"`
}

func (r explainAndPractice) steps() []StepDraft {
	var out []StepDraft
	for _, p := range r.Paragraphs {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, StepDraft{Kind: lesson.StepStatic, Content: lesson.StaticContent{Text: p}})
		}
	}
	for _, q := range r.Questions {
		if strings.TrimSpace(q.Question) == "" || len(q.Options) < 2 {
			continue
		}
		c := lesson.MultipleChoiceContent{Question: strings.TrimSpace(q.Question)}
		for i, o := range q.Options {
			c.Options = append(c.Options, lesson.MultipleChoiceOption{
				ID:        optionID(i),
				Text:      strings.TrimSpace(o.Text),
				IsCorrect: o.IsCorrect,
				Feedback:  o.Feedback,
			})
		}
		out = append(out, StepDraft{Kind: lesson.StepMultipleChoice, Content: c})
	}
	return out
}

type grammarProducer struct {
	ai JSONGenerator
}

func (p *grammarProducer) Kind() lesson.ActivityKind { return lesson.KindGrammar }

func (p *grammarProducer) Produce(ctx context.Context, in Input) (*Output, error) {
	if p.ai == nil {
		return nil, errors.New("ai client not configured")
	}
	system := "You explain one grammar point relevant to the lesson topic in the learner language, with target language examples, then write 3 to 5 multiple choice exercises."
	obj, err := p.ai.GenerateJSON(ctx, system, languageHeader(in), "grammar_lesson", explainAndPracticeSchema)
	if err != nil {
		return nil, err
	}
	var res explainAndPractice
	if err := decode(obj, &res); err != nil {
		return nil, err
	}
	return &Output{Steps: res.steps()}, nil
}

type languageStoryProducer struct {
	ai JSONGenerator
}

func (p *languageStoryProducer) Kind() lesson.ActivityKind { return lesson.KindLanguageStory }

func (p *languageStoryProducer) Produce(ctx context.Context, in Input) (*Output, error) {
	if p.ai == nil {
		return nil, errors.New("ai client not configured")
	}
	system := "You write a short story in the target language at the learner's level about the lesson topic, split into 3 to 6 paragraphs, then 2 to 4 multiple choice comprehension questions in the learner language."
	obj, err := p.ai.GenerateJSON(ctx, system, languageHeader(in), "language_story", explainAndPracticeSchema)
	if err != nil {
		return nil, err
	}
	var res explainAndPractice
	if err := decode(obj, &res); err != nil {
		return nil, err
	}
	return &Output{Steps: res.steps()}, nil
}
