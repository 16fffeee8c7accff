package producers

import (
	"context"

	"github.com/yungbote/lessonforge/internal/domain/lesson"
)

// listeningProducer re-references the reading sentences; no AI call and no
// copy of the reading text.
type listeningProducer struct{}

func (listeningProducer) Kind() lesson.ActivityKind { return lesson.KindListening }

func (listeningProducer) Produce(ctx context.Context, in Input) (*Output, error) {
	out := &Output{}
	for _, s := range in.Upstream[lesson.KindReading] {
		if s == nil || s.SentenceID == nil {
			continue
		}
		id := *s.SentenceID
		out.Steps = append(out.Steps, StepDraft{Kind: lesson.StepListening, Content: lesson.RefContent{SentenceID: &id}, SentenceID: &id})
	}
	return out, nil
}

// languageReviewProducer re-references vocabulary words then reading
// sentences; no AI call.
type languageReviewProducer struct{}

func (languageReviewProducer) Kind() lesson.ActivityKind { return lesson.KindLanguageReview }

func (languageReviewProducer) Produce(ctx context.Context, in Input) (*Output, error) {
	out := &Output{}
	for _, s := range in.Upstream[lesson.KindVocabulary] {
		if s == nil || s.WordID == nil {
			continue
		}
		id := *s.WordID
		out.Steps = append(out.Steps, StepDraft{Kind: lesson.StepVocabulary, Content: lesson.RefContent{WordID: &id}, WordID: &id})
	}
	for _, s := range in.Upstream[lesson.KindReading] {
		if s == nil || s.SentenceID == nil {
			continue
		}
		id := *s.SentenceID
		out.Steps = append(out.Steps, StepDraft{Kind: lesson.StepReading, Content: lesson.RefContent{SentenceID: &id}, SentenceID: &id})
	}
	return out, nil
}
