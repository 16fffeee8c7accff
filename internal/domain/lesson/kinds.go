package lesson

import "strings"

// ActivityKind tags one generation unit within a lesson.
type ActivityKind string

const (
	KindBackground     ActivityKind = "background"
	KindExplanation    ActivityKind = "explanation"
	KindMechanics      ActivityKind = "mechanics"
	KindQuiz           ActivityKind = "quiz"
	KindExamples       ActivityKind = "examples"
	KindStory          ActivityKind = "story"
	KindChallenge      ActivityKind = "challenge"
	KindReview         ActivityKind = "review"
	KindCustom         ActivityKind = "custom"
	KindVocabulary     ActivityKind = "vocabulary"
	KindReading        ActivityKind = "reading"
	KindListening      ActivityKind = "listening"
	KindGrammar        ActivityKind = "grammar"
	KindLanguageStory  ActivityKind = "language_story"
	KindLanguageReview ActivityKind = "language_review"
)

// AllKinds lists every kind in canonical lesson order.
var AllKinds = []ActivityKind{
	KindBackground,
	KindExplanation,
	KindMechanics,
	KindQuiz,
	KindExamples,
	KindStory,
	KindChallenge,
	KindReview,
	KindCustom,
	KindVocabulary,
	KindReading,
	KindListening,
	KindGrammar,
	KindLanguageStory,
	KindLanguageReview,
}

func (k ActivityKind) String() string { return string(k) }

func (k ActivityKind) Valid() bool {
	for _, known := range AllKinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKind accepts both snake_case and kebab-case spellings.
func ParseKind(s string) (ActivityKind, bool) {
	k := ActivityKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	return k, k.Valid()
}

// GenerationStatus is the persisted per-activity generation state.
type GenerationStatus string

const (
	StatusPending   GenerationStatus = "pending"
	StatusRunning   GenerationStatus = "running"
	StatusCompleted GenerationStatus = "completed"
	StatusFailed    GenerationStatus = "failed"
)

// LessonKind selects which activity family a lesson carries.
type LessonKind string

const (
	LessonKindCore     LessonKind = "core"
	LessonKindLanguage LessonKind = "language"
	LessonKindCustom   LessonKind = "custom"
)

// StepKind discriminates the shape of a step's content payload.
type StepKind string

const (
	StepStatic          StepKind = "static"
	StepMultipleChoice  StepKind = "multiple_choice"
	StepSelectImage     StepKind = "select_image"
	StepVocabulary      StepKind = "vocabulary"
	StepReading         StepKind = "reading"
	StepListening       StepKind = "listening"
	StepStoryIntro      StepKind = "story_intro"
	StepStoryChoice     StepKind = "story_choice"
	StepStoryReflection StepKind = "story_reflection"
)
