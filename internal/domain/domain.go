package domain

import (
	"github.com/yungbote/lessonforge/internal/domain/lesson"
)

const (
	StatusPending   = lesson.StatusPending
	StatusRunning   = lesson.StatusRunning
	StatusCompleted = lesson.StatusCompleted
	StatusFailed    = lesson.StatusFailed
)

type (
	ActivityKind     = lesson.ActivityKind
	GenerationStatus = lesson.GenerationStatus
	StepKind         = lesson.StepKind
	LessonKind       = lesson.LessonKind

	Lesson          = lesson.Lesson
	Activity        = lesson.Activity
	Step            = lesson.Step
	Word            = lesson.Word
	LessonWord      = lesson.LessonWord
	Sentence        = lesson.Sentence
	LessonSentence  = lesson.LessonSentence
	GenerationRun   = lesson.GenerationRun
	GenerationEvent = lesson.GenerationEvent
)

// Models lists every persisted model in migration order.
func Models() []any {
	return []any{
		&lesson.Lesson{},
		&lesson.Activity{},
		&lesson.Step{},
		&lesson.Word{},
		&lesson.LessonWord{},
		&lesson.Sentence{},
		&lesson.LessonSentence{},
		&lesson.GenerationRun{},
		&lesson.GenerationEvent{},
	}
}
