package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/lessonforge/internal/data/repos/lessons"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
)

type LessonRepo = lessons.LessonRepo
type ActivityRepo = lessons.ActivityRepo
type StepRepo = lessons.StepRepo
type WordRepo = lessons.WordRepo
type SentenceRepo = lessons.SentenceRepo
type RunRepo = lessons.RunRepo
type EventRepo = lessons.EventRepo
type TxRunner = lessons.TxRunner

func NewLessonRepo(db *gorm.DB, baseLog *logger.Logger) LessonRepo {
	return lessons.NewLessonRepo(db, baseLog)
}
func NewActivityRepo(db *gorm.DB, baseLog *logger.Logger) ActivityRepo {
	return lessons.NewActivityRepo(db, baseLog)
}
func NewStepRepo(db *gorm.DB, baseLog *logger.Logger) StepRepo {
	return lessons.NewStepRepo(db, baseLog)
}
func NewWordRepo(db *gorm.DB, baseLog *logger.Logger) WordRepo {
	return lessons.NewWordRepo(db, baseLog)
}
func NewSentenceRepo(db *gorm.DB, baseLog *logger.Logger) SentenceRepo {
	return lessons.NewSentenceRepo(db, baseLog)
}
func NewRunRepo(db *gorm.DB, baseLog *logger.Logger) RunRepo {
	return lessons.NewRunRepo(db, baseLog)
}
func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	return lessons.NewEventRepo(db, baseLog)
}

// Set bundles every repo the generation engine touches.
type Set struct {
	Lessons    LessonRepo
	Activities ActivityRepo
	Steps      StepRepo
	Words      WordRepo
	Sentences  SentenceRepo
	Runs       RunRepo
	Events     EventRepo
	Tx         TxRunner
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		Lessons:    NewLessonRepo(db, baseLog),
		Activities: NewActivityRepo(db, baseLog),
		Steps:      NewStepRepo(db, baseLog),
		Words:      NewWordRepo(db, baseLog),
		Sentences:  NewSentenceRepo(db, baseLog),
		Runs:       NewRunRepo(db, baseLog),
		Events:     NewEventRepo(db, baseLog),
		Tx:         lessons.NewGormTxRunner(db),
	}
}
