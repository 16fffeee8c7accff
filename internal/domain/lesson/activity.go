package lesson

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Lesson struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID  `gorm:"type:uuid;column:organization_id;index" json:"organization_id"`
	Kind           LessonKind `gorm:"column:kind;not null;default:'core';index" json:"kind"`
	Title          string     `gorm:"column:title;not null" json:"title"`
	Description    string     `gorm:"column:description;type:text" json:"description,omitempty"`
	ChapterTitle   string     `gorm:"column:chapter_title" json:"chapter_title,omitempty"`
	CourseTitle    string     `gorm:"column:course_title" json:"course_title,omitempty"`
	TargetLanguage string     `gorm:"column:target_language" json:"target_language,omitempty"`
	UserLanguage   string     `gorm:"column:user_language;not null;default:'en'" json:"user_language"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Lesson) TableName() string { return "lesson" }

func (l *Lesson) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

type Activity struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	LessonID       uuid.UUID    `gorm:"type:uuid;column:lesson_id;not null;index" json:"lesson_id"`
	OrganizationID uuid.UUID    `gorm:"type:uuid;column:organization_id;index" json:"organization_id"`
	Kind           ActivityKind `gorm:"column:kind;not null;index" json:"kind"`
	Language       string       `gorm:"column:language;not null;default:'en'" json:"language"`
	Title          string       `gorm:"column:title" json:"title,omitempty"`
	Description    string       `gorm:"column:description;type:text" json:"description,omitempty"`
	Position       int          `gorm:"column:position;not null;default:0" json:"position"`

	GenerationStatus        GenerationStatus `gorm:"column:generation_status;not null;default:'pending';index" json:"generation_status"`
	GenerationRunID         *uuid.UUID       `gorm:"type:uuid;column:generation_run_id;index" json:"generation_run_id,omitempty"`
	GenerationFailureReason string           `gorm:"column:generation_failure_reason" json:"generation_failure_reason,omitempty"`

	// Metadata holds activity-level output such as a narrative intro/reflection.
	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`

	// StepCount is filled by repo reads that join the step table.
	StepCount int64 `gorm:"column:step_count;->;-:migration" json:"step_count"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Activity) TableName() string { return "activity" }

func (a *Activity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.GenerationStatus == "" {
		a.GenerationStatus = StatusPending
	}
	return nil
}

// OwnedBy reports whether runID is the run that last claimed this activity.
func (a *Activity) OwnedBy(runID uuid.UUID) bool {
	return a != nil && a.GenerationRunID != nil && *a.GenerationRunID == runID
}

// ActivityMetadata is the activity-level payload written alongside steps.
type ActivityMetadata struct {
	Intro      string `json:"intro,omitempty"`
	Reflection string `json:"reflection,omitempty"`
}
