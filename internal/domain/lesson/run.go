package lesson

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RunTriggerPipeline = "pipeline"
	RunTriggerRetry    = "retry"

	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// GenerationRun records one orchestrator execution. Its ID is stamped on every
// activity the run claims.
type GenerationRun struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	LessonID   uuid.UUID  `gorm:"type:uuid;column:lesson_id;not null;index" json:"lesson_id"`
	ActivityID *uuid.UUID `gorm:"type:uuid;column:activity_id;index" json:"activity_id,omitempty"`
	Trigger    string     `gorm:"column:run_trigger;not null;default:'pipeline'" json:"trigger"`
	Status     string     `gorm:"column:status;not null;default:'running';index" json:"status"`
	Error      string     `gorm:"column:error;type:text" json:"error,omitempty"`

	// ExternalID is the workflow run id when the run is hosted by a durable runtime.
	ExternalID string `gorm:"column:external_id;index" json:"external_id,omitempty"`

	StartedAt  time.Time  `gorm:"column:started_at;autoCreateTime" json:"started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (GenerationRun) TableName() string { return "generation_run" }

func (r *GenerationRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// GenerationEvent is an append-only (run, step, status) record.
type GenerationEvent struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RunID      uuid.UUID  `gorm:"type:uuid;column:run_id;not null;index" json:"run_id"`
	LessonID   uuid.UUID  `gorm:"type:uuid;column:lesson_id;index" json:"lesson_id"`
	ActivityID *uuid.UUID `gorm:"type:uuid;column:activity_id;index" json:"activity_id,omitempty"`
	Step       string     `gorm:"column:step;not null" json:"step"`
	Status     string     `gorm:"column:status;not null" json:"status"`
	Detail     string     `gorm:"column:detail;type:text" json:"detail,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (GenerationEvent) TableName() string { return "generation_event" }

func (e *GenerationEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
