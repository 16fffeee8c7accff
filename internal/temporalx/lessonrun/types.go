package lessonrun

import "time"

const (
	WorkflowGenerateLesson = "lesson_generate_workflow"
	WorkflowRetryActivity  = "activity_retry_workflow"

	ActivityGenerate      = "lesson_generate"
	ActivityMarkRunFailed = "lesson_mark_run_failed"
	ActivityRetry         = "activity_retry"

	// ErrTypeNotFound and ErrTypeUnsupported are non-retryable application
	// error types.
	ErrTypeNotFound    = "not_found"
	ErrTypeUnsupported = "unsupported_kind"
)

type GenerateInput struct {
	LessonID string `json:"lesson_id"`
	// Timeout bounds one attempt; zero uses the worker default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

type RetryInput struct {
	ActivityID string        `json:"activity_id"`
	Timeout    time.Duration `json:"timeout,omitempty"`
}

// RunParams is what the workflow hands its activities. RunID is derived from
// the workflow run so every attempt re-enters the same generation run.
type RunParams struct {
	LessonID   string `json:"lesson_id,omitempty"`
	ActivityID string `json:"activity_id,omitempty"`
	RunID      string `json:"run_id"`
	ExternalID string `json:"external_id,omitempty"`
}

type FailureParams struct {
	RunID    string `json:"run_id"`
	LessonID string `json:"lesson_id"`
	Error    string `json:"error"`
}

type Outcome struct {
	ActivityID string `json:"activity_id"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
	Steps      int64  `json:"steps"`
}

type Result struct {
	RunID      string    `json:"run_id"`
	LessonID   string    `json:"lesson_id"`
	Failed     int       `json:"failed"`
	Activities []Outcome `json:"activities"`
}
