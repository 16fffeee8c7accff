package lessonrun

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const defaultAttemptTimeout = 2 * time.Hour

// RunIDFor maps a workflow run id onto the generation run id. Temporal run ids
// are UUIDs; anything else is hashed so the mapping stays stable.
func RunIDFor(workflowRunID string) uuid.UUID {
	if id, err := uuid.Parse(strings.TrimSpace(workflowRunID)); err == nil && id != uuid.Nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("temporal-run:"+workflowRunID))
}

func generationOptions(timeout time.Duration) workflow.ActivityOptions {
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	return workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        5 * time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ErrTypeNotFound, ErrTypeUnsupported},
		},
	}
}

// GenerateLessonWorkflow hosts one lesson run. A failure after all attempts
// still marks the run and its held activities failed.
func GenerateLessonWorkflow(ctx workflow.Context, in GenerateInput) (*Result, error) {
	if _, err := uuid.Parse(strings.TrimSpace(in.LessonID)); err != nil {
		return nil, temporal.NewNonRetryableApplicationError("invalid lesson_id", ErrTypeNotFound, err)
	}
	info := workflow.GetInfo(ctx)
	params := RunParams{
		LessonID:   in.LessonID,
		RunID:      RunIDFor(info.WorkflowExecution.RunID).String(),
		ExternalID: info.WorkflowExecution.ID,
	}
	logger := workflow.GetLogger(ctx)

	actx := workflow.WithActivityOptions(ctx, generationOptions(in.Timeout))
	var out Result
	err := workflow.ExecuteActivity(actx, ActivityGenerate, params).Get(ctx, &out)
	if err == nil {
		return &out, nil
	}
	logger.Error("Lesson generation failed", "lesson_id", in.LessonID, "run_id", params.RunID, "error", err)

	fctx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 5},
	})
	failure := FailureParams{RunID: params.RunID, LessonID: in.LessonID, Error: err.Error()}
	if ferr := workflow.ExecuteActivity(fctx, ActivityMarkRunFailed, failure).Get(ctx, nil); ferr != nil {
		logger.Error("Marking run failed did not succeed", "run_id", params.RunID, "error", ferr)
	}
	return nil, err
}

func RetryActivityWorkflow(ctx workflow.Context, in RetryInput) (*Result, error) {
	if _, err := uuid.Parse(strings.TrimSpace(in.ActivityID)); err != nil {
		return nil, temporal.NewNonRetryableApplicationError("invalid activity_id", ErrTypeNotFound, err)
	}
	info := workflow.GetInfo(ctx)
	params := RunParams{
		ActivityID: in.ActivityID,
		RunID:      RunIDFor(info.WorkflowExecution.RunID).String(),
		ExternalID: info.WorkflowExecution.ID,
	}
	actx := workflow.WithActivityOptions(ctx, generationOptions(in.Timeout))
	var out Result
	if err := workflow.ExecuteActivity(actx, ActivityRetry, params).Get(ctx, &out); err != nil {
		return nil, fmt.Errorf("retry activity %s: %w", in.ActivityID, err)
	}
	return &out, nil
}
