package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/lessonforge/internal/data/repos"
	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/generation"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
	apperrors "github.com/yungbote/lessonforge/internal/pkg/errors"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
	"github.com/yungbote/lessonforge/internal/temporalx/lessonrun"
)

const (
	DispatchTemporal = "temporal"
	DispatchInline   = "inline"
)

// Engine is the generation surface the service drives.
type Engine interface {
	GenerateLesson(ctx context.Context, lessonID uuid.UUID, opts generation.RunOptions) (*generation.RunSummary, error)
	RetryActivity(ctx context.Context, activityID uuid.UUID, opts generation.RunOptions) (*generation.RunSummary, error)
	Supports(kind lesson.ActivityKind) bool
}

// Dispatch describes where an accepted request is running.
type Dispatch struct {
	Mode       string    `json:"mode"`
	RunID      uuid.UUID `json:"run_id"`
	WorkflowID string    `json:"workflow_id,omitempty"`
}

type RunView struct {
	Run    *lesson.GenerationRun     `json:"run"`
	Events []*lesson.GenerationEvent `json:"events"`
}

type GenerationService interface {
	StartLesson(ctx context.Context, lessonID uuid.UUID) (*Dispatch, error)
	RetryActivity(ctx context.Context, activityID uuid.UUID) (*Dispatch, error)
	ListActivities(ctx context.Context, lessonID uuid.UUID) ([]*lesson.Activity, error)
	GetRun(ctx context.Context, runID uuid.UUID) (*RunView, error)
	// Wait blocks until every inline run has returned.
	Wait()
}

type generationService struct {
	log       *logger.Logger
	repos     repos.Set
	engine    Engine
	temporal  temporalsdkclient.Client
	taskQueue string
	timeout   time.Duration

	inflight sync.WaitGroup
}

// NewGenerationService hands work to Temporal when tc is set and runs it in a
// background goroutine otherwise.
func NewGenerationService(log *logger.Logger, rs repos.Set, engine Engine, tc temporalsdkclient.Client, taskQueue string, timeout time.Duration) GenerationService {
	if strings.TrimSpace(taskQueue) == "" {
		taskQueue = "lessonforge"
	}
	return &generationService{
		log:       log.With("service", "GenerationService"),
		repos:     rs,
		engine:    engine,
		temporal:  tc,
		taskQueue: taskQueue,
		timeout:   timeout,
	}
}

func (s *generationService) StartLesson(ctx context.Context, lessonID uuid.UUID) (*Dispatch, error) {
	l, err := s.repos.Lessons.GetByID(dbctx.Context{Ctx: ctx}, lessonID)
	if err != nil {
		return nil, fmt.Errorf("load lesson %s: %w", lessonID, err)
	}
	if l == nil {
		return nil, fmt.Errorf("lesson %s: %w", lessonID, apperrors.ErrNotFound)
	}

	if s.temporal != nil {
		workflowID := "lesson-generate:" + lessonID.String()
		run, err := s.temporal.ExecuteWorkflow(ctx, s.startOptions(workflowID), lessonrun.WorkflowGenerateLesson, lessonrun.GenerateInput{
			LessonID: lessonID.String(),
			Timeout:  s.timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("start lesson workflow: %w", err)
		}
		s.log.Info("Lesson workflow started", "lesson_id", lessonID, "workflow_id", run.GetID(), "run_id", run.GetRunID())
		return &Dispatch{Mode: DispatchTemporal, RunID: lessonrun.RunIDFor(run.GetRunID()), WorkflowID: run.GetID()}, nil
	}

	runID := uuid.New()
	s.goInline(ctx, "lesson", func(bg context.Context) error {
		_, err := s.engine.GenerateLesson(bg, lessonID, generation.RunOptions{RunID: runID})
		return err
	})
	return &Dispatch{Mode: DispatchInline, RunID: runID}, nil
}

func (s *generationService) RetryActivity(ctx context.Context, activityID uuid.UUID) (*Dispatch, error) {
	act, err := s.repos.Activities.GetByID(dbctx.Context{Ctx: ctx}, activityID)
	if err != nil {
		return nil, fmt.Errorf("load activity %s: %w", activityID, err)
	}
	if act == nil {
		return nil, fmt.Errorf("activity %s: %w", activityID, apperrors.ErrNotFound)
	}
	if !s.engine.Supports(act.Kind) {
		return nil, fmt.Errorf("activity %s kind %q: %w", activityID, act.Kind, apperrors.ErrUnsupportedKind)
	}

	if s.temporal != nil {
		workflowID := "activity-retry:" + activityID.String()
		run, err := s.temporal.ExecuteWorkflow(ctx, s.startOptions(workflowID), lessonrun.WorkflowRetryActivity, lessonrun.RetryInput{
			ActivityID: activityID.String(),
			Timeout:    s.timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("start retry workflow: %w", err)
		}
		return &Dispatch{Mode: DispatchTemporal, RunID: lessonrun.RunIDFor(run.GetRunID()), WorkflowID: run.GetID()}, nil
	}

	runID := uuid.New()
	s.goInline(ctx, "retry", func(bg context.Context) error {
		_, err := s.engine.RetryActivity(bg, activityID, generation.RunOptions{RunID: runID})
		return err
	})
	return &Dispatch{Mode: DispatchInline, RunID: runID}, nil
}

// startOptions joins a request to a workflow already running under the same
// id instead of starting a second one.
func (s *generationService) startOptions(workflowID string) temporalsdkclient.StartWorkflowOptions {
	return temporalsdkclient.StartWorkflowOptions{
		ID:                       workflowID,
		TaskQueue:                s.taskQueue,
		WorkflowIDReusePolicy:    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
		RetryPolicy:              &temporal.RetryPolicy{MaximumAttempts: 1},
	}
}

func (s *generationService) goInline(ctx context.Context, what string, fn func(bg context.Context) error) {
	bg := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("Inline generation panicked", "what", what, "panic", r)
			}
		}()
		if err := fn(bg); err != nil {
			s.log.Warn("Inline generation failed", "what", what, "error", err)
		}
	}()
}

func (s *generationService) Wait() { s.inflight.Wait() }

func (s *generationService) ListActivities(ctx context.Context, lessonID uuid.UUID) ([]*lesson.Activity, error) {
	l, err := s.repos.Lessons.GetByID(dbctx.Context{Ctx: ctx}, lessonID)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, fmt.Errorf("lesson %s: %w", lessonID, apperrors.ErrNotFound)
	}
	return s.repos.Activities.ListByLesson(dbctx.Context{Ctx: ctx}, lessonID)
}

func (s *generationService) GetRun(ctx context.Context, runID uuid.UUID) (*RunView, error) {
	dbc := dbctx.Context{Ctx: ctx}
	run, err := s.repos.Runs.GetByID(dbc, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run %s: %w", runID, apperrors.ErrNotFound)
	}
	events, err := s.repos.Events.ListByRun(dbc, runID)
	if err != nil {
		return nil, err
	}
	return &RunView{Run: run, Events: events}, nil
}
