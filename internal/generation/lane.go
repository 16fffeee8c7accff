package generation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
	apperrors "github.com/yungbote/lessonforge/internal/pkg/errors"
)

var laneStages = []Stage{StageContent, StageVisuals, StageImages, StageComplete}

// runLane runs content, visuals, assets and completion for one activity in
// strict order. Each stage is a no-op once the lane has settled.
func (e *Engine) runLane(ctx context.Context, rs *runState, act *lesson.Activity) error {
	for _, s := range laneStages {
		if err := e.stageFunc(s)(ctx, rs, act); err != nil {
			return err
		}
	}
	return nil
}

// isolatedLane is runLane behind the branch fallback.
func (e *Engine) isolatedLane(ctx context.Context, rs *runState, act *lesson.Activity) error {
	return e.isolate(ctx, rs, act, "lane:"+string(act.Kind), func(ctx context.Context) error {
		return e.runLane(ctx, rs, act)
	})
}

// loadRun reads the lesson and its activities and builds the run state.
func (e *Engine) loadRun(ctx context.Context, runID uuid.UUID, lessonID uuid.UUID) (*runState, error) {
	dbc := dbctx.Context{Ctx: ctx}
	lsn, err := e.repos.Lessons.GetByID(dbc, lessonID)
	if err != nil {
		return nil, fmt.Errorf("load lesson %s: %w", lessonID, err)
	}
	if lsn == nil {
		return nil, fmt.Errorf("lesson %s: %w", lessonID, apperrors.ErrNotFound)
	}
	siblings, err := e.repos.Activities.ListByLesson(dbc, lessonID)
	if err != nil {
		return nil, fmt.Errorf("load activities for %s: %w", lessonID, err)
	}
	return newRunState(runID, lsn, siblings), nil
}

// RunLanes runs the full lane of each listed activity concurrently under one
// run id. Failures are recorded on the activities; the error is non-nil only
// when the run itself could not proceed.
func (e *Engine) RunLanes(ctx context.Context, runID uuid.UUID, lessonID uuid.UUID, activityIDs ...uuid.UUID) error {
	rs, err := e.loadRun(ctx, runID, lessonID)
	if err != nil {
		return err
	}
	// resolve every id first so a bad one starts nothing
	acts := make([]*lesson.Activity, 0, len(activityIDs))
	for _, id := range activityIDs {
		var act *lesson.Activity
		for _, a := range rs.siblings {
			if a.ID == id {
				act = a
				break
			}
		}
		if act == nil {
			return fmt.Errorf("activity %s in lesson %s: %w", id, lessonID, apperrors.ErrNotFound)
		}
		acts = append(acts, act)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, act := range acts {
		g.Go(func() error { return e.isolatedLane(gctx, rs, act) })
	}
	return g.Wait()
}

// RunLane runs one activity's lane.
func (e *Engine) RunLane(ctx context.Context, runID uuid.UUID, lessonID uuid.UUID, activityID uuid.UUID) error {
	return e.RunLanes(ctx, runID, lessonID, activityID)
}
