package generation

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/lessonforge/internal/observability"
)

// runWaves executes the plan's waves in order. Branches of a wave run
// concurrently behind the branch fallback; kinds the lesson lacks are skipped.
func (e *Engine) runWaves(ctx context.Context, rs *runState) error {
	for i, w := range e.plan.Waves {
		g, gctx := errgroup.WithContext(ctx)
		scheduled := 0
		for _, ref := range w.Stages {
			act := rs.byKind(ref.Kind)
			if act == nil {
				continue
			}
			fn := e.stageFunc(ref.Stage)
			if fn == nil {
				return fmt.Errorf("wave %s: no stage %q", w.Name, ref.Stage)
			}
			scheduled++
			name := ref.String()
			g.Go(func() error {
				return e.isolate(gctx, rs, act, name, func(ctx context.Context) error {
					return fn(ctx, rs, act)
				})
			})
		}
		if scheduled == 0 {
			continue
		}
		e.log.Debug("Running wave", "run_id", rs.id, "lesson_id", rs.lesson.ID, "wave", w.Name, "index", i, "branches", scheduled)
		if err := g.Wait(); err != nil {
			return fmt.Errorf("wave %s: %w", w.Name, err)
		}
		e.record(ctx, rs, nil, "wave:"+w.Name, observability.EventSucceeded, "")
	}
	return nil
}
