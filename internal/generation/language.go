package generation

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/lessonforge/internal/domain/lesson"
)

// runLanguageLane generates vocabulary first, then splits: vocabulary audio
// and completion on one branch, the reading lane on the other. The copy kinds
// run once both have settled.
func (e *Engine) runLanguageLane(ctx context.Context, rs *runState) error {
	vocab := rs.byKind(lesson.KindVocabulary)
	reading := rs.byKind(lesson.KindReading)

	if vocab != nil {
		if err := e.isolate(ctx, rs, vocab, "content:vocabulary", func(ctx context.Context) error {
			return e.contentStage(ctx, rs, vocab)
		}); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if vocab != nil {
		g.Go(func() error {
			return e.isolate(gctx, rs, vocab, "enrich:vocabulary", func(ctx context.Context) error {
				if err := e.assetsStage(ctx, rs, vocab); err != nil {
					return err
				}
				return e.completeStage(ctx, rs, vocab)
			})
		})
	}
	if reading != nil {
		g.Go(func() error { return e.isolatedLane(gctx, rs, reading) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	g, gctx = errgroup.WithContext(ctx)
	for _, kind := range []lesson.ActivityKind{lesson.KindListening, lesson.KindLanguageReview} {
		if act := rs.byKind(kind); act != nil {
			g.Go(func() error { return e.isolatedLane(gctx, rs, act) })
		}
	}
	return g.Wait()
}
