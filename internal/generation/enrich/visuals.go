package enrich

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"

	"github.com/yungbote/lessonforge/internal/data/repos/lessons"
	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
)

// Visuals gives every step a visual payload with one collaborator call for the
// whole activity. It is a no-op when every step already carries one.
func (s *Stage) Visuals(ctx context.Context, req VisualRequest) ([]*lesson.Step, error) {
	missing := 0
	for _, st := range req.Steps {
		if !st.HasVisual() {
			missing++
		}
	}
	if missing == 0 {
		return req.Steps, nil
	}
	if s.visuals == nil {
		return req.Steps, fmt.Errorf("%w: no visual collaborator", ErrVisualFailed)
	}

	res := s.visuals.Describe(ctx, req)
	if res.Err != nil {
		return req.Steps, fmt.Errorf("%w: %v", ErrVisualFailed, res.Err)
	}
	if len(res.Data) != len(req.Steps) {
		return req.Steps, fmt.Errorf("%w: got %d payloads for %d steps", ErrVisualFailed, len(res.Data), len(req.Steps))
	}

	updates := make([]lessons.StepAssetUpdate, 0, missing)
	encoded := make([]datatypes.JSON, len(req.Steps))
	for i, st := range req.Steps {
		if st.HasVisual() {
			continue
		}
		p := res.Data[i]
		if p.Kind == "" {
			p.Kind = lesson.VisualNone
		}
		raw, err := json.Marshal(p)
		if err != nil {
			return req.Steps, fmt.Errorf("%w: %v", ErrVisualFailed, err)
		}
		encoded[i] = datatypes.JSON(raw)
		updates = append(updates, lessons.StepAssetUpdate{ID: st.ID, Visual: encoded[i]})
	}

	if err := s.repos.Steps.ApplyAssetUpdates(dbctx.Context{Ctx: ctx}, updates); err != nil {
		return req.Steps, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	for i, st := range req.Steps {
		if encoded[i] != nil {
			st.Visual = encoded[i]
		}
	}
	s.log.Debug("Visual payloads written", "activity_id", req.Activity.ID, "count", len(updates))
	return req.Steps, nil
}
