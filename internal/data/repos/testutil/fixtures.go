package testutil

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/lessonforge/internal/domain"
	"github.com/yungbote/lessonforge/internal/domain/lesson"
)

func SeedLesson(tb testing.TB, ctx context.Context, tx *gorm.DB, kind lesson.LessonKind) *types.Lesson {
	tb.Helper()
	l := &types.Lesson{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		Kind:           kind,
		Title:          "Photosynthesis",
		Description:    "How plants turn light into sugar",
		UserLanguage:   "en",
	}
	if kind == lesson.LessonKindLanguage {
		l.Title = "At the market"
		l.TargetLanguage = "es"
	}
	if err := tx.WithContext(ctx).Create(l).Error; err != nil {
		tb.Fatalf("seed lesson: %v", err)
	}
	return l
}

func SeedActivity(tb testing.TB, ctx context.Context, tx *gorm.DB, l *types.Lesson, kind lesson.ActivityKind, status lesson.GenerationStatus) *types.Activity {
	tb.Helper()
	a := &types.Activity{
		ID:               uuid.New(),
		LessonID:         l.ID,
		OrganizationID:   l.OrganizationID,
		Kind:             kind,
		Language:         l.UserLanguage,
		GenerationStatus: status,
	}
	for i, k := range lesson.AllKinds {
		if k == kind {
			a.Position = i
		}
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		tb.Fatalf("seed activity: %v", err)
	}
	return a
}

// SeedSteps persists n static steps for the activity.
func SeedSteps(tb testing.TB, ctx context.Context, tx *gorm.DB, activityID uuid.UUID, n int) []*types.Step {
	tb.Helper()
	out := make([]*types.Step, 0, n)
	for i := 0; i < n; i++ {
		content, _ := json.Marshal(lesson.StaticContent{Text: "seeded step"})
		s := &types.Step{
			ID:         uuid.New(),
			ActivityID: activityID,
			Kind:       lesson.StepStatic,
			Position:   i,
			Content:    datatypes.JSON(content),
		}
		if err := tx.WithContext(ctx).Create(s).Error; err != nil {
			tb.Fatalf("seed step: %v", err)
		}
		out = append(out, s)
	}
	return out
}

func PtrUUID(id uuid.UUID) *uuid.UUID { return &id }
