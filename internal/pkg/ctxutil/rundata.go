package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type runDataKey struct{}

// RunData identifies the orchestrator execution a context belongs to.
type RunData struct {
	RunID    uuid.UUID
	LessonID uuid.UUID
	Trigger  string
}

func WithRunData(ctx context.Context, rd *RunData) context.Context {
	if rd == nil {
		return Default(ctx)
	}
	return context.WithValue(Default(ctx), runDataKey{}, rd)
}

func GetRunData(ctx context.Context) *RunData {
	if ctx == nil {
		return nil
	}
	rd, ok := ctx.Value(runDataKey{}).(*RunData)
	if !ok {
		return nil
	}
	return rd
}
