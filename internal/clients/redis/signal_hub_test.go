package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/generation"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
)

func TestEncodePayloadDropsSteps(t *testing.T) {
	lessonID := uuid.New()
	raw, err := EncodePayload(generation.SignalPayload{
		Kind:     lesson.KindReading,
		LessonID: lessonID,
		Steps:    []*lesson.Step{{ID: uuid.New()}},
		Failed:   true,
		Reason:   generation.ReasonEmptyResult,
	})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "steps")

	p, err := DecodePayload(string(raw))
	require.NoError(t, err)
	assert.Equal(t, lesson.KindReading, p.Kind)
	assert.Equal(t, lessonID, p.LessonID)
	assert.True(t, p.Failed)
	assert.Equal(t, generation.ReasonEmptyResult, p.Reason)
	assert.Empty(t, p.Steps)

	_, err = DecodePayload("{")
	assert.Error(t, err)
}

func TestSignalHubRoundTrip(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	hub, err := NewSignalHub(logger.NewNop(), Config{Addr: addr, Prefix: "lessonforge:test:" + uuid.NewString() + ":"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = hub.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	token := generation.Token(lesson.KindBackground, uuid.New())

	// fire with nobody listening is lost
	require.NoError(t, hub.Fire(ctx, token, generation.SignalPayload{Kind: lesson.KindBackground, Failed: true}))

	a, err := hub.Register(ctx, token)
	require.NoError(t, err)
	b, err := hub.Register(ctx, token)
	require.NoError(t, err)
	require.NoError(t, hub.Fire(ctx, token, generation.SignalPayload{Kind: lesson.KindBackground}))

	for _, w := range []generation.Waiter{a, b} {
		p, err := w.Wait(ctx)
		require.NoError(t, err)
		assert.False(t, p.Failed)
		assert.Equal(t, lesson.KindBackground, p.Kind)
	}

	c, err := hub.Register(ctx, token)
	require.NoError(t, err)
	short, stop := context.WithTimeout(ctx, 50*time.Millisecond)
	defer stop()
	_, err = c.Wait(short)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
