package app

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/lessonforge/internal/clients/gcp"
	"github.com/yungbote/lessonforge/internal/clients/openai"
	"github.com/yungbote/lessonforge/internal/data/repos"
	"github.com/yungbote/lessonforge/internal/data/repos/testutil"
	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/generation"
	"github.com/yungbote/lessonforge/internal/observability"
)

type offlineAI struct{}

func (offlineAI) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	return nil, errors.New("offline")
}

func (offlineAI) GenerateImage(ctx context.Context, prompt string) (openai.ImageGeneration, error) {
	return openai.ImageGeneration{}, errors.New("offline")
}

func (offlineAI) GenerateSpeech(ctx context.Context, text, language string) (openai.SpeechGeneration, error) {
	return openai.SpeechGeneration{}, errors.New("offline")
}

func TestWireEngine(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	rs := repos.NewSet(db, log)
	clients := Clients{
		OpenAI: offlineAI{},
		Assets: gcp.NewMemoryStore(""),
		Hub:    generation.NewMemoryHub(),
	}

	engine, err := wireEngine(log, Config{RenderConcurrency: 2}, rs, clients, nil)
	require.NoError(t, err)
	require.NotNil(t, engine)
	assert.True(t, engine.Supports(lesson.KindVocabulary))
}

func TestWireEngineBadPlanPath(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	clients := Clients{OpenAI: offlineAI{}, Assets: gcp.NewMemoryStore(""), Hub: generation.NewMemoryHub()}

	_, err := wireEngine(log, Config{PipelinePath: t.TempDir() + "/missing.yaml"}, repos.NewSet(db, log), clients, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load wave plan")
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("PORT", "9191")
	t.Setenv("LESSON_PIPELINE_YAML", "")
	cfg := LoadConfig(testutil.Logger(t))
	assert.Equal(t, ":9191", cfg.HTTPAddr)
	assert.True(t, cfg.RunMigrations)
	assert.Equal(t, 4, cfg.RenderConcurrency)
	assert.Empty(t, cfg.PipelinePath)
}

func TestDumpMetrics(t *testing.T) {
	a := &App{}
	assert.Error(t, a.DumpMetrics(&bytes.Buffer{}))

	a.Metrics = observability.NewMetrics()
	a.Metrics.ObserveLane("quiz", "failed", "generation_failed", 0)
	var buf bytes.Buffer
	require.NoError(t, a.DumpMetrics(&buf))
	assert.Contains(t, buf.String(), `lf_lane_outcomes_total{kind="quiz",reason="generation_failed",status="failed"} 1`)
}
