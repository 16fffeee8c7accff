package enrich

import (
	"context"
	"errors"

	"github.com/yungbote/lessonforge/internal/clients/gcp"
	"github.com/yungbote/lessonforge/internal/data/repos"
	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
)

var (
	// ErrVisualFailed means the bulk visual description call failed; the
	// activity is marked failed.
	ErrVisualFailed = errors.New("visual description failed")
	// ErrPronunciationFailed means the bulk pronunciation call failed.
	ErrPronunciationFailed = errors.New("pronunciation failed")
	// ErrPersistFailed means rendered payloads could not be written.
	ErrPersistFailed = errors.New("enrichment persist failed")
)

type VisualRequest struct {
	Lesson   *lesson.Lesson
	Activity *lesson.Activity
	Steps    []*lesson.Step
}

// VisualResult carries one payload per requested step, in order.
type VisualResult struct {
	Data []lesson.VisualPayload
	Err  error
}

type VisualDescriber interface {
	Describe(ctx context.Context, req VisualRequest) VisualResult
}

type ImageResult struct {
	Data     []byte
	MimeType string
	Err      error
}

type ImageRenderer interface {
	Render(ctx context.Context, prompt string) ImageResult
}

// PronunciationResult maps each word to its pronunciation guide.
type PronunciationResult struct {
	Data map[string]string
	Err  error
}

type Pronouncer interface {
	Pronounce(ctx context.Context, language string, words []string) PronunciationResult
}

type AudioResult struct {
	Data     []byte
	MimeType string
	Err      error
}

type Speaker interface {
	Speak(ctx context.Context, text string, language string) AudioResult
}

type Deps struct {
	Log        *logger.Logger
	Repos      repos.Set
	Store      gcp.AssetStore
	Visuals    VisualDescriber
	Images     ImageRenderer
	Pronouncer Pronouncer
	Speaker    Speaker
	// Concurrency bounds parallel renders per activity.
	Concurrency int
}

// Stage runs the resumable secondary payload passes over persisted steps.
type Stage struct {
	log         *logger.Logger
	repos       repos.Set
	store       gcp.AssetStore
	visuals     VisualDescriber
	images      ImageRenderer
	pronouncer  Pronouncer
	speaker     Speaker
	concurrency int
}

func NewStage(d Deps) *Stage {
	if d.Concurrency <= 0 {
		d.Concurrency = 4
	}
	return &Stage{
		log:         d.Log.With("service", "EnrichmentStage"),
		repos:       d.Repos,
		store:       d.Store,
		visuals:     d.Visuals,
		images:      d.Images,
		pronouncer:  d.Pronouncer,
		speaker:     d.Speaker,
		concurrency: d.Concurrency,
	}
}
