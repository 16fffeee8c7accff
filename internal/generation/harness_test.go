package generation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/lessonforge/internal/clients/gcp"
	"github.com/yungbote/lessonforge/internal/data/repos"
	"github.com/yungbote/lessonforge/internal/data/repos/testutil"
	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/generation/enrich"
	"github.com/yungbote/lessonforge/internal/generation/producers"
	"github.com/yungbote/lessonforge/internal/observability"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
)

// callLog records producer calls in order across lanes.
type callLog struct {
	mu    sync.Mutex
	calls []lesson.ActivityKind
	ends  map[lesson.ActivityKind]int
}

func (c *callLog) start(k lesson.ActivityKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, k)
	return len(c.calls)
}

func (c *callLog) end(k lesson.ActivityKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ends == nil {
		c.ends = map[lesson.ActivityKind]int{}
	}
	c.ends[k] = len(c.calls)
}

func (c *callLog) order() []lesson.ActivityKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]lesson.ActivityKind(nil), c.calls...)
}

type fakeProducer struct {
	kind  lesson.ActivityKind
	log   *callLog
	steps int
	err   error
	panic string
	// entered, when set, is closed on the first call, which then blocks until ctx ends
	entered chan struct{}

	calls    atomic.Int32
	mu       sync.Mutex
	upstream map[lesson.ActivityKind][]*lesson.Step
	seeds    []producers.WordSeed
	build    func(in producers.Input) *producers.Output
}

func (f *fakeProducer) Kind() lesson.ActivityKind { return f.kind }

func (f *fakeProducer) Produce(ctx context.Context, in producers.Input) (*producers.Output, error) {
	f.calls.Add(1)
	if f.log != nil {
		f.log.start(f.kind)
		defer f.log.end(f.kind)
	}
	f.mu.Lock()
	f.upstream = in.Upstream
	f.seeds = in.SeedWords
	f.mu.Unlock()
	if f.panic != "" {
		panic(f.panic)
	}
	if f.entered != nil {
		close(f.entered)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.build != nil {
		return f.build(in), nil
	}
	out := &producers.Output{}
	for i := 0; i < f.steps; i++ {
		out.Steps = append(out.Steps, producers.StepDraft{Kind: lesson.StepStatic, Content: lesson.StaticContent{Text: string(f.kind) + " step"}})
	}
	return out, nil
}

func (f *fakeProducer) sawUpstream(k lesson.ActivityKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.upstream[k])
}

type countingVisuals struct{ calls atomic.Int32 }

func (c *countingVisuals) Describe(ctx context.Context, req enrich.VisualRequest) enrich.VisualResult {
	c.calls.Add(1)
	out := make([]lesson.VisualPayload, len(req.Steps))
	for i := range out {
		out[i] = lesson.VisualPayload{Kind: lesson.VisualImage, Prompt: "illustration"}
	}
	return enrich.VisualResult{Data: out}
}

type countingImages struct{ calls atomic.Int32 }

func (c *countingImages) Render(ctx context.Context, prompt string) enrich.ImageResult {
	c.calls.Add(1)
	return enrich.ImageResult{Data: []byte("png"), MimeType: "image/png"}
}

type countingPronouncer struct{ calls atomic.Int32 }

func (c *countingPronouncer) Pronounce(ctx context.Context, language string, words []string) enrich.PronunciationResult {
	c.calls.Add(1)
	out := map[string]string{}
	for _, w := range words {
		out[w] = "[" + w + "]"
	}
	return enrich.PronunciationResult{Data: out}
}

type countingSpeaker struct {
	calls atomic.Int32
	// gate, when set, holds every render until it is closed
	gate chan struct{}
}

func (c *countingSpeaker) Speak(ctx context.Context, text, language string) enrich.AudioResult {
	c.calls.Add(1)
	if c.gate != nil {
		select {
		case <-c.gate:
		case <-ctx.Done():
			return enrich.AudioResult{Err: ctx.Err()}
		}
	}
	return enrich.AudioResult{Data: []byte("mp3"), MimeType: "audio/mpeg"}
}

type harness struct {
	t       *testing.T
	ctx     context.Context
	db      *gorm.DB
	repos   repos.Set
	hub     *MemoryHub
	signals SignalHub
	log     *callLog
	prods   map[lesson.ActivityKind]*fakeProducer
	visuals *countingVisuals
	images  *countingImages
	pron    *countingPronouncer
	speak   *countingSpeaker
	timeout time.Duration
	engine  *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.DB(t)
	h := &harness{
		t:       t,
		ctx:     context.Background(),
		db:      db,
		repos:   repos.NewSet(db, testutil.Logger(t)),
		hub:     NewMemoryHub(),
		log:     &callLog{},
		prods:   map[lesson.ActivityKind]*fakeProducer{},
		visuals: &countingVisuals{},
		images:  &countingImages{},
		pron:    &countingPronouncer{},
		speak:   &countingSpeaker{},
		timeout: 5 * time.Second,
	}
	for _, k := range lesson.AllKinds {
		h.prods[k] = &fakeProducer{kind: k, log: h.log, steps: 2}
	}
	return h
}

// build wires the engine; call after adjusting producers or the timeout.
func (h *harness) build() *Engine {
	h.t.Helper()
	reg := producers.Registry{}
	for k, p := range h.prods {
		reg[k] = p
	}
	stage := enrich.NewStage(enrich.Deps{
		Log:         testutil.Logger(h.t),
		Repos:       h.repos,
		Store:       gcp.NewMemoryStore("https://cdn.test"),
		Visuals:     h.visuals,
		Images:      h.images,
		Pronouncer:  h.pron,
		Speaker:     h.speak,
		Concurrency: 2,
	})
	var hub SignalHub = h.hub
	if h.signals != nil {
		hub = h.signals
	}
	e, err := NewEngine(Deps{
		Log:               testutil.Logger(h.t),
		Repos:             h.repos,
		Hub:               hub,
		Producers:         reg,
		Enricher:          stage,
		Sink:              observability.NewDBSink(testutil.Logger(h.t), h.repos.Events),
		Metrics:           observability.NewMetrics(),
		DependencyTimeout: h.timeout,
	})
	require.NoError(h.t, err)
	h.engine = e
	return e
}

func (h *harness) lesson(kind lesson.LessonKind) *lesson.Lesson {
	return testutil.SeedLesson(h.t, h.ctx, h.db, kind)
}

func (h *harness) activity(l *lesson.Lesson, kind lesson.ActivityKind, status lesson.GenerationStatus) *lesson.Activity {
	return testutil.SeedActivity(h.t, h.ctx, h.db, l, kind, status)
}

func (h *harness) reload(id uuid.UUID) *lesson.Activity {
	h.t.Helper()
	a, err := h.repos.Activities.GetByID(dbctx.Context{Ctx: h.ctx}, id)
	require.NoError(h.t, err)
	require.NotNil(h.t, a)
	return a
}

func (h *harness) aiCalls() int32 {
	var n int32
	for _, p := range h.prods {
		n += p.calls.Load()
	}
	return n
}

var errBoom = errors.New("collaborator exploded")

// closedHub hands out waiters whose subscription is already gone.
type closedHub struct{}

func (closedHub) Register(ctx context.Context, token string) (Waiter, error) {
	return closedWaiter{}, nil
}

func (closedHub) Fire(ctx context.Context, token string, payload SignalPayload) error { return nil }

type closedWaiter struct{}

func (closedWaiter) Wait(ctx context.Context) (SignalPayload, error) {
	return SignalPayload{}, errors.New("subscription closed")
}

func (closedWaiter) Cancel() {}
