package generation

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/lessonforge/internal/domain/lesson"
)

// Token is the signal key for one kind within one lesson.
func Token(kind lesson.ActivityKind, lessonID uuid.UUID) string {
	return "lesson:" + lessonID.String() + ":" + string(kind)
}

// SignalPayload is delivered to every waiter registered when a token fires.
// Failed is set when the producing lane gave up, so waiters stop early.
type SignalPayload struct {
	Kind     lesson.ActivityKind `json:"kind"`
	LessonID uuid.UUID           `json:"lesson_id"`
	Steps    []*lesson.Step      `json:"steps,omitempty"`
	Failed   bool                `json:"failed,omitempty"`
	Reason   ReasonCode          `json:"reason,omitempty"`
}

// Waiter is one registration on a token. Wait returns at most one payload.
type Waiter interface {
	Wait(ctx context.Context) (SignalPayload, error)
	Cancel()
}

// SignalHub is a per-token single-slot broadcast. Fire with no registrant is a
// no-op; each registrant resumes at most once per fire.
type SignalHub interface {
	Register(ctx context.Context, token string) (Waiter, error)
	Fire(ctx context.Context, token string, payload SignalPayload) error
}

// MemoryHub serves a single process.
type MemoryHub struct {
	mu      sync.Mutex
	seq     uint64
	waiters map[string]map[uint64]*memoryWaiter
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{waiters: map[string]map[uint64]*memoryWaiter{}}
}

type memoryWaiter struct {
	hub   *MemoryHub
	token string
	id    uint64
	ch    chan SignalPayload
	once  sync.Once
}

func (h *MemoryHub) Register(ctx context.Context, token string) (Waiter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	w := &memoryWaiter{hub: h, token: token, id: h.seq, ch: make(chan SignalPayload, 1)}
	set := h.waiters[token]
	if set == nil {
		set = map[uint64]*memoryWaiter{}
		h.waiters[token] = set
	}
	set[w.id] = w
	return w, nil
}

func (h *MemoryHub) Fire(ctx context.Context, token string, payload SignalPayload) error {
	h.mu.Lock()
	set := h.waiters[token]
	delete(h.waiters, token)
	h.mu.Unlock()

	for _, w := range set {
		w.resolve(payload)
	}
	return nil
}

// Pending reports how many waiters are registered on token.
func (h *MemoryHub) Pending(token string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.waiters[token])
}

func (w *memoryWaiter) resolve(p SignalPayload) {
	w.once.Do(func() {
		w.ch <- p
	})
}

func (w *memoryWaiter) Wait(ctx context.Context) (SignalPayload, error) {
	select {
	case p := <-w.ch:
		return p, nil
	case <-ctx.Done():
		w.Cancel()
		return SignalPayload{}, ctx.Err()
	}
}

func (w *memoryWaiter) Cancel() {
	w.hub.mu.Lock()
	defer w.hub.mu.Unlock()
	if set := w.hub.waiters[w.token]; set != nil {
		delete(set, w.id)
		if len(set) == 0 {
			delete(w.hub.waiters, w.token)
		}
	}
}
