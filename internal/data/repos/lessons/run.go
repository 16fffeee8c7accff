package lessons

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/lessonforge/internal/domain"
	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/pkg/ctxutil"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
)

type RunRepo interface {
	// Start inserts the run, or returns the existing row when a re-entered
	// execution reuses the same id.
	Start(dbc dbctx.Context, run *types.GenerationRun) (*types.GenerationRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.GenerationRun, error)
	Finish(dbc dbctx.Context, id uuid.UUID, status string, errMsg string) error
	ListByLesson(dbc dbctx.Context, lessonID uuid.UUID, limit int) ([]*types.GenerationRun, error)
}

type runRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRunRepo(db *gorm.DB, baseLog *logger.Logger) RunRepo {
	return &runRepo{db: db, log: baseLog.With("repo", "RunRepo")}
}

func (r *runRepo) Start(dbc dbctx.Context, run *types.GenerationRun) (*types.GenerationRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if run == nil {
		return nil, nil
	}
	if run.ID != uuid.Nil {
		existing, err := r.GetByID(dbc, run.ID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if err := transaction.WithContext(ctxutil.Default(dbc.Ctx)).
				Model(&types.GenerationRun{}).
				Where("id = ?", run.ID).
				Updates(map[string]interface{}{
					"status":      lesson.RunStatusRunning,
					"finished_at": gorm.Expr("NULL"),
					"updated_at":  time.Now().UTC(),
				}).Error; err != nil {
				return nil, err
			}
			existing.Status = lesson.RunStatusRunning
			existing.FinishedAt = nil
			return existing, nil
		}
	}
	if run.Status == "" {
		run.Status = lesson.RunStatusRunning
	}
	if run.Trigger == "" {
		run.Trigger = lesson.RunTriggerPipeline
	}
	if err := transaction.WithContext(ctxutil.Default(dbc.Ctx)).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

func (r *runRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.GenerationRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var out types.GenerationRun
	if err := transaction.WithContext(ctxutil.Default(dbc.Ctx)).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if out.ID == uuid.Nil {
		return nil, nil
	}
	return &out, nil
}

func (r *runRepo) Finish(dbc dbctx.Context, id uuid.UUID, status string, errMsg string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	return transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Model(&types.GenerationRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"error":       errMsg,
			"finished_at": now,
			"updated_at":  now,
		}).Error
}

func (r *runRepo) ListByLesson(dbc dbctx.Context, lessonID uuid.UUID, limit int) ([]*types.GenerationRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.GenerationRun
	if lessonID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 20
	}
	if err := transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Where("lesson_id = ?", lessonID).
		Order("started_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type EventRepo interface {
	Append(dbc dbctx.Context, ev *types.GenerationEvent) error
	ListByRun(dbc dbctx.Context, runID uuid.UUID) ([]*types.GenerationEvent, error)
}

type eventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventRepo(db *gorm.DB, baseLog *logger.Logger) EventRepo {
	return &eventRepo{db: db, log: baseLog.With("repo", "EventRepo")}
}

func (r *eventRepo) Append(dbc dbctx.Context, ev *types.GenerationEvent) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if ev == nil {
		return nil
	}
	return transaction.WithContext(ctxutil.Default(dbc.Ctx)).Create(ev).Error
}

func (r *eventRepo) ListByRun(dbc dbctx.Context, runID uuid.UUID) ([]*types.GenerationEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.GenerationEvent
	if runID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Where("run_id = ?", runID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
