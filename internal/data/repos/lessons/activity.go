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

type ActivityRepo interface {
	Create(dbc dbctx.Context, rows []*types.Activity) ([]*types.Activity, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Activity, error)
	ListByLesson(dbc dbctx.Context, lessonID uuid.UUID) ([]*types.Activity, error)

	// Claim moves the row to running under runID unless another run holds it.
	// It reports false when nothing was claimed.
	Claim(dbc dbctx.Context, id uuid.UUID, runID uuid.UUID) (bool, error)
	MarkCompleted(dbc dbctx.Context, id uuid.UUID, runID uuid.UUID) (bool, error)
	MarkFailed(dbc dbctx.Context, id uuid.UUID, runID uuid.UUID, reason string) (bool, error)
	ResetPending(dbc dbctx.Context, id uuid.UUID) error
	FailRunningByRun(dbc dbctx.Context, runID uuid.UUID, reason string) (int64, error)

	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type activityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActivityRepo(db *gorm.DB, baseLog *logger.Logger) ActivityRepo {
	return &activityRepo{db: db, log: baseLog.With("repo", "ActivityRepo")}
}

const stepCountSelect = "activity.*, (SELECT COUNT(*) FROM step WHERE step.activity_id = activity.id) AS step_count"

func (r *activityRepo) Create(dbc dbctx.Context, rows []*types.Activity) ([]*types.Activity, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.Activity{}, nil
	}
	if err := transaction.WithContext(ctxutil.Default(dbc.Ctx)).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *activityRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Activity, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var out []*types.Activity
	if err := transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Table("activity").
		Select(stepCountSelect).
		Where("activity.id = ?", id).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *activityRepo) ListByLesson(dbc dbctx.Context, lessonID uuid.UUID) ([]*types.Activity, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Activity
	if lessonID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Table("activity").
		Select(stepCountSelect).
		Where("activity.lesson_id = ?", lessonID).
		Order("activity.position ASC, activity.created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *activityRepo) Claim(dbc dbctx.Context, id uuid.UUID, runID uuid.UUID) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || runID == uuid.Nil {
		return false, nil
	}
	res := transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Model(&types.Activity{}).
		Where("id = ? AND (generation_status <> ? OR generation_run_id = ?)", id, lesson.StatusRunning, runID).
		Updates(map[string]interface{}{
			"generation_status":         lesson.StatusRunning,
			"generation_run_id":         runID,
			"generation_failure_reason": "",
			"updated_at":                time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *activityRepo) MarkCompleted(dbc dbctx.Context, id uuid.UUID, runID uuid.UUID) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	res := transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Model(&types.Activity{}).
		Where("id = ? AND generation_status = ? AND generation_run_id = ?", id, lesson.StatusRunning, runID).
		Updates(map[string]interface{}{
			"generation_status":         lesson.StatusCompleted,
			"generation_failure_reason": "",
			"updated_at":                time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkFailed never touches a row another run currently holds.
func (r *activityRepo) MarkFailed(dbc dbctx.Context, id uuid.UUID, runID uuid.UUID, reason string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}
	res := transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Model(&types.Activity{}).
		Where("id = ? AND (generation_status <> ? OR generation_run_id = ?)", id, lesson.StatusRunning, runID).
		Updates(map[string]interface{}{
			"generation_status":         lesson.StatusFailed,
			"generation_run_id":         runID,
			"generation_failure_reason": reason,
			"updated_at":                time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *activityRepo) ResetPending(dbc dbctx.Context, id uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Model(&types.Activity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"generation_status":         lesson.StatusPending,
			"generation_run_id":         gorm.Expr("NULL"),
			"generation_failure_reason": "",
			"updated_at":                time.Now().UTC(),
		}).Error
}

func (r *activityRepo) FailRunningByRun(dbc dbctx.Context, runID uuid.UUID, reason string) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if runID == uuid.Nil {
		return 0, nil
	}
	res := transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Model(&types.Activity{}).
		Where("generation_status = ? AND generation_run_id = ?", lesson.StatusRunning, runID).
		Updates(map[string]interface{}{
			"generation_status":         lesson.StatusFailed,
			"generation_failure_reason": reason,
			"updated_at":                time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *activityRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Model(&types.Activity{}).
		Where("id = ?", id).
		Updates(updates).Error
}
