package lessons

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/lessonforge/internal/domain"
	"github.com/yungbote/lessonforge/internal/pkg/ctxutil"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
)

// StepAssetUpdate carries the enrichment columns written for one step. Nil
// fields are left untouched.
type StepAssetUpdate struct {
	ID       uuid.UUID
	Visual   datatypes.JSON
	Content  datatypes.JSON
	ImageURL *string
	AudioURL *string
}

type StepRepo interface {
	Create(dbc dbctx.Context, rows []*types.Step) ([]*types.Step, error)
	ListByActivity(dbc dbctx.Context, activityID uuid.UUID) ([]*types.Step, error)
	DeleteByActivity(dbc dbctx.Context, activityID uuid.UUID) (int64, error)
	ApplyAssetUpdates(dbc dbctx.Context, updates []StepAssetUpdate) error
}

type stepRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStepRepo(db *gorm.DB, baseLog *logger.Logger) StepRepo {
	return &stepRepo{db: db, log: baseLog.With("repo", "StepRepo")}
}

func (r *stepRepo) Create(dbc dbctx.Context, rows []*types.Step) ([]*types.Step, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.Step{}, nil
	}
	if err := transaction.WithContext(ctxutil.Default(dbc.Ctx)).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *stepRepo) ListByActivity(dbc dbctx.Context, activityID uuid.UUID) ([]*types.Step, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Step
	if activityID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Where("activity_id = ?", activityID).
		Order("position ASC, created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *stepRepo) DeleteByActivity(dbc dbctx.Context, activityID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if activityID == uuid.Nil {
		return 0, nil
	}
	res := transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Where("activity_id = ?", activityID).
		Delete(&types.Step{})
	return res.RowsAffected, res.Error
}

// ApplyAssetUpdates writes every update inside one transaction.
func (r *stepRepo) ApplyAssetUpdates(dbc dbctx.Context, updates []StepAssetUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	apply := func(tx *gorm.DB) error {
		now := time.Now().UTC()
		for _, u := range updates {
			if u.ID == uuid.Nil {
				continue
			}
			fields := map[string]interface{}{"updated_at": now}
			if u.Visual != nil {
				fields["visual"] = u.Visual
			}
			if u.Content != nil {
				fields["content"] = u.Content
			}
			if u.ImageURL != nil {
				fields["image_url"] = *u.ImageURL
			}
			if u.AudioURL != nil {
				fields["audio_url"] = *u.AudioURL
			}
			if len(fields) == 1 {
				continue
			}
			if err := tx.Model(&types.Step{}).Where("id = ?", u.ID).Updates(fields).Error; err != nil {
				return err
			}
		}
		return nil
	}
	if dbc.Tx != nil {
		return apply(dbc.Tx.WithContext(ctxutil.Default(dbc.Ctx)))
	}
	return r.db.WithContext(ctxutil.Default(dbc.Ctx)).Transaction(apply)
}
