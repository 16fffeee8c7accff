package lessons

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/lessonforge/internal/domain"
	"github.com/yungbote/lessonforge/internal/pkg/ctxutil"
	"github.com/yungbote/lessonforge/internal/pkg/dbctx"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
)

// LanguagePair scopes the shared dictionary rows.
type LanguagePair struct {
	OrganizationID uuid.UUID
	TargetLanguage string
	UserLanguage   string
}

type WordRepo interface {
	// Upsert inserts words by natural key, refreshing translations on conflict,
	// and returns the stored rows in input order, duplicates collapsed.
	Upsert(dbc dbctx.Context, pair LanguagePair, rows []*types.Word) ([]*types.Word, error)
	LinkToLesson(dbc dbctx.Context, lessonID uuid.UUID, wordIDs []uuid.UUID) error
	ListByLesson(dbc dbctx.Context, lessonID uuid.UUID) ([]*types.Word, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Word, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type wordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewWordRepo(db *gorm.DB, baseLog *logger.Logger) WordRepo {
	return &wordRepo{db: db, log: baseLog.With("repo", "WordRepo")}
}

func (r *wordRepo) Upsert(dbc dbctx.Context, pair LanguagePair, rows []*types.Word) ([]*types.Word, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.Word{}, nil
	}
	keys := make([]string, 0, len(rows))
	unique := make([]*types.Word, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, w := range rows {
		if w == nil || seen[w.Word] {
			continue
		}
		seen[w.Word] = true
		w.OrganizationID = pair.OrganizationID
		w.TargetLanguage = pair.TargetLanguage
		w.UserLanguage = pair.UserLanguage
		keys = append(keys, w.Word)
		unique = append(unique, w)
	}
	if len(unique) == 0 {
		return []*types.Word{}, nil
	}
	err := transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "organization_id"},
				{Name: "target_language"},
				{Name: "user_language"},
				{Name: "word"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"translation", "updated_at"}),
		}).
		Create(&unique).Error
	if err != nil {
		return nil, err
	}

	var stored []*types.Word
	if err := transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Where("organization_id = ? AND target_language = ? AND user_language = ? AND word IN ?",
			pair.OrganizationID, pair.TargetLanguage, pair.UserLanguage, keys).
		Find(&stored).Error; err != nil {
		return nil, err
	}
	byWord := make(map[string]*types.Word, len(stored))
	for _, w := range stored {
		byWord[w.Word] = w
	}
	out := make([]*types.Word, 0, len(unique))
	for _, w := range unique {
		if s, ok := byWord[w.Word]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *wordRepo) LinkToLesson(dbc dbctx.Context, lessonID uuid.UUID, wordIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if lessonID == uuid.Nil || len(wordIDs) == 0 {
		return nil
	}
	links := make([]*types.LessonWord, 0, len(wordIDs))
	for i, id := range wordIDs {
		links = append(links, &types.LessonWord{LessonID: lessonID, WordID: id, Position: i})
	}
	return transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "lesson_id"}, {Name: "word_id"}},
			DoNothing: true,
		}).
		Create(&links).Error
}

func (r *wordRepo) ListByLesson(dbc dbctx.Context, lessonID uuid.UUID) ([]*types.Word, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Word
	if lessonID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Model(&types.Word{}).
		Joins("JOIN lesson_word ON lesson_word.word_id = word.id").
		Where("lesson_word.lesson_id = ?", lessonID).
		Order("lesson_word.position ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *wordRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Word, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Word
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctxutil.Default(dbc.Ctx)).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *wordRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(ctxutil.Default(dbc.Ctx)).Model(&types.Word{}).Where("id = ?", id).Updates(updates).Error
}

type SentenceRepo interface {
	Upsert(dbc dbctx.Context, pair LanguagePair, rows []*types.Sentence) ([]*types.Sentence, error)
	LinkToLesson(dbc dbctx.Context, lessonID uuid.UUID, sentenceIDs []uuid.UUID) error
	ListByLesson(dbc dbctx.Context, lessonID uuid.UUID) ([]*types.Sentence, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Sentence, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type sentenceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSentenceRepo(db *gorm.DB, baseLog *logger.Logger) SentenceRepo {
	return &sentenceRepo{db: db, log: baseLog.With("repo", "SentenceRepo")}
}

func (r *sentenceRepo) Upsert(dbc dbctx.Context, pair LanguagePair, rows []*types.Sentence) ([]*types.Sentence, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.Sentence{}, nil
	}
	keys := make([]string, 0, len(rows))
	unique := make([]*types.Sentence, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, s := range rows {
		if s == nil || seen[s.Sentence] {
			continue
		}
		seen[s.Sentence] = true
		s.OrganizationID = pair.OrganizationID
		s.TargetLanguage = pair.TargetLanguage
		s.UserLanguage = pair.UserLanguage
		keys = append(keys, s.Sentence)
		unique = append(unique, s)
	}
	if len(unique) == 0 {
		return []*types.Sentence{}, nil
	}
	err := transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "organization_id"},
				{Name: "target_language"},
				{Name: "user_language"},
				{Name: "sentence"},
			},
			DoUpdates: clause.AssignmentColumns([]string{"translation", "updated_at"}),
		}).
		Create(&unique).Error
	if err != nil {
		return nil, err
	}

	var stored []*types.Sentence
	if err := transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Where("organization_id = ? AND target_language = ? AND user_language = ? AND sentence IN ?",
			pair.OrganizationID, pair.TargetLanguage, pair.UserLanguage, keys).
		Find(&stored).Error; err != nil {
		return nil, err
	}
	bySentence := make(map[string]*types.Sentence, len(stored))
	for _, s := range stored {
		bySentence[s.Sentence] = s
	}
	out := make([]*types.Sentence, 0, len(unique))
	for _, s := range unique {
		if st, ok := bySentence[s.Sentence]; ok {
			out = append(out, st)
		}
	}
	return out, nil
}

func (r *sentenceRepo) LinkToLesson(dbc dbctx.Context, lessonID uuid.UUID, sentenceIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if lessonID == uuid.Nil || len(sentenceIDs) == 0 {
		return nil
	}
	links := make([]*types.LessonSentence, 0, len(sentenceIDs))
	for i, id := range sentenceIDs {
		links = append(links, &types.LessonSentence{LessonID: lessonID, SentenceID: id, Position: i})
	}
	return transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "lesson_id"}, {Name: "sentence_id"}},
			DoNothing: true,
		}).
		Create(&links).Error
}

func (r *sentenceRepo) ListByLesson(dbc dbctx.Context, lessonID uuid.UUID) ([]*types.Sentence, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Sentence
	if lessonID == uuid.Nil {
		return out, nil
	}
	if err := transaction.WithContext(ctxutil.Default(dbc.Ctx)).
		Model(&types.Sentence{}).
		Joins("JOIN lesson_sentence ON lesson_sentence.sentence_id = sentence.id").
		Where("lesson_sentence.lesson_id = ?", lessonID).
		Order("lesson_sentence.position ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sentenceRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.Sentence, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Sentence
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(ctxutil.Default(dbc.Ctx)).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *sentenceRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return transaction.WithContext(ctxutil.Default(dbc.Ctx)).Model(&types.Sentence{}).Where("id = ?", id).Updates(updates).Error
}
