package lesson

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Word is shared across lessons; the natural key de-duplicates it per organization
// and language pair.
type Word struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;column:organization_id;not null;uniqueIndex:idx_word_natural,priority:1" json:"organization_id"`
	TargetLanguage string    `gorm:"column:target_language;not null;uniqueIndex:idx_word_natural,priority:2" json:"target_language"`
	UserLanguage   string    `gorm:"column:user_language;not null;uniqueIndex:idx_word_natural,priority:3" json:"user_language"`
	Word           string    `gorm:"column:word;not null;uniqueIndex:idx_word_natural,priority:4" json:"word"`
	Translation    string    `gorm:"column:translation" json:"translation"`
	Pronunciation  string    `gorm:"column:pronunciation" json:"pronunciation,omitempty"`
	AudioURL       string    `gorm:"column:audio_url" json:"audio_url,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Word) TableName() string { return "word" }

func (w *Word) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

type LessonWord struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LessonID uuid.UUID `gorm:"type:uuid;column:lesson_id;not null;uniqueIndex:idx_lesson_word,priority:1" json:"lesson_id"`
	WordID   uuid.UUID `gorm:"type:uuid;column:word_id;not null;uniqueIndex:idx_lesson_word,priority:2" json:"word_id"`
	Position int       `gorm:"column:position;not null;default:0" json:"position"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (LessonWord) TableName() string { return "lesson_word" }

func (lw *LessonWord) BeforeCreate(tx *gorm.DB) error {
	if lw.ID == uuid.Nil {
		lw.ID = uuid.New()
	}
	return nil
}

type Sentence struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;column:organization_id;not null;uniqueIndex:idx_sentence_natural,priority:1" json:"organization_id"`
	TargetLanguage string    `gorm:"column:target_language;not null;uniqueIndex:idx_sentence_natural,priority:2" json:"target_language"`
	UserLanguage   string    `gorm:"column:user_language;not null;uniqueIndex:idx_sentence_natural,priority:3" json:"user_language"`
	Sentence       string    `gorm:"column:sentence;not null;uniqueIndex:idx_sentence_natural,priority:4" json:"sentence"`
	Translation    string    `gorm:"column:translation" json:"translation"`
	AudioURL       string    `gorm:"column:audio_url" json:"audio_url,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Sentence) TableName() string { return "sentence" }

func (s *Sentence) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

type LessonSentence struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LessonID   uuid.UUID `gorm:"type:uuid;column:lesson_id;not null;uniqueIndex:idx_lesson_sentence,priority:1" json:"lesson_id"`
	SentenceID uuid.UUID `gorm:"type:uuid;column:sentence_id;not null;uniqueIndex:idx_lesson_sentence,priority:2" json:"sentence_id"`
	Position   int       `gorm:"column:position;not null;default:0" json:"position"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (LessonSentence) TableName() string { return "lesson_sentence" }

func (ls *LessonSentence) BeforeCreate(tx *gorm.DB) error {
	if ls.ID == uuid.Nil {
		ls.ID = uuid.New()
	}
	return nil
}
