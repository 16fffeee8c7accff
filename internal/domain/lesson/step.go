package lesson

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Step struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ActivityID uuid.UUID      `gorm:"type:uuid;column:activity_id;not null;index" json:"activity_id"`
	Kind       StepKind       `gorm:"column:kind;not null" json:"kind"`
	Position   int            `gorm:"column:position;not null;default:0" json:"position"`
	Content    datatypes.JSON `gorm:"column:content;type:jsonb" json:"content"`
	Visual     datatypes.JSON `gorm:"column:visual;type:jsonb" json:"visual,omitempty"`
	ImageURL   string         `gorm:"column:image_url" json:"image_url,omitempty"`
	AudioURL   string         `gorm:"column:audio_url" json:"audio_url,omitempty"`
	WordID     *uuid.UUID     `gorm:"type:uuid;column:word_id;index" json:"word_id,omitempty"`
	SentenceID *uuid.UUID     `gorm:"type:uuid;column:sentence_id;index" json:"sentence_id,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Step) TableName() string { return "step" }

func (s *Step) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// HasVisual reports whether the step already carries a non-empty visual payload.
func (s *Step) HasVisual() bool {
	if s == nil {
		return false
	}
	raw := strings.TrimSpace(string(s.Visual))
	return raw != "" && raw != "null" && raw != "{}"
}

// DecodeVisual returns the step's visual payload, or nil when absent or malformed.
func (s *Step) DecodeVisual() *VisualPayload {
	if !s.HasVisual() {
		return nil
	}
	var v VisualPayload
	if err := json.Unmarshal(s.Visual, &v); err != nil {
		return nil
	}
	return &v
}

// StaticContent is the shape of static, vocabulary-free text steps.
type StaticContent struct {
	Text string `json:"text"`
}

type MultipleChoiceOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
	Feedback  string `json:"feedback,omitempty"`
}

type MultipleChoiceContent struct {
	Question string                 `json:"question"`
	Options  []MultipleChoiceOption `json:"options"`
}

type SelectImageOption struct {
	ID        string `json:"id"`
	Prompt    string `json:"prompt"`
	IsCorrect bool   `json:"is_correct"`
	Feedback  string `json:"feedback,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
}

type SelectImageContent struct {
	Question string              `json:"question"`
	Options  []SelectImageOption `json:"options"`
}

// MissingImages reports the indices of options without a rendered image.
func (c SelectImageContent) MissingImages() []int {
	var out []int
	for i, o := range c.Options {
		if strings.TrimSpace(o.ImageURL) == "" && strings.TrimSpace(o.Prompt) != "" {
			out = append(out, i)
		}
	}
	return out
}

type StoryChoiceOption struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Consequence string `json:"consequence,omitempty"`
	IsCorrect   bool   `json:"is_correct"`
}

type StoryChoiceContent struct {
	Situation string              `json:"situation"`
	Options   []StoryChoiceOption `json:"options"`
}

// VocabularyContent references a shared Word row.
type VocabularyContent struct {
	Word        string `json:"word"`
	Translation string `json:"translation"`
}

// SentenceContent references a shared Sentence row.
type SentenceContent struct {
	Sentence    string `json:"sentence"`
	Translation string `json:"translation"`
}

// RefContent is the whole content of a step that re-presents a shared row;
// text and audio are read from the referenced Word or Sentence.
type RefContent struct {
	WordID     *uuid.UUID `json:"word_id,omitempty"`
	SentenceID *uuid.UUID `json:"sentence_id,omitempty"`
}

// VisualKind tells the image stage what a visual payload expects.
type VisualKind string

const (
	VisualImage   VisualKind = "image"
	VisualDiagram VisualKind = "diagram"
	VisualQuote   VisualKind = "quote"
	VisualNone    VisualKind = "none"
)

type VisualPayload struct {
	Kind        VisualKind `json:"kind"`
	Description string     `json:"description,omitempty"`
	Prompt      string     `json:"prompt,omitempty"`
}

// WantsImage reports whether the visual asks for a rendered asset.
func (v *VisualPayload) WantsImage() bool {
	if v == nil {
		return false
	}
	return v.Kind == VisualImage && strings.TrimSpace(v.Prompt) != ""
}
