package generation

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/lessonforge/internal/domain/lesson"
	"github.com/yungbote/lessonforge/internal/pkg/logger"
)

//go:embed lesson_pipeline.yaml
var embeddedPlan []byte

// StageRef is one "stage:kind" entry of a wave.
type StageRef struct {
	Stage Stage
	Kind  lesson.ActivityKind
}

func (r StageRef) String() string { return string(r.Stage) + ":" + string(r.Kind) }

func ParseStageRef(s string) (StageRef, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return StageRef{}, fmt.Errorf("stage %q: want stage:kind", s)
	}
	ref := StageRef{Stage: Stage(parts[0])}
	if !ref.Stage.Valid() {
		return StageRef{}, fmt.Errorf("stage %q: unknown stage %q", s, parts[0])
	}
	kind, ok := lesson.ParseKind(parts[1])
	if !ok {
		return StageRef{}, fmt.Errorf("stage %q: unknown kind %q", s, parts[1])
	}
	ref.Kind = kind
	return ref, nil
}

type Wave struct {
	Name   string
	Stages []StageRef
}

// Plan is the ordered wave list for a core lesson.
type Plan struct {
	Waves []Wave
}

type planFile struct {
	Waves []struct {
		Name   string   `yaml:"name"`
		Stages []string `yaml:"stages"`
	} `yaml:"waves"`
}

func ParsePlan(raw []byte) (*Plan, error) {
	var f planFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	p := &Plan{}
	for i, w := range f.Waves {
		wave := Wave{Name: w.Name}
		if wave.Name == "" {
			wave.Name = fmt.Sprintf("wave-%d", i+1)
		}
		for _, s := range w.Stages {
			ref, err := ParseStageRef(s)
			if err != nil {
				return nil, fmt.Errorf("wave %s: %w", wave.Name, err)
			}
			wave.Stages = append(wave.Stages, ref)
		}
		p.Waves = append(p.Waves, wave)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadPlan reads path when set, else the embedded plan. An invalid embedded
// plan falls back to DefaultPlan.
func LoadPlan(log *logger.Logger, path string) (*Plan, error) {
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read plan %s: %w", path, err)
		}
		return ParsePlan(raw)
	}
	p, err := ParsePlan(embeddedPlan)
	if err != nil {
		if log != nil {
			log.Warn("Embedded wave plan invalid, using built-in plan", "error", err)
		}
		return DefaultPlan(), nil
	}
	return p, nil
}

func waveOf(kinds ...lesson.ActivityKind) func(Stage) []StageRef {
	return func(s Stage) []StageRef {
		out := make([]StageRef, 0, len(kinds))
		for _, k := range kinds {
			out = append(out, StageRef{Stage: s, Kind: k})
		}
		return out
	}
}

func concat(parts ...[]StageRef) []StageRef {
	var out []StageRef
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// DefaultPlan mirrors lesson_pipeline.yaml.
func DefaultPlan() *Plan {
	return &Plan{Waves: []Wave{
		{Name: "background", Stages: waveOf(lesson.KindBackground)(StageContent)},
		{Name: "explanation", Stages: concat(
			waveOf(lesson.KindExplanation)(StageContent),
			waveOf(lesson.KindBackground)(StageVisuals),
		)},
		{Name: "explanation-dependents", Stages: concat(
			waveOf(lesson.KindMechanics, lesson.KindQuiz, lesson.KindExamples, lesson.KindStory, lesson.KindChallenge)(StageContent),
			waveOf(lesson.KindExplanation)(StageVisuals),
			waveOf(lesson.KindBackground)(StageImages),
		)},
		{Name: "review", Stages: concat(
			waveOf(lesson.KindReview)(StageContent),
			waveOf(lesson.KindMechanics, lesson.KindExamples)(StageVisuals),
			waveOf(lesson.KindQuiz, lesson.KindExplanation)(StageImages),
			waveOf(lesson.KindBackground, lesson.KindStory, lesson.KindChallenge)(StageComplete),
		)},
		{Name: "late-assets", Stages: concat(
			waveOf(lesson.KindMechanics, lesson.KindExamples)(StageImages),
			waveOf(lesson.KindExplanation, lesson.KindQuiz, lesson.KindReview)(StageComplete),
		)},
		{Name: "finish", Stages: waveOf(lesson.KindMechanics, lesson.KindExamples)(StageComplete)},
	}}
}

// Kinds lists every kind the plan schedules, in first-seen order.
func (p *Plan) Kinds() []lesson.ActivityKind {
	seen := map[lesson.ActivityKind]bool{}
	var out []lesson.ActivityKind
	for _, w := range p.Waves {
		for _, s := range w.Stages {
			if !seen[s.Kind] {
				seen[s.Kind] = true
				out = append(out, s.Kind)
			}
		}
	}
	return out
}

// Validate checks that each kind's stages run in lane order in strictly
// increasing waves, that every kind is completed after its last enrichment
// stage, and that prerequisites' content precedes a kind's content.
func (p *Plan) Validate() error {
	if p == nil || len(p.Waves) == 0 {
		return fmt.Errorf("plan has no waves")
	}
	at := map[lesson.ActivityKind]map[Stage]int{}
	for i, w := range p.Waves {
		for _, s := range w.Stages {
			if at[s.Kind] == nil {
				at[s.Kind] = map[Stage]int{}
			}
			if _, dup := at[s.Kind][s.Stage]; dup {
				return fmt.Errorf("%s scheduled twice", s)
			}
			at[s.Kind][s.Stage] = i
		}
	}
	for kind, stages := range at {
		content, ok := stages[StageContent]
		if !ok {
			return fmt.Errorf("%s has no content stage", kind)
		}
		done, ok := stages[StageComplete]
		if !ok {
			return fmt.Errorf("%s is never completed", kind)
		}
		prev := content
		for _, s := range []Stage{StageVisuals, StageImages} {
			if w, ok := stages[s]; ok {
				if w <= prev {
					return fmt.Errorf("%s:%s must run after the previous stage of its lane", s, kind)
				}
				prev = w
			}
		}
		if done <= prev {
			return fmt.Errorf("complete:%s must run after every other stage of its lane", kind)
		}
		profile := ProfileFor(kind)
		if _, ok := stages[StageVisuals]; profile.Visuals && !ok {
			return fmt.Errorf("%s needs a visuals stage", kind)
		}
		if _, ok := stages[StageImages]; (profile.Images || profile.Audio) && !ok {
			return fmt.Errorf("%s needs an images stage", kind)
		}
		for _, dependent := range Dependents(kind) {
			later, ok := at[dependent]
			if !ok {
				continue
			}
			if later[StageContent] <= content {
				return fmt.Errorf("content:%s must run after content:%s", dependent, kind)
			}
		}
	}
	return nil
}
