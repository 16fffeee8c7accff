package generation

import (
	"fmt"
	"sort"

	"github.com/yungbote/lessonforge/internal/domain/lesson"
)

// prerequisites maps a kind to the kinds whose content it needs. Enrichment
// has no cross-activity dependency and is not represented here.
var prerequisites = map[lesson.ActivityKind][]lesson.ActivityKind{
	lesson.KindExplanation:    {lesson.KindBackground},
	lesson.KindMechanics:      {lesson.KindExplanation},
	lesson.KindQuiz:           {lesson.KindExplanation},
	lesson.KindExamples:       {lesson.KindExplanation},
	lesson.KindStory:          {lesson.KindExplanation},
	lesson.KindChallenge:      {lesson.KindExplanation},
	lesson.KindReview:         {lesson.KindBackground, lesson.KindExplanation, lesson.KindMechanics, lesson.KindExamples},
	lesson.KindReading:        {lesson.KindVocabulary},
	lesson.KindListening:      {lesson.KindReading},
	lesson.KindLanguageReview: {lesson.KindVocabulary, lesson.KindReading},
}

// Prerequisites returns the ordered prerequisite kinds for kind.
func Prerequisites(kind lesson.ActivityKind) []lesson.ActivityKind {
	deps := prerequisites[kind]
	out := make([]lesson.ActivityKind, len(deps))
	copy(out, deps)
	return out
}

// Dependents returns every kind that lists kind as a prerequisite, in
// canonical kind order.
func Dependents(kind lesson.ActivityKind) []lesson.ActivityKind {
	var out []lesson.ActivityKind
	for _, k := range lesson.AllKinds {
		for _, dep := range prerequisites[k] {
			if dep == kind {
				out = append(out, k)
				break
			}
		}
	}
	return out
}

// EnrichmentProfile says which secondary stages a kind runs.
type EnrichmentProfile struct {
	Visuals bool
	Images  bool
	Audio   bool
}

func (p EnrichmentProfile) Any() bool { return p.Visuals || p.Images || p.Audio }

var profiles = map[lesson.ActivityKind]EnrichmentProfile{
	lesson.KindBackground:  {Visuals: true, Images: true},
	lesson.KindExplanation: {Visuals: true, Images: true},
	lesson.KindMechanics:   {Visuals: true, Images: true},
	lesson.KindExamples:    {Visuals: true, Images: true},
	lesson.KindCustom:      {Visuals: true, Images: true},
	lesson.KindQuiz:        {Images: true},
	lesson.KindVocabulary:  {Audio: true},
	lesson.KindReading:     {Audio: true},
	// copies pick up the audio already rendered for the referenced rows
	lesson.KindListening:      {Audio: true},
	lesson.KindLanguageReview: {Audio: true},
}

func ProfileFor(kind lesson.ActivityKind) EnrichmentProfile {
	return profiles[kind]
}

// ValidateGraph checks that every referenced kind is known and that the
// prerequisite relation is acyclic.
func ValidateGraph() error {
	kinds := make([]string, 0, len(prerequisites))
	for k := range prerequisites {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := map[lesson.ActivityKind]int{}
	var visit func(k lesson.ActivityKind, path []lesson.ActivityKind) error
	visit = func(k lesson.ActivityKind, path []lesson.ActivityKind) error {
		if !k.Valid() {
			return fmt.Errorf("unknown kind %q", k)
		}
		switch state[k] {
		case visiting:
			return fmt.Errorf("dependency cycle: %v -> %s", path, k)
		case done:
			return nil
		}
		state[k] = visiting
		for _, dep := range prerequisites[k] {
			if err := visit(dep, append(path, k)); err != nil {
				return err
			}
		}
		state[k] = done
		return nil
	}
	for _, k := range kinds {
		if err := visit(lesson.ActivityKind(k), nil); err != nil {
			return err
		}
	}
	return nil
}
