package generation

import (
	"github.com/google/uuid"

	"github.com/yungbote/lessonforge/internal/domain/lesson"
)

type Decision int

const (
	DecisionGenerate Decision = iota
	DecisionNotifyOnly
	DecisionSkip
)

func (d Decision) String() string {
	switch d {
	case DecisionGenerate:
		return "generate"
	case DecisionNotifyOnly:
		return "notify_only"
	case DecisionSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// Classify decides what a lane does with an activity row. A nil row is
// structurally absent. A running row under the same run is a crash re-entry and
// generates again.
func Classify(a *lesson.Activity, runID uuid.UUID) Decision {
	if a == nil {
		return DecisionSkip
	}
	switch a.GenerationStatus {
	case lesson.StatusCompleted:
		if a.StepCount > 0 {
			return DecisionNotifyOnly
		}
		return DecisionGenerate
	case lesson.StatusRunning:
		if a.OwnedBy(runID) {
			return DecisionGenerate
		}
		return DecisionSkip
	default:
		return DecisionGenerate
	}
}

// contentAvailable is the resolver fast path. Steps on a running row were
// persisted ahead of enrichment; steps on a pending row are leftovers of a
// reset and are not trusted.
func contentAvailable(a *lesson.Activity) bool {
	if a == nil || a.StepCount == 0 {
		return false
	}
	return a.GenerationStatus == lesson.StatusCompleted || a.GenerationStatus == lesson.StatusRunning
}
