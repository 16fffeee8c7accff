package generation

// ReasonCode is persisted on a failed activity's generation_failure_reason.
type ReasonCode string

const (
	ReasonNone                    ReasonCode = ""
	ReasonDependencyUnmet         ReasonCode = "dependency_unmet"
	ReasonDependencyTimeout       ReasonCode = "dependency_timeout"
	ReasonGenerationFailed        ReasonCode = "generation_failed"
	ReasonEmptyResult             ReasonCode = "empty_result"
	ReasonPersistFailed           ReasonCode = "persist_failed"
	ReasonVisualFailed            ReasonCode = "visual_failed"
	ReasonPronunciationFailed     ReasonCode = "pronunciation_failed"
	ReasonEnrichmentPersistFailed ReasonCode = "enrichment_persist_failed"
	ReasonRunAborted              ReasonCode = "run_aborted"
)

func (r ReasonCode) String() string { return string(r) }
