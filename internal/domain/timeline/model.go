package timeline

import (
	"fmt"

	"github.com/ehr/chronicle/internal/domain/identity"
)

// Event categories.
const (
	CategoryDiagnosisOnset     = "diagnosis_onset"
	CategoryTreatmentChange    = "treatment_change"
	CategoryLabTrend           = "lab_trend"
	CategoryAdmissionDischarge = "admission_discharge"
	CategoryClinicalContext    = "clinical_context_time"
)

// Episode group keys in the build result.
const (
	GroupDiagnosisOnset     = "diagnosis_onset"
	GroupTreatmentChange    = "treatment_change"
	GroupAbnormalLabTrend   = "abnormal_lab_trend"
	GroupAdmissionDischarge = "admission_discharge_cycles"
)

// Event is one normalized, dated clinical fact. Raw fields are never mutated
// after construction; downstream enrichment wraps events instead.
type Event struct {
	EventID         string            `json:"event_id"`
	Category        string            `json:"category"`
	Subtype         string            `json:"subtype"`
	TimeStart       string            `json:"time_start"`
	TimeEnd         string            `json:"time_end,omitempty"`
	Description     string            `json:"description,omitempty"`
	Code            string            `json:"code,omitempty"`
	Value           string            `json:"value,omitempty"`
	Unit            string            `json:"unit,omitempty"`
	FlaggedAbnormal bool              `json:"flagged_abnormal"`
	SourceDataset   string            `json:"source_dataset"`
	SourceFile      string            `json:"source_file"`
	Context         map[string]string `json:"context"`
}

// Episode is a derived grouping of events sharing one clinical thread. It
// references events by id; events are never owned by an episode.
type Episode struct {
	EpisodeType   string                 `json:"episode_type"`
	TestName      string                 `json:"test_name,omitempty"`
	TimeStart     string                 `json:"time_start"`
	TimeEnd       string                 `json:"time_end,omitempty"`
	Description   string                 `json:"description,omitempty"`
	Subtype       string                 `json:"subtype,omitempty"`
	Code          string                 `json:"code,omitempty"`
	SourceDataset string                 `json:"source_dataset,omitempty"`
	EventIDs      []string               `json:"event_ids"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

// Result is the output of one build: the resolved identity, the ascending
// timeline, episodes grouped by type, and per-source diagnostic counts.
type Result struct {
	Identity     *identity.CanonicalIdentity `json:"identity"`
	Timeline     []Event                     `json:"timeline"`
	Episodes     map[string][]Episode        `json:"episodes"`
	SourceCounts map[string]int              `json:"source_counts"`
}

// Sequence issues monotonic per-build event ids. Each build owns its own
// sequence, so concurrent builds for different people never interfere.
type Sequence struct {
	n int
}

// Next returns the next event id.
func (s *Sequence) Next() string {
	s.n++
	return fmt.Sprintf("ev_%06d", s.n)
}
