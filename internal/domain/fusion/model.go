package fusion

import "github.com/ehr/chronicle/internal/domain/timeline"

// RelatedEntity is one clinically related record surfaced next to an event.
// Description holds the condition, medication, lab, or procedure name; Value
// and Units are populated for labs only.
type RelatedEntity struct {
	Description string `json:"description"`
	Code        string `json:"code,omitempty"`
	Value       string `json:"value,omitempty"`
	Units       string `json:"units,omitempty"`
}

// ClinicalContext is the encounter frame and the related records resolved for
// one event. The related lists are always present, empty when nothing
// qualifies.
type ClinicalContext struct {
	EncounterID        string          `json:"encounter_id,omitempty"`
	EncounterClass     string          `json:"encounter_class,omitempty"`
	Provider           string          `json:"provider,omitempty"`
	Facility           string          `json:"facility,omitempty"`
	ReasonCode         string          `json:"reason_code,omitempty"`
	ReasonDescription  string          `json:"reason_description,omitempty"`
	RelatedDiagnoses   []RelatedEntity `json:"related_diagnosis"`
	RelatedMedications []RelatedEntity `json:"related_medication"`
	RelatedLabs        []RelatedEntity `json:"related_lab"`
	RelatedProcedures  []RelatedEntity `json:"related_procedure"`
}

// Provenance records where an event came from, enough to trace it back to the
// originating row or resource.
type Provenance struct {
	SourceDataset string            `json:"source_dataset"`
	SourceFile    string            `json:"source_file"`
	RawContext    map[string]string `json:"raw_context,omitempty"`
}

// EnrichedEvent is a timeline event wrapped with its fused context.
type EnrichedEvent struct {
	timeline.Event
	ClinicalContext ClinicalContext `json:"clinical_context"`
	Provenance      Provenance      `json:"provenance"`
}
