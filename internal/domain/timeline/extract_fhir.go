package timeline

import (
	"os"
	"strings"

	"github.com/ehr/chronicle/internal/platform/fhir"
	"github.com/ehr/chronicle/internal/platform/hl7time"
	"github.com/ehr/chronicle/internal/platform/recordstore"
)

// fhirExtractor decodes each matched bundle and emits one event per time
// field per resource. Resource types map onto the canonical categories;
// everything unrecognized lands in clinical_context_time rather than being
// dropped.
type fhirExtractor struct {
	docs []recordstore.DocumentRef
}

func (e *fhirExtractor) Name() string { return "fhir_events" }

func (e *fhirExtractor) Extract(seq *Sequence) []Event {
	var events []Event
	for _, doc := range e.docs {
		raw, err := os.ReadFile(doc.Path)
		if err != nil {
			continue
		}
		bundle, err := fhir.Decode(raw)
		if err != nil {
			continue
		}
		for _, res := range bundle.Entries {
			if res.Type() == "Patient" {
				continue
			}
			events = append(events, resourceEvents(seq, res, doc)...)
		}
	}
	return events
}

func resourceEvents(seq *Sequence, res fhir.Resource, doc recordstore.DocumentRef) []Event {
	category, subtype := fhirClassify(res.Type())
	value, unit := res.Value()
	var events []Event
	for _, tf := range res.TimeFields() {
		start, _ := hl7time.Normalize(tf.Start)
		end, _ := hl7time.Normalize(tf.End)
		if start == "" && end != "" {
			// Period with only an end bound still anchors the event.
			start, end = end, ""
		}
		events = append(events, Event{
			EventID:         seq.Next(),
			Category:        category,
			Subtype:         subtype + ":" + tf.Label,
			TimeStart:       start,
			TimeEnd:         end,
			Description:     res.Display(),
			Code:            res.Code(),
			Value:           value,
			Unit:            unit,
			FlaggedAbnormal: res.FlaggedAbnormal(),
			SourceDataset:   string(doc.Dataset),
			SourceFile:      doc.Path,
			Context: contextMap(
				"resource_type", res.Type(),
				"resource_id", res.ID(),
				"encounter_id", res.EncounterRef(),
			),
		})
	}
	return events
}

func fhirClassify(resourceType string) (category, subtype string) {
	switch resourceType {
	case "Condition":
		return CategoryDiagnosisOnset, "condition_event"
	case "MedicationRequest", "MedicationOrder", "MedicationStatement", "MedicationAdministration":
		return CategoryTreatmentChange, "medication_event"
	case "Procedure", "CarePlan", "ServiceRequest":
		return CategoryTreatmentChange, strings.ToLower(resourceType) + "_event"
	case "Encounter":
		return CategoryAdmissionDischarge, "encounter_cycle"
	case "Observation":
		return CategoryLabTrend, "observation"
	default:
		return CategoryClinicalContext, strings.ToLower(resourceType) + "_time"
	}
}
