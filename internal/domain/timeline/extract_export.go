package timeline

import (
	"fmt"
	"strings"

	"github.com/ehr/chronicle/internal/platform/hl7time"
	"github.com/ehr/chronicle/internal/platform/recordstore"
)

// exportExtractor mines the latest profile export for the row whose
// patient_id or medical_record_number matches one of the resolved
// identifiers, and lifts its clinical sub-objects into events: diagnoses,
// current medications, lab results, and the top-level admission date. Entries
// without a parsable date are skipped in place.
type exportExtractor struct {
	store       *recordstore.Store
	identifiers []string
}

func (e *exportExtractor) Name() string { return "profile_export_events" }

func (e *exportExtractor) Extract(seq *Sequence) []Event {
	rows, err := e.store.ProfileExportRows()
	if err != nil {
		return nil
	}
	wanted := map[string]bool{}
	for _, id := range e.identifiers {
		if id = strings.TrimSpace(id); id != "" {
			wanted[strings.ToLower(id)] = true
		}
	}
	for _, row := range rows {
		pid := strings.ToLower(row.PayloadString("patient_id"))
		mrn := strings.ToLower(row.PayloadString("medical_record_number"))
		if !wanted[pid] && !wanted[mrn] {
			continue
		}
		return e.payloadEvents(seq, row)
	}
	return nil
}

func (e *exportExtractor) payloadEvents(seq *Sequence, row recordstore.ProfileRow) []Event {
	var events []Event
	for _, entry := range payloadList(row.Payload, "diagnoses") {
		start, ok := hl7time.Normalize(payloadField(entry, "date_diagnosed"))
		if !ok {
			continue
		}
		events = append(events, Event{
			EventID:       seq.Next(),
			Category:      CategoryDiagnosisOnset,
			Subtype:       "diagnosis_start",
			TimeStart:     start,
			Description:   orDefault(payloadField(entry, "condition"), "Diagnosis"),
			Code:          payloadField(entry, "icd_code"),
			SourceDataset: string(recordstore.DatasetProfileExport),
			SourceFile:    row.SourceFile,
			Context:       contextMap("status", payloadField(entry, "status")),
		})
	}
	for _, entry := range payloadList(row.Payload, "current_medications") {
		start, ok := hl7time.Normalize(payloadField(entry, "prescribed_at"))
		if !ok {
			continue
		}
		events = append(events, Event{
			EventID:       seq.Next(),
			Category:      CategoryTreatmentChange,
			Subtype:       "medication_start",
			TimeStart:     start,
			Description:   orDefault(payloadField(entry, "name"), "Medication"),
			SourceDataset: string(recordstore.DatasetProfileExport),
			SourceFile:    row.SourceFile,
			Context:       contextMap("dosage", payloadField(entry, "dosage")),
		})
	}
	for _, entry := range payloadList(row.Payload, "lab_results") {
		start, ok := hl7time.Normalize(payloadField(entry, "date_performed"))
		if !ok {
			continue
		}
		flagged, _ := entry["flagged"].(bool)
		events = append(events, Event{
			EventID:         seq.Next(),
			Category:        CategoryLabTrend,
			Subtype:         "observation",
			TimeStart:       start,
			Description:     orDefault(payloadField(entry, "test_name"), "Lab"),
			Value:           payloadField(entry, "result"),
			Unit:            payloadField(entry, "unit"),
			FlaggedAbnormal: flagged,
			SourceDataset:   string(recordstore.DatasetProfileExport),
			SourceFile:      row.SourceFile,
		})
	}
	if admission, ok := hl7time.Normalize(row.PayloadString("admission_date")); ok {
		events = append(events, Event{
			EventID:       seq.Next(),
			Category:      CategoryAdmissionDischarge,
			Subtype:       "admission",
			TimeStart:     admission,
			Description:   "Admission date",
			SourceDataset: string(recordstore.DatasetProfileExport),
			SourceFile:    row.SourceFile,
		})
	}
	return events
}

// payloadList returns a payload section's object entries, tolerating absent
// or differently-shaped sections.
func payloadList(payload map[string]interface{}, key string) []map[string]interface{} {
	entries, _ := payload[key].([]interface{})
	var out []map[string]interface{}
	for _, e := range entries {
		if m, ok := e.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

// payloadField reads one entry field as a trimmed string; numbers are
// rendered, since export payloads carry lab results both ways.
func payloadField(entry map[string]interface{}, key string) string {
	v, ok := entry[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}
