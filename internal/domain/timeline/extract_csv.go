package timeline

import (
	"sort"
	"strconv"

	"github.com/ehr/chronicle/internal/platform/hl7time"
	"github.com/ehr/chronicle/internal/platform/recordstore"
)

// csvExtractor reads the tabular datasets for one patient uuid and emits
// canonical events per table family.
type csvExtractor struct {
	store       *recordstore.Store
	patientUUID string
}

func (e *csvExtractor) Name() string { return "csv_events" }

func (e *csvExtractor) Extract(seq *Sequence) []Event {
	var events []Event
	events = append(events, e.encounters(seq)...)
	events = append(events, e.conditions(seq)...)
	events = append(events, e.medications(seq)...)
	events = append(events, e.observations(seq)...)
	events = append(events, e.procedures(seq)...)
	events = append(events, e.careplans(seq)...)
	events = append(events, e.immunizations(seq)...)
	return events
}

func (e *csvExtractor) rows(table string) ([]recordstore.Row, string) {
	rows, err := e.store.TableRowsForPatient(table, e.patientUUID)
	if err != nil {
		return nil, e.store.CSVPath(table)
	}
	return rows, e.store.CSVPath(table)
}

// encounters emits one whole-span encounter_cycle event per row, plus an
// admission point for the start bound and a discharge point for the stop
// bound when each is present.
func (e *csvExtractor) encounters(seq *Sequence) []Event {
	rows, src := e.rows("encounters")
	var events []Event
	for _, row := range rows {
		start, _ := hl7time.Normalize(row.Get("START"))
		stop, _ := hl7time.Normalize(row.Get("STOP"))
		desc := orDefault(row.Get("DESCRIPTION"), "Encounter")
		encounterID := row.Get("Id")
		events = append(events, Event{
			EventID:       seq.Next(),
			Category:      CategoryAdmissionDischarge,
			Subtype:       "encounter_cycle",
			TimeStart:     start,
			TimeEnd:       stop,
			Description:   desc,
			Code:          row.Get("CODE"),
			SourceDataset: string(recordstore.DatasetCSV),
			SourceFile:    src,
			Context: contextMap(
				"encounter_id", encounterID,
				"encounter_class", row.Get("ENCOUNTERCLASS"),
				"provider_id", row.Get("PROVIDER"),
				"organization_id", row.Get("ORGANIZATION"),
				"payer_id", row.Get("PAYER"),
				"reason", row.Get("REASONDESCRIPTION"),
			),
		})
		if start != "" {
			events = append(events, Event{
				EventID:       seq.Next(),
				Category:      CategoryAdmissionDischarge,
				Subtype:       "admission",
				TimeStart:     start,
				Description:   desc,
				Code:          row.Get("CODE"),
				SourceDataset: string(recordstore.DatasetCSV),
				SourceFile:    src,
				Context:       contextMap("encounter_id", encounterID),
			})
		}
		if stop != "" {
			events = append(events, Event{
				EventID:       seq.Next(),
				Category:      CategoryAdmissionDischarge,
				Subtype:       "discharge",
				TimeStart:     stop,
				Description:   desc,
				Code:          row.Get("CODE"),
				SourceDataset: string(recordstore.DatasetCSV),
				SourceFile:    src,
				Context:       contextMap("encounter_id", encounterID),
			})
		}
	}
	return events
}

func (e *csvExtractor) conditions(seq *Sequence) []Event {
	rows, src := e.rows("conditions")
	var events []Event
	for _, row := range rows {
		start, _ := hl7time.Normalize(row.Get("START"))
		stop, _ := hl7time.Normalize(row.Get("STOP"))
		base := Event{
			Category:      CategoryDiagnosisOnset,
			Description:   orDefault(row.Get("DESCRIPTION"), "Condition"),
			Code:          row.Get("CODE"),
			SourceDataset: string(recordstore.DatasetCSV),
			SourceFile:    src,
			Context:       contextMap("encounter_id", row.Get("ENCOUNTER")),
		}
		if start != "" {
			onset := base
			onset.EventID = seq.Next()
			onset.Subtype = "diagnosis_start"
			onset.TimeStart = start
			events = append(events, onset)
		}
		if stop != "" {
			resolved := base
			resolved.EventID = seq.Next()
			resolved.Subtype = "diagnosis_resolved"
			resolved.TimeStart = stop
			events = append(events, resolved)
		}
	}
	return events
}

// medications keeps every dated start and stop as its own event; a drug name
// with more than one start additionally gets one synthesized
// medication_restart_or_change event at its latest start.
func (e *csvExtractor) medications(seq *Sequence) []Event {
	rows, src := e.rows("medications")
	var events []Event
	var nameOrder []string
	startsByName := map[string][]string{}
	for _, row := range rows {
		start, _ := hl7time.Normalize(row.Get("START"))
		stop, _ := hl7time.Normalize(row.Get("STOP"))
		desc := orDefault(row.Get("DESCRIPTION"), "Medication")
		ctx := contextMap(
			"encounter_id", row.Get("ENCOUNTER"),
			"reason", row.Get("REASONDESCRIPTION"),
		)
		if start != "" {
			events = append(events, Event{
				EventID:       seq.Next(),
				Category:      CategoryTreatmentChange,
				Subtype:       "medication_start",
				TimeStart:     start,
				Description:   desc,
				Code:          row.Get("CODE"),
				SourceDataset: string(recordstore.DatasetCSV),
				SourceFile:    src,
				Context:       ctx,
			})
			if _, seen := startsByName[desc]; !seen {
				nameOrder = append(nameOrder, desc)
			}
			startsByName[desc] = append(startsByName[desc], start)
		}
		if stop != "" {
			events = append(events, Event{
				EventID:       seq.Next(),
				Category:      CategoryTreatmentChange,
				Subtype:       "medication_stop",
				TimeStart:     stop,
				Description:   desc,
				Code:          row.Get("CODE"),
				SourceDataset: string(recordstore.DatasetCSV),
				SourceFile:    src,
				Context:       ctx,
			})
		}
	}
	for _, name := range nameOrder {
		starts := startsByName[name]
		if len(starts) < 2 {
			continue
		}
		sort.Strings(starts)
		events = append(events, Event{
			EventID:       seq.Next(),
			Category:      CategoryTreatmentChange,
			Subtype:       "medication_restart_or_change",
			TimeStart:     starts[len(starts)-1],
			Description:   name,
			SourceDataset: string(recordstore.DatasetCSV),
			SourceFile:    src,
			Context:       contextMap("starts_observed", strconv.Itoa(len(starts))),
		})
	}
	return events
}

func (e *csvExtractor) observations(seq *Sequence) []Event {
	rows, src := e.rows("observations")
	var events []Event
	for _, row := range rows {
		when, _ := hl7time.Normalize(row.Get("DATE"))
		events = append(events, Event{
			EventID:       seq.Next(),
			Category:      CategoryLabTrend,
			Subtype:       "observation",
			TimeStart:     when,
			Description:   orDefault(row.Get("DESCRIPTION"), "Observation"),
			Code:          row.Get("CODE"),
			Value:         row.Get("VALUE"),
			Unit:          row.Get("UNITS"),
			SourceDataset: string(recordstore.DatasetCSV),
			SourceFile:    src,
			Context: contextMap(
				"encounter_id", row.Get("ENCOUNTER"),
				"category", row.Get("CATEGORY"),
			),
		})
	}
	return events
}

func (e *csvExtractor) procedures(seq *Sequence) []Event {
	rows, src := e.rows("procedures")
	var events []Event
	for _, row := range rows {
		when, _ := hl7time.Normalize(orDefault(row.Get("DATE"), row.Get("START")))
		events = append(events, Event{
			EventID:       seq.Next(),
			Category:      CategoryTreatmentChange,
			Subtype:       "procedure",
			TimeStart:     when,
			Description:   orDefault(row.Get("DESCRIPTION"), "Procedure"),
			Code:          row.Get("CODE"),
			SourceDataset: string(recordstore.DatasetCSV),
			SourceFile:    src,
			Context: contextMap(
				"encounter_id", row.Get("ENCOUNTER"),
				"reason", row.Get("REASONDESCRIPTION"),
			),
		})
	}
	return events
}

func (e *csvExtractor) careplans(seq *Sequence) []Event {
	rows, src := e.rows("careplans")
	var events []Event
	for _, row := range rows {
		start, _ := hl7time.Normalize(row.Get("START"))
		stop, _ := hl7time.Normalize(row.Get("STOP"))
		events = append(events, Event{
			EventID:       seq.Next(),
			Category:      CategoryTreatmentChange,
			Subtype:       "careplan_cycle",
			TimeStart:     start,
			TimeEnd:       stop,
			Description:   orDefault(row.Get("DESCRIPTION"), "Care Plan"),
			Code:          row.Get("CODE"),
			SourceDataset: string(recordstore.DatasetCSV),
			SourceFile:    src,
			Context: contextMap(
				"encounter_id", row.Get("ENCOUNTER"),
				"reason", row.Get("REASONDESCRIPTION"),
			),
		})
	}
	return events
}

func (e *csvExtractor) immunizations(seq *Sequence) []Event {
	rows, src := e.rows("immunizations")
	var events []Event
	for _, row := range rows {
		when, _ := hl7time.Normalize(row.Get("DATE"))
		events = append(events, Event{
			EventID:       seq.Next(),
			Category:      CategoryTreatmentChange,
			Subtype:       "immunization",
			TimeStart:     when,
			Description:   orDefault(row.Get("DESCRIPTION"), "Immunization"),
			Code:          row.Get("CODE"),
			SourceDataset: string(recordstore.DatasetCSV),
			SourceFile:    src,
			Context:       contextMap("encounter_id", row.Get("ENCOUNTER")),
		})
	}
	return events
}
