package fusion

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/chronicle/internal/domain/timeline"
	"github.com/ehr/chronicle/internal/platform/hl7time"
	"github.com/ehr/chronicle/internal/platform/recordstore"
)

const (
	maxActiveDiagnoses   = 6
	maxActiveMedications = 6
	maxRecentLabs        = 8
	maxRecentProcedures  = 6

	// Records without an encounter link count as related when they fall
	// within this window of the event, on either side.
	recentWindow = 7 * 24 * time.Hour
)

// Fuser enriches timeline events with the clinical context recoverable from
// the CSV tables: the framing encounter, its provider and facility, and the
// diagnoses, medications, labs, and procedures related to each event.
type Fuser struct {
	store *recordstore.Store
	log   zerolog.Logger
}

func NewFuser(store *recordstore.Store, log zerolog.Logger) *Fuser {
	return &Fuser{store: store, log: log}
}

// relatedRow is one candidate record from a patient's CSV tables, reduced to
// what context resolution needs.
type relatedRow struct {
	description string
	code        string
	value       string
	units       string
	start       time.Time
	stop        time.Time
	hasStart    bool
	hasStop     bool
	encounterID string
}

// contextIndex holds one patient's context tables, loaded once per Enrich
// call and shared across all events.
type contextIndex struct {
	encounters    map[string]recordstore.Row
	encounterList []recordstore.Row
	providers     map[string]string
	organizations map[string]string
	conditions    []relatedRow
	medications   []relatedRow
	labs          []relatedRow
	procedures    []relatedRow
}

// Enrich wraps every event with its clinical context and provenance. An empty
// patient UUID yields events with empty context but intact provenance.
func (f *Fuser) Enrich(patientUUID string, events []timeline.Event) []EnrichedEvent {
	idx := f.buildIndex(patientUUID)
	out := make([]EnrichedEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, EnrichedEvent{
			Event:           ev,
			ClinicalContext: f.resolveContext(ev, idx),
			Provenance: Provenance{
				SourceDataset: ev.SourceDataset,
				SourceFile:    ev.SourceFile,
				RawContext:    ev.Context,
			},
		})
	}
	f.log.Debug().
		Str("patient_uuid", patientUUID).
		Int("events", len(out)).
		Msg("timeline enriched")
	return out
}

func (f *Fuser) buildIndex(patientUUID string) *contextIndex {
	idx := &contextIndex{
		encounters:    map[string]recordstore.Row{},
		providers:     map[string]string{},
		organizations: map[string]string{},
	}
	if patientUUID == "" {
		return idx
	}

	if rows, err := f.store.ReadTable("providers"); err == nil {
		for _, row := range rows {
			if id := row.Get("Id"); id != "" {
				idx.providers[id] = row.Get("NAME")
			}
		}
	}
	if rows, err := f.store.ReadTable("organizations"); err == nil {
		for _, row := range rows {
			if id := row.Get("Id"); id != "" {
				idx.organizations[id] = row.Get("NAME")
			}
		}
	}

	if rows, err := f.store.TableRowsForPatient("encounters", patientUUID); err == nil {
		for _, row := range rows {
			id := row.Get("Id")
			if id == "" {
				continue
			}
			idx.encounters[id] = row
			idx.encounterList = append(idx.encounterList, row)
		}
	}

	if rows, err := f.store.TableRowsForPatient("conditions", patientUUID); err == nil {
		for _, row := range rows {
			r := relatedRow{
				description: defaultString(row.Get("DESCRIPTION"), "Condition"),
				code:        row.Get("CODE"),
				encounterID: row.Get("ENCOUNTER"),
			}
			r.start, r.hasStart = tableTime(row.Get("START"))
			r.stop, r.hasStop = tableTime(row.Get("STOP"))
			idx.conditions = append(idx.conditions, r)
		}
	}
	if rows, err := f.store.TableRowsForPatient("medications", patientUUID); err == nil {
		for _, row := range rows {
			r := relatedRow{
				description: defaultString(row.Get("DESCRIPTION"), "Medication"),
				code:        row.Get("CODE"),
				encounterID: row.Get("ENCOUNTER"),
			}
			r.start, r.hasStart = tableTime(row.Get("START"))
			r.stop, r.hasStop = tableTime(row.Get("STOP"))
			idx.medications = append(idx.medications, r)
		}
	}
	if rows, err := f.store.TableRowsForPatient("observations", patientUUID); err == nil {
		for _, row := range rows {
			r := relatedRow{
				description: defaultString(row.Get("DESCRIPTION"), "Observation"),
				code:        row.Get("CODE"),
				value:       row.Get("VALUE"),
				units:       row.Get("UNITS"),
				encounterID: row.Get("ENCOUNTER"),
			}
			r.start, r.hasStart = tableTime(row.Get("DATE"))
			idx.labs = append(idx.labs, r)
		}
	}
	if rows, err := f.store.TableRowsForPatient("procedures", patientUUID); err == nil {
		for _, row := range rows {
			r := relatedRow{
				description: defaultString(row.Get("DESCRIPTION"), "Procedure"),
				code:        row.Get("CODE"),
				encounterID: row.Get("ENCOUNTER"),
			}
			r.start, r.hasStart = tableTime(defaultString(row.Get("DATE"), row.Get("START")))
			idx.procedures = append(idx.procedures, r)
		}
	}
	return idx
}

func (f *Fuser) resolveContext(ev timeline.Event, idx *contextIndex) ClinicalContext {
	eventTime, hasTime := tableTime(ev.TimeStart)
	encounter := resolveEncounter(ev, eventTime, hasTime, idx)

	ctx := ClinicalContext{
		RelatedDiagnoses:   []RelatedEntity{},
		RelatedMedications: []RelatedEntity{},
		RelatedLabs:        []RelatedEntity{},
		RelatedProcedures:  []RelatedEntity{},
	}
	encounterID := ""
	if encounter != nil {
		encounterID = encounter.Get("Id")
		ctx.EncounterID = encounterID
		ctx.EncounterClass = encounter.Get("ENCOUNTERCLASS")
		ctx.ReasonCode = encounter.Get("REASONCODE")
		ctx.ReasonDescription = encounter.Get("REASONDESCRIPTION")
		ctx.Provider = idx.providers[encounter.Get("PROVIDER")]
		ctx.Facility = idx.organizations[encounter.Get("ORGANIZATION")]
	}

	for _, c := range idx.conditions {
		if len(ctx.RelatedDiagnoses) == maxActiveDiagnoses {
			break
		}
		if activeAt(c, eventTime, hasTime) || sharesEncounter(c, encounterID) {
			ctx.RelatedDiagnoses = append(ctx.RelatedDiagnoses, RelatedEntity{
				Description: c.description, Code: c.code,
			})
		}
	}
	for _, m := range idx.medications {
		if len(ctx.RelatedMedications) == maxActiveMedications {
			break
		}
		if activeAt(m, eventTime, hasTime) || sharesEncounter(m, encounterID) {
			ctx.RelatedMedications = append(ctx.RelatedMedications, RelatedEntity{
				Description: m.description, Code: m.code,
			})
		}
	}
	for _, l := range idx.labs {
		if len(ctx.RelatedLabs) == maxRecentLabs {
			break
		}
		if sharesEncounter(l, encounterID) || nearby(l, eventTime, hasTime) {
			ctx.RelatedLabs = append(ctx.RelatedLabs, RelatedEntity{
				Description: l.description, Code: l.code, Value: l.value, Units: l.units,
			})
		}
	}
	for _, p := range idx.procedures {
		if len(ctx.RelatedProcedures) == maxRecentProcedures {
			break
		}
		if sharesEncounter(p, encounterID) || nearby(p, eventTime, hasTime) {
			ctx.RelatedProcedures = append(ctx.RelatedProcedures, RelatedEntity{
				Description: p.description, Code: p.code,
			})
		}
	}
	return ctx
}

// resolveEncounter picks the encounter framing an event: the one the event
// references, else the one whose stay contains the event time, else the one
// whose start is nearest.
func resolveEncounter(ev timeline.Event, eventTime time.Time, hasTime bool, idx *contextIndex) *recordstore.Row {
	if id := ev.Context["encounter_id"]; id != "" {
		if row, ok := idx.encounters[id]; ok {
			return &row
		}
	}
	if !hasTime {
		return nil
	}
	for i := range idx.encounterList {
		row := idx.encounterList[i]
		start, okStart := tableTime(row.Get("START"))
		stop, okStop := tableTime(row.Get("STOP"))
		if okStart && okStop && !eventTime.Before(start) && !eventTime.After(stop) {
			return &row
		}
	}
	var nearest *recordstore.Row
	var best time.Duration
	for i := range idx.encounterList {
		row := idx.encounterList[i]
		start, ok := tableTime(row.Get("START"))
		if !ok {
			continue
		}
		delta := absDuration(eventTime.Sub(start))
		if nearest == nil || delta < best {
			nearest = &idx.encounterList[i]
			best = delta
		}
	}
	return nearest
}

// activeAt reports whether a dated record's span covers the event time. A
// record with no start date is never active.
func activeAt(r relatedRow, t time.Time, hasTime bool) bool {
	if !hasTime || !r.hasStart {
		return false
	}
	if t.Before(r.start) {
		return false
	}
	if r.hasStop && t.After(r.stop) {
		return false
	}
	return true
}

func nearby(r relatedRow, t time.Time, hasTime bool) bool {
	if !hasTime || !r.hasStart {
		return false
	}
	return absDuration(t.Sub(r.start)) <= recentWindow
}

func sharesEncounter(r relatedRow, encounterID string) bool {
	return encounterID != "" && r.encounterID == encounterID
}

func tableTime(raw string) (time.Time, bool) {
	canonical, ok := hl7time.Normalize(raw)
	if !ok {
		return time.Time{}, false
	}
	return hl7time.Parse(canonical)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
