package fusion

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/chronicle/internal/domain/timeline"
	"github.com/ehr/chronicle/internal/platform/recordstore"
)

const patientUUID = "7f1e8a84-2d3b-4c5d-9e6f-1a2b3c4d5e6f"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// fixtureFuser builds a data root with one inpatient stay and one outpatient
// visit, a named provider and facility, and related records spread across
// both encounters.
func fixtureFuser(t *testing.T) *Fuser {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "csv", "providers.csv"),
		"Id,NAME,SPECIALITY\nprov-1,Dr. Alice Wong,GENERAL PRACTICE\n")

	writeFile(t, filepath.Join(root, "csv", "organizations.csv"),
		"Id,NAME,CITY\norg-1,Quincy Medical Center,Quincy\n")

	writeFile(t, filepath.Join(root, "csv", "encounters.csv"),
		"Id,START,STOP,PATIENT,PROVIDER,ORGANIZATION,ENCOUNTERCLASS,CODE,DESCRIPTION,REASONCODE,REASONDESCRIPTION\n"+
			"enc-1,2019-01-10T08:00:00Z,2019-01-14T08:00:00Z,"+patientUUID+",prov-1,org-1,inpatient,305351004,Inpatient stay,233604007,Pneumonia\n"+
			"enc-2,2019-03-01T09:00:00Z,2019-03-01T09:30:00Z,"+patientUUID+",prov-1,org-1,ambulatory,185349003,Outpatient visit,,\n")

	writeFile(t, filepath.Join(root, "csv", "conditions.csv"),
		"START,STOP,PATIENT,ENCOUNTER,CODE,DESCRIPTION\n"+
			"2019-01-10T08:30:00Z,,"+patientUUID+",enc-1,59621000,Hypertension\n"+
			"2019-03-01T09:10:00Z,2019-03-15T00:00:00Z,"+patientUUID+",enc-2,444814009,Viral sinusitis\n")

	writeFile(t, filepath.Join(root, "csv", "medications.csv"),
		"START,STOP,PATIENT,ENCOUNTER,CODE,DESCRIPTION\n"+
			"2019-01-14T09:00:00Z,,"+patientUUID+",enc-1,314076,Lisinopril 10 MG\n")

	// The second observation sits on enc-1 but months after the stay; the
	// third is three days after the admission with no encounter link.
	writeFile(t, filepath.Join(root, "csv", "observations.csv"),
		"DATE,PATIENT,ENCOUNTER,CODE,DESCRIPTION,VALUE,UNITS\n"+
			"2019-01-10T10:00:00Z,"+patientUUID+",enc-1,2339-0,Glucose,95,mg/dL\n"+
			"2019-06-01T10:00:00Z,"+patientUUID+",enc-1,2160-0,Creatinine,1.1,mg/dL\n"+
			"2019-01-13T10:00:00Z,"+patientUUID+",,2823-3,Potassium,4.1,mmol/L\n")

	writeFile(t, filepath.Join(root, "csv", "procedures.csv"),
		"DATE,PATIENT,ENCOUNTER,CODE,DESCRIPTION\n"+
			"2019-01-11T10:00:00Z,"+patientUUID+",enc-1,399208008,Chest X-ray\n")

	return NewFuser(recordstore.New(root), zerolog.Nop())
}

func hasRelated(entities []RelatedEntity, description string) bool {
	for _, e := range entities {
		if e.Description == description {
			return true
		}
	}
	return false
}

func TestEnrich_EncounterByReference(t *testing.T) {
	f := fixtureFuser(t)
	events := []timeline.Event{{
		EventID:   "ev_000001",
		Category:  "diagnosis_onset",
		Subtype:   "diagnosis_start",
		TimeStart: "2019-01-10T08:30:00Z",
		Context:   map[string]string{"encounter_id": "enc-1"},
	}}

	out := f.Enrich(patientUUID, events)
	if len(out) != 1 {
		t.Fatalf("enriched %d events, want 1", len(out))
	}
	ctx := out[0].ClinicalContext
	if ctx.EncounterID != "enc-1" {
		t.Fatalf("encounter_id = %q, want enc-1", ctx.EncounterID)
	}
	if ctx.EncounterClass != "inpatient" {
		t.Errorf("encounter_class = %q", ctx.EncounterClass)
	}
	if ctx.Provider != "Dr. Alice Wong" {
		t.Errorf("provider = %q, want the joined provider name", ctx.Provider)
	}
	if ctx.Facility != "Quincy Medical Center" {
		t.Errorf("facility = %q, want the joined organization name", ctx.Facility)
	}
	if ctx.ReasonCode != "233604007" || ctx.ReasonDescription != "Pneumonia" {
		t.Errorf("reason = %q %q", ctx.ReasonCode, ctx.ReasonDescription)
	}
}

func TestEnrich_EncounterByContainmentThenNearest(t *testing.T) {
	f := fixtureFuser(t)
	events := []timeline.Event{
		// Inside the enc-1 stay.
		{EventID: "ev_000001", TimeStart: "2019-01-12T12:00:00Z"},
		// Between encounters, nearer to enc-2's start.
		{EventID: "ev_000002", TimeStart: "2019-02-25T12:00:00Z"},
	}

	out := f.Enrich(patientUUID, events)
	if out[0].ClinicalContext.EncounterID != "enc-1" {
		t.Errorf("contained event resolved to %q, want enc-1", out[0].ClinicalContext.EncounterID)
	}
	if out[1].ClinicalContext.EncounterID != "enc-2" {
		t.Errorf("nearest-start event resolved to %q, want enc-2", out[1].ClinicalContext.EncounterID)
	}
}

func TestEnrich_NoTimeNoReferenceStaysEmpty(t *testing.T) {
	f := fixtureFuser(t)
	out := f.Enrich(patientUUID, []timeline.Event{{EventID: "ev_000001"}})
	ctx := out[0].ClinicalContext
	if ctx.EncounterID != "" || ctx.Provider != "" {
		t.Errorf("undated unlinked event got context %+v", ctx)
	}
	if ctx.RelatedDiagnoses == nil || len(ctx.RelatedDiagnoses) != 0 {
		t.Errorf("related_diagnosis = %v, want an empty list", ctx.RelatedDiagnoses)
	}
}

func TestEnrich_RelatedRecords(t *testing.T) {
	f := fixtureFuser(t)
	events := []timeline.Event{{
		EventID:   "ev_000001",
		TimeStart: "2019-01-10T09:00:00Z",
		Context:   map[string]string{"encounter_id": "enc-1"},
	}}

	ctx := f.Enrich(patientUUID, events)[0].ClinicalContext
	if !hasRelated(ctx.RelatedDiagnoses, "Hypertension") {
		t.Errorf("related_diagnosis = %v, want Hypertension", ctx.RelatedDiagnoses)
	}
	if hasRelated(ctx.RelatedDiagnoses, "Viral sinusitis") {
		t.Errorf("related_diagnosis includes an inactive unrelated condition: %v", ctx.RelatedDiagnoses)
	}
	// Sharing the resolved encounter relates the medication even though its
	// start is after the event time.
	if !hasRelated(ctx.RelatedMedications, "Lisinopril 10 MG") {
		t.Errorf("related_medication = %v, want the enc-1 prescription", ctx.RelatedMedications)
	}
	if !hasRelated(ctx.RelatedProcedures, "Chest X-ray") {
		t.Errorf("related_procedure = %v, want the enc-1 procedure", ctx.RelatedProcedures)
	}
}

func TestEnrich_LabRelatedByEncounterOrWindow(t *testing.T) {
	f := fixtureFuser(t)
	events := []timeline.Event{{
		EventID:   "ev_000001",
		TimeStart: "2019-01-10T09:00:00Z",
		Context:   map[string]string{"encounter_id": "enc-1"},
	}}

	ctx := f.Enrich(patientUUID, events)[0].ClinicalContext
	// Same-day lab on the same encounter.
	if !hasRelated(ctx.RelatedLabs, "Glucose") {
		t.Errorf("related_lab = %v, want Glucose", ctx.RelatedLabs)
	}
	// Months away, but it shares enc-1, so it still relates.
	if !hasRelated(ctx.RelatedLabs, "Creatinine") {
		t.Errorf("related_lab = %v, want the enc-1 Creatinine despite its date", ctx.RelatedLabs)
	}
	// No encounter link, but three days after the event is inside the window
	// on the far side.
	if !hasRelated(ctx.RelatedLabs, "Potassium") {
		t.Errorf("related_lab = %v, want the nearby Potassium", ctx.RelatedLabs)
	}
	for _, l := range ctx.RelatedLabs {
		if l.Description == "Glucose" && (l.Value != "95" || l.Units != "mg/dL") {
			t.Errorf("lab entry = %+v, want value and units carried over", l)
		}
	}
}

func TestEnrich_RelatedListsAreCapped(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "csv", "encounters.csv"),
		"Id,START,STOP,PATIENT,PROVIDER,ORGANIZATION,ENCOUNTERCLASS,DESCRIPTION\n"+
			"enc-1,2019-01-10T08:00:00Z,2019-01-14T08:00:00Z,"+patientUUID+",,,inpatient,Stay\n")
	header := "DATE,PATIENT,ENCOUNTER,CODE,DESCRIPTION,VALUE,UNITS\n"
	body := ""
	for i := 0; i < 12; i++ {
		body += fmt.Sprintf("2019-01-10T10:00:00Z,%s,enc-1,l-%d,Lab %d,%d,mg/dL\n",
			patientUUID, i, i, i)
	}
	writeFile(t, filepath.Join(root, "csv", "observations.csv"), header+body)
	f := NewFuser(recordstore.New(root), zerolog.Nop())

	ctx := f.Enrich(patientUUID, []timeline.Event{{
		EventID:   "ev_000001",
		TimeStart: "2019-01-10T09:00:00Z",
		Context:   map[string]string{"encounter_id": "enc-1"},
	}})[0].ClinicalContext
	if len(ctx.RelatedLabs) != 8 {
		t.Errorf("related_lab has %d entries, want the cap of 8", len(ctx.RelatedLabs))
	}
}

func TestEnrich_AdmissionEventsGetContextToo(t *testing.T) {
	f := fixtureFuser(t)
	events := []timeline.Event{{
		EventID:       "ev_000001",
		Category:      "admission_discharge",
		Subtype:       "admission",
		TimeStart:     "2019-01-10T08:00:00Z",
		SourceDataset: "csv",
		SourceFile:    "encounters.csv",
		Context:       map[string]string{"encounter_id": "enc-1"},
	}}

	out := f.Enrich(patientUUID, events)
	ctx := out[0].ClinicalContext
	if ctx.EncounterID != "enc-1" || ctx.Provider == "" || ctx.Facility == "" {
		t.Errorf("admission event context = %+v, want full enrichment", ctx)
	}
	prov := out[0].Provenance
	if prov.SourceDataset != "csv" || prov.SourceFile != "encounters.csv" {
		t.Errorf("provenance = %+v", prov)
	}
	if prov.RawContext["encounter_id"] != "enc-1" {
		t.Errorf("raw_context = %v", prov.RawContext)
	}
}

func TestEnrich_UnknownPatientGetsEmptyContext(t *testing.T) {
	f := fixtureFuser(t)
	out := f.Enrich("", []timeline.Event{{
		EventID:   "ev_000001",
		TimeStart: "2019-01-10T09:00:00Z",
	}})
	if len(out) != 1 {
		t.Fatalf("enriched %d events, want 1", len(out))
	}
	if out[0].ClinicalContext.EncounterID != "" {
		t.Errorf("context resolved without a patient: %+v", out[0].ClinicalContext)
	}
}
