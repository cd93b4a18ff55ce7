package evolution

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/chronicle/internal/domain/fusion"
	"github.com/ehr/chronicle/internal/domain/identity"
	"github.com/ehr/chronicle/internal/domain/profile"
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

func fixtureRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeFile(t, filepath.Join(root, "csv", "patients.csv"),
		"Id,BIRTHDATE,FIRST,LAST,GENDER\n"+
			patientUUID+",1968-04-02,Maria,Lopez,F\n")

	writeFile(t, filepath.Join(root, "csv", "encounters.csv"),
		"Id,START,STOP,PATIENT,ENCOUNTERCLASS,CODE,DESCRIPTION\n"+
			"enc-1,2019-01-10T08:00:00Z,2019-01-14T08:00:00Z,"+patientUUID+",inpatient,305351004,Inpatient stay\n")

	writeFile(t, filepath.Join(root, "csv", "conditions.csv"),
		"START,STOP,PATIENT,ENCOUNTER,CODE,DESCRIPTION\n"+
			"2019-01-10T08:30:00Z,,"+patientUUID+",enc-1,59621000,Hypertension\n")

	// Creatinine climbs 60%, past the critical alert threshold.
	writeFile(t, filepath.Join(root, "csv", "observations.csv"),
		"DATE,PATIENT,ENCOUNTER,CATEGORY,CODE,DESCRIPTION,VALUE,UNITS,TYPE\n"+
			"2019-01-10T10:00:00Z,"+patientUUID+",enc-1,laboratory,2160-0,Creatinine,1.0,mg/dL,numeric\n"+
			"2019-02-10T10:00:00Z,"+patientUUID+",enc-1,laboratory,2160-0,Creatinine,1.2,mg/dL,numeric\n"+
			"2019-03-10T10:00:00Z,"+patientUUID+",enc-1,laboratory,2160-0,Creatinine,1.6,mg/dL,numeric\n")

	return root
}

func newOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	store := recordstore.New(fixtureRoot(t))
	resolver := identity.NewResolver(store)
	log := zerolog.Nop()
	return New(
		timeline.NewBuilder(store, resolver, log),
		fusion.NewFuser(store, log),
		profile.NewBuilder(store, resolver, log),
		log,
	)
}

func TestRun_ReportShape(t *testing.T) {
	o := newOrchestrator(t)
	report, err := o.Run(context.Background(), patientUUID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.GeneratedAt == "" {
		t.Error("generated_at is empty")
	}
	if report.Profile == nil || report.Profile.Demographics.FirstName != "Maria" {
		t.Errorf("profile = %+v", report.Profile)
	}
	if len(report.Timeline) == 0 {
		t.Fatal("timeline is empty")
	}

	for i, ep := range report.Episodes {
		want := fmt.Sprintf("ep_%06d", i+1)
		if ep.EpisodeID != want {
			t.Errorf("episode %d id = %q, want %q", i, ep.EpisodeID, want)
		}
		if i > 0 && report.Episodes[i].TimeStart < report.Episodes[i-1].TimeStart {
			t.Errorf("episodes out of order at %d", i)
		}
	}
}

func TestRun_CriticalTrendAlert(t *testing.T) {
	o := newOrchestrator(t)
	report, err := o.Run(context.Background(), patientUUID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(report.Alerts) != 1 {
		t.Fatalf("alerts = %+v, want 1", report.Alerts)
	}
	alert := report.Alerts[0]
	if alert.AlertID != "al_000001" {
		t.Errorf("alert id = %q", alert.AlertID)
	}
	if alert.Severity != SeverityCritical {
		t.Errorf("severity = %q, want critical for a 60%% climb", alert.Severity)
	}
	if alert.Type != "abnormal_lab_trend" {
		t.Errorf("type = %q", alert.Type)
	}

	var found bool
	for _, ep := range report.Episodes {
		if ep.EpisodeID == alert.EpisodeID {
			found = true
			if ep.TestName != "Creatinine" {
				t.Errorf("alert points at %q", ep.TestName)
			}
		}
	}
	if !found {
		t.Errorf("alert references unknown episode %q", alert.EpisodeID)
	}
}

func TestExport_WritesReport(t *testing.T) {
	o := newOrchestrator(t)
	dir := filepath.Join(t.TempDir(), "exports")
	path, report, err := o.Export(context.Background(), patientUUID, dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := filepath.Join(dir, patientUUID+"_patient_evolution.json")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var decoded Report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if decoded.Identifier != report.Identifier {
		t.Errorf("roundtrip identifier = %q", decoded.Identifier)
	}
	if len(decoded.Alerts) != len(report.Alerts) {
		t.Errorf("roundtrip alerts = %d, want %d", len(decoded.Alerts), len(report.Alerts))
	}
}

func TestSanitizeName(t *testing.T) {
	if got := sanitizeName("P 001/../x"); got != "P_001_.._x" {
		t.Errorf("sanitizeName = %q", got)
	}
}
