package fhir

import (
	"testing"
)

const sampleBundle = `{
  "resourceType": "Bundle",
  "entry": [
    {"resource": {"resourceType": "Patient", "id": "AB12CD34"}},
    {"resource": {
      "resourceType": "Observation",
      "id": "obs-1",
      "code": {"text": "Glucose", "coding": [{"code": "2339-0", "display": "Glucose [Mass/volume]"}]},
      "effectiveDateTime": "2019-05-04T10:30:00Z",
      "issued": "2019-05-04T11:00:00Z",
      "valueQuantity": {"value": 110, "unit": "mg/dL"},
      "interpretation": [{"coding": [{"code": "H"}]}]
    }},
    {"resource": {
      "resourceType": "Encounter",
      "id": "enc-1",
      "period": {"start": "2019-05-04T10:00:00Z", "end": "2019-05-04T12:00:00Z"}
    }},
    {"resource": {
      "resourceType": "Condition",
      "id": "cond-1",
      "code": {"coding": [{"code": "44054006", "display": "Diabetes mellitus type 2"}]},
      "onsetDateTime": "2015-01-10"
    }}
  ]
}`

func TestDecode_Malformed(t *testing.T) {
	if _, err := Decode([]byte("{not json")); err == nil {
		t.Error("expected error for malformed bundle")
	}
}

func TestDecode_EmptyBundle(t *testing.T) {
	b, err := Decode([]byte(`{"resourceType": "Bundle"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.Entries) != 0 {
		t.Errorf("expected no entries, got %d", len(b.Entries))
	}
}

func TestPatientIDs(t *testing.T) {
	b, err := Decode([]byte(sampleBundle))
	if err != nil {
		t.Fatalf("failed to decode bundle: %v", err)
	}
	ids := b.PatientIDs()
	if len(ids) != 1 || ids[0] != "ab12cd34" {
		t.Errorf("expected [ab12cd34], got %v", ids)
	}
}

func TestResourceFields(t *testing.T) {
	b, err := Decode([]byte(sampleBundle))
	if err != nil {
		t.Fatalf("failed to decode bundle: %v", err)
	}

	obs := b.Entries[1]
	if obs.Type() != "Observation" {
		t.Errorf("expected Observation, got %q", obs.Type())
	}
	if obs.Display() != "Glucose" {
		t.Errorf("expected code.text to win, got %q", obs.Display())
	}
	if obs.Code() != "2339-0" {
		t.Errorf("expected code 2339-0, got %q", obs.Code())
	}
	if !obs.FlaggedAbnormal() {
		t.Error("expected observation to be flagged abnormal")
	}
	value, unit := obs.Value()
	if value != "110" || unit != "mg/dL" {
		t.Errorf("unexpected value/unit: %q %q", value, unit)
	}

	times := obs.TimeFields()
	if len(times) != 2 {
		t.Fatalf("expected 2 time fields, got %d", len(times))
	}
	if times[0].Label != "effectiveDateTime" || times[0].Start != "2019-05-04T10:30:00Z" {
		t.Errorf("unexpected first time field: %+v", times[0])
	}
	if times[1].Label != "issued" {
		t.Errorf("unexpected second time field: %+v", times[1])
	}

	cond := b.Entries[3]
	if cond.Display() != "Diabetes mellitus type 2" {
		t.Errorf("expected coding display fallback, got %q", cond.Display())
	}
	if cond.FlaggedAbnormal() {
		t.Error("condition must not be flagged abnormal")
	}

	enc := b.Entries[2]
	times = enc.TimeFields()
	if len(times) != 1 || times[0].Label != "period" {
		t.Fatalf("expected one period field, got %+v", times)
	}
	if times[0].Start != "2019-05-04T10:00:00Z" || times[0].End != "2019-05-04T12:00:00Z" {
		t.Errorf("unexpected period bounds: %+v", times[0])
	}
}
