package profile

import "github.com/ehr/chronicle/internal/domain/identity"

// Demographics is the condensed person header. Fields mirror the CSV patient
// table, overridden by the linked profile export when one exists.
type Demographics struct {
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	DateOfDeath string `json:"date_of_death,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Marital     string `json:"marital_status,omitempty"`
	Race        string `json:"race,omitempty"`
	Ethnicity   string `json:"ethnicity,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
}

// Entry is one condensed clinical list item.
type Entry struct {
	Description string `json:"description"`
	Code        string `json:"code,omitempty"`
	Start       string `json:"start,omitempty"`
	Stop        string `json:"stop,omitempty"`
	Active      bool   `json:"active"`
	Occurrences int    `json:"occurrences,omitempty"`
}

// Measurement is the latest observed value of one test or vital sign.
type Measurement struct {
	Description string `json:"description"`
	Code        string `json:"code,omitempty"`
	Value       string `json:"value,omitempty"`
	Unit        string `json:"unit,omitempty"`
	ObservedAt  string `json:"observed_at,omitempty"`
	Readings    int    `json:"readings"`
}

// Coverage is one insurance span from the payer transition table.
type Coverage struct {
	Payer     string `json:"payer"`
	StartYear string `json:"start_year,omitempty"`
	EndYear   string `json:"end_year,omitempty"`
	Ownership string `json:"ownership,omitempty"`
}

// Profile is the condensed cross-source view of one person.
type Profile struct {
	Identity     *identity.CanonicalIdentity `json:"identity"`
	Demographics Demographics                `json:"demographics"`
	Allergies    []Entry                     `json:"allergies"`
	Diagnoses    []Entry                     `json:"diagnoses"`
	Medications  []Entry                     `json:"medications"`
	Labs         []Measurement               `json:"labs"`
	Vitals       []Measurement               `json:"vitals"`
	Imaging      []Entry                     `json:"imaging"`
	Insurance    []Coverage                  `json:"insurance"`
}
