// Package profile condenses everything known about one person into a single
// summary document: demographics, problem and medication lists, latest
// measurements, imaging and coverage. The CSV tables are the backbone; a
// linked profile export overrides demographics field by field, since the
// export system is the curated source for those.
package profile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/chronicle/internal/domain/identity"
	"github.com/ehr/chronicle/internal/platform/hl7time"
	"github.com/ehr/chronicle/internal/platform/recordstore"
)

// ErrUnresolved reports that no canonical identity matched the identifier.
var ErrUnresolved = errors.New("profile: identifier did not resolve to a person")

// Builder assembles condensed profiles.
type Builder struct {
	store    *recordstore.Store
	resolver *identity.Resolver
	log      zerolog.Logger
}

func NewBuilder(store *recordstore.Store, resolver *identity.Resolver, log zerolog.Logger) *Builder {
	return &Builder{store: store, resolver: resolver, log: log}
}

// Build resolves the identifier and assembles its profile. A person known
// only to the profile export still gets a profile; its clinical lists are
// simply empty.
func (b *Builder) Build(identifier string) (*Profile, error) {
	id, err := b.resolver.ResolveOne(identifier)
	if err != nil {
		return nil, fmt.Errorf("profile: resolve %q: %w", identifier, err)
	}
	if id == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnresolved, identifier)
	}

	p := &Profile{
		Identity:    id,
		Allergies:   []Entry{},
		Diagnoses:   []Entry{},
		Medications: []Entry{},
		Labs:        []Measurement{},
		Vitals:      []Measurement{},
		Imaging:     []Entry{},
		Insurance:   []Coverage{},
	}
	b.demographics(p, id)
	if id.CSVPatientUUID != "" {
		p.Allergies = b.entries("allergies", id.CSVPatientUUID)
		p.Diagnoses = b.entries("conditions", id.CSVPatientUUID)
		p.Medications = b.entries("medications", id.CSVPatientUUID)
		b.measurements(p, id.CSVPatientUUID)
		p.Imaging = b.imaging(id.CSVPatientUUID)
		p.Insurance = b.insurance(id.CSVPatientUUID)
	}

	b.log.Debug().
		Str("identifier", identifier).
		Int("diagnoses", len(p.Diagnoses)).
		Int("medications", len(p.Medications)).
		Msg("profile assembled")
	return p, nil
}

func (b *Builder) demographics(p *Profile, id *identity.CanonicalIdentity) {
	p.Demographics = Demographics{
		FirstName:   id.FirstName,
		LastName:    id.LastName,
		DateOfBirth: id.DateOfBirth,
		Gender:      id.Gender,
	}
	if id.CSVPatientUUID != "" {
		rows, err := b.store.ReadTable("patients")
		if err == nil {
			for _, row := range rows {
				if !strings.EqualFold(row.Get("Id"), id.CSVPatientUUID) {
					continue
				}
				p.Demographics.DateOfDeath = row.Get("DEATHDATE")
				p.Demographics.Marital = row.Get("MARITAL")
				p.Demographics.Race = row.Get("RACE")
				p.Demographics.Ethnicity = row.Get("ETHNICITY")
				p.Demographics.City = row.Get("CITY")
				p.Demographics.State = row.Get("STATE")
				break
			}
		}
	}
	b.overrideFromExport(p, id)
}

// overrideFromExport applies the linked export row's demographic fields on
// top of the CSV values. Only non-empty payload fields win.
func (b *Builder) overrideFromExport(p *Profile, id *identity.CanonicalIdentity) {
	if id.StablePatientID == "" && id.MedicalRecordNumber == "" {
		return
	}
	rows, err := b.store.ProfileExportRows()
	if err != nil {
		return
	}
	for _, row := range rows {
		pid := row.PayloadString("patient_id")
		mrn := row.PayloadString("medical_record_number")
		if !strings.EqualFold(pid, id.StablePatientID) && !strings.EqualFold(mrn, id.MedicalRecordNumber) {
			continue
		}
		override(&p.Demographics.FirstName, row.PayloadString("first_name"))
		override(&p.Demographics.LastName, row.PayloadString("last_name"))
		override(&p.Demographics.DateOfBirth, row.PayloadString("date_of_birth"))
		override(&p.Demographics.Gender, identity.NormalizeGender(row.PayloadString("gender")))
		override(&p.Demographics.City, row.PayloadString("city"))
		override(&p.Demographics.State, row.PayloadString("state"))
		return
	}
}

func override(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// entries condenses a START/STOP-shaped table to one entry per description,
// counting repeats. An entry stays active while its latest occurrence has no
// stop date.
func (b *Builder) entries(table, patientUUID string) []Entry {
	rows, err := b.store.TableRowsForPatient(table, patientUUID)
	if err != nil {
		return []Entry{}
	}
	var order []string
	byDesc := map[string]*Entry{}
	for _, row := range rows {
		desc := row.Get("DESCRIPTION")
		if desc == "" {
			continue
		}
		key := strings.ToLower(desc)
		start, _ := hl7time.Normalize(row.Get("START"))
		stop, _ := hl7time.Normalize(row.Get("STOP"))
		e, seen := byDesc[key]
		if !seen {
			e = &Entry{Description: desc, Code: row.Get("CODE"), Start: start}
			byDesc[key] = e
			order = append(order, key)
		}
		e.Occurrences++
		e.Stop = stop
		e.Active = stop == ""
	}
	out := make([]Entry, 0, len(order))
	for _, key := range order {
		out = append(out, *byDesc[key])
	}
	return out
}

// measurements keeps the latest reading per test, split into vitals and labs
// on the observation category.
func (b *Builder) measurements(p *Profile, patientUUID string) {
	rows, err := b.store.TableRowsForPatient("observations", patientUUID)
	if err != nil {
		return
	}
	var labOrder, vitalOrder []string
	latest := map[string]*Measurement{}
	for _, row := range rows {
		desc := row.Get("DESCRIPTION")
		if desc == "" {
			continue
		}
		vital := strings.EqualFold(row.Get("CATEGORY"), "vital-signs")
		key := fmt.Sprintf("%v|%s", vital, strings.ToLower(desc))
		observed, _ := hl7time.Normalize(row.Get("DATE"))
		m, seen := latest[key]
		if !seen {
			m = &Measurement{Description: desc, Code: row.Get("CODE")}
			latest[key] = m
			if vital {
				vitalOrder = append(vitalOrder, key)
			} else {
				labOrder = append(labOrder, key)
			}
		}
		m.Readings++
		if observed >= m.ObservedAt {
			m.ObservedAt = observed
			m.Value = row.Get("VALUE")
			m.Unit = row.Get("UNITS")
		}
	}
	for _, key := range labOrder {
		p.Labs = append(p.Labs, *latest[key])
	}
	for _, key := range vitalOrder {
		p.Vitals = append(p.Vitals, *latest[key])
	}
}

func (b *Builder) imaging(patientUUID string) []Entry {
	rows, err := b.store.TableRowsForPatient("imaging_studies", patientUUID)
	if err != nil {
		return []Entry{}
	}
	out := []Entry{}
	for _, row := range rows {
		when, _ := hl7time.Normalize(row.Get("DATE"))
		desc := strings.TrimSpace(strings.Join([]string{
			row.Get("MODALITY_DESCRIPTION"), row.Get("BODYSITE_DESCRIPTION"),
		}, " "))
		if desc == "" {
			continue
		}
		out = append(out, Entry{
			Description: desc,
			Code:        row.Get("MODALITY_CODE"),
			Start:       when,
			Occurrences: 1,
		})
	}
	return out
}

// insurance lists coverage periods, resolving payer ids against payers.csv
// so the profile shows names, not identifiers.
func (b *Builder) insurance(patientUUID string) []Coverage {
	rows, err := b.store.TableRowsForPatient("payer_transitions", patientUUID)
	if err != nil {
		return []Coverage{}
	}
	payerNames := map[string]string{}
	if payers, err := b.store.ReadTable("payers"); err == nil {
		for _, row := range payers {
			if id := row.Get("Id"); id != "" {
				payerNames[id] = row.Get("NAME")
			}
		}
	}
	out := []Coverage{}
	for _, row := range rows {
		payer := orFirst(payerNames[row.Get("PAYER")], row.Get("PAYER_NAME"), row.Get("PAYER"))
		if payer == "" {
			continue
		}
		out = append(out, Coverage{
			Payer:     payer,
			StartYear: row.Get("START_YEAR"),
			EndYear:   row.Get("END_YEAR"),
			Ownership: row.Get("OWNERSHIP"),
		})
	}
	return out
}

func orFirst(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
