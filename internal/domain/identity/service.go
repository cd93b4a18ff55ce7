// Package identity resolves an arbitrary query identifier (internal patient
// UUID, stable patient id, or medical record number) to canonical person
// identities across the CSV, C-CDA and FHIR datasets.
//
// Resolution builds three independent candidate sets -- direct CSV key match,
// document filename match, and business-identifier-plus-demographics match
// against the profile export -- merges them by internal key, gathers document
// evidence, and scores each candidate with a fixed additive rule table.
package identity

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ehr/chronicle/internal/platform/ccda"
	"github.com/ehr/chronicle/internal/platform/fhir"
	"github.com/ehr/chronicle/internal/platform/recordstore"
)

// uuidPattern finds UUID-shaped tokens; hits are validated with uuid.Parse
// before being trusted as keys.
var uuidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// Resolver resolves query identifiers against a record store. It holds no
// mutable state; every call re-reads the underlying files.
type Resolver struct {
	store *recordstore.Store
}

// NewResolver creates a resolver over the given store.
func NewResolver(store *recordstore.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns every canonical identity the query plausibly refers to,
// deduplicated by (internal key, stable id, MRN). An empty or unmatchable
// query yields an empty result, not an error; the only error surfaced is an
// unreadable data root.
func (r *Resolver) Resolve(query string) ([]CanonicalIdentity, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if err := r.store.CheckRoot(); err != nil {
		return nil, err
	}

	queryLC := strings.ToLower(query)
	patients := r.loadCSVPatients()
	profiles := r.loadProfileRecords()

	fingerprintToUUID := map[string][]string{}
	for patientUUID, demo := range patients {
		key := demographicFingerprint(demo.FirstName, demo.LastName, demo.DateOfBirth, demo.Gender)
		fingerprintToUUID[key] = append(fingerprintToUUID[key], patientUUID)
	}

	reasonsByUUID := map[string][]string{}
	matchedProfiles := map[string]profileRecord{}
	var profileOnly []profileRecord

	// Candidate set 1: direct CSV key match.
	if _, ok := patients[queryLC]; ok {
		reasonsByUUID[queryLC] = append(reasonsByUUID[queryLC], ReasonCSVPatientUUID)
	}

	// Candidate set 2: document filename match.
	for _, ref := range r.store.DocumentsMatching(query) {
		if token := KeyToken(ref.Path); token != "" {
			reason := string(ref.Dataset) + ".filename_uuid"
			reasonsByUUID[token] = append(reasonsByUUID[token], reason)
		}
	}

	// Candidate set 3: business identifier plus demographic fingerprint.
	for _, profile := range profiles {
		var reason string
		switch query {
		case profile.PatientID:
			reason = ReasonProfilePatientID
		case profile.MedicalRecordNumber:
			reason = ReasonProfileMRN
		default:
			continue
		}
		key := demographicFingerprint(profile.FirstName, profile.LastName, profile.DateOfBirth, profile.Gender)
		uuids, linked := fingerprintToUUID[key]
		if !linked {
			profileOnly = append(profileOnly, profile)
			continue
		}
		for _, patientUUID := range uuids {
			reasonsByUUID[patientUUID] = append(reasonsByUUID[patientUUID], reason)
			matchedProfiles[patientUUID] = profile
		}
	}

	candidateUUIDs := make([]string, 0, len(reasonsByUUID))
	for patientUUID := range reasonsByUUID {
		candidateUUIDs = append(candidateUUIDs, patientUUID)
	}
	sort.Strings(candidateUUIDs)

	var resolved []CanonicalIdentity
	for _, patientUUID := range candidateUUIDs {
		demo, hasDemo := patients[patientUUID]
		profile, hasProfile := matchedProfiles[patientUUID]
		docEvidence, allAgree := r.documentEvidence(patientUUID)

		evidence := []Evidence{{
			"dataset_type":  string(recordstore.DatasetCSV),
			"file_path":     r.store.CSVPath("patients"),
			"patient_uuid":  patientUUID,
			"found_in_csv":  hasDemo,
			"first_name":    demo.FirstName,
			"last_name":     demo.LastName,
			"date_of_birth": demo.DateOfBirth,
			"gender":        demo.Gender,
		}}
		if hasProfile {
			evidence = append(evidence, profileEvidence(profile, true))
		}
		evidence = append(evidence, docEvidence...)

		resolved = append(resolved, CanonicalIdentity{
			QueryIdentifier:     query,
			CSVPatientUUID:      patientUUID,
			StablePatientID:     profile.PatientID,
			MedicalRecordNumber: profile.MedicalRecordNumber,
			FirstName:           demo.FirstName,
			LastName:            demo.LastName,
			DateOfBirth:         demo.DateOfBirth,
			Gender:              demo.Gender,
			MatchedBy:           uniqueSorted(reasonsByUUID[patientUUID]),
			Confidence: scoreCandidate(candidateFacts{
				HasCSVDemographics:  hasDemo,
				HasLinkedProfile:    hasProfile,
				HasDocumentEvidence: len(docEvidence) > 0,
				AllInternalIDsAgree: allAgree,
			}),
			Evidence: evidence,
		})
	}

	// Identity-only candidates: profile rows with no CSV anchor.
	for _, profile := range profileOnly {
		resolved = append(resolved, CanonicalIdentity{
			QueryIdentifier:     query,
			StablePatientID:     profile.PatientID,
			MedicalRecordNumber: profile.MedicalRecordNumber,
			FirstName:           profile.FirstName,
			LastName:            profile.LastName,
			DateOfBirth:         profile.DateOfBirth,
			Gender:              profile.Gender,
			MatchedBy:           []string{ReasonProfileExportOnly},
			Confidence:          profileOnlyConfidence,
			Evidence:            []Evidence{profileEvidence(profile, false)},
		})
	}

	return dedupe(resolved), nil
}

// ResolveOne returns the highest-confidence identity, breaking ties on the
// ascending internal key. It returns nil when nothing matches.
func (r *Resolver) ResolveOne(query string) (*CanonicalIdentity, error) {
	matches, err := r.Resolve(query)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].CSVPatientUUID < matches[j].CSVPatientUUID
	})
	best := matches[0]
	return &best, nil
}

// KeyToken extracts a validated, lowercased key-shaped token from a file
// name, or "" when none is embedded.
func KeyToken(path string) string {
	base := filepath.Base(path)
	for _, hit := range uuidPattern.FindAllString(base, -1) {
		if parsed, err := uuid.Parse(hit); err == nil {
			return parsed.String()
		}
	}
	return ""
}

// documentEvidence inspects every document whose filename contains the
// candidate key, recording whether the embedded filename token and the
// document's internal patient ids agree with the candidate. Documents that
// fail to parse contribute zero internal ids rather than failing resolution.
func (r *Resolver) documentEvidence(patientUUID string) ([]Evidence, bool) {
	refs := r.store.DocumentsMatching(patientUUID)
	allAgree := true
	var evidence []Evidence

	for _, ref := range refs {
		var internalIDs []string
		data, err := r.store.ReadDocument(ref)
		if err == nil {
			if ref.Dataset == recordstore.DatasetCCDA {
				if doc, perr := ccda.Parse(data); perr == nil {
					internalIDs = doc.PatientRoleIDs()
				}
			} else {
				if bundle, perr := fhir.Decode(data); perr == nil {
					internalIDs = bundle.PatientIDs()
				}
			}
		}

		internalMatch := len(internalIDs) == 0 || contains(internalIDs, patientUUID)
		if !internalMatch {
			allAgree = false
		}
		filenameUUID := KeyToken(ref.Path)
		evidence = append(evidence, Evidence{
			"dataset_type":                     string(ref.Dataset),
			"file_path":                        ref.Path,
			"filename_uuid":                    filenameUUID,
			"filename_matches_patient_uuid":    filenameUUID == patientUUID,
			"internal_patient_ids":             internalIDs,
			"internal_id_matches_patient_uuid": internalMatch,
		})
	}
	return evidence, allAgree
}

func (r *Resolver) loadCSVPatients() map[string]demographics {
	rows, err := r.store.ReadTable("patients")
	if err != nil {
		return nil
	}
	patients := make(map[string]demographics, len(rows))
	for _, row := range rows {
		patientUUID := strings.ToLower(row.Get("Id"))
		if patientUUID == "" {
			continue
		}
		patients[patientUUID] = demographics{
			FirstName:   row.Get("FIRST"),
			LastName:    row.Get("LAST"),
			DateOfBirth: row.Get("BIRTHDATE"),
			Gender:      NormalizeGender(row.Get("GENDER")),
		}
	}
	return patients
}

func (r *Resolver) loadProfileRecords() []profileRecord {
	rows, err := r.store.ProfileExportRows()
	if err != nil {
		return nil
	}
	records := make([]profileRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, profileRecord{
			SourceFile:          row.SourceFile,
			CreatedAt:           row.CreatedAt,
			FirstName:           row.PayloadString("first_name"),
			LastName:            row.PayloadString("last_name"),
			DateOfBirth:         row.PayloadString("date_of_birth"),
			Gender:              NormalizeGender(row.PayloadString("gender")),
			PatientID:           row.PayloadString("patient_id"),
			MedicalRecordNumber: row.PayloadString("medical_record_number"),
		})
	}
	return records
}

// NormalizeGender maps free-form gender strings onto MALE/FEMALE/OTHER.
// Empty input stays empty so absence is distinguishable.
func NormalizeGender(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "":
		return ""
	case "M", "MALE":
		return "MALE"
	case "F", "FEMALE":
		return "FEMALE"
	default:
		return "OTHER"
	}
}

// demographicFingerprint builds the casefolded linkage key used to join
// profile export rows onto CSV patients.
func demographicFingerprint(first, last, dob, gender string) string {
	return strings.Join([]string{
		strings.ToLower(strings.TrimSpace(first)),
		strings.ToLower(strings.TrimSpace(last)),
		strings.TrimSpace(dob),
		NormalizeGender(gender),
	}, "|")
}

func profileEvidence(p profileRecord, linked bool) Evidence {
	ev := Evidence{
		"dataset_type":          string(recordstore.DatasetProfileExport),
		"file_path":             p.SourceFile,
		"created_at":            p.CreatedAt,
		"patient_id":            p.PatientID,
		"medical_record_number": p.MedicalRecordNumber,
		"first_name":            p.FirstName,
		"last_name":             p.LastName,
		"date_of_birth":         p.DateOfBirth,
		"gender":                p.Gender,
	}
	if !linked {
		ev["linked_to_csv_uuid"] = false
	}
	return ev
}

// dedupe keeps the first occurrence of each (internal key, stable id, MRN)
// triple.
func dedupe(items []CanonicalIdentity) []CanonicalIdentity {
	seen := map[[3]string]bool{}
	out := items[:0]
	for _, item := range items {
		key := [3]string{item.CSVPatientUUID, item.StablePatientID, item.MedicalRecordNumber}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
	}
	return out
}

func uniqueSorted(items []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	sort.Strings(out)
	return out
}

func contains(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
