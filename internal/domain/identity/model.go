package identity

// Evidence is one per-source fact justifying an identity match. Entries are
// heterogeneous across sources, so they stay schemaless for the wire.
type Evidence map[string]interface{}

// CanonicalIdentity is one resolved person. Immutable after construction;
// a fresh set is built on every resolution call.
type CanonicalIdentity struct {
	QueryIdentifier     string     `json:"query_identifier"`
	CSVPatientUUID      string     `json:"csv_patient_uuid"`
	StablePatientID     string     `json:"stable_patient_id"`
	MedicalRecordNumber string     `json:"medical_record_number"`
	FirstName           string     `json:"first_name"`
	LastName            string     `json:"last_name"`
	DateOfBirth         string     `json:"date_of_birth"`
	Gender              string     `json:"gender"`
	MatchedBy           []string   `json:"matched_by"`
	Confidence          float64    `json:"confidence"`
	Evidence            []Evidence `json:"evidence"`
}

// Match-method reason tags.
const (
	ReasonCSVPatientUUID    = "csv.patient_uuid"
	ReasonProfilePatientID  = "profile.patient_id+demographics"
	ReasonProfileMRN        = "profile.medical_record_number+demographics"
	ReasonProfileExportOnly = "profile_export_only"
)

// demographics is one row of the CSV patient table.
type demographics struct {
	FirstName   string
	LastName    string
	DateOfBirth string
	Gender      string
}

// profileRecord is one decoded row of the profile export.
type profileRecord struct {
	SourceFile          string
	CreatedAt           string
	FirstName           string
	LastName            string
	DateOfBirth         string
	Gender              string
	PatientID           string
	MedicalRecordNumber string
}
