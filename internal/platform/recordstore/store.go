// Package recordstore provides read-only access to the three dataset
// families a person's history is reconciled from: the CSV table directory,
// the C-CDA document directory, the FHIR bundle directories, and the
// semicolon-delimited profile export file. It is a pure I/O adapter; the only
// logic it carries is filtering rows by patient key.
package recordstore

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoData reports that the data root itself cannot be read. Missing
// individual files or directories are treated as empty sources instead.
var ErrNoData = errors.New("recordstore: data root is not readable")

// DatasetType identifies one of the document dataset families.
type DatasetType string

const (
	DatasetCSV           DatasetType = "csv"
	DatasetCCDA          DatasetType = "ccda"
	DatasetFHIR          DatasetType = "fhir"
	DatasetFHIRDSTU2     DatasetType = "fhir_dstu2"
	DatasetFHIRSTU3      DatasetType = "fhir_stu3"
	DatasetProfileExport DatasetType = "profile_export"
)

// DocumentDatasets lists the per-person document families in scan order.
var DocumentDatasets = []DatasetType{DatasetCCDA, DatasetFHIR, DatasetFHIRDSTU2, DatasetFHIRSTU3}

// Row is one CSV record keyed by its header column names.
type Row map[string]string

// Get returns the trimmed value of a column, or "" when absent.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r[column])
}

// DocumentRef points at one per-person document file.
type DocumentRef struct {
	Dataset DatasetType
	Path    string
}

// ProfileRow is one decoded row of the profile export: the CSV envelope plus
// the JSON patient payload embedded in its patient_data column.
type ProfileRow struct {
	SourceFile string
	CreatedAt  string
	Payload    map[string]interface{}
}

// PayloadString returns a trimmed string field from the embedded payload.
func (p ProfileRow) PayloadString(key string) string {
	v, ok := p.Payload[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

// Store reads the fixed dataset layout under one data root.
type Store struct {
	root string
}

// New creates a store over the given data root directory.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the data root path.
func (s *Store) Root() string { return s.root }

// CheckRoot verifies the data root is a readable directory.
func (s *Store) CheckRoot() error {
	info, err := os.Stat(s.root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNoData, s.root)
	}
	return nil
}

// CSVPath returns the path of a named table inside the csv directory.
func (s *Store) CSVPath(table string) string {
	return filepath.Join(s.root, "csv", table+".csv")
}

// ReadTable reads all rows of a named CSV table. A missing table is an empty
// source, not an error. Short rows are padded; long rows are truncated to the
// header width by the csv reader's variable-length mode.
func (s *Store) ReadTable(table string) ([]Row, error) {
	return readDelimited(s.CSVPath(table), ',')
}

// TableRowsForPatient reads a table and keeps only rows whose PATIENT column
// matches the given patient key, case-insensitively.
func (s *Store) TableRowsForPatient(table, patientKey string) ([]Row, error) {
	rows, err := s.ReadTable(table)
	if err != nil {
		return nil, err
	}
	key := strings.ToLower(strings.TrimSpace(patientKey))
	if key == "" {
		return nil, nil
	}
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if strings.ToLower(row.Get("PATIENT")) == key {
			out = append(out, row)
		}
	}
	return out, nil
}

// DocumentsMatching globs each document dataset directory for filenames
// containing the given token. Missing directories contribute nothing.
func (s *Store) DocumentsMatching(token string) []DocumentRef {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	var refs []DocumentRef
	for _, dataset := range DocumentDatasets {
		dir := filepath.Join(s.root, string(dataset))
		matches, err := filepath.Glob(filepath.Join(dir, "*"+token+"*"))
		if err != nil {
			continue
		}
		sort.Strings(matches)
		for _, m := range matches {
			refs = append(refs, DocumentRef{Dataset: dataset, Path: m})
		}
	}
	return refs
}

// LatestProfileExport locates the most-recently-modified patients-export-*.csv
// file under the data root. It returns "" when no export exists.
func (s *Store) LatestProfileExport() string {
	matches, err := filepath.Glob(filepath.Join(s.root, "patients-export-*.csv"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	latest := ""
	var latestMod int64
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().UnixNano() > latestMod {
			latest = m
			latestMod = info.ModTime().UnixNano()
		}
	}
	return latest
}

// ProfileExportRows decodes the latest profile export. Rows whose embedded
// JSON payload fails to parse are skipped.
func (s *Store) ProfileExportRows() ([]ProfileRow, error) {
	path := s.LatestProfileExport()
	if path == "" {
		return nil, nil
	}
	rows, err := readDelimited(path, ';')
	if err != nil {
		return nil, err
	}
	out := make([]ProfileRow, 0, len(rows))
	for _, row := range rows {
		raw := row["patient_data"]
		if strings.TrimSpace(raw) == "" {
			continue
		}
		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			continue
		}
		out = append(out, ProfileRow{
			SourceFile: path,
			CreatedAt:  row.Get("created_at"),
			Payload:    payload,
		})
	}
	return out, nil
}

// ReadDocument reads a document file's bytes.
func (s *Store) ReadDocument(ref DocumentRef) ([]byte, error) {
	data, err := os.ReadFile(ref.Path)
	if err != nil {
		return nil, fmt.Errorf("recordstore: read document %s: %w", ref.Path, err)
	}
	return data, nil
}

// readDelimited reads a header-delimited file into Rows. A missing file is an
// empty source.
func readDelimited(path string, delim rune) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("recordstore: open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("recordstore: read header of %s: %w", path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// One malformed record never aborts the whole table.
			continue
		}
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
