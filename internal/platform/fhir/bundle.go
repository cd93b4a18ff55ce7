// Package fhir decodes FHIR resource bundles. Bundles from different FHIR
// releases (DSTU2, STU3, R4) share the envelope shape this package relies on:
// an entry list of {resource: {...}} objects. Resources are kept as generic
// maps because only a small, stable subset of fields is read.
package fhir

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Bundle is a decoded FHIR bundle.
type Bundle struct {
	Entries []Resource
}

// Resource wraps one bundle entry's resource map.
type Resource struct {
	fields map[string]interface{}
}

// TimeField is one raw time value extracted from a resource. Period-shaped
// fields carry both bounds; point-in-time fields carry only Start.
type TimeField struct {
	Label string
	Start string
	End   string
}

// abnormalInterpretations are the HL7 observation interpretation codes that
// mark a value as out of range.
var abnormalInterpretations = map[string]bool{
	"H": true, "HH": true, "L": true, "LL": true, "A": true, "AA": true,
}

// Decode parses bundle JSON. A bundle without entries is valid and empty.
func Decode(data []byte) (*Bundle, error) {
	var raw struct {
		Entry []struct {
			Resource map[string]interface{} `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("fhir: failed to decode bundle: %w", err)
	}
	b := &Bundle{}
	for _, e := range raw.Entry {
		if e.Resource != nil {
			b.Entries = append(b.Entries, Resource{fields: e.Resource})
		}
	}
	return b, nil
}

// PatientIDs returns the lowercased id of every Patient resource in the
// bundle. These are the bundle's internal patient identifiers.
func (b *Bundle) PatientIDs() []string {
	var ids []string
	for _, r := range b.Entries {
		if r.Type() != "Patient" {
			continue
		}
		if id := strings.ToLower(r.ID()); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Type returns the resourceType, or "Resource" when absent.
func (r Resource) Type() string {
	if t := r.str("resourceType"); t != "" {
		return t
	}
	return "Resource"
}

// ID returns the resource id.
func (r Resource) ID() string { return r.str("id") }

// Display returns the best human-readable label for the resource: code.text,
// first coding display, the resource's description, or its type.
func (r Resource) Display() string {
	if code, ok := r.fields["code"].(map[string]interface{}); ok {
		if text := trimmed(code["text"]); text != "" {
			return text
		}
		if display := firstCodingField(code, "display"); display != "" {
			return display
		}
	}
	if desc := r.str("description"); desc != "" {
		return desc
	}
	return r.Type()
}

// Code returns the first coding code under the resource's code element.
func (r Resource) Code() string {
	if code, ok := r.fields["code"].(map[string]interface{}); ok {
		return firstCodingField(code, "code")
	}
	return ""
}

// TimeFields extracts every supported raw time value: effectiveDateTime,
// issued, recordedDate, onsetDateTime, onsetPeriod and period.
func (r Resource) TimeFields() []TimeField {
	var out []TimeField
	for _, label := range []string{"effectiveDateTime", "issued", "recordedDate", "onsetDateTime"} {
		if v := r.str(label); v != "" {
			out = append(out, TimeField{Label: label, Start: v})
		}
	}
	for _, label := range []string{"onsetPeriod", "period"} {
		period, ok := r.fields[label].(map[string]interface{})
		if !ok {
			continue
		}
		tf := TimeField{
			Label: label,
			Start: trimmed(period["start"]),
			End:   trimmed(period["end"]),
		}
		if tf.Start != "" || tf.End != "" {
			out = append(out, tf)
		}
	}
	return out
}

// EncounterRef returns the bare encounter id the resource points at, with any
// "Encounter/" or "urn:uuid:" reference prefix stripped.
func (r Resource) EncounterRef() string {
	enc, ok := r.fields["encounter"].(map[string]interface{})
	if !ok {
		// DSTU2 observations use "context" for the same link.
		enc, ok = r.fields["context"].(map[string]interface{})
		if !ok {
			return ""
		}
	}
	ref := trimmed(enc["reference"])
	ref = strings.TrimPrefix(ref, "urn:uuid:")
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		ref = ref[i+1:]
	}
	return ref
}

// FlaggedAbnormal reports whether any interpretation coding carries one of
// the abnormal HL7 codes (H, HH, L, LL, A, AA).
func (r Resource) FlaggedAbnormal() bool {
	interps, ok := r.fields["interpretation"].([]interface{})
	if !ok {
		return false
	}
	for _, i := range interps {
		interp, ok := i.(map[string]interface{})
		if !ok {
			continue
		}
		codings, ok := interp["coding"].([]interface{})
		if !ok {
			continue
		}
		for _, c := range codings {
			coding, ok := c.(map[string]interface{})
			if !ok {
				continue
			}
			if abnormalInterpretations[strings.ToUpper(trimmed(coding["code"]))] {
				return true
			}
		}
	}
	return false
}

// Value returns the observation's value and unit: valueQuantity when present,
// else valueString.
func (r Resource) Value() (value, unit string) {
	if q, ok := r.fields["valueQuantity"].(map[string]interface{}); ok {
		return trimmed(q["value"]), trimmed(q["unit"])
	}
	return r.str("valueString"), ""
}

func (r Resource) str(key string) string {
	return trimmed(r.fields[key])
}

func firstCodingField(code map[string]interface{}, field string) string {
	codings, ok := code["coding"].([]interface{})
	if !ok || len(codings) == 0 {
		return ""
	}
	first, ok := codings[0].(map[string]interface{})
	if !ok {
		return ""
	}
	return trimmed(first[field])
}

func trimmed(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", s))
	}
}
