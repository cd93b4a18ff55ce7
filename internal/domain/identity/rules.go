package identity

import "math"

// candidateFacts captures what was found for one internal-key candidate, as
// input to the confidence rules.
type candidateFacts struct {
	HasCSVDemographics  bool
	HasLinkedProfile    bool
	HasDocumentEvidence bool
	AllInternalIDsAgree bool
}

// confidenceRule is one additive scoring rule.
type confidenceRule struct {
	Name    string
	Weight  float64
	Applies func(f candidateFacts) bool
}

// confidenceRules is the fixed additive heuristic for internal-key
// candidates. Weights are tuned as a table so individual rules can be tested
// and adjusted without touching resolution control flow.
var confidenceRules = []confidenceRule{
	{
		Name:    "csv_demographic_row",
		Weight:  0.45,
		Applies: func(f candidateFacts) bool { return f.HasCSVDemographics },
	},
	{
		Name:    "profile_export_linked",
		Weight:  0.30,
		Applies: func(f candidateFacts) bool { return f.HasLinkedProfile },
	},
	{
		Name:    "document_evidence",
		Weight:  0.15,
		Applies: func(f candidateFacts) bool { return f.HasDocumentEvidence },
	},
	{
		Name:    "document_internal_ids_agree",
		Weight:  0.10,
		Applies: func(f candidateFacts) bool { return f.HasDocumentEvidence && f.AllInternalIDsAgree },
	},
}

// profileOnlyConfidence is the fixed score for a candidate that exists only
// in the profile export, with no internal key to anchor it.
const profileOnlyConfidence = 0.35

// scoreCandidate applies the rule table, capping the sum at 1.0 and rounding
// to two decimals for stable wire output.
func scoreCandidate(f candidateFacts) float64 {
	var sum float64
	for _, rule := range confidenceRules {
		if rule.Applies(f) {
			sum += rule.Weight
		}
	}
	if sum > 1.0 {
		sum = 1.0
	}
	return math.Round(sum*100) / 100
}
