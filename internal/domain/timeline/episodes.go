package timeline

import (
	"math"
	"strconv"
	"strings"
)

// trendThreshold is the minimum relative change between the first and last
// numeric value of a lab series before the series counts as a trend.
const trendThreshold = 0.20

// minTrendPoints is the minimum numeric series length for trend detection.
const minTrendPoints = 3

// treatmentMarkers are the subtype fragments that make a treatment_change
// event episode-worthy on its own.
var treatmentMarkers = []string{"start", "stop", "change", "restart", "procedure", "careplan"}

// DetectEpisodes derives clinical episodes from an already-sorted timeline.
// Onset, treatment and cycle episodes are per-event; lab episodes aggregate
// per test name. The input slice is read-only.
func DetectEpisodes(timeline []Event) map[string][]Episode {
	return map[string][]Episode{
		GroupDiagnosisOnset:     diagnosisEpisodes(timeline),
		GroupTreatmentChange:    treatmentEpisodes(timeline),
		GroupAbnormalLabTrend:   labEpisodes(timeline),
		GroupAdmissionDischarge: admissionEpisodes(timeline),
	}
}

// diagnosisEpisodes emits one episode per diagnosis-start event.
func diagnosisEpisodes(timeline []Event) []Episode {
	episodes := []Episode{}
	for _, ev := range timeline {
		if ev.Category != CategoryDiagnosisOnset || !strings.Contains(ev.Subtype, "start") {
			continue
		}
		episodes = append(episodes, Episode{
			EpisodeType: "diagnosis_onset",
			TimeStart:   ev.TimeStart,
			Description: ev.Description,
			Code:        ev.Code,
			EventIDs:    []string{ev.EventID},
		})
	}
	return episodes
}

// treatmentEpisodes emits one episode per treatment event whose subtype
// carries a start/stop/change/restart/procedure/careplan marker.
func treatmentEpisodes(timeline []Event) []Episode {
	episodes := []Episode{}
	for _, ev := range timeline {
		if ev.Category != CategoryTreatmentChange || !containsAny(ev.Subtype, treatmentMarkers) {
			continue
		}
		episodes = append(episodes, Episode{
			EpisodeType: "treatment_change",
			TimeStart:   ev.TimeStart,
			TimeEnd:     ev.TimeEnd,
			Description: ev.Description,
			Subtype:     ev.Subtype,
			EventIDs:    []string{ev.EventID},
		})
	}
	return episodes
}

// admissionEpisodes emits one cycle episode per cycle-subtype event,
// open-ended stays included.
func admissionEpisodes(timeline []Event) []Episode {
	episodes := []Episode{}
	for _, ev := range timeline {
		if ev.Category != CategoryAdmissionDischarge || !strings.Contains(ev.Subtype, "cycle") {
			continue
		}
		episodes = append(episodes, Episode{
			EpisodeType:   "admission_discharge_cycle",
			TimeStart:     ev.TimeStart,
			TimeEnd:       ev.TimeEnd,
			Description:   ev.Description,
			SourceDataset: ev.SourceDataset,
			EventIDs:      []string{ev.EventID},
		})
	}
	return episodes
}

// labEpisodes aggregates lab events per test name (case-insensitive,
// first-seen order) and reports flagged results and sustained numeric drift.
func labEpisodes(timeline []Event) []Episode {
	var order []string
	groups := map[string][]Event{}
	for _, ev := range timeline {
		if ev.Category != CategoryLabTrend {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(orDefault(ev.Description, "unknown")))
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], ev)
	}
	episodes := []Episode{}
	for _, key := range order {
		events := groups[key]
		if ep, ok := flaggedLabEpisode(events); ok {
			episodes = append(episodes, ep)
		}
		if ep, ok := labTrendEpisode(events); ok {
			episodes = append(episodes, ep)
		}
	}
	return episodes
}

// flaggedLabEpisode spans the first to last explicitly flagged result for one
// test.
func flaggedLabEpisode(events []Event) (Episode, bool) {
	var flagged []Event
	for _, ev := range events {
		if ev.FlaggedAbnormal {
			flagged = append(flagged, ev)
		}
	}
	if len(flagged) == 0 {
		return Episode{}, false
	}
	ep := Episode{
		EpisodeType: "abnormal_lab_flag",
		TestName:    events[0].Description,
		TimeStart:   flagged[0].TimeStart,
		TimeEnd:     flagged[len(flagged)-1].TimeStart,
		Details: map[string]interface{}{
			"flags_count": len(flagged),
		},
	}
	for _, ev := range flagged {
		ep.EventIDs = append(ep.EventIDs, ev.EventID)
	}
	return ep, true
}

// labTrendEpisode reports a sustained drift across one test's numeric series:
// at least minTrendPoints values whose first-to-last relative change clears
// the threshold. A first value of zero makes relative change undefined, so
// those series never trend. The episode references every event of the test,
// numeric or not.
func labTrendEpisode(events []Event) (Episode, bool) {
	var firstTime, lastTime string
	var values []float64
	for _, ev := range events {
		v, ok := numericValue(ev.Value)
		if !ok {
			continue
		}
		if len(values) == 0 {
			firstTime = ev.TimeStart
		}
		lastTime = ev.TimeStart
		values = append(values, v)
	}
	if len(values) < minTrendPoints {
		return Episode{}, false
	}
	first, last := values[0], values[len(values)-1]
	if first == 0 {
		return Episode{}, false
	}
	rel := (last - first) / math.Abs(first)
	if math.Abs(rel) < trendThreshold {
		return Episode{}, false
	}
	trend := "increasing"
	if rel < 0 {
		trend = "decreasing"
	}
	ep := Episode{
		EpisodeType: "abnormal_lab_trend",
		TestName:    events[0].Description,
		TimeStart:   firstTime,
		TimeEnd:     lastTime,
		Details: map[string]interface{}{
			"trend":           trend,
			"relative_change": round3(rel),
			"points":          len(values),
		},
	}
	for _, ev := range events {
		ep.EventIDs = append(ep.EventIDs, ev.EventID)
	}
	return ep, true
}

func containsAny(s string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}

// numericValue parses a lab value, tolerating a trailing unit glued onto the
// number.
func numericValue(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v, true
	}
	if fields := strings.Fields(raw); len(fields) > 1 {
		if v, err := strconv.ParseFloat(fields[0], 64); err == nil {
			return v, true
		}
	}
	return 0, false
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
