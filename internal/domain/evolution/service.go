// Package evolution orchestrates the full reconciliation pipeline for one
// person: timeline build, context fusion, profile assembly, episode
// flattening and alerting, producing a single report document that can be
// served or exported.
package evolution

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/chronicle/internal/domain/fusion"
	"github.com/ehr/chronicle/internal/domain/profile"
	"github.com/ehr/chronicle/internal/domain/timeline"
)

// criticalTrendChange is the relative change above which a lab trend alert
// escalates from warning to critical.
const criticalTrendChange = 0.5

// groupOrder fixes the flattening order before the time sort, so equal-time
// episodes land deterministically.
var groupOrder = []string{
	timeline.GroupDiagnosisOnset,
	timeline.GroupTreatmentChange,
	timeline.GroupAbnormalLabTrend,
	timeline.GroupAdmissionDischarge,
}

// Orchestrator runs the pipeline end to end.
type Orchestrator struct {
	timelines *timeline.Builder
	fuser     *fusion.Fuser
	profiles  *profile.Builder
	log       zerolog.Logger
	now       func() time.Time
}

func New(timelines *timeline.Builder, fuser *fusion.Fuser, profiles *profile.Builder, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		timelines: timelines,
		fuser:     fuser,
		profiles:  profiles,
		log:       log,
		now:       time.Now,
	}
}

// Run builds the full evolution report for one identifier.
func (o *Orchestrator) Run(ctx context.Context, identifier string) (*Report, error) {
	res, err := o.timelines.Build(ctx, identifier)
	if err != nil {
		return nil, err
	}
	// An unknown identifier surfaces here: the timeline build yields an empty
	// result, but the profile build rejects it.
	prof, err := o.profiles.Build(identifier)
	if err != nil {
		return nil, fmt.Errorf("evolution: profile for %q: %w", identifier, err)
	}

	var patientUUID string
	if res.Identity != nil {
		patientUUID = res.Identity.CSVPatientUUID
	}

	episodes := flatten(res.Episodes)
	report := &Report{
		Identifier:   identifier,
		GeneratedAt:  o.now().UTC().Format(time.RFC3339),
		Identity:     res.Identity,
		Profile:      prof,
		Timeline:     o.fuser.Enrich(patientUUID, res.Timeline),
		Episodes:     episodes,
		Alerts:       deriveAlerts(episodes),
		SourceCounts: res.SourceCounts,
	}
	o.log.Info().
		Str("identifier", identifier).
		Int("events", len(report.Timeline)).
		Int("episodes", len(report.Episodes)).
		Int("alerts", len(report.Alerts)).
		Msg("evolution report built")
	return report, nil
}

// flatten merges the per-group episode lists into one ascending list and
// assigns report-scoped episode ids in that final order.
func flatten(groups map[string][]timeline.Episode) []FlatEpisode {
	flat := []FlatEpisode{}
	for _, group := range groupOrder {
		for _, ep := range groups[group] {
			flat = append(flat, FlatEpisode{Group: group, Episode: ep})
		}
	}
	sort.SliceStable(flat, func(i, j int) bool {
		return flat[i].TimeStart < flat[j].TimeStart
	})
	for i := range flat {
		flat[i].EpisodeID = fmt.Sprintf("ep_%06d", i+1)
	}
	return flat
}

// deriveAlerts raises one alert per abnormal lab episode. Flag episodes are
// warnings; trend episodes escalate to critical past the change threshold.
func deriveAlerts(episodes []FlatEpisode) []Alert {
	alerts := []Alert{}
	n := 0
	for _, ep := range episodes {
		var severity, message string
		switch ep.EpisodeType {
		case "abnormal_lab_flag":
			severity = SeverityWarning
			message = fmt.Sprintf("%s has explicitly flagged abnormal results", ep.TestName)
		case "abnormal_lab_trend":
			severity = SeverityWarning
			rel, _ := ep.Details["relative_change"].(float64)
			if math.Abs(rel) >= criticalTrendChange {
				severity = SeverityCritical
			}
			message = fmt.Sprintf("%s is %v (relative change %v)",
				ep.TestName, ep.Details["trend"], ep.Details["relative_change"])
		default:
			continue
		}
		n++
		alerts = append(alerts, Alert{
			AlertID:   fmt.Sprintf("al_%06d", n),
			Severity:  severity,
			EpisodeID: ep.EpisodeID,
			Type:      ep.EpisodeType,
			Message:   message,
			TimeStart: ep.TimeStart,
		})
	}
	return alerts
}
