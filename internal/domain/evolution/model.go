package evolution

import (
	"github.com/ehr/chronicle/internal/domain/fusion"
	"github.com/ehr/chronicle/internal/domain/identity"
	"github.com/ehr/chronicle/internal/domain/profile"
	"github.com/ehr/chronicle/internal/domain/timeline"
)

// Alert severities.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// FlatEpisode is an episode with its report-scoped id and originating group.
type FlatEpisode struct {
	EpisodeID string `json:"episode_id"`
	Group     string `json:"group"`
	timeline.Episode
}

// Alert surfaces an episode that warrants attention.
type Alert struct {
	AlertID   string `json:"alert_id"`
	Severity  string `json:"severity"`
	EpisodeID string `json:"episode_id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	TimeStart string `json:"time_start,omitempty"`
}

// Report is the complete evolution document for one person: the resolved
// identity, the condensed profile, the enriched timeline, the flattened
// episode list and derived alerts.
type Report struct {
	Identifier   string                      `json:"identifier"`
	GeneratedAt  string                      `json:"generated_at"`
	Identity     *identity.CanonicalIdentity `json:"identity"`
	Profile      *profile.Profile            `json:"profile,omitempty"`
	Timeline     []fusion.EnrichedEvent      `json:"timeline"`
	Episodes     []FlatEpisode               `json:"episodes"`
	Alerts       []Alert                     `json:"alerts"`
	SourceCounts map[string]int              `json:"source_counts"`
}
