package timeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/ehr/chronicle/internal/domain/identity"
	"github.com/ehr/chronicle/internal/platform/recordstore"
)

// Builder assembles the canonical event timeline for one person. A Builder is
// stateless and safe for concurrent use; each Build call owns its own id
// sequence.
type Builder struct {
	store    *recordstore.Store
	resolver *identity.Resolver
	log      zerolog.Logger
}

func NewBuilder(store *recordstore.Store, resolver *identity.Resolver, log zerolog.Logger) *Builder {
	return &Builder{store: store, resolver: resolver, log: log}
}

// Build resolves the identifier, extracts events from every reachable source,
// and derives episodes. An identifier nothing matches still yields a result:
// identity null, whatever the export row contributes on its own, zero counts
// elsewhere. Events without a resolvable time_start count toward their
// source's extraction total but never reach the timeline.
func (b *Builder) Build(ctx context.Context, identifier string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id, err := b.resolver.ResolveOne(identifier)
	if err != nil {
		return nil, fmt.Errorf("timeline: resolve %q: %w", identifier, err)
	}

	var patientUUID string
	exportIdentifiers := []string{identifier}
	var ccdaDocs, fhirDocs []recordstore.DocumentRef
	if id != nil {
		patientUUID = id.CSVPatientUUID
		exportIdentifiers = []string{id.StablePatientID, id.MedicalRecordNumber, identifier}
		ccdaDocs, fhirDocs = b.documents(id, identifier)
	}

	extractors := []Extractor{
		&csvExtractor{store: b.store, patientUUID: patientUUID},
		&ccdaExtractor{docs: ccdaDocs},
		&fhirExtractor{docs: fhirDocs},
		&exportExtractor{store: b.store, identifiers: exportIdentifiers},
	}

	seq := &Sequence{}
	counts := map[string]int{}
	timeline := []Event{}
	for _, ex := range extractors {
		events := ex.Extract(seq)
		counts[ex.Name()] = len(events)
		for _, ev := range events {
			if ev.TimeStart == "" {
				continue
			}
			timeline = append(timeline, ev)
		}
	}
	sort.SliceStable(timeline, func(i, j int) bool {
		if timeline[i].TimeStart != timeline[j].TimeStart {
			return timeline[i].TimeStart < timeline[j].TimeStart
		}
		return timeline[i].EventID < timeline[j].EventID
	})

	episodes := DetectEpisodes(timeline)
	counts["timeline_total"] = len(timeline)
	counts["diagnosis_onset_episodes"] = len(episodes[GroupDiagnosisOnset])
	counts["treatment_change_episodes"] = len(episodes[GroupTreatmentChange])
	counts["abnormal_lab_trend_episodes"] = len(episodes[GroupAbnormalLabTrend])
	counts["admission_discharge_cycle_episodes"] = len(episodes[GroupAdmissionDischarge])

	b.log.Debug().
		Str("identifier", identifier).
		Str("patient_uuid", patientUUID).
		Bool("resolved", id != nil).
		Int("events", len(timeline)).
		Msg("timeline built")

	return &Result{
		Identity:     id,
		Timeline:     timeline,
		Episodes:     episodes,
		SourceCounts: counts,
	}, nil
}

// documents gathers every per-person document reachable from the identity's
// identifiers, split into the two parse families, deduplicated by path.
func (b *Builder) documents(id *identity.CanonicalIdentity, identifier string) (ccdaDocs, fhirDocs []recordstore.DocumentRef) {
	seen := map[string]bool{}
	for _, token := range []string{id.CSVPatientUUID, id.StablePatientID, id.MedicalRecordNumber, identifier} {
		if token == "" {
			continue
		}
		for _, ref := range b.store.DocumentsMatching(token) {
			if seen[ref.Path] {
				continue
			}
			seen[ref.Path] = true
			if ref.Dataset == recordstore.DatasetCCDA {
				ccdaDocs = append(ccdaDocs, ref)
			} else {
				fhirDocs = append(fhirDocs, ref)
			}
		}
	}
	return ccdaDocs, fhirDocs
}
