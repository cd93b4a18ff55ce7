package timeline

import (
	"os"

	"github.com/ehr/chronicle/internal/platform/ccda"
	"github.com/ehr/chronicle/internal/platform/hl7time"
	"github.com/ehr/chronicle/internal/platform/recordstore"
)

// ccdaExtractor walks each matched clinical document and lifts every dated
// element into an event, carrying enough structural context to keep the
// point interpretable without the surrounding XML.
type ccdaExtractor struct {
	docs []recordstore.DocumentRef
}

func (e *ccdaExtractor) Name() string { return "ccda_events" }

func (e *ccdaExtractor) Extract(seq *Sequence) []Event {
	var events []Event
	for _, doc := range e.docs {
		raw, err := os.ReadFile(doc.Path)
		if err != nil {
			continue
		}
		root, err := ccda.Parse(raw)
		if err != nil {
			continue
		}
		for _, tp := range root.TimePoints() {
			start, _ := hl7time.Normalize(tp.Raw)
			events = append(events, Event{
				EventID:       seq.Next(),
				Category:      CategoryClinicalContext,
				Subtype:       ccdaSubtype(tp.Tag),
				TimeStart:     start,
				Description:   ccdaDescription(tp),
				Code:          tp.Code,
				SourceDataset: string(doc.Dataset),
				SourceFile:    doc.Path,
				Context: contextMap(
					"section_title", tp.SectionTitle,
					"context_tag", tp.ContextTag,
					"time_tag", tp.Tag,
					"raw_time", tp.Raw,
				),
			})
		}
	}
	return events
}

func ccdaSubtype(timeTag string) string {
	switch timeTag {
	case "low":
		return "ccda_period_start"
	case "high":
		return "ccda_period_end"
	case "time":
		return "ccda_time"
	default:
		return "ccda_effective_time"
	}
}

func ccdaDescription(tp ccda.TimePoint) string {
	if tp.DisplayName != "" {
		return tp.DisplayName
	}
	if tp.ContextTag != "" {
		return tp.ContextTag
	}
	return "C-CDA time point"
}
