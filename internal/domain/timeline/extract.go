package timeline

// Extractor turns one source dataset's records into canonical events.
// The deep per-format branching lives behind this interface: one variant per
// dataset family, all producing the same Event shape.
type Extractor interface {
	// Name keys this extractor's contribution in the result's source counts.
	Name() string
	// Extract emits events, drawing ids from the build's sequence. Events
	// with an unresolvable time_start are still emitted here and discarded
	// by the builder, so id allocation stays uniform across sources.
	Extract(seq *Sequence) []Event
}

func contextMap(pairs ...string) map[string]string {
	ctx := map[string]string{}
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			ctx[pairs[i]] = pairs[i+1]
		}
	}
	return ctx
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
