package evolution

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Export runs the pipeline and writes the report as indented JSON under dir,
// named <identifier>_patient_evolution.json with unsafe identifier characters
// replaced. It returns the written path alongside the report.
func (o *Orchestrator) Export(ctx context.Context, identifier, dir string) (string, *Report, error) {
	report, err := o.Run(ctx, identifier)
	if err != nil {
		return "", nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("evolution: create export dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, sanitizeName(identifier)+"_patient_evolution.json")
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("evolution: encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", nil, fmt.Errorf("evolution: write %s: %w", path, err)
	}
	o.log.Info().Str("path", path).Msg("evolution report exported")
	return path, report, nil
}

// sanitizeName keeps identifiers filesystem-safe.
func sanitizeName(identifier string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, identifier)
}
