package wizard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"icp-wizard/internal/domain"
)

// Export writes companies.csv, people.csv and icp.json into dir and returns
// the written paths. Sections are written verbatim, empty ones included.
func Export(dir string, out domain.FinalizeOutput) ([]string, error) {
	if dir == "" {
		return nil, errors.New("wizard: export directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("wizard: create export directory: %w", err)
	}

	artifacts := out.Artifacts()
	paths := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		path := filepath.Join(dir, a.Name)
		if err := os.WriteFile(path, []byte(a.Data), 0o644); err != nil {
			return paths, fmt.Errorf("wizard: write %s: %w", a.Name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
