package collab

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"remig/internal/graph"
)

// FactsFile is a Parser that reads component/edge facts from a YAML file.
// It lets the CLI run the engine against an exported fact report when no
// live parsing collaborator is attached.
type FactsFile struct {
	Path string
}

// NewFactsFile creates a file-backed facts parser
func NewFactsFile(path string) *FactsFile {
	return &FactsFile{Path: path}
}

// SnapshotFacts reads and decodes the facts file. Validation of the facts
// themselves happens in graph.Build.
func (f *FactsFile) SnapshotFacts(ctx context.Context) (graph.Facts, error) {
	if err := ctx.Err(); err != nil {
		return graph.Facts{}, err
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return graph.Facts{}, fmt.Errorf("failed to read facts file: %w", err)
	}

	var facts graph.Facts
	if err := yaml.Unmarshal(data, &facts); err != nil {
		return graph.Facts{}, fmt.Errorf("failed to decode facts file %s: %w", f.Path, err)
	}
	return facts, nil
}
