package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gospatial/domain/core"
	"gospatial/domain/moments"
	"gospatial/domain/spatial"
)

// JSONWriter writes the snapshot as an indented JSON document
type JSONWriter struct{}

// Document is the JSON layout of a snapshot
type Document struct {
	*moments.Snapshot
	Results map[spatial.StatisticKind]map[string]map[core.GroupID]moments.Summary `json:"results"`
	Wide    map[core.GroupID]map[string]float64                                     `json:"wide"`
}

// Write encodes snap to path
func (JSONWriter) Write(ctx context.Context, snap *moments.Snapshot, path string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	target, err := Resolve(snap, path, ExtJSON)
	if err != nil {
		return err
	}
	_, _, wide := WideTable(snap)
	data, err := json.MarshalIndent(Document{Snapshot: snap, Results: snap.Nested(), Wide: wide}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := ensureDir(target); err != nil {
		return err
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", target, err)
	}
	return nil
}

// ReadJSON decodes a snapshot written by JSONWriter
func ReadJSON(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc := &Document{Snapshot: &moments.Snapshot{}}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", path, err)
	}
	return doc, nil
}
