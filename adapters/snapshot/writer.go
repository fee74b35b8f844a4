// Package snapshot writes the complete output of one sweep to a single file.
package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gospatial/domain/core"
	"gospatial/domain/moments"
	"gospatial/ports"
)

// Supported snapshot extensions
const (
	ExtJSON = ".json"
	ExtXLSX = ".xlsx"
)

// NewWriter picks a writer from the path's extension; a directory or an
// extensionless path gets JSON.
func NewWriter(path string) (ports.SnapshotWriter, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtXLSX:
		return XLSXWriter{}, nil
	case ExtJSON, "":
		return JSONWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported snapshot format %q", filepath.Ext(path))
	}
}

// Resolve returns the file to write: path itself, or the snapshot's default
// name inside path when path is an existing directory.
func Resolve(snap *moments.Snapshot, path, ext string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("no snapshot path given")
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return filepath.Join(path, snap.FileName(ext)), nil
	}
	if filepath.Ext(path) == "" {
		return path + ext, nil
	}
	return path, nil
}

// WideTable lays the records out one row per group with one column per
// flat result name, sorted.
func WideTable(snap *moments.Snapshot) (columns []string, groups []core.GroupID, cells map[core.GroupID]map[string]float64) {
	cells = make(map[core.GroupID]map[string]float64)
	seen := make(map[string]bool)
	for _, rec := range snap.Records {
		row, ok := cells[rec.Key.Group]
		if !ok {
			row = make(map[string]float64)
			cells[rec.Key.Group] = row
		}
		for name, v := range rec.Flat() {
			row[name] = v
			if !seen[name] {
				seen[name] = true
				columns = append(columns, name)
			}
		}
	}
	sort.Strings(columns)
	return columns, snap.Groups(), cells
}

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("snapshot cancelled: %w", err)
	}
	return nil
}
