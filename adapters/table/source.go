package table

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gospatial/domain/celltable"
	"gospatial/domain/core"
	"gospatial/internal"
	"gospatial/ports"
)

// File names inside a per-field directory
const (
	DetectionFileName = "object_detection_results.tsv"
	PhenotypeFileName = "phenotypes.tsv"
)

// PairedDirectorySource pairs a detection listing with a phenotype listing.
// Each listing holds either one directory per field (containing
// DetectionFileName or PhenotypeFileName) or one table file per field.
type PairedDirectorySource struct {
	DetectionDir string
	PhenotypeDir string
	CellID       string
	logger       *internal.Logger
}

// NewPairedDirectorySource creates a paired source joined on cellID
func NewPairedDirectorySource(detectionDir, phenotypeDir, cellID string, logger *internal.Logger) *PairedDirectorySource {
	if cellID == "" {
		cellID = celltable.DefaultCellIDColumn
	}
	return &PairedDirectorySource{
		DetectionDir: detectionDir,
		PhenotypeDir: phenotypeDir,
		CellID:       cellID,
		logger:       internal.OrDefault(logger).With("source"),
	}
}

var _ ports.CellTableSource = (*PairedDirectorySource)(nil)

type listing struct {
	name string
	path string
}

// list returns the sorted field entries of dir
func list(dir, fileInFieldDir string) ([]listing, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var out []listing
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		full := filepath.Join(dir, e.Name())
		if e.IsDir() {
			out = append(out, listing{name: e.Name(), path: filepath.Join(full, fileInFieldDir)})
			continue
		}
		if IsTableFile(e.Name()) {
			out = append(out, listing{name: strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())), path: full})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

// Fields checks that both listings correspond one-to-one in sorted order
func (s *PairedDirectorySource) Fields(ctx context.Context) ([]ports.FieldInput, error) {
	det, err := list(s.DetectionDir, DetectionFileName)
	if err != nil {
		return nil, err
	}
	phe, err := list(s.PhenotypeDir, PhenotypeFileName)
	if err != nil {
		return nil, err
	}
	if len(det) != len(phe) {
		return nil, core.NewInputMismatchError(fmt.Sprintf("%d detection entries but %d phenotype entries", len(det), len(phe)))
	}

	fields := make([]ports.FieldInput, len(det))
	for i := range det {
		if det[i].name != phe[i].name {
			return nil, core.NewInputMismatchError(fmt.Sprintf("entry %d is %q in detections but %q in phenotypes", i, det[i].name, phe[i].name))
		}
		fields[i] = ports.FieldInput{
			Field:         core.FieldID(det[i].name),
			DetectionPath: det[i].path,
			PhenotypePath: phe[i].path,
		}
	}
	s.logger.Info("paired %d fields from %s and %s", len(fields), s.DetectionDir, s.PhenotypeDir)
	return fields, nil
}

// Load reads both tables, drops the export bookkeeping columns and left-joins
// phenotypes onto detections
func (s *PairedDirectorySource) Load(ctx context.Context, in ports.FieldInput) (*celltable.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.MergedPath != "" {
		return ReadFile(in.MergedPath, s.logger)
	}
	det, err := ReadFile(in.DetectionPath, s.logger)
	if err != nil {
		return nil, err
	}
	phe, err := ReadFile(in.PhenotypePath, s.logger)
	if err != nil {
		return nil, err
	}
	joined, err := det.Drop(celltable.DetectionDropColumns...).LeftJoin(phe.Drop(celltable.PhenotypeDropColumns...), s.CellID)
	if err != nil {
		return nil, fmt.Errorf("joining field %s: %w", in.Field, err)
	}
	joined.Name = in.Field.String()
	return joined, nil
}

// MergedGlobSource reads already joined per-field tables matching a glob.
// When IndexColumn is set its first value names the field, otherwise the
// file name does.
type MergedGlobSource struct {
	Pattern     string
	IndexColumn string
	logger      *internal.Logger
}

// NewMergedGlobSource creates a source over pattern
func NewMergedGlobSource(pattern, indexColumn string, logger *internal.Logger) *MergedGlobSource {
	return &MergedGlobSource{Pattern: pattern, IndexColumn: indexColumn, logger: internal.OrDefault(logger).With("source")}
}

var _ ports.CellTableSource = (*MergedGlobSource)(nil)

// Fields expands the glob; field names must be unique
func (s *MergedGlobSource) Fields(ctx context.Context) ([]ports.FieldInput, error) {
	paths, err := filepath.Glob(s.Pattern)
	if err != nil {
		return nil, fmt.Errorf("bad glob %q: %w", s.Pattern, err)
	}
	sort.Strings(paths)

	seen := make(map[core.FieldID]string, len(paths))
	fields := make([]ports.FieldInput, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, err := s.fieldName(p)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[name]; dup {
			return nil, core.NewInputMismatchError(fmt.Sprintf("field %s appears in both %s and %s", name, prev, p))
		}
		seen[name] = p
		fields = append(fields, ports.FieldInput{Field: name, MergedPath: p})
	}
	s.logger.Info("found %d merged tables for %s", len(fields), s.Pattern)
	return fields, nil
}

func (s *MergedGlobSource) fieldName(path string) (core.FieldID, error) {
	if s.IndexColumn == "" {
		return core.FieldID(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))), nil
	}
	t, err := ReadFile(path, s.logger)
	if err != nil {
		return "", err
	}
	if err := t.RequireColumns(s.IndexColumn); err != nil {
		return "", err
	}
	v, ok := t.FirstValue(s.IndexColumn)
	if !ok {
		return "", fmt.Errorf("%w: %s has no value in %q", core.ErrMalformedTable, path, s.IndexColumn)
	}
	return core.FieldID(v), nil
}

// Load reads the merged table
func (s *MergedGlobSource) Load(ctx context.Context, in ports.FieldInput) (*celltable.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := ReadFile(in.MergedPath, s.logger)
	if err != nil {
		return nil, err
	}
	t.Name = in.Field.String()
	return t, nil
}
