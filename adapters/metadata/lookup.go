// Package metadata resolves fields to their sample, patient, region and
// quality-control status from read-only lookup tables.
package metadata

import (
	"fmt"
	"strings"

	"gospatial/adapters/table"
	"gospatial/domain/celltable"
	"gospatial/domain/core"
	"gospatial/domain/moments"
	"gospatial/internal"
	"gospatial/ports"
)

// Column names of the field and sample metadata tables
const (
	ColumnFieldID   = "field_id"
	ColumnSampleID  = "sample_id"
	ColumnPatientID = "patient_id"
	ColumnSite      = "site"
	ColumnTumorType = "tumor_type"
	ColumnQCStatus  = "qc_status"
)

type fieldRow struct {
	sample core.SampleID
	pass   bool
}

type sampleRow struct {
	patient   string
	site      string
	tumorType string
	pass      bool
}

// Lookup joins the field table to the sample table. Both are validated for
// unique keys when built and never change afterwards.
type Lookup struct {
	fields  map[core.FieldID]fieldRow
	samples map[core.SampleID]sampleRow
}

var _ ports.MetadataLookup = (*Lookup)(nil)

// NewLookup builds a lookup from already loaded tables
func NewLookup(fieldTable, sampleTable *celltable.Table) (*Lookup, error) {
	if err := fieldTable.RequireColumns(ColumnFieldID, ColumnSampleID); err != nil {
		return nil, err
	}
	if err := sampleTable.RequireColumns(ColumnSampleID, ColumnPatientID, ColumnSite); err != nil {
		return nil, err
	}

	l := &Lookup{
		fields:  make(map[core.FieldID]fieldRow, fieldTable.Len()),
		samples: make(map[core.SampleID]sampleRow, sampleTable.Len()),
	}
	for i, row := range fieldTable.Rows {
		id := core.FieldID(row[ColumnFieldID])
		if id == "" {
			return nil, fmt.Errorf("%w: %s row %d has no %s", core.ErrMalformedTable, fieldTable.Name, i+1, ColumnFieldID)
		}
		if _, dup := l.fields[id]; dup {
			return nil, fmt.Errorf("%w: field %s in %s", core.ErrDuplicateKey, id, fieldTable.Name)
		}
		pass, err := ParseQC(row[ColumnQCStatus])
		if err != nil {
			return nil, fmt.Errorf("%s field %s: %w", fieldTable.Name, id, err)
		}
		l.fields[id] = fieldRow{sample: core.SampleID(row[ColumnSampleID]), pass: pass}
	}
	for i, row := range sampleTable.Rows {
		id := core.SampleID(row[ColumnSampleID])
		if id == "" {
			return nil, fmt.Errorf("%w: %s row %d has no %s", core.ErrMalformedTable, sampleTable.Name, i+1, ColumnSampleID)
		}
		if _, dup := l.samples[id]; dup {
			return nil, fmt.Errorf("%w: sample %s in %s", core.ErrDuplicateKey, id, sampleTable.Name)
		}
		pass, err := ParseQC(row[ColumnQCStatus])
		if err != nil {
			return nil, fmt.Errorf("%s sample %s: %w", sampleTable.Name, id, err)
		}
		l.samples[id] = sampleRow{
			patient:   row[ColumnPatientID],
			site:      row[ColumnSite],
			tumorType: row[ColumnTumorType],
			pass:      pass,
		}
	}
	return l, nil
}

// Open reads the two metadata tables from disk
func Open(fieldPath, samplePath string, logger *internal.Logger) (*Lookup, error) {
	ft, err := table.ReadFile(fieldPath, logger)
	if err != nil {
		return nil, fmt.Errorf("reading field metadata: %w", err)
	}
	st, err := table.ReadFile(samplePath, logger)
	if err != nil {
		return nil, fmt.Errorf("reading sample metadata: %w", err)
	}
	l, err := NewLookup(ft, st)
	if err != nil {
		return nil, err
	}
	internal.OrDefault(logger).With("metadata").Info("loaded %d fields and %d samples", len(l.fields), len(l.samples))
	return l, nil
}

// Resolve returns the context of a field. A field or sample that failed
// quality control resolves with Included false and a reason.
func (l *Lookup) Resolve(field core.FieldID) (moments.FieldContext, error) {
	fr, ok := l.fields[field]
	if !ok {
		return moments.FieldContext{}, fmt.Errorf("%w: %s", core.ErrFieldNotFound, field)
	}
	sr, ok := l.samples[fr.sample]
	if !ok {
		return moments.FieldContext{}, fmt.Errorf("%w: %s (field %s)", core.ErrSampleNotFound, fr.sample, field)
	}

	fc := moments.FieldContext{
		Field:     field,
		Sample:    fr.sample,
		Patient:   sr.patient,
		Region:    sr.site,
		TumorType: sr.tumorType,
		Included:  true,
	}
	switch {
	case !fr.pass:
		fc.Included, fc.Reason = false, "field failed QC"
	case !sr.pass:
		fc.Included, fc.Reason = false, "sample failed QC"
	}
	return fc, nil
}

// ParseQC reads a pass/fail flag. An empty cell counts as a pass.
func ParseQC(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "pass", "passed", "true", "1", "yes", "ok":
		return true, nil
	case "fail", "failed", "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("%w: unrecognised QC status %q", core.ErrMalformedTable, raw)
	}
}

// FieldNameLookup derives metadata from field names of the form
// {patient}_{region}_{x}_{y}_{fov}. Every field passes QC.
type FieldNameLookup struct{}

var _ ports.MetadataLookup = FieldNameLookup{}

// Resolve splits the field name on underscores
func (FieldNameLookup) Resolve(field core.FieldID) (moments.FieldContext, error) {
	parts := strings.Split(field.String(), "_")
	if len(parts) < 2 || parts[0] == "" {
		return moments.FieldContext{}, fmt.Errorf("%w: cannot derive patient and region from field name %q", core.ErrMetadataMissing, field)
	}
	fc := moments.FieldContext{
		Field:    field,
		Sample:   core.SampleID(parts[0] + "_" + parts[1]),
		Patient:  parts[0],
		Region:   parts[1],
		Included: true,
	}
	if len(parts) > 4 {
		fc.FOV = parts[4]
	}
	return fc, nil
}
