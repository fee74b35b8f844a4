package snapshot

import (
	"context"
	"fmt"

	"gospatial/domain/moments"
	"gospatial/domain/spatial"

	"github.com/xuri/excelize/v2"
)

// Sheet names of the XLSX snapshot
const (
	SheetParams = "params"
	SheetWide   = "wide"
)

// XLSXWriter writes a workbook with a parameter sheet, one long-form sheet
// per statistic kind and a wide sheet of flat columns
type XLSXWriter struct{}

// Write saves snap to path
func (XLSXWriter) Write(ctx context.Context, snap *moments.Snapshot, path string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	target, err := Resolve(snap, path, ExtXLSX)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetParams); err != nil {
		return fmt.Errorf("failed to name params sheet: %w", err)
	}
	params := [][]interface{}{
		{"run_id", snap.RunID.String()},
		{"phenotype1", snap.Params.Phenotype1.String()},
		{"phenotype2", snap.Params.Phenotype2.String()},
		{"intensity", snap.Params.Intensity},
		{"radii", snap.Radii.String()},
		{"group_by", string(snap.GroupBy)},
		{"reduction", string(snap.Reduction)},
		{"created_at", snap.CreatedAt.String()},
	}
	for i, row := range params {
		if err := setRow(f, SheetParams, i+1, row); err != nil {
			return err
		}
	}

	byKind := make(map[spatial.StatisticKind][]moments.Record)
	for _, rec := range snap.Records {
		byKind[rec.Key.Kind] = append(byKind[rec.Key.Kind], rec)
	}
	for _, kind := range spatial.AllKinds() {
		recs, ok := byKind[kind]
		if !ok {
			continue
		}
		moments.SortRecords(recs)
		sheet := string(kind)
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("failed to add sheet %s: %w", sheet, err)
		}
		if err := setRow(f, sheet, 1, []interface{}{"group", "radius", "mean", "variance", "skew", "kurtosis", "n", "degenerate"}); err != nil {
			return err
		}
		for i, rec := range recs {
			m := rec.Moments
			row := []interface{}{string(rec.Key.Group), rec.Key.Radius, m.Mean, m.Variance, m.Skew, m.Kurtosis, m.N, m.Degenerate}
			if err := setRow(f, sheet, i+2, row); err != nil {
				return err
			}
		}
	}

	columns, groups, cells := WideTable(snap)
	if _, err := f.NewSheet(SheetWide); err != nil {
		return fmt.Errorf("failed to add wide sheet: %w", err)
	}
	header := append([]interface{}{"group"}, toInterfaces(columns)...)
	if err := setRow(f, SheetWide, 1, header); err != nil {
		return err
	}
	for i, g := range groups {
		row := []interface{}{string(g)}
		for _, c := range columns {
			if v, ok := cells[g][c]; ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		if err := setRow(f, SheetWide, i+2, row); err != nil {
			return err
		}
	}

	if err := ensureDir(target); err != nil {
		return err
	}
	if err := f.SaveAs(target); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", target, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func toInterfaces(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
