package testkit

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gospatial/domain/celltable"
	"gospatial/domain/spatial"
)

// Column names written by the generator
const (
	PhenotypeColumn = "Phenotype"
	IntensityColumn = "CD8: Cell: Mean"
	FieldColumn     = "field"
)

// Phenotype values written by the generator
const (
	Tumor  = "Tumor"
	Immune = "Immune"
	Stroma = "Stroma"
)

// FieldGeneratorConfig configures one synthetic field
type FieldGeneratorConfig struct {
	Name        string  `json:"name"`
	TumorCount  int     `json:"tumor_count"`
	ImmuneCount int     `json:"immune_count"`
	StromaCount int     `json:"stroma_count"`
	Size        float64 `json:"size"`
	Seed        int64   `json:"seed"`
}

// DefaultFieldConfig returns a small field named like the standard exports
func DefaultFieldConfig() FieldGeneratorConfig {
	return FieldGeneratorConfig{
		Name:        "P01_ovary_1000_2000_1",
		TumorCount:  41,
		ImmuneCount: 17,
		StromaCount: 5,
		Size:        200,
		Seed:        42,
	}
}

// Cell is one generated cell
type Cell struct {
	ID        int
	X, Y      float64
	Phenotype string
	Intensity float64
}

// Field is a generated field in both paired and merged form
type Field struct {
	Name  string
	Cells []Cell
}

// GenerateField places cells uniformly in a Size x Size window
func GenerateField(cfg FieldGeneratorConfig) Field {
	rng := rand.New(rand.NewSource(cfg.Seed))
	f := Field{Name: cfg.Name}
	add := func(n int, phenotype string) {
		for i := 0; i < n; i++ {
			f.Cells = append(f.Cells, Cell{
				ID:        len(f.Cells) + 1,
				X:         rng.Float64() * cfg.Size,
				Y:         rng.Float64() * cfg.Size,
				Phenotype: phenotype,
				Intensity: rng.Float64() * 10,
			})
		}
	}
	add(cfg.TumorCount, Tumor)
	add(cfg.ImmuneCount, Immune)
	add(cfg.StromaCount, Stroma)
	return f
}

// RandomPoints returns n points uniform in [0, size)^2
func RandomPoints(rng *rand.Rand, n int, size float64) spatial.PointSet {
	ps := make(spatial.PointSet, n)
	for i := range ps {
		ps[i] = spatial.Point{X: rng.Float64() * size, Y: rng.Float64() * size}
	}
	return ps
}

// RandomIntensities returns n values uniform in [0, 1)
func RandomIntensities(rng *rand.Rand, n int) spatial.IntensityVector {
	v := make(spatial.IntensityVector, n)
	for i := range v {
		v[i] = rng.Float64()
	}
	return v
}

// Points returns the centroids of one phenotype in cell order
func (f Field) Points(phenotype string) spatial.PointSet {
	var ps spatial.PointSet
	for _, c := range f.Cells {
		if c.Phenotype == phenotype {
			ps = append(ps, spatial.Point{X: c.X, Y: c.Y})
		}
	}
	return ps
}

// Intensities returns the intensities of one phenotype in cell order
func (f Field) Intensities(phenotype string) spatial.IntensityVector {
	var v spatial.IntensityVector
	for _, c := range f.Cells {
		if c.Phenotype == phenotype {
			v = append(v, c.Intensity)
		}
	}
	return v
}

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// Table returns the merged cell table
func (f Field) Table() *celltable.Table {
	headers := []string{FieldColumn, celltable.DefaultCellIDColumn, celltable.DefaultXColumn, celltable.DefaultYColumn, PhenotypeColumn, IntensityColumn}
	rows := make([][]string, len(f.Cells))
	for i, c := range f.Cells {
		rows[i] = []string{f.Name, strconv.Itoa(c.ID), ftoa(c.X), ftoa(c.Y), c.Phenotype, ftoa(c.Intensity)}
	}
	return celltable.NewTable(f.Name, headers, rows)
}

func writeTSV(path string, headers []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString(strings.Join(headers, "\t"))
	b.WriteByte('\n')
	for _, r := range rows {
		b.WriteString(strings.Join(r, "\t"))
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// WritePaired writes the field as <detDir>/<name>/object_detection_results.tsv
// and <pheDir>/<name>/phenotypes.tsv, with the export bookkeeping columns.
func (f Field) WritePaired(detDir, pheDir string) error {
	detRows := make([][]string, len(f.Cells))
	pheRows := make([][]string, len(f.Cells))
	for i, c := range f.Cells {
		id := strconv.Itoa(c.ID)
		detRows[i] = []string{id, "Cell", ftoa(c.X), ftoa(c.Y)}
		pheRows[i] = []string{f.Name, "cell" + id, "Cell", "Annotation", "", id, c.Phenotype, ftoa(c.Intensity)}
	}
	det := []string{celltable.DefaultCellIDColumn, "Class", celltable.DefaultXColumn, celltable.DefaultYColumn}
	phe := []string{"Image", "Name", "Class", "Parent", "ROI", celltable.DefaultCellIDColumn, PhenotypeColumn, IntensityColumn}
	if err := writeTSV(filepath.Join(detDir, f.Name, "object_detection_results.tsv"), det, detRows); err != nil {
		return fmt.Errorf("writing detections of %s: %w", f.Name, err)
	}
	if err := writeTSV(filepath.Join(pheDir, f.Name, "phenotypes.tsv"), phe, pheRows); err != nil {
		return fmt.Errorf("writing phenotypes of %s: %w", f.Name, err)
	}
	return nil
}

// WriteMerged writes the merged table as <dir>/<name>.tsv and returns its path
func (f Field) WriteMerged(dir string) (string, error) {
	t := f.Table()
	rows := make([][]string, t.Len())
	for i, r := range t.Rows {
		row := make([]string, len(t.Headers))
		for j, h := range t.Headers {
			row[j] = r[h]
		}
		rows[i] = row
	}
	path := filepath.Join(dir, f.Name+".tsv")
	return path, writeTSV(path, t.Headers, rows)
}
