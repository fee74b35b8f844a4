package ports

import (
	"context"

	"gospatial/domain/celltable"
	"gospatial/domain/core"
)

// FieldInput locates the raw tables of one field
type FieldInput struct {
	Field         core.FieldID
	DetectionPath string
	PhenotypePath string
	// MergedPath is set instead of the pair when the field ships one joined table
	MergedPath string
}

// CellTableSource lists fields and loads their joined cell tables
type CellTableSource interface {
	// Fields returns every field in a stable order. A source whose inputs do
	// not correspond one-to-one fails with core.ErrInputMismatch.
	Fields(ctx context.Context) ([]FieldInput, error)
	// Load returns the field's cell table with phenotype columns joined on
	Load(ctx context.Context, in FieldInput) (*celltable.Table, error)
}
