// Package field turns one field's cell table into per-reference-point
// K-function vectors.
package field

import (
	"context"
	"fmt"
	"strings"

	"gospatial/adapters/stats/kfunction"
	"gospatial/domain/celltable"
	"gospatial/domain/core"
	"gospatial/domain/spatial"
	"gospatial/internal"
)

// EmptyPolicy decides what an empty phenotype selection does
type EmptyPolicy string

const (
	// EmptyWarn logs the empty selection and computes zero-valued contributions
	EmptyWarn EmptyPolicy = "warn"
	// EmptyStrict fails the field with core.ErrEmptyPhenotype
	EmptyStrict EmptyPolicy = "strict"
)

// ParseEmptyPolicy validates a policy name; empty means warn
func ParseEmptyPolicy(s string) (EmptyPolicy, error) {
	switch p := EmptyPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case EmptyWarn, EmptyStrict:
		return p, nil
	case "":
		return EmptyWarn, nil
	default:
		return "", fmt.Errorf("unknown empty_policy %q", s)
	}
}

// Params is the per-field parameter set
type Params struct {
	Phenotype1 spatial.PhenotypePredicate
	Phenotype2 spatial.PhenotypePredicate
	Radii      spatial.RadiusSet
	Kinds      []spatial.StatisticKind
	// Intensity names the phenotype-2 intensity column; required by intensity kinds
	Intensity string
	Columns   celltable.Columns
}

// NeedsIntensity reports whether any requested kind reads the intensity column
func (p Params) NeedsIntensity() bool {
	for _, k := range p.Kinds {
		if k.RequiresIntensity() {
			return true
		}
	}
	return false
}

// Validate checks the parameters independent of any table
func (p Params) Validate() error {
	if err := p.Radii.Validate(); err != nil {
		return err
	}
	if len(p.Kinds) == 0 {
		return core.NewValidationError("kinds", "at least one statistic kind is required")
	}
	for _, pred := range []spatial.PhenotypePredicate{p.Phenotype1, p.Phenotype2} {
		if pred.Column == "" || pred.Value == "" {
			return core.NewValidationError("phenotype", fmt.Sprintf("predicate %q needs a column and a value", pred))
		}
	}
	if p.NeedsIntensity() && p.Intensity == "" {
		return core.NewValidationError("intensity", "an intensity column is required for intensity kinds")
	}
	return nil
}

// RequiredColumns lists the columns a cell table must carry
func (p Params) RequiredColumns() []string {
	cols := p.Columns.WithDefaults()
	req := []string{cols.X, cols.Y, p.Phenotype1.Column, p.Phenotype2.Column}
	if p.NeedsIntensity() {
		req = append(req, p.Intensity)
	}
	return req
}

// Computer runs the statistic engine over one field at a time. It holds no
// per-field state and is safe for concurrent use.
type Computer struct {
	engine *kfunction.Engine
	policy EmptyPolicy
	logger *internal.Logger
}

// NewComputer creates a computer; an empty policy means warn
func NewComputer(engine *kfunction.Engine, policy EmptyPolicy, logger *internal.Logger) *Computer {
	if policy == "" {
		policy = EmptyWarn
	}
	return &Computer{engine: engine, policy: policy, logger: internal.OrDefault(logger).With("field")}
}

// Policy returns the empty-selection policy
func (c *Computer) Policy() EmptyPolicy { return c.policy }

// Compute filters the table by both predicates and evaluates every kind at
// every radius in list form.
func (c *Computer) Compute(ctx context.Context, id core.FieldID, t *celltable.Table, p Params) (*spatial.FieldResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := t.RequireColumns(p.RequiredColumns()...); err != nil {
		return nil, err
	}
	cols := p.Columns.WithDefaults()

	res := &spatial.FieldResult{Field: id, Values: make(map[spatial.StatKey][]float64)}

	refRows := t.Filter(p.Phenotype1)
	measRows := t.Filter(p.Phenotype2)
	for _, sel := range []struct {
		role string
		pred spatial.PhenotypePredicate
		n    int
	}{
		{"phenotype1", p.Phenotype1, len(refRows)},
		{"phenotype2", p.Phenotype2, len(measRows)},
	} {
		if sel.n > 0 {
			continue
		}
		err := core.NewEmptyPhenotypeError(id, sel.role, sel.pred.Column, sel.pred.Value)
		if c.policy == EmptyStrict {
			return nil, err
		}
		c.logger.Warn("%v", err)
		res.Warnings = append(res.Warnings, err.Error())
	}

	p1, err := celltable.Points(id.String(), refRows, cols)
	if err != nil {
		return nil, err
	}
	p2, err := celltable.Points(id.String(), measRows, cols)
	if err != nil {
		return nil, err
	}
	var intensity spatial.IntensityVector
	if p.NeedsIntensity() {
		if intensity, err = celltable.Intensities(id.String(), measRows, p.Intensity); err != nil {
			return nil, err
		}
	}

	outs, err := c.engine.Compute(p.Kinds, p1, p2, p.Radii, intensity)
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", id, err)
	}
	for kind, out := range outs {
		for ri, r := range out.Radii {
			res.Values[spatial.StatKey{Kind: kind, Radius: r}] = out.Values[ri]
		}
	}
	res.ReferenceCount = len(p1)
	res.MeasuredCount = len(p2)

	c.logger.Debug("field %s: %d reference, %d measured cells", id, res.ReferenceCount, res.MeasuredCount)
	return res, nil
}
