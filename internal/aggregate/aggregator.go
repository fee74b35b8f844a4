package aggregate

import (
	"fmt"
	"sort"

	"gospatial/domain/core"
	"gospatial/domain/moments"
	"gospatial/domain/spatial"
	"gospatial/internal"
	"gospatial/ports"
)

// GroupSummary is the reduced summary of one (group, kind, radius) pool
type GroupSummary struct {
	Group   core.GroupID
	Key     spatial.StatKey
	Summary moments.Summary
}

// SkippedPool names a pool that was empty at reduction time
type SkippedPool struct {
	Group core.GroupID    `json:"group"`
	Key   spatial.StatKey `json:"key"`
}

// Exclusion records a field left out by quality control
type Exclusion struct {
	Field  core.FieldID `json:"field"`
	Reason string       `json:"reason"`
}

// Aggregator routes field results to per-group accumulators. Add must be
// called from a single goroutine.
type Aggregator struct {
	groupBy   moments.GroupBy
	reduction moments.Reduction
	lookup    ports.MetadataLookup
	groups    map[core.GroupID]*Accumulator
	excluded  []Exclusion
	logger    *internal.Logger
}

// NewAggregator creates an aggregator resolving groups through lookup
func NewAggregator(lookup ports.MetadataLookup, groupBy moments.GroupBy, reduction moments.Reduction, logger *internal.Logger) *Aggregator {
	if groupBy == "" {
		groupBy = moments.GroupByPatientRegion
	}
	if reduction == "" {
		reduction = moments.ReductionPooled
	}
	return &Aggregator{
		groupBy:   groupBy,
		reduction: reduction,
		lookup:    lookup,
		groups:    make(map[core.GroupID]*Accumulator),
		logger:    internal.OrDefault(logger).With("aggregate"),
	}
}

// Resolve returns the metadata of a field
func (a *Aggregator) Resolve(field core.FieldID) (moments.FieldContext, error) {
	fc, err := a.lookup.Resolve(field)
	if err != nil {
		return moments.FieldContext{}, fmt.Errorf("resolving %s: %w", field, err)
	}
	return fc, nil
}

// Add absorbs a field result into its group. Fields failing QC are recorded
// as excluded and contribute nothing. It reports whether the field was pooled.
func (a *Aggregator) Add(fr *spatial.FieldResult) (bool, error) {
	fc, err := a.Resolve(fr.Field)
	if err != nil {
		return false, err
	}
	if !fc.Included {
		a.excluded = append(a.excluded, Exclusion{Field: fr.Field, Reason: fc.Reason})
		a.logger.Info("excluding field %s: %s", fr.Field, fc.Reason)
		return false, nil
	}

	group := fc.GroupID(a.groupBy)
	acc, ok := a.groups[group]
	if !ok {
		acc = NewAccumulator(a.reduction)
		a.groups[group] = acc
	}
	if err := acc.Absorb(fr); err != nil {
		return false, err
	}
	a.logger.Debug("field %s pooled into %s", fr.Field, group)
	return true, nil
}

// Excluded returns the QC exclusions seen so far
func (a *Aggregator) Excluded() []Exclusion {
	return append([]Exclusion(nil), a.excluded...)
}

// Groups returns the group IDs in sorted order
func (a *Aggregator) Groups() []core.GroupID {
	ids := make([]core.GroupID, 0, len(a.groups))
	for id := range a.groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Group returns the accumulator of one group
func (a *Aggregator) Group(id core.GroupID) (*Accumulator, bool) {
	acc, ok := a.groups[id]
	return acc, ok
}

// Reduction returns the reduction mode
func (a *Aggregator) Reduction() moments.Reduction { return a.reduction }

// Summaries reduces every group, ordered by group, kind and radius
func (a *Aggregator) Summaries() ([]GroupSummary, []SkippedPool, error) {
	var (
		out     []GroupSummary
		skipped []SkippedPool
	)
	for _, id := range a.Groups() {
		reduced, empty, err := a.groups[id].Reduce()
		if err != nil {
			return nil, nil, fmt.Errorf("group %s: %w", id, err)
		}
		for _, key := range empty {
			a.logger.Warn("group %s %s has an empty pool; no summary written", id, key)
			skipped = append(skipped, SkippedPool{Group: id, Key: key})
		}
		keys := make([]spatial.StatKey, 0, len(reduced))
		for k := range reduced {
			keys = append(keys, k)
		}
		spatial.SortStatKeys(keys)
		for _, k := range keys {
			out = append(out, GroupSummary{Group: id, Key: k, Summary: reduced[k]})
		}
	}
	return out, skipped, nil
}
