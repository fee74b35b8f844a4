package aggregate

import (
	"errors"
	"fmt"

	"gospatial/domain/core"
	"gospatial/domain/moments"
	"gospatial/domain/spatial"
)

// Accumulator owns the pools of one group. It is not safe for concurrent use;
// the Aggregator is its only writer.
type Accumulator struct {
	reduction moments.Reduction
	pools     map[spatial.StatKey][]float64
	parts     map[spatial.StatKey][]moments.Summary
	seen      map[spatial.StatKey]bool
	fields    []core.FieldID
}

// NewAccumulator creates an empty accumulator for one reduction mode
func NewAccumulator(reduction moments.Reduction) *Accumulator {
	return &Accumulator{
		reduction: reduction,
		pools:     make(map[spatial.StatKey][]float64),
		parts:     make(map[spatial.StatKey][]moments.Summary),
		seen:      make(map[spatial.StatKey]bool),
	}
}

// Absorb adds one field's vectors. Pooled mode concatenates the raw values;
// weighted mode reduces the field first and keeps its moments with N set to
// the field's reference count.
func (a *Accumulator) Absorb(fr *spatial.FieldResult) error {
	for _, key := range fr.Keys() {
		values := fr.Values[key]
		a.seen[key] = true
		switch a.reduction {
		case moments.ReductionWeightedMoments:
			if len(values) == 0 {
				continue
			}
			s, err := ComputeMoments(values)
			if err != nil {
				return fmt.Errorf("field %s %s: %w", fr.Field, key, err)
			}
			a.parts[key] = append(a.parts[key], s)
		default:
			a.pools[key] = append(a.pools[key], values...)
		}
	}
	a.fields = append(a.fields, fr.Field)
	return nil
}

// Fields returns the fields absorbed so far in absorption order
func (a *Accumulator) Fields() []core.FieldID {
	return append([]core.FieldID(nil), a.fields...)
}

// Pool returns the pooled values of one key
func (a *Accumulator) Pool(key spatial.StatKey) []float64 {
	return a.pools[key]
}

// Keys returns every key seen, in stable order
func (a *Accumulator) Keys() []spatial.StatKey {
	keys := make([]spatial.StatKey, 0, len(a.seen))
	for k := range a.seen {
		keys = append(keys, k)
	}
	spatial.SortStatKeys(keys)
	return keys
}

// Reduce summarises every key. Keys whose pool is empty are returned in
// skipped rather than summarised.
func (a *Accumulator) Reduce() (map[spatial.StatKey]moments.Summary, []spatial.StatKey, error) {
	out := make(map[spatial.StatKey]moments.Summary, len(a.seen))
	var skipped []spatial.StatKey
	for _, key := range a.Keys() {
		var (
			s   moments.Summary
			err error
		)
		if a.reduction == moments.ReductionWeightedMoments {
			s, err = CombineWeighted(a.parts[key])
		} else {
			s, err = ComputeMoments(a.pools[key])
		}
		if errors.Is(err, core.ErrEmptyPool) {
			skipped = append(skipped, key)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = s
	}
	return out, skipped, nil
}
