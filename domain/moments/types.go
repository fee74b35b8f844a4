// Package moments holds the aggregated, persisted representation of a
// K-function sweep: moment summaries keyed by computation parameters and group.
package moments

import (
	"fmt"
	"strings"

	"gospatial/domain/core"
	"gospatial/domain/spatial"
)

// Moment names in the order they are reported
const (
	MomentMean     = "mean"
	MomentVariance = "variance"
	MomentSkew     = "skew"
	MomentKurtosis = "kurtosis"
)

// MomentNames lists the four reported moments
func MomentNames() []string {
	return []string{MomentMean, MomentVariance, MomentSkew, MomentKurtosis}
}

// Summary is the (mean, variance, skew, excess kurtosis) of one pooled array.
// N is the pool size, or the summed reference counts for weighted reductions.
// Degenerate marks a zero-variance pool whose skew and kurtosis are reported as 0.
type Summary struct {
	Mean       float64 `json:"mean" db:"mean"`
	Variance   float64 `json:"variance" db:"variance"`
	Skew       float64 `json:"skew" db:"skew"`
	Kurtosis   float64 `json:"kurtosis" db:"kurtosis"`
	N          int     `json:"n" db:"n"`
	Degenerate bool    `json:"degenerate,omitempty" db:"degenerate"`
}

// Vector returns the four moments in reporting order
func (s Summary) Vector() [4]float64 {
	return [4]float64{s.Mean, s.Variance, s.Skew, s.Kurtosis}
}

// Value returns a moment by name
func (s Summary) Value(name string) (float64, bool) {
	switch name {
	case MomentMean:
		return s.Mean, true
	case MomentVariance:
		return s.Variance, true
	case MomentSkew:
		return s.Skew, true
	case MomentKurtosis:
		return s.Kurtosis, true
	}
	return 0, false
}

// GroupBy selects the aggregation key
type GroupBy string

const (
	GroupByPatient       GroupBy = "patient"
	GroupByPatientRegion GroupBy = "patient_region"
	GroupBySample        GroupBy = "sample"
)

// ParseGroupBy validates a grouping name
func ParseGroupBy(s string) (GroupBy, error) {
	switch g := GroupBy(strings.ToLower(strings.TrimSpace(s))); g {
	case GroupByPatient, GroupByPatientRegion, GroupBySample:
		return g, nil
	case "":
		return GroupByPatientRegion, nil
	default:
		return "", fmt.Errorf("unknown group_by %q", s)
	}
}

// Reduction selects how per-field results become a group summary
type Reduction string

const (
	// ReductionPooled concatenates raw per-cell vectors and takes their moments
	ReductionPooled Reduction = "pooled"
	// ReductionWeightedMoments averages per-field moments weighted by reference
	// count. This approximates, and does not equal, the moments of the pool.
	ReductionWeightedMoments Reduction = "weighted_moments"
)

// ParseReduction validates a reduction name
func ParseReduction(s string) (Reduction, error) {
	switch r := Reduction(strings.ToLower(strings.TrimSpace(s))); r {
	case ReductionPooled, ReductionWeightedMoments:
		return r, nil
	case "":
		return ReductionPooled, nil
	default:
		return "", fmt.Errorf("unknown reduction %q", s)
	}
}

// FieldContext is the resolved metadata of one field
type FieldContext struct {
	Field     core.FieldID  `json:"field"`
	Sample    core.SampleID `json:"sample"`
	Patient   string        `json:"patient"`
	Region    string        `json:"region"`
	TumorType string        `json:"tumor_type,omitempty"`
	FOV       string        `json:"fov,omitempty"`
	// Included is false when the field or its sample failed quality control
	Included bool   `json:"included"`
	Reason   string `json:"reason,omitempty"`
}

// GroupID derives the aggregation key for the chosen grouping
func (fc FieldContext) GroupID(by GroupBy) core.GroupID {
	switch by {
	case GroupByPatient:
		return core.GroupID(fc.Patient)
	case GroupBySample:
		return core.GroupID(fc.Sample)
	default:
		return core.GroupID(fc.Patient + "/" + fc.Region)
	}
}

// Params identifies a computation independent of radius
type Params struct {
	Phenotype1 spatial.PhenotypePredicate `json:"phenotype1"`
	Phenotype2 spatial.PhenotypePredicate `json:"phenotype2"`
	Intensity  string                     `json:"intensity"`
}

// Label renders the phenotype pair the way flat column names start
func (p Params) Label() string {
	return p.Phenotype1.Label() + "_" + p.Phenotype2.Label()
}

func (p Params) String() string {
	return fmt.Sprintf("p1=%s,p2=%s,I=%s", p.Phenotype1, p.Phenotype2, p.Intensity)
}

// Key is the full identity of one persisted summary
type Key struct {
	Params
	Radius float64               `json:"radius"`
	Kind   spatial.StatisticKind `json:"kind"`
	Group  core.GroupID          `json:"group"`
}

// ColumnName returns the flat name of one moment:
// {p1col}{p1val}_{p2col}{p2val}_{R}_{kind}_{intensity}_{moment}
func (k Key) ColumnName(moment string) string {
	return strings.Join([]string{
		k.Phenotype1.Label(),
		k.Phenotype2.Label(),
		spatial.FormatRadius(k.Radius),
		string(k.Kind),
		k.Intensity,
		moment,
	}, "_")
}

// Record is one persisted summary row
type Record struct {
	Key        Key            `json:"key"`
	Moments    Summary        `json:"moments"`
	RunID      core.RunID     `json:"run_id"`
	Reduction  Reduction      `json:"reduction"`
	ComputedAt core.Timestamp `json:"computed_at"`
}

// Flat returns the record's moments under their flat column names
func (r Record) Flat() map[string]float64 {
	out := make(map[string]float64, 4)
	for _, name := range MomentNames() {
		v, _ := r.Moments.Value(name)
		out[r.Key.ColumnName(name)] = v
	}
	return out
}

// Filter narrows result queries; zero values match everything
type Filter struct {
	Phenotype1 *spatial.PhenotypePredicate
	Phenotype2 *spatial.PhenotypePredicate
	Intensity  *string
	Radius     *float64
	Kind       *spatial.StatisticKind
	Group      *core.GroupID
	RunID      *core.RunID
	Limit      int
}

// ForParams returns a filter matching one parameter set
func ForParams(p Params) Filter {
	p1, p2, in := p.Phenotype1, p.Phenotype2, p.Intensity
	return Filter{Phenotype1: &p1, Phenotype2: &p2, Intensity: &in}
}

// RunSummary records the provenance of one sweep
type RunSummary struct {
	RunID          core.RunID              `json:"run_id"`
	Params         Params                  `json:"params"`
	Radii          spatial.RadiusSet       `json:"radii"`
	Kinds          []spatial.StatisticKind `json:"kinds"`
	GroupBy        GroupBy                 `json:"group_by"`
	Reduction      Reduction               `json:"reduction"`
	Fingerprint    core.Hash               `json:"fingerprint"`
	FieldsTotal    int                     `json:"fields_total"`
	FieldsComputed int                     `json:"fields_computed"`
	FieldsExcluded int                     `json:"fields_excluded"`
	FieldsFailed   int                     `json:"fields_failed"`
	RecordsWritten int                     `json:"records_written"`
	StartedAt      core.Timestamp          `json:"started_at"`
	FinishedAt     core.Timestamp          `json:"finished_at"`
}

// Matches reports whether a record satisfies every set field of the filter
func (f Filter) Matches(r Record) bool {
	k := r.Key
	switch {
	case f.Phenotype1 != nil && *f.Phenotype1 != k.Phenotype1:
		return false
	case f.Phenotype2 != nil && *f.Phenotype2 != k.Phenotype2:
		return false
	case f.Intensity != nil && *f.Intensity != k.Intensity:
		return false
	case f.Radius != nil && *f.Radius != k.Radius:
		return false
	case f.Kind != nil && *f.Kind != k.Kind:
		return false
	case f.Group != nil && *f.Group != k.Group:
		return false
	case f.RunID != nil && *f.RunID != r.RunID:
		return false
	}
	return true
}
