package moments

import (
	"sort"
	"strings"

	"gospatial/domain/core"
	"gospatial/domain/spatial"
)

// Snapshot is the complete output of one parameter sweep
type Snapshot struct {
	RunID     core.RunID              `json:"run_id"`
	Params    Params                  `json:"params"`
	Radii     spatial.RadiusSet       `json:"radii"`
	Kinds     []spatial.StatisticKind `json:"kinds"`
	GroupBy   GroupBy                 `json:"group_by"`
	Reduction Reduction               `json:"reduction"`
	CreatedAt core.Timestamp          `json:"created_at"`
	Records   []Record                `json:"-"`
}

// Nested arranges the records as kind -> radius -> group -> summary
func (s *Snapshot) Nested() map[spatial.StatisticKind]map[string]map[core.GroupID]Summary {
	out := make(map[spatial.StatisticKind]map[string]map[core.GroupID]Summary)
	for _, rec := range s.Records {
		byRadius, ok := out[rec.Key.Kind]
		if !ok {
			byRadius = make(map[string]map[core.GroupID]Summary)
			out[rec.Key.Kind] = byRadius
		}
		r := spatial.FormatRadius(rec.Key.Radius)
		byGroup, ok := byRadius[r]
		if !ok {
			byGroup = make(map[core.GroupID]Summary)
			byRadius[r] = byGroup
		}
		byGroup[rec.Key.Group] = rec.Moments
	}
	return out
}

// Groups returns the distinct group IDs in sorted order
func (s *Snapshot) Groups() []core.GroupID {
	seen := make(map[core.GroupID]bool)
	var groups []core.GroupID
	for _, rec := range s.Records {
		if !seen[rec.Key.Group] {
			seen[rec.Key.Group] = true
			groups = append(groups, rec.Key.Group)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
	return groups
}

// FileName returns the default snapshot name for an extension such as ".json"
func (s *Snapshot) FileName(ext string) string {
	name := "p1=" + s.Params.Phenotype1.Value +
		",p2=" + s.Params.Phenotype2.Value +
		",I=" + s.Params.Intensity +
		",R=" + s.Radii.String()
	return strings.NewReplacer("/", "-", string('\\'), "-").Replace(name) + ext
}

// SortRecords orders records by kind, radius, then group
func SortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i].Key, recs[j].Key
		if a.Kind != b.Kind {
			return a.Kind.Order() < b.Kind.Order()
		}
		if a.Radius != b.Radius {
			return a.Radius < b.Radius
		}
		return a.Group < b.Group
	})
}
