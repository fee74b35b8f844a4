package config

import (
	"bytes"
	"fmt"
	"os"

	"gospatial/domain/celltable"
	"gospatial/domain/moments"
	"gospatial/domain/spatial"
	"gospatial/internal/errors"
	"gospatial/internal/field"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// RadiusList accepts a scalar, a sequence, or a {start, stop, num} mapping
type RadiusList spatial.RadiusSet

// UnmarshalYAML implements yaml.Unmarshaler
func (r *RadiusList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v float64
		if err := node.Decode(&v); err != nil {
			return err
		}
		*r = RadiusList{v}
	case yaml.SequenceNode:
		var vs []float64
		if err := node.Decode(&vs); err != nil {
			return err
		}
		*r = vs
	case yaml.MappingNode:
		var ls struct {
			Start float64 `yaml:"start"`
			Stop  float64 `yaml:"stop"`
			Num   int     `yaml:"num"`
		}
		if err := node.Decode(&ls); err != nil {
			return err
		}
		if ls.Num < 1 {
			return fmt.Errorf("line %d: radii num must be at least 1", node.Line)
		}
		*r = RadiusList(spatial.LinSpace(ls.Start, ls.Stop, ls.Num))
	default:
		return fmt.Errorf("line %d: radii must be a number, a list or {start, stop, num}", node.Line)
	}
	return nil
}

// InputConfig locates the cell tables: either a detection/phenotype
// directory pair or a glob of merged tables
type InputConfig struct {
	DetectionDir string `yaml:"detection_dir" validate:"required_without=MergedGlob,excluded_with=MergedGlob"`
	PhenotypeDir string `yaml:"phenotype_dir" validate:"required_with=DetectionDir"`
	MergedGlob   string `yaml:"merged_glob" validate:"required_without=DetectionDir"`
	IndexColumn  string `yaml:"index_column"`
}

// MetadataConfig names the field and sample lookup tables. Without them the
// metadata is derived from field names.
type MetadataConfig struct {
	FieldTable  string `yaml:"field_table" validate:"required_with=SampleTable"`
	SampleTable string `yaml:"sample_table" validate:"required_with=FieldTable"`
}

// RunConfig is one sweep described in YAML
type RunConfig struct {
	Phenotype1     spatial.PhenotypePredicate `yaml:"phenotype1"`
	Phenotype2     spatial.PhenotypePredicate `yaml:"phenotype2"`
	Radii          RadiusList                 `yaml:"radii" validate:"required,min=1,dive,gt=0"`
	Kinds          []string                   `yaml:"kinds" validate:"dive,oneof=count intensity intensity_distance ck ik idk distance"`
	Intensity      string                     `yaml:"intensity"`
	GroupBy        string                     `yaml:"group_by" validate:"omitempty,oneof=patient patient_region sample"`
	Reduction      string                     `yaml:"reduction" validate:"omitempty,oneof=pooled weighted_moments"`
	EmptyPolicy    string                     `yaml:"empty_policy" validate:"omitempty,oneof=warn strict"`
	DistanceFloor  float64                    `yaml:"distance_floor" validate:"gte=0"`
	EdgeCorrection bool                       `yaml:"edge_correction"`
	NeighborIndex  string                     `yaml:"neighbor_index" validate:"omitempty,oneof=dense kdtree"`
	Columns        celltable.Columns          `yaml:"columns"`
	Input          InputConfig                `yaml:"input"`
	Metadata       MetadataConfig             `yaml:"metadata"`
	Snapshot       string                     `yaml:"snapshot"`
	Workers        int                        `yaml:"workers" validate:"gte=0"`
}

// LoadRunConfig reads and validates a run file. Unknown keys are rejected.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read run config %s", path)
	}
	return ParseRunConfig(data)
}

// ParseRunConfig decodes and validates YAML
func ParseRunConfig(data []byte) (*RunConfig, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	rc := &RunConfig{}
	if err := dec.Decode(rc); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("invalid run config: %w", err))
	}
	rc.applyDefaults()
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	return rc, nil
}

func (c *RunConfig) applyDefaults() {
	if len(c.Kinds) == 0 {
		for _, k := range spatial.AllKinds() {
			c.Kinds = append(c.Kinds, string(k))
		}
	}
	c.Columns = c.Columns.WithDefaults()
}

// Validate checks struct tags and the cross-field rules tags cannot express
func (c *RunConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	kinds, err := c.StatisticKinds()
	if err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	if err := spatial.RadiusSet(c.Radii).Validate(); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	seen := make(map[float64]bool, len(c.Radii))
	for _, r := range c.Radii {
		if seen[r] {
			return errors.ConfigInvalid(fmt.Sprintf("radius %s listed twice", spatial.FormatRadius(r)))
		}
		seen[r] = true
	}
	for _, k := range kinds {
		if k.RequiresIntensity() && c.Intensity == "" {
			return errors.ConfigInvalid(fmt.Sprintf("kind %s needs an intensity column", k))
		}
	}
	return nil
}

// StatisticKinds parses the kind names, dropping repeats
func (c *RunConfig) StatisticKinds() ([]spatial.StatisticKind, error) {
	seen := make(map[spatial.StatisticKind]bool)
	var out []spatial.StatisticKind
	for _, name := range c.Kinds {
		k, err := spatial.ParseStatisticKind(name)
		if err != nil {
			return nil, err
		}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out, nil
}

// Params returns the radius-independent computation identity. Count-only
// runs are stored under an empty intensity.
func (c *RunConfig) Params() moments.Params {
	p := moments.Params{Phenotype1: c.Phenotype1, Phenotype2: c.Phenotype2}
	kinds, _ := c.StatisticKinds()
	for _, k := range kinds {
		if k.RequiresIntensity() {
			p.Intensity = c.Intensity
		}
	}
	return p
}

// FieldParams returns the per-field parameter set
func (c *RunConfig) FieldParams() (field.Params, error) {
	kinds, err := c.StatisticKinds()
	if err != nil {
		return field.Params{}, err
	}
	return field.Params{
		Phenotype1: c.Phenotype1,
		Phenotype2: c.Phenotype2,
		Radii:      append(spatial.RadiusSet(nil), c.Radii...),
		Kinds:      kinds,
		Intensity:  c.Params().Intensity,
		Columns:    c.Columns.WithDefaults(),
	}, nil
}

// EngineOptions returns the statistic engine configuration
func (c *RunConfig) EngineOptions() spatial.EngineOptions {
	opts := spatial.DefaultEngineOptions()
	opts.EdgeCorrection = c.EdgeCorrection
	opts.DistanceFloor = c.DistanceFloor
	if c.NeighborIndex != "" {
		opts.Index = spatial.NeighborIndex(c.NeighborIndex)
	}
	return opts
}

// Grouping returns the parsed group_by
func (c *RunConfig) Grouping() (moments.GroupBy, error) { return moments.ParseGroupBy(c.GroupBy) }

// ReductionMode returns the parsed reduction
func (c *RunConfig) ReductionMode() (moments.Reduction, error) {
	return moments.ParseReduction(c.Reduction)
}

// Policy returns the parsed empty_policy
func (c *RunConfig) Policy() (field.EmptyPolicy, error) { return field.ParseEmptyPolicy(c.EmptyPolicy) }
