package mapper

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/pheno/pheno/internal/domain/recognition"
)

// Column kinds accepted in a Schema.
const (
	KindConstant = "constant"
	KindSimple   = "simple"
	KindOption   = "option"
	KindCustom   = "custom"
)

// ColumnSpec declares how one spreadsheet column is mapped.
type ColumnSpec struct {
	Kind string `yaml:"kind" json:"kind"`
	// Target is the label, synonym or identifier for constant and simple
	// columns.
	Target string `yaml:"target,omitempty" json:"target,omitempty"`
	// Excluded marks a constant column's term as absent.
	Excluded bool `yaml:"excluded,omitempty" json:"excluded,omitempty"`
	// ObservedSymbols and ExcludedSymbols override the simple column defaults.
	ObservedSymbols []string `yaml:"observed_symbols,omitempty" json:"observed_symbols,omitempty"`
	ExcludedSymbols []string `yaml:"excluded_symbols,omitempty" json:"excluded_symbols,omitempty"`
	// Options maps cell values to targets for option columns.
	Options map[string][]string `yaml:"options,omitempty" json:"options,omitempty"`
	// Overlay customizes recognition for custom columns.
	Overlay *recognition.Overlay `yaml:"overlay,omitempty" json:"overlay,omitempty"`
}

// Schema binds column names to mapping strategies.
type Schema struct {
	Columns map[string]ColumnSpec `yaml:"columns" json:"columns"`
}

// LoadSchema reads a schema from a YAML (or JSON) file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", path, err)
	}
	return &s, nil
}

// Build resolves every column against engine. Custom columns layer their own
// overlay over base.
func (s *Schema) Build(engine *recognition.Engine, base *recognition.Overlay, logger zerolog.Logger) (map[string]ColumnMapper, error) {
	if s == nil || len(s.Columns) == 0 {
		return nil, fmt.Errorf("schema has no columns")
	}

	names := make([]string, 0, len(s.Columns))
	for name := range s.Columns {
		names = append(names, name)
	}
	sort.Strings(names)

	mappers := make(map[string]ColumnMapper, len(names))
	for _, name := range names {
		m, err := s.Columns[name].build(engine, base, logger)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", name, err)
		}
		mappers[name] = m
	}
	return mappers, nil
}

func (c ColumnSpec) build(engine *recognition.Engine, base *recognition.Overlay, logger zerolog.Logger) (ColumnMapper, error) {
	switch strings.ToLower(strings.TrimSpace(c.Kind)) {
	case KindConstant:
		return NewConstantMapper(engine, c.Target, c.Excluded)
	case KindSimple:
		return NewSimpleMapper(engine, c.Target, c.ObservedSymbols, c.ExcludedSymbols)
	case KindOption:
		if len(c.Options) == 0 {
			return nil, fmt.Errorf("option column needs options")
		}
		return NewOptionMapper(engine, c.Options, logger)
	case KindCustom, "":
		ov := c.Overlay
		if !base.IsEmpty() {
			ov = base.Merge(c.Overlay)
		}
		return NewCustomMapper(engine, ov), nil
	default:
		return nil, fmt.Errorf("unknown column kind %q", c.Kind)
	}
}
