// Package mapper turns spreadsheet columns into HPO terms. Each column is
// bound to one ColumnMapper strategy and a row is folded into a single term
// list with MapRow.
package mapper

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pheno/pheno/internal/domain/phenotype"
	"github.com/pheno/pheno/internal/domain/recognition"
)

// ColumnMapper maps one cell value to zero or more terms. Each call returns
// fresh term values that the caller may mutate.
type ColumnMapper interface {
	MapCell(raw any) []*phenotype.HpTerm
}

// Default symbols recognized by SimpleMapper, compared case-insensitively.
var (
	DefaultObservedSymbols = []string{"yes", "y", "true", "1", "+", "present"}
	DefaultExcludedSymbols = []string{"no", "n", "false", "0", "-", "absent"}
)

func cellText(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func symbolSet(symbols []string) map[string]bool {
	set := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		set[strings.ToLower(strings.TrimSpace(s))] = true
	}
	return set
}

// ConstantMapper emits the same term for every non-empty cell.
type ConstantMapper struct {
	id       string
	label    string
	excluded bool
}

// NewConstantMapper binds a column to target, given as label, synonym or
// identifier. When excluded is set the emitted term is marked absent.
func NewConstantMapper(engine *recognition.Engine, target string, excluded bool) (*ConstantMapper, error) {
	t, err := engine.ResolveTerm(target)
	if err != nil {
		return nil, fmt.Errorf("constant mapper: %w", err)
	}
	return &ConstantMapper{id: t.ID, label: t.Label, excluded: excluded}, nil
}

func (m *ConstantMapper) MapCell(raw any) []*phenotype.HpTerm {
	if cellText(raw) == "" {
		return nil
	}
	t, err := phenotype.NewHpTerm(m.id, m.label)
	if err != nil {
		return nil
	}
	if m.excluded {
		t.Exclude()
	}
	return []*phenotype.HpTerm{t}
}

// SimpleMapper handles a yes/no column for a single term. Observed symbols
// yield an observed term, excluded symbols an excluded one and anything else,
// empty cells included, a term that was not measured.
type SimpleMapper struct {
	id       string
	label    string
	observed map[string]bool
	excluded map[string]bool
}

// NewSimpleMapper binds a column to target. Nil symbol lists fall back to the
// defaults.
func NewSimpleMapper(engine *recognition.Engine, target string, observed, excluded []string) (*SimpleMapper, error) {
	t, err := engine.ResolveTerm(target)
	if err != nil {
		return nil, fmt.Errorf("simple mapper: %w", err)
	}
	if observed == nil {
		observed = DefaultObservedSymbols
	}
	if excluded == nil {
		excluded = DefaultExcludedSymbols
	}
	m := &SimpleMapper{
		id:       t.ID,
		label:    t.Label,
		observed: symbolSet(observed),
		excluded: symbolSet(excluded),
	}
	for s := range m.observed {
		if m.excluded[s] {
			return nil, fmt.Errorf("simple mapper: symbol %q is both observed and excluded", s)
		}
	}
	return m, nil
}

func (m *SimpleMapper) MapCell(raw any) []*phenotype.HpTerm {
	v := strings.ToLower(cellText(raw))
	var opts []phenotype.TermOption
	switch {
	case m.observed[v]:
	case m.excluded[v]:
		opts = append(opts, phenotype.WithObserved(false))
	default:
		opts = append(opts, phenotype.WithMeasured(false))
	}
	t, err := phenotype.NewHpTerm(m.id, m.label, opts...)
	if err != nil {
		return nil
	}
	return []*phenotype.HpTerm{t}
}

// OptionMapper maps enumerated cell values to one or more terms.
type OptionMapper struct {
	options map[string][]*phenotype.HpTerm
	logger  zerolog.Logger
}

// NewOptionMapper resolves every option target up front. Option keys are
// matched case-insensitively.
func NewOptionMapper(engine *recognition.Engine, options map[string][]string, logger zerolog.Logger) (*OptionMapper, error) {
	m := &OptionMapper{
		options: make(map[string][]*phenotype.HpTerm, len(options)),
		logger:  logger.With().Str("component", "option_mapper").Logger(),
	}
	for value, targets := range options {
		key := strings.ToLower(strings.TrimSpace(value))
		if key == "" {
			return nil, fmt.Errorf("option mapper: empty option value")
		}
		for _, target := range targets {
			t, err := engine.ResolveTerm(target)
			if err != nil {
				return nil, fmt.Errorf("option mapper: option %q: %w", value, err)
			}
			m.options[key] = append(m.options[key], t)
		}
	}
	return m, nil
}

func (m *OptionMapper) MapCell(raw any) []*phenotype.HpTerm {
	v := strings.ToLower(cellText(raw))
	if v == "" {
		return nil
	}
	templates, ok := m.options[v]
	if !ok {
		m.logger.Warn().Str("value", v).Msg("unknown option")
		return nil
	}
	out := make([]*phenotype.HpTerm, 0, len(templates))
	for _, t := range templates {
		c := *t
		out = append(out, &c)
	}
	return out
}

// CustomMapper runs free-text recognition with a fixed overlay.
type CustomMapper struct {
	engine  *recognition.Engine
	overlay *recognition.Overlay
}

// NewCustomMapper creates a mapper that delegates to engine.
func NewCustomMapper(engine *recognition.Engine, overlay *recognition.Overlay) *CustomMapper {
	return &CustomMapper{engine: engine, overlay: overlay}
}

func (m *CustomMapper) MapCell(raw any) []*phenotype.HpTerm {
	return m.engine.RecognizeCell(raw, m.overlay)
}

// MapRow folds one row into a deduplicated term list. Columns are visited in
// name order and the first term seen for an identifier wins. Columns without
// a mapper are ignored.
func MapRow(mappers map[string]ColumnMapper, row map[string]any) []*phenotype.HpTerm {
	cols := make([]string, 0, len(mappers))
	for col := range mappers {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	var terms []*phenotype.HpTerm
	for _, col := range cols {
		terms = append(terms, mappers[col].MapCell(row[col])...)
	}
	return phenotype.Dedupe(terms)
}
