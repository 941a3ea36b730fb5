package mapper

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/pheno/pheno/internal/domain/phenotype"
	"github.com/pheno/pheno/internal/domain/recognition"
)

func TestLoadSchema(t *testing.T) {
	s, err := LoadSchema("testdata/schema.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Columns) != 4 {
		t.Fatalf("expected 4 columns, got %d", len(s.Columns))
	}
	if s.Columns["tone"].ObservedSymbols[0] != "x" {
		t.Errorf("unexpected observed symbols: %v", s.Columns["tone"].ObservedSymbols)
	}
	if s.Columns["notes"].Overlay.Synonyms["wobbly"] != "Ataxia" {
		t.Errorf("expected notes overlay to be parsed")
	}

	mappers, err := s.Build(newTestEngine(t), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got := MapRow(mappers, map[string]any{
		"notes":    "wobbly",
		"seizures": "yes",
		"tone":     "o",
		"type":     "GTC",
	})
	want := map[string]string{
		"HP:0001251": phenotype.DisplayObserved,
		"HP:0001250": phenotype.DisplayObserved,
		"HP:0001252": phenotype.DisplayExcluded,
		"HP:0002069": phenotype.DisplayObserved,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d terms, got %v", len(want), got)
	}
	for _, term := range got {
		if want[term.ID] != term.DisplayValue() {
			t.Errorf("%s: expected %q, got %q", term.ID, want[term.ID], term.DisplayValue())
		}
	}
}

func TestLoadSchema_MissingFile(t *testing.T) {
	if _, err := LoadSchema("testdata/nope.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSchemaBuild_Errors(t *testing.T) {
	engine := newTestEngine(t)
	tests := []struct {
		name    string
		schema  *Schema
		wantErr string
	}{
		{"nil schema", nil, "no columns"},
		{"empty", &Schema{}, "no columns"},
		{"unknown kind", &Schema{Columns: map[string]ColumnSpec{"a": {Kind: "regex"}}}, "unknown column kind"},
		{"option without options", &Schema{Columns: map[string]ColumnSpec{"a": {Kind: KindOption}}}, "needs options"},
		{"unknown target", &Schema{Columns: map[string]ColumnSpec{"a": {Kind: KindSimple, Target: "Purple toes"}}}, `column "a"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.schema.Build(engine, nil, zerolog.Nop())
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSchemaBuild_CustomLayersBaseOverlay(t *testing.T) {
	s := &Schema{Columns: map[string]ColumnSpec{
		"notes": {Kind: KindCustom, Overlay: &recognition.Overlay{Excluded: []string{"Ataxia"}}},
	}}
	base := &recognition.Overlay{Synonyms: map[string]string{"wobbly": "Ataxia"}}
	mappers, err := s.Build(newTestEngine(t), base, zerolog.Nop())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got := mappers["notes"].MapCell("wobbly")
	if len(got) != 1 || got[0].ID != "HP:0001251" || !got[0].IsExcluded() {
		t.Errorf("expected excluded ataxia from base synonym, got %v", got)
	}
}
