//go:build integration

package integration

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/pheno/pheno/internal/domain/ontology"
	"github.com/pheno/pheno/internal/domain/recognition"
	"github.com/pheno/pheno/internal/platform/db"
)

func buildFixtureIndex(t *testing.T) *ontology.Index {
	t.Helper()
	exp, err := ontology.ParseFile("../../internal/domain/ontology/testdata/hp_mini.json")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	idx, err := ontology.Build(exp)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return idx
}

func TestMigrator_Idempotent(t *testing.T) {
	ctx := context.Background()
	m := db.NewMigrator(globalPool, db.Migrations())

	n, err := m.Up(ctx)
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no pending migrations, applied %d", n)
	}

	statuses, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(statuses) == 0 {
		t.Fatal("expected at least one migration")
	}
	for _, s := range statuses {
		if !s.Applied || s.AppliedAt == nil {
			t.Errorf("migration %d (%s) not applied", s.Version, s.Name)
		}
	}
}

func TestIndexRepo_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := ontology.NewIndexRepoPG(globalPool)
	want := buildFixtureIndex(t)

	if err := repo.SaveIndex(ctx, want); err != nil {
		t.Fatalf("SaveIndex: %v", err)
	}
	// Saving twice replaces rather than duplicates.
	if err := repo.SaveIndex(ctx, want); err != nil {
		t.Fatalf("SaveIndex again: %v", err)
	}

	version, err := repo.Version(ctx)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if version != want.Version() {
		t.Errorf("expected version %s, got %s", want.Version(), version)
	}

	got, err := repo.LoadIndex(ctx)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if got.Len() != want.Len() {
		t.Errorf("expected %d terms, got %d", want.Len(), got.Len())
	}
	wantLabels, gotLabels := want.Labels(), got.Labels()
	if len(gotLabels) != len(wantLabels) {
		t.Fatalf("expected %d labels, got %d", len(wantLabels), len(gotLabels))
	}
	for i := range wantLabels {
		if gotLabels[i] != wantLabels[i] {
			t.Errorf("label %d: expected %q, got %q", i, wantLabels[i], gotLabels[i])
		}
	}

	anc := got.Ancestors("HP:0001263")
	if len(anc) != 2 || anc[0] != "HP:0000707" || anc[1] != "HP:0012758" {
		t.Errorf("unexpected ancestors: %v", anc)
	}

	engine := recognition.NewEngine(got, zerolog.Nop())
	terms := engine.Recognize("Hypotonia, seizures", nil)
	if len(terms) != 2 {
		t.Fatalf("expected 2 terms from loaded index, got %v", terms)
	}
}
