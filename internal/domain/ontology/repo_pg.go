package ontology

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type indexRepoPG struct{ pool *pgxpool.Pool }

// NewIndexRepoPG returns a Postgres-backed Repository. Tables are created by
// the hpo migrations.
func NewIndexRepoPG(pool *pgxpool.Pool) Repository { return &indexRepoPG{pool: pool} }

// SaveIndex replaces the stored index with idx in a single transaction.
func (r *indexRepoPG) SaveIndex(ctx context.Context, idx *Index) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"hpo_is_a", "hpo_label", "hpo_term", "hpo_release"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO hpo_release (version, terms, labels) VALUES ($1, $2, $3)`,
		idx.version, len(idx.idToLabel), len(idx.labelToID)); err != nil {
		return fmt.Errorf("insert release: %w", err)
	}

	ids := idx.IDs()
	termRows := make([][]interface{}, 0, len(ids))
	for _, id := range ids {
		termRows = append(termRows, []interface{}{id, idx.idToLabel[id]})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"hpo_term"}, []string{"id", "label"},
		pgx.CopyFromRows(termRows)); err != nil {
		return fmt.Errorf("copy hpo_term: %w", err)
	}

	labelRows := make([][]interface{}, 0, len(idx.keys))
	for _, label := range idx.keys {
		labelRows = append(labelRows, []interface{}{label, idx.labelToID[label]})
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"hpo_label"}, []string{"label", "term_id"},
		pgx.CopyFromRows(labelRows)); err != nil {
		return fmt.Errorf("copy hpo_label: %w", err)
	}

	var edgeRows [][]interface{}
	for _, id := range ids {
		for _, p := range idx.parents[id] {
			edgeRows = append(edgeRows, []interface{}{id, p})
		}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"hpo_is_a"}, []string{"subject", "object"},
		pgx.CopyFromRows(edgeRows)); err != nil {
		return fmt.Errorf("copy hpo_is_a: %w", err)
	}

	return tx.Commit(ctx)
}

// LoadIndex rebuilds an Index from the stored tables.
func (r *indexRepoPG) LoadIndex(ctx context.Context) (*Index, error) {
	version, err := r.Version(ctx)
	if err != nil {
		return nil, err
	}

	idToLabel := make(map[string]string)
	if err := r.scanPairs(ctx, `SELECT id, label FROM hpo_term`, func(a, b string) {
		idToLabel[a] = b
	}); err != nil {
		return nil, fmt.Errorf("load hpo_term: %w", err)
	}

	labelToID := make(map[string]string)
	if err := r.scanPairs(ctx, `SELECT label, term_id FROM hpo_label`, func(a, b string) {
		labelToID[a] = b
	}); err != nil {
		return nil, fmt.Errorf("load hpo_label: %w", err)
	}

	parents := make(map[string][]string)
	if err := r.scanPairs(ctx, `SELECT subject, object FROM hpo_is_a ORDER BY subject, object`, func(a, b string) {
		parents[a] = append(parents[a], b)
	}); err != nil {
		return nil, fmt.Errorf("load hpo_is_a: %w", err)
	}

	return NewIndex(version, idToLabel, labelToID, parents)
}

// Version returns the stored ontology release.
func (r *indexRepoPG) Version(ctx context.Context) (string, error) {
	var version string
	err := r.pool.QueryRow(ctx,
		`SELECT version FROM hpo_release ORDER BY loaded_at DESC LIMIT 1`).Scan(&version)
	if err != nil {
		return "", fmt.Errorf("hpo release: %w", err)
	}
	return version, nil
}

func (r *indexRepoPG) scanPairs(ctx context.Context, sql string, fn func(a, b string)) error {
	rows, err := r.pool.Query(ctx, sql)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var a, b string
		if err := rows.Scan(&a, &b); err != nil {
			return err
		}
		fn(a, b)
	}
	return rows.Err()
}
