package ontology

import "context"

// Repository persists a built index so that servers can start without
// re-parsing the full ontology export.
type Repository interface {
	SaveIndex(ctx context.Context, idx *Index) error
	LoadIndex(ctx context.Context) (*Index, error)
	Version(ctx context.Context) (string, error)
}
