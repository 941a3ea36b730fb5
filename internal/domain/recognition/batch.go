package recognition

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/pheno/pheno/internal/domain/phenotype"
)

// RecognizeBatch recognizes every cell concurrently with at most workers
// goroutines. results[i] always belongs to cells[i].
func (e *Engine) RecognizeBatch(ctx context.Context, cells []string, ov *Overlay, workers int) ([][]*phenotype.HpTerm, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	compiled := e.compile(ov)
	results := make([][]*phenotype.HpTerm, len(cells))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, cell := range cells {
		i, cell := i, cell
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.recognize(cell, compiled)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
