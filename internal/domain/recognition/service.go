package recognition

import (
	"context"
	"fmt"

	"github.com/pheno/pheno/internal/domain/phenotype"
)

// MaxBatchCells bounds the number of cells accepted by one batch request.
const MaxBatchCells = 10000

// Service exposes recognition and term lookup to transports. A default overlay,
// when configured, is layered beneath every per-request overlay.
type Service struct {
	engine  *Engine
	overlay *Overlay
	workers int
}

// NewService creates a new recognition service.
func NewService(engine *Engine, defaultOverlay *Overlay, workers int) *Service {
	return &Service{engine: engine, overlay: defaultOverlay, workers: workers}
}

func (s *Service) effectiveOverlay(ov *Overlay) *Overlay {
	if s.overlay.IsEmpty() {
		return ov
	}
	return s.overlay.Merge(ov)
}

// Recognize recognizes terms in a single text.
func (s *Service) Recognize(_ context.Context, req *RecognizeRequest) (*RecognizeResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("request body is required")
	}
	terms := s.engine.Recognize(req.Text, s.effectiveOverlay(req.Overlay))
	if terms == nil {
		terms = []*phenotype.HpTerm{}
	}
	return &RecognizeResponse{Terms: terms}, nil
}

// RecognizeBatch recognizes terms in many cells concurrently.
func (s *Service) RecognizeBatch(ctx context.Context, req *BatchRequest) (*BatchResponse, error) {
	if req == nil || len(req.Cells) == 0 {
		return nil, fmt.Errorf("cells are required")
	}
	if len(req.Cells) > MaxBatchCells {
		return nil, fmt.Errorf("too many cells: %d (max %d)", len(req.Cells), MaxBatchCells)
	}
	results, err := s.engine.RecognizeBatch(ctx, req.Cells, s.effectiveOverlay(req.Overlay), s.workers)
	if err != nil {
		return nil, fmt.Errorf("batch recognition: %w", err)
	}
	for i := range results {
		if results[i] == nil {
			results[i] = []*phenotype.HpTerm{}
		}
	}
	return &BatchResponse{Results: results}, nil
}

// LookupID resolves an HPO identifier.
func (s *Service) LookupID(_ context.Context, id string) (*phenotype.HpTerm, error) {
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}
	return s.engine.TermFromID(id)
}

// LookupLabel resolves a label or synonym.
func (s *Service) LookupLabel(_ context.Context, label string) (*phenotype.HpTerm, error) {
	if label == "" {
		return nil, fmt.Errorf("label is required")
	}
	return s.engine.TermFromLabel(label)
}

// Ancestors returns the ancestors of id inside the phenotypic abnormality subtree.
func (s *Service) Ancestors(ctx context.Context, id string) ([]*phenotype.HpTerm, error) {
	if _, err := s.LookupID(ctx, id); err != nil {
		return nil, err
	}
	ids := s.engine.Index().Ancestors(id)
	terms := make([]*phenotype.HpTerm, 0, len(ids))
	for _, a := range ids {
		t, err := s.engine.TermFromID(a)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return terms, nil
}

// Info describes the loaded ontology.
func (s *Service) Info(_ context.Context) *OntologyInfo {
	idx := s.engine.Index()
	return &OntologyInfo{
		Version: idx.Version(),
		Terms:   idx.Len(),
		Labels:  len(idx.Labels()),
		Stats:   idx.Stats(),
	}
}
