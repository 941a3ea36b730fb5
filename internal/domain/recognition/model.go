package recognition

import (
	"github.com/pheno/pheno/internal/domain/ontology"
	"github.com/pheno/pheno/internal/domain/phenotype"
)

// RecognizeRequest is the body of POST /api/v1/recognize.
type RecognizeRequest struct {
	Text    string   `json:"text"`
	Overlay *Overlay `json:"overlay,omitempty"`
}

// RecognizeResponse lists the terms recognized in one text.
type RecognizeResponse struct {
	Terms []*phenotype.HpTerm `json:"terms"`
}

// BatchRequest is the body of POST /api/v1/recognize/batch.
type BatchRequest struct {
	Cells   []string `json:"cells"`
	Overlay *Overlay `json:"overlay,omitempty"`
}

// BatchResponse holds one term list per input cell, in input order.
type BatchResponse struct {
	Results [][]*phenotype.HpTerm `json:"results"`
}

// OntologyInfo describes the loaded index.
type OntologyInfo struct {
	Version string              `json:"version"`
	Terms   int                 `json:"terms"`
	Labels  int                 `json:"labels"`
	Stats   ontology.BuildStats `json:"stats"`
}
