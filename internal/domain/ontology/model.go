package ontology

import (
	"errors"
	"strings"
)

// Well-known HPO identifiers.
const (
	RootID                  = "HP:0000001"
	PhenotypicAbnormalityID = "HP:0000118"
	Prefix                  = "HP:"
)

// DefaultMinSynonymLength is the shortest synonym registered in the label index.
const DefaultMinSynonymLength = 5

var (
	ErrMalformedExport = errors.New("malformed ontology export")
	ErrInvalidIndex    = errors.New("invalid ontology index")
)

const oboPrefix = "http://purl.obolibrary.org/obo/"

// Export is the top level of an obographs JSON document.
type Export struct {
	Graphs []Graph `json:"graphs"`
}

// Graph is a single ontology graph in an obographs export.
type Graph struct {
	ID    string `json:"id"`
	Meta  *Meta  `json:"meta,omitempty"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node is one ontology class, property or individual.
type Node struct {
	ID    string `json:"id"`
	Label string `json:"lbl,omitempty"`
	Type  string `json:"type,omitempty"`
	Meta  *Meta  `json:"meta,omitempty"`
}

// Edge is a subject/predicate/object triple between two nodes.
type Edge struct {
	Subject   string `json:"sub"`
	Predicate string `json:"pred"`
	Object    string `json:"obj"`
}

// Meta carries version info on graphs and synonyms on nodes.
type Meta struct {
	Version             string          `json:"version,omitempty"`
	Deprecated          bool            `json:"deprecated,omitempty"`
	Synonyms            []Synonym       `json:"synonyms,omitempty"`
	BasicPropertyValues []PropertyValue `json:"basicPropertyValues,omitempty"`
}

// Synonym is a node synonym with its scope predicate (hasExactSynonym, ...).
type Synonym struct {
	Pred string `json:"pred"`
	Val  string `json:"val"`
}

// PropertyValue is an annotation on a graph or node.
type PropertyValue struct {
	Pred string `json:"pred"`
	Val  string `json:"val"`
}

// ToCURIE converts an OBO PURL or CURIE into HP CURIE form.
// The second return value is false for identifiers outside the HP namespace.
func ToCURIE(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, oboPrefix) {
		id = strings.Replace(strings.TrimPrefix(id, oboPrefix), "_", ":", 1)
	}
	if !strings.HasPrefix(id, Prefix) {
		return "", false
	}
	digits := id[len(Prefix):]
	if digits == "" {
		return "", false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", false
		}
	}
	return id, true
}

func isSubClassPredicate(pred string) bool {
	switch pred {
	case "is_a", "rdfs:subClassOf", "http://www.w3.org/2000/01/rdf-schema#subClassOf":
		return true
	}
	return false
}
