package ontology

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

var releasePattern = regexp.MustCompile(`releases/([^/]+)/`)

// Parse decodes an obographs JSON export. It fails unless the document holds
// exactly one graph with an id and a node list.
func Parse(r io.Reader) (*Export, error) {
	var exp Export
	if err := json.NewDecoder(r).Decode(&exp); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrMalformedExport, err)
	}
	if err := exp.validate(); err != nil {
		return nil, err
	}
	return &exp, nil
}

// ParseFile opens and parses the export at path.
func ParseFile(path string) (*Export, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ontology export: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func (e *Export) validate() error {
	if len(e.Graphs) != 1 {
		return fmt.Errorf("%w: expected exactly one graph, found %d", ErrMalformedExport, len(e.Graphs))
	}
	g := e.Graphs[0]
	if g.ID == "" {
		return fmt.Errorf("%w: graph has no id", ErrMalformedExport)
	}
	if len(g.Nodes) == 0 {
		return fmt.Errorf("%w: graph %s has no nodes", ErrMalformedExport, g.ID)
	}
	for i, n := range g.Nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: node %d has no id", ErrMalformedExport, i)
		}
	}
	return nil
}

// Graph returns the single graph of a validated export.
func (e *Export) Graph() *Graph {
	return &e.Graphs[0]
}

// Version extracts the release version from the graph metadata, for example
// "2024-04-26" from ".../hp/releases/2024-04-26/hp.json".
func (g *Graph) Version() (string, error) {
	if g.Meta == nil {
		return "", fmt.Errorf("%w: graph %s has no meta block", ErrMalformedExport, g.ID)
	}
	if v := normalizeVersion(g.Meta.Version); v != "" {
		return v, nil
	}
	for _, pv := range g.Meta.BasicPropertyValues {
		if strings.HasSuffix(pv.Pred, "versionInfo") && strings.TrimSpace(pv.Val) != "" {
			return strings.TrimSpace(pv.Val), nil
		}
	}
	return "", fmt.Errorf("%w: graph %s has no version", ErrMalformedExport, g.ID)
}

func normalizeVersion(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if m := releasePattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return raw
}
