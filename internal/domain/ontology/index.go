package ontology

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Index is the label and identifier lookup built from the phenotypic
// abnormality subtree. It is read-only after construction and safe to share
// between goroutines.
type Index struct {
	version   string
	labelToID map[string]string
	idToLabel map[string]string
	parents   map[string][]string
	keys      []string
	stats     BuildStats
}

// BuildStats summarizes an index build.
type BuildStats struct {
	NodesSeen         int `json:"nodes_seen"`
	EdgesKept         int `json:"edges_kept"`
	EdgesSkipped      int `json:"edges_skipped"`
	Terms             int `json:"terms"`
	Labels            int `json:"labels"`
	ShortSynonyms     int `json:"short_synonyms"`
	LabelCollisions   int `json:"label_collisions"`
	DeprecatedSkipped int `json:"deprecated_skipped"`
}

type buildOptions struct {
	logger           zerolog.Logger
	minSynonymLength int
}

// BuildOption configures Build.
type BuildOption func(*buildOptions)

// WithLogger sets the logger used for build diagnostics.
func WithLogger(l zerolog.Logger) BuildOption {
	return func(o *buildOptions) { o.logger = l }
}

// WithMinSynonymLength overrides the shortest synonym length kept in the index.
func WithMinSynonymLength(n int) BuildOption {
	return func(o *buildOptions) { o.minSynonymLength = n }
}

type hpNode struct {
	id       string
	label    string
	synonyms []string
}

// Build restricts the export to descendants of HP:0000118 and constructs the
// label and identifier lookups.
func Build(exp *Export, opts ...BuildOption) (*Index, error) {
	o := buildOptions{logger: zerolog.Nop(), minSynonymLength: DefaultMinSynonymLength}
	for _, opt := range opts {
		opt(&o)
	}
	if exp == nil {
		return nil, fmt.Errorf("%w: nil export", ErrMalformedExport)
	}
	if err := exp.validate(); err != nil {
		return nil, err
	}
	g := exp.Graph()

	version, err := g.Version()
	if err != nil {
		return nil, err
	}

	var stats BuildStats
	var nodes []hpNode
	known := make(map[string]bool)
	for _, n := range g.Nodes {
		stats.NodesSeen++
		id, ok := ToCURIE(n.ID)
		if !ok {
			continue
		}
		known[id] = true
		if n.Meta != nil && n.Meta.Deprecated {
			stats.DeprecatedSkipped++
			continue
		}
		hn := hpNode{id: id, label: strings.TrimSpace(n.Label)}
		if n.Meta != nil {
			for _, s := range n.Meta.Synonyms {
				hn.synonyms = append(hn.synonyms, s.Val)
			}
		}
		nodes = append(nodes, hn)
	}
	if !known[RootID] {
		return nil, fmt.Errorf("%w: ontology root %s not found in graph %s", ErrMalformedExport, RootID, g.ID)
	}
	if !known[PhenotypicAbnormalityID] {
		return nil, fmt.Errorf("%w: %s not found in graph %s", ErrMalformedExport, PhenotypicAbnormalityID, g.ID)
	}

	parents := make(map[string][]string)
	for _, e := range g.Edges {
		if !isSubClassPredicate(e.Predicate) {
			continue
		}
		sub, okSub := ToCURIE(e.Subject)
		obj, okObj := ToCURIE(e.Object)
		if !okSub || !okObj {
			stats.EdgesSkipped++
			continue
		}
		parents[sub] = append(parents[sub], obj)
		stats.EdgesKept++
	}

	m := &membership{parents: parents, memo: make(map[string]bool)}
	idx := &Index{
		version:   version,
		labelToID: make(map[string]string),
		idToLabel: make(map[string]string),
		parents:   make(map[string][]string),
	}

	var members []hpNode
	for _, n := range nodes {
		if !m.isMember(n.id) {
			continue
		}
		if n.label == "" {
			o.logger.Debug().Str("id", n.id).Msg("skipping term without label")
			continue
		}
		members = append(members, n)
		idx.idToLabel[n.id] = n.label
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: no terms below %s", ErrMalformedExport, PhenotypicAbnormalityID)
	}

	register := func(key, id string) {
		if prev, ok := idx.labelToID[key]; ok {
			if prev != id {
				stats.LabelCollisions++
				o.logger.Debug().Str("label", key).Str("kept", prev).Str("dropped", id).Msg("label collision")
			}
			return
		}
		idx.labelToID[key] = id
	}

	// Primary labels take precedence over synonyms of other terms and are
	// registered regardless of length.
	for _, n := range members {
		if key := strings.ToLower(strings.TrimSpace(n.label)); key != "" {
			register(key, n.id)
		}
	}
	for _, n := range members {
		for _, syn := range n.synonyms {
			key := strings.ToLower(strings.TrimSpace(syn))
			if key == "" {
				continue
			}
			if utf8.RuneCountInString(key) < o.minSynonymLength {
				stats.ShortSynonyms++
				continue
			}
			register(key, n.id)
		}
	}

	for _, n := range members {
		for _, p := range parents[n.id] {
			if _, ok := idx.idToLabel[p]; ok || p == PhenotypicAbnormalityID {
				idx.parents[n.id] = append(idx.parents[n.id], p)
			}
		}
	}

	stats.Terms = len(idx.idToLabel)
	stats.Labels = len(idx.labelToID)
	idx.stats = stats
	idx.keys = sortedKeys(idx.labelToID)

	o.logger.Info().
		Str("version", version).
		Int("terms", stats.Terms).
		Int("labels", stats.Labels).
		Int("short_synonyms", stats.ShortSynonyms).
		Int("label_collisions", stats.LabelCollisions).
		Msg("ontology index built")

	return idx, nil
}

// NewIndex reassembles an index from persisted parts. Every label must point at
// a known identifier.
func NewIndex(version string, idToLabel, labelToID map[string]string, parents map[string][]string) (*Index, error) {
	if version == "" {
		return nil, fmt.Errorf("%w: version is required", ErrInvalidIndex)
	}
	idx := &Index{
		version:   version,
		labelToID: make(map[string]string, len(labelToID)),
		idToLabel: make(map[string]string, len(idToLabel)),
		parents:   make(map[string][]string, len(parents)),
	}
	for id, label := range idToLabel {
		if id == RootID || id == PhenotypicAbnormalityID {
			return nil, fmt.Errorf("%w: root term %s must not be indexed", ErrInvalidIndex, id)
		}
		idx.idToLabel[id] = label
	}
	labels := make([]string, 0, len(labelToID))
	for label := range labelToID {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		id := labelToID[label]
		if _, ok := idx.idToLabel[id]; !ok {
			return nil, fmt.Errorf("%w: label %q points at unknown id %s", ErrInvalidIndex, label, id)
		}
		key := strings.ToLower(label)
		if prev, ok := idx.labelToID[key]; ok && prev != id {
			return nil, fmt.Errorf("%w: label %q maps to both %s and %s", ErrInvalidIndex, key, prev, id)
		}
		idx.labelToID[key] = id
	}
	for id, ps := range parents {
		idx.parents[id] = append([]string(nil), ps...)
	}
	idx.keys = sortedKeys(idx.labelToID)
	idx.stats = BuildStats{Terms: len(idx.idToLabel), Labels: len(idx.labelToID)}
	return idx, nil
}

// sortedKeys orders labels longest first, then lexically, so that longer
// matches consume text before their own substrings can.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(keys[i]), utf8.RuneCountInString(keys[j])
		if li != lj {
			return li > lj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Version returns the normalized ontology release.
func (idx *Index) Version() string { return idx.version }

// Len returns the number of indexed terms.
func (idx *Index) Len() int { return len(idx.idToLabel) }

// Stats returns the build summary.
func (idx *Index) Stats() BuildStats { return idx.stats }

// LabelFor returns the primary label of id.
func (idx *Index) LabelFor(id string) (string, bool) {
	l, ok := idx.idToLabel[id]
	return l, ok
}

// IDFor returns the identifier registered for a label or synonym, case-insensitively.
func (idx *Index) IDFor(label string) (string, bool) {
	id, ok := idx.labelToID[strings.ToLower(strings.TrimSpace(label))]
	return id, ok
}

// Contains reports whether id is an indexed term.
func (idx *Index) Contains(id string) bool {
	_, ok := idx.idToLabel[id]
	return ok
}

// Labels returns every lower-cased label and synonym, longest first.
// The returned slice must not be modified.
func (idx *Index) Labels() []string { return idx.keys }

// IDs returns all indexed identifiers in sorted order.
func (idx *Index) IDs() []string {
	ids := make([]string, 0, len(idx.idToLabel))
	for id := range idx.idToLabel {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// LabelMap returns a copy of the label to identifier mapping.
func (idx *Index) LabelMap() map[string]string {
	out := make(map[string]string, len(idx.labelToID))
	for k, v := range idx.labelToID {
		out[k] = v
	}
	return out
}

// Parents returns the direct is-a parents of id that lie inside the index.
func (idx *Index) Parents(id string) []string {
	return append([]string(nil), idx.parents[id]...)
}

// Ancestors returns every ancestor of id inside the phenotypic abnormality
// subtree, excluding HP:0000001 and HP:0000118, sorted by identifier.
func (idx *Index) Ancestors(id string) []string {
	visited := map[string]bool{id: true}
	stack := append([]string(nil), idx.parents[id]...)
	var out []string
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		if n == RootID || n == PhenotypicAbnormalityID {
			continue
		}
		out = append(out, n)
		stack = append(stack, idx.parents[n]...)
	}
	sort.Strings(out)
	return out
}

// IsDescendantOf reports whether ancestor is reachable from id over is-a edges.
func (idx *Index) IsDescendantOf(id, ancestor string) bool {
	visited := map[string]bool{id: true}
	stack := append([]string(nil), idx.parents[id]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == ancestor {
			return true
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		stack = append(stack, idx.parents[n]...)
	}
	return false
}

// membership answers "is this node below HP:0000118" with a memoized,
// visited-set guarded depth-first walk over is-a parents.
type membership struct {
	parents map[string][]string
	memo    map[string]bool
}

func (m *membership) isMember(id string) bool {
	if id == RootID || id == PhenotypicAbnormalityID {
		return false
	}
	if v, ok := m.memo[id]; ok {
		return v
	}
	visited := map[string]bool{id: true}
	stack := append([]string(nil), m.parents[id]...)
	found := false
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == PhenotypicAbnormalityID {
			found = true
			break
		}
		if visited[n] {
			continue
		}
		visited[n] = true
		if v, ok := m.memo[n]; ok {
			if v {
				found = true
				break
			}
			// A node already known to be outside the subtree has no
			// ancestors inside it either.
			continue
		}
		stack = append(stack, m.parents[n]...)
	}
	m.memo[id] = found
	return found
}
