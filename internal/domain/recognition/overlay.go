package recognition

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Overlay is the curator-supplied, call-scoped customization of recognition.
type Overlay struct {
	// Synonyms maps a phrase as it appears in source text to a target HPO
	// label or identifier.
	Synonyms map[string]string `yaml:"synonyms" json:"synonyms,omitempty"`
	// FalsePositives are phrases removed from the text before matching.
	FalsePositives []string `yaml:"false_positives" json:"false_positives,omitempty"`
	// Excluded lists labels or identifiers that are reported as excluded
	// (observed=false) whenever they are recognized.
	Excluded []string `yaml:"excluded" json:"excluded,omitempty"`
}

// LoadOverlay reads an overlay from a YAML file.
func LoadOverlay(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read overlay: %w", err)
	}
	var ov Overlay
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return nil, fmt.Errorf("parse overlay %s: %w", path, err)
	}
	return &ov, nil
}

// Merge returns a new overlay with entries from other layered over o.
func (o *Overlay) Merge(other *Overlay) *Overlay {
	out := &Overlay{Synonyms: make(map[string]string)}
	for _, src := range []*Overlay{o, other} {
		if src == nil {
			continue
		}
		for k, v := range src.Synonyms {
			out.Synonyms[k] = v
		}
		out.FalsePositives = append(out.FalsePositives, src.FalsePositives...)
		out.Excluded = append(out.Excluded, src.Excluded...)
	}
	return out
}

// IsEmpty reports whether the overlay changes nothing.
func (o *Overlay) IsEmpty() bool {
	return o == nil || (len(o.Synonyms) == 0 && len(o.FalsePositives) == 0 && len(o.Excluded) == 0)
}

type overlayEntry struct {
	phrase string
	id     string
}

// compiledOverlay is an overlay normalized and resolved against the index
// once per call, with entries in a deterministic order.
type compiledOverlay struct {
	entries        []overlayEntry
	byPhrase       map[string]*overlayEntry
	falsePositives []string
	excluded       map[string]bool
}

func (e *Engine) compile(ov *Overlay) *compiledOverlay {
	c := &compiledOverlay{
		byPhrase: make(map[string]*overlayEntry),
		excluded: make(map[string]bool),
	}
	if ov == nil {
		return c
	}

	for phrase, target := range ov.Synonyms {
		p := strings.TrimSpace(normalize(phrase))
		if p == "" {
			continue
		}
		id, ok := e.resolve(target)
		if !ok {
			e.unresolved(p, target)
			continue
		}
		c.entries = append(c.entries, overlayEntry{phrase: p, id: id})
	}
	sort.Slice(c.entries, func(i, j int) bool {
		return longerFirst(c.entries[i].phrase, c.entries[j].phrase)
	})
	for i := range c.entries {
		c.byPhrase[c.entries[i].phrase] = &c.entries[i]
	}

	for _, fp := range ov.FalsePositives {
		if p := strings.TrimSpace(normalize(fp)); p != "" {
			c.falsePositives = append(c.falsePositives, p)
		}
	}
	sort.Slice(c.falsePositives, func(i, j int) bool {
		return longerFirst(c.falsePositives[i], c.falsePositives[j])
	})

	for _, ex := range ov.Excluded {
		ex = strings.TrimSpace(ex)
		if ex == "" {
			continue
		}
		c.excluded[strings.ToLower(ex)] = true
		if id, ok := e.resolve(ex); ok {
			c.excluded[strings.ToLower(id)] = true
		}
	}
	return c
}

func longerFirst(a, b string) bool {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la != lb {
		return la > lb
	}
	return a < b
}
