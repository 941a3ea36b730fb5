// Package recognition maps free clinical text onto HPO terms using an
// ontology index and an optional curator overlay.
package recognition

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pheno/pheno/internal/domain/ontology"
	"github.com/pheno/pheno/internal/domain/phenotype"
)

var (
	ErrNotHPO       = errors.New("identifier is not an HPO term")
	ErrUnknownID    = errors.New("unknown HPO identifier")
	ErrUnknownLabel = errors.New("unknown HPO label")
)

// Recorder receives recognition counters. Implementations must be safe for
// concurrent use.
type Recorder interface {
	CellRecognized(terms int)
	OverlayUnresolved()
	CellCoerced()
}

type nopRecorder struct{}

func (nopRecorder) CellRecognized(int) {}
func (nopRecorder) OverlayUnresolved() {}
func (nopRecorder) CellCoerced()       {}

// Engine recognizes HPO terms in text. It holds no per-call state, so a single
// Engine may serve any number of goroutines.
type Engine struct {
	idx      *ontology.Index
	logger   zerolog.Logger
	recorder Recorder
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// NewEngine creates an engine over idx.
func NewEngine(idx *ontology.Index, logger zerolog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		idx:      idx,
		logger:   logger.With().Str("component", "recognition").Logger(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Index returns the ontology index the engine matches against.
func (e *Engine) Index() *ontology.Index { return e.idx }

// TermFromID returns an observed term for an HPO identifier.
func (e *Engine) TermFromID(id string) (*phenotype.HpTerm, error) {
	id = strings.TrimSpace(id)
	if !strings.HasPrefix(id, ontology.Prefix) {
		return nil, fmt.Errorf("%w: %q", ErrNotHPO, id)
	}
	label, ok := e.idx.LabelFor(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownID, id)
	}
	return phenotype.NewHpTerm(id, label)
}

// TermFromLabel returns an observed term for a label or synonym.
func (e *Engine) TermFromLabel(label string) (*phenotype.HpTerm, error) {
	id, ok := e.idx.IDFor(label)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	return e.TermFromID(id)
}

// ResolveTerm returns an observed term for a label, synonym or identifier.
func (e *Engine) ResolveTerm(target string) (*phenotype.HpTerm, error) {
	id, ok := e.resolve(target)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLabel, target)
	}
	return e.TermFromID(id)
}

// resolve maps an overlay target, given as label, synonym or identifier, to an
// indexed identifier.
func (e *Engine) resolve(target string) (string, bool) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", false
	}
	if id, ok := e.idx.IDFor(target); ok {
		return id, true
	}
	if id, ok := ontology.ToCURIE(target); ok && e.idx.Contains(id) {
		return id, true
	}
	return "", false
}

// Recognize returns the terms found in text, in discovery order. Each
// identifier appears at most once.
func (e *Engine) Recognize(text string, ov *Overlay) []*phenotype.HpTerm {
	return e.recognize(text, e.compile(ov))
}

// RecognizeCell accepts any spreadsheet cell value. Non-string values are
// converted with fmt.Sprint and a warning is logged.
func (e *Engine) RecognizeCell(cell any, ov *Overlay) []*phenotype.HpTerm {
	text, ok := e.coerce(cell)
	if !ok {
		return nil
	}
	return e.Recognize(text, ov)
}

func (e *Engine) coerce(cell any) (string, bool) {
	switch v := cell.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	default:
		s := fmt.Sprint(v)
		e.recorder.CellCoerced()
		e.logger.Warn().Str("type", fmt.Sprintf("%T", cell)).Str("value", s).Msg("coerced non-string cell to text")
		return s, true
	}
}

func (e *Engine) recognize(text string, c *compiledOverlay) []*phenotype.HpTerm {
	var terms []*phenotype.HpTerm
	seen := make(map[string]bool)
	emit := func(id string) {
		if seen[id] {
			return
		}
		label, ok := e.idx.LabelFor(id)
		if !ok {
			return
		}
		t, err := phenotype.NewHpTerm(id, label)
		if err != nil {
			e.logger.Error().Err(err).Str("id", id).Msg("cannot build term")
			return
		}
		seen[id] = true
		terms = append(terms, t)
	}

	for _, line := range strings.Split(text, "\n") {
		e.recognizeLine(line, c, emit)
	}

	for _, t := range terms {
		if c.excluded[strings.ToLower(t.Label)] || c.excluded[strings.ToLower(t.ID)] {
			t.Exclude()
		}
	}
	e.recorder.CellRecognized(len(terms))
	return terms
}

func (e *Engine) recognizeLine(line string, c *compiledOverlay, emit func(string)) {
	s := normalize(line)
	for _, fp := range c.falsePositives {
		s = strings.ReplaceAll(s, fp, separator)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}

	if id, ok := e.exactMatch(s, c); ok {
		emit(id)
		return
	}

	if e.matchSubstrings(s, c, emit) > 0 {
		return
	}

	for _, chunk := range splitChunks(s) {
		e.matchSubstrings(chunk, c, emit)
	}
}

// exactMatch looks the whole string up in the overlay, then the dictionary.
func (e *Engine) exactMatch(s string, c *compiledOverlay) (string, bool) {
	if entry, ok := c.byPhrase[s]; ok {
		return entry.id, true
	}
	return e.idx.IDFor(s)
}

// unresolved reports an overlay entry dropped at compile time.
func (e *Engine) unresolved(phrase, target string) {
	e.recorder.OverlayUnresolved()
	e.logger.Warn().
		Str("phrase", phrase).
		Str("target", target).
		Msg("custom synonym target is not an HPO term, skipping")
}
