package phenotype

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// NotProvided is the onset/resolution value used when none was recorded.
const NotProvided = "not provided"

// Display values derived from the measured/observed flags.
const (
	DisplayObserved    = "observed"
	DisplayExcluded    = "excluded"
	DisplayNotMeasured = "not measured"
)

var (
	ErrInvalidID       = errors.New("invalid HPO identifier")
	ErrEmptyLabel      = errors.New("label is required")
	ErrInvalidDuration = errors.New("invalid ISO-8601 duration")
)

var (
	idPattern       = regexp.MustCompile(`^HP:\d+$`)
	durationPattern = regexp.MustCompile(`^P(\d+Y)?(\d+M)?(\d+W)?(\d+D)?(T(\d+H)?(\d+M)?(\d+S)?)?$`)
)

// HpTerm is one recognized HPO concept together with its observation status.
// After construction only Exclude mutates it.
type HpTerm struct {
	ID         string `json:"id"`
	Label      string `json:"label"`
	Observed   bool   `json:"observed"`
	Measured   bool   `json:"measured"`
	Onset      string `json:"onset"`
	Resolution string `json:"resolution"`
}

// TermOption customizes a term at construction time.
type TermOption func(*HpTerm) error

// WithObserved sets whether the feature was present.
func WithObserved(observed bool) TermOption {
	return func(t *HpTerm) error {
		t.Observed = observed
		return nil
	}
}

// WithMeasured sets whether the feature was assessed at all.
func WithMeasured(measured bool) TermOption {
	return func(t *HpTerm) error {
		t.Measured = measured
		return nil
	}
}

// WithOnset records an ISO-8601 duration onset such as "P3Y2M".
func WithOnset(onset string) TermOption {
	return func(t *HpTerm) error {
		v, err := parseDuration(onset)
		if err != nil {
			return fmt.Errorf("onset: %w", err)
		}
		t.Onset = v
		return nil
	}
}

// WithResolution records an ISO-8601 duration resolution.
func WithResolution(resolution string) TermOption {
	return func(t *HpTerm) error {
		v, err := parseDuration(resolution)
		if err != nil {
			return fmt.Errorf("resolution: %w", err)
		}
		t.Resolution = v
		return nil
	}
}

func parseDuration(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == NotProvided {
		return NotProvided, nil
	}
	if s == "P" || s == "PT" || !durationPattern.MatchString(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	return s, nil
}

// NewHpTerm creates a term that is observed and measured unless options say otherwise.
func NewHpTerm(id, label string, opts ...TermOption) (*HpTerm, error) {
	id = strings.TrimSpace(id)
	if !idPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, fmt.Errorf("%w for %s", ErrEmptyLabel, id)
	}

	t := &HpTerm{
		ID:         id,
		Label:      label,
		Observed:   true,
		Measured:   true,
		Onset:      NotProvided,
		Resolution: NotProvided,
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Exclude marks the feature as explicitly absent. Calling it again is a no-op.
func (t *HpTerm) Exclude() {
	t.Observed = false
}

// IsExcluded reports whether the feature was measured and found absent.
func (t *HpTerm) IsExcluded() bool {
	return t.Measured && !t.Observed
}

// DisplayValue returns one of "not measured", "excluded" or "observed".
func (t *HpTerm) DisplayValue() string {
	switch {
	case !t.Measured:
		return DisplayNotMeasured
	case !t.Observed:
		return DisplayExcluded
	default:
		return DisplayObserved
	}
}

func (t *HpTerm) String() string {
	return fmt.Sprintf("HpTerm(id=%s, label=%s, status=%s)", t.ID, t.Label, t.DisplayValue())
}

// MarshalJSON adds the derived display_value to the encoded term.
func (t *HpTerm) MarshalJSON() ([]byte, error) {
	type alias HpTerm
	return json.Marshal(struct {
		*alias
		DisplayValue string `json:"display_value"`
	}{
		alias:        (*alias)(t),
		DisplayValue: t.DisplayValue(),
	})
}

// SortByID orders terms by identifier in place.
func SortByID(terms []*HpTerm) {
	sort.SliceStable(terms, func(i, j int) bool {
		return terms[i].ID < terms[j].ID
	})
}

// Dedupe keeps the first term for each identifier, preserving order.
func Dedupe(terms []*HpTerm) []*HpTerm {
	seen := make(map[string]bool, len(terms))
	out := make([]*HpTerm, 0, len(terms))
	for _, t := range terms {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		out = append(out, t)
	}
	return out
}
