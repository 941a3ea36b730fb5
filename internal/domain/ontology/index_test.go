package ontology

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func loadTestIndex(t *testing.T) *Index {
	t.Helper()
	exp, err := ParseFile("testdata/hp_mini.json")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	idx, err := Build(exp)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return idx
}

func TestToCURIE(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"http://purl.obolibrary.org/obo/HP_0001250", "HP:0001250", true},
		{"HP:0001250", "HP:0001250", true},
		{"http://purl.obolibrary.org/obo/UBERON_0000955", "", false},
		{"http://purl.obolibrary.org/obo/HP_", "", false},
		{"HP:12ab", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ToCURIE(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ToCURIE(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParse_RejectsGraphCount(t *testing.T) {
	for _, doc := range []string{`{"graphs":[]}`, `{"graphs":[{"id":"a","nodes":[{"id":"x"}]},{"id":"b","nodes":[{"id":"y"}]}]}`} {
		_, err := Parse(strings.NewReader(doc))
		if !errors.Is(err, ErrMalformedExport) {
			t.Errorf("expected ErrMalformedExport for %s, got %v", doc, err)
		}
	}
}

func TestParse_RejectsMissingFields(t *testing.T) {
	docs := []string{
		`not json`,
		`{"graphs":[{"nodes":[{"id":"x"}]}]}`,
		`{"graphs":[{"id":"g","nodes":[]}]}`,
		`{"graphs":[{"id":"g","nodes":[{"lbl":"no id"}]}]}`,
	}
	for _, doc := range docs {
		_, err := Parse(strings.NewReader(doc))
		if !errors.Is(err, ErrMalformedExport) {
			t.Errorf("expected ErrMalformedExport for %s, got %v", doc, err)
		}
	}
}

func TestBuild_RequiresRoots(t *testing.T) {
	doc := `{"graphs":[{"id":"g","meta":{"version":"v1"},
		"nodes":[{"id":"http://purl.obolibrary.org/obo/HP_0000118","lbl":"Phenotypic abnormality"}]}]}`
	exp, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := Build(exp); !errors.Is(err, ErrMalformedExport) {
		t.Fatalf("expected ErrMalformedExport without %s, got %v", RootID, err)
	}
}

func TestBuild_RequiresVersion(t *testing.T) {
	doc := `{"graphs":[{"id":"g","nodes":[{"id":"HP:0000001","lbl":"All"}]}]}`
	exp, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := Build(exp); !errors.Is(err, ErrMalformedExport) {
		t.Fatalf("expected ErrMalformedExport without version, got %v", err)
	}
}

func TestBuild_Version(t *testing.T) {
	idx := loadTestIndex(t)
	if idx.Version() != "2024-04-26" {
		t.Errorf("expected version 2024-04-26, got %q", idx.Version())
	}
}

func TestGraphVersion_FallsBackToVersionInfo(t *testing.T) {
	g := &Graph{ID: "g", Meta: &Meta{BasicPropertyValues: []PropertyValue{
		{Pred: "http://www.w3.org/2002/07/owl#versionInfo", Val: "2023-10-09"},
	}}}
	v, err := g.Version()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "2023-10-09" {
		t.Errorf("expected 2023-10-09, got %q", v)
	}
}

func TestBuild_RestrictsToPhenotypicAbnormality(t *testing.T) {
	idx := loadTestIndex(t)

	want := []string{
		"HP:0000707", "HP:0001249", "HP:0001250", "HP:0001251", "HP:0001252", "HP:0001263",
		"HP:0001290", "HP:0002069", "HP:0011147", "HP:0012531", "HP:0012758",
	}
	got := idx.IDs()
	if len(got) != len(want) {
		t.Fatalf("expected %d terms, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("id[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	for _, id := range []string{RootID, PhenotypicAbnormalityID, "HP:0000005", "HP:0000006", "HP:0009999", "HP:0100001", "HP:0100002"} {
		if idx.Contains(id) {
			t.Errorf("did not expect %s in index", id)
		}
	}
	if _, ok := idx.IDFor("autosomal dominant inheritance"); ok {
		t.Error("mode of inheritance labels must not be indexed")
	}
}

func TestBuild_EveryTermReachesAbnormalityRoot(t *testing.T) {
	idx := loadTestIndex(t)
	for _, id := range idx.IDs() {
		if !idx.IsDescendantOf(id, PhenotypicAbnormalityID) {
			t.Errorf("%s is not below %s", id, PhenotypicAbnormalityID)
		}
	}
}

func TestBuild_LabelsPointAtKnownIDs(t *testing.T) {
	idx := loadTestIndex(t)
	for label, id := range idx.LabelMap() {
		if !idx.Contains(id) {
			t.Errorf("label %q points at unknown id %s", label, id)
		}
	}
}

func TestBuild_ShortSynonymsDropped(t *testing.T) {
	idx := loadTestIndex(t)
	for _, short := range []string{"gtc", "fits"} {
		if _, ok := idx.IDFor(short); ok {
			t.Errorf("expected %q to be dropped", short)
		}
	}
	if idx.Stats().ShortSynonyms != 2 {
		t.Errorf("expected 2 short synonyms, got %d", idx.Stats().ShortSynonyms)
	}
}

func TestBuild_ShortPrimaryLabelKept(t *testing.T) {
	idx := loadTestIndex(t)
	id, ok := idx.IDFor("pain")
	if !ok || id != "HP:0012531" {
		t.Errorf("expected pain to resolve to HP:0012531, got %q (ok=%v)", id, ok)
	}
	for _, label := range idx.Labels() {
		if utf8.RuneCountInString(label) < DefaultMinSynonymLength && label != "pain" {
			t.Errorf("unexpected short label %q", label)
		}
	}
}

func TestBuild_SynonymsAreCaseInsensitive(t *testing.T) {
	idx := loadTestIndex(t)
	id, ok := idx.IDFor("  GENERALIZED Tonic-Clonic seizures ")
	if !ok || id != "HP:0002069" {
		t.Errorf("expected HP:0002069, got %q (ok=%v)", id, ok)
	}
}

func TestBuild_PrimaryLabelWinsCollision(t *testing.T) {
	idx := loadTestIndex(t)
	id, ok := idx.IDFor("hypotonia")
	if !ok || id != "HP:0001252" {
		t.Errorf("expected primary label owner HP:0001252, got %q", id)
	}
	if idx.Stats().LabelCollisions != 1 {
		t.Errorf("expected 1 collision, got %d", idx.Stats().LabelCollisions)
	}
}

func TestBuild_Stats(t *testing.T) {
	idx := loadTestIndex(t)
	s := idx.Stats()
	if s.Terms != 11 {
		t.Errorf("expected 11 terms, got %d", s.Terms)
	}
	if s.Labels != 22 {
		t.Errorf("expected 22 labels, got %d", s.Labels)
	}
	if s.EdgesSkipped != 1 {
		t.Errorf("expected 1 skipped edge, got %d", s.EdgesSkipped)
	}
	if s.DeprecatedSkipped != 1 {
		t.Errorf("expected 1 deprecated node, got %d", s.DeprecatedSkipped)
	}
}

func TestIndex_LabelsLongestFirst(t *testing.T) {
	idx := loadTestIndex(t)
	labels := idx.Labels()
	for i := 1; i < len(labels); i++ {
		prev, cur := utf8.RuneCountInString(labels[i-1]), utf8.RuneCountInString(labels[i])
		if prev < cur || (prev == cur && labels[i-1] > labels[i]) {
			t.Fatalf("labels out of order at %d: %q before %q", i, labels[i-1], labels[i])
		}
	}
}

func TestIndex_Ancestors(t *testing.T) {
	idx := loadTestIndex(t)
	got := idx.Ancestors("HP:0002069")
	want := []string{"HP:0000707", "HP:0001250"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ancestor[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if len(idx.Ancestors("HP:0000707")) != 0 {
		t.Error("expected no ancestors for a direct child of the abnormality root")
	}
}

func TestMembership_TerminatesOnCycle(t *testing.T) {
	m := &membership{
		parents: map[string][]string{
			"HP:1": {"HP:2"},
			"HP:2": {"HP:3"},
			"HP:3": {"HP:1"},
		},
		memo: make(map[string]bool),
	}
	if m.isMember("HP:1") {
		t.Error("cycle without root must not be a member")
	}
	if m.isMember("HP:2") {
		t.Error("cycle without root must not be a member")
	}
}

func TestMembership_UsesMemo(t *testing.T) {
	m := &membership{
		parents: map[string][]string{
			"HP:2": {PhenotypicAbnormalityID},
			"HP:3": {"HP:2"},
		},
		memo: map[string]bool{"HP:2": true},
	}
	if !m.isMember("HP:3") {
		t.Error("expected HP:3 to be a member via memoized parent")
	}
	if !m.memo["HP:3"] {
		t.Error("expected HP:3 result to be memoized")
	}
}

func TestNewIndex_ValidatesLabels(t *testing.T) {
	_, err := NewIndex("v1",
		map[string]string{"HP:0001250": "Seizure"},
		map[string]string{"ataxia": "HP:0001251"},
		nil)
	if !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("expected ErrInvalidIndex, got %v", err)
	}

	_, err = NewIndex("v1", map[string]string{RootID: "All"}, nil, nil)
	if !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("expected ErrInvalidIndex for root term, got %v", err)
	}
}

func TestNewIndex_CaseCollisions(t *testing.T) {
	idToLabel := map[string]string{"HP:0001250": "Seizure", "HP:0001251": "Ataxia"}

	idx, err := NewIndex("v1", idToLabel,
		map[string]string{"Seizure": "HP:0001250", "seizure": "HP:0001250"}, nil)
	if err != nil {
		t.Fatalf("unexpected error for same-term duplicates: %v", err)
	}
	if len(idx.Labels()) != 1 {
		t.Errorf("expected 1 label, got %v", idx.Labels())
	}

	_, err = NewIndex("v1", idToLabel,
		map[string]string{"Seizure": "HP:0001250", "seizure": "HP:0001251"}, nil)
	if !errors.Is(err, ErrInvalidIndex) {
		t.Fatalf("expected ErrInvalidIndex for conflicting labels, got %v", err)
	}
}

func TestNewIndex_RoundTripsBuiltIndex(t *testing.T) {
	built := loadTestIndex(t)
	idToLabel := make(map[string]string)
	parents := make(map[string][]string)
	for _, id := range built.IDs() {
		label, _ := built.LabelFor(id)
		idToLabel[id] = label
		parents[id] = built.Parents(id)
	}

	idx, err := NewIndex(built.Version(), idToLabel, built.LabelMap(), parents)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx.Len() != built.Len() {
		t.Errorf("expected %d terms, got %d", built.Len(), idx.Len())
	}
	if len(idx.Labels()) != len(built.Labels()) {
		t.Errorf("expected %d labels, got %d", len(built.Labels()), len(idx.Labels()))
	}
	if got := idx.Ancestors("HP:0001263"); len(got) != 2 {
		t.Errorf("expected 2 ancestors, got %v", got)
	}
}
