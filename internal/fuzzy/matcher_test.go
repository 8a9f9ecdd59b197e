package fuzzy

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Building 120":   "building120",
		"building-120":   "building120",
		"BUILDING_120":   "building120",
		"  Rent Income ": "rentincome",
		"":               "",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSimilarityExact(t *testing.T) {
	if sim := Similarity("Building 120", "building-120"); sim != 1.0 {
		t.Errorf("expected similarity 1.0 for normalized-equal strings, got %f", sim)
	}
	if sim := Similarity("", ""); sim != 1.0 {
		t.Errorf("expected similarity 1.0 for two empty strings, got %f", sim)
	}
}

func TestSimilarityBounds(t *testing.T) {
	sim := Similarity("Building 120", "Warehouse 7")
	if sim < 0 || sim > 1 {
		t.Errorf("similarity out of bounds: %f", sim)
	}
	if sim >= 0.55 {
		t.Errorf("unrelated names should fall below the floor, got %f", sim)
	}
}

func TestMatchExact(t *testing.T) {
	m := NewMatcher([]string{"Building-120", "Building-250", "Warehouse-7"}, 0, 0)

	res := m.Match("Building-120")
	if !res.Matched() {
		t.Fatalf("expected exact match, got suggestions %v", res.Suggestions)
	}
	if res.Exact != "Building-120" {
		t.Errorf("expected canonical entry Building-120, got %q", res.Exact)
	}
	if len(res.Suggestions) != 0 {
		t.Errorf("exact match should carry no suggestions, got %v", res.Suggestions)
	}
}

func TestMatchCaseVariantIsNotExact(t *testing.T) {
	m := NewMatcher([]string{"Building-120", "Building-250", "Warehouse-7"}, 0, 0)

	res := m.Match("Building 120")
	if res.Matched() {
		t.Fatalf("spacing variant should not match exactly, got %q", res.Exact)
	}
	if len(res.Suggestions) == 0 {
		t.Fatal("expected suggestions for a spacing variant")
	}
	if res.Suggestions[0].Value != "Building-120" || res.Suggestions[0].Similarity != 1.0 {
		t.Errorf("variant of a known entry should rank first with similarity 1.0, got %+v",
			res.Suggestions[0])
	}
}

func TestMatchSuggestions(t *testing.T) {
	m := NewMatcher([]string{"Building-120", "Building-250", "Warehouse-7"}, 0, 0)

	res := m.Match("Bulding 120")
	if res.Matched() {
		t.Fatalf("typo should not match exactly, got %q", res.Exact)
	}
	if len(res.Suggestions) == 0 {
		t.Fatal("expected at least one suggestion for a near-miss")
	}
	if res.Suggestions[0].Value != "Building-120" {
		t.Errorf("best suggestion should be Building-120, got %q", res.Suggestions[0].Value)
	}
	for i := 1; i < len(res.Suggestions); i++ {
		if res.Suggestions[i].Similarity > res.Suggestions[i-1].Similarity {
			t.Errorf("suggestions not sorted by descending similarity at %d", i)
		}
	}
}

func TestMatchFloorFiltersUnrelated(t *testing.T) {
	m := NewMatcher([]string{"Building-120", "Warehouse-7"}, 0.55, 3)

	res := m.Match("zzzzzzzzzz")
	if res.Matched() || len(res.Suggestions) != 0 {
		t.Errorf("unrelated query should produce no suggestions, got %+v", res)
	}
}

func TestMatchCapsSuggestions(t *testing.T) {
	vocab := []string{"Building-1", "Building-2", "Building-3", "Building-4", "Building-5"}
	m := NewMatcher(vocab, 0.3, 3)

	res := m.Match("Building")
	if len(res.Suggestions) > 3 {
		t.Errorf("expected at most 3 suggestions, got %d", len(res.Suggestions))
	}
}
