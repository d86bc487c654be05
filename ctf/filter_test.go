package ctf

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func sample() []Challenge {
	return []Challenge{
		{ID: "1", Name: "Baby ROP", Categories: []string{"pwn"}, Tags: []string{"rop"}, Value: 100, Solved: Bool(true)},
		{ID: "2", Name: "Cookie Monster", Categories: []string{"web"}, Tags: []string{"xss"}, Value: 250, Solved: Bool(false)},
		{ID: "3", Name: "Lost in Translation", Categories: []string{"crypto"}, Value: 500},
		{ID: "4", Name: "ropes and ladders", Categories: []string{"pwn", "misc"}, Tags: []string{"rop", "heap"}},
	}
}

func ids(challenges []Challenge) []string {
	out := make([]string, len(challenges))
	for i, c := range challenges {
		out[i] = c.ID
	}
	return out
}

func TestFilterApply(t *testing.T) {
	tests := []struct {
		name   string
		filter FilterOptions
		want   []string
	}{
		{"zero filter keeps everything", FilterOptions{}, []string{"1", "2", "3", "4"}},
		{"solved true", FilterOptions{Solved: Bool(true)}, []string{"1"}},
		{"solved false excludes unknown", FilterOptions{Solved: Bool(false)}, []string{"2"}},
		{"category", FilterOptions{Category: "pwn"}, []string{"1", "4"}},
		{"category is case insensitive", FilterOptions{Category: "PWN"}, []string{"1", "4"}},
		{"category alias matches canonical name", FilterOptions{Category: "Binary Exploitation"}, []string{"1", "4"}},
		{"categories any-of", FilterOptions{Categories: []string{"web", "crypto"}}, []string{"2", "3"}},
		{"categories any-of folds aliases", FilterOptions{Categories: []string{"Web Exploitation"}}, []string{"2"}},
		{"tags all-of", FilterOptions{Tags: []string{"rop", "heap"}}, []string{"4"}},
		{"name contains is case insensitive", FilterOptions{NameContains: "ROP"}, []string{"1", "4"}},
		{"min points excludes unreported value", FilterOptions{MinPoints: Int(100)}, []string{"1", "2", "3"}},
		{"max points excludes unreported value", FilterOptions{MaxPoints: Int(250)}, []string{"1", "2"}},
		{"conjunction", FilterOptions{Category: "pwn", Tags: []string{"heap"}}, []string{"4"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.filter.Apply(sample())
			if diff := cmp.Diff(tc.want, ids(got)); diff != "" {
				t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFilterApplySummarySkipsDetailPredicates(t *testing.T) {
	// Summaries without points or tags must survive value-range and tag
	// predicates, which are only decidable after hydration.
	summaries := []Challenge{
		{ID: "1", Name: "chall", Categories: []string{"pwn"}},
	}
	filter := FilterOptions{MinPoints: Int(100), Tags: []string{"rop"}, Category: "pwn"}

	got := filter.ApplySummary(summaries)
	if len(got) != 1 {
		t.Fatalf("ApplySummary() dropped a summary that full filtering might keep: got %d", len(got))
	}
	if full := filter.Apply(summaries); len(full) != 0 {
		t.Fatalf("Apply() should exclude the unhydrated summary, got %d", len(full))
	}
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	input := sample()
	FilterOptions{Category: "pwn"}.Apply(input)
	if diff := cmp.Diff(sample(), input); diff != "" {
		t.Errorf("input mutated (-want +got):\n%s", diff)
	}
}

func TestCategoryFilterAgreesAcrossEnrichment(t *testing.T) {
	// The same filter must keep a challenge whether its categories still
	// carry the platform's raw spelling or the canonical one written by
	// enrichment, since list pipelines filter at both stages.
	raw := []Challenge{{ID: "1", Name: "ret2win", Categories: []string{"Binary Exploitation"}}}
	canonical := []Challenge{{ID: "1", Name: "ret2win", Categories: []string{"pwn"}}}

	for _, want := range []string{"pwn", "Binary Exploitation", "PWN"} {
		filter := FilterOptions{Category: want}
		if got := filter.ApplySummary(raw); len(got) != 1 {
			t.Errorf("Category %q dropped the raw-spelling summary", want)
		}
		if got := filter.Apply(canonical); len(got) != 1 {
			t.Errorf("Category %q dropped the canonical challenge", want)
		}
	}
}

func TestNormalizeCategory(t *testing.T) {
	tests := []struct{ in, want string }{
		{"pwn", "pwn"},
		{"Binary Exploitation", "pwn"},
		{"  Reversing  ", "rev"},
		{"Cryptography", "crypto"},
		{"blockchain", "blockchain"},
	}
	for _, tc := range tests {
		if got := NormalizeCategory(tc.in); got != tc.want {
			t.Errorf("NormalizeCategory(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFilterIsZero(t *testing.T) {
	if !(FilterOptions{}).IsZero() {
		t.Error("empty FilterOptions should be zero")
	}
	if (FilterOptions{Category: "pwn"}).IsZero() {
		t.Error("FilterOptions with a predicate should not be zero")
	}
}
