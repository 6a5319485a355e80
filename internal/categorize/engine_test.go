package categorize

import (
	"reflect"
	"testing"
	"time"
)

func testTaxonomy() Taxonomy {
	return NewTaxonomy([]KeywordEntry{
		{
			Name:     "Coffee",
			Keywords: []string{"starbucks"},
			Aliases:  []string{"latte", "espresso"},
		},
		{
			Name:     "Groceries",
			Keywords: []string{"tesco", "supermarket"},
			Aliases:  []string{"market"},
		},
	})
}

func testSnapshot() Snapshot {
	return Snapshot{
		Patterns: map[string]MerchantPattern{},
		Categories: map[string]CategoryRef{
			"coffee":    {ID: 1, Name: "Coffee"},
			"groceries": {ID: 2, Name: "Groceries"},
		},
	}
}

func TestCategorizeMerchantHistory(t *testing.T) {
	engine := NewEngine(testTaxonomy())

	t.Run("auto_assigns_at_three_occurrences", func(t *testing.T) {
		snap := testSnapshot()
		snap.Patterns["local bakery"] = MerchantPattern{
			CategoryID:   7,
			CategoryName: "Bakery",
			Frequency:    3,
			LastSeen:     time.Now(),
		}

		result := engine.Categorize("POS LOCAL BAKERY 0042", snap)
		if result.Action != ActionAutoAssign {
			t.Fatalf("expected auto-assign, got %s", result.Action)
		}
		if result.SuggestedCategoryID == nil || *result.SuggestedCategoryID != 7 {
			t.Errorf("expected category 7, got %v", result.SuggestedCategoryID)
		}
		if result.Confidence != 0.95 {
			t.Errorf("expected confidence 0.95, got %v", result.Confidence)
		}
	})

	t.Run("ignores_pattern_below_three_occurrences", func(t *testing.T) {
		snap := testSnapshot()
		snap.Patterns["local bakery"] = MerchantPattern{
			CategoryID:   7,
			CategoryName: "Bakery",
			Frequency:    2,
			LastSeen:     time.Now(),
		}

		result := engine.Categorize("LOCAL BAKERY", snap)
		if result.Action != ActionManual {
			t.Errorf("expected manual (pattern too infrequent, no keywords), got %s", result.Action)
		}
		if result.SuggestedCategoryID != nil {
			t.Errorf("expected no suggested category, got %v", *result.SuggestedCategoryID)
		}
	})

	t.Run("merchant_history_beats_keywords", func(t *testing.T) {
		snap := testSnapshot()
		snap.Patterns["starbucks london"] = MerchantPattern{
			CategoryID:   9,
			CategoryName: "Work Expenses",
			Frequency:    5,
			LastSeen:     time.Now(),
		}

		result := engine.Categorize("STARBUCKS LONDON", snap)
		if result.Action != ActionAutoAssign {
			t.Fatalf("expected auto-assign, got %s", result.Action)
		}
		if *result.SuggestedCategoryID != 9 {
			t.Errorf("expected learned category 9 over keyword category, got %d", *result.SuggestedCategoryID)
		}
	})
}

func TestCategorizeKeywordThresholds(t *testing.T) {
	engine := NewEngine(testTaxonomy())
	snap := testSnapshot()

	t.Run("keyword_match_auto_assigns", func(t *testing.T) {
		result := engine.Categorize("STARBUCKS 1912", snap)
		if result.Action != ActionAutoAssign {
			t.Fatalf("expected auto-assign, got %s", result.Action)
		}
		if result.Confidence != 1.0 {
			t.Errorf("expected confidence 1.0, got %v", result.Confidence)
		}
		if *result.SuggestedCategoryID != 1 {
			t.Errorf("expected category 1, got %d", *result.SuggestedCategoryID)
		}
	})

	t.Run("two_aliases_suggest", func(t *testing.T) {
		result := engine.Categorize("latte and espresso", snap)
		if result.Action != ActionSuggest {
			t.Fatalf("expected suggest, got %s", result.Action)
		}
		if result.Confidence != 0.6 {
			t.Errorf("expected confidence 0.6, got %v", result.Confidence)
		}
		if result.SuggestedCategoryID == nil || *result.SuggestedCategoryID != 1 {
			t.Errorf("expected category 1, got %v", result.SuggestedCategoryID)
		}
	})

	t.Run("single_alias_too_weak", func(t *testing.T) {
		result := engine.Categorize("morning latte", snap)
		if result.Action != ActionManual {
			t.Fatalf("expected manual, got %s", result.Action)
		}
		if result.Confidence != 0.3 {
			t.Errorf("expected computed confidence 0.3 preserved, got %v", result.Confidence)
		}
		if result.SuggestedCategoryID != nil {
			t.Errorf("expected no category on manual, got %v", *result.SuggestedCategoryID)
		}
	})

	t.Run("no_match_is_manual", func(t *testing.T) {
		result := engine.Categorize("completely unknown merchant", snap)
		if result.Action != ActionManual {
			t.Fatalf("expected manual, got %s", result.Action)
		}
		if result.Confidence != 0 {
			t.Errorf("expected confidence 0, got %v", result.Confidence)
		}
	})

	t.Run("confidence_capped_at_one", func(t *testing.T) {
		result := engine.Categorize("tesco supermarket", snap)
		if result.Confidence != 1.0 {
			t.Errorf("expected capped confidence 1.0, got %v", result.Confidence)
		}
		if result.Action != ActionAutoAssign {
			t.Errorf("expected auto-assign, got %s", result.Action)
		}
	})
}

func TestCategorizeMissingTenantCategory(t *testing.T) {
	engine := NewEngine(testTaxonomy())
	snap := Snapshot{
		Patterns:   map[string]MerchantPattern{},
		Categories: map[string]CategoryRef{},
	}

	result := engine.Categorize("STARBUCKS", snap)
	if result.Action != ActionSuggest {
		t.Fatalf("expected suggest when the matched category does not exist, got %s", result.Action)
	}
	if result.SuggestedCategoryID != nil {
		t.Errorf("expected nil category ID, got %v", *result.SuggestedCategoryID)
	}
	if result.SuggestedCategoryName != "Coffee" {
		t.Errorf("expected suggested name Coffee, got %q", result.SuggestedCategoryName)
	}
}

// The engine is pure: the same description and snapshot must always produce
// the same result.
func TestCategorizeDeterministic(t *testing.T) {
	engine := NewEngine(testTaxonomy())
	snap := testSnapshot()
	snap.Patterns["local bakery"] = MerchantPattern{CategoryID: 7, CategoryName: "Bakery", Frequency: 4, LastSeen: time.Now()}

	inputs := []string{
		"POS LOCAL BAKERY 0042",
		"STARBUCKS 1912",
		"latte and espresso",
		"completely unknown merchant",
	}
	for _, input := range inputs {
		first := engine.Categorize(input, snap)
		for i := 0; i < 5; i++ {
			if got := engine.Categorize(input, snap); !reflect.DeepEqual(first, got) {
				t.Errorf("Categorize(%q) not deterministic: %+v vs %+v", input, first, got)
			}
		}
	}
}

func TestCategorizeBatch(t *testing.T) {
	engine := NewEngine(testTaxonomy())
	snap := testSnapshot()

	descriptions := []string{"STARBUCKS", "unknown", "TESCO STORES"}
	results := engine.CategorizeBatch(descriptions, snap)

	if len(results) != len(descriptions) {
		t.Fatalf("expected %d results, got %d", len(descriptions), len(results))
	}
	if results[0].Action != ActionAutoAssign {
		t.Errorf("expected first result auto-assign, got %s", results[0].Action)
	}
	if results[1].Action != ActionManual {
		t.Errorf("expected second result manual, got %s", results[1].Action)
	}
	if results[2].SuggestedCategoryName != "Groceries" {
		t.Errorf("expected Groceries, got %q", results[2].SuggestedCategoryName)
	}
}
