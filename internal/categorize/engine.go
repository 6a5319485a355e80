package categorize

import (
	"fmt"
	"strings"
	"time"
)

// Action is the categorization decision attached to a result, ordered by
// decreasing confidence and decreasing automation.
type Action string

const (
	ActionAutoAssign Action = "auto-assign"
	ActionSuggest    Action = "suggest"
	ActionManual     Action = "manual"
)

// Confidence thresholds for tier-2 keyword results.
const (
	autoAssignThreshold = 0.8
	suggestThreshold    = 0.5

	keywordScore = 10
	aliasScore   = 3

	// merchantMinFrequency is how many times a merchant must have been
	// seen with a consistent category before tier-1 auto-assigns.
	merchantMinFrequency = 3
	merchantConfidence   = 0.95
)

// MerchantPattern is a learned mapping from a normalized merchant key to the
// category most frequently assigned to it historically.
type MerchantPattern struct {
	CategoryID   uint
	CategoryName string
	Frequency    int
	LastSeen     time.Time
}

// CategoryRef identifies an existing category row for a tenant.
type CategoryRef struct {
	ID   uint
	Name string
}

// Snapshot is the tenant state the engine categorizes against: the learned
// merchant patterns and the tenant's existing categories keyed by lowercased
// name. A snapshot is built once per batch and never mutated by the engine.
type Snapshot struct {
	Patterns   map[string]MerchantPattern
	Categories map[string]CategoryRef
}

// Result is a scored categorization suggestion.
type Result struct {
	SuggestedCategoryID   *uint    `json:"suggested_category_id"`
	SuggestedCategoryName string   `json:"suggested_category_name"`
	Confidence            float64  `json:"confidence"`
	MatchedKeywords       []string `json:"matched_keywords"`
	Action                Action   `json:"action"`
	Reasoning             string   `json:"reasoning"`
}

// Engine scores category suggestions for transaction descriptions. It holds
// only the immutable taxonomy and is safe for concurrent use.
type Engine struct {
	taxonomy Taxonomy
}

// NewEngine creates an engine over the given taxonomy.
func NewEngine(taxonomy Taxonomy) *Engine {
	return &Engine{taxonomy: taxonomy}
}

// Categorize runs the three-tier cascade for one description against the
// given snapshot. The first confident tier wins.
func (e *Engine) Categorize(description string, snap Snapshot) Result {
	// Tier 1: merchant history.
	merchantKey := NormalizeMerchant(description)
	if pattern, ok := snap.Patterns[merchantKey]; ok && pattern.Frequency >= merchantMinFrequency {
		id := pattern.CategoryID
		return Result{
			SuggestedCategoryID:   &id,
			SuggestedCategoryName: pattern.CategoryName,
			Confidence:            merchantConfidence,
			MatchedKeywords:       []string{},
			Action:                ActionAutoAssign,
			Reasoning:             fmt.Sprintf("Merchant %q has been categorized as %q %d times before", merchantKey, pattern.CategoryName, pattern.Frequency),
		}
	}

	// Tier 2: keyword matching over the static taxonomy.
	normalized := NormalizeDescription(description)
	var (
		bestScore   int
		bestEntry   KeywordEntry
		bestMatched []string
	)
	for _, entry := range e.taxonomy.Entries() {
		score, matched := scoreEntry(normalized, entry)
		if score > bestScore {
			bestScore = score
			bestEntry = entry
			bestMatched = matched
		}
	}

	if bestScore == 0 {
		return manualResult("No keyword or merchant history matched this description")
	}

	confidence := float64(bestScore) / keywordScore
	if confidence > 1.0 {
		confidence = 1.0
	}

	// A matched category name with no corresponding row for the tenant is
	// offered as a create suggestion rather than silently dropped.
	ref, exists := snap.Categories[strings.ToLower(bestEntry.Name)]
	if !exists {
		return Result{
			SuggestedCategoryName: bestEntry.Name,
			Confidence:            confidence,
			MatchedKeywords:       bestMatched,
			Action:                ActionSuggest,
			Reasoning:             fmt.Sprintf("Matched %q but no such category exists yet; it can be created", bestEntry.Name),
		}
	}

	// Tier 3: thresholding.
	id := ref.ID
	switch {
	case confidence >= autoAssignThreshold:
		return Result{
			SuggestedCategoryID:   &id,
			SuggestedCategoryName: ref.Name,
			Confidence:            confidence,
			MatchedKeywords:       bestMatched,
			Action:                ActionAutoAssign,
			Reasoning:             fmt.Sprintf("Strong keyword match for %q: %s", ref.Name, strings.Join(bestMatched, ", ")),
		}
	case confidence >= suggestThreshold:
		return Result{
			SuggestedCategoryID:   &id,
			SuggestedCategoryName: ref.Name,
			Confidence:            confidence,
			MatchedKeywords:       bestMatched,
			Action:                ActionSuggest,
			Reasoning:             fmt.Sprintf("Possible match for %q: %s", ref.Name, strings.Join(bestMatched, ", ")),
		}
	default:
		r := manualResult("Keyword match was too weak to act on")
		r.Confidence = confidence
		return r
	}
}

// CategorizeBatch categorizes every description against one shared snapshot,
// so the merchant-pattern map is computed once per batch, not once per
// transaction.
func (e *Engine) CategorizeBatch(descriptions []string, snap Snapshot) []Result {
	results := make([]Result, len(descriptions))
	for i, d := range descriptions {
		results[i] = e.Categorize(d, snap)
	}
	return results
}

func scoreEntry(normalized string, entry KeywordEntry) (int, []string) {
	score := 0
	var matched []string
	for _, kw := range entry.Keywords {
		if strings.Contains(normalized, kw) {
			score += keywordScore
			matched = append(matched, kw)
		}
	}
	for _, alias := range entry.Aliases {
		if strings.Contains(normalized, alias) {
			score += aliasScore
			matched = append(matched, alias)
		}
	}
	return score, matched
}

func manualResult(reasoning string) Result {
	return Result{
		Confidence:      0,
		MatchedKeywords: []string{},
		Action:          ActionManual,
		Reasoning:       reasoning,
	}
}
