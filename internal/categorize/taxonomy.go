// Package categorize implements the layered transaction categorization
// engine: merchant history first, keyword matching second, confidence
// thresholding last. The engine is pure given its inputs — the same
// description and snapshot always produce the same result.
package categorize

// KeywordEntry maps a category name to its keyword list (strong signal)
// and alias list (weak signal).
type KeywordEntry struct {
	Name     string
	Keywords []string
	Aliases  []string
}

// Taxonomy is the immutable keyword configuration injected into the engine
// at construction. It is never mutated after creation, so a single value
// can be shared across goroutines.
type Taxonomy struct {
	entries []KeywordEntry
}

// NewTaxonomy builds a taxonomy from the given entries. Entry order matters:
// when two categories score equally, the earlier entry wins.
func NewTaxonomy(entries []KeywordEntry) Taxonomy {
	copied := make([]KeywordEntry, len(entries))
	copy(copied, entries)
	return Taxonomy{entries: copied}
}

// Entries returns the taxonomy's entries in definition order.
func (t Taxonomy) Entries() []KeywordEntry {
	return t.entries
}

// DefaultTaxonomy returns the built-in category keyword configuration.
// It ships with the binary and is not user-editable at runtime.
func DefaultTaxonomy() Taxonomy {
	return NewTaxonomy([]KeywordEntry{
		{
			Name:     "Groceries",
			Keywords: []string{"grocery", "supermarket", "tesco", "sainsbury", "asda", "aldi", "lidl", "waitrose", "morrisons", "whole foods", "trader joe", "kroger", "costco"},
			Aliases:  []string{"market", "food store", "mart"},
		},
		{
			Name:     "Dining",
			Keywords: []string{"restaurant", "cafe", "coffee", "starbucks", "mcdonald", "burger", "pizza", "deliveroo", "doordash", "uber eats", "grubhub", "takeaway"},
			Aliases:  []string{"bar", "pub", "diner", "bakery"},
		},
		{
			Name:     "Transport",
			Keywords: []string{"uber", "lyft", "taxi", "train", "rail", "transit", "tfl", "parking", "fuel", "petrol", "shell", "esso", "chevron"},
			Aliases:  []string{"toll", "bus", "metro"},
		},
		{
			Name:     "Entertainment",
			Keywords: []string{"netflix", "spotify", "cinema", "hulu", "disney", "hbo", "prime video", "youtube", "steam", "playstation"},
			Aliases:  []string{"theatre", "concert", "game"},
		},
		{
			Name:     "Shopping",
			Keywords: []string{"amazon", "ebay", "etsy", "ikea", "argos", "john lewis", "target", "walmart", "best buy"},
			Aliases:  []string{"store", "retail", "outlet"},
		},
		{
			Name:     "Utilities",
			Keywords: []string{"electric", "electricity", "gas bill", "water", "broadband", "internet", "vodafone", "o2", "ee", "british gas", "octopus energy", "comcast", "verizon"},
			Aliases:  []string{"utility", "phone", "mobile"},
		},
		{
			Name:     "Housing",
			Keywords: []string{"rent", "mortgage", "landlord", "letting", "council tax"},
			Aliases:  []string{"property", "estate"},
		},
		{
			Name:     "Health",
			Keywords: []string{"pharmacy", "boots", "cvs", "walgreens", "doctor", "dental", "hospital", "clinic", "optician"},
			Aliases:  []string{"health", "medical", "gym", "fitness"},
		},
		{
			Name:     "Insurance",
			Keywords: []string{"insurance", "aviva", "axa", "admiral", "geico", "allstate"},
			Aliases:  []string{"premium", "cover"},
		},
		{
			Name:     "Subscriptions",
			Keywords: []string{"subscription", "membership", "patreon", "icloud", "dropbox", "google storage"},
			Aliases:  []string{"monthly fee", "annual fee"},
		},
		{
			Name:     "Salary",
			Keywords: []string{"payroll", "salary", "wages", "direct deposit"},
			Aliases:  []string{"bonus", "commission"},
		},
		{
			Name:     "Transfers",
			Keywords: []string{"transfer", "venmo", "paypal", "zelle", "revolut", "wise", "standing order"},
			Aliases:  []string{"faster payment", "sepa"},
		},
	})
}
