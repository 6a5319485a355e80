package categorize

import "strings"

// transactionPrefixes are payment-rail tokens banks prepend to statement
// descriptions. They carry no merchant signal and are stripped before the
// merchant key is derived.
var transactionPrefixes = map[string]bool{
	"pos":      true,
	"debit":    true,
	"credit":   true,
	"card":     true,
	"visa":     true,
	"payment":  true,
	"purchase": true,
	"ach":      true,
	"dd":       true,
	"chk":      true,
}

// NormalizeDescription lowercases a statement description, strips
// non-alphanumeric characters, and collapses whitespace. This is the shared
// normalization for keyword matching and fingerprinting.
func NormalizeDescription(description string) string {
	var b strings.Builder
	b.Grow(len(description))

	lastSpace := true
	for _, r := range strings.ToLower(description) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// NormalizeMerchant derives the merchant key used for pattern learning and
// tier-1 matching: normalize the description, strip leading transaction-type
// tokens, strip trailing reference/store numbers, and keep the first three
// remaining words.
func NormalizeMerchant(description string) string {
	words := strings.Fields(NormalizeDescription(description))

	for len(words) > 1 && transactionPrefixes[words[0]] {
		words = words[1:]
	}
	for len(words) > 1 && isReferenceToken(words[len(words)-1]) {
		words = words[:len(words)-1]
	}

	if len(words) > 3 {
		words = words[:3]
	}
	return strings.Join(words, " ")
}

// isReferenceToken reports whether a trailing token looks like a reference
// or store number rather than part of the merchant name: all digits, or a
// mixed token carrying three or more digits (e.g. "ref48213", "st0042").
func isReferenceToken(token string) bool {
	digits := 0
	for i := 0; i < len(token); i++ {
		if token[i] >= '0' && token[i] <= '9' {
			digits++
		}
	}
	return digits == len(token) || digits >= 3
}
