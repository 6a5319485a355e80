// Package provider implements the client for the open-banking data provider:
// OAuth token exchange and refresh, account listing, balance fetch, and
// paginated transaction fetch.
//
// The client is a stateless adapter. Failures are classified into two
// sentinels: network errors, timeouts, and 5xx responses map to
// ErrProviderUnavailable (transient, retryable); 4xx responses map to
// ErrProviderRejected (requires user action).
package provider

import (
	"context"
	"time"

	"finbridge/internal/models"
)

// TokenSet is the result of an OAuth code exchange or refresh.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Account is a provider-side bank account as returned by the accounts endpoint.
type Account struct {
	ProviderAccountID string
	Name              string
	Type              string // raw institution-specific type string
	Currency          string
	Mask              string
	IBAN              string
	SortCode          string
}

// Transaction is a provider-side transaction. Amount is signed:
// non-negative values are credits, negative values are debits.
type Transaction struct {
	ID          string
	Description string
	Amount      float64
	Currency    string
	Timestamp   time.Time
	Merchant    string
	Reference   string
}

// Balance is a point-in-time balance for a provider account. It is served
// to API clients as-is.
type Balance struct {
	Current   float64 `json:"current"`
	Available float64 `json:"available"`
	Currency  string  `json:"currency"`
}

// Metadata identifies the grant behind an access token: the provider-side
// connection id and the institution that issued it.
type Metadata struct {
	ProviderName         string
	ProviderConnectionID string
	InstitutionID        string
	InstitutionName      string
}

// Client is the contract the sync engine depends on. All operations honor
// the passed context and carry a bounded per-call timeout internally.
type Client interface {
	// BuildAuthorizationURL returns the provider authorization URL for the
	// configured client, carrying the given state and nonce.
	BuildAuthorizationURL(state, nonce string) string

	// ExchangeCode exchanges an authorization code for a token set.
	ExchangeCode(ctx context.Context, code string) (*TokenSet, error)

	// Refresh exchanges a refresh token for a new token set. Provider
	// refresh tokens are single-use; callers must serialize refreshes
	// per connection.
	Refresh(ctx context.Context, refreshToken string) (*TokenSet, error)

	// GetMetadata identifies the grant behind an access token.
	GetMetadata(ctx context.Context, accessToken string) (*Metadata, error)

	// ListAccounts lists the accounts the grant gives access to.
	ListAccounts(ctx context.Context, accessToken string) ([]Account, error)

	// FetchTransactions returns all transactions for the account in
	// [from, to]. Pagination is handled internally; the caller sees a
	// flat slice in provider order.
	FetchTransactions(ctx context.Context, accessToken, providerAccountID string, from, to time.Time) ([]Transaction, error)

	// FetchBalance returns the current balance for the account.
	FetchBalance(ctx context.Context, accessToken, providerAccountID string) (*Balance, error)

	// Revoke revokes a refresh token with the provider.
	Revoke(ctx context.Context, refreshToken string) error
}

// accountTypeMapping normalizes the heterogeneous account-type strings
// institutions report into the closed internal set. Lookups are done on the
// lowercased raw string.
var accountTypeMapping = map[string]models.AccountType{
	"transaction": models.AccountTypeCurrent,
	"current":     models.AccountTypeCurrent,
	"checking":    models.AccountTypeCurrent,
	"depository":  models.AccountTypeCurrent,
	"savings":     models.AccountTypeSavings,
	"saving":      models.AccountTypeSavings,
	"isa":         models.AccountTypeSavings,
	"credit":      models.AccountTypeCredit,
	"credit_card": models.AccountTypeCredit,
	"creditcard":  models.AccountTypeCredit,
	"card":        models.AccountTypeCredit,
	"cash":        models.AccountTypeCash,
	"prepaid":     models.AccountTypeCash,
	"wallet":      models.AccountTypeCash,
	"investment":  models.AccountTypeInvestment,
	"brokerage":   models.AccountTypeInvestment,
	"pension":     models.AccountTypeInvestment,
}

// NormalizeAccountType maps a raw provider account-type string to the
// internal closed set. Unknown strings default to AccountTypeOther.
func NormalizeAccountType(raw string) models.AccountType {
	if t, ok := accountTypeMapping[normalizeTypeKey(raw)]; ok {
		return t
	}
	return models.AccountTypeOther
}

func normalizeTypeKey(raw string) string {
	b := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= 'A' && c <= 'Z':
			b = append(b, c+('a'-'A'))
		case c == ' ' || c == '-':
			b = append(b, '_')
		default:
			b = append(b, c)
		}
	}
	return string(b)
}
