package services

import (
	"context"
	"sync"
	"time"

	apperrors "finbridge/internal/errors"
	"finbridge/internal/provider"
)

// fakeProviderClient is a scriptable in-memory provider.Client for service
// tests. Transactions are keyed by provider account ID; accounts listed in
// failAccounts return a transient provider error on fetch.
type fakeProviderClient struct {
	mu sync.Mutex

	transactions map[string][]provider.Transaction
	failAccounts map[string]bool
	balances     map[string]provider.Balance
	fetchDelay   time.Duration

	refreshResult *provider.TokenSet
	refreshErr    error
	refreshCalls  int
	revokeCalls   int

	fetchWindows map[string][]time.Time // from/to pairs per account
}

func newFakeProvider() *fakeProviderClient {
	return &fakeProviderClient{
		transactions: make(map[string][]provider.Transaction),
		failAccounts: make(map[string]bool),
		balances:     make(map[string]provider.Balance),
		fetchWindows: make(map[string][]time.Time),
	}
}

func (f *fakeProviderClient) BuildAuthorizationURL(state, nonce string) string {
	return "https://auth.test/?state=" + state + "&nonce=" + nonce
}

func (f *fakeProviderClient) ExchangeCode(ctx context.Context, code string) (*provider.TokenSet, error) {
	return &provider.TokenSet{
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeProviderClient) Refresh(ctx context.Context, refreshToken string) (*provider.TokenSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	if f.refreshResult != nil {
		return f.refreshResult, nil
	}
	return &provider.TokenSet{
		AccessToken:  "refreshed-access",
		RefreshToken: "refreshed-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeProviderClient) GetMetadata(ctx context.Context, accessToken string) (*provider.Metadata, error) {
	return &provider.Metadata{
		ProviderName:         "test-provider",
		ProviderConnectionID: "provider-conn-1",
		InstitutionID:        "test-bank",
		InstitutionName:      "Test Bank",
	}, nil
}

func (f *fakeProviderClient) ListAccounts(ctx context.Context, accessToken string) ([]provider.Account, error) {
	return nil, nil
}

func (f *fakeProviderClient) FetchTransactions(ctx context.Context, accessToken, providerAccountID string, from, to time.Time) ([]provider.Transaction, error) {
	f.mu.Lock()
	delay := f.fetchDelay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAccounts[providerAccountID] {
		return nil, apperrors.ErrProviderUnavailable
	}
	f.fetchWindows[providerAccountID] = append(f.fetchWindows[providerAccountID], from, to)
	return f.transactions[providerAccountID], nil
}

func (f *fakeProviderClient) FetchBalance(ctx context.Context, accessToken, providerAccountID string) (*provider.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[providerAccountID]; ok {
		return &b, nil
	}
	return nil, apperrors.ErrProviderUnavailable
}

func (f *fakeProviderClient) Revoke(ctx context.Context, refreshToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokeCalls++
	return nil
}
