package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "finbridge/internal/errors"
)

// Config carries the OAuth client registration for the banking provider.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string // authorization + token endpoints
	APIBaseURL   string // data endpoints
	RedirectURI  string
	Scopes       []string
	Timeout      time.Duration // per-call bound; 0 means 30s
}

// HTTPClient is the production Client implementation.
type HTTPClient struct {
	cfg  Config
	http *http.Client
}

// NewHTTPClient creates a Client talking to the configured provider.
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// BuildAuthorizationURL returns the provider authorization URL carrying the
// given state and nonce.
func (c *HTTPClient) BuildAuthorizationURL(state, nonce string) string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURI)
	q.Set("scope", strings.Join(c.cfg.Scopes, " "))
	q.Set("state", state)
	q.Set("nonce", nonce)
	return c.cfg.AuthURL + "/?" + q.Encode()
}

// tokenResponse is the provider's token endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// ExchangeCode exchanges an authorization code for a token set.
func (c *HTTPClient) ExchangeCode(ctx context.Context, code string) (*TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	return c.requestToken(ctx, form)
}

// Refresh exchanges a refresh token for a new token set.
func (c *HTTPClient) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	return c.requestToken(ctx, form)
}

func (c *HTTPClient) requestToken(ctx context.Context, form url.Values) (*TokenSet, error) {
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	body, err := c.do(ctx, http.MethodPost, c.cfg.AuthURL+"/connect/token", "", form)
	if err != nil {
		return nil, err
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrProviderRejected, fmt.Errorf("malformed token response: %w", err))
	}
	if tr.AccessToken == "" {
		return nil, apperrors.Wrap(apperrors.ErrProviderRejected, errors.New("token response missing access_token"))
	}

	return &TokenSet{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

// Revoke revokes a refresh token with the provider.
func (c *HTTPClient) Revoke(ctx context.Context, refreshToken string) error {
	form := url.Values{}
	form.Set("token", refreshToken)
	form.Set("token_type_hint", "refresh_token")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	_, err := c.do(ctx, http.MethodPost, c.cfg.AuthURL+"/connect/revocation", "", form)
	return err
}

type metadataResponse struct {
	Results []struct {
		Provider struct {
			Name string `json:"display_name"`
		} `json:"provider"`
		CredentialsID   string `json:"credentials_id"`
		InstitutionID   string `json:"provider_id"`
		InstitutionName string `json:"provider_display_name"`
	} `json:"results"`
}

// GetMetadata identifies the grant behind an access token.
func (c *HTTPClient) GetMetadata(ctx context.Context, accessToken string) (*Metadata, error) {
	body, err := c.do(ctx, http.MethodGet, c.cfg.APIBaseURL+"/data/v1/me", accessToken, nil)
	if err != nil {
		return nil, err
	}

	var mr metadataResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrProviderRejected, fmt.Errorf("malformed metadata response: %w", err))
	}
	if len(mr.Results) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrProviderRejected, errors.New("empty metadata response"))
	}

	r := mr.Results[0]
	return &Metadata{
		ProviderName:         r.Provider.Name,
		ProviderConnectionID: r.CredentialsID,
		InstitutionID:        r.InstitutionID,
		InstitutionName:      r.InstitutionName,
	}, nil
}

type accountsResponse struct {
	Results []struct {
		AccountID string `json:"account_id"`
		Name      string `json:"display_name"`
		Type      string `json:"account_type"`
		Currency  string `json:"currency"`
		Number    struct {
			Mask     string `json:"number_masked"`
			IBAN     string `json:"iban"`
			SortCode string `json:"sort_code"`
		} `json:"account_number"`
	} `json:"results"`
}

// ListAccounts lists the accounts the grant gives access to.
func (c *HTTPClient) ListAccounts(ctx context.Context, accessToken string) ([]Account, error) {
	body, err := c.do(ctx, http.MethodGet, c.cfg.APIBaseURL+"/data/v1/accounts", accessToken, nil)
	if err != nil {
		return nil, err
	}

	var ar accountsResponse
	if err := json.Unmarshal(body, &ar); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrProviderRejected, fmt.Errorf("malformed accounts response: %w", err))
	}

	accounts := make([]Account, 0, len(ar.Results))
	for _, r := range ar.Results {
		accounts = append(accounts, Account{
			ProviderAccountID: r.AccountID,
			Name:              r.Name,
			Type:              r.Type,
			Currency:          r.Currency,
			Mask:              r.Number.Mask,
			IBAN:              r.Number.IBAN,
			SortCode:          r.Number.SortCode,
		})
	}
	return accounts, nil
}

type transactionsResponse struct {
	Results []struct {
		TransactionID string    `json:"transaction_id"`
		Description   string    `json:"description"`
		Amount        float64   `json:"amount"`
		Currency      string    `json:"currency"`
		Timestamp     time.Time `json:"timestamp"`
		MerchantName  string    `json:"merchant_name"`
		Reference     string    `json:"meta_provider_reference"`
	} `json:"results"`
	NextCursor string `json:"next_cursor"`
}

// FetchTransactions returns all transactions for the account in [from, to],
// following the provider's cursor pagination until exhausted.
func (c *HTTPClient) FetchTransactions(ctx context.Context, accessToken, providerAccountID string, from, to time.Time) ([]Transaction, error) {
	var all []Transaction
	cursor := ""

	for {
		q := url.Values{}
		q.Set("from", from.UTC().Format(time.RFC3339))
		q.Set("to", to.UTC().Format(time.RFC3339))
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		endpoint := fmt.Sprintf("%s/data/v1/accounts/%s/transactions?%s",
			c.cfg.APIBaseURL, url.PathEscape(providerAccountID), q.Encode())

		body, err := c.do(ctx, http.MethodGet, endpoint, accessToken, nil)
		if err != nil {
			return nil, err
		}

		var tr transactionsResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrProviderRejected, fmt.Errorf("malformed transactions response: %w", err))
		}

		for _, r := range tr.Results {
			all = append(all, Transaction{
				ID:          r.TransactionID,
				Description: r.Description,
				Amount:      r.Amount,
				Currency:    r.Currency,
				Timestamp:   r.Timestamp,
				Merchant:    r.MerchantName,
				Reference:   r.Reference,
			})
		}

		if tr.NextCursor == "" {
			return all, nil
		}
		cursor = tr.NextCursor
	}
}

type balanceResponse struct {
	Results []struct {
		Current   float64 `json:"current"`
		Available float64 `json:"available"`
		Currency  string  `json:"currency"`
	} `json:"results"`
}

// FetchBalance returns the current balance for the account.
func (c *HTTPClient) FetchBalance(ctx context.Context, accessToken, providerAccountID string) (*Balance, error) {
	endpoint := fmt.Sprintf("%s/data/v1/accounts/%s/balance", c.cfg.APIBaseURL, url.PathEscape(providerAccountID))
	body, err := c.do(ctx, http.MethodGet, endpoint, accessToken, nil)
	if err != nil {
		return nil, err
	}

	var br balanceResponse
	if err := json.Unmarshal(body, &br); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrProviderRejected, fmt.Errorf("malformed balance response: %w", err))
	}
	if len(br.Results) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrProviderRejected, errors.New("empty balance response"))
	}

	return &Balance{
		Current:   br.Results[0].Current,
		Available: br.Results[0].Available,
		Currency:  br.Results[0].Currency,
	}, nil
}

// do executes one provider request and returns the response body, mapping
// transport failures and non-2xx statuses onto the provider error sentinels.
func (c *HTTPClient) do(ctx context.Context, method, endpoint, accessToken string, form url.Values) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var bodyReader io.Reader
	if form != nil {
		bodyReader = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrProviderRejected, err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Network failures and timeouts are transient.
		return nil, apperrors.Wrap(apperrors.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrProviderUnavailable, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, apperrors.Wrap(apperrors.ErrProviderRejected,
			fmt.Errorf("provider returned %d: %s", resp.StatusCode, truncate(body, 256)))
	default:
		return nil, apperrors.Wrap(apperrors.ErrProviderUnavailable,
			fmt.Errorf("provider returned %d", resp.StatusCode))
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
