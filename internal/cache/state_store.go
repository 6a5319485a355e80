package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// OAuthState is the payload stored against an OAuth state token while the
// user is away at the provider's consent screen.
type OAuthState struct {
	UserID   uint   `json:"user_id"`
	ReturnTo string `json:"return_to,omitempty"`
	Nonce    string `json:"nonce"`
}

// ErrStateNotFound is returned when a state token is missing, expired, or
// already consumed.
var ErrStateNotFound = errors.New("oauth state not found")

// StateStorer stores single-use OAuth state tokens. Take must consume the
// token: a second Take for the same token returns ErrStateNotFound.
type StateStorer interface {
	Put(ctx context.Context, token string, state OAuthState) error
	Take(ctx context.Context, token string) (*OAuthState, error)
}

const stateKeyPrefix = "oauth:state:"

// StateStore keeps OAuth state tokens in Redis with a TTL. Tokens are
// single-use: Take removes the entry as it reads it, so a replayed callback
// cannot reuse a consumed state.
type StateStore struct {
	client *Client
	ttl    time.Duration
}

// NewStateStore creates a StateStore with the given token lifetime.
func NewStateStore(client *Client, ttl time.Duration) *StateStore {
	return &StateStore{client: client, ttl: ttl}
}

// Put stores the state payload under the given token.
func (s *StateStore) Put(ctx context.Context, token string, state OAuthState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, stateKeyPrefix+token, data, s.ttl).Err()
}

// Take retrieves and deletes the state payload for the given token.
func (s *StateStore) Take(ctx context.Context, token string) (*OAuthState, error) {
	data, err := s.client.GetDel(ctx, stateKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}
		return nil, err
	}

	var state OAuthState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, ErrStateNotFound
	}
	return &state, nil
}
