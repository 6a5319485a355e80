package models

import "time"

// ConnectionStatus represents the lifecycle state of a bank connection.
// The state machine is pending -> active -> {expired, error} -> disconnected.
type ConnectionStatus string

const (
	ConnectionStatusPending      ConnectionStatus = "pending"
	ConnectionStatusActive       ConnectionStatus = "active"
	ConnectionStatusExpired      ConnectionStatus = "expired"
	ConnectionStatusError        ConnectionStatus = "error"
	ConnectionStatusDisconnected ConnectionStatus = "disconnected"
)

// BankConnection represents one OAuth grant with a provider institution.
// An active connection always holds a non-empty access token. TokenExpiresAt,
// once set, only moves forward; refresh is the only operation that replaces it.
//
// Connections are never hard-deleted: disconnecting nulls the tokens and sets
// status to disconnected so transaction provenance survives.
type BankConnection struct {
	Base
	UserID               uint             `gorm:"not null;index" json:"user_id"`
	Provider             string           `gorm:"not null" json:"provider"`
	ProviderConnectionID string           `gorm:"not null;index" json:"-"`
	InstitutionID        string           `json:"institution_id"`
	InstitutionName      string           `json:"institution_name"`
	AccessToken          string           `gorm:"type:text" json:"-"`
	RefreshToken         string           `gorm:"type:text" json:"-"`
	TokenExpiresAt       *time.Time       `json:"token_expires_at,omitempty"`
	Status               ConnectionStatus `gorm:"not null;default:'pending'" json:"status"`
	LastSyncAt           *time.Time       `json:"last_sync_at,omitempty"`
	LastError            string           `json:"last_error,omitempty"`

	Accounts []BankAccount `gorm:"foreignKey:ConnectionID" json:"accounts,omitempty"`
	SyncRuns []SyncRun     `gorm:"foreignKey:ConnectionID" json:"-"`
}

// TokenExpired reports whether the access token has passed its expiry.
// A connection without a recorded expiry is treated as not expired.
func (c *BankConnection) TokenExpired(now time.Time) bool {
	return c.TokenExpiresAt != nil && c.TokenExpiresAt.Before(now)
}
