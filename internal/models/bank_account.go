package models

import "time"

// BankAccount joins a BankConnection to an internal Account, carrying the
// provider-side identifiers needed to fetch data for it.
//
// ProviderAccountID is unique within a connection. SyncFromDate is the sync
// watermark: it only advances, and only after a successful import of that
// account's window.
type BankAccount struct {
	Base
	ConnectionID      uint       `gorm:"not null;uniqueIndex:idx_bank_account_provider,priority:1" json:"connection_id"`
	AccountID         uint       `gorm:"not null;index" json:"account_id"`
	ProviderAccountID string     `gorm:"not null;uniqueIndex:idx_bank_account_provider,priority:2" json:"-"`
	Name              string     `json:"name"`
	Mask              string     `json:"mask"`
	IBAN              string     `json:"iban,omitempty"`
	SortCode          string     `json:"sort_code,omitempty"`
	Currency          string     `json:"currency"`
	SyncFromDate      *time.Time `json:"sync_from_date,omitempty"`
	LastSyncedAt      *time.Time `json:"last_synced_at,omitempty"`

	Connection BankConnection `gorm:"foreignKey:ConnectionID" json:"-"`
	Account    Account        `gorm:"foreignKey:AccountID" json:"account,omitempty"`
}
