package models

import "time"

// TransactionType represents the type of transaction
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

// Transaction represents a financial transaction in the system. Amount is
// always the unsigned magnitude in cents; Type carries the sign.
//
// Provider-sourced rows carry ProviderTransactionID, unique per
// (user, account) — the dedup key for re-syncs. Rows without a provider
// identifier (file imports) carry Fingerprint instead.
type Transaction struct {
	Base
	UserID      uint            `gorm:"not null;index;uniqueIndex:idx_tx_provider,priority:1" json:"user_id"`
	AccountID   uint            `gorm:"not null;index;uniqueIndex:idx_tx_provider,priority:2" json:"account_id"`
	CategoryID  *uint           `json:"category_id,omitempty"`
	Type        TransactionType `gorm:"not null" json:"type"`
	Amount      int64           `gorm:"type:bigint;not null" json:"amount"`
	Description string          `json:"description"`
	Date        time.Time       `gorm:"not null;index" json:"date"`
	Notes       string          `json:"notes,omitempty"`

	ProviderTransactionID *string `gorm:"uniqueIndex:idx_tx_provider,priority:3" json:"provider_transaction_id,omitempty"`
	Fingerprint           *string `gorm:"size:64;index" json:"-"`

	Account  Account   `gorm:"foreignKey:AccountID" json:"account,omitempty"`
	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}
