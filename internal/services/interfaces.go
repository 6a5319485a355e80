package services

import (
	"context"
	"time"

	"finbridge/internal/categorize"
	"finbridge/internal/models"
	"finbridge/internal/pagination"
	"finbridge/internal/provider"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(email, password, firstName, lastName string) (*models.User, error)
	GetUserByID(id uint) (*models.User, error)
	AttemptLogin(email, password string) (*models.User, error)
	StoreRefreshTokenHash(userID uint, tokenHash string) error
	GetRefreshTokenHash(userID uint) (string, error)
}

// CategoryServicer defines the contract for category-related business logic.
type CategoryServicer interface {
	CreateCategory(userID uint, name string, categoryType models.CategoryType, description, icon, color string) (*models.Category, error)
	GetUserCategories(userID uint, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error)
	GetCategoryByID(userID, categoryID uint) (*models.Category, error)
	DeleteCategory(userID, categoryID uint) error

	// GetOrCreateUncategorized returns the user's default category for the
	// given type, creating it if it does not exist yet.
	GetOrCreateUncategorized(userID uint, categoryType models.CategoryType) (*models.Category, error)
}

// TransactionFilter holds optional filter parameters for listing transactions.
type TransactionFilter struct {
	FromDate   *time.Time
	ToDate     *time.Time
	Type       *models.TransactionType
	CategoryID *uint
	AccountID  *uint
}

// TransactionServicer defines the contract for the transaction read side and
// user corrections.
type TransactionServicer interface {
	GetAccountTransactions(userID, accountID uint, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	GetUserTransactions(userID uint, page pagination.PageRequest, filter TransactionFilter) (*pagination.PageResponse[models.Transaction], error)
	GetTransactionByID(userID, transactionID uint) (*models.Transaction, error)

	// UpdateTransactionCategory records a user's category correction. These
	// corrections are what the merchant pattern learner learns from.
	UpdateTransactionCategory(userID, transactionID, categoryID uint) (*models.Transaction, error)
}

// ConnectionServicer owns the bank connection lifecycle: creation from the
// OAuth callback, token freshness, and disconnection.
type ConnectionServicer interface {
	CreateOrUpdateFromCallback(ctx context.Context, userID uint, meta *provider.Metadata, tokens *provider.TokenSet, accounts []provider.Account) (*models.BankConnection, error)
	GetConnection(userID, connectionID uint) (*models.BankConnection, error)
	ListConnections(userID uint) ([]models.BankConnection, error)
	ListLinkedAccounts(connectionID uint) ([]models.BankAccount, error)

	// EnsureFreshToken returns a valid access token for the connection,
	// refreshing (and persisting) it if expired. Refresh is serialized per
	// connection. Returns ErrTokenExpired when expired with no refresh
	// token; the caller records the failure against the connection.
	EnsureFreshToken(ctx context.Context, conn *models.BankConnection) (string, error)

	// Disconnect revokes the refresh token (best-effort), nulls stored
	// tokens, and sets status to disconnected. Rows are never deleted.
	Disconnect(ctx context.Context, userID, connectionID uint) error

	// FetchLinkedBalance proxies a live balance read for a linked account.
	FetchLinkedBalance(ctx context.Context, userID, connectionID, bankAccountID uint) (*provider.Balance, error)
}

// MappedTransaction is a provider transaction mapped to the internal shape,
// ready for import. Amount is the unsigned magnitude in cents; Type carries
// the sign.
type MappedTransaction struct {
	ProviderTransactionID string
	Type                  models.TransactionType
	Amount                int64
	Description           string
	Date                  time.Time
	Notes                 string

	// CategoryID, when set, overrides the default category for the row
	// (the categorization engine's auto-assign path).
	CategoryID *uint
}

// CategoryDefaults carries the per-type fallback categories every imported
// row receives when no better category was assigned.
type CategoryDefaults struct {
	Income  uint
	Expense uint
}

// ImportResult counts the outcome of one import batch.
type ImportResult struct {
	Imported int
	Skipped  int
	Failed   int
}

// ImportServicer deduplicates and persists mapped provider transactions.
type ImportServicer interface {
	ImportBatch(userID uint, account *models.Account, defaults CategoryDefaults, batch []MappedTransaction) ImportResult
}

// CategorizerServicer builds tenant snapshots and runs the categorization
// engine against them.
type CategorizerServicer interface {
	// BuildPatterns derives the merchant pattern map from the user's
	// transaction history. Only merchants seen at least twice are included.
	BuildPatterns(userID uint) (map[string]categorize.MerchantPattern, error)

	// Snapshot builds the engine input for one categorization batch.
	Snapshot(userID uint) (categorize.Snapshot, error)

	Categorize(userID uint, description string) (categorize.Result, error)
	CategorizeBatch(userID uint, descriptions []string) ([]categorize.Result, error)
}

// SyncResult is the outcome of one orchestrated sync run.
type SyncResult struct {
	SyncID       uint                 `json:"sync_id"`
	ConnectionID uint                 `json:"connection_id"`
	Status       models.SyncRunStatus `json:"status"`
	Fetched      int                  `json:"fetched"`
	Imported     int                  `json:"imported"`
	Skipped      int                  `json:"skipped"`
	Failed       int                  `json:"failed"`
	Error        string               `json:"error,omitempty"`
}

// SyncServicer orchestrates connection syncs.
type SyncServicer interface {
	// SyncConnection runs the full sync algorithm for one connection.
	// Orchestration failures are recorded on the SyncRun and the
	// connection and returned as a failed result, never as a bare error;
	// errors are reserved for fail-fast conditions (unknown connection,
	// inactive connection, overlapping run).
	SyncConnection(ctx context.Context, userID, connectionID uint) (*SyncResult, error)

	// SyncAllConnections fans SyncConnection out over every active
	// connection for the user. One connection's failure never cancels
	// the others.
	SyncAllConnections(ctx context.Context, userID uint) ([]SyncResult, error)

	ListSyncHistory(userID, connectionID uint, page pagination.PageRequest) (*pagination.PageResponse[models.SyncRun], error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID uint, action, resourceType string, resourceID uint, ipAddress string, changes map[string]interface{})
}
