// Package errors provides custom error types for the FinBridge API.
// All service-layer errors should use AppError to ensure consistent,
// secure error responses that never leak internal details to clients.
package errors

import "net/http"

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string { return e.Message }

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is reports whether target is an AppError carrying the same code, so
// sentinels compare equal to their Wrap/WithMessage derivatives.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// Authentication & authorization errors.
var (
	ErrUnauthorized       = &AppError{Code: "UNAUTHORIZED", Message: "Authentication required", StatusCode: http.StatusUnauthorized}
	ErrInvalidCredentials = &AppError{Code: "INVALID_CREDENTIALS", Message: "Invalid email or password", StatusCode: http.StatusUnauthorized}
	ErrForbidden          = &AppError{Code: "FORBIDDEN", Message: "Access denied", StatusCode: http.StatusForbidden}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// User errors.
var (
	ErrUserNotFound   = &AppError{Code: "USER_NOT_FOUND", Message: "User not found", StatusCode: http.StatusNotFound}
	ErrDuplicateEmail = &AppError{Code: "DUPLICATE_EMAIL", Message: "A user with this email already exists", StatusCode: http.StatusConflict}
)

// Account & category errors.
var (
	ErrAccountNotFound  = &AppError{Code: "ACCOUNT_NOT_FOUND", Message: "Account not found", StatusCode: http.StatusNotFound}
	ErrCategoryNotFound = &AppError{Code: "CATEGORY_NOT_FOUND", Message: "Category not found", StatusCode: http.StatusNotFound}
)

// Transaction errors.
var (
	ErrTransactionNotFound = &AppError{Code: "TRANSACTION_NOT_FOUND", Message: "Transaction not found", StatusCode: http.StatusNotFound}
)

// Bank connection errors.
var (
	ErrConnectionNotFound  = &AppError{Code: "CONNECTION_NOT_FOUND", Message: "Bank connection not found", StatusCode: http.StatusNotFound}
	ErrConnectionNotActive = &AppError{Code: "CONNECTION_NOT_ACTIVE", Message: "Bank connection is not active", StatusCode: http.StatusConflict}
	ErrTokenExpired        = &AppError{Code: "TOKEN_EXPIRED", Message: "Access token expired and no refresh token is available; the connection must be re-linked", StatusCode: http.StatusConflict}
	ErrNoLinkedAccounts    = &AppError{Code: "NO_LINKED_ACCOUNTS", Message: "Bank connection has no linked accounts", StatusCode: http.StatusConflict}
	ErrSyncInProgress      = &AppError{Code: "SYNC_IN_PROGRESS", Message: "A sync is already running for this connection", StatusCode: http.StatusConflict}
	ErrInvalidOAuthState   = &AppError{Code: "INVALID_OAUTH_STATE", Message: "OAuth state token is missing, expired, or invalid", StatusCode: http.StatusBadRequest}
)

// Import errors. A conflict is not a true failure: the import layer folds it
// into the skipped count.
var (
	ErrImportConflict = &AppError{Code: "IMPORT_CONFLICT", Message: "Transaction already imported", StatusCode: http.StatusConflict}
)

// Provider errors. Unavailable covers network failures, timeouts, and 5xx
// responses and may be retried; Rejected covers 4xx responses and requires
// user action before retrying.
var (
	ErrProviderUnavailable = &AppError{Code: "PROVIDER_UNAVAILABLE", Message: "Banking provider is temporarily unavailable", StatusCode: http.StatusBadGateway}
	ErrProviderRejected    = &AppError{Code: "PROVIDER_REJECTED", Message: "Banking provider rejected the request", StatusCode: http.StatusBadGateway}
)
