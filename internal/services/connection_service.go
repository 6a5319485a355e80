package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"gorm.io/gorm"

	apperrors "finbridge/internal/errors"
	"finbridge/internal/logger"
	"finbridge/internal/models"
	"finbridge/internal/provider"
)

// connectionService owns the bank connection lifecycle.
type connectionService struct {
	db       *gorm.DB
	provider provider.Client

	// refreshLocks serializes token refresh per connection id. Provider
	// refresh tokens are single-use, so two concurrent syncs must never
	// both redeem the same stale token.
	refreshLocks sync.Map // map[uint]*sync.Mutex
}

// NewConnectionService creates a new ConnectionServicer.
func NewConnectionService(db *gorm.DB, providerClient provider.Client) ConnectionServicer {
	return &connectionService{db: db, provider: providerClient}
}

func (s *connectionService) lockFor(connectionID uint) *sync.Mutex {
	mu, _ := s.refreshLocks.LoadOrStore(connectionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// CreateOrUpdateFromCallback creates a connection and its linked accounts
// from a successful OAuth callback, or refreshes an existing connection when
// the user re-links the same institution.
func (s *connectionService) CreateOrUpdateFromCallback(
	ctx context.Context,
	userID uint,
	meta *provider.Metadata,
	tokens *provider.TokenSet,
	accounts []provider.Account,
) (*models.BankConnection, error) {
	var conn *models.BankConnection

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.BankConnection
		err := tx.Where("user_id = ? AND provider_connection_id = ?", userID, meta.ProviderConnectionID).
			First(&existing).Error

		switch {
		case err == nil:
			existing.AccessToken = tokens.AccessToken
			existing.RefreshToken = tokens.RefreshToken
			existing.TokenExpiresAt = &tokens.ExpiresAt
			existing.Status = models.ConnectionStatusActive
			existing.LastError = ""
			if err := tx.Save(&existing).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			conn = &existing

		case errors.Is(err, gorm.ErrRecordNotFound):
			created := &models.BankConnection{
				UserID:               userID,
				Provider:             meta.ProviderName,
				ProviderConnectionID: meta.ProviderConnectionID,
				InstitutionID:        meta.InstitutionID,
				InstitutionName:      meta.InstitutionName,
				AccessToken:          tokens.AccessToken,
				RefreshToken:         tokens.RefreshToken,
				TokenExpiresAt:       &tokens.ExpiresAt,
				Status:               models.ConnectionStatusActive,
			}
			if err := tx.Create(created).Error; err != nil {
				return apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
			conn = created

		default:
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		return s.linkAccounts(tx, userID, conn, accounts)
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// linkAccounts upserts the linked-account rows for the provider accounts,
// creating an internal account for each provider account seen for the first
// time.
func (s *connectionService) linkAccounts(tx *gorm.DB, userID uint, conn *models.BankConnection, accounts []provider.Account) error {
	for _, pa := range accounts {
		var existing models.BankAccount
		err := tx.Where("connection_id = ? AND provider_account_id = ?", conn.ID, pa.ProviderAccountID).
			First(&existing).Error
		if err == nil {
			continue // already linked; watermark and internal account survive re-links
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		account := &models.Account{
			UserID:   userID,
			Name:     pa.Name,
			Type:     provider.NormalizeAccountType(pa.Type),
			Currency: pa.Currency,
			IsActive: true,
		}
		if err := tx.Create(account).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		linked := &models.BankAccount{
			ConnectionID:      conn.ID,
			AccountID:         account.ID,
			ProviderAccountID: pa.ProviderAccountID,
			Name:              pa.Name,
			Mask:              pa.Mask,
			IBAN:              pa.IBAN,
			SortCode:          pa.SortCode,
			Currency:          pa.Currency,
		}
		if err := tx.Create(linked).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	return nil
}

// GetConnection retrieves a connection by ID for a specific user
func (s *connectionService) GetConnection(userID, connectionID uint) (*models.BankConnection, error) {
	var conn models.BankConnection
	if err := s.db.Where("id = ? AND user_id = ?", connectionID, userID).First(&conn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrConnectionNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &conn, nil
}

// ListConnections lists all of a user's connections, newest first.
func (s *connectionService) ListConnections(userID uint) ([]models.BankConnection, error) {
	var conns []models.BankConnection
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&conns).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return conns, nil
}

// ListLinkedAccounts lists the linked accounts of a connection.
func (s *connectionService) ListLinkedAccounts(connectionID uint) ([]models.BankAccount, error) {
	var accounts []models.BankAccount
	if err := s.db.Where("connection_id = ?", connectionID).Order("id").Find(&accounts).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return accounts, nil
}

// EnsureFreshToken returns a valid access token for the connection,
// refreshing it first if expired. The refresh is serialized per connection
// and the rotated tokens are persisted before the lock is released.
func (s *connectionService) EnsureFreshToken(ctx context.Context, conn *models.BankConnection) (string, error) {
	if !conn.TokenExpired(time.Now()) {
		return conn.AccessToken, nil
	}

	mu := s.lockFor(conn.ID)
	mu.Lock()
	defer mu.Unlock()

	// Another sync may have refreshed while we waited on the lock.
	var current models.BankConnection
	if err := s.db.First(&current, conn.ID).Error; err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if !current.TokenExpired(time.Now()) {
		*conn = current
		return current.AccessToken, nil
	}

	if current.RefreshToken == "" {
		return "", apperrors.ErrTokenExpired
	}

	tokens, err := s.provider.Refresh(ctx, current.RefreshToken)
	if err != nil {
		return "", err
	}

	current.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		current.RefreshToken = tokens.RefreshToken
	}
	current.TokenExpiresAt = &tokens.ExpiresAt
	current.Status = models.ConnectionStatusActive

	if err := s.db.Save(&current).Error; err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	*conn = current
	return current.AccessToken, nil
}

// Disconnect revokes the refresh token with the provider (best-effort),
// nulls the stored tokens, and marks the connection disconnected. The
// connection row and its linked accounts are kept so transaction provenance
// survives.
func (s *connectionService) Disconnect(ctx context.Context, userID, connectionID uint) error {
	conn, err := s.GetConnection(userID, connectionID)
	if err != nil {
		return err
	}

	if conn.RefreshToken != "" {
		if err := s.provider.Revoke(ctx, conn.RefreshToken); err != nil {
			logger.Get().Warnw("failed to revoke refresh token with provider",
				"connection_id", conn.ID,
				"error", err,
			)
		}
	}

	updates := map[string]interface{}{
		"access_token":  "",
		"refresh_token": "",
		"status":        models.ConnectionStatusDisconnected,
	}
	if err := s.db.Model(conn).Updates(updates).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// FetchLinkedBalance proxies a live balance read for a linked account.
func (s *connectionService) FetchLinkedBalance(ctx context.Context, userID, connectionID, bankAccountID uint) (*provider.Balance, error) {
	conn, err := s.GetConnection(userID, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.Status != models.ConnectionStatusActive {
		return nil, apperrors.ErrConnectionNotActive
	}

	var linked models.BankAccount
	if err := s.db.Where("id = ? AND connection_id = ?", bankAccountID, connectionID).First(&linked).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	token, err := s.EnsureFreshToken(ctx, conn)
	if err != nil {
		return nil, err
	}
	return s.provider.FetchBalance(ctx, token, linked.ProviderAccountID)
}
