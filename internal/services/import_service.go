package services

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"finbridge/internal/categorize"
	apperrors "finbridge/internal/errors"
	"finbridge/internal/logger"
	"finbridge/internal/models"
)

// importService deduplicates and persists mapped provider transactions.
type importService struct {
	db *gorm.DB
}

// NewImportService creates a new ImportServicer.
func NewImportService(db *gorm.DB) ImportServicer {
	return &importService{db: db}
}

// ImportBatch imports the mapped transactions into the account, skipping
// duplicates and counting per-row failures without aborting the batch.
// Rows are processed in provider order.
func (s *importService) ImportBatch(userID uint, account *models.Account, defaults CategoryDefaults, batch []MappedTransaction) ImportResult {
	var result ImportResult

	for _, mt := range batch {
		err := s.importOne(userID, account, defaults, mt)
		switch {
		case err == nil:
			result.Imported++
		case errors.Is(err, apperrors.ErrImportConflict):
			result.Skipped++
		default:
			result.Failed++
			logger.Get().Warnw("failed to import transaction",
				"user_id", userID,
				"account_id", account.ID,
				"provider_transaction_id", mt.ProviderTransactionID,
				"error", err,
			)
		}
	}
	return result
}

// importOne inserts a single transaction unless its dedup key already exists.
// Provider data for an existing transaction is immutable once imported: a
// match is skipped, never overwritten, so user edits survive re-syncs.
func (s *importService) importOne(userID uint, account *models.Account, defaults CategoryDefaults, mt MappedTransaction) error {
	if mt.Date.IsZero() {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "transaction has no date")
	}
	if mt.Amount < 0 {
		return apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be an unsigned magnitude")
	}

	tx := &models.Transaction{
		UserID:      userID,
		AccountID:   account.ID,
		Type:        mt.Type,
		Amount:      mt.Amount,
		Description: mt.Description,
		Date:        mt.Date,
		Notes:       mt.Notes,
		CategoryID:  s.resolveCategory(mt, defaults),
	}

	if mt.ProviderTransactionID != "" {
		dup, err := s.exists("provider_transaction_id = ?", userID, account.ID, mt.ProviderTransactionID)
		if err != nil {
			return err
		}
		if dup {
			return apperrors.ErrImportConflict
		}
		id := mt.ProviderTransactionID
		tx.ProviderTransactionID = &id
	} else {
		fp := Fingerprint(account.ID, mt)
		dup, err := s.exists("fingerprint = ?", userID, account.ID, fp)
		if err != nil {
			return err
		}
		if dup {
			return apperrors.ErrImportConflict
		}
		tx.Fingerprint = &fp
	}

	if err := s.db.Create(tx).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

func (s *importService) exists(cond string, userID, accountID uint, value string) (bool, error) {
	var count int64
	err := s.db.Model(&models.Transaction{}).
		Where("user_id = ? AND account_id = ?", userID, accountID).
		Where(cond, value).
		Count(&count).Error
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return count > 0, nil
}

// resolveCategory returns the row's category: the one assigned upstream by
// the categorization engine when present, otherwise the per-type default.
// Every imported row ends up with a non-null category.
func (s *importService) resolveCategory(mt MappedTransaction, defaults CategoryDefaults) *uint {
	if mt.CategoryID != nil {
		return mt.CategoryID
	}
	var id uint
	if mt.Type == models.TransactionTypeIncome {
		id = defaults.Income
	} else {
		id = defaults.Expense
	}
	return &id
}

// Fingerprint is the fallback dedup key for transactions lacking a stable
// provider identifier: SHA-256 over the account id, the date truncated to a
// calendar day (UTC), the amount in cents, and the normalized description.
func Fingerprint(accountID uint, mt MappedTransaction) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%s|%s|%d|%s",
		accountID,
		mt.Date.UTC().Format("2006-01-02"),
		mt.Type,
		mt.Amount,
		categorize.NormalizeDescription(mt.Description),
	)))
	return hex.EncodeToString(sum[:])
}
