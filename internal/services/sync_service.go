package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"gorm.io/gorm"

	"finbridge/internal/categorize"
	"finbridge/internal/config"
	apperrors "finbridge/internal/errors"
	"finbridge/internal/logger"
	"finbridge/internal/models"
	"finbridge/internal/pagination"
	"finbridge/internal/provider"
)

// syncService orchestrates full sync runs: token freshness, per-account
// transaction fetch, categorization, import, and watermark advancement.
type syncService struct {
	db          *gorm.DB
	client      provider.Client
	connections ConnectionServicer
	importer    ImportServicer
	categorizer CategorizerServicer
	categories  CategoryServicer

	maxDuration   time.Duration
	lookback      time.Duration
	firstLookback time.Duration
}

// NewSyncService creates a new SyncServicer.
func NewSyncService(db *gorm.DB, client provider.Client, connections ConnectionServicer, importer ImportServicer, categorizer CategorizerServicer, categories CategoryServicer, cfg *config.Config) SyncServicer {
	return &syncService{
		db:            db,
		client:        client,
		connections:   connections,
		importer:      importer,
		categorizer:   categorizer,
		categories:    categories,
		maxDuration:   cfg.SyncMaxDuration,
		lookback:      cfg.SyncLookback,
		firstLookback: cfg.SyncFirstLookback,
	}
}

// SyncConnection runs one sync for the connection. Account-level failures
// are isolated: a failing account is counted and logged, the rest of the
// run proceeds, and the run still completes. Only orchestration-level
// failures (token refresh, no linked accounts, an exhausted time budget)
// fail the run as a whole.
func (s *syncService) SyncConnection(ctx context.Context, userID, connectionID uint) (*SyncResult, error) {
	conn, err := s.connections.GetConnection(userID, connectionID)
	if err != nil {
		return nil, err
	}
	if conn.Status != models.ConnectionStatusActive {
		return nil, apperrors.ErrConnectionNotActive
	}

	run, err := s.beginRun(conn.ID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.maxDuration)
	defer cancel()

	accessToken, err := s.connections.EnsureFreshToken(ctx, conn)
	if err != nil {
		return s.failRun(run, conn, err), nil
	}

	bankAccounts, err := s.connections.ListLinkedAccounts(conn.ID)
	if err != nil {
		return s.failRun(run, conn, err), nil
	}
	if len(bankAccounts) == 0 {
		return s.failRun(run, conn, apperrors.ErrNoLinkedAccounts), nil
	}

	defaults, err := s.categoryDefaults(userID)
	if err != nil {
		return s.failRun(run, conn, err), nil
	}

	now := time.Now()
	var accountFailures int
	for i := range bankAccounts {
		if ctx.Err() != nil {
			break
		}
		ba := &bankAccounts[i]
		if err := s.syncAccount(ctx, userID, accessToken, ba, defaults, now, run); err != nil {
			accountFailures++
			run.Failed++
			logger.Get().Warnw("account sync failed",
				"connection_id", conn.ID,
				"bank_account_id", ba.ID,
				"error", err,
			)
		}
	}

	// A run that ran out of its time budget is abandoned, not completed.
	// Counts gathered so far stay on the failed run.
	if err := ctx.Err(); err != nil {
		return s.failRun(run, conn, fmt.Errorf("sync run abandoned: %w", err)), nil
	}

	return s.completeRun(run, conn, accountFailures, len(bankAccounts), now), nil
}

// syncAccount fetches one account's window, categorizes, imports, and
// advances the watermark. The watermark moves only when the whole pipeline
// for the account succeeded, so a failed fetch is retried from the same
// point on the next run.
func (s *syncService) syncAccount(ctx context.Context, userID uint, accessToken string, ba *models.BankAccount, defaults CategoryDefaults, now time.Time, run *models.SyncRun) error {
	var account models.Account
	if err := s.db.First(&account, "id = ? AND user_id = ?", ba.AccountID, userID).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	from := s.windowStart(ba, now)
	txns, err := s.client.FetchTransactions(ctx, accessToken, ba.ProviderAccountID, from, now)
	if err != nil {
		return err
	}
	run.Fetched += len(txns)

	batch := mapTransactions(txns)
	s.applyCategorization(userID, batch)

	result := s.importer.ImportBatch(userID, &account, defaults, batch)
	run.Imported += result.Imported
	run.Skipped += result.Skipped
	run.Failed += result.Failed

	ba.SyncFromDate = &now
	ba.LastSyncedAt = &now
	if err := s.db.Model(ba).Updates(map[string]interface{}{
		"sync_from_date": now,
		"last_synced_at": now,
	}).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// windowStart picks the fetch window start: the account watermark when one
// exists, otherwise a lookback from now. A connection that has never synced
// uses the long first-sync lookback.
func (s *syncService) windowStart(ba *models.BankAccount, now time.Time) time.Time {
	if ba.SyncFromDate != nil {
		return *ba.SyncFromDate
	}
	if ba.LastSyncedAt == nil {
		return now.Add(-s.firstLookback)
	}
	return now.Add(-s.lookback)
}

// applyCategorization runs the engine over the batch and attaches the
// category for auto-assign results only. Suggest and manual results leave
// the row on the per-type default.
func (s *syncService) applyCategorization(userID uint, batch []MappedTransaction) {
	if len(batch) == 0 {
		return
	}
	descriptions := make([]string, len(batch))
	for i, mt := range batch {
		descriptions[i] = mt.Description
	}
	results, err := s.categorizer.CategorizeBatch(userID, descriptions)
	if err != nil {
		// Categorization is best-effort during sync: rows fall back to
		// the default category and remain correctable.
		logger.Get().Warnw("categorization failed during sync", "user_id", userID, "error", err)
		return
	}
	for i := range batch {
		r := results[i]
		if r.Action == categorize.ActionAutoAssign && r.SuggestedCategoryID != nil {
			batch[i].CategoryID = r.SuggestedCategoryID
		}
	}
}

func (s *syncService) categoryDefaults(userID uint) (CategoryDefaults, error) {
	income, err := s.categories.GetOrCreateUncategorized(userID, models.CategoryTypeIncome)
	if err != nil {
		return CategoryDefaults{}, err
	}
	expense, err := s.categories.GetOrCreateUncategorized(userID, models.CategoryTypeExpense)
	if err != nil {
		return CategoryDefaults{}, err
	}
	return CategoryDefaults{Income: income.ID, Expense: expense.ID}, nil
}

// beginRun opens a SyncRun for the connection, refusing when another run is
// already in progress. The guard and the insert share one transaction so two
// concurrent callers cannot both slip past the check.
func (s *syncService) beginRun(connectionID uint) (*models.SyncRun, error) {
	run := &models.SyncRun{
		ConnectionID: connectionID,
		StartedAt:    time.Now(),
		Status:       models.SyncRunStatusInProgress,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.SyncRun{}).
			Where("connection_id = ? AND status = ?", connectionID, models.SyncRunStatusInProgress).
			Count(&count).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if count > 0 {
			return apperrors.ErrSyncInProgress
		}
		if err := tx.Create(run).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// failRun closes the run as failed and records the failure on the
// connection. Only an unrecoverable token failure flips the connection
// status; transient failures leave it active so the next sync retries.
func (s *syncService) failRun(run *models.SyncRun, conn *models.BankConnection, cause error) *SyncResult {
	now := time.Now()
	run.Status = models.SyncRunStatusFailed
	run.CompletedAt = &now
	run.ErrorMessage = cause.Error()
	if err := s.db.Save(run).Error; err != nil {
		logger.Get().Errorw("failed to persist failed sync run", "sync_id", run.ID, "error", err)
	}

	updates := map[string]interface{}{"last_error": cause.Error()}
	if errors.Is(cause, apperrors.ErrTokenExpired) {
		updates["status"] = models.ConnectionStatusExpired
	}
	if err := s.db.Model(conn).Updates(updates).Error; err != nil {
		logger.Get().Errorw("failed to record connection error", "connection_id", conn.ID, "error", err)
	}

	return s.result(run, cause.Error())
}

// completeRun closes the run. Partial account failures do not fail the run;
// they are surfaced through the counts and the connection's last_error.
func (s *syncService) completeRun(run *models.SyncRun, conn *models.BankConnection, accountFailures, accountTotal int, syncedAt time.Time) *SyncResult {
	now := time.Now()
	run.Status = models.SyncRunStatusCompleted
	run.CompletedAt = &now
	if accountFailures > 0 {
		run.ErrorMessage = fmt.Sprintf("%d of %d accounts failed to sync", accountFailures, accountTotal)
	}
	if err := s.db.Save(run).Error; err != nil {
		logger.Get().Errorw("failed to persist sync run", "sync_id", run.ID, "error", err)
	}

	updates := map[string]interface{}{
		"last_sync_at": syncedAt,
		"last_error":   run.ErrorMessage,
	}
	if err := s.db.Model(conn).Updates(updates).Error; err != nil {
		logger.Get().Errorw("failed to record sync completion", "connection_id", conn.ID, "error", err)
	}

	return s.result(run, run.ErrorMessage)
}

func (s *syncService) result(run *models.SyncRun, errMsg string) *SyncResult {
	return &SyncResult{
		SyncID:       run.ID,
		ConnectionID: run.ConnectionID,
		Status:       run.Status,
		Fetched:      run.Fetched,
		Imported:     run.Imported,
		Skipped:      run.Skipped,
		Failed:       run.Failed,
		Error:        errMsg,
	}
}

// SyncAllConnections fans out over the user's active connections. Each
// connection syncs in its own goroutine; all of them are waited on and a
// result is produced for every one, failures included.
func (s *syncService) SyncAllConnections(ctx context.Context, userID uint) ([]SyncResult, error) {
	var conns []models.BankConnection
	if err := s.db.Where("user_id = ? AND status = ?", userID, models.ConnectionStatusActive).
		Find(&conns).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	results := make([]SyncResult, len(conns))
	var wg sync.WaitGroup
	for i := range conns {
		wg.Add(1)
		go func(i int, connectionID uint) {
			defer wg.Done()
			res, err := s.SyncConnection(ctx, userID, connectionID)
			if err != nil {
				results[i] = SyncResult{
					ConnectionID: connectionID,
					Status:       models.SyncRunStatusFailed,
					Error:        err.Error(),
				}
				return
			}
			results[i] = *res
		}(i, conns[i].ID)
	}
	wg.Wait()

	return results, nil
}

// ListSyncHistory returns the connection's sync runs, newest first.
func (s *syncService) ListSyncHistory(userID, connectionID uint, page pagination.PageRequest) (*pagination.PageResponse[models.SyncRun], error) {
	if _, err := s.connections.GetConnection(userID, connectionID); err != nil {
		return nil, err
	}

	page.Defaults()

	query := s.db.Model(&models.SyncRun{}).Where("connection_id = ?", connectionID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var runs []models.SyncRun
	if err := query.Order("started_at DESC").
		Scopes(pagination.Paginate(page)).
		Find(&runs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	resp := pagination.NewPageResponse(runs, page.Page, page.PageSize, total)
	return &resp, nil
}

// mapTransactions converts provider transactions to the internal shape:
// the signed float amount becomes a type plus an unsigned cent magnitude.
func mapTransactions(txns []provider.Transaction) []MappedTransaction {
	batch := make([]MappedTransaction, 0, len(txns))
	for _, t := range txns {
		mt := MappedTransaction{
			ProviderTransactionID: t.ID,
			Description:           t.Description,
			Date:                  t.Timestamp,
			Notes:                 t.Reference,
		}
		cents := toCents(t.Amount)
		if cents < 0 {
			mt.Type = models.TransactionTypeExpense
			mt.Amount = -cents
		} else {
			mt.Type = models.TransactionTypeIncome
			mt.Amount = cents
		}
		batch = append(batch, mt)
	}
	return batch
}

// toCents converts a decimal amount to integer cents, rounding halves away
// from zero.
func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
