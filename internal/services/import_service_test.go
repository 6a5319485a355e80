package services

import (
	"testing"
	"time"

	"finbridge/internal/models"
	"finbridge/internal/testutil"
)

func setupImportTest(t *testing.T) (ImportServicer, *models.Account, CategoryDefaults, uint, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	svc := NewImportService(db)
	user := testutil.CreateTestUser(t, db)
	account := testutil.CreateTestAccount(t, db, user.ID)

	income := testutil.CreateTestCategoryWithName(t, db, user.ID, "Uncategorized Income")
	expense := testutil.CreateTestCategoryWithName(t, db, user.ID, "Uncategorized Expense")
	defaults := CategoryDefaults{Income: income.ID, Expense: expense.ID}

	return svc, account, defaults, user.ID, func() { testutil.TeardownTestDB(t, db) }
}

func TestImportBatch(t *testing.T) {
	date := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("imports_new_transactions", func(t *testing.T) {
		svc, account, defaults, userID, teardown := setupImportTest(t)
		defer teardown()

		batch := []MappedTransaction{
			{ProviderTransactionID: "tx-1", Type: models.TransactionTypeExpense, Amount: 1299, Description: "TESCO STORES", Date: date},
			{ProviderTransactionID: "tx-2", Type: models.TransactionTypeIncome, Amount: 250000, Description: "ACME PAYROLL", Date: date},
		}

		result := svc.ImportBatch(userID, account, defaults, batch)
		if result.Imported != 2 || result.Skipped != 0 || result.Failed != 0 {
			t.Fatalf("expected 2/0/0, got %d/%d/%d", result.Imported, result.Skipped, result.Failed)
		}
	})

	t.Run("reimport_is_idempotent", func(t *testing.T) {
		svc, account, defaults, userID, teardown := setupImportTest(t)
		defer teardown()

		batch := []MappedTransaction{
			{ProviderTransactionID: "tx-1", Type: models.TransactionTypeExpense, Amount: 1299, Description: "TESCO STORES", Date: date},
		}

		first := svc.ImportBatch(userID, account, defaults, batch)
		if first.Imported != 1 {
			t.Fatalf("expected first import to succeed, got %+v", first)
		}

		second := svc.ImportBatch(userID, account, defaults, batch)
		if second.Imported != 0 || second.Skipped != 1 || second.Failed != 0 {
			t.Errorf("expected 0/1/0 on re-import, got %d/%d/%d", second.Imported, second.Skipped, second.Failed)
		}
	})

	t.Run("first_import_wins", func(t *testing.T) {
		svc, account, defaults, userID, teardown := setupImportTest(t)
		defer teardown()

		original := []MappedTransaction{
			{ProviderTransactionID: "tx-1", Type: models.TransactionTypeExpense, Amount: 1299, Description: "ORIGINAL DESCRIPTION", Date: date},
		}
		svc.ImportBatch(userID, account, defaults, original)

		// The provider re-sends the same transaction with amended fields;
		// the stored row must not change.
		amended := []MappedTransaction{
			{ProviderTransactionID: "tx-1", Type: models.TransactionTypeExpense, Amount: 9999, Description: "AMENDED DESCRIPTION", Date: date},
		}
		result := svc.ImportBatch(userID, account, defaults, amended)
		if result.Skipped != 1 {
			t.Fatalf("expected amended duplicate to be skipped, got %+v", result)
		}
	})

	t.Run("fingerprint_dedup_without_provider_id", func(t *testing.T) {
		svc, account, defaults, userID, teardown := setupImportTest(t)
		defer teardown()

		row := MappedTransaction{Type: models.TransactionTypeExpense, Amount: 450, Description: "CORNER SHOP", Date: date}

		first := svc.ImportBatch(userID, account, defaults, []MappedTransaction{row})
		if first.Imported != 1 {
			t.Fatalf("expected fingerprint row to import, got %+v", first)
		}

		second := svc.ImportBatch(userID, account, defaults, []MappedTransaction{row})
		if second.Skipped != 1 {
			t.Errorf("expected identical fingerprint row to be skipped, got %+v", second)
		}

		// Same description and date but a different amount is a distinct
		// transaction, not a duplicate.
		different := MappedTransaction{Type: models.TransactionTypeExpense, Amount: 451, Description: "CORNER SHOP", Date: date}
		third := svc.ImportBatch(userID, account, defaults, []MappedTransaction{different})
		if third.Imported != 1 {
			t.Errorf("expected different amount to import, got %+v", third)
		}
	})

	t.Run("row_without_date_fails_without_aborting_batch", func(t *testing.T) {
		svc, account, defaults, userID, teardown := setupImportTest(t)
		defer teardown()

		batch := []MappedTransaction{
			{ProviderTransactionID: "tx-bad", Type: models.TransactionTypeExpense, Amount: 100, Description: "NO DATE"},
			{ProviderTransactionID: "tx-good", Type: models.TransactionTypeExpense, Amount: 200, Description: "HAS DATE", Date: date},
		}

		result := svc.ImportBatch(userID, account, defaults, batch)
		if result.Imported != 1 || result.Failed != 1 {
			t.Errorf("expected 1 imported and 1 failed, got %+v", result)
		}
	})

	t.Run("applies_default_category_by_type", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewImportService(db)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccount(t, db, user.ID)
		income := testutil.CreateTestCategoryWithName(t, db, user.ID, "Uncategorized Income")
		expense := testutil.CreateTestCategoryWithName(t, db, user.ID, "Uncategorized Expense")
		defaults := CategoryDefaults{Income: income.ID, Expense: expense.ID}

		svc.ImportBatch(user.ID, account, defaults, []MappedTransaction{
			{ProviderTransactionID: "tx-exp", Type: models.TransactionTypeExpense, Amount: 100, Description: "SHOP", Date: date},
			{ProviderTransactionID: "tx-inc", Type: models.TransactionTypeIncome, Amount: 200, Description: "PAYROLL", Date: date},
		})

		var exp, inc models.Transaction
		testutil.AssertNoError(t, db.First(&exp, "provider_transaction_id = ?", "tx-exp").Error)
		testutil.AssertNoError(t, db.First(&inc, "provider_transaction_id = ?", "tx-inc").Error)

		if exp.CategoryID == nil || *exp.CategoryID != expense.ID {
			t.Errorf("expected expense default %d, got %v", expense.ID, exp.CategoryID)
		}
		if inc.CategoryID == nil || *inc.CategoryID != income.ID {
			t.Errorf("expected income default %d, got %v", income.ID, inc.CategoryID)
		}
	})

	t.Run("engine_assignment_overrides_default", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewImportService(db)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccount(t, db, user.ID)
		expense := testutil.CreateTestCategoryWithName(t, db, user.ID, "Uncategorized Expense")
		groceries := testutil.CreateTestCategoryWithName(t, db, user.ID, "Groceries")
		defaults := CategoryDefaults{Income: expense.ID, Expense: expense.ID}

		svc.ImportBatch(user.ID, account, defaults, []MappedTransaction{
			{ProviderTransactionID: "tx-1", Type: models.TransactionTypeExpense, Amount: 100, Description: "TESCO", Date: date, CategoryID: &groceries.ID},
		})

		var tx models.Transaction
		testutil.AssertNoError(t, db.First(&tx, "provider_transaction_id = ?", "tx-1").Error)
		if tx.CategoryID == nil || *tx.CategoryID != groceries.ID {
			t.Errorf("expected engine-assigned category %d, got %v", groceries.ID, tx.CategoryID)
		}
	})
}

func TestFingerprint(t *testing.T) {
	date := time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)

	base := MappedTransaction{Type: models.TransactionTypeExpense, Amount: 450, Description: "POS CORNER SHOP", Date: date}

	t.Run("stable", func(t *testing.T) {
		if Fingerprint(1, base) != Fingerprint(1, base) {
			t.Error("expected identical inputs to produce identical fingerprints")
		}
	})

	t.Run("normalized_description_variants_collide", func(t *testing.T) {
		variant := base
		variant.Description = "pos  corner   shop."
		if Fingerprint(1, base) != Fingerprint(1, variant) {
			t.Error("expected normalized description variants to share a fingerprint")
		}
	})

	t.Run("distinct_inputs_diverge", func(t *testing.T) {
		otherAmount := base
		otherAmount.Amount = 451
		otherDay := base
		otherDay.Date = date.AddDate(0, 0, 1)

		if Fingerprint(1, base) == Fingerprint(1, otherAmount) {
			t.Error("expected different amounts to produce different fingerprints")
		}
		if Fingerprint(1, base) == Fingerprint(1, otherDay) {
			t.Error("expected different days to produce different fingerprints")
		}
		if Fingerprint(1, base) == Fingerprint(2, base) {
			t.Error("expected different accounts to produce different fingerprints")
		}
	})
}
