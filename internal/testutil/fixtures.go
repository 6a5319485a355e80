package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"finbridge/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates a user with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestUserWithEmail creates a user with the given email.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hash),
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestAccount creates a current account with zero balance.
func CreateTestAccount(t *testing.T, db *gorm.DB, userID uint) *models.Account {
	t.Helper()

	account := &models.Account{
		UserID:   userID,
		Name:     fmt.Sprintf("Test Account %d", nextID()),
		Type:     models.AccountTypeCurrent,
		Currency: "GBP",
		IsActive: true,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}
	return account
}

// CreateTestCategory creates an expense category with a unique name.
func CreateTestCategory(t *testing.T, db *gorm.DB, userID uint) *models.Category {
	t.Helper()
	return CreateTestCategoryWithName(t, db, userID, fmt.Sprintf("Test Category %d", nextID()))
}

// CreateTestCategoryWithName creates an expense category with the given name.
func CreateTestCategoryWithName(t *testing.T, db *gorm.DB, userID uint, name string) *models.Category {
	t.Helper()

	category := &models.Category{
		UserID: userID,
		Name:   name,
		Type:   models.CategoryTypeExpense,
	}
	if err := db.Create(category).Error; err != nil {
		t.Fatalf("failed to create test category: %v", err)
	}
	return category
}

// CreateTestTransaction creates an expense transaction with the given
// description and category on the given date.
func CreateTestTransaction(t *testing.T, db *gorm.DB, userID, accountID uint, categoryID *uint, description string, date time.Time) *models.Transaction {
	t.Helper()

	tx := &models.Transaction{
		UserID:      userID,
		AccountID:   accountID,
		CategoryID:  categoryID,
		Type:        models.TransactionTypeExpense,
		Amount:      1299,
		Description: description,
		Date:        date,
	}
	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("failed to create test transaction: %v", err)
	}
	return tx
}

// CreateTestConnection creates an active bank connection with a far-future
// token expiry.
func CreateTestConnection(t *testing.T, db *gorm.DB, userID uint) *models.BankConnection {
	t.Helper()

	expiry := time.Now().Add(time.Hour)
	conn := &models.BankConnection{
		UserID:               userID,
		Provider:             "test-provider",
		ProviderConnectionID: fmt.Sprintf("conn-%d", nextID()),
		InstitutionID:        "test-bank",
		InstitutionName:      "Test Bank",
		AccessToken:          "access-token",
		RefreshToken:         "refresh-token",
		TokenExpiresAt:       &expiry,
		Status:               models.ConnectionStatusActive,
	}
	if err := db.Create(conn).Error; err != nil {
		t.Fatalf("failed to create test connection: %v", err)
	}
	return conn
}

// CreateTestBankAccount links a connection to an internal account.
func CreateTestBankAccount(t *testing.T, db *gorm.DB, connectionID, accountID uint) *models.BankAccount {
	t.Helper()

	ba := &models.BankAccount{
		ConnectionID:      connectionID,
		AccountID:         accountID,
		ProviderAccountID: fmt.Sprintf("provider-acct-%d", nextID()),
		Name:              "Test Current Account",
		Currency:          "GBP",
	}
	if err := db.Create(ba).Error; err != nil {
		t.Fatalf("failed to create test bank account: %v", err)
	}
	return ba
}
