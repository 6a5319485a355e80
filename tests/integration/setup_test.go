package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"finbridge/internal/cache"
	"finbridge/internal/categorize"
	"finbridge/internal/config"
	apperrors "finbridge/internal/errors"
	"finbridge/internal/handlers"
	"finbridge/internal/logger"
	"finbridge/internal/middleware"
	"finbridge/internal/models"
	"finbridge/internal/provider"
	"finbridge/internal/services"
	"finbridge/internal/validator"
)

// testApp holds the full application stack for integration tests. Provider is
// the scriptable stand-in for the open-banking API; States replaces the Redis
// state store with an in-memory one.
type testApp struct {
	DB       *gorm.DB
	Router   *gin.Engine
	Provider *stubProvider
	States   *memoryStateStore
}

// dbCounter ensures each test gets a unique in-memory database.
var dbCounter atomic.Int64

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

// stubProvider is a scriptable provider.Client. Accounts and transactions are
// set by tests before driving the HTTP flow.
type stubProvider struct {
	mu sync.Mutex

	accounts     []provider.Account
	transactions map[string][]provider.Transaction
	balances     map[string]provider.Balance
	revokeCalls  int
}

func newStubProvider() *stubProvider {
	return &stubProvider{
		transactions: make(map[string][]provider.Transaction),
		balances:     make(map[string]provider.Balance),
	}
}

func (s *stubProvider) BuildAuthorizationURL(state, nonce string) string {
	return "https://auth.test/?response_type=code&state=" + state + "&nonce=" + nonce
}

func (s *stubProvider) ExchangeCode(ctx context.Context, code string) (*provider.TokenSet, error) {
	return &provider.TokenSet{
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (s *stubProvider) Refresh(ctx context.Context, refreshToken string) (*provider.TokenSet, error) {
	return &provider.TokenSet{
		AccessToken:  "refreshed-access",
		RefreshToken: "refreshed-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (s *stubProvider) GetMetadata(ctx context.Context, accessToken string) (*provider.Metadata, error) {
	return &provider.Metadata{
		ProviderName:         "stub-provider",
		ProviderConnectionID: "stub-conn-1",
		InstitutionID:        "stub-bank",
		InstitutionName:      "Stub Bank",
	}, nil
}

func (s *stubProvider) ListAccounts(ctx context.Context, accessToken string) ([]provider.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts, nil
}

func (s *stubProvider) FetchTransactions(ctx context.Context, accessToken, providerAccountID string, from, to time.Time) ([]provider.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transactions[providerAccountID], nil
}

func (s *stubProvider) FetchBalance(ctx context.Context, accessToken, providerAccountID string) (*provider.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.balances[providerAccountID]; ok {
		return &b, nil
	}
	return nil, apperrors.ErrProviderUnavailable
}

func (s *stubProvider) Revoke(ctx context.Context, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeCalls++
	return nil
}

// memoryStateStore is an in-memory cache.StateStorer with the same single-use
// Take semantics as the Redis-backed store.
type memoryStateStore struct {
	mu     sync.Mutex
	states map[string]cache.OAuthState
}

func newMemoryStateStore() *memoryStateStore {
	return &memoryStateStore{states: make(map[string]cache.OAuthState)}
}

func (m *memoryStateStore) Put(ctx context.Context, token string, state cache.OAuthState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[token] = state
	return nil
}

func (m *memoryStateStore) Take(ctx context.Context, token string) (*cache.OAuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[token]
	if !ok {
		return nil, cache.ErrStateNotFound
	}
	delete(m.states, token)
	return &state, nil
}

// setupIsolatedDB creates an isolated in-memory SQLite database for a single test.
func setupIsolatedDB(t *testing.T) *gorm.DB {
	t.Helper()

	n := dbCounter.Add(1)
	dsn := fmt.Sprintf("file:integrationdb%d?mode=memory&cache=shared", n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	allModels := []interface{}{
		&models.User{},
		&models.Account{},
		&models.Category{},
		&models.Transaction{},
		&models.BankConnection{},
		&models.BankAccount{},
		&models.SyncRun{},
		&models.AuditLog{},
	}
	if err := db.AutoMigrate(allModels...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// setupApp creates a full application stack backed by an isolated in-memory
// SQLite database, a stubbed provider, and an in-memory OAuth state store.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	db := setupIsolatedDB(t)
	providerClient := newStubProvider()
	states := newMemoryStateStore()

	cfg := &config.Config{
		FrontendURL:       "http://frontend.test/banking",
		SyncMaxDuration:   time.Minute,
		SyncLookback:      90 * 24 * time.Hour,
		SyncFirstLookback: 2 * 365 * 24 * time.Hour,
	}

	// Services
	userService := services.NewUserService(db)
	categoryService := services.NewCategoryService(db)
	transactionService := services.NewTransactionService(db)
	auditService := services.NewAuditService(db)
	connectionService := services.NewConnectionService(db, providerClient)
	importService := services.NewImportService(db)
	categorizerService := services.NewCategorizerService(db, categorize.DefaultTaxonomy())
	syncService := services.NewSyncService(db, providerClient, connectionService, importService, categorizerService, categoryService, cfg)

	// Handlers
	authHandler := handlers.NewAuthHandler(userService, auditService)
	categoryHandler := handlers.NewCategoryHandler(categoryService)
	transactionHandler := handlers.NewTransactionHandler(transactionService, auditService)
	bankingHandler := handlers.NewBankingHandler(providerClient, states, connectionService, syncService, auditService, cfg.FrontendURL)
	categorizeHandler := handlers.NewCategorizeHandler(categorizerService)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())

	v1 := router.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	v1.GET("/banking/callback", bankingHandler.Callback)

	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	protected.GET("/profile", authHandler.GetProfile)

	banking := protected.Group("/banking")
	banking.GET("/link", bankingHandler.Link)
	banking.GET("/connections", bankingHandler.ListConnections)
	banking.GET("/connections/:id", bankingHandler.GetConnection)
	banking.POST("/connections/:id/sync", bankingHandler.Sync)
	banking.GET("/connections/:id/history", bankingHandler.SyncHistory)
	banking.DELETE("/connections/:id", bankingHandler.Disconnect)
	banking.GET("/connections/:id/accounts/:accountID/balance", bankingHandler.Balance)
	banking.POST("/sync", bankingHandler.SyncAll)

	transactions := protected.Group("/transactions")
	transactions.GET("", transactionHandler.GetTransactions)
	transactions.GET("/:id", transactionHandler.GetTransaction)
	transactions.PUT("/:id/category", transactionHandler.UpdateCategory)

	protected.GET("/accounts/:id/transactions", transactionHandler.GetAccountTransactions)

	categories := protected.Group("/categories")
	categories.POST("", categoryHandler.CreateCategory)
	categories.GET("", categoryHandler.GetCategories)
	categories.GET("/:id", categoryHandler.GetCategory)
	categories.DELETE("/:id", categoryHandler.DeleteCategory)

	protected.POST("/categorize", categorizeHandler.Preview)

	return &testApp{DB: db, Router: router, Provider: providerClient, States: states}
}

// request makes an HTTP request to the test router and returns the recorder.
func (app *testApp) request(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

// registerUser registers a new user and returns the access token, refresh
// token, and user ID.
func (app *testApp) registerUser(t *testing.T, email, password string) (accessToken, refreshToken string, userID uint) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q,"first_name":"Test","last_name":"User"}`, email, password)
	rec := app.request("POST", "/api/v1/auth/register", body, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	user := result["user"].(map[string]interface{})
	return result["access_token"].(string), result["refresh_token"].(string), uint(user["id"].(float64))
}

// loginUser logs in and returns the access and refresh tokens.
func (app *testApp) loginUser(t *testing.T, email, password string) (accessToken, refreshToken string) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	rec := app.request("POST", "/api/v1/auth/login", body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	return result["access_token"].(string), result["refresh_token"].(string)
}

// seedConnection inserts an active bank connection with one linked account
// directly into the database, bypassing the OAuth flow.
func (app *testApp) seedConnection(t *testing.T, userID uint, providerAccountID string) (*models.BankConnection, *models.BankAccount) {
	t.Helper()

	account := &models.Account{
		UserID:   userID,
		Name:     "Seeded Current Account",
		Type:     models.AccountTypeCurrent,
		Currency: "GBP",
	}
	if err := app.DB.Create(account).Error; err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}

	expiry := time.Now().Add(time.Hour)
	conn := &models.BankConnection{
		UserID:               userID,
		Provider:             "stub-provider",
		ProviderConnectionID: "seeded-conn",
		InstitutionID:        "stub-bank",
		InstitutionName:      "Stub Bank",
		AccessToken:          "seeded-access",
		RefreshToken:         "seeded-refresh",
		TokenExpiresAt:       &expiry,
		Status:               models.ConnectionStatusActive,
	}
	if err := app.DB.Create(conn).Error; err != nil {
		t.Fatalf("failed to seed connection: %v", err)
	}

	bankAccount := &models.BankAccount{
		ConnectionID:      conn.ID,
		AccountID:         account.ID,
		ProviderAccountID: providerAccountID,
		Name:              "Seeded Current Account",
		Currency:          "GBP",
	}
	if err := app.DB.Create(bankAccount).Error; err != nil {
		t.Fatalf("failed to seed bank account: %v", err)
	}

	return conn, bankAccount
}

// waitForTransactions polls until the user has the expected number of
// transactions, for flows where the import runs on a background goroutine.
func (app *testApp) waitForTransactions(t *testing.T, userID uint, want int64) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var count int64
		if err := app.DB.Model(&models.Transaction{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			t.Fatalf("failed to count transactions: %v", err)
		}
		if count >= want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d transactions", want)
}
