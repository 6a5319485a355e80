package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"finbridge/internal/cache"
	"finbridge/internal/categorize"
	"finbridge/internal/config"
	"finbridge/internal/database"
	"finbridge/internal/handlers"
	"finbridge/internal/logger"
	"finbridge/internal/middleware"
	"finbridge/internal/provider"
	"finbridge/internal/services"
	"finbridge/internal/validator"
)

// @title           FinBridge API
// @version         1.0
// @description     FinBridge links bank accounts over OAuth, synchronizes their transactions, and categorizes them with a layered rule and learning engine.
// @termsOfService  http://swagger.io/terms/

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dbManager, err := database.NewManager(appConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	redisClient, err := cache.NewClient(appConfig.RedisAddr, appConfig.RedisPassword, appConfig.RedisDB)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()
	stateStore := cache.NewStateStore(redisClient, appConfig.OAuthStateTTL)

	providerClient := provider.NewHTTPClient(provider.Config{
		ClientID:     appConfig.ProviderClientID,
		ClientSecret: appConfig.ProviderClientSecret,
		AuthURL:      appConfig.ProviderAuthURL,
		APIBaseURL:   appConfig.ProviderAPIBaseURL,
		RedirectURI:  appConfig.ProviderRedirectURI,
		Scopes:       appConfig.ProviderScopes,
		Timeout:      appConfig.ProviderTimeout,
	})

	validator.Register()

	// Initialize services
	db := dbManager.DB()
	userService := services.NewUserService(db)
	categoryService := services.NewCategoryService(db)
	transactionService := services.NewTransactionService(db)
	auditService := services.NewAuditService(db)
	connectionService := services.NewConnectionService(db, providerClient)
	importService := services.NewImportService(db)
	categorizerService := services.NewCategorizerService(db, categorize.DefaultTaxonomy())
	syncService := services.NewSyncService(db, providerClient, connectionService, importService, categorizerService, categoryService, appConfig)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userService, auditService)
	categoryHandler := handlers.NewCategoryHandler(categoryService)
	transactionHandler := handlers.NewTransactionHandler(transactionService, auditService)
	bankingHandler := handlers.NewBankingHandler(providerClient, stateStore, connectionService, syncService, auditService, appConfig.FrontendURL)
	categorizeHandler := handlers.NewCategorizeHandler(categorizerService)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group
	v1 := router.Group("/api/v1")

	// Public routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// The OAuth callback is public: the provider redirects the user's
	// browser here without an Authorization header.
	v1.GET("/banking/callback", bankingHandler.Callback)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	// User profile
	protected.GET("/profile", authHandler.GetProfile)

	// Banking routes
	banking := protected.Group("/banking")
	banking.GET("/link", bankingHandler.Link)
	banking.GET("/connections", bankingHandler.ListConnections)
	banking.GET("/connections/:id", bankingHandler.GetConnection)
	banking.POST("/connections/:id/sync", bankingHandler.Sync)
	banking.GET("/connections/:id/history", bankingHandler.SyncHistory)
	banking.DELETE("/connections/:id", bankingHandler.Disconnect)
	banking.GET("/connections/:id/accounts/:accountID/balance", bankingHandler.Balance)
	banking.POST("/sync", bankingHandler.SyncAll)

	// Transaction routes
	transactions := protected.Group("/transactions")
	transactions.GET("", transactionHandler.GetTransactions)
	transactions.GET("/:id", transactionHandler.GetTransaction)
	transactions.PUT("/:id/category", transactionHandler.UpdateCategory)

	// Account transaction listing
	protected.GET("/accounts/:id/transactions", transactionHandler.GetAccountTransactions)

	// Category routes
	categories := protected.Group("/categories")
	categories.POST("", categoryHandler.CreateCategory)
	categories.GET("", categoryHandler.GetCategories)
	categories.GET("/:id", categoryHandler.GetCategory)
	categories.DELETE("/:id", categoryHandler.DeleteCategory)

	// Categorization preview
	protected.POST("/categorize", categorizeHandler.Preview)

	log.Infof("Starting FinBridge backend server on port %s", appConfig.Port)
	log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}
