package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Server
	Port string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret        string
	JWTExpirationDur time.Duration

	// Redis (OAuth state store)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Banking provider OAuth
	ProviderClientID     string
	ProviderClientSecret string
	ProviderAuthURL      string
	ProviderAPIBaseURL   string
	ProviderRedirectURI  string
	ProviderScopes       []string
	ProviderTimeout      time.Duration

	// Frontend redirect target for the OAuth callback
	FrontendURL string

	// Sync tuning
	OAuthStateTTL     time.Duration
	SyncMaxDuration   time.Duration
	SyncLookback      time.Duration
	SyncFirstLookback time.Duration
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		Port: getEnv("PORT", "8080"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "finbridge"),
		DBPassword: getEnv("DB_PASSWORD", "finbridge"),
		DBName:     getEnv("DB_NAME", "finbridge"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret: getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       0,

		ProviderClientID:     getEnv("PROVIDER_CLIENT_ID", ""),
		ProviderClientSecret: getEnv("PROVIDER_CLIENT_SECRET", ""),
		ProviderAuthURL:      getEnv("PROVIDER_AUTH_URL", "https://auth.openbanking.example.com"),
		ProviderAPIBaseURL:   getEnv("PROVIDER_API_BASE_URL", "https://api.openbanking.example.com"),
		ProviderRedirectURI:  getEnv("PROVIDER_REDIRECT_URI", "http://localhost:8080/api/v1/banking/callback"),
		ProviderScopes:       strings.Split(getEnv("PROVIDER_SCOPES", "accounts transactions balance offline_access"), " "),

		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000/banking"),

		ProviderTimeout:   getDurationEnv("PROVIDER_TIMEOUT", 30*time.Second),
		OAuthStateTTL:     getDurationEnv("OAUTH_STATE_TTL", 15*time.Minute),
		SyncMaxDuration:   getDurationEnv("SYNC_MAX_DURATION", 10*time.Minute),
		SyncLookback:      getDurationEnv("SYNC_LOOKBACK", 90*24*time.Hour),
		SyncFirstLookback: getDurationEnv("SYNC_FIRST_LOOKBACK", 2*365*24*time.Hour),
	}

	expStr := getEnv("JWT_EXPIRES_IN", "24h")
	expDur, err := time.ParseDuration(expStr)
	if err != nil {
		log.Printf("Warning: invalid JWT_EXPIRES_IN value '%s', falling back to 24h\n", expStr)
		expDur = 24 * time.Hour
	}
	config.JWTExpirationDur = expDur

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv retrieves a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, value, defaultValue)
		return defaultValue
	}
	return d
}
