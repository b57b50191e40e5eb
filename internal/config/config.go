package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultRefreshInterval = 5 * time.Minute
	DefaultRequestTimeout  = 30 * time.Second
)

// Token store backends
const (
	TokenStoreKeyring = "keyring"
	TokenStoreFile    = "file"
)

// Config holds all configuration for the application
type Config struct {
	// Session Configuration
	Session SessionConfig

	// HTTP Configuration
	HTTP HTTPConfig

	// Logging Configuration
	Logging LoggingConfig

	// DevServer Configuration (only used by cmd/devserver)
	DevServer DevServerConfig
}

// SessionConfig holds session lifecycle configuration
type SessionConfig struct {
	RefreshInterval time.Duration
	TokenStore      string // keyring, file
}

// HTTPConfig holds API client configuration
type HTTPConfig struct {
	Scheme             string // https, http
	RequestTimeout     time.Duration
	InsecureSkipVerify bool
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	Level  string
	Format string // json, console
}

// DevServerConfig holds configuration for the development backend
type DevServerConfig struct {
	Address     string
	DatabaseURL string
	JWTSecret   string
	TokenTTL    time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env files (fails silently if files don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	refreshInterval, err := durationEnv("CONSULTADMIN_REFRESH_INTERVAL", DefaultRefreshInterval)
	if err != nil {
		return nil, err
	}
	if refreshInterval <= 0 {
		return nil, fmt.Errorf("CONSULTADMIN_REFRESH_INTERVAL must be positive, got %s", refreshInterval)
	}

	requestTimeout, err := durationEnv("CONSULTADMIN_REQUEST_TIMEOUT", DefaultRequestTimeout)
	if err != nil {
		return nil, err
	}

	insecure, err := boolEnv("CONSULTADMIN_INSECURE_TLS", false)
	if err != nil {
		return nil, err
	}

	tokenStore := strings.ToLower(stringEnv("CONSULTADMIN_TOKEN_STORE", TokenStoreKeyring))
	if tokenStore != TokenStoreKeyring && tokenStore != TokenStoreFile {
		return nil, fmt.Errorf("CONSULTADMIN_TOKEN_STORE must be %q or %q, got %q", TokenStoreKeyring, TokenStoreFile, tokenStore)
	}

	scheme := strings.ToLower(stringEnv("CONSULTADMIN_SCHEME", "https"))
	if scheme != "https" && scheme != "http" {
		return nil, fmt.Errorf("CONSULTADMIN_SCHEME must be http or https, got %q", scheme)
	}

	tokenTTL, err := durationEnv("DEVSERVER_TOKEN_TTL", time.Hour)
	if err != nil {
		return nil, err
	}

	return &Config{
		Session: SessionConfig{
			RefreshInterval: refreshInterval,
			TokenStore:      tokenStore,
		},
		HTTP: HTTPConfig{
			Scheme:             scheme,
			RequestTimeout:     requestTimeout,
			InsecureSkipVerify: insecure,
		},
		Logging: LoggingConfig{
			// Defaults suitable for interactive use
			Level:  stringEnv("CONSULTADMIN_LOG_LEVEL", "info"),
			Format: stringEnv("CONSULTADMIN_LOG_FORMAT", "console"),
		},
		DevServer: DevServerConfig{
			Address:     stringEnv("DEVSERVER_ADDRESS", ":8080"),
			DatabaseURL: stringEnv("DEVSERVER_DATABASE_URL", "file::memory:?cache=shared"),
			JWTSecret:   os.Getenv("DEVSERVER_JWT_SECRET"),
			TokenTTL:    tokenTTL,
		},
	}, nil
}

func stringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}
