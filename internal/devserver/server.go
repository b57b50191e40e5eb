// Package devserver is a small stand-in for the platform API. It serves the
// auth endpoints and admin CRUD the CLI talks to, backed by SQLite.
package devserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/consultadmin/consultadmin/internal/config"
)

// Server represents the HTTP server
type Server struct {
	router    *gin.Engine
	db        *gorm.DB
	tokens    *TokenIssuer
	config    config.DevServerConfig
	logger    zerolog.Logger
	validator *validator.Validate
	version   string
}

// SeedAccount is an account created at startup when missing
type SeedAccount struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// DefaultSeed is one admin and one seeker for local development
func DefaultSeed() []SeedAccount {
	return []SeedAccount{
		{Name: "Dev Admin", Email: "admin@consultadmin.local", Password: "admin-password", Role: RoleAdmin},
		{Name: "Dev Seeker", Email: "seeker@consultadmin.local", Password: "seeker-password", Role: RoleSeeker},
	}
}

// New creates a new server instance
func New(cfg config.DevServerConfig, zlog zerolog.Logger, version string) (*Server, error) {
	db, err := initDatabase(cfg.DatabaseURL, zlog)
	if err != nil {
		return nil, err
	}

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	secret := cfg.JWTSecret
	if secret == "" {
		// 64 hex characters = 32 bytes of randomness
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		secret = hex.EncodeToString(b)
		zlog.Warn().Msg("No JWT secret configured - issued tokens will not survive a restart")
	}

	tokens, err := NewTokenIssuer(secret, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	s := &Server{
		db:        db,
		tokens:    tokens,
		config:    cfg,
		logger:    zlog,
		validator: validator.New(),
		version:   version,
	}
	s.setupRouter()

	return s, nil
}

// initDatabase opens the SQLite database. In-memory databases are limited to
// one connection since every new connection would see an empty database.
func initDatabase(url string, zlog zerolog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(url), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	inMemory := strings.Contains(url, ":memory:") || strings.Contains(url, "mode=memory")
	if inMemory {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxOpenConns(4)
		sqlDB.SetMaxIdleConns(2)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{"PRAGMA foreign_keys=1", "PRAGMA busy_timeout=5000"}
	if !inMemory {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL")
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			zlog.Warn().Str("pragma", pragma).Err(err).Msg("Failed to apply pragma")
		}
	}

	return db, nil
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(loggingMiddleware(s.logger))
	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	s.router.GET("/health", s.healthCheck)
	s.router.POST("/api/auth/login", s.login)

	// Everything else is for admins only
	api := s.router.Group("/api")
	api.Use(JWTAuthMiddleware(s.db, s.tokens, s.logger), AdminOnlyMiddleware(s.logger))
	{
		api.GET("/auth/me", s.getCurrentUser)

		records := api.Group("/:resource")
		records.Use(s.resourceMiddleware())
		{
			records.GET("", s.listRecords)
			records.POST("", s.createRecord)
			records.GET("/:id", s.getRecord)
			records.PUT("/:id", s.updateRecord)
			records.DELETE("/:id", s.deleteRecord)
		}
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "online",
		"timestamp": time.Now().UTC(),
		"service":   "consultadmin-devserver",
		"version":   s.version,
	})
}

// Handler returns the HTTP handler, for use with httptest
func (s *Server) Handler() http.Handler {
	return s.router
}

// CreateAccount hashes password and stores a new account
func (s *Server) CreateAccount(name, email, password, role string) (*Account, error) {
	if err := s.validator.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("invalid email %q", email)
	}
	if err := s.validator.Var(role, "oneof=admin provider seeker"); err != nil {
		return nil, fmt.Errorf("invalid role %q", role)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &Account{Name: name, Email: email, Role: role, PasswordHash: hash}
	if err := s.db.Create(account).Error; err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", email, err)
	}

	s.logger.Info().Str("user_id", account.ID).Str("email", email).Str("role", role).Msg("User created")
	return account, nil
}

// SetRole changes an account's role
func (s *Server) SetRole(email, role string) error {
	res := s.db.Model(&Account{}).Where("email = ?", email).Update("role", role)
	if res.Error != nil {
		return fmt.Errorf("failed to update role for %s: %w", email, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	return nil
}

// Seed creates the given accounts unless an account with the same email
// already exists
func (s *Server) Seed(accounts []SeedAccount) error {
	for _, a := range accounts {
		var existing Account
		err := s.db.Where("email = ?", a.Email).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to look up %s: %w", a.Email, err)
		}
		if _, err := s.CreateAccount(a.Name, a.Email, a.Password, a.Role); err != nil {
			return err
		}
	}
	return nil
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Address,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", s.config.Address).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Received shutdown signal, shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
		return err
	}

	s.logger.Info().Msg("Server shutdown complete")
	return nil
}

// Close closes the database connection
func (s *Server) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
