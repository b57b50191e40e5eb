package devserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const bearerPrefix = "Bearer "

var (
	ErrMissingAuthHeader = errors.New("missing authorization header")
	ErrInvalidAuthFormat = errors.New("invalid authorization header format")
	ErrEmptyToken        = errors.New("empty token")
	ErrInvalidToken      = errors.New("invalid token")
	ErrUserNotFound      = errors.New("user not found")
)

// SessionData is what the auth middleware knows about the caller
type SessionData struct {
	UserID string
	Email  string
	Role   string
}

func (s *SessionData) IsAdmin() bool {
	return s.Role == RoleAdmin
}

func setSession(c *gin.Context, sessionData *SessionData) {
	c.Set("session", sessionData)
}

// GetSessionData returns the session set by JWTAuthMiddleware
func GetSessionData(c *gin.Context) (*SessionData, bool) {
	session, exists := c.Get("session")
	if !exists {
		return nil, false
	}

	sessionData, ok := session.(*SessionData)
	return sessionData, ok
}

func extractBearerToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}

	token, ok := strings.CutPrefix(authHeader, bearerPrefix)
	if !ok {
		return "", ErrInvalidAuthFormat
	}
	if token == "" {
		return "", ErrEmptyToken
	}

	return token, nil
}

func respondWithError(c *gin.Context, log zerolog.Logger, statusCode int, err error, message string) {
	log.Warn().Err(err).Str("path", c.Request.URL.Path).Msg(message)
	c.AbortWithStatusJSON(statusCode, gin.H{"error": message})
}

// JWTAuthMiddleware validates the bearer token and loads the caller's account
func JWTAuthMiddleware(db *gorm.DB, tokens *TokenIssuer, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := extractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			var message string
			switch err {
			case ErrMissingAuthHeader:
				message = "Missing authorization header"
			case ErrInvalidAuthFormat:
				message = "Invalid authorization header format"
			case ErrEmptyToken:
				message = "Empty token"
			}
			respondWithError(c, log, http.StatusUnauthorized, err, message)
			return
		}

		claims, err := tokens.Validate(token)
		if err != nil {
			respondWithError(c, log, http.StatusUnauthorized, err, "Invalid or expired token")
			return
		}

		// The role is read from the database so that demotions apply to
		// tokens already issued.
		var account Account
		if err := db.Where("id = ?", claims.UserID).First(&account).Error; err != nil {
			respondWithError(c, log, http.StatusUnauthorized, ErrUserNotFound, "User not found")
			return
		}

		setSession(c, &SessionData{
			UserID: account.ID,
			Email:  account.Email,
			Role:   account.Role,
		})

		c.Next()
	}
}

// AdminOnlyMiddleware ensures the authenticated user is an admin
func AdminOnlyMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionData, exists := GetSessionData(c)
		if !exists {
			respondWithError(c, log, http.StatusUnauthorized, errors.New("no session"), "Unauthorized")
			return
		}

		if !sessionData.IsAdmin() {
			respondWithError(c, log, http.StatusForbidden, errors.New("not admin"), "Admin access required")
			return
		}

		c.Next()
	}
}

// loggingMiddleware logs every request with zerolog
func loggingMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", c.GetHeader("X-Request-ID")).
			Msg("HTTP request")
	}
}
