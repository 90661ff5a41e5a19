package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/chanrelay/chanrelay-server/internal/auth"
)

const (
	// ContextKeyUserID is the context key for storing the operator's user ID.
	ContextKeyUserID = "user_id"
	// ContextKeyEmail is the context key for storing the operator's email.
	ContextKeyEmail = "email"
)

// APIKeyMiddleware guards a route group with a static key, accepted either
// as an X-API-Key header or an api_key query parameter. An empty configured
// key locks the group entirely.
func APIKeyMiddleware(apiKey string, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		supplied := c.GetHeader("X-API-Key")
		if supplied == "" {
			supplied = c.Query("api_key")
		}

		if apiKey == "" || subtle.ConstantTimeCompare([]byte(supplied), []byte(apiKey)) != 1 {
			logger.Debug().Str("path", c.Request.URL.Path).Msg("invalid or missing api key")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid or missing API key"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// AuthMiddleware validates operator bearer tokens.
func AuthMiddleware(authService *auth.Service, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug().Msg("missing authorization header")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			logger.Debug().Msg("invalid authorization header format")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			logger.Debug().Err(err).Msg("invalid token")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid token"})
			c.Abort()
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyEmail, claims.Email)

		c.Next()
	}
}

// LoggerMiddleware logs HTTP requests after completion.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}
