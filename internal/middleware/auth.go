// Package middleware provides authentication, rate limiting, logging and tracing middleware.
package middleware

import (
	"crypto/subtle"
	"errors"
	"strconv"
	"strings"

	"chatwarden/internal/config"
	"chatwarden/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var cfg *config.Config

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// ParseUserToken validates an HMAC-signed JWT and returns the platform user id in "sub".
func ParseUserToken(tokenString, secret string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return 0, errors.New("invalid or expired token")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return 0, errors.New("invalid token structure - missing subject")
	}

	// Telegram user ids exceed 32 bits.
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID <= 0 {
		return 0, errors.New("invalid user ID in token")
	}
	return userID, nil
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError(msg))
}

// AuthRequired enforces a Bearer JWT and stores the caller as c.Locals("userID") int64.
func AuthRequired(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return unauthorized(c, "Authorization header required")
	}

	scheme, tokenString, ok := strings.Cut(authHeader, " ")
	if !ok || scheme != "Bearer" || tokenString == "" {
		return unauthorized(c, "Invalid authorization header format")
	}

	userID, err := ParseUserToken(tokenString, cfg.JWTSecret)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	c.Locals("userID", userID)
	return c.Next()
}

// WebSocketAuthRequired accepts the token as ?token= because browsers cannot set headers on upgrades.
func WebSocketAuthRequired(c *fiber.Ctx) error {
	token := c.Query("token")
	if token == "" {
		return AuthRequired(c)
	}

	userID, err := ParseUserToken(token, cfg.JWTSecret)
	if err != nil {
		return unauthorized(c, err.Error())
	}

	c.Locals("userID", userID)
	return c.Next()
}

// IngestTokenRequired guards service-to-service ingestion with a shared X-Ingest-Token.
// An empty INGEST_TOKEN disables the endpoint.
func IngestTokenRequired(c *fiber.Ctx) error {
	if cfg == nil || cfg.IngestToken == "" {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "ingestion endpoint disabled",
		})
	}
	got := c.Get("X-Ingest-Token")
	if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.IngestToken)) != 1 {
		return unauthorized(c, "invalid ingest token")
	}
	return c.Next()
}
