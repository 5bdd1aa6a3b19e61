package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// CallerKey is the Locals key holding the authenticated owner id.
const CallerKey = "user_id"

// CallerAuth validates HS256 bearer tokens issued by the identity service and
// stores the subject as the caller. Tokens carry the owner id in "sub" or,
// for older issuers, "user_id".
func CallerAuth(secret string) fiber.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		if len(key) == 0 {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])

		claims := jwt.MapClaims{}
		if _, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
			return key, nil
		}); err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return fiber.NewError(http.StatusUnauthorized, "token expired")
			}
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		sub, _ := claims.GetSubject()
		if sub == "" {
			sub, _ = claims["user_id"].(string)
		}
		if sub == "" {
			return fiber.NewError(http.StatusUnauthorized, "token has no subject")
		}

		c.Locals(CallerKey, sub)
		return c.Next()
	}
}

// SignCallerToken issues a token CallerAuth accepts. Used by the dev token
// endpoint and tests.
func SignCallerToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString([]byte(secret))
}
