package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "caller-secret"

func authApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(nil)})
	app.Get("/me", CallerAuth(testSecret), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(CallerKey).(string))
	})
	return app
}

func getWithToken(t *testing.T, app *fiber.App, token string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestCallerAuthAcceptsValidToken(t *testing.T) {
	token, err := SignCallerToken(testSecret, "owner-42", time.Hour)
	require.NoError(t, err)

	status, body := getWithToken(t, authApp(), token)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "owner-42", body)
}

func TestCallerAuthAcceptsLegacyUserIDClaim(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "legacy-7",
		"exp":     time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	status, body := getWithToken(t, authApp(), token)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "legacy-7", body)
}

func TestCallerAuthRejects(t *testing.T) {
	wrongKey, _ := SignCallerToken("other-secret", "owner", time.Hour)
	expired, _ := SignCallerToken(testSecret, "owner", -time.Hour)
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "owner"}).SignedString([]byte(testSecret))
	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}).SignedString([]byte(testSecret))
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "owner", "exp": time.Now().Add(time.Hour).Unix()}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]string{
		"missing":   "",
		"garbage":   "not.a.jwt",
		"wrong key": wrongKey,
		"expired":   expired,
		"no exp":    noExp,
		"no sub":    noSub,
		"alg none":  none,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			status, body := getWithToken(t, authApp(), token)
			assert.Equal(t, http.StatusUnauthorized, status)
			assert.Contains(t, body, `"error"`)
		})
	}
}

func TestRateLimit(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Post("/verify", RateLimit(cache, "verify", 2), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/verify", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	mr.FastForward(2 * time.Minute)
	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/verify", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimitWithoutRedisIsNoop(t *testing.T) {
	app := fiber.New()
	app.Get("/", RateLimit(nil, "x", 1), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	}
}

func TestErrorHandlerHidesInternalErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})
	app.Use(RequestID())
	app.Get("/boom", func(c *fiber.Ctx) error { return errors.New("pq: password=hunter2") })
	app.Get("/gone", func(c *fiber.Ctx) error { return fiber.NewError(http.StatusNotFound, "topup session not found") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"internal error"}`, string(body))
	assert.Contains(t, buf.String(), "unhandled error")

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/gone", nil))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"topup session not found"}`, string(body))
}

func TestRequestIDAndAudit(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	app := fiber.New()
	app.Use(RequestID(), Audit(logger))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(buf.String(), `"request_id":"req-1"`), buf.String())

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get(requestIDHeader))
}
