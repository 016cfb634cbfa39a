package testutils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/chatline/config"
)

const TestSecret = "test-secret-key-32-chars-long!!"

// GetTestConfig returns a config with short realtime timings. Callers point
// API.Domain at their test server.
func GetTestConfig() *config.Config {
	return &config.Config{
		API: config.APIConfig{
			Domain:       "localhost:8080",
			AuthPrefixes: []string{"/user", "/profile", "/logout", "/friends", "/servers", "/channels", "/dm_rooms", "/messages"},
			RefreshPath:  "/refresh_token",
			LoginPath:    "/login",
			LogoutPath:   "/logout",
			UserPath:     "/user",
			MessagesPath: "/messages",
			CSRFTTL:      10 * time.Second,
			Timeout:      5 * time.Second,
		},
		Realtime: config.RealtimeConfig{
			Path:                 "/ws",
			HeartbeatInterval:    time.Hour,
			ReconnectBaseDelay:   20 * time.Millisecond,
			BackoffFactor:        2,
			MaxReconnectAttempts: 5,
			MaxFrameBytes:        64 * 1024,
			HandshakeTimeout:     2 * time.Second,
			WriteTimeout:         2 * time.Second,
			DefaultRoute:         "/channels/@me",
		},
		Log: config.LogConfig{
			Level:  "debug",
			Format: "console",
			Output: "stdout",
		},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			DSN:         ":memory:",
			AutoMigrate: true,
		},
	}
}

var TestUsers = struct {
	ValidUser struct {
		Username string
		Email    string
		Password string
	}
}{
	ValidUser: struct {
		Username string
		Email    string
		Password string
	}{
		Username: "testuser",
		Email:    "test@example.com",
		Password: "Password123",
	},
}

// MintToken signs an HS256 access token for subject expiring at expiresAt.
func MintToken(t testing.TB, subject string, expiresAt time.Time) string {
	t.Helper()
	return mint(t, jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(expiresAt.Add(-15 * time.Minute)),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
}

func MintTokenWithoutExpiry(t testing.TB, subject string) string {
	t.Helper()
	return mint(t, jwt.RegisteredClaims{Subject: subject})
}

func mint(t testing.TB, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(TestSecret))
	require.NoError(t, err)
	return signed
}
