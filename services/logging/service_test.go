package logging

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewService(t *testing.T) {
	t.Run("default configuration", func(t *testing.T) {
		service, err := NewService(Config{Level: Info, Format: "json", OutputPath: "stdout"})

		require.NoError(t, err)
		assert.NotNil(t, service.logger)
		assert.NotNil(t, service.sugar)
	})

	t.Run("console format", func(t *testing.T) {
		service, err := NewService(Config{Level: Debug, Format: "console", OutputPath: "stdout"})

		require.NoError(t, err)
		assert.NotNil(t, service.logger)
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "chatline.log")

		service, err := NewService(Config{Level: Warn, Format: "json", OutputPath: logFile})
		require.NoError(t, err)

		service.Warn("socket closed abnormally")
		service.Sync()

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "socket closed abnormally")
	})
}

func TestService_NilSafety(t *testing.T) {
	var service *Service

	assert.Nil(t, service.Logger())
	assert.Nil(t, service.Sugar())
	assert.Nil(t, service.Named("gateway"))
	assert.NotPanics(t, func() {
		service.Info("dropped")
		service.Warnf("dropped %d", 1)
		_ = service.Sync()
	})
}

func TestService_LoggingMethods(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	service := NewFromZap(zap.New(core))

	tests := []struct {
		name  string
		log   func()
		level zapcore.Level
		msg   string
	}{
		{"Debug", func() { service.Debug("debug message", zap.String("k", "v")) }, zapcore.DebugLevel, "debug message"},
		{"Info", func() { service.Info("info message") }, zapcore.InfoLevel, "info message"},
		{"Warn", func() { service.Warn("warn message") }, zapcore.WarnLevel, "warn message"},
		{"Error", func() { service.Error("error message") }, zapcore.ErrorLevel, "error message"},
		{"Infof", func() { service.Infof("info %d", 123) }, zapcore.InfoLevel, "info 123"},
		{"Warnf", func() { service.Warnf("warn %s", "test") }, zapcore.WarnLevel, "warn test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.log()

			logs := recorded.TakeAll()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.level, logs[0].Level)
			assert.Equal(t, tt.msg, logs[0].Message)
		})
	}
}

func TestService_NamedAndWith(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	service := NewFromZap(zap.New(core))

	service.Named("realtime").With(zap.Uint64("generation", 3)).Info("socket open")

	logs := recorded.TakeAll()
	require.Len(t, logs, 1)
	assert.Equal(t, "realtime", logs[0].LoggerName)
	assert.Equal(t, uint64(3), logs[0].ContextMap()["generation"])
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLogLevel(Debug))
	assert.Equal(t, zapcore.ErrorLevel, parseLogLevel(Error))
	assert.Equal(t, zapcore.InfoLevel, parseLogLevel("verbose"))
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/boom":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer server.Close()

	core, recorded := observer.New(zapcore.DebugLevel)
	logger := NewFromZap(zap.New(core))
	client := &http.Client{Transport: NewTransport(nil, logger, "/health")}

	tests := []struct {
		path  string
		level zapcore.Level
		msg   string
	}{
		{"/user", zapcore.DebugLevel, "request"},
		{"/missing", zapcore.WarnLevel, "client error"},
		{"/boom", zapcore.ErrorLevel, "server error"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, server.URL+tt.path, nil)
			req.Header.Set("X-Request-ID", "req-1")
			resp, err := client.Do(req)
			require.NoError(t, err)
			resp.Body.Close()

			logs := recorded.TakeAll()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.level, logs[0].Level)
			assert.Equal(t, tt.msg, logs[0].Message)
			assert.Equal(t, tt.path, logs[0].ContextMap()["uri"])
			assert.Equal(t, "req-1", logs[0].ContextMap()["request_id"])
		})
	}

	t.Run("skipped path", func(t *testing.T) {
		resp, err := client.Get(server.URL + "/health")
		require.NoError(t, err)
		resp.Body.Close()

		assert.Empty(t, recorded.TakeAll())
	})

	t.Run("transport failure", func(t *testing.T) {
		failing := &http.Client{Transport: NewTransport(failingTransport{}, logger)}

		_, err := failing.Get("http://chat.invalid/user")
		require.Error(t, err)

		logs := recorded.TakeAll()
		require.Len(t, logs, 1)
		assert.Equal(t, "request failed", logs[0].Message)
	})
}
