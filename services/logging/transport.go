package logging

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Transport logs every outbound request with its status class, mirroring the
// level split of an access log.
type Transport struct {
	Base      http.RoundTripper
	Logger    *Service
	SkipPaths map[string]bool
}

func NewTransport(base http.RoundTripper, logger *Service, skipPaths ...string) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}

	skipMap := make(map[string]bool)
	for _, path := range skipPaths {
		skipMap[path] = true
	}

	return &Transport{
		Base:      base,
		Logger:    logger,
		SkipPaths: skipMap,
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.Base.RoundTrip(req)

	if t.SkipPaths[req.URL.Path] {
		return resp, err
	}

	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("uri", req.URL.RequestURI()),
		zap.Duration("latency", time.Since(start)),
	}
	if id := req.Header.Get("X-Request-ID"); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}

	if err != nil {
		fields = append(fields, zap.Error(err))
		t.Logger.Warn("request failed", fields...)
		return resp, err
	}

	fields = append(fields, zap.Int("status", resp.StatusCode))

	switch {
	case resp.StatusCode >= 500:
		t.Logger.Error("server error", fields...)
	case resp.StatusCode >= 400:
		t.Logger.Warn("client error", fields...)
	case resp.StatusCode >= 300:
		t.Logger.Info("redirection", fields...)
	default:
		t.Logger.Debug("request", fields...)
	}

	return resp, err
}
