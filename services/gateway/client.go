package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tech-arch1tect/chatline/config"
	"github.com/tech-arch1tect/chatline/services/csrf"
	"github.com/tech-arch1tect/chatline/services/logging"
	"go.uber.org/zap"
)

const (
	HeaderAuthorization = "Authorization"
	HeaderRequestID     = "X-Request-ID"
)

// TokenStore is the part of the token authority the gateway relies on.
type TokenStore interface {
	Token() string
	SetToken(token string)
	MustRefresh() bool
}

// Request is kept in replayable form so it can be re-issued after a refresh.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

type Client struct {
	cfg     config.APIConfig
	baseURL string
	http    *http.Client
	jar     http.CookieJar
	tokens  TokenStore
	csrf    *csrf.Generator
	logger  *logging.Service

	mu          sync.Mutex
	refreshing  bool
	waiters     []*waiter
	logoutHooks []func()
}

func New(cfg *config.Config, tokens TokenStore, logger *logging.Service) *Client {
	jar := csrf.NewJar()
	return &Client{
		cfg:     cfg.API,
		baseURL: cfg.API.HTTPBaseURL(),
		http: &http.Client{
			Jar:       jar,
			Timeout:   cfg.API.Timeout,
			Transport: logging.NewTransport(nil, logger),
		},
		jar:    jar,
		tokens: tokens,
		csrf:   csrf.NewGenerator(cfg.API.CSRFTTL),
		logger: logger,
	}
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Jar() http.CookieJar {
	return c.jar
}

// RequiresAuth reports whether path is under one of the protected prefixes.
func (c *Client) RequiresAuth(path string) bool {
	for _, prefix := range c.cfg.AuthPrefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// OnForcedLogout registers fn to run when a refresh fails for good.
func (c *Client) OnForcedLogout(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logoutHooks = append(c.logoutHooks, fn)
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path}, out)
}

// Do sends req and decodes the envelope data into out. A 401 on a protected
// route is recovered by refreshing the token and replaying req once.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	rejected := c.tokens.Token()

	err := c.send(ctx, req, out)
	if !isUnauthorized(err) || !c.RequiresAuth(req.Path) || req.Path == c.cfg.RefreshPath {
		return err
	}

	return c.recoverUnauthorized(ctx, req, out, rejected)
}

func (c *Client) send(ctx context.Context, req Request, out any) error {
	if !c.RequiresAuth(req.Path) {
		return c.roundTrip(ctx, req, out, "")
	}
	if c.tokens.MustRefresh() {
		c.logger.Debug("access token expired, skipping request", zap.String("path", req.Path))
		return &APIError{
			Status:  http.StatusUnauthorized,
			Code:    "LOGIN_EXPIRED",
			Message: "access token missing or expired",
		}
	}
	return c.roundTrip(ctx, req, out, c.tokens.Token())
}

func (c *Client) roundTrip(ctx context.Context, req Request, out any, bearer string) error {
	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return err
	}
	if bearer != "" {
		httpReq.Header.Set(HeaderAuthorization, "Bearer "+bearer)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s %s: %v", ErrConnectivity, req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", ErrConnectivity, req.Path, err)
	}

	return unwrap(resp.StatusCode, body, out)
}

func (c *Client) newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(HeaderRequestID, uuid.NewString())

	if method != http.MethodGet {
		c.csrf.Apply(httpReq, c.jar)
	}

	return httpReq, nil
}
