package e2etesting

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/chatline/protocol"
	"github.com/tech-arch1tect/chatline/services/csrf"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	RefreshCookieName = "refresh_token"
	claimsKey         = "_jwt_claims"
	defaultPageSize   = 50
)

type envelope struct {
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type apiError struct {
	Code    string
	Message string
}

func newAPIError(status int, code, message string) *echo.HTTPError {
	return echo.NewHTTPError(status, apiError{Code: code, Message: message})
}

func success(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, envelope{Status: "success", Code: "OK", Data: data})
}

func (b *Backend) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	body := envelope{Status: "error", Code: "INTERNAL_SERVER", Message: err.Error()}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch msg := he.Message.(type) {
		case apiError:
			body.Code, body.Message = msg.Code, msg.Message
		case string:
			body.Code, body.Message = http.StatusText(status), msg
		}
	}

	if err := c.JSON(status, body); err != nil {
		b.logger.Warn("failed to write error response", zap.Error(err))
	}
}

func (b *Backend) registerRoutes() {
	e := b.echo
	e.Use(b.recordRequests)

	e.POST("/login", b.login, b.requireCSRF)
	e.POST("/refresh_token", b.refresh, b.requireCSRF)
	e.POST("/logout", b.logout, b.requireCSRF, b.requireBearer)
	e.GET("/user", b.currentUser, b.requireBearer)
	e.GET("/messages", b.messages, b.requireBearer)
	e.GET("/ws", b.handleWS)
}

func (b *Backend) recordRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		b.mu.Lock()
		b.requests = append(b.requests, RecordedRequest{
			Method:        req.Method,
			Path:          req.URL.Path,
			Query:         req.URL.RawQuery,
			Authorization: req.Header.Get("Authorization"),
			RequestID:     req.Header.Get("X-Request-ID"),
		})
		b.hits.hit(req.Method, c.Path())
		b.mu.Unlock()
		return next(c)
	}
}

func (b *Backend) requireCSRF(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := csrf.Validate(c.Request()); err != nil {
			return newAPIError(http.StatusForbidden, "INVALID_ORIGIN", err.Error())
		}
		return next(c)
	}
}

func (b *Backend) requireBearer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return newAPIError(http.StatusUnauthorized, "UNAUTHORIZED", "Authorization header required")
		}

		claims, err := b.issuer.Validate(strings.TrimPrefix(authHeader, "Bearer "), tokenTypeAccess)
		if err != nil {
			if errors.Is(err, ErrExpiredToken) {
				return newAPIError(http.StatusUnauthorized, "LOGIN_EXPIRED", err.Error())
			}
			return newAPIError(http.StatusUnauthorized, "INVALID_TOKEN", err.Error())
		}

		c.Set(claimsKey, claims)
		return next(c)
	}
}

func claimsFrom(c echo.Context) *Claims {
	claims, _ := c.Get(claimsKey).(*Claims)
	return claims
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (b *Backend) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return newAPIError(http.StatusBadRequest, "INVALID_PARAMS", "email and password are required")
	}

	var user User
	if err := b.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		return newAPIError(http.StatusUnauthorized, "LOGIN_FAILED", "invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return newAPIError(http.StatusUnauthorized, "LOGIN_FAILED", "invalid credentials")
	}

	return b.issueTokens(c, user.ID)
}

func (b *Backend) issueTokens(c echo.Context, userID uint) error {
	access, err := b.issuer.AccessToken(userID)
	if err != nil {
		return err
	}
	refresh, err := b.issuer.RefreshToken(userID)
	if err != nil {
		return err
	}

	c.SetCookie(&http.Cookie{
		Name:     RefreshCookieName,
		Value:    refresh,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return success(c, map[string]string{"access_token": access})
}

func (b *Backend) refresh(c echo.Context) error {
	b.refreshCalls.Add(1)

	b.mu.Lock()
	gate := b.refreshGate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	}

	if b.failRefresh.Load() {
		return newAPIError(http.StatusUnauthorized, "INVALID_TOKEN", "refresh token rejected")
	}

	cookie, err := c.Cookie(RefreshCookieName)
	if err != nil {
		return newAPIError(http.StatusUnauthorized, "UNAUTHORIZED", "refresh token missing")
	}

	claims, err := b.issuer.Validate(cookie.Value, tokenTypeRefresh)
	if err != nil {
		return newAPIError(http.StatusUnauthorized, "INVALID_TOKEN", err.Error())
	}

	return b.issueTokens(c, claims.UserID())
}

func (b *Backend) logout(c echo.Context) error {
	if header := c.Request().Header.Get("Authorization"); header != "" {
		b.issuer.Revoke(strings.TrimPrefix(header, "Bearer "))
	}

	c.SetCookie(&http.Cookie{
		Name:   RefreshCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	return success(c, nil)
}

func (b *Backend) currentUser(c echo.Context) error {
	var user User
	if err := b.db.First(&user, claimsFrom(c).UserID()).Error; err != nil {
		return newAPIError(http.StatusNotFound, "USER_NOT_FOUND", "user does not exist")
	}

	return success(c, protocol.User{
		ID:        protocol.FormatID(user.ID),
		Username:  user.Username,
		Nickname:  user.Username,
		Status:    string(protocol.StatusOnline),
		IsOnline:  true,
		CreatedAt: user.CreatedAt.UnixMilli(),
		UpdatedAt: user.UpdatedAt.UnixMilli(),
	})
}

// messages pages backwards through a room: message_id is the oldest message
// the client holds, and the page ends just before it.
func (b *Backend) messages(c echo.Context) error {
	roomID := protocol.ID(c.QueryParam("room_id"))
	if roomID == "" {
		return newAPIError(http.StatusBadRequest, "INVALID_PARAMS", "room_id is required")
	}

	if gate := b.roomGate(roomID); gate != nil {
		select {
		case <-gate:
		case <-c.Request().Context().Done():
			return c.Request().Context().Err()
		}
	}

	limit := defaultPageSize
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return newAPIError(http.StatusBadRequest, "INVALID_PARAMS", "limit must be a positive integer")
		}
		limit = n
	}

	b.mu.Lock()
	history, ok := b.rooms[roomID]
	history = append([]protocol.Message(nil), history...)
	b.mu.Unlock()
	if !ok {
		return newAPIError(http.StatusNotFound, "ROOM_NOT_FOUND", "room does not exist")
	}

	sort.SliceStable(history, func(i, j int) bool { return history[i].Timestamp < history[j].Timestamp })

	end := len(history)
	if before := protocol.ID(c.QueryParam("message_id")); before != "" {
		for i, m := range history {
			if m.ID == before {
				end = i
				break
			}
		}
	}

	start := max(end-limit, 0)
	return success(c, history[start:end])
}
