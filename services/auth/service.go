package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/tech-arch1tect/chatline/config"
	"github.com/tech-arch1tect/chatline/navigation"
	"github.com/tech-arch1tect/chatline/protocol"
	"github.com/tech-arch1tect/chatline/services/gateway"
	"github.com/tech-arch1tect/chatline/services/logging"
	"go.uber.org/zap"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoAccessToken      = errors.New("login response carried no access token")
)

// PublicPaths are reachable without a session.
var PublicPaths = []string{navigation.LoginPath, "/register"}

type API interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
	Post(ctx context.Context, path string, body, out any) error
	Refresh(ctx context.Context) (string, error)
}

type Tokens interface {
	Token() string
	SetToken(token string)
	Clear()
	IsValid() bool
}

// Session is the realtime connection torn down on logout.
type Session interface {
	Disconnect()
}

type Service struct {
	cfg       config.APIConfig
	api       API
	tokens    Tokens
	session   Session
	navigator navigation.Navigator
	logger    *logging.Service

	mu   sync.RWMutex
	user *protocol.User
}

func NewService(cfg *config.Config, api API, tokens Tokens, session Session, navigator navigation.Navigator, logger *logging.Service) *Service {
	if navigator == nil {
		navigator = navigation.Nop()
	}
	return &Service{
		cfg:       cfg.API,
		api:       api,
		tokens:    tokens,
		session:   session,
		navigator: navigator,
		logger:    logger,
	}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Service) Login(ctx context.Context, email, password string) error {
	var data struct {
		AccessToken string `json:"access_token"`
	}

	err := s.api.Post(ctx, s.cfg.LoginPath, credentials{Email: email, Password: password}, &data)
	if err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			s.logger.Info("login rejected", zap.String("code", apiErr.Code))
			return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
		}
		s.logger.Warn("login failed", zap.Error(err))
		return err
	}
	if data.AccessToken == "" {
		return ErrNoAccessToken
	}

	s.tokens.SetToken(data.AccessToken)
	s.logger.Info("logged in")
	return nil
}

// Logout tells the server when the token is still usable, then tears the
// session down locally regardless of the outcome.
func (s *Service) Logout(ctx context.Context) {
	if s.tokens.IsValid() {
		if err := s.api.Post(ctx, s.cfg.LogoutPath, nil, nil); err != nil {
			s.logger.Warn("server logout failed, clearing local session", zap.Error(err))
		}
	}

	s.teardown()
	s.logger.Info("logged out")
}

// ForceLogout is the teardown used when the session can no longer be
// recovered, e.g. after a failed refresh.
func (s *Service) ForceLogout() {
	s.logger.Warn("session expired, forcing logout")
	s.teardown()
}

// FetchUser loads the current user. A rejection by the server ends the
// session. Connectivity failures and cancellation leave it alone.
func (s *Service) FetchUser(ctx context.Context) (*protocol.User, error) {
	var user protocol.User
	if err := s.api.Get(ctx, s.cfg.UserPath, nil, &user); err != nil {
		if errors.Is(err, gateway.ErrConnectivity) || ctx.Err() != nil {
			return nil, err
		}
		if !errors.Is(err, gateway.ErrRefreshFailed) {
			s.logger.Warn("failed to fetch current user", zap.Error(err))
			s.teardown()
		}
		return nil, err
	}

	s.mu.Lock()
	s.user = &user
	s.mu.Unlock()

	return &user, nil
}

func (s *Service) User() *protocol.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// IsAuthenticated reports whether a usable access token exists, refreshing
// through the gateway's single-flight path when the current one has expired.
func (s *Service) IsAuthenticated(ctx context.Context) bool {
	if s.tokens.IsValid() {
		return true
	}
	if _, err := s.api.Refresh(ctx); err != nil {
		s.logger.Debug("not authenticated", zap.Error(err))
		return false
	}
	return s.tokens.IsValid()
}

// Guard decides whether path may be entered. A denied path comes with the
// route to send the user to instead.
func (s *Service) Guard(ctx context.Context, path string) (redirect string, ok bool) {
	if IsPublic(path) {
		return "", true
	}
	if s.IsAuthenticated(ctx) {
		return "", true
	}
	return navigation.LoginPath, false
}

func IsPublic(path string) bool {
	for _, p := range PublicPaths {
		if path == p {
			return true
		}
	}
	return false
}

func (s *Service) teardown() {
	s.tokens.Clear()

	s.mu.Lock()
	s.user = nil
	s.mu.Unlock()

	if s.session != nil {
		s.session.Disconnect()
	}
	s.navigator.Navigate(navigation.LoginPath)
}
