package token

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tech-arch1tect/chatline/services/logging"
	"go.uber.org/zap"
)

type Clock func() time.Time

type Claims struct {
	jwt.RegisteredClaims
}

// Authority owns the access token for one client session. Signatures are not
// verified here; only the backend can do that. The claims are read to decide
// whether the token is worth presenting.
type Authority struct {
	mu        sync.RWMutex
	token     string
	clock     Clock
	logger    *logging.Service
	parser    *jwt.Parser
	observers []func(token string)
}

func New(clock Clock, logger *logging.Service) *Authority {
	if clock == nil {
		clock = time.Now
	}
	return &Authority{
		clock:  clock,
		logger: logger,
		parser: jwt.NewParser(),
	}
}

func (a *Authority) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	observers := append([]func(string){}, a.observers...)
	a.mu.Unlock()

	a.logger.Debug("access token updated", zap.Bool("present", token != ""))
	for _, fn := range observers {
		fn(token)
	}
}

func (a *Authority) Clear() {
	a.SetToken("")
}

func (a *Authority) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// IsValid reports whether a token is held and now < exp. A token that cannot
// be decoded or lacks exp is treated as absent.
func (a *Authority) IsValid() bool {
	expiresAt, ok := a.ExpiresAt()
	if !ok {
		return false
	}
	return a.clock().Before(expiresAt)
}

func (a *Authority) MustRefresh() bool {
	return !a.IsValid()
}

func (a *Authority) ExpiresAt() (time.Time, bool) {
	claims, ok := a.claims()
	if !ok || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// Subject returns the sub claim, the backend's user id.
func (a *Authority) Subject() string {
	claims, ok := a.claims()
	if !ok {
		return ""
	}
	return claims.Subject
}

// OnChange registers fn to run after every SetToken or Clear.
func (a *Authority) OnChange(fn func(token string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, fn)
}

func (a *Authority) claims() (*Claims, bool) {
	token := a.Token()
	if token == "" {
		return nil, false
	}

	claims := &Claims{}
	if _, _, err := a.parser.ParseUnverified(token, claims); err != nil {
		a.logger.Debug("access token could not be decoded", zap.Error(err))
		return nil, false
	}
	return claims, true
}
