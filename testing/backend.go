package e2etesting

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/chatline/config"
	"github.com/tech-arch1tect/chatline/protocol"
	"github.com/tech-arch1tect/chatline/services/logging"
	"github.com/tech-arch1tect/chatline/testutils"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User is the backend's account row.
type User struct {
	ID           uint   `gorm:"primarykey"`
	Username     string `gorm:"not null"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type RecordedRequest struct {
	Method        string
	Path          string
	Query         string
	Authorization string
	RequestID     string
}

type Options struct {
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// Backend is an in-process chat API and realtime endpoint for exercising the
// client end to end: echo serves REST, gorilla serves /ws.
type Backend struct {
	t        testing.TB
	echo     *echo.Echo
	server   *httptest.Server
	issuer   *Issuer
	db       *gorm.DB
	logger   *logging.Service
	upgrader websocket.Upgrader

	refreshCalls atomic.Int32
	failRefresh  atomic.Bool
	rejectWS     atomic.Bool
	mutePongs    atomic.Bool
	handshakes   atomic.Int32

	mu          sync.Mutex
	refreshGate chan struct{}
	releaseGate func()
	roomGates   map[protocol.ID]chan struct{}
	roomHolds   []func()
	requests    []RecordedRequest
	frames      []protocol.Frame
	rooms       map[protocol.ID][]protocol.Message
	sockets     map[*socket]struct{}
	hits        *routeHits
}

func NewBackend(t testing.TB, opts ...Options) *Backend {
	t.Helper()

	opt := Options{AccessExpiry: 15 * time.Minute, RefreshExpiry: 24 * time.Hour}
	if len(opts) > 0 {
		opt = opts[0]
	}

	b := &Backend{
		t:         t,
		echo:      echo.New(),
		issuer:    NewIssuer(testutils.TestSecret, opt.AccessExpiry, opt.RefreshExpiry),
		db:        testutils.SetupTestDB(t, &User{}),
		logger:    logging.NewNop(),
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		rooms:     make(map[protocol.ID][]protocol.Message),
		roomGates: make(map[protocol.ID]chan struct{}),
		sockets:   make(map[*socket]struct{}),
	}

	b.echo.HideBanner = true
	b.echo.HidePort = true
	b.echo.HTTPErrorHandler = b.handleError
	b.registerRoutes()
	b.hits = newRouteHits(b.echo)

	b.server = httptest.NewServer(b.echo)
	t.Cleanup(b.Close)

	return b
}

func (b *Backend) URL() string {
	return b.server.URL
}

// Domain is the host:port the client config should point at.
func (b *Backend) Domain() string {
	return strings.TrimPrefix(b.server.URL, "http://")
}

// ClientConfig returns the test client configuration aimed at this backend.
func (b *Backend) ClientConfig() *config.Config {
	cfg := testutils.GetTestConfig()
	cfg.API.Domain = b.Domain()
	return cfg
}

func (b *Backend) Issuer() *Issuer {
	return b.issuer
}

func (b *Backend) DB() *gorm.DB {
	return b.db
}

func (b *Backend) CreateUser(username, email, password string) User {
	b.t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(b.t, err, "failed to hash test user password")

	user := User{Username: username, Email: email, PasswordHash: string(hash)}
	require.NoError(b.t, b.db.Create(&user).Error, "failed to create test user")
	return user
}

func (b *Backend) AccessToken(userID uint) string {
	b.t.Helper()
	token, err := b.issuer.AccessToken(userID)
	require.NoError(b.t, err)
	return token
}

// AddRoom makes a room joinable and seeds its history.
func (b *Backend) AddRoom(id protocol.ID, history ...protocol.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rooms[id] = append(b.rooms[id], history...)
}

func (b *Backend) RoomHistory(id protocol.ID) []protocol.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]protocol.Message(nil), b.rooms[id]...)
}

func (b *Backend) RefreshCalls() int {
	return int(b.refreshCalls.Load())
}

func (b *Backend) FailRefresh(fail bool) {
	b.failRefresh.Store(fail)
}

// HoldRefresh parks every refresh request until the returned func is called.
func (b *Backend) HoldRefresh() (release func()) {
	gate := make(chan struct{})

	var once sync.Once
	release = func() {
		once.Do(func() {
			b.mu.Lock()
			if b.refreshGate == gate {
				b.refreshGate = nil
				b.releaseGate = nil
			}
			b.mu.Unlock()
			close(gate)
		})
	}

	b.mu.Lock()
	b.refreshGate = gate
	b.releaseGate = release
	b.mu.Unlock()
	return release
}

// HoldRoom parks history requests for room until the returned func is
// called. The request is recorded before it parks.
func (b *Backend) HoldRoom(id protocol.ID) (release func()) {
	gate := make(chan struct{})

	b.mu.Lock()
	b.roomGates[id] = gate
	b.mu.Unlock()

	var once sync.Once
	release = func() {
		once.Do(func() {
			b.mu.Lock()
			if b.roomGates[id] == gate {
				delete(b.roomGates, id)
			}
			b.mu.Unlock()
			close(gate)
		})
	}

	b.mu.Lock()
	b.roomHolds = append(b.roomHolds, release)
	b.mu.Unlock()
	return release
}

func (b *Backend) roomGate(id protocol.ID) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.roomGates[id]
}

func (b *Backend) Requests() []RecordedRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]RecordedRequest(nil), b.requests...)
}

// RequestsTo filters the log to one path.
func (b *Backend) RequestsTo(path string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range b.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (b *Backend) Close() {
	b.mu.Lock()
	release := b.releaseGate
	holds := b.roomHolds
	b.mu.Unlock()
	if release != nil {
		release()
	}
	for _, release := range holds {
		release()
	}

	b.DropConnections()
	b.server.Close()
}
