package realtime

import (
	"context"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tech-arch1tect/chatline/config"
	"github.com/tech-arch1tect/chatline/navigation"
	"github.com/tech-arch1tect/chatline/protocol"
	"github.com/tech-arch1tect/chatline/services/logging"
	"go.uber.org/zap"
)

// TokenSource supplies the access token embedded in the handshake URL,
// refreshing it first when the held one has expired.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Manager owns the single realtime socket of an authenticated session.
//
// Every socket gets a generation number. Callbacks from a socket whose
// generation is no longer current are ignored, so at most one socket is
// ever live and a torn-down socket cannot trigger a reconnect.
type Manager struct {
	cfg       config.RealtimeConfig
	endpoint  func(token string) string
	tokens    TokenSource
	navigator navigation.Navigator
	logger    *logging.Service
	dialer    *websocket.Dialer

	mu              sync.Mutex
	state           State
	conn            *websocket.Conn
	generation      uint64
	attempts        int
	shouldReconnect bool
	exhausted       bool
	reconnectTimer  *time.Timer
	stopHeartbeat   context.CancelFunc

	writeMu sync.Mutex

	obsMu          sync.RWMutex
	nextSubscriber int
	subscribers    []subscriber
	stateObservers []func(State)
	retryObservers []func(attempt int, delay time.Duration)
}

func New(cfg *config.Config, tokens TokenSource, navigator navigation.Navigator, logger *logging.Service) *Manager {
	if navigator == nil {
		navigator = navigation.Nop()
	}
	return &Manager{
		cfg:       cfg.Realtime,
		endpoint:  cfg.WebSocketURL,
		tokens:    tokens,
		navigator: navigator,
		logger:    logger,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
		},
	}
}

type subscriber struct {
	id int
	fn func(protocol.ServerMessage)
}

// Connect opens a socket with the current access token, closing any
// existing one first. It returns false without doing anything while another
// connect is in progress, and false when the handshake fails (a reconnect is
// then scheduled). An explicit Connect re-enables reconnection and resets
// the attempt counter.
func (m *Manager) Connect(ctx context.Context) bool {
	m.mu.Lock()
	if m.state == StateConnecting {
		m.mu.Unlock()
		m.logger.Debug("connect ignored, already connecting")
		return false
	}
	m.shouldReconnect = true
	m.attempts = 0
	m.exhausted = false
	m.cancelReconnectLocked()
	gen, stale := m.beginLocked()
	m.mu.Unlock()

	m.discard(stale)
	m.emitState(StateConnecting)
	return m.open(ctx, gen)
}

// Disconnect closes the socket with a normal closure and permanently stops
// reconnection until the next Connect. It must be called on logout.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.shouldReconnect = false
	m.cancelReconnectLocked()
	m.stopHeartbeatLocked()
	m.generation++
	gen := m.generation
	conn := m.conn
	m.conn = nil
	prev := m.state
	if conn != nil {
		m.state = StateClosing
	} else {
		m.state = StateDisconnected
	}
	m.mu.Unlock()

	if conn == nil {
		if prev != StateDisconnected {
			m.emitState(StateDisconnected)
		}
		return
	}

	m.emitState(StateClosing)
	m.writeMu.Lock()
	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
		time.Now().Add(m.cfg.WriteTimeout))
	m.writeMu.Unlock()
	if err != nil {
		m.logger.Debug("close frame not delivered", zap.Error(err))
	}
	_ = conn.Close()

	m.mu.Lock()
	current := m.generation == gen
	if current {
		m.state = StateDisconnected
	}
	m.mu.Unlock()

	m.logger.Info("realtime session closed")
	if current {
		m.emitState(StateDisconnected)
	}
}

// OnForeground is called by the host when the app returns to the
// foreground. Background hosts may have suspended timers or silently lost
// the socket, so a session that should be connected but is not is
// reconnected immediately.
func (m *Manager) OnForeground(ctx context.Context) bool {
	m.mu.Lock()
	state, wanted := m.state, m.shouldReconnect
	m.mu.Unlock()

	if !wanted || state == StateOpen || state == StateConnecting {
		return false
	}

	m.logger.Info("foreground recovery, reconnecting", zap.Stringer("state", state))
	return m.Connect(ctx)
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Connected() bool {
	return m.State() == StateOpen
}

// Exhausted reports that automatic reconnection gave up after the maximum
// number of attempts. Only Connect or OnForeground will try again.
func (m *Manager) Exhausted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exhausted
}

func (m *Manager) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// Subscribe registers fn for every inbound server message except pong. fn
// runs on the read goroutine in arrival order and must not block.
func (m *Manager) Subscribe(fn func(protocol.ServerMessage)) (unsubscribe func()) {
	m.obsMu.Lock()
	id := m.nextSubscriber
	m.nextSubscriber++
	m.subscribers = append(m.subscribers, subscriber{id: id, fn: fn})
	m.obsMu.Unlock()

	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		for i, s := range m.subscribers {
			if s.id == id {
				m.subscribers = append(m.subscribers[:i:i], m.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (m *Manager) OnStateChange(fn func(State)) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.stateObservers = append(m.stateObservers, fn)
}

func (m *Manager) OnReconnectScheduled(fn func(attempt int, delay time.Duration)) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.retryObservers = append(m.retryObservers, fn)
}

// Backoff is the delay before reconnect attempt n (1-based).
func (m *Manager) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(m.cfg.ReconnectBaseDelay) * math.Pow(m.cfg.BackoffFactor, float64(attempt-1)))
}

// beginLocked starts a new generation in the connecting state and returns
// the socket it replaces.
func (m *Manager) beginLocked() (uint64, *websocket.Conn) {
	m.stopHeartbeatLocked()
	stale := m.conn
	m.conn = nil
	m.generation++
	m.state = StateConnecting
	return m.generation, stale
}

func (m *Manager) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) stopHeartbeatLocked() {
	if m.stopHeartbeat != nil {
		m.stopHeartbeat()
		m.stopHeartbeat = nil
	}
}

func (m *Manager) discard(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	m.logger.Debug("closing superseded socket")
	m.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "reconnecting"),
		time.Now().Add(m.cfg.WriteTimeout))
	m.writeMu.Unlock()
	_ = conn.Close()
}

func (m *Manager) emitState(state State) {
	m.obsMu.RLock()
	observers := append([]func(State){}, m.stateObservers...)
	m.obsMu.RUnlock()

	for _, fn := range observers {
		fn(state)
	}
}

func (m *Manager) emitRetry(attempt int, delay time.Duration) {
	m.obsMu.RLock()
	observers := append([]func(int, time.Duration){}, m.retryObservers...)
	m.obsMu.RUnlock()

	for _, fn := range observers {
		fn(attempt, delay)
	}
}

func (m *Manager) publish(msg protocol.ServerMessage) {
	m.obsMu.RLock()
	subscribers := append([]subscriber{}, m.subscribers...)
	m.obsMu.RUnlock()

	for _, s := range subscribers {
		s.fn(msg)
	}
}
