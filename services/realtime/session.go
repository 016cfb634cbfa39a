package realtime

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func (m *Manager) open(ctx context.Context, gen uint64) bool {
	token, err := m.tokens.AccessToken(ctx)
	if err != nil {
		m.logger.Warn("no access token for handshake", zap.Uint64("generation", gen), zap.Error(err))
		m.handleClose(gen, websocket.CloseAbnormalClosure)
		return false
	}

	conn, resp, err := m.dialer.DialContext(ctx, m.endpoint(token), nil)

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		m.logger.Debug("handshake superseded", zap.Uint64("generation", gen))
		return false
	}

	if err != nil {
		m.mu.Unlock()
		fields := []zap.Field{zap.Uint64("generation", gen), zap.Error(err)}
		if resp != nil {
			fields = append(fields, zap.Int("status", resp.StatusCode))
		}
		m.logger.Warn("realtime handshake failed", fields...)
		m.handleClose(gen, websocket.CloseAbnormalClosure)
		return false
	}

	hbCtx, cancel := context.WithCancel(context.Background())
	m.conn = conn
	m.state = StateOpen
	m.attempts = 0
	m.stopHeartbeat = cancel
	m.mu.Unlock()

	m.extendReadDeadline(conn)
	m.logger.Info("realtime session open", zap.Uint64("generation", gen))
	m.emitState(StateOpen)

	go m.heartbeat(hbCtx, conn, gen)
	go m.readLoop(conn, gen)
	return true
}

func (m *Manager) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, r, err := conn.NextReader()
		if err != nil {
			code := closeCode(err)
			if code == websocket.CloseNormalClosure {
				m.logger.Debug("socket closed", zap.Uint64("generation", gen))
			} else {
				m.logger.Debug("socket read failed", zap.Uint64("generation", gen), zap.Int("code", code), zap.Error(err))
			}
			m.handleClose(gen, code)
			return
		}
		m.extendReadDeadline(conn)

		data, err := io.ReadAll(io.LimitReader(r, m.cfg.MaxFrameBytes+1))
		if err != nil {
			m.handleClose(gen, closeCode(err))
			return
		}
		if int64(len(data)) > m.cfg.MaxFrameBytes {
			n, _ := io.Copy(io.Discard, r)
			m.logger.Warn("dropping oversized frame",
				zap.Int64("size", int64(len(data))+n),
				zap.Int64("limit", m.cfg.MaxFrameBytes))
			continue
		}

		m.dispatch(data)
	}
}

// heartbeat keeps intermediaries from idling the socket out. A failed ping
// closes the socket so the read loop reports the loss.
func (m *Manager) heartbeat(ctx context.Context, conn *websocket.Conn, gen uint64) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.write(conn, pingFrame); err != nil {
				m.logger.Warn("heartbeat failed", zap.Uint64("generation", gen), zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}
}

// handleClose records the loss of socket gen and, for an abnormal close
// while the session wants a socket, arms the next reconnect attempt.
func (m *Manager) handleClose(gen uint64, code int) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}

	m.stopHeartbeatLocked()
	conn := m.conn
	m.conn = nil
	m.state = StateDisconnected

	attempt, delay := 0, time.Duration(0)
	if code != websocket.CloseNormalClosure && m.shouldReconnect {
		if m.attempts < m.cfg.MaxReconnectAttempts {
			m.attempts++
			attempt = m.attempts
			delay = m.Backoff(attempt)
		} else {
			m.exhausted = true
		}
	}
	exhausted := m.exhausted
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.emitState(StateDisconnected)

	switch {
	case attempt > 0:
		m.logger.Info("scheduling reconnect",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Int("code", code))
		m.emitRetry(attempt, delay)
		m.armReconnect(gen, delay)
	case exhausted:
		m.logger.Warn("reconnect attempts exhausted", zap.Int("max", m.cfg.MaxReconnectAttempts))
	}
}

func (m *Manager) armReconnect(gen uint64, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || !m.shouldReconnect || m.state != StateDisconnected {
		return
	}
	m.cancelReconnectLocked()
	m.reconnectTimer = time.AfterFunc(delay, func() {
		m.reconnect(gen)
	})
}

func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || !m.shouldReconnect || m.state != StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.reconnectTimer = nil
	next, stale := m.beginLocked()
	m.mu.Unlock()

	m.discard(stale)
	m.emitState(StateConnecting)
	m.open(context.Background(), next)
}

func (m *Manager) extendReadDeadline(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(2 * m.cfg.HeartbeatInterval))
}

// closeCode maps a read error to a close code. Anything that is not a close
// frame, such as a reset or a read timeout, counts as abnormal.
func closeCode(err error) int {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return closeErr.Code
	}
	return websocket.CloseAbnormalClosure
}
