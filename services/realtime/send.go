package realtime

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/tech-arch1tect/chatline/protocol"
	"go.uber.org/zap"
)

var pingFrame = mustEncode(protocol.ActionPing, nil)

// Send writes one frame on the live socket. It reports false, and queues
// nothing, when the socket is not open or the frame cannot be written.
func (m *Manager) Send(action protocol.Action, payload any) bool {
	data, err := protocol.Encode(action, payload)
	if err != nil {
		m.logger.Warn("failed to encode frame", zap.String("action", string(action)), zap.Error(err))
		return false
	}
	if int64(len(data)) > m.cfg.MaxFrameBytes {
		m.logger.Warn("frame exceeds size limit",
			zap.String("action", string(action)),
			zap.Int("size", len(data)),
			zap.Int64("limit", m.cfg.MaxFrameBytes))
		return false
	}

	m.mu.Lock()
	conn, state := m.conn, m.state
	m.mu.Unlock()

	if state != StateOpen || conn == nil {
		m.logger.Debug("send dropped, socket not open",
			zap.String("action", string(action)),
			zap.Stringer("state", state))
		return false
	}

	if err := m.write(conn, data); err != nil {
		m.logger.Warn("send failed", zap.String("action", string(action)), zap.Error(err))
		_ = conn.Close()
		return false
	}
	return true
}

func (m *Manager) SendMessage(roomType protocol.RoomType, roomID protocol.ID, content string) bool {
	return m.Send(protocol.ActionSendMessage, protocol.SendMessage{
		RoomType: roomType,
		RoomID:   roomID,
		Content:  content,
	})
}

func (m *Manager) JoinRoom(roomType protocol.RoomType, roomID protocol.ID) bool {
	return m.Send(protocol.ActionJoinRoom, protocol.JoinRoom{RoomType: roomType, RoomID: roomID})
}

func (m *Manager) LeaveRoom(roomType protocol.RoomType, roomID protocol.ID) bool {
	return m.Send(protocol.ActionLeaveRoom, protocol.LeaveRoom{RoomType: roomType, RoomID: roomID})
}

// SendSignaling relays an opaque WebRTC payload unchanged.
func (m *Manager) SendSignaling(payload []byte) bool {
	return m.Send(protocol.ActionWebRTCSignaling, protocol.Signaling{Payload: payload})
}

func (m *Manager) write(conn *websocket.Conn, data []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func mustEncode(action protocol.Action, payload any) []byte {
	data, err := protocol.Encode(action, payload)
	if err != nil {
		panic(err)
	}
	return data
}
