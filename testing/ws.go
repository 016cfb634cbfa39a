package e2etesting

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/chatline/protocol"
	"go.uber.org/zap"
)

type socket struct {
	conn   *websocket.Conn
	userID uint

	writeMu sync.Mutex
	rooms   map[protocol.ID]bool
}

func (s *socket) send(action protocol.Action, payload any) error {
	frame, err := protocol.Encode(action, payload)
	if err != nil {
		return err
	}
	return s.sendRaw(frame)
}

func (s *socket) sendRaw(frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (b *Backend) handleWS(c echo.Context) error {
	b.handshakes.Add(1)

	if b.rejectWS.Load() {
		return newAPIError(http.StatusServiceUnavailable, "INTERNAL_SERVER", "realtime endpoint unavailable")
	}

	claims, err := b.issuer.Validate(c.QueryParam("token"), tokenTypeAccess)
	if err != nil {
		return newAPIError(http.StatusUnauthorized, "INVALID_TOKEN", err.Error())
	}

	conn, err := b.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		b.logger.Info("upgrade websocket failed", zap.Error(err))
		return nil
	}

	s := &socket{conn: conn, userID: claims.UserID(), rooms: make(map[protocol.ID]bool)}
	b.track(s)
	defer b.untrack(s)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Debug("peer closed", zap.Uint("user_id", s.userID))
			} else {
				b.logger.Debug("read failed", zap.Uint("user_id", s.userID), zap.Error(err))
			}
			return nil
		}
		b.dispatch(s, data)
	}
}

func (b *Backend) dispatch(s *socket, data []byte) {
	var frame protocol.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		_ = s.send(protocol.ActionError, protocol.Error{Message: "malformed frame"})
		return
	}

	b.mu.Lock()
	b.frames = append(b.frames, frame)
	b.mu.Unlock()

	switch frame.Action {
	case protocol.ActionPing:
		if b.mutePongs.Load() {
			return
		}
		_ = s.sendRaw([]byte(`{"action":"pong","data":null}`))

	case protocol.ActionJoinRoom:
		var req protocol.JoinRoom
		_ = json.Unmarshal(frame.Data, &req)
		if !b.roomExists(req.RoomID) {
			_ = s.send(protocol.ActionError, protocol.Error{Message: "room not found", OriginalAction: protocol.ActionJoinRoom})
			return
		}
		b.mu.Lock()
		s.rooms[req.RoomID] = true
		b.mu.Unlock()
		_ = s.send(protocol.ActionRoomJoined, protocol.RoomJoined{Message: "joined room " + req.RoomID.String()})

	case protocol.ActionLeaveRoom:
		var req protocol.LeaveRoom
		_ = json.Unmarshal(frame.Data, &req)
		b.mu.Lock()
		delete(s.rooms, req.RoomID)
		b.mu.Unlock()
		_ = s.send(protocol.ActionRoomLeft, protocol.RoomLeft{Message: "left room " + req.RoomID.String()})

	case protocol.ActionSendMessage:
		var req protocol.SendMessage
		if err := json.Unmarshal(frame.Data, &req); err != nil || !b.roomExists(req.RoomID) {
			_ = s.send(protocol.ActionError, protocol.Error{Message: "room not found", OriginalAction: protocol.ActionSendMessage})
			return
		}
		msg := protocol.Message{
			ID:        protocol.ID(uuid.NewString()),
			RoomType:  req.RoomType,
			RoomID:    req.RoomID,
			SenderID:  protocol.FormatID(s.userID),
			Content:   req.Content,
			Timestamp: time.Now().UnixMilli(),
		}
		b.AddRoom(req.RoomID, msg)
		_ = s.send(protocol.ActionMessageSent, msg)
		b.broadcast(s, req.RoomID, protocol.ActionNewMessage, msg)

	case protocol.ActionWebRTCSignaling:
		b.broadcast(s, "", protocol.ActionWebRTCSignaling, json.RawMessage(frame.Data))

	default:
		_ = s.send(protocol.ActionError, protocol.Error{Message: "unknown action", OriginalAction: frame.Action})
	}
}

func (b *Backend) roomExists(id protocol.ID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.rooms[id]
	return ok
}

// broadcast sends to every other socket, limited to members of room when
// room is set.
func (b *Backend) broadcast(from *socket, room protocol.ID, action protocol.Action, payload any) {
	for _, s := range b.snapshot() {
		if s == from {
			continue
		}
		b.mu.Lock()
		member := room == "" || s.rooms[room]
		b.mu.Unlock()
		if member {
			_ = s.send(action, payload)
		}
	}
}

func (b *Backend) track(s *socket) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sockets[s] = struct{}{}
}

func (b *Backend) untrack(s *socket) {
	b.mu.Lock()
	delete(b.sockets, s)
	b.mu.Unlock()
	_ = s.conn.Close()
}

func (b *Backend) snapshot() []*socket {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*socket, 0, len(b.sockets))
	for s := range b.sockets {
		out = append(out, s)
	}
	return out
}

func (b *Backend) OpenSockets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sockets)
}

func (b *Backend) Handshakes() int {
	return int(b.handshakes.Load())
}

// WaitForSockets blocks until exactly n sockets are open.
func (b *Backend) WaitForSockets(n int) {
	b.t.Helper()
	require.Eventually(b.t, func() bool { return b.OpenSockets() == n },
		2*time.Second, 5*time.Millisecond, "expected %d open sockets", n)
}

// MutePongs makes the endpoint swallow pings, like a peer that has gone
// silent without closing the connection.
func (b *Backend) MutePongs(mute bool) {
	b.mutePongs.Store(mute)
}

func (b *Backend) RejectHandshakes(reject bool) {
	b.rejectWS.Store(reject)
}

// DropConnections cuts every socket without a close frame, which the client
// sees as an abnormal closure.
func (b *Backend) DropConnections() {
	for _, s := range b.snapshot() {
		_ = s.conn.UnderlyingConn().Close()
	}
}

// CloseConnections performs a close handshake with the given code.
func (b *Backend) CloseConnections(code int) {
	msg := websocket.FormatCloseMessage(code, "server closing")
	for _, s := range b.snapshot() {
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		s.writeMu.Unlock()
	}
}

func (b *Backend) Push(action protocol.Action, payload any) {
	for _, s := range b.snapshot() {
		_ = s.send(action, payload)
	}
}

func (b *Backend) PushRaw(frame []byte) {
	for _, s := range b.snapshot() {
		_ = s.sendRaw(frame)
	}
}

// Frames lists the client frames received so far, in arrival order.
func (b *Backend) Frames() []protocol.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]protocol.Frame(nil), b.frames...)
}

func (b *Backend) FramesWithAction(action protocol.Action) []protocol.Frame {
	var out []protocol.Frame
	for _, f := range b.Frames() {
		if f.Action == action {
			out = append(out, f)
		}
	}
	return out
}
