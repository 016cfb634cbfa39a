package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Action string

// Client to server.
const (
	ActionPing            Action = "ping"
	ActionSendMessage     Action = "send_message"
	ActionJoinRoom        Action = "join_room"
	ActionLeaveRoom       Action = "leave_room"
	ActionWebRTCSignaling Action = "webrtc_signaling"
)

// Server to client.
const (
	ActionPong                  Action = "pong"
	ActionNewMessage            Action = "new_message"
	ActionRoomJoined            Action = "room_joined"
	ActionRoomLeft              Action = "room_left"
	ActionMessageSent           Action = "message_sent"
	ActionUserStatus            Action = "user_status"
	ActionError                 Action = "error"
	ActionVoiceCallNotification Action = "voice_call_notification"
)

var (
	ErrMalformedFrame = errors.New("malformed realtime frame")
	ErrMissingAction  = errors.New("realtime frame has no action")
)

// Frame is the JSON envelope of every realtime text frame.
type Frame struct {
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is the closed set of frames a server can push.
type ServerMessage interface {
	Action() Action
	serverMessage()
}

type Pong struct{}

type NewMessage struct{ Message }

type MessageSent struct{ Message }

type RoomJoined struct {
	Message string `json:"message"`
}

type RoomLeft struct {
	Message string `json:"message"`
}

type UserStatus struct {
	UserID ID             `json:"user_id"`
	Status PresenceStatus `json:"status"`
}

type Error struct {
	Message        string `json:"message"`
	OriginalAction Action `json:"original_action,omitempty"`
}

type VoiceCallNotification struct {
	Payload json.RawMessage
}

// Signaling carries an opaque WebRTC offer/answer/candidate in either direction.
type Signaling struct {
	Payload json.RawMessage
}

// Unhandled is any frame whose action this client does not know.
type Unhandled struct {
	Name Action
	Data json.RawMessage
}

func (Pong) Action() Action                  { return ActionPong }
func (NewMessage) Action() Action            { return ActionNewMessage }
func (MessageSent) Action() Action           { return ActionMessageSent }
func (RoomJoined) Action() Action            { return ActionRoomJoined }
func (RoomLeft) Action() Action              { return ActionRoomLeft }
func (UserStatus) Action() Action            { return ActionUserStatus }
func (Error) Action() Action                 { return ActionError }
func (VoiceCallNotification) Action() Action { return ActionVoiceCallNotification }
func (Signaling) Action() Action             { return ActionWebRTCSignaling }
func (u Unhandled) Action() Action           { return u.Name }

func (Pong) serverMessage()                  {}
func (NewMessage) serverMessage()            {}
func (MessageSent) serverMessage()           {}
func (RoomJoined) serverMessage()            {}
func (RoomLeft) serverMessage()              {}
func (UserStatus) serverMessage()            {}
func (Error) serverMessage()                 {}
func (VoiceCallNotification) serverMessage() {}
func (Signaling) serverMessage()             {}
func (Unhandled) serverMessage()             {}

// DecodeServerMessage parses one inbound frame. Unknown actions decode to
// Unhandled rather than failing.
func DecodeServerMessage(raw []byte) (ServerMessage, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if frame.Action == "" {
		return nil, ErrMissingAction
	}

	switch frame.Action {
	case ActionPong:
		return Pong{}, nil
	case ActionNewMessage:
		return decodeAs[NewMessage](frame)
	case ActionMessageSent:
		return decodeAs[MessageSent](frame)
	case ActionRoomJoined:
		return decodeAs[RoomJoined](frame)
	case ActionRoomLeft:
		return decodeAs[RoomLeft](frame)
	case ActionUserStatus:
		return decodeAs[UserStatus](frame)
	case ActionError:
		return decodeAs[Error](frame)
	case ActionVoiceCallNotification:
		return VoiceCallNotification{Payload: frame.Data}, nil
	case ActionWebRTCSignaling:
		return Signaling{Payload: frame.Data}, nil
	default:
		return Unhandled{Name: frame.Action, Data: frame.Data}, nil
	}
}

func decodeAs[T ServerMessage](frame Frame) (ServerMessage, error) {
	var m T
	if err := decodeData(frame, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeData(frame Frame, target any) error {
	if len(frame.Data) == 0 || string(frame.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(frame.Data, target); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, frame.Action, err)
	}
	return nil
}
