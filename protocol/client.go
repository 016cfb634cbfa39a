package protocol

import (
	"encoding/json"
	"fmt"
)

type SendMessage struct {
	RoomType RoomType `json:"room_type"`
	RoomID   ID       `json:"room_id"`
	Content  string   `json:"content"`
}

type JoinRoom struct {
	RoomType RoomType `json:"room_type"`
	RoomID   ID       `json:"room_id"`
}

type LeaveRoom struct {
	RoomType RoomType `json:"room_type"`
	RoomID   ID       `json:"room_id"`
}

// Encode builds the wire form {"action": ..., "data": ...}. A nil payload
// omits data, which is how ping is sent.
func Encode(action Action, payload any) ([]byte, error) {
	frame := Frame{Action: action}

	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		frame.Data = p
	case Signaling:
		frame.Data = p.Payload
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", action, err)
		}
		frame.Data = data
	}

	return json.Marshal(frame)
}
