package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

type RoomType string

const (
	RoomChannel RoomType = "channel"
	RoomDM      RoomType = "dm"
)

// ID accepts both JSON strings and JSON numbers, since backends disagree on
// how identifiers are encoded.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// Message is a chat message as delivered by REST history and realtime push.
// Timestamp is epoch milliseconds.
type Message struct {
	ID        ID       `json:"id"`
	RoomType  RoomType `json:"room_type"`
	RoomID    ID       `json:"room_id"`
	SenderID  ID       `json:"sender_id"`
	Content   string   `json:"content"`
	Timestamp int64    `json:"timestamp"`
}

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
	StatusAway    PresenceStatus = "away"
)

type User struct {
	ID         ID     `json:"id"`
	Username   string `json:"username"`
	Nickname   string `json:"nickname"`
	Status     string `json:"status"`
	IsOnline   bool   `json:"is_online"`
	PictureURL string `json:"picture_url"`
	BannerURL  string `json:"banner_url,omitempty"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// FormatID renders numeric identifiers the way the backend sends them.
func FormatID(n uint) ID {
	return ID(strconv.FormatUint(uint64(n), 10))
}
