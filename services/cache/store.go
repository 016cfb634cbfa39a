package cache

import (
	"time"

	"github.com/tech-arch1tect/chatline/protocol"
	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

type CachedMessage struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	RoomID    string    `json:"room_id" gorm:"uniqueIndex:idx_cached_room_message;not null"`
	MessageID string    `json:"message_id" gorm:"uniqueIndex:idx_cached_room_message;not null"`
	RoomType  string    `json:"room_type"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	Timestamp int64     `json:"timestamp" gorm:"index;not null"`
}

func fromMessage(msg protocol.Message) CachedMessage {
	return CachedMessage{
		RoomID:    msg.RoomID.String(),
		MessageID: msg.ID.String(),
		RoomType:  string(msg.RoomType),
		SenderID:  msg.SenderID.String(),
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	}
}

func (m CachedMessage) toMessage() protocol.Message {
	return protocol.Message{
		ID:        protocol.ID(m.MessageID),
		RoomType:  protocol.RoomType(m.RoomType),
		RoomID:    protocol.ID(m.RoomID),
		SenderID:  protocol.ID(m.SenderID),
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
}

// persist is called with c.mu held. A failed write keeps the message in
// memory; the database only seeds the next process.
func (c *Cache) persist(msgs []protocol.Message) {
	if c.db == nil || len(msgs) == 0 {
		return
	}

	rows := make([]CachedMessage, 0, len(msgs))
	for _, msg := range msgs {
		rows = append(rows, fromMessage(msg))
	}

	if err := c.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		c.logger.Error("failed to save cached messages to database",
			zap.Int("count", len(rows)),
			zap.Error(err))
	}
}

// LoadFromDatabase replaces the in-memory rooms with the persisted ones.
// Every room with at least one stored message comes back loaded.
func (c *Cache) LoadFromDatabase() error {
	if c.db == nil {
		c.logger.Debug("no database available for cache loading")
		return nil
	}

	var rows []CachedMessage
	if err := c.db.Order("room_id, timestamp, id").Find(&rows).Error; err != nil {
		c.logger.Error("failed to load cached messages from database", zap.Error(err))
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.rooms = make(map[protocol.ID][]protocol.Message)
	c.seen = make(map[protocol.ID]map[protocol.ID]struct{})
	c.loaded = make(map[protocol.ID]bool)

	for _, row := range rows {
		msg := row.toMessage()
		seen := c.seenLocked(msg.RoomID)
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		seen[msg.ID] = struct{}{}
		c.rooms[msg.RoomID] = append(c.rooms[msg.RoomID], msg)
		c.loaded[msg.RoomID] = true
	}

	c.logger.Info("loaded cached messages from database",
		zap.Int("messages", len(rows)),
		zap.Int("rooms", len(c.loaded)))

	return nil
}
