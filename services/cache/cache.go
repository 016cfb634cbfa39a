package cache

import (
	"slices"
	"sort"
	"sync"

	"github.com/tech-arch1tect/chatline/protocol"
	"github.com/tech-arch1tect/chatline/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Cache holds the loaded history of each room, ordered by timestamp with no
// duplicate ids. Messages only leave a room through ClearRoom.
type Cache struct {
	mu     sync.RWMutex
	rooms  map[protocol.ID][]protocol.Message
	seen   map[protocol.ID]map[protocol.ID]struct{}
	loaded map[protocol.ID]bool
	db     *gorm.DB
	logger *logging.Service
}

func New(logger *logging.Service) *Cache {
	return &Cache{
		rooms:  make(map[protocol.ID][]protocol.Message),
		seen:   make(map[protocol.ID]map[protocol.ID]struct{}),
		loaded: make(map[protocol.ID]bool),
		logger: logger,
	}
}

// NewWithDB returns a cache that writes every accepted message through to
// the cached_messages table.
func NewWithDB(db *gorm.DB, logger *logging.Service) *Cache {
	c := New(logger)
	c.db = db
	return c
}

// MergeMessages adds the messages of a history page that are not cached yet
// and marks the room loaded. Merging the same page again changes nothing.
func (c *Cache) MergeMessages(roomID protocol.ID, page []protocol.Message) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loaded[roomID] = true
	seen := c.seenLocked(roomID)

	var added []protocol.Message
	for _, msg := range page {
		if _, dup := seen[msg.ID]; dup {
			continue
		}
		if msg.RoomID == "" {
			msg.RoomID = roomID
		}
		seen[msg.ID] = struct{}{}
		added = append(added, msg)
	}

	if len(added) > 0 {
		merged := append(c.rooms[roomID], added...)
		slices.SortStableFunc(merged, func(a, b protocol.Message) int {
			switch {
			case a.Timestamp < b.Timestamp:
				return -1
			case a.Timestamp > b.Timestamp:
				return 1
			default:
				return 0
			}
		})
		c.rooms[roomID] = merged
		c.persist(added)
	}

	c.logger.Debug("merged history page",
		zap.String("room_id", roomID.String()),
		zap.Int("page", len(page)),
		zap.Int("added", len(added)),
		zap.Int("total", len(c.rooms[roomID])))

	return len(added)
}

// PushRealtime appends a message received over the socket. Rooms whose
// history was never loaded are left alone, so a partial view is never
// mistaken for a complete one.
func (c *Cache) PushRealtime(msg protocol.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded[msg.RoomID] {
		c.logger.Debug("ignoring message for unloaded room", zap.String("room_id", msg.RoomID.String()))
		return false
	}
	seen := c.seenLocked(msg.RoomID)
	if _, dup := seen[msg.ID]; dup {
		return false
	}
	seen[msg.ID] = struct{}{}

	msgs := c.rooms[msg.RoomID]
	i := sort.Search(len(msgs), func(i int) bool { return msgs[i].Timestamp > msg.Timestamp })
	c.rooms[msg.RoomID] = slices.Insert(msgs, i, msg)

	c.persist([]protocol.Message{msg})
	return true
}

// Observe feeds realtime events into the cache. Other actions are ignored.
func (c *Cache) Observe(msg protocol.ServerMessage) {
	switch m := msg.(type) {
	case protocol.NewMessage:
		c.PushRealtime(m.Message)
	case protocol.MessageSent:
		c.PushRealtime(m.Message)
	}
}

func (c *Cache) ClearRoom(roomID protocol.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.rooms, roomID)
	delete(c.seen, roomID)
	delete(c.loaded, roomID)

	if c.db != nil {
		if err := c.db.Where("room_id = ?", roomID.String()).Delete(&CachedMessage{}).Error; err != nil {
			c.logger.Error("failed to delete cached room", zap.String("room_id", roomID.String()), zap.Error(err))
		}
	}

	c.logger.Debug("room cleared", zap.String("room_id", roomID.String()))
}

// Messages returns a copy of the room's messages in timestamp order.
func (c *Cache) Messages(roomID protocol.ID) []protocol.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.rooms[roomID])
}

func (c *Cache) Loaded(roomID protocol.ID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded[roomID]
}

func (c *Cache) Rooms() []protocol.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]protocol.ID, 0, len(c.loaded))
	for id := range c.loaded {
		rooms = append(rooms, id)
	}
	slices.Sort(rooms)
	return rooms
}

func (c *Cache) seenLocked(roomID protocol.ID) map[protocol.ID]struct{} {
	seen, ok := c.seen[roomID]
	if !ok {
		seen = make(map[protocol.ID]struct{})
		c.seen[roomID] = seen
	}
	return seen
}
