package messages

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/tech-arch1tect/chatline/config"
	"github.com/tech-arch1tect/chatline/protocol"
	"github.com/tech-arch1tect/chatline/services/cache"
	"github.com/tech-arch1tect/chatline/services/logging"
	"go.uber.org/zap"
)

const DefaultPageSize = 50

type API interface {
	Get(ctx context.Context, path string, query url.Values, out any) error
}

// Page is one page of room history. HasMore is a guess: a full page means
// there may be older messages.
type Page struct {
	Messages []protocol.Message
	Added    int
	HasMore  bool
}

// Loader pages room history over REST into the cache.
type Loader struct {
	api    API
	cache  *cache.Cache
	path   string
	logger *logging.Service
}

func New(cfg *config.Config, api API, c *cache.Cache, logger *logging.Service) *Loader {
	return &Loader{
		api:    api,
		cache:  c,
		path:   cfg.API.MessagesPath,
		logger: logger,
	}
}

// LoadPage fetches up to limit messages older than beforeID (the newest page
// when beforeID is empty) and merges them into the room.
func (l *Loader) LoadPage(ctx context.Context, roomID, beforeID protocol.ID, limit int) (*Page, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	query := url.Values{
		"room_id": {roomID.String()},
		"limit":   {strconv.Itoa(limit)},
	}
	if beforeID != "" {
		query.Set("message_id", beforeID.String())
	}

	var msgs []protocol.Message
	if err := l.api.Get(ctx, l.path, query, &msgs); err != nil {
		l.logger.Warn("failed to load history",
			zap.String("room_id", roomID.String()),
			zap.String("before", beforeID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("load history for room %s: %w", roomID, err)
	}

	added := l.cache.MergeMessages(roomID, msgs)
	return &Page{Messages: msgs, Added: added, HasMore: len(msgs) == limit}, nil
}

// LoadOlder continues backwards from the oldest cached message of the room.
func (l *Loader) LoadOlder(ctx context.Context, roomID protocol.ID, limit int) (*Page, error) {
	var before protocol.ID
	if cached := l.cache.Messages(roomID); len(cached) > 0 {
		before = cached[0].ID
	}
	return l.LoadPage(ctx, roomID, before, limit)
}

// Forget drops a room from the cache, e.g. when a DM is hidden.
func (l *Loader) Forget(roomID protocol.ID) {
	l.cache.ClearRoom(roomID)
}
