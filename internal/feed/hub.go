package feed

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pot-code/learnsync/internal/infrastructure/driver"
	"github.com/pot-code/learnsync/internal/infrastructure/logging"
	"github.com/pot-code/learnsync/internal/infrastructure/uuid"
	"github.com/pot-code/learnsync/internal/progress"
	"go.uber.org/zap"
)

const subscriberBuffer = 4

// Event one authoritative snapshot of a user's records
type Event struct {
	Username string                           `json:"username"`
	Records  []*progress.CourseProgressRecord `json:"records"`
}

// Hub fans progress snapshots out to open feed streams.
//
// With a KeyValueDB the hub publishes to a shared channel and delivers what it receives from it,
// so every server instance reaches its own subscribers. Without one delivery stays in-process.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[string]chan []byte
	ids     uuid.Generator
	kv      driver.KeyValueDB
	channel string
}

var _ progress.Publisher = &Hub{}

// NewHub kv may be nil
func NewHub(ids uuid.Generator, kv driver.KeyValueDB, channel string) *Hub {
	if channel == "" {
		kv = nil
	}
	return &Hub{
		subs:    make(map[string]map[string]chan []byte),
		ids:     ids,
		kv:      kv,
		channel: channel,
	}
}

// Start subscribes to the shared channel until ctx is done, no-op for in-process hubs
func (h *Hub) Start(ctx context.Context) error {
	if h.kv == nil {
		return nil
	}
	logger := logging.ExtractLoggerFromContext(ctx)
	return h.kv.Subscribe(ctx, h.channel, func(payload []byte) {
		var head struct {
			Username string `json:"username"`
		}
		if err := json.Unmarshal(payload, &head); err != nil || head.Username == "" {
			logger.Warn("malformed feed event", zap.String("redis.channel", h.channel))
			return
		}
		h.deliver(head.Username, payload)
	})
}

// Publish implements progress.Publisher
func (h *Hub) Publish(ctx context.Context, username string, records []*progress.CourseProgressRecord) {
	payload, err := json.Marshal(&Event{username, records})
	if err != nil {
		logging.ExtractLoggerFromContext(ctx).Error("encode feed event", zap.Error(err))
		return
	}
	if h.kv != nil {
		if err := h.kv.Publish(ctx, h.channel, payload); err != nil {
			logging.ExtractLoggerFromContext(ctx).Warn("feed publish failed, delivering locally",
				zap.String("redis.channel", h.channel), zap.Error(err))
			h.deliver(username, payload)
		}
		return
	}
	h.deliver(username, payload)
}

// deliver never blocks: a slow subscriber loses its oldest queued snapshot, which the new one supersedes
func (h *Hub) deliver(username string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[username] {
		select {
		case ch <- payload:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- payload:
		default:
		}
	}
}

// Subscription stream of encoded Event frames for one user
type Subscription struct {
	ID       string
	C        <-chan []byte
	username string
	hub      *Hub
	once     sync.Once
}

// Subscribe registers a new stream for username
func (h *Hub) Subscribe(username string) (*Subscription, error) {
	id, err := h.ids.Generate()
	if err != nil {
		return nil, err
	}
	ch := make(chan []byte, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[username] == nil {
		h.subs[username] = make(map[string]chan []byte)
	}
	h.subs[username][id] = ch
	return &Subscription{ID: id, C: ch, username: username, hub: h}, nil
}

// Subscribers number of open streams of username
func (h *Hub) Subscribers(username string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[username])
}

// Close unregisters the stream and closes C
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subs[s.username]
		if ch, ok := subs[s.ID]; ok {
			delete(subs, s.ID)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subs, s.username)
		}
	})
}
