package transport

import (
	"encoding/json"
	"sync"

	"github.com/Naser58164/praxis-medius/internal/domain"

	"go.uber.org/zap"
)

// Rooms 会话 ID 到成员连接的映射，实现 domain.EventSink。
// Publish 在会话锁内被调用，只做非阻塞投递。
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[*Client]struct{}
	logger  *zap.Logger
}

// NewRooms 创建房间表
func NewRooms(logger *zap.Logger) *Rooms {
	return &Rooms{
		members: make(map[string]map[*Client]struct{}),
		logger:  logger,
	}
}

// Subscribe 把连接加入会话房间
func (r *Rooms) Subscribe(sessionID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.members[sessionID]
	if !ok {
		room = make(map[*Client]struct{})
		r.members[sessionID] = room
	}
	room[c] = struct{}{}
}

// Unsubscribe 把连接移出会话房间
func (r *Rooms) Unsubscribe(sessionID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.members[sessionID]
	if !ok {
		return
	}
	delete(room, c)
	if len(room) == 0 {
		delete(r.members, sessionID)
	}
}

// Size 房间成员数
func (r *Rooms) Size(sessionID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members[sessionID])
}

// Publish 实现 domain.EventSink
func (r *Rooms) Publish(ev domain.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.members[ev.SessionID]
	if len(room) == 0 {
		return
	}
	frame, err := json.Marshal(newEventFrame(ev))
	if err != nil {
		r.logger.Error("Failed to marshal event frame",
			zap.String("session_id", ev.SessionID),
			zap.String("event", string(ev.Name)),
			zap.Error(err),
		)
		return
	}
	for c := range room {
		c.offer(frame)
	}
}
