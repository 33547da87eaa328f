package transport

import (
	"sync"

	"github.com/Naser58164/praxis-medius/internal/domain"
)

// DefaultSendBuffer 每个连接的出站缓冲帧数
const DefaultSendBuffer = 256

// Client 一个已认证的连接身份。join 之后绑定到一个会话并持有角色令牌。
type Client struct {
	UserID string
	Role   domain.Role

	mu        sync.Mutex
	sessionID string
	token     string

	out      chan []byte
	lagged   chan struct{}
	lagOnce  sync.Once
	closeOne sync.Once
	done     chan struct{}
}

// NewClient buffer <= 0 时不接收事件（例如只发命令的网关客户端）
func NewClient(userID string, role domain.Role, buffer int) *Client {
	c := &Client{
		UserID: userID,
		Role:   role,
		lagged: make(chan struct{}),
		done:   make(chan struct{}),
	}
	if buffer > 0 {
		c.out = make(chan []byte, buffer)
	}
	return c
}

// Outbox 出站帧（事件与应答）
func (c *Client) Outbox() <-chan []byte { return c.out }

// Lagged 出站缓冲溢出后关闭，连接应断开让客户端重新 join
func (c *Client) Lagged() <-chan struct{} { return c.lagged }

// SessionID 绑定的会话（未 join 为空）
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) binding() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID, c.token
}

func (c *Client) bind(sessionID, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = sessionID
	c.token = token
}

func (c *Client) unbind() {
	c.bind("", "")
}

// offer 非阻塞投递事件帧，缓冲满时标记为滞后并丢弃
func (c *Client) offer(frame []byte) {
	if c.out == nil {
		return
	}
	select {
	case c.out <- frame:
	default:
		c.lagOnce.Do(func() { close(c.lagged) })
	}
}

// deliver 阻塞投递应答帧，连接关闭后放弃
func (c *Client) deliver(frame []byte) bool {
	if c.out == nil {
		return false
	}
	select {
	case c.out <- frame:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) close() {
	c.closeOne.Do(func() { close(c.done) })
}
