package transport

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/Naser58164/praxis-medius/internal/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// HubOptions websocket 参数
type HubOptions struct {
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
	ReadBufferSize  int
	WriteBufferSize int
}

// Hub websocket 接入：握手认证后把帧交给 Dispatcher
type Hub struct {
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
	sendBuffer int
	logger     *zap.Logger
}

// NewHub 创建 websocket 接入
func NewHub(dispatcher *Dispatcher, opts HubOptions, logger *zap.Logger) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultSendBuffer
	}
	if opts.CheckOrigin == nil {
		opts.CheckOrigin = func(*http.Request) bool { return true }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  opts.ReadBufferSize,
			WriteBufferSize: opts.WriteBufferSize,
			CheckOrigin:     opts.CheckOrigin,
		},
		sendBuffer: opts.SendBuffer,
		logger:     logger,
	}
}

// ServeHTTP 握手参数 userId、role，可选 session（ID 或加入码）自动 join
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("userId"))
	if userID == "" {
		http.Error(w, "userId is required", http.StatusUnauthorized)
		return
	}
	role, err := domain.ParseRole(q.Get("role"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	c := NewClient(userID, role, h.sendBuffer)
	h.logger.Info("Websocket connected",
		zap.String("user_id", userID),
		zap.String("role", string(role)),
		zap.String("remote_addr", r.RemoteAddr),
	)

	go h.writePump(conn, c)

	if target := strings.TrimSpace(q.Get("session")); target != "" {
		payload, _ := json.Marshal(joinPayload{Session: target})
		h.reply(c, h.dispatcher.Dispatch(c, Command{Type: CmdJoin, Payload: payload}))
	}
	h.readPump(conn, c)
}

func (h *Hub) reply(c *Client, ack Ack) {
	frame, err := json.Marshal(ack)
	if err != nil {
		h.logger.Error("Failed to marshal ack", zap.String("id", ack.ID), zap.Error(err))
		frame, _ = json.Marshal(errAck(ack.ID, err))
	}
	c.deliver(frame)
}

func (h *Hub) readPump(conn *websocket.Conn, c *Client) {
	defer func() {
		h.dispatcher.Disconnect(c)
		_ = conn.Close()
		h.logger.Info("Websocket disconnected",
			zap.String("user_id", c.UserID),
			zap.String("role", string(c.Role)),
		)
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("Websocket read error", zap.String("user_id", c.UserID), zap.Error(err))
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			h.reply(c, errAck("", domain.ErrValidation))
			continue
		}
		h.reply(c, h.dispatcher.Dispatch(c, cmd))
	}
}

func (h *Hub) writePump(conn *websocket.Conn, c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame := <-c.Outbox():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.Lagged():
			h.logger.Warn("Closing lagging websocket client",
				zap.String("user_id", c.UserID),
				zap.String("session_id", c.SessionID()),
			)
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "client lagging"))
			return
		case <-c.done:
			return
		}
	}
}
