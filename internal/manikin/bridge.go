package manikin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqttcommon "github.com/Naser58164/praxis-medius/common/mqtt"
	"github.com/Naser58164/praxis-medius/internal/domain"
	"github.com/Naser58164/praxis-medius/internal/transport"

	"go.uber.org/zap"
)

const (
	DefaultTopicPrefix = "praxis/manikin"
	DefaultUserID      = "manikin-gateway"
	DefaultQueueSize   = 256
)

// Broker MQTT 连接（由 common/mqtt.Client 实现）
type Broker interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Options 桥接参数
type Options struct {
	TopicPrefix string
	QoS         byte
	UserID      string
	QueueSize   int
}

// CommandMessage 发往模拟人网关的指令
type CommandMessage struct {
	SessionID string    `json:"sessionId"`
	Seq       uint64    `json:"seq"`
	Action    string    `json:"action"`
	NodeID    string    `json:"nodeId,omitempty"`
	At        time.Time `json:"at"`
}

// Bridge 模拟人网关与会话之间的 MQTT 桥接。
// 上行：<prefix>/<sessionId|joinCode>/feedback 作为 manikin 角色的 manikinFeedback 命令；
// 下行：manikinCommand 事件发布到 <prefix>/<sessionId>/command。
type Bridge struct {
	broker     Broker
	dispatcher *transport.Dispatcher
	opts       Options
	logger     *zap.Logger

	mu      sync.Mutex
	clients map[string]*transport.Client // 会话 ID -> 桥接连接

	events   chan domain.Event
	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewBridge 创建桥接
func NewBridge(broker Broker, dispatcher *transport.Dispatcher, opts Options, logger *zap.Logger) *Bridge {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = DefaultTopicPrefix
	}
	opts.TopicPrefix = strings.TrimSuffix(opts.TopicPrefix, "/")
	if opts.UserID == "" {
		opts.UserID = DefaultUserID
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		broker:     broker,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
		clients:    make(map[string]*transport.Client),
		events:     make(chan domain.Event, opts.QueueSize),
		stop:       make(chan struct{}),
	}
}

func (b *Bridge) feedbackTopic() string {
	return b.opts.TopicPrefix + "/+/feedback"
}

// CommandTopic 会话的下行主题
func (b *Bridge) CommandTopic(sessionID string) string {
	return b.opts.TopicPrefix + "/" + sessionID + "/command"
}

// Start 订阅上行主题并启动下行 worker
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.broker.Subscribe(b.feedbackTopic(), b.opts.QoS, b.handleFeedback); err != nil {
		return err
	}
	b.wg.Add(1)
	go b.run(ctx)

	b.logger.Info("Manikin bridge started",
		zap.String("feedback_topic", b.feedbackTopic()),
		zap.String("command_topic", b.CommandTopic("{sessionId}")),
	)
	return nil
}

// Stop 取消订阅，停止 worker 并释放所有模拟人槽位
func (b *Bridge) Stop() {
	if err := b.broker.Unsubscribe(b.feedbackTopic()); err != nil {
		b.logger.Warn("Failed to unsubscribe manikin feedback", zap.Error(err))
	}
	b.stopOnce.Do(func() { close(b.stop) })
	b.wg.Wait()

	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[string]*transport.Client)
	b.mu.Unlock()
	for _, c := range clients {
		b.dispatcher.Disconnect(c)
	}
}

// Publish 实现 domain.EventSink；在会话锁内调用，只入队
func (b *Bridge) Publish(ev domain.Event) {
	if ev.Name != domain.EventManikinCommand && ev.Name != domain.EventSimulationEnded {
		return
	}
	select {
	case b.events <- ev:
	default:
		b.logger.Warn("Manikin event queue full, dropping event",
			zap.String("session_id", ev.SessionID),
			zap.String("event", string(ev.Name)),
		)
	}
}

func (b *Bridge) run(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case ev := <-b.events:
			b.handleEvent(ev)
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		}
	}
}

func (b *Bridge) handleEvent(ev domain.Event) {
	switch ev.Name {
	case domain.EventManikinCommand:
		data, ok := ev.Data.(domain.ManikinCommandData)
		if !ok {
			return
		}
		msg, err := json.Marshal(CommandMessage{
			SessionID: ev.SessionID,
			Seq:       ev.Seq,
			Action:    data.Action,
			NodeID:    data.NodeID,
			At:        ev.At,
		})
		if err != nil {
			b.logger.Error("Failed to marshal manikin command", zap.Error(err))
			return
		}
		if err := b.broker.Publish(b.CommandTopic(ev.SessionID), b.opts.QoS, false, msg); err != nil {
			b.logger.Error("Failed to publish manikin command",
				zap.String("session_id", ev.SessionID),
				zap.String("action", data.Action),
				zap.Error(err),
			)
		}
	case domain.EventSimulationEnded:
		b.release(ev.SessionID)
	}
}

func (b *Bridge) release(sessionID string) {
	b.mu.Lock()
	var released []*transport.Client
	for key, c := range b.clients {
		if c.SessionID() == sessionID {
			released = append(released, c)
			delete(b.clients, key)
		}
	}
	b.mu.Unlock()

	for _, c := range released {
		b.dispatcher.Disconnect(c)
	}
}

// handleFeedback 上行消息：按需以 manikin 角色 join，然后提交 manikinFeedback
func (b *Bridge) handleFeedback(topic string, payload []byte) error {
	target, err := b.targetOf(topic)
	if err != nil {
		return err
	}
	// 同一会话既可用 ID 也可用加入码寻址，统一按会话 ID 复用连接
	sessionID, err := b.dispatcher.Resolve(target)
	if err != nil {
		return fmt.Errorf("manikin feedback for %s: %w", target, err)
	}

	c := b.clientFor(sessionID)
	if c.SessionID() == "" {
		join, _ := json.Marshal(map[string]string{"sessionId": sessionID})
		ack := b.dispatcher.Dispatch(c, transport.Command{ID: "mqtt-join", Type: transport.CmdJoin, Payload: join})
		if !ack.Success {
			return fmt.Errorf("manikin join %s failed: %s", target, ack.Error)
		}
	}

	ack := b.dispatcher.Dispatch(c, transport.Command{
		ID:      "mqtt-feedback",
		Type:    transport.CmdManikinFeedback,
		Payload: json.RawMessage(payload),
	})
	if !ack.Success {
		return fmt.Errorf("manikin feedback for %s rejected: %s", target, ack.Error)
	}
	return nil
}

func (b *Bridge) targetOf(topic string) (string, error) {
	rest := strings.TrimPrefix(topic, b.opts.TopicPrefix+"/")
	parts := strings.Split(rest, "/")
	if rest == topic || len(parts) != 2 || parts[0] == "" || parts[1] != "feedback" {
		return "", fmt.Errorf("%w: unexpected manikin topic %q", domain.ErrValidation, topic)
	}
	return parts[0], nil
}

func (b *Bridge) clientFor(sessionID string) *transport.Client {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.clients[sessionID]
	if !ok {
		c = transport.NewClient(b.opts.UserID, domain.RoleManikin, 0)
		b.clients[sessionID] = c
	}
	return c
}
