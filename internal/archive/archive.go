package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	rediscommon "github.com/Naser58164/praxis-medius/common/redis"
	"github.com/Naser58164/praxis-medius/internal/domain"
	"github.com/Naser58164/praxis-medius/internal/session"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	DefaultKeyPrefix = "praxis:results:"
	DefaultTTL       = 7 * 24 * time.Hour
	DefaultQueueSize = 128
	DefaultStreamMax = 10000
	storeTimeout     = 5 * time.Second
)

// Record 归档的会话结果
type Record struct {
	SessionID  string           `json:"sessionId"`
	EndedAt    *time.Time       `json:"endedAt,omitempty"`
	EndReason  string           `json:"endReason"`
	Results    *session.Results `json:"results"`
	ArchivedAt time.Time        `json:"archivedAt"`
}

// Options 归档参数
type Options struct {
	TTL       time.Duration
	QueueSize int
	Stream    string // 为空时不写 Streams
	StreamMax int64
}

// Archiver 订阅 simulationEnded，把最终结果写入 Redis：
// KV（供会话被清理后查询）以及 Streams（供下游消费）。
// Publish 只入队，写 Redis 在后台 worker 中进行。
type Archiver struct {
	store  ResultStore
	client *redis.Client
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	queue    chan Record
	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewArchiver client 为 nil 时只写 store（不写 Streams）
func NewArchiver(store ResultStore, client *redis.Client, opts Options, logger *zap.Logger) *Archiver {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.StreamMax <= 0 {
		opts.StreamMax = DefaultStreamMax
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		store:  store,
		client: client,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		queue:  make(chan Record, opts.QueueSize),
		stop:   make(chan struct{}),
	}
}

// Publish 实现 domain.EventSink
func (a *Archiver) Publish(ev domain.Event) {
	if ev.Name != domain.EventSimulationEnded {
		return
	}
	data, ok := ev.Data.(domain.LifecycleData)
	if !ok {
		return
	}
	res, ok := data.Results.(*session.Results)
	if !ok || res == nil {
		return
	}
	snapshot := *res
	rec := Record{
		SessionID: ev.SessionID,
		EndedAt:   data.EndedAt,
		EndReason: data.Reason,
		Results:   &snapshot,
	}
	select {
	case a.queue <- rec:
	default:
		a.logger.Error("Archive queue full, dropping results",
			zap.String("session_id", ev.SessionID),
		)
	}
}

// Start 启动后台写入
func (a *Archiver) Start(ctx context.Context) {
	a.wg.Add(1)
	go a.run(ctx)
}

// Stop 停止 worker，已入队的记录会先写完
func (a *Archiver) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
	a.wg.Wait()
}

func (a *Archiver) run(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case rec := <-a.queue:
			a.storeLogged(ctx, rec)
		case <-ctx.Done():
			a.drain(context.Background())
			return
		case <-a.stop:
			a.drain(ctx)
			return
		}
	}
}

func (a *Archiver) drain(ctx context.Context) {
	for {
		select {
		case rec := <-a.queue:
			a.storeLogged(ctx, rec)
		default:
			return
		}
	}
}

func (a *Archiver) storeLogged(ctx context.Context, rec Record) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if err := a.Store(ctx, rec); err != nil {
		a.logger.Error("Failed to archive results",
			zap.String("session_id", rec.SessionID),
			zap.Error(err),
		)
		return
	}
	a.logger.Info("Results archived",
		zap.String("session_id", rec.SessionID),
		zap.String("outcome", rec.Results.Outcome),
	)
}

// Store 同步写入一条记录
func (a *Archiver) Store(ctx context.Context, rec Record) error {
	if rec.SessionID == "" {
		return fmt.Errorf("%w: session id is required", domain.ErrValidation)
	}
	if rec.ArchivedAt.IsZero() {
		rec.ArchivedAt = a.now().UTC()
	}
	if err := a.store.Save(ctx, rec, a.opts.TTL); err != nil {
		return err
	}
	if a.client != nil && a.opts.Stream != "" {
		if _, err := rediscommon.PublishJSONToStream(ctx, a.client, a.opts.Stream, a.opts.StreamMax, rec); err != nil {
			return fmt.Errorf("failed to publish results to stream %s: %w", a.opts.Stream, err)
		}
	}
	return nil
}

// Get 读取归档；不存在时返回 ErrNotFound
func (a *Archiver) Get(ctx context.Context, sessionID string) (*Record, error) {
	return a.store.Load(ctx, sessionID)
}
