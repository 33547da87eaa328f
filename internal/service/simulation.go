package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Naser58164/praxis-medius/common/database"
	mqttcommon "github.com/Naser58164/praxis-medius/common/mqtt"
	rediscommon "github.com/Naser58164/praxis-medius/common/redis"
	"github.com/Naser58164/praxis-medius/internal/archive"
	"github.com/Naser58164/praxis-medius/internal/config"
	"github.com/Naser58164/praxis-medius/internal/domain"
	"github.com/Naser58164/praxis-medius/internal/httpapi"
	"github.com/Naser58164/praxis-medius/internal/manikin"
	"github.com/Naser58164/praxis-medius/internal/registry"
	"github.com/Naser58164/praxis-medius/internal/scenario"
	"github.com/Naser58164/praxis-medius/internal/transport"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// SimulationService 模拟引擎服务：场景库、会话注册表、实时通道与可选的外部集成
type SimulationService struct {
	config *config.Config
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client

	catalog    *scenario.Catalog
	registry   *registry.Registry
	rooms      *transport.Rooms
	dispatcher *transport.Dispatcher
	archiver   *archive.Archiver
	bridge     *manikin.Bridge

	handler http.Handler
	server  *http.Server
}

// NewSimulationService 创建服务；数据库、Redis、MQTT 按配置启用
func NewSimulationService(cfg *config.Config, logger *zap.Logger) (*SimulationService, error) {
	s := &SimulationService{config: cfg, logger: logger}

	var repo scenario.Repository = scenario.NewMemoryRepository()
	if cfg.Database.Enabled {
		db, err := database.NewPostgresDB(&cfg.Database.DatabaseConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.Migrate(&cfg.Database.DatabaseConfig, scenario.Migrations, scenario.MigrationsDir); err != nil {
			_ = database.Close(db)
			return nil, err
		}
		s.db = db
		repo = scenario.NewPostgresRepository(db, logger)
	}
	s.catalog = scenario.NewCatalog(repo, logger)

	s.rooms = transport.NewRooms(logger)
	sinks := []domain.EventSink{s.rooms}

	if cfg.Redis.Enabled {
		client := rediscommon.NewRedisClient(&cfg.Redis.RedisConfig)
		if err := rediscommon.Ping(context.Background(), client); err != nil {
			s.closeConnections()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.redisClient = client
		s.archiver = archive.NewArchiver(archive.NewRedisResultStore(client, ""), client, archive.Options{
			TTL:    cfg.Archive.ResultsTTL,
			Stream: cfg.Archive.Stream,
		}, logger)
		sinks = append(sinks, s.archiver)
	}

	s.registry = registry.New(registry.Options{
		JoinCodeAttempts: cfg.Simulation.JoinCodeAttempts,
		TickInterval:     cfg.Simulation.TickInterval,
		Sinks:            sinks,
		Logger:           logger,
	})
	s.dispatcher = transport.NewDispatcher(s.registry, s.rooms, logger)

	if cfg.MQTT.Enabled {
		client, err := mqttcommon.NewClient(&cfg.MQTT.MQTTConfig, logger)
		if err != nil {
			s.closeConnections()
			return nil, fmt.Errorf("failed to connect to mqtt: %w", err)
		}
		s.mqttClient = client
		s.bridge = manikin.NewBridge(client, s.dispatcher, manikin.Options{
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		}, logger)
		s.registry.AddSink(s.bridge)
	}

	var results httpapi.ResultsArchive
	if s.archiver != nil {
		results = s.archiver
	}
	s.handler = httpapi.NewRouter(httpapi.Handlers{
		Health:    httpapi.NewHealthHandler(s.db, s.redisClient, s.registry.Len),
		Scenarios: httpapi.NewScenarioHandler(s.catalog, logger),
		Sessions:  httpapi.NewSessionHandler(s.registry, s.catalog, results, logger),
		WS:        transport.NewHub(s.dispatcher, transport.HubOptions{}, logger),
	}, logger)
	s.server = &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Handler HTTP 入口（测试用）
func (s *SimulationService) Handler() http.Handler {
	return s.handler
}

// Start 启动后台任务并阻塞在 HTTP 服务上，直到 Stop
func (s *SimulationService) Start(ctx context.Context) error {
	s.logger.Info("Starting simulation service",
		zap.String("http_addr", s.config.HTTP.Addr),
		zap.Bool("database_enabled", s.db != nil),
		zap.Bool("archive_enabled", s.archiver != nil),
		zap.Bool("manikin_bridge_enabled", s.bridge != nil),
	)

	if s.config.Simulation.SeedScenarios {
		n, err := s.catalog.Seed(ctx)
		if err != nil {
			return fmt.Errorf("failed to seed scenarios: %w", err)
		}
		s.logger.Info("Seeded scenarios", zap.Int("count", n))
	}

	if s.archiver != nil {
		s.archiver.Start(ctx)
	}
	if s.bridge != nil {
		if err := s.bridge.Start(ctx); err != nil {
			return fmt.Errorf("failed to start manikin bridge: %w", err)
		}
	}
	if s.config.Simulation.PruneInterval > 0 {
		go s.runPrune(ctx)
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func (s *SimulationService) runPrune(ctx context.Context) {
	ticker := time.NewTicker(s.config.Simulation.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pruneOnce()
		}
	}
}

func (s *SimulationService) pruneOnce() []string {
	return s.registry.PruneCompleted(s.config.Simulation.CompletedRetention)
}

// Stop 停止服务
func (s *SimulationService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping simulation service")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.HTTP.ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Error shutting down http server", zap.Error(err))
	}

	if s.bridge != nil {
		s.bridge.Stop()
	}
	s.registry.Close()
	if s.archiver != nil {
		s.archiver.Stop()
	}
	s.closeConnections()

	s.logger.Info("Simulation service stopped")
	return nil
}

func (s *SimulationService) closeConnections() {
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.redisClient != nil {
		if err := rediscommon.Close(s.redisClient); err != nil {
			s.logger.Error("Error closing redis connection", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := database.Close(s.db); err != nil {
			s.logger.Error("Error closing database connection", zap.Error(err))
		}
	}
}
