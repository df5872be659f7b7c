package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/common/database"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/common/rediscache"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/compliance"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/config"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/escalation"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/hl7"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/journey"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/listener"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/registry"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/repository"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/tracker"
	"github.com/haslamdb/asp-bacteremia-alerts-sub001/internal/upstream"
)

// MonitorService assembles the whole monitoring pipeline: listener,
// tracker, registry, checker, escalation engine, and journey manager.
type MonitorService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger

	journeyRepo    *repository.JourneyRepository
	checkRepo      *repository.ComplianceLogRepository
	locationRepo   *repository.LocationHistoryRepository
	escalationRepo *repository.EscalationRepository

	tracker  *tracker.Tracker
	registry *registry.Registry
	poller   *registry.Poller
	engine   *escalation.Engine
	manager  *journey.Manager
	server   *listener.Server

	mqttChannel *escalation.MQTTChannel
	wg          sync.WaitGroup
}

// NewMonitorService wires every component. The recipient resolver maps
// roles to on-call staff; deployments can swap in a staffing-system
// lookup.
func NewMonitorService(cfg *config.Config, resolver escalation.RecipientResolver, logger *zap.Logger) (*MonitorService, error) {
	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	redisClient := rediscache.NewClient(cfg)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	journeyRepo := repository.NewJourneyRepository(db, logger)
	checkRepo := repository.NewComplianceLogRepository(db, logger)
	locationRepo := repository.NewLocationHistoryRepository(db, logger)
	escalationRepo := repository.NewEscalationRepository(db, logger)

	channels, mqttChannel, err := buildChannels(cfg, logger)
	if err != nil {
		return nil, err
	}

	reg := registry.NewRegistry(cfg, logger)
	trk := tracker.NewTracker(cfg, redisClient, locationRepo, logger)
	engine := escalation.NewEngine(cfg, escalationRepo, resolver, channels, logger)

	bookingClient := upstream.NewBookingClient(cfg, logger)
	ordersClient := upstream.NewOrdersClient(cfg, logger)

	manager := journey.NewManager(
		cfg,
		journeyRepo,
		checkRepo,
		compliance.NewChecker(nil, logger),
		reg,
		engine,
		ordersClient,
		redisClient,
		logger,
	)

	reg.SetSinks(manager.HandleScheduleUpsert, manager.HandleScheduleCancel)
	trk.SetSink(manager.HandleLocationUpdate)

	server := listener.NewServer(cfg, logger)
	server.Handle("ADT", trk.HandleMessage)
	server.Handle("SIU", reg.HandleSIU)
	server.Handle("ORM", reg.HandleORM)
	server.HandleUnrecognized(func(ctx context.Context, msg *hl7.Message) error {
		logger.Info("Accepted unrecognized message type",
			zap.String("message", msg.TypeAndTrigger()),
			zap.String("control_id", msg.ControlID()),
		)
		return nil
	})

	return &MonitorService{
		config:         cfg,
		db:             db,
		redisClient:    redisClient,
		logger:         logger,
		journeyRepo:    journeyRepo,
		checkRepo:      checkRepo,
		locationRepo:   locationRepo,
		escalationRepo: escalationRepo,
		tracker:        trk,
		registry:       reg,
		poller:         registry.NewPoller(reg, bookingClient, logger),
		engine:         engine,
		manager:        manager,
		server:         server,
		mqttChannel:    mqttChannel,
	}, nil
}

func buildChannels(cfg *config.Config, logger *zap.Logger) ([]escalation.Channel, *escalation.MQTTChannel, error) {
	var channels []escalation.Channel
	var mqttChannel *escalation.MQTTChannel

	if cfg.Channels.WebhookURL != "" {
		channels = append(channels, escalation.NewWebhookChannel(cfg.Channels.WebhookURL, logger))
	}
	if cfg.Channels.MQTTBroker != "" {
		channel, err := escalation.NewMQTTChannel(cfg, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create mqtt channel: %w", err)
		}
		channels = append(channels, channel)
		mqttChannel = channel
	}
	if len(channels) == 0 {
		logger.Warn("No alert channels configured; alerts will only reach the stream and audit log")
	}
	return channels, mqttChannel, nil
}

// Start reloads durable state, then launches the listener and the four
// background loops. Blocks only until startup completes.
func (s *MonitorService) Start(ctx context.Context) error {
	if err := s.manager.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload journeys: %w", err)
	}
	if err := s.engine.Resume(ctx); err != nil {
		return err
	}

	if err := s.server.Start(); err != nil {
		return fmt.Errorf("failed to start listener: %w", err)
	}
	s.logger.Info("Listener started", zap.String("addr", s.server.Addr().String()))

	s.wg.Add(4)
	go func() {
		defer s.wg.Done()
		if err := s.poller.Start(ctx); err != nil {
			s.logger.Error("Schedule poller exited", zap.Error(err))
		}
	}()
	go func() {
		defer s.wg.Done()
		s.manager.RunTriggerSweep(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.manager.RunRefreshSweep(ctx)
	}()
	go func() {
		defer s.wg.Done()
		s.engine.Run(ctx, s.manager.LatestAlert)
	}()

	return nil
}

// Stop drains the listener, waits for the background loops, and closes
// the external connections. The context bounds the drain.
func (s *MonitorService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping monitor service")

	if err := s.server.Stop(ctx); err != nil {
		s.logger.Error("Failed to stop listener cleanly", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Background loops did not stop before deadline")
	}

	if s.mqttChannel != nil {
		s.mqttChannel.Close()
	}
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}
	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
	return nil
}

// Engine exposes the escalation engine for acknowledgment endpoints.
func (s *MonitorService) Engine() *escalation.Engine {
	return s.engine
}
