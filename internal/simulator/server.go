package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smartaqua.dev/smartaqua/pkg/logger"
	"smartaqua.dev/smartaqua/pkg/metrics"
	"smartaqua.dev/smartaqua/pkg/mq"
)

// ServerConfig holds the configuration for the simulator server.
type ServerConfig struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// RabbitMQURL is the connection string for RabbitMQ
	RabbitMQURL string
	// QueueName is the name of the queue to publish telemetry to
	QueueName string
	// Interval is the time between readings per tank
	Interval time.Duration
	// FleetSize is the number of simulated tanks
	FleetSize int
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.SimulatorMetrics
	// MQMetrics is the optional Prometheus metrics collector for MQ operations
	MQMetrics *metrics.MQMetrics
	// MQClient overrides the client built from RabbitMQURL and QueueName.
	// Used in tests.
	MQClient mq.ClientInterface
}

// Server drives a fleet of simulated tanks, publishing one reading per tank
// per interval.
type Server struct {
	logger  *slog.Logger
	config  *ServerConfig
	tanks   []*Tank
	client  mq.ClientInterface
	metrics *metrics.SimulatorMetrics
}

var (
	errInvalidFleetSize = errors.New("fleet size must be greater than 0")
	errInvalidInterval  = errors.New("interval must be greater than 0")
	errLoggerRequired   = errors.New("logger is required")
)

// NewServer creates a new simulator server with the given configuration.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.FleetSize <= 0 {
		return nil, errInvalidFleetSize
	}

	if cfg.Interval <= 0 {
		return nil, errInvalidInterval
	}

	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}

	client := cfg.MQClient
	if client == nil {
		mqClient := mq.New(cfg.QueueName, cfg.RabbitMQURL,
			logger.ForComponent(cfg.Logger, "mq-client"))
		if cfg.MQMetrics != nil {
			mqClient.SetMetrics(cfg.MQMetrics)
		}
		client = mqClient
	}

	tanks := make([]*Tank, 0, cfg.FleetSize)
	for range cfg.FleetSize {
		tank := NewTank()
		tanks = append(tanks, tank)
		cfg.Logger.Info("created simulated tank",
			"device_id", tank.DeviceID,
			"height_cm", tank.HeightCm,
			"diameter_cm", tank.DiameterCm,
		)
	}

	if cfg.Metrics != nil {
		cfg.Metrics.FleetSize.Set(float64(len(tanks)))
	}

	return &Server{
		logger:  cfg.Logger,
		config:  cfg,
		tanks:   tanks,
		client:  client,
		metrics: cfg.Metrics,
	}, nil
}

// Run publishes readings until a shutdown signal arrives.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.logger.Info("simulator started",
		"fleet_size", len(s.tanks),
		"interval", s.config.Interval,
		"queue", s.config.QueueName,
	)

	for {
		select {
		case sig := <-sigChan:
			s.logger.Info("received shutdown signal", "signal", sig.String())
			return s.close()

		case <-ctx.Done():
			s.logger.Info("context canceled, shutting down")
			return s.close()

		case now := <-ticker.C:
			s.publishRound(ctx, now)
		}
	}
}

// publishRound publishes one reading for every tank in the fleet.
func (s *Server) publishRound(ctx context.Context, now time.Time) {
	for _, tank := range s.tanks {
		reading := tank.Step(now)

		payload, err := json.Marshal(reading)
		if err != nil {
			s.logger.Error("failed to marshal reading",
				"device_id", tank.DeviceID,
				"error", err,
			)
			continue
		}

		if err := s.client.Push(ctx, payload); err != nil {
			if s.metrics != nil {
				s.metrics.PublishFailures.WithLabelValues(tank.DeviceID).Inc()
			}
			s.logger.Error("failed to publish reading",
				"device_id", tank.DeviceID,
				"error", err,
			)
			continue
		}

		if s.metrics != nil {
			s.metrics.ReadingsPublished.WithLabelValues(tank.DeviceID).Inc()
		}
		s.logger.Debug("reading published",
			"device_id", tank.DeviceID,
			"percent_full", reading.PercentFull,
		)
	}
}

func (s *Server) close() error {
	s.logger.Info("closing MQ client")
	if err := s.client.Close(); err != nil {
		s.logger.Error("failed to close MQ client", "error", err)
		return err
	}
	s.logger.Info("simulator stopped")
	return nil
}
