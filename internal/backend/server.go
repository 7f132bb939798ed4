package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/gorm"

	"smartaqua.dev/smartaqua/internal/api"
	"smartaqua.dev/smartaqua/internal/engine"
	"smartaqua.dev/smartaqua/internal/notify"
	"smartaqua.dev/smartaqua/pkg/logger"
	"smartaqua.dev/smartaqua/pkg/metrics"
	"smartaqua.dev/smartaqua/pkg/mq"
)

// metricsNamespace prefixes every Prometheus metric this server registers.
const metricsNamespace = "smartaqua"

// Server wires the full backend together: database, analysis engine,
// telemetry consumer, notification dispatcher, watchdog and the REST API.
type Server struct {
	logger     *slog.Logger
	db         *gorm.DB
	consumer   *Consumer
	dispatcher *notify.Dispatcher
	watchdog   *Watchdog
	notifyMQ   mq.ClientInterface
	httpServer *http.Server
	config     *ServerConfig
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// Database configuration
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// RabbitMQ configuration
	RabbitMQURL    string
	TelemetryQueue string
	NotifyQueue    string

	// API configuration
	APIPort int

	// Telegram configuration. Both empty disables the Telegram sender.
	TelegramBotToken string
	TelegramChatID   string

	// Engine tuning
	RetentionHorizon time.Duration
	MaxHistory       int
	AlertCooldown    time.Duration
	OfflineAfter     time.Duration
	Defaults         engine.TankDefaults
}

// NewServer creates a new Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.RabbitMQURL == "" {
		return nil, errors.New("rabbitmq URL cannot be empty")
	}

	if cfg.TelemetryQueue == "" {
		return nil, errors.New("telemetry queue name cannot be empty")
	}

	if cfg.DBHost == "" {
		return nil, errors.New("database host cannot be empty")
	}

	if cfg.DBPort <= 0 {
		return nil, errors.New("database port must be positive")
	}

	if cfg.DBUser == "" {
		return nil, errors.New("database user cannot be empty")
	}

	if cfg.DBName == "" {
		return nil, errors.New("database name cannot be empty")
	}

	if cfg.APIPort <= 0 {
		return nil, errors.New("API port must be positive")
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// Run starts the backend server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting backend server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Initialize database
	dbCfg := &DBConfig{
		Host:     s.config.DBHost,
		Port:     s.config.DBPort,
		User:     s.config.DBUser,
		Password: s.config.DBPassword,
		DBName:   s.config.DBName,
		SSLMode:  s.config.DBSSLMode,
		Logger:   s.logger,
	}

	db, err := NewDB(dbCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = db

	s.logger.Info("database initialized successfully")

	store, err := NewStore(s.db, s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	// Initialize notification senders
	var senders []notify.Sender
	if s.config.TelegramBotToken != "" && s.config.TelegramChatID != "" {
		telegram, err := notify.NewTelegramSender(&notify.TelegramConfig{
			BotToken: s.config.TelegramBotToken,
			ChatID:   s.config.TelegramChatID,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize telegram sender: %w", err)
		}
		senders = append(senders, telegram)
	} else {
		s.logger.Warn("telegram credentials not configured, skipping telegram sender")
	}

	if s.config.NotifyQueue != "" {
		s.notifyMQ = mq.New(s.config.NotifyQueue, s.config.RabbitMQURL,
			logger.ForComponent(s.logger, "notify-mq"))
		mqSender, err := notify.NewMQSender(s.notifyMQ)
		if err != nil {
			return fmt.Errorf("failed to initialize mq sender: %w", err)
		}
		senders = append(senders, mqSender)
	}

	dispatcher, err := notify.NewDispatcher(&notify.DispatcherConfig{
		Logger:  logger.ForComponent(s.logger, "notifier"),
		Senders: senders,
		Metrics: metrics.NewNotifierMetrics(metricsNamespace),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}
	s.dispatcher = dispatcher
	s.dispatcher.Start()

	// Initialize the analysis engine with the store as its sinks
	eng, err := engine.New(&engine.Config{
		Logger:           s.logger,
		RetentionHorizon: s.config.RetentionHorizon,
		MaxHistory:       s.config.MaxHistory,
		AlertCooldown:    s.config.AlertCooldown,
		Defaults:         s.config.Defaults,
		Notifier:         dispatcher,
		ReadingSink:      store,
		DeviceSink:       store,
		AlertArchiver:    store,
		Metrics:          metrics.NewEngineMetrics(metricsNamespace),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	// Warm the engine from persisted state before consuming new messages
	horizon := s.config.RetentionHorizon
	if horizon <= 0 {
		horizon = 7 * 24 * time.Hour
	}
	if err := store.WarmEngine(eng, horizon); err != nil {
		return fmt.Errorf("failed to warm engine: %w", err)
	}

	// Initialize consumer
	consumer, err := NewConsumer(&ConsumerConfig{
		Logger:      logger.ForComponent(s.logger, "consumer"),
		Engine:      eng,
		RabbitMQURL: s.config.RabbitMQURL,
		QueueName:   s.config.TelemetryQueue,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize consumer: %w", err)
	}
	s.consumer = consumer

	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	// Initialize watchdog
	watchdog, err := NewWatchdog(&WatchdogConfig{
		Logger:       logger.ForComponent(s.logger, "watchdog"),
		Engine:       eng,
		OfflineAfter: s.config.OfflineAfter,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize watchdog: %w", err)
	}
	s.watchdog = watchdog

	if err := s.watchdog.Start(); err != nil {
		return fmt.Errorf("failed to start watchdog: %w", err)
	}

	// Initialize API server
	apiServer, err := api.NewServer(&api.ServerConfig{
		Logger:  logger.ForComponent(s.logger, "api"),
		Engine:  eng,
		Metrics: metrics.NewAPIMetrics(metricsNamespace),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize API server: %w", err)
	}

	router := apiServer.Router()
	router.Handle("/metrics", metrics.Handler())

	apiAddr := fmt.Sprintf(":%d", s.config.APIPort)
	s.httpServer = &http.Server{
		Addr:              apiAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("starting API server", "address", apiAddr)

	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("API server error: %w", err)
		}
		close(httpErr)
	}()

	s.logger.Info("backend server started successfully")

	// Wait for shutdown signal or API server error
	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("API server error", "error", err)
			cancel()
			return err
		}
	}

	return s.Shutdown()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down backend server")

	var shutdownErr error

	// Stop API server
	if s.httpServer != nil {
		s.logger.Info("stopping API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("failed to stop API server", "error", err)
			shutdownErr = fmt.Errorf("API server shutdown error: %w", err)
		}
		cancel()
		s.logger.Info("API server stopped")
	}

	// Stop watchdog
	if s.watchdog != nil {
		s.watchdog.Stop()
	}

	// Stop consumer
	if s.consumer != nil {
		s.logger.Info("stopping consumer")
		if err := s.consumer.Stop(); err != nil {
			s.logger.Error("failed to stop consumer", "error", err)
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%w; consumer shutdown error: %w", shutdownErr, err)
			} else {
				shutdownErr = fmt.Errorf("consumer shutdown error: %w", err)
			}
		}
	}

	// Stop dispatcher after the consumer so in-flight alerts still go out
	if s.dispatcher != nil {
		s.dispatcher.Stop()
	}

	// Close outbound notification queue
	if s.notifyMQ != nil {
		if err := s.notifyMQ.Close(); err != nil {
			s.logger.Error("failed to close notification queue", "error", err)
		}
	}

	// Close database
	if s.db != nil {
		s.logger.Info("closing database connection")
		if err := CloseDB(s.db, s.logger); err != nil {
			s.logger.Error("failed to close database", "error", err)
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%w; database close error: %w", shutdownErr, err)
			} else {
				shutdownErr = fmt.Errorf("database close error: %w", err)
			}
		}
	}

	if shutdownErr != nil {
		s.logger.Error("backend server shutdown completed with errors", "error", shutdownErr)
		return shutdownErr
	}

	s.logger.Info("backend server shutdown completed successfully")
	return nil
}
