package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"smartaqua.dev/smartaqua/internal/backend"
	"smartaqua.dev/smartaqua/internal/engine"
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Run the backend server",
	Long: `Run the backend server that:
- Consumes tank telemetry and device alerts from RabbitMQ
- Analyses readings for leaks, depletion and threshold breaches
- Persists telemetry and alerts to PostgreSQL
- Sends alert notifications via Telegram and the notification queue
- Serves the REST API and Prometheus metrics`,
	RunE: runBackend,
}

func init() {
	rootCmd.AddCommand(backendCmd)

	// Backend-specific flags
	backendCmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	backendCmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	backendCmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	backendCmd.Flags().String("db-password", "", "PostgreSQL password")
	backendCmd.Flags().String("db-name", "smartaqua", "PostgreSQL database name")
	backendCmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	backendCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	backendCmd.Flags().String("telemetry-queue", "tank-telemetry", "RabbitMQ queue name for tank telemetry")
	backendCmd.Flags().String("notify-queue", "tank-notifications", "RabbitMQ queue name for outbound notifications")
	backendCmd.Flags().Int("api-port", 8000, "REST API port")
	backendCmd.Flags().String("telegram-bot-token", "", "Telegram bot token for alert notifications")
	backendCmd.Flags().String("telegram-chat-id", "", "Telegram chat id for alert notifications")
	backendCmd.Flags().Duration("retention", 7*24*time.Hour, "telemetry history retention horizon")
	backendCmd.Flags().Int("max-history", 1000, "maximum readings retained per device")
	backendCmd.Flags().Duration("alert-cooldown", 30*time.Minute, "suppression window for repeated alerts (0 disables)")
	backendCmd.Flags().Duration("offline-after", time.Hour, "silence before a device is flagged offline")
	backendCmd.Flags().Float64("tank-height-cm", 150, "default tank height in cm")
	backendCmd.Flags().Float64("tank-diameter-cm", 100, "default tank diameter in cm")
	backendCmd.Flags().Float64("tank-capacity-l", 1178, "default tank capacity in liters")
	backendCmd.Flags().Float64("leak-threshold-pct", 1, "percent drop between readings that signals a leak")
	backendCmd.Flags().Float64("overflow-threshold-pct", 95, "percent full that signals overflow risk")

	// Bind flags to viper
	_ = viper.BindPFlag("backend.db.host", backendCmd.Flags().Lookup("db-host"))
	_ = viper.BindPFlag("backend.db.port", backendCmd.Flags().Lookup("db-port"))
	_ = viper.BindPFlag("backend.db.user", backendCmd.Flags().Lookup("db-user"))
	_ = viper.BindPFlag("backend.db.password", backendCmd.Flags().Lookup("db-password"))
	_ = viper.BindPFlag("backend.db.name", backendCmd.Flags().Lookup("db-name"))
	_ = viper.BindPFlag("backend.db.sslmode", backendCmd.Flags().Lookup("db-sslmode"))
	_ = viper.BindPFlag("backend.rabbitmq.url", backendCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("backend.rabbitmq.telemetry_queue", backendCmd.Flags().Lookup("telemetry-queue"))
	_ = viper.BindPFlag("backend.rabbitmq.notify_queue", backendCmd.Flags().Lookup("notify-queue"))
	_ = viper.BindPFlag("backend.api.port", backendCmd.Flags().Lookup("api-port"))
	_ = viper.BindPFlag("backend.telegram.bot_token", backendCmd.Flags().Lookup("telegram-bot-token"))
	_ = viper.BindPFlag("backend.telegram.chat_id", backendCmd.Flags().Lookup("telegram-chat-id"))
	_ = viper.BindPFlag("backend.engine.retention", backendCmd.Flags().Lookup("retention"))
	_ = viper.BindPFlag("backend.engine.max_history", backendCmd.Flags().Lookup("max-history"))
	_ = viper.BindPFlag("backend.engine.alert_cooldown", backendCmd.Flags().Lookup("alert-cooldown"))
	_ = viper.BindPFlag("backend.engine.offline_after", backendCmd.Flags().Lookup("offline-after"))
	_ = viper.BindPFlag("backend.tank.height_cm", backendCmd.Flags().Lookup("tank-height-cm"))
	_ = viper.BindPFlag("backend.tank.diameter_cm", backendCmd.Flags().Lookup("tank-diameter-cm"))
	_ = viper.BindPFlag("backend.tank.capacity_l", backendCmd.Flags().Lookup("tank-capacity-l"))
	_ = viper.BindPFlag("backend.tank.leak_threshold_pct", backendCmd.Flags().Lookup("leak-threshold-pct"))
	_ = viper.BindPFlag("backend.tank.overflow_threshold_pct", backendCmd.Flags().Lookup("overflow-threshold-pct"))
}

func runBackend(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting backend service")

	// Create backend configuration from viper
	config := &backend.ServerConfig{
		Logger:           logger,
		DBHost:           viper.GetString("backend.db.host"),
		DBPort:           viper.GetInt("backend.db.port"),
		DBUser:           viper.GetString("backend.db.user"),
		DBPassword:       viper.GetString("backend.db.password"),
		DBName:           viper.GetString("backend.db.name"),
		DBSSLMode:        viper.GetString("backend.db.sslmode"),
		RabbitMQURL:      viper.GetString("backend.rabbitmq.url"),
		TelemetryQueue:   viper.GetString("backend.rabbitmq.telemetry_queue"),
		NotifyQueue:      viper.GetString("backend.rabbitmq.notify_queue"),
		APIPort:          viper.GetInt("backend.api.port"),
		TelegramBotToken: viper.GetString("backend.telegram.bot_token"),
		TelegramChatID:   viper.GetString("backend.telegram.chat_id"),
		RetentionHorizon: viper.GetDuration("backend.engine.retention"),
		MaxHistory:       viper.GetInt("backend.engine.max_history"),
		AlertCooldown:    viper.GetDuration("backend.engine.alert_cooldown"),
		OfflineAfter:     viper.GetDuration("backend.engine.offline_after"),
		Defaults: engine.TankDefaults{
			HeightCm:             viper.GetFloat64("backend.tank.height_cm"),
			DiameterCm:           viper.GetFloat64("backend.tank.diameter_cm"),
			CapacityLiters:       viper.GetFloat64("backend.tank.capacity_l"),
			LeakThresholdPercent: viper.GetFloat64("backend.tank.leak_threshold_pct"),
			OverflowThresholdPct: viper.GetFloat64("backend.tank.overflow_threshold_pct"),
		},
	}

	// Create and run server
	server, err := backend.NewServer(config)
	if err != nil {
		logger.Error("failed to create backend server", "error", err)
		return err
	}

	logger.Info("backend server configuration",
		"db_host", config.DBHost,
		"db_port", config.DBPort,
		"db_name", config.DBName,
		"rabbitmq_url", config.RabbitMQURL,
		"telemetry_queue", config.TelemetryQueue,
		"notify_queue", config.NotifyQueue,
		"api_port", config.APIPort,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("backend server error", "error", err)
		return err
	}

	logger.Info("backend server stopped")
	return nil
}
