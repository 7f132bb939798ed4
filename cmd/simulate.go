package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"smartaqua.dev/smartaqua/internal/simulator"
	"smartaqua.dev/smartaqua/pkg/metrics"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the tank telemetry simulator",
	Long: `Run the tank telemetry simulator that:
- Generates synthetic telemetry for a fleet of water tanks
- Models drain and refill cycles with occasional leak episodes
- Publishes readings to RabbitMQ in the device wire format`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	// Simulator-specific flags
	simulateCmd.Flags().String("rabbitmq-url", "amqp://localhost:5672", "RabbitMQ URL")
	simulateCmd.Flags().String("telemetry-queue", "tank-telemetry", "RabbitMQ queue name for tank telemetry")
	simulateCmd.Flags().Int("fleet-size", 3, "Number of simulated tanks")
	simulateCmd.Flags().Duration("interval", 5*time.Second, "Interval between readings per tank")

	// Bind flags to viper
	_ = viper.BindPFlag("simulator.rabbitmq.url", simulateCmd.Flags().Lookup("rabbitmq-url"))
	_ = viper.BindPFlag("simulator.rabbitmq.telemetry_queue", simulateCmd.Flags().Lookup("telemetry-queue"))
	_ = viper.BindPFlag("simulator.fleet_size", simulateCmd.Flags().Lookup("fleet-size"))
	_ = viper.BindPFlag("simulator.interval", simulateCmd.Flags().Lookup("interval"))
}

func runSimulate(_ *cobra.Command, _ []string) error {
	logger := GetLogger()
	logger.Info("starting simulator service")

	// Create simulator configuration from viper
	config := &simulator.ServerConfig{
		Logger:      logger,
		RabbitMQURL: viper.GetString("simulator.rabbitmq.url"),
		QueueName:   viper.GetString("simulator.rabbitmq.telemetry_queue"),
		FleetSize:   viper.GetInt("simulator.fleet_size"),
		Interval:    viper.GetDuration("simulator.interval"),
		Metrics:     metrics.NewSimulatorMetrics("smartaqua"),
		MQMetrics:   metrics.NewMQMetrics("smartaqua"),
	}

	// Create and run server
	server, err := simulator.NewServer(config)
	if err != nil {
		logger.Error("failed to create simulator server", "error", err)
		return err
	}

	logger.Info("simulator server configuration",
		"rabbitmq_url", config.RabbitMQURL,
		"telemetry_queue", config.QueueName,
		"fleet_size", config.FleetSize,
		"interval", config.Interval,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("simulator server error", "error", err)
		return err
	}

	logger.Info("simulator server stopped")
	return nil
}
