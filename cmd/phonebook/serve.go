package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/echotools/phonebook/internal/api"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the GraphQL API server",
		Long: `The serve command connects to the store, ensures collections and
indexes, and only then starts the HTTP server. It exposes:
  - GraphQL endpoint at /graphql (POST)
  - GraphQL Playground at /graphql (GET)
  - Health check at /health`,
		Example: `  # Start API server on the default address (:4000)
  phonebook serve

  # Start with custom MongoDB URI
  phonebook serve --mongo-uri mongodb://localhost:27017

  # Run without a database
  phonebook serve --store memory

  # Enable Prometheus metrics
  phonebook serve --metrics-address :9090

  # Use a config file
  phonebook serve -c phonebook.yaml`,
		RunE: runServe,
	}

	cmd.Flags().String("address", ":4000", "Server listen address")
	cmd.Flags().String("metrics-address", "", "Prometheus metrics endpoint address (e.g., :9090)")
	cmd.Flags().Bool("amqp", false, "Publish person events to RabbitMQ")
	cmd.Flags().String("amqp-uri", "", "RabbitMQ connection URI")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	// Override config with command flags
	flags := cmd.Flags()
	if flags.Changed("address") {
		cfg.Server.Address, _ = flags.GetString("address")
	}
	if flags.Changed("metrics-address") {
		cfg.Server.MetricsAddress, _ = flags.GetString("metrics-address")
	}
	if flags.Changed("amqp") {
		cfg.AMQP.Enabled, _ = flags.GetBool("amqp")
	}
	if flags.Changed("amqp-uri") {
		cfg.AMQP.URI, _ = flags.GetString("amqp-uri")
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger.Info("Starting API server",
		zap.String("server_address", cfg.Server.Address),
		zap.String("metrics_address", cfg.Server.MetricsAddress),
		zap.String("store", cfg.Store.Driver),
		zap.String("database", cfg.Store.Database),
		zap.Bool("amqp", cfg.AMQP.Enabled))

	service, err := api.NewService(cfg.APIConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	// Handle shutdown signals
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := service.Initialize(ctx); err != nil {
		_ = service.Stop(context.Background())
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	logger.Info("Available endpoints:",
		zap.String("POST", "/graphql - GraphQL queries and mutations"),
		zap.String("GET", "/graphql - GraphQL Playground"),
		zap.String("GET", "/health - Health check"))

	serveErr := service.Start(ctx)

	if err := service.Stop(context.Background()); err != nil {
		logger.Warn("Error stopping service", zap.Error(err))
	}

	if serveErr != nil {
		return serveErr
	}

	logger.Info("API server stopped gracefully")
	return nil
}
