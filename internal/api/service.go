package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	graphql "github.com/graph-gophers/graphql-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/echotools/phonebook/internal/amqp"
	"github.com/echotools/phonebook/internal/api/graph"
	"github.com/echotools/phonebook/internal/store"
)

// Config represents the configuration for the phonebook service
type Config struct {
	// HTTP server configuration
	ServerAddress  string        `json:"server_address" yaml:"server_address"`
	MetricsAddress string        `json:"metrics_address" yaml:"metrics_address"`
	ReadTimeout    time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// Document store configuration
	Store store.Config `json:"store" yaml:"store"`

	// AMQP configuration
	AMQPURI       string `json:"amqp_uri" yaml:"amqp_uri"`
	AMQPQueueName string `json:"amqp_queue_name" yaml:"amqp_queue_name"`
	AMQPEnabled   bool   `json:"amqp_enabled" yaml:"amqp_enabled"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		ServerAddress: ":4000",
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		Store:         store.DefaultConfig(),
		AMQPURI:       amqp.DefaultConfig().URI,
		AMQPQueueName: amqp.DefaultQueueName,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ServerAddress == "" {
		return fmt.Errorf("server_address is required")
	}
	if c.MetricsAddress != "" && c.MetricsAddress == c.ServerAddress {
		return fmt.Errorf("metrics_address must differ from server_address")
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if c.AMQPEnabled && c.AMQPURI == "" {
		return fmt.Errorf("amqp_uri is required when AMQP is enabled")
	}
	return nil
}

// Service owns the store connection, the optional event publisher and the
// HTTP listeners.
type Service struct {
	config        *Config
	store         store.Store
	schema        *graphql.Schema
	server        *Server
	metrics       *Metrics
	amqpPublisher *amqp.Publisher
	logger        *zap.Logger
}

// NewService creates a new phonebook service
func NewService(config *Config, logger *zap.Logger) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config: config,
		logger: logger,
	}, nil
}

// Initialize connects to the store, ensures collections and indexes, connects
// the AMQP publisher when enabled and builds the HTTP server. Start must only
// be called after Initialize succeeded.
func (s *Service) Initialize(ctx context.Context) error {
	st, err := store.Open(ctx, s.config.Store, s.logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	s.store = st

	if err := st.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	// Left as a nil interface when disabled so the resolver skips publishing.
	var publisher graph.EventPublisher
	if s.config.AMQPEnabled {
		p := amqp.NewPublisher(&amqp.Config{
			URI:       s.config.AMQPURI,
			QueueName: s.config.AMQPQueueName,
		}, s.logger)

		if err := p.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to AMQP: %w", err)
		}

		s.amqpPublisher = p
		publisher = p
		s.logger.Info("AMQP publisher initialized", zap.String("queue", s.config.AMQPQueueName))
	}

	resolver := graph.NewResolver(st, publisher, s.logger)
	s.schema, err = graph.NewSchema(resolver)
	if err != nil {
		return err
	}

	s.metrics = NewMetrics("phonebook")
	s.server = NewServer(st, s.schema, s.metrics, s.logger)

	s.logger.Info("Phonebook service initialized successfully")
	return nil
}

// Start binds the listeners and serves until ctx is cancelled. A bind failure
// is returned before anything is served.
func (s *Service) Start(ctx context.Context) error {
	if s.server == nil {
		return fmt.Errorf("service not initialized, call Initialize() first")
	}

	ln, err := Listen(s.config.ServerAddress)
	if err != nil {
		return err
	}

	var metricsLn net.Listener
	if s.config.MetricsAddress != "" {
		metricsLn, err = Listen(s.config.MetricsAddress)
		if err != nil {
			ln.Close()
			return err
		}
	}

	return s.serve(ctx, ln, metricsLn)
}

func (s *Service) serve(ctx context.Context, ln, metricsLn net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	s.logger.Info("Starting phonebook service", zap.String("address", ln.Addr().String()))
	g.Go(func() error {
		return Serve(ctx, ln, s.Handler(), s.config.ReadTimeout, s.config.WriteTimeout, s.logger)
	})

	if metricsLn != nil {
		s.logger.Info("Serving metrics", zap.String("address", metricsLn.Addr().String()))
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.metrics.Handler())
		g.Go(func() error {
			return Serve(ctx, metricsLn, mux, s.config.ReadTimeout, s.config.WriteTimeout, s.logger)
		})
	}

	return g.Wait()
}

// Handler returns the API handler wrapped with panic recovery and CORS.
func (s *Service) Handler() http.Handler {
	return withRecovery(withCORS(s.server), s.logger)
}

// Stop stops the service and closes connections
func (s *Service) Stop(ctx context.Context) error {
	var errs error

	if s.amqpPublisher != nil {
		if err := s.amqpPublisher.Close(); err != nil {
			s.logger.Error("Failed to close AMQP publisher", zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}

	if s.store != nil {
		if err := s.store.Close(ctx); err != nil {
			s.logger.Error("Failed to close store", zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}

	if errs != nil {
		return fmt.Errorf("errors stopping service: %w", errs)
	}

	s.logger.Info("Phonebook service stopped")
	return nil
}

// Store returns the connected store
func (s *Service) Store() store.Store {
	return s.store
}

// Schema returns the executable GraphQL schema
func (s *Service) Schema() *graphql.Schema {
	return s.schema
}

// GetServer returns the HTTP server instance
func (s *Service) GetServer() *Server {
	return s.server
}

// Metrics returns the service metrics
func (s *Service) Metrics() *Metrics {
	return s.metrics
}
