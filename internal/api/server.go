package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"
	graphql "github.com/graph-gophers/graphql-go"
	"go.uber.org/zap"

	"github.com/echotools/phonebook/internal/api/graph"
	"github.com/echotools/phonebook/internal/store"
)

const (
	// HeaderUsername carries the caller identity resolved by the me query.
	HeaderUsername = "X-Username"
	// HeaderRequestID is echoed back, or generated when absent.
	HeaderRequestID = "X-Request-ID"

	maxRequestBodyBytes = 1 << 20
)

// Server represents the HTTP server for the GraphQL API
type Server struct {
	store   store.Store
	schema  *graphql.Schema
	router  *mux.Router
	metrics *Metrics
	logger  *zap.Logger
}

// GraphQLRequest is the GraphQL-over-HTTP request body.
type GraphQLRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// NewServer creates a new GraphQL HTTP server. metrics may be nil.
func NewServer(s store.Store, schema *graphql.Schema, metrics *Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := &Server{
		store:   s,
		schema:  schema,
		router:  mux.NewRouter(),
		metrics: metrics,
		logger:  logger,
	}

	srv.setupRoutes()
	return srv
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware, s.loggingMiddleware)
	if s.metrics != nil {
		s.router.Use(s.metrics.MetricsMiddleware)
	}

	s.router.HandleFunc("/graphql", s.graphqlHandler).Methods(http.MethodPost)
	s.router.Handle("/graphql", playground.Handler("Phonebook", "/graphql")).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
}

// graphqlHandler executes a GraphQL query or mutation
func (s *Server) graphqlHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if username := r.Header.Get(HeaderUsername); username != "" {
		ctx = graph.WithUsername(ctx, username)
	}

	var req GraphQLRequest
	body := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.logger.Debug("Failed to decode GraphQL request", zap.Error(err))
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	response := s.schema.Exec(ctx, req.Query, req.OperationName, req.Variables)
	s.recordResult(ctx, response)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// recordResult classifies the response for metrics and logs server faults.
func (s *Server) recordResult(ctx context.Context, response *graphql.Response) {
	result := ResultOK
	for _, qe := range response.Errors {
		if qe.Extensions != nil && qe.Extensions["code"] == graph.CodeBadUserInput {
			if result == ResultOK {
				result = ResultBadUserInput
			}
			continue
		}
		result = ResultError
		if qe.ResolverError != nil {
			s.logger.Error("GraphQL resolver failed",
				zap.String("request_id", graph.RequestIDFromContext(ctx)),
				zap.Any("path", qe.Path),
				zap.Error(qe.ResolverError))
		}
	}

	if s.metrics != nil {
		s.metrics.RecordGraphQL(result)
	}
}

// healthHandler handles health check requests
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("Store health check failed", zap.Error(err))
		http.Error(w, "Database connection failed", http.StatusServiceUnavailable)
		return
	}

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.Must(uuid.NewV4()).String()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(graph.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := wrapResponseWriter(w)

		next.ServeHTTP(wrapped, r)

		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", graph.RequestIDFromContext(r.Context())))
	})
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Listen binds address so bind errors surface before serving starts.
func Listen(address string) (net.Listener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	return ln, nil
}

// Serve serves h on ln until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, ln net.Listener, h http.Handler, readTimeout, writeTimeout time.Duration, logger *zap.Logger) error {
	server := &http.Server{
		Handler:      h,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Serve(ln)
	}()

	select {
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
		return err
	}

	logger.Info("Server shutdown completed", zap.String("address", ln.Addr().String()))
	return nil
}
