// Package http exposes the approval workflow over a JSON API.
// It is a thin adapter that translates HTTP requests to application service calls.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/approval-engine/internal/application/service"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// HealthFunc reports component health; ok=false answers 503
type HealthFunc func(ctx context.Context) (ok bool, details interface{})

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MetricsPath     string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MetricsPath:     "/metrics",
	}
}

// ServerDeps holds the services the server routes to
type ServerDeps struct {
	Workflow service.WorkflowService
	Chains   service.ChainService
	Health   HealthFunc   // optional
	Metrics  http.Handler // optional, served at MetricsPath
	Logger   Logger
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	deps       ServerDeps
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, deps ServerDeps) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config: config,
		router: gin.New(),
		deps:   deps,
		logger: deps.Logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"actor_id", c.GetHeader(ActorHeader),
		)
	}
}

func (s *Server) setupRoutes() {
	h := NewHandlers(s.deps.Workflow, s.deps.Chains, s.deps.Health, s.logger)

	s.router.GET("/health", h.HealthCheck)
	if s.deps.Metrics != nil {
		s.router.GET(s.config.MetricsPath, gin.WrapH(s.deps.Metrics))
	}

	api := s.router.Group("/api/v1")

	company := api.Group("/companies/:companyID")
	{
		company.GET("/chains", h.ListChains)
		company.POST("/chains", h.CreateChain)
		company.GET("/chains/:chainID", h.GetChain)
		company.PUT("/chains/:chainID", h.UpdateChain)
		company.DELETE("/chains/:chainID", h.DeleteChain)
		company.POST("/chains/:chainID/deactivate", h.DeactivateChain)

		company.GET("/requests", h.ListRequests)
		company.POST("/requests", h.SubmitRequest)
		company.GET("/requests/export", h.ExportRequests)
		company.GET("/requests/:requestID", h.GetRequest)
		company.GET("/requests/:requestID/history", h.GetHistory)
		company.GET("/requests/:requestID/approvers", h.GetApprovers)
		company.POST("/requests/:requestID/approve", h.ApproveRequest)
		company.POST("/requests/:requestID/reject", h.RejectRequest)
		company.POST("/requests/:requestID/cancel", h.CancelRequest)
	}

	api.GET("/users/:userID/pending-approvals", h.PendingApprovals)
}

// Start runs the server until ctx is cancelled or listening fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
