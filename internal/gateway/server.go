// Package gateway serves the HTTP boundary: task execution, agent lookup,
// reconstructed console logs, and SSE log streaming.
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zulandar/roundhouse/internal/agent"
	"github.com/zulandar/roundhouse/internal/models"
	"github.com/zulandar/roundhouse/internal/registry"
	"github.com/zulandar/roundhouse/internal/runtime"
	"github.com/zulandar/roundhouse/internal/store"
)

// Opts holds configuration for the gateway server.
type Opts struct {
	Registry *registry.Registry
	Store    store.Store
	Capture  *runtime.CaptureBuffer
	Logger   *zap.Logger
	Port     int

	// Credential and BaseURL are passed through to every execution.
	Credential string
	BaseURL    string

	// Notify, if set, fires after every terminal task transition.
	Notify func(task *models.Task, result *agent.ExecutionResult)
	// RepoCheck, if set, verifies an extracted repository URL. Failures are
	// warnings only.
	RepoCheck func(ctx context.Context, url string) error
}

// Server is the gateway HTTP server.
type Server struct {
	opts   Opts
	logger *zap.Logger
	router *gin.Engine
}

// New builds the server and its routes.
func New(opts Opts) (*Server, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("gateway: registry is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("gateway: store is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{opts: opts, logger: logger, router: router}
	s.registerRoutes()
	return s, nil
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.opts.Port),
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	s.logger.Info("gateway listening", zap.Int("port", s.opts.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}
