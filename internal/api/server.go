// Package api exposes a running engine over HTTP.
//
// Reads (chain state, contracts, queries, the journal) go straight to the
// store. Writes are submitted to the engine's single-writer loop, so Server
// requires engine.Run to be running.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/vetogate/internal/engine"
)

// shutdownTimeout bounds graceful shutdown of ListenAndServe.
const shutdownTimeout = 5 * time.Second

// Server routes HTTP requests to an engine.
type Server struct {
	engine *engine.Engine
	logger *slog.Logger
	router *gin.Engine
}

// New builds a Server. A nil logger uses slog.Default.
func New(e *engine.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{engine: e, logger: logger, router: gin.New()}
	// Labels contain a slash; clients send it escaped ("alpha%2Ftimelock").
	s.router.UseRawPath = true
	s.router.UnescapePathValues = true
	s.router.Use(gin.Recovery(), s.logRequests)

	v1 := s.router.Group("/v1")
	v1.GET("/chain", s.chain)
	v1.POST("/chain/advance", s.advance)
	v1.GET("/contracts", s.listContracts)
	v1.GET("/contracts/:contract", s.getContract)
	v1.POST("/contracts/:contract/query", s.query)
	v1.POST("/contracts/:contract/execute", s.execute)
	v1.GET("/commands", s.listCommands)
	return s
}

// Handler returns the http.Handler serving the routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("api request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", c.Writer.Status(),
		"duration", time.Since(start),
	)
}
