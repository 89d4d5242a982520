package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/codewatchers/reviewd/internal/observability"
	"github.com/codewatchers/reviewd/internal/queue"
)

// shutdownGrace bounds how long in-flight HTTP requests may run after
// the serve context is canceled.
const shutdownGrace = 10 * time.Second

// Server ties the HTTP listener and the worker pool together so both
// start and stop as one unit.
type Server struct {
	addr    string
	handler http.Handler
	pool    *queue.Pool
	logger  observability.Logger
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, handler http.Handler, pool *queue.Pool, logger observability.Logger) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		pool:    pool,
		logger:  logger,
	}
}

// Run starts the worker pool and serves HTTP until ctx is canceled,
// then drains queued work before returning.
func (s *Server) Run(ctx context.Context) error {
	s.pool.Start(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.handler,
	}

	errCh := make(chan error, 1)
	go func() {
		if s.logger != nil {
			s.logger.LogInfo(ctx, "http server listening", map[string]interface{}{"addr": s.addr})
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.pool.Stop()
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if s.logger != nil {
			s.logger.LogError(shutdownCtx, "http shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}

	s.pool.Drain()
	return nil
}
