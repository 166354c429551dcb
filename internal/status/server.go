// Package status serves health, metrics and the latest sync report over HTTP
// while the process runs on a schedule.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"fxcalsync/internal/metrics"
	"fxcalsync/internal/syncer"
)

// Server keeps the most recent report and exposes it next to the metrics.
type Server struct {
	logger  *slog.Logger
	metrics *metrics.Recorder

	mu      sync.RWMutex
	last    *syncer.Report
	lastErr string
	running bool
}

func NewServer(logger *slog.Logger, m *metrics.Recorder) *Server {
	return &Server{logger: logger, metrics: m}
}

// RunStarted marks a sync as in progress.
func (s *Server) RunStarted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
}

// RunFinished stores the outcome of a sync. report may be nil when the run failed early.
func (s *Server) RunFinished(report *syncer.Report, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if report != nil {
		s.last = report
	}
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
}

// Handler builds the gin engine.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.GET("/status", s.status)
	return r
}

func (s *Server) status(c *gin.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	body := gin.H{"running": s.running}
	if s.lastErr != "" {
		body["error"] = s.lastErr
	}
	if s.last == nil {
		body["message"] = "no sync has run yet"
		c.JSON(http.StatusOK, body)
		return
	}
	synced, skipped, failed := s.last.Counts()
	body["last"] = s.last
	body["summary"] = gin.H{"synced": synced, "skipped": skipped, "failed": failed}
	c.JSON(http.StatusOK, body)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("HTTP request.",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"ip", c.ClientIP())
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status server listening.", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down status server: %w", err)
		}
		return nil
	}
}
