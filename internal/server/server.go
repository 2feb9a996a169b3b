// Package server exposes the fact-checking pipeline over HTTP: claim
// submission, progress streaming via server-sent events, review
// overrides, and history queries.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/pipeline"
)

// Server wires the pipeline behind a gin router.
type Server struct {
	checker *pipeline.Checker
	log     *slog.Logger
	engine  *gin.Engine

	mu      sync.Mutex
	streams map[string]<-chan model.ProgressEvent
}

// New creates a Server around an initialized Checker.
func New(checker *pipeline.Checker, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		checker: checker,
		log:     log,
		engine:  gin.New(),
		streams: make(map[string]<-chan model.ProgressEvent),
	}
	s.engine.Use(gin.Recovery(), s.requestLog())

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/checks", s.handleSubmit)
		v1.GET("/checks/:id", s.handleRunState)
		v1.GET("/checks/:id/events", s.handleEvents)
		v1.POST("/checks/:id/review", s.handleReview)
		v1.GET("/checks/:id/graph", s.handleGraph)
		v1.GET("/history", s.handleHistory)
		v1.GET("/history/stats", s.handleHistoryStats)
	}
	s.engine.GET("/healthz", s.handleHealth)

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}
}

// identity resolves the caller identity for rate limiting: the API key
// header when present, the client address otherwise.
func identity(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	return c.ClientIP()
}

// keepStream stores the event stream for pickup by the events handler.
func (s *Server) keepStream(runID string, events <-chan model.ProgressEvent) {
	s.mu.Lock()
	s.streams[runID] = events
	s.mu.Unlock()
}

// takeStream hands the stream to its single consumer.
func (s *Server) takeStream(runID string) (<-chan model.ProgressEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, ok := s.streams[runID]
	if ok {
		delete(s.streams, runID)
	}
	return events, ok
}

func writeError(c *gin.Context, err error) {
	var (
		rle *model.RateLimitError
		cve *model.ClaimValidationError
	)
	switch {
	case errors.As(err, &rle):
		c.Header("Retry-After", fmt.Sprintf("%d", int(rle.RetryAfter.Seconds())+1))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.As(err, &cve):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
