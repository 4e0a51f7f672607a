// Package assisthttp is the foreground surface: it serves the view model,
// accepts user intents and streams refresh events.
package assisthttp

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"poscalc/internal/logger"
)

const DefaultAddr = "127.0.0.1:9992"

type Server struct {
	addr   string
	router *gin.Engine
}

// ServerConfig lists what the HTTP surface depends on. Assistant returns nil
// until the endpoint is configured and the session is running.
type ServerConfig struct {
	Addr      string
	Assistant func() Assistant
	Endpoints Endpoints
	Journal   JournalReader
	Metrics   http.Handler
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Endpoints == nil {
		return nil, errors.New("assist http server requires an endpoint service")
	}
	if cfg.Assistant == nil {
		cfg.Assistant = func() Assistant { return nil }
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Metrics == nil {
		cfg.Metrics = promhttp.Handler()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(cfg.Metrics))
	NewRouter(cfg.Assistant, cfg.Endpoints, cfg.Journal).Register(router.Group("/api"))

	return &Server{addr: cfg.Addr, router: router}, nil
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		if query != "" {
			path = path + "?" + query
		}
		logger.Debugf("HTTP %s %s status=%d ip=%s dur=%s", method, path, c.Writer.Status(), client, time.Since(start))
	}
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
