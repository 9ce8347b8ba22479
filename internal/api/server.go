// Package api serves the local management endpoint: liveness, monitor
// status, and a redacted view of the running configuration. It is meant
// to be bound to loopback only.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/netmon-dev/netmon/internal/config"
	"github.com/netmon-dev/netmon/internal/monitor"
)

// StatusProvider exposes the monitor's loop status. *monitor.Monitor
// satisfies it.
type StatusProvider interface {
	Status() monitor.Status
}

// Server is the management HTTP server.
type Server struct {
	mu       sync.RWMutex
	cfg      *config.Config
	provider StatusProvider

	engine     *gin.Engine
	httpServer *http.Server
	started    time.Time
}

// New builds the management server for cfg.Management.Listen. The caller
// is responsible for not constructing one when the listen address is
// empty.
func New(cfg *config.Config, provider StatusProvider) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:      cfg,
		provider: provider,
		engine:   engine,
		started:  time.Now(),
	}
	engine.GET("/healthz", s.handleHealth)
	engine.GET("/v0/status", s.handleStatus)
	engine.GET("/v0/config", s.handleConfig)

	s.httpServer = &http.Server{
		Addr:              cfg.Management.Listen,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the underlying HTTP handler, used by tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start begins serving in the background.
func (s *Server) Start() {
	log.WithField("status", "listening").Infof("management endpoint on %s", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("management endpoint failed: %v", err)
		}
	}()
}

// Shutdown stops the server, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// SetConfig swaps the configuration served by /v0/config after a reload.
func (s *Server) SetConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	status := s.provider.Status()
	health := "ok"
	if status.CycleCount > 0 && !status.LastCycleOK {
		health = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"health":  health,
		"monitor": status,
	})
}

// handleConfig returns the effective configuration with every secret
// replaced by a marker. Raw credentials never leave the process.
func (s *Server) handleConfig(c *gin.Context) {
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"router": gin.H{
			"address":  cfg.Router.Address,
			"username": cfg.Router.Username,
			"password": redact(cfg.Router.Password),
			"enabled":  cfg.Router.Enabled,
		},
		"switch": gin.H{
			"address":  cfg.Switch.Address,
			"username": cfg.Switch.Username,
			"password": redact(cfg.Switch.Password),
			"enabled":  cfg.Switch.Enabled,
		},
		"influxdb": gin.H{
			"url":    cfg.Influx.URL,
			"token":  redact(cfg.Influx.Token),
			"org":    cfg.Influx.Org,
			"bucket": cfg.Influx.Bucket,
		},
		"log_archive": gin.H{
			"dsn":   redact(cfg.LogArchive.DSN),
			"table": cfg.LogArchive.Table,
		},
		"collection_interval":    cfg.CollectionIntervalSeconds,
		"retry_interval":         cfg.RetryIntervalSeconds,
		"request_delay":          cfg.RequestDelaySeconds,
		"max_consecutive_errors": cfg.MaxConsecutiveErrors,
	})
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}
