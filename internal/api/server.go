// Package api exposes the kiosk flow, the on-ramp broker and the webhook relay over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Proton-105/omnikiosk/internal/errors"
	"github.com/Proton-105/omnikiosk/internal/flow"
	"github.com/Proton-105/omnikiosk/internal/health"
	"github.com/Proton-105/omnikiosk/internal/i18n"
	"github.com/Proton-105/omnikiosk/internal/middleware"
	"github.com/Proton-105/omnikiosk/internal/relay"
	"github.com/Proton-105/omnikiosk/pkg/logger"
)

// Kiosk is the flow surface driven by the kiosk front end.
type Kiosk interface {
	Snapshot() flow.FlowState
	Config() flow.Config
	Start(ctx context.Context) error
	SelectChain(ctx context.Context, chainID int64) error
	RequestConnect(ctx context.Context) error
	OnSession(ctx context.Context, session flow.Session) error
	Pay(ctx context.Context) error
	Cancel(ctx context.Context) error
	KeepGoing(ctx context.Context) error
	ConfirmCancel(ctx context.Context) error
}

// SessionBroker issues on-ramp checkout URLs.
type SessionBroker interface {
	SessionURL(ctx context.Context, address string) (string, error)
}

// WebhookForwarder relays bodies to the dispensing webhook.
type WebhookForwarder interface {
	Forward(ctx context.Context, body []byte) (relay.Reply, error)
}

// Probes answers the ops endpoints.
type Probes interface {
	Liveness(ctx context.Context) error
	Report(ctx context.Context) (health.Report, error)
}

// Deps collects the collaborators of Server. RateLimit may be nil.
type Deps struct {
	Kiosk     Kiosk
	Broker    SessionBroker
	Webhook   WebhookForwarder
	Probes    Probes
	Catalog   *i18n.Catalog
	Errors    *errors.Handler
	RateLimit gin.HandlerFunc
	Log       *slog.Logger
}

// Server owns the gin engine.
type Server struct {
	deps   Deps
	log    *slog.Logger
	engine *gin.Engine
}

func New(deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Errors == nil {
		deps.Errors = errors.NewHandler(deps.Log, false)
	}

	s := &Server{
		deps:   deps,
		log:    deps.Log,
		engine: gin.New(),
	}
	s.routes()
	return s
}

// Handler returns the engine wrapped with correlation id injection.
func (s *Server) Handler() http.Handler {
	return logger.Middleware(s.engine)
}

func (s *Server) routes() {
	s.engine.Use(gin.Recovery(), middleware.Logging(s.log), middleware.Metrics())

	s.engine.GET("/healthz", s.healthz)
	s.engine.GET("/readyz", s.readyz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")

	kiosk := api.Group("/kiosk")
	kiosk.GET("/state", s.state)
	kiosk.GET("/chains", s.chains)
	kiosk.POST("/start", s.start)
	kiosk.POST("/chain", s.selectChain)
	kiosk.POST("/connect", s.connect)
	kiosk.POST("/session", s.session)
	kiosk.POST("/pay", s.pay)
	kiosk.POST("/cancel", s.cancel)
	kiosk.POST("/cancel/confirm", s.confirmCancel)
	kiosk.POST("/cancel/dismiss", s.dismissCancel)

	relays := api.Group("")
	if s.deps.RateLimit != nil {
		relays.Use(s.deps.RateLimit)
	}
	relays.POST("/onramp", s.onramp)
	relays.POST("/webhook", s.webhook)
}

func (s *Server) healthz(c *gin.Context) {
	if s.deps.Probes != nil {
		if err := s.deps.Probes.Liveness(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) readyz(c *gin.Context) {
	if s.deps.Probes == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}

	report, err := s.deps.Probes.Report(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error(), "components": report.Components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "components": report.Components})
}
