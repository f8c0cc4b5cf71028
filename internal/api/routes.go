package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/A-kirami/webgal-craft/internal/metrics"
	"github.com/A-kirami/webgal-craft/internal/server"
	"github.com/A-kirami/webgal-craft/internal/service"
	"github.com/A-kirami/webgal-craft/pkg/config"
	"github.com/A-kirami/webgal-craft/pkg/middleware"
)

// Provider mounts the control API on a router.
type Provider struct {
	handlers *Handlers
	metrics  *metrics.Metrics
	limiter  *middleware.RateLimiter
	logger   *zap.Logger
}

// NewProvider creates the control API route provider. m may be nil.
func NewProvider(p *service.Preview, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *Provider {
	rl := cfg.Control.RateLimit
	return &Provider{
		handlers: NewHandlers(p, cfg, logger),
		metrics:  m,
		limiter: middleware.NewRateLimiter(middleware.RateLimitConfig{
			Enabled:           rl.Enabled,
			RequestsPerMinute: rl.RequestsPerMinute,
			BurstSize:         rl.BurstSize,
		}, logger),
		logger: logger,
	}
}

func (p *Provider) Name() string { return "control" }

func (p *Provider) RegisterRoutes(router *gin.Engine) {
	h := p.handlers

	router.GET("/metrics", gin.WrapH(p.metrics.Handler()))

	control := router.Group("/control")
	control.Use(middleware.RateLimitMiddleware(p.limiter, p.logger))
	{
		control.GET("/status", h.Status)

		control.POST("/server/start", h.StartServer)
		control.POST("/server/stop", h.StopServer)

		control.GET("/sites", h.ListSites)
		control.POST("/sites", h.AddSite)
		control.DELETE("/sites", h.RemoveSite)
		control.DELETE("/sites/:id", h.RemoveSiteByID)

		control.POST("/broadcast", h.Broadcast)
		control.POST("/unicast", h.Unicast)

		control.GET("/clients", h.ListClients)
		control.DELETE("/clients", h.DisconnectClient)

		control.GET("/events", h.Events)

		sync := control.Group("/sync")
		{
			sync.POST("/jump", h.SyncJump)
			sync.POST("/command", h.SyncCommand)
			sync.POST("/temp-scene", h.SyncTempScene)
			sync.POST("/visibility", h.SyncVisibility)
			sync.POST("/font-optimization", h.SyncFontOptimization)
			sync.POST("/refetch-templates", h.SyncRefetchTemplates)
			sync.GET("/settings", h.GetSyncSettings)
			sync.PUT("/settings", h.UpdateSyncSettings)
		}
	}
}

// Close stops the rate limiter's cleanup loop.
func (p *Provider) Close() {
	p.limiter.Stop()
}

var _ server.RouteProvider = (*Provider)(nil)
