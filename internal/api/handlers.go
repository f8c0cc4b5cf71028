package api

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/A-kirami/webgal-craft/internal/fanout"
	"github.com/A-kirami/webgal-craft/internal/preview"
	"github.com/A-kirami/webgal-craft/internal/server"
	"github.com/A-kirami/webgal-craft/internal/service"
	"github.com/A-kirami/webgal-craft/internal/site"
	"github.com/A-kirami/webgal-craft/internal/websocket"
	"github.com/A-kirami/webgal-craft/pkg/config"
)

// Handlers aggregates all control API handlers
type Handlers struct {
	preview *service.Preview
	cfg     *config.Config
	logger  *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(p *service.Preview, cfg *config.Config, logger *zap.Logger) *Handlers {
	return &Handlers{
		preview: p,
		cfg:     cfg,
		logger:  logger.Named("handlers"),
	}
}

// StartServerRequest starts or restarts the preview server. Omitted fields
// fall back to the configured values.
type StartServerRequest struct {
	Host string `json:"host"`
	Port *int   `json:"port"`
}

// SiteRequest names a project directory.
type SiteRequest struct {
	Path string `json:"path" binding:"required"`
}

// BroadcastRequest is the body of POST /control/broadcast. An empty message
// is valid; only a missing one is rejected.
type BroadcastRequest struct {
	Message *string `json:"message" binding:"required"`
}

// UnicastRequest is the body of POST /control/unicast.
type UnicastRequest struct {
	Address string  `json:"address" binding:"required"`
	Message *string `json:"message" binding:"required"`
}

// ClientRequest names a connected client.
type ClientRequest struct {
	Address string `json:"address" binding:"required"`
}

// Status handles the /control/status endpoint
func (h *Handlers) Status(c *gin.Context) {
	c.JSON(200, StatusResponse{
		Status:       "ok",
		Service:      "webgal-preview",
		APIVersion:   CurrentAPIVersion,
		Capabilities: APICapabilities[CurrentAPIVersion],
		Server:       h.preview.Status(),
	})
}

// StartServer (re)starts the preview server
func (h *Handlers) StartServer(c *gin.Context) {
	var req StartServerRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	host := req.Host
	if host == "" {
		host = h.cfg.Server.Host
	}
	port := h.cfg.Server.Port
	if req.Port != nil {
		port = *req.Port
	}
	if port < 0 || port > 65535 {
		c.JSON(400, gin.H{"error": "port out of range"})
		return
	}

	url, err := h.preview.Start(c.Request.Context(), host, port)
	if err != nil {
		h.writeError(c, err, "Failed to start server")
		return
	}

	c.JSON(200, gin.H{"url": url})
}

// StopServer stops the preview server
func (h *Handlers) StopServer(c *gin.Context) {
	if err := h.preview.Stop(c.Request.Context()); err != nil {
		h.logger.Warn("Preview server did not stop cleanly", zap.Error(err))
	}
	c.JSON(200, gin.H{"status": h.preview.Status().State})
}

// ListSites returns the registered sites
func (h *Handlers) ListSites(c *gin.Context) {
	c.JSON(200, gin.H{"sites": h.preview.Sites()})
}

// AddSite registers a project directory
func (h *Handlers) AddSite(c *gin.Context) {
	var req SiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	id, err := h.preview.AddSite(req.Path)
	if err != nil {
		h.writeError(c, err, "Failed to add site")
		return
	}

	c.JSON(201, gin.H{"id": id})
}

// RemoveSite unregisters a project directory
func (h *Handlers) RemoveSite(c *gin.Context) {
	var req SiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	if err := h.preview.RemoveSite(req.Path); err != nil {
		h.writeError(c, err, "Failed to remove site")
		return
	}

	c.Status(204)
}

// RemoveSiteByID unregisters a site by its id
func (h *Handlers) RemoveSiteByID(c *gin.Context) {
	if !h.preview.RemoveSiteID(c.Param("id")) {
		c.JSON(404, gin.H{"error": "Site not found"})
		return
	}
	c.Status(204)
}

// Broadcast sends a message to every connected client
func (h *Handlers) Broadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	if err := h.preview.Broadcast(*req.Message); err != nil {
		h.writeError(c, err, "Failed to broadcast")
		return
	}

	c.JSON(202, gin.H{"clients": len(h.preview.ConnectedClients())})
}

// Unicast sends a message to a single client
func (h *Handlers) Unicast(c *gin.Context) {
	var req UnicastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	if err := h.preview.Unicast(req.Address, *req.Message); err != nil {
		h.writeError(c, err, "Failed to unicast")
		return
	}

	c.Status(202)
}

// ListClients returns the connected clients
func (h *Handlers) ListClients(c *gin.Context) {
	c.JSON(200, gin.H{"clients": h.preview.Clients()})
}

// DisconnectClient drops a connected client
func (h *Handlers) DisconnectClient(c *gin.Context) {
	var req ClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	ok, err := h.preview.DisconnectClient(req.Address)
	if err != nil {
		h.writeError(c, err, "Failed to disconnect client")
		return
	}
	if !ok {
		c.JSON(404, gin.H{"error": "Client not connected"})
		return
	}

	c.Status(204)
}

// Events streams inbound sync messages as server-sent events
func (h *Handlers) Events(c *gin.Context) {
	sub, err := h.preview.SubscribeInbound()
	if err != nil {
		h.writeError(c, err, "Failed to subscribe")
		return
	}
	defer sub.Close()

	ctx := c.Request.Context()
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Header("Content-Type", "text/event-stream")
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		msg, err := sub.Recv(ctx)
		if err != nil {
			return false
		}
		c.SSEvent("inbound", msg)
		return true
	})
}

// writeError maps domain errors onto status codes
func (h *Handlers) writeError(c *gin.Context, err error, action string) {
	var (
		pathErr *site.PathError
		bindErr *server.BindError
	)

	switch {
	case errors.Is(err, site.ErrNotFound), errors.Is(err, site.ErrSiteNotFound):
		c.JSON(404, gin.H{"error": err.Error()})
	case errors.As(err, &pathErr):
		c.JSON(400, gin.H{"error": err.Error()})
	case errors.As(err, &bindErr):
		h.logger.Error(action, zap.Error(err))
		c.JSON(503, gin.H{"error": err.Error()})
	case errors.Is(err, websocket.ErrInvalidAddress):
		c.JSON(400, gin.H{"error": err.Error()})
	case errors.Is(err, websocket.ErrClientNotFound):
		c.JSON(404, gin.H{"error": err.Error()})
	case errors.Is(err, preview.ErrUnknownComponent):
		c.JSON(400, gin.H{"error": err.Error()})
	case errors.Is(err, fanout.ErrClosed):
		c.JSON(503, gin.H{"error": "Preview server is shutting down"})
	default:
		h.logger.Error(action, zap.Error(err))
		c.JSON(500, gin.H{"error": action})
	}
}
