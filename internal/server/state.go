package server

import (
	"github.com/A-kirami/webgal-craft/internal/metrics"
	"github.com/A-kirami/webgal-craft/internal/site"
	"github.com/A-kirami/webgal-craft/internal/websocket"
)

// AppState is the state shared by every request handler. It outlives server
// restarts: sites and connected clients are kept while the listener is
// replaced.
type AppState struct {
	Sites *site.Registry
	Hub   *websocket.Manager
	// Inbound receives text frames sent by sync clients. May be nil.
	Inbound websocket.InboundFunc
	// Metrics may be nil.
	Metrics *metrics.Metrics
}
