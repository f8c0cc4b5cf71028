package service

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/A-kirami/webgal-craft/internal/fanout"
	"github.com/A-kirami/webgal-craft/internal/metrics"
	"github.com/A-kirami/webgal-craft/internal/preview"
	"github.com/A-kirami/webgal-craft/internal/server"
	"github.com/A-kirami/webgal-craft/internal/site"
	"github.com/A-kirami/webgal-craft/internal/websocket"
	"github.com/A-kirami/webgal-craft/pkg/config"
)

// inboundBuffer is how many inbound messages a slow observer may lag behind.
const inboundBuffer = 256

// Options configures a Preview.
type Options struct {
	Router          server.RouterOptions
	Hub             websocket.Config
	ShutdownTimeout time.Duration
	Settings        preview.Settings
}

// OptionsFromConfig maps the application configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Router: server.RouterOptions{
			SyncPath:      cfg.Server.SyncPath,
			ContentPrefix: cfg.Server.ContentPrefix,
			CORS:          cfg.CORS,
		},
		Hub: websocket.Config{
			BroadcastCapacity: cfg.Hub.BroadcastCapacity,
			WriteTimeout:      cfg.Hub.WriteTimeout,
			PongWait:          cfg.Hub.PongWait,
			ReadLimit:         cfg.Hub.ReadLimit,
		},
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Settings:        preview.DefaultSettings(),
	}
}

// InboundMessage is a frame received from a sync client.
type InboundMessage struct {
	From       string    `json:"from"`
	Message    string    `json:"message"`
	ReceivedAt time.Time `json:"received_at"`
	// Command is set when the frame is a well-formed debug message.
	Command *preview.DebugCommand `json:"command,omitempty"`
}

// Status describes the preview server.
type Status struct {
	State   string `json:"state"`
	Address string `json:"address,omitempty"`
	URL     string `json:"url,omitempty"`
	Sites   int    `json:"sites"`
	Clients int    `json:"clients"`
}

// SiteInfo describes a registered site.
type SiteInfo struct {
	ID   string `json:"id"`
	Root string `json:"root"`
	URL  string `json:"url,omitempty"`
}

// ReconcileResult reports what ReconcileSites changed.
type ReconcileResult struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// Preview is the command set a host uses to drive the preview server. Sites
// and connected clients live as long as the Preview; Start and Stop only
// replace the listener.
type Preview struct {
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics

	sites      *site.Registry
	hub        *websocket.Manager
	supervisor *server.Supervisor
	inbound    *fanout.Broadcaster[InboundMessage]
	commander  *preview.Commander

	// configured holds the ids registered by ReconcileSites. Only these are
	// removed when they drop out of the configured list.
	configMu   sync.Mutex
	configured map[string]struct{}
}

// New creates a stopped Preview. m may be nil.
func New(opts Options, m *metrics.Metrics, logger *zap.Logger) *Preview {
	p := &Preview{
		opts:    opts,
		logger:  logger.Named("preview"),
		metrics: m,
		sites:   site.NewRegistry(logger),
		hub:     websocket.NewManager(opts.Hub, m, logger),
		inbound: fanout.NewBroadcaster[InboundMessage](inboundBuffer),

		configured: make(map[string]struct{}),
	}
	p.commander = preview.NewCommander(p, opts.Settings, logger)

	state := &server.AppState{
		Sites:   p.sites,
		Hub:     p.hub,
		Inbound: p.receive,
		Metrics: m,
	}
	router := server.NewRouter(state, opts.Router, logger)
	p.supervisor = server.NewSupervisor(server.SupervisorConfig{
		Name:            "preview",
		ShutdownTimeout: opts.ShutdownTimeout,
		Fallback:        true,
	}, router, m, logger)

	return p
}

// Start (re)starts the server on host:port, falling back to an OS-assigned
// port, and returns its base URL.
func (p *Preview) Start(ctx context.Context, host string, port int) (string, error) {
	url, err := p.supervisor.Start(ctx, host, port)
	if err != nil {
		p.logger.Error("Failed to start preview server",
			zap.String("host", host), zap.Int("port", port), zap.Error(err))
		return "", err
	}
	return url, nil
}

// Stop stops the listener. Connected clients stay connected.
func (p *Preview) Stop(ctx context.Context) error {
	return p.supervisor.Stop(ctx)
}

// AddSite registers a project directory and returns its site id. The site
// stays registered until RemoveSite, even if it was first registered from
// configuration.
func (p *Preview) AddSite(path string) (string, error) {
	p.configMu.Lock()
	defer p.configMu.Unlock()

	id, err := p.sites.Add(path)
	if err != nil {
		return "", err
	}
	delete(p.configured, id)
	return id, nil
}

// RemoveSite unregisters a project directory.
func (p *Preview) RemoveSite(path string) error {
	id, _, err := site.Resolve(path)
	if err != nil {
		return err
	}
	p.RemoveSiteID(id)
	return nil
}

// RemoveSiteID unregisters a site by id and reports whether it existed.
func (p *Preview) RemoveSiteID(id string) bool {
	p.configMu.Lock()
	defer p.configMu.Unlock()

	delete(p.configured, id)
	return p.sites.RemoveID(id)
}

// Sites lists the registered sites. URLs are filled in while the server runs.
func (p *Preview) Sites() []SiteInfo {
	base := p.baseURL()
	list := p.sites.List()
	out := make([]SiteInfo, len(list))
	for i, s := range list {
		out[i] = SiteInfo{ID: s.ID, Root: s.Root}
		if base != "" {
			out[i].URL = base + p.opts.Router.ContentPrefix + "/" + s.ID + "/"
		}
	}
	return out
}

// ReconcileSites applies the configured site list. Listed paths that are not
// registered yet are added; sites added by an earlier call that are no longer
// listed are removed. Sites registered through AddSite are left alone. Paths
// that cannot be resolved are reported in the returned error; the rest are
// still applied.
func (p *Preview) ReconcileSites(paths []string) (ReconcileResult, error) {
	p.configMu.Lock()
	defer p.configMu.Unlock()

	var (
		result ReconcileResult
		errs   []error
	)

	want := make(map[string]bool, len(paths))
	for _, path := range paths {
		id, _, err := site.Resolve(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		want[id] = true
		if _, err := p.sites.Lookup(id); err == nil {
			continue
		}
		if _, err := p.sites.Add(path); err != nil {
			errs = append(errs, err)
			continue
		}
		p.configured[id] = struct{}{}
		result.Added = append(result.Added, id)
	}

	for id := range p.configured {
		if want[id] {
			continue
		}
		delete(p.configured, id)
		if p.sites.RemoveID(id) {
			result.Removed = append(result.Removed, id)
		}
	}
	sort.Strings(result.Removed)

	if len(result.Added) > 0 || len(result.Removed) > 0 {
		p.logger.Info("Sites reconciled",
			zap.Strings("added", result.Added), zap.Strings("removed", result.Removed))
	}
	return result, errors.Join(errs...)
}

// Broadcast sends message to every connected client. Having nobody
// connected is not an error.
func (p *Preview) Broadcast(message string) error {
	err := p.hub.Broadcast(message)
	if errors.Is(err, websocket.ErrNoSubscribers) {
		p.logger.Debug("Broadcast with no connected clients")
		return nil
	}
	return err
}

// Unicast sends message to the client at address ("ip:port").
func (p *Preview) Unicast(address, message string) error {
	return p.hub.Unicast(address, message)
}

// ConnectedClients returns the addresses of the connected clients.
func (p *Preview) ConnectedClients() []string {
	return p.hub.Clients()
}

// Clients describes the connected clients.
func (p *Preview) Clients() []websocket.ClientInfo {
	return p.hub.Snapshot()
}

// DisconnectClient drops the client at address.
func (p *Preview) DisconnectClient(address string) (bool, error) {
	addr, err := websocket.ParseAddress(address)
	if err != nil {
		return false, err
	}
	return p.hub.Disconnect(addr), nil
}

// Status reports the server state and counts.
func (p *Preview) Status() Status {
	st := Status{
		State:   p.supervisor.State().String(),
		Address: p.supervisor.Address(),
		Sites:   p.sites.Len(),
		Clients: p.hub.Count(),
	}
	if st.Address != "" {
		st.URL = "http://" + st.Address
	}
	return st
}

// Commander returns the debug protocol commander bound to this server.
func (p *Preview) Commander() *preview.Commander {
	return p.commander
}

// SubscribeInbound observes frames sent by sync clients. The subscription
// must be closed by the caller.
func (p *Preview) SubscribeInbound() (*fanout.Subscription[InboundMessage], error) {
	sub, err := p.inbound.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("subscribe inbound: %w", err)
	}
	return sub, nil
}

// Close stops the server and ends every client session.
func (p *Preview) Close(ctx context.Context) error {
	err := p.supervisor.Stop(ctx)
	p.hub.Close()
	p.inbound.Close()
	return err
}

func (p *Preview) receive(from netip.AddrPort, message string) {
	in := InboundMessage{
		From:       from.String(),
		Message:    message,
		ReceivedAt: time.Now(),
	}

	if ev, err := preview.ParseEvent(message); err == nil {
		if msg, err := ev.DecodeMessage(); err == nil {
			cmd := msg.Command
			in.Command = &cmd
		}
	}

	if in.Command != nil {
		p.logger.Debug("Inbound sync message",
			zap.String("client", in.From), zap.Stringer("command", *in.Command))
	} else {
		p.logger.Debug("Inbound sync message", zap.String("client", in.From), zap.Int("bytes", len(message)))
	}

	if _, err := p.inbound.Publish(in); err != nil && !errors.Is(err, fanout.ErrClosed) {
		p.logger.Warn("Failed to publish inbound message", zap.Error(err))
	}
}

func (p *Preview) baseURL() string {
	if addr := p.supervisor.Address(); addr != "" {
		return "http://" + addr
	}
	return ""
}
