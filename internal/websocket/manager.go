package websocket

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/A-kirami/webgal-craft/internal/fanout"
	"github.com/A-kirami/webgal-craft/internal/metrics"
)

var (
	ErrClientNotFound = errors.New("client not connected")
	ErrNoSubscribers  = errors.New("no connected clients")
	ErrInvalidAddress = errors.New("invalid client address")
)

// InboundFunc receives every text frame a sync client sends.
type InboundFunc func(from netip.AddrPort, message string)

// Config tunes connection handling.
type Config struct {
	// BroadcastCapacity is how many broadcast messages a client may lag
	// behind before the oldest are dropped for it.
	BroadcastCapacity int
	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration
	// PongWait is how long a client may stay silent before it is treated as
	// gone. Pings are sent at 9/10 of this. Zero disables keepalive.
	PongWait time.Duration
	// ReadLimit caps the size of an inbound frame.
	ReadLimit int64
}

// DefaultConfig returns the connection defaults.
func DefaultConfig() Config {
	return Config{
		BroadcastCapacity: fanout.DefaultCapacity,
		WriteTimeout:      10 * time.Second,
		PongWait:          60 * time.Second,
		ReadLimit:         1 << 20,
	}
}

func (c Config) pingPeriod() time.Duration {
	return c.PongWait * 9 / 10
}

// client is one registered sync connection.
type client struct {
	id          string
	addr        netip.AddrPort
	connectedAt time.Time
	queue       *fanout.Queue[string]
	sub         *fanout.Subscription[string]
}

func (c *client) close() {
	c.queue.Close()
	c.sub.Close()
}

// ClientInfo describes a connected client.
type ClientInfo struct {
	ID          string    `json:"id"`
	Address     string    `json:"address"`
	ConnectedAt time.Time `json:"connected_at"`
	Pending     int       `json:"pending"`
}

// Manager tracks connected sync clients. It owns the shared broadcast
// channel and one unicast queue per client.
type Manager struct {
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	broadcast *fanout.Broadcaster[string]

	clientsMu sync.RWMutex
	clients   map[netip.AddrPort]*client
}

// NewManager creates a new connection manager. m may be nil.
func NewManager(cfg Config, m *metrics.Metrics, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		logger:  logger.Named("websocket-manager"),
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Previews are opened from the tool's own origin as well as from
			// browsers on the LAN.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		broadcast: fanout.NewBroadcaster[string](cfg.BroadcastCapacity),
		clients:   make(map[netip.AddrPort]*client),
	}
}

// HandleConnection upgrades the request and serves the client until either
// side ends the session. It blocks for the lifetime of the connection.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, sink InboundFunc) {
	addr, err := ParseAddress(r.RemoteAddr)
	if err != nil {
		m.logger.Error("Rejecting connection with unusable remote address",
			zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		http.Error(w, "invalid remote address", http.StatusBadRequest)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error("Failed to upgrade connection", zap.String("client", addr.String()), zap.Error(err))
		return
	}

	session, err := m.Connect(addr)
	if err != nil {
		m.logger.Error("Failed to register client", zap.String("client", addr.String()), zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}

	session.Serve(conn, sink)
}

// Connect registers addr and subscribes it to the broadcast channel. A
// previous registration under the same address is displaced and its session
// winds down on its own.
func (m *Manager) Connect(addr netip.AddrPort) (*Session, error) {
	addr = normalize(addr)

	sub, err := m.broadcast.Subscribe()
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	c := &client{
		id:          uuid.NewString(),
		addr:        addr,
		connectedAt: time.Now(),
		queue:       fanout.NewQueue[string](),
		sub:         sub,
	}

	m.clientsMu.Lock()
	existing := m.clients[addr]
	m.clients[addr] = c
	n := len(m.clients)
	m.clientsMu.Unlock()

	if existing != nil {
		existing.close()
		m.logger.Warn("Displaced stale client registration",
			zap.String("client", addr.String()), zap.String("session_id", existing.id))
	}
	m.metrics.SetConnections(n)

	logger := m.logger.With(zap.String("client", addr.String()), zap.String("session_id", c.id))
	logger.Info("WebSocket client connected")

	return &Session{manager: m, client: c, logger: logger}, nil
}

// Disconnect removes addr unconditionally. Removing an unknown address is a
// no-op. It reports whether an entry was removed.
func (m *Manager) Disconnect(addr netip.AddrPort) bool {
	addr = normalize(addr)

	m.clientsMu.Lock()
	c, ok := m.clients[addr]
	if ok {
		delete(m.clients, addr)
	}
	n := len(m.clients)
	m.clientsMu.Unlock()

	if !ok {
		return false
	}
	c.close()
	m.metrics.SetConnections(n)
	return true
}

// release removes c if it is still the registration for its address.
func (m *Manager) release(c *client) {
	m.clientsMu.Lock()
	if existing, ok := m.clients[c.addr]; ok && existing == c {
		delete(m.clients, c.addr)
	}
	n := len(m.clients)
	m.clientsMu.Unlock()

	c.close()
	m.metrics.SetConnections(n)
}

// Broadcast publishes message to every connected client. With nobody
// connected it returns ErrNoSubscribers, which callers may treat as advisory.
func (m *Manager) Broadcast(message string) error {
	n, err := m.broadcast.Publish(message)
	if err != nil {
		return fmt.Errorf("broadcast: %w", err)
	}
	m.metrics.Broadcast()
	if n == 0 {
		return ErrNoSubscribers
	}
	return nil
}

// Unicast queues message for the client at address ("ip:port").
func (m *Manager) Unicast(address, message string) error {
	addr, err := ParseAddress(address)
	if err != nil {
		m.metrics.Unicast("invalid_address")
		return err
	}

	m.clientsMu.RLock()
	c, ok := m.clients[addr]
	m.clientsMu.RUnlock()

	if !ok {
		m.metrics.Unicast("not_found")
		return fmt.Errorf("%w: %s", ErrClientNotFound, addr)
	}
	if err := c.queue.Push(message); err != nil {
		m.metrics.Unicast("not_found")
		return fmt.Errorf("%w: %s", ErrClientNotFound, addr)
	}

	m.metrics.Unicast("delivered")
	m.logger.Debug("Queued unicast message",
		zap.String("client", addr.String()), zap.Int("bytes", len(message)))
	return nil
}

// IsConnected checks if a client is registered under address.
func (m *Manager) IsConnected(address string) bool {
	addr, err := ParseAddress(address)
	if err != nil {
		return false
	}
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	_, ok := m.clients[addr]
	return ok
}

// Clients returns the addresses of the connected clients.
func (m *Manager) Clients() []string {
	m.clientsMu.RLock()
	out := make([]string, 0, len(m.clients))
	for addr := range m.clients {
		out = append(out, addr.String())
	}
	m.clientsMu.RUnlock()

	sort.Strings(out)
	return out
}

// Snapshot describes the connected clients.
func (m *Manager) Snapshot() []ClientInfo {
	m.clientsMu.RLock()
	out := make([]ClientInfo, 0, len(m.clients))
	for addr, c := range m.clients {
		out = append(out, ClientInfo{
			ID:          c.id,
			Address:     addr.String(),
			ConnectedAt: c.connectedAt,
			Pending:     c.queue.Len() + c.sub.Len(),
		})
	}
	m.clientsMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.Before(out[j].ConnectedAt) })
	return out
}

// Count returns the number of connected clients.
func (m *Manager) Count() int {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	return len(m.clients)
}

// Close shuts the broadcast channel and every client queue. Sessions end
// once they have flushed what was already queued.
func (m *Manager) Close() {
	m.broadcast.Close()

	m.clientsMu.Lock()
	clients := m.clients
	m.clients = make(map[netip.AddrPort]*client)
	m.clientsMu.Unlock()

	for _, c := range clients {
		c.close()
	}
	m.metrics.SetConnections(0)
}

// ParseAddress parses an "ip:port" client address.
func ParseAddress(s string) (netip.AddrPort, error) {
	addr, err := netip.ParseAddrPort(strings.TrimSpace(s))
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w %q: %v", ErrInvalidAddress, s, err)
	}
	return normalize(addr), nil
}

// normalize folds IPv4-mapped IPv6 addresses so dual-stack listeners and
// callers agree on the key.
func normalize(addr netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
}
