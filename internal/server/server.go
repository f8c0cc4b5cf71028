package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/A-kirami/webgal-craft/internal/metrics"
)

// RouteProvider contributes routes to a router built with NewEngine.
type RouteProvider interface {
	// RegisterRoutes adds the provider's routes to the router.
	RegisterRoutes(router *gin.Engine)

	// Name returns the provider name for logging
	Name() string
}

// State is the lifecycle state of a Supervisor.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

// BindError is returned by Start when neither the requested port nor the
// fallback could be bound.
type BindError struct {
	Address  string
	Primary  error
	Fallback error
}

func (e *BindError) Error() string {
	if e.Fallback == nil {
		return fmt.Sprintf("failed to bind %s: %v", e.Address, e.Primary)
	}
	return fmt.Sprintf("failed to bind %s: %v (fallback: %v)", e.Address, e.Primary, e.Fallback)
}

func (e *BindError) Unwrap() []error {
	if e.Fallback == nil {
		return []error{e.Primary}
	}
	return []error{e.Primary, e.Fallback}
}

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	// Name labels log lines, e.g. "preview" or "control".
	Name string
	// ShutdownTimeout bounds the graceful part of Stop.
	ShutdownTimeout time.Duration
	// Fallback binds an OS-assigned port when the requested one is taken.
	Fallback bool
}

// runtime is one running listener and its serve goroutine.
type runtime struct {
	srv  *http.Server
	addr string
	done chan struct{}
}

// Supervisor owns at most one running HTTP server at a time. Start and Stop
// are serialized; Start always retires the previous listener before binding.
type Supervisor struct {
	cfg     SupervisorConfig
	handler http.Handler
	logger  *zap.Logger
	metrics *metrics.Metrics

	// mu serializes Start and Stop.
	mu sync.Mutex
	rt *runtime

	infoMu  sync.RWMutex
	state   State
	address string
}

// NewSupervisor creates a stopped supervisor serving handler. m may be nil.
func NewSupervisor(cfg SupervisorConfig, handler http.Handler, m *metrics.Metrics, logger *zap.Logger) *Supervisor {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "http"
	}
	return &Supervisor{
		cfg:     cfg,
		handler: handler,
		logger:  logger.Named(cfg.Name + "-server"),
		metrics: m,
	}
}

// Start stops any running server, binds host:port (or an OS-assigned port
// when fallback is enabled and the port is taken) and starts serving. It
// returns the base URL of the bound address.
func (s *Supervisor) Start(ctx context.Context, host string, port int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.stopLocked(ctx); err != nil {
		s.logger.Warn("Previous server did not shut down cleanly", zap.Error(err))
	}

	s.setInfo(StateStarting, "")

	ln, err := s.listen(ctx, host, port)
	if err != nil {
		s.setInfo(StateStopped, "")
		return "", err
	}

	_, boundPort, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		ln.Close()
		s.setInfo(StateStopped, "")
		return "", fmt.Errorf("failed to read bound address: %w", err)
	}
	addr := net.JoinHostPort(host, boundPort)

	rt := &runtime{
		srv: &http.Server{
			Handler:           s.handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ErrorLog:          zap.NewStdLog(s.logger),
		},
		addr: addr,
		done: make(chan struct{}),
	}

	go func() {
		defer close(rt.done)
		if err := rt.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server error", zap.String("address", addr), zap.Error(err))
		}
	}()

	s.rt = rt
	s.setInfo(StateRunning, addr)
	s.metrics.ServerStarted()
	s.logger.Info("Server listening", zap.String("address", addr))

	return "http://" + addr, nil
}

func (s *Supervisor) listen(ctx context.Context, host string, port int) (net.Listener, error) {
	var lc net.ListenConfig
	primary := net.JoinHostPort(host, strconv.Itoa(port))

	ln, err := lc.Listen(ctx, "tcp", primary)
	if err == nil {
		return ln, nil
	}
	if !s.cfg.Fallback || port == 0 {
		return nil, &BindError{Address: primary, Primary: err}
	}

	s.logger.Warn("Requested port unavailable, falling back to an OS-assigned port",
		zap.String("address", primary), zap.Error(err))

	ln, fallbackErr := lc.Listen(ctx, "tcp", net.JoinHostPort(host, "0"))
	if fallbackErr != nil {
		return nil, &BindError{Address: primary, Primary: err, Fallback: fallbackErr}
	}
	return ln, nil
}

// Stop gracefully shuts the server down, forcing it closed if the graceful
// phase exceeds the shutdown timeout. WebSocket sessions already accepted are
// not affected. Stopping a stopped supervisor is a no-op.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked(ctx)
}

func (s *Supervisor) stopLocked(ctx context.Context) error {
	rt := s.rt
	if rt == nil {
		return nil
	}
	s.setInfo(StateStopping, rt.addr)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	err := rt.srv.Shutdown(shutdownCtx)
	if err != nil {
		s.logger.Warn("Graceful shutdown incomplete, closing", zap.Error(err))
		_ = rt.srv.Close()
	}
	<-rt.done

	s.rt = nil
	s.setInfo(StateStopped, "")
	s.logger.Info("Server stopped", zap.String("address", rt.addr))

	if err != nil {
		return fmt.Errorf("shutdown %s: %w", rt.addr, err)
	}
	return nil
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.infoMu.RLock()
	defer s.infoMu.RUnlock()
	return s.state
}

// Address returns the bound host:port, or "" when not running.
func (s *Supervisor) Address() string {
	s.infoMu.RLock()
	defer s.infoMu.RUnlock()
	return s.address
}

func (s *Supervisor) setInfo(state State, address string) {
	s.infoMu.Lock()
	s.state = state
	s.address = address
	s.infoMu.Unlock()
}
