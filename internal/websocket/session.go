package websocket

import (
	"net/netip"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Session is one registered client's connection lifetime.
type Session struct {
	manager *Manager
	client  *client
	logger  *zap.Logger

	endOnce sync.Once
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.client.id
}

// Address returns the client address the session is registered under.
func (s *Session) Address() netip.AddrPort {
	return s.client.addr
}

// Serve runs the read and write pumps until either finishes, then releases
// the registration and waits for the other pump to wind down on its own.
func (s *Session) Serve(conn *websocket.Conn, sink InboundFunc) {
	done := make(chan struct{}, 2)

	go func() {
		defer func() { done <- struct{}{} }()
		s.readPump(conn, sink)
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		s.writePump(conn)
	}()

	<-done
	s.End()
	<-done

	s.logger.Info("WebSocket client disconnected")
}

// End releases the registration. It is safe to call more than once.
func (s *Session) End() {
	s.endOnce.Do(func() {
		s.manager.release(s.client)
	})
}

// readPump forwards text frames to sink until the peer closes or the
// connection fails.
func (s *Session) readPump(conn *websocket.Conn, sink InboundFunc) {
	cfg := s.manager.cfg

	if cfg.ReadLimit > 0 {
		conn.SetReadLimit(cfg.ReadLimit)
	}
	if cfg.PongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
		})
	}

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				s.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		s.manager.metrics.Inbound()
		if sink != nil {
			sink(s.client.addr, string(data))
		}
	}
}

// source is the consumer side shared by the broadcast subscription and the
// unicast queue.
type source interface {
	Ready() <-chan struct{}
	Pop() (string, bool, bool)
}

// writePump forwards whichever of the broadcast or unicast sources has a
// message first. Order within each source is preserved. It ends on a write
// failure or once both sources are closed and drained.
func (s *Session) writePump(conn *websocket.Conn) {
	defer conn.Close()

	cfg := s.manager.cfg

	var ping <-chan time.Time
	if period := cfg.pingPeriod(); period > 0 {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		ping = ticker.C
	}

	broadcast := s.client.sub.Ready()
	unicast := s.client.queue.Ready()
	var reportedSkips uint64

	for broadcast != nil || unicast != nil {
		select {
		case <-broadcast:
			open, err := s.flush(conn, s.client.sub)
			s.reportSkipped(&reportedSkips)
			if err != nil {
				s.logger.Debug("WebSocket write failed", zap.Error(err))
				return
			}
			if !open {
				broadcast = nil
			}

		case <-unicast:
			open, err := s.flush(conn, s.client.queue)
			if err != nil {
				s.logger.Debug("WebSocket write failed", zap.Error(err))
				return
			}
			if !open {
				unicast = nil
			}

		case <-ping:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.WriteTimeout)); err != nil {
				s.logger.Debug("WebSocket ping failed", zap.Error(err))
				return
			}
		}
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(cfg.WriteTimeout))
}

// flush writes everything currently buffered in src. open is false once src
// is closed and empty.
func (s *Session) flush(conn *websocket.Conn, src source) (open bool, err error) {
	for {
		msg, ok, closed := src.Pop()
		if !ok {
			return !closed, nil
		}
		if s.manager.cfg.WriteTimeout > 0 {
			_ = conn.SetWriteDeadline(time.Now().Add(s.manager.cfg.WriteTimeout))
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			return false, err
		}
		if closed {
			return false, nil
		}
	}
}

func (s *Session) reportSkipped(reported *uint64) {
	skipped := s.client.sub.Skipped()
	if skipped <= *reported {
		return
	}
	delta := skipped - *reported
	*reported = skipped
	s.manager.metrics.BroadcastSkipped(delta)
	s.logger.Debug("Client fell behind, broadcast messages skipped", zap.Uint64("skipped", delta))
}
