package fanout

import (
	"errors"
	"sync"
)

// ErrClosed is returned when publishing to, subscribing to, or pushing onto a
// closed source.
var ErrClosed = errors.New("fanout: closed")

// gate is the wake-up signal shared by Subscription and Queue. The ready
// channel holds at most one pending token and is closed when the source is.
type gate struct {
	mu     sync.Mutex
	closed bool
	ready  chan struct{}
}

func newGate() gate {
	return gate{ready: make(chan struct{}, 1)}
}

// notifyLocked must be called with mu held.
func (g *gate) notifyLocked() {
	if g.closed {
		return
	}
	select {
	case g.ready <- struct{}{}:
	default:
	}
}

// closeLocked must be called with mu held. It reports whether this call
// performed the close.
func (g *gate) closeLocked() bool {
	if g.closed {
		return false
	}
	g.closed = true
	close(g.ready)
	return true
}
