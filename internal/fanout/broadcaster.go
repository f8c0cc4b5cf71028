package fanout

import (
	"context"
	"sync"
)

// DefaultCapacity is the per-subscriber buffer depth used when a Broadcaster
// is created with a non-positive capacity.
const DefaultCapacity = 100

// Broadcaster delivers every published value to every current subscriber.
//
// Each subscriber owns a ring of Capacity values. Publishing never blocks: when
// a subscriber's ring is full its oldest unread value is discarded and counted
// as skipped. Delivery is therefore at-most-once per subscriber, and a stalled
// subscriber cannot slow down the publisher or its peers.
type Broadcaster[T any] struct {
	capacity int

	mu     sync.RWMutex
	subs   map[uint64]*Subscription[T]
	nextID uint64
	closed bool
}

// NewBroadcaster creates a Broadcaster whose subscribers buffer up to capacity
// values each.
func NewBroadcaster[T any](capacity int) *Broadcaster[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Broadcaster[T]{
		capacity: capacity,
		subs:     make(map[uint64]*Subscription[T]),
	}
}

// Capacity returns the per-subscriber buffer depth.
func (b *Broadcaster[T]) Capacity() int {
	return b.capacity
}

// Subscribe registers a new subscriber. It only observes values published
// after this call returns.
func (b *Broadcaster[T]) Subscribe() (*Subscription[T], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	s := &Subscription[T]{
		b:    b,
		id:   b.nextID,
		gate: newGate(),
		buf:  make([]T, b.capacity),
	}
	b.nextID++
	b.subs[s.id] = s
	return s, nil
}

// Publish hands v to every subscriber and returns how many received it.
// A zero count with a nil error means nobody was subscribed.
func (b *Broadcaster[T]) Publish(v T) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, ErrClosed
	}

	n := 0
	for _, s := range b.subs {
		if s.push(v) {
			n++
		}
	}
	return n, nil
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription. Subscribers may still drain what they
// already buffered. Further Publish and Subscribe calls return ErrClosed.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		s.mu.Lock()
		s.closeLocked()
		s.mu.Unlock()
	}
}

func (b *Broadcaster[T]) remove(id uint64) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

// Subscription is one subscriber's view of a Broadcaster.
type Subscription[T any] struct {
	b  *Broadcaster[T]
	id uint64

	gate
	buf     []T
	head    int
	n       int
	skipped uint64
}

func (s *Subscription[T]) push(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if s.n == len(s.buf) {
		var zero T
		s.buf[s.head] = zero
		s.head = (s.head + 1) % len(s.buf)
		s.n--
		s.skipped++
	}
	s.buf[(s.head+s.n)%len(s.buf)] = v
	s.n++
	s.notifyLocked()
	return true
}

// Ready fires when a value may be available. It is closed once the
// subscription is closed.
func (s *Subscription[T]) Ready() <-chan struct{} {
	return s.ready
}

// Pop removes the oldest buffered value. ok is false when nothing is
// buffered; closed reports that no further values will ever arrive.
func (s *Subscription[T]) Pop() (v T, ok bool, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.n == 0 {
		return v, false, s.closed
	}
	var zero T
	v = s.buf[s.head]
	s.buf[s.head] = zero
	s.head = (s.head + 1) % len(s.buf)
	s.n--
	return v, true, s.closed && s.n == 0
}

// Recv blocks until a value is available, the subscription is closed and
// drained (ErrClosed), or ctx is done.
func (s *Subscription[T]) Recv(ctx context.Context) (T, error) {
	for {
		v, ok, closed := s.Pop()
		if ok {
			return v, nil
		}
		if closed {
			return v, ErrClosed
		}
		select {
		case <-ctx.Done():
			return v, ctx.Err()
		case <-s.ready:
		}
	}
}

// Len returns the number of buffered values.
func (s *Subscription[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Skipped returns how many values were discarded because this subscriber
// fell behind.
func (s *Subscription[T]) Skipped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

// Close unsubscribes. Values still buffered remain poppable.
func (s *Subscription[T]) Close() {
	s.b.remove(s.id)
	s.mu.Lock()
	s.closeLocked()
	s.mu.Unlock()
}
