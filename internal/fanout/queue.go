package fanout

// Queue is an unbounded FIFO with a single consumer. Push never blocks.
type Queue[T any] struct {
	gate
	items []T
}

// NewQueue creates an empty open queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{gate: newGate()}
}

// Push appends v. It fails with ErrClosed once the queue is closed.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.items = append(q.items, v)
	q.notifyLocked()
	return nil
}

// Ready fires when a value may be available. It is closed once the queue is
// closed.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Pop removes the oldest value. ok is false when the queue is empty; closed
// reports that no further values will ever arrive.
func (q *Queue[T]) Pop() (v T, ok bool, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return v, false, q.closed
	}
	var zero T
	v = q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return v, true, q.closed && len(q.items) == 0
}

// Len returns the number of queued values.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops further pushes. Queued values remain poppable.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closeLocked()
	q.mu.Unlock()
}
