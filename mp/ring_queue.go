package mp

// RingQueue is a fixed array of slots addressed by sequence cursors. Slots
// are created once by the factory and reused for every lap of the ring.
type RingQueue[T any] struct {
	buf  []T
	mask int64
}

// NewRingQueue allocates a ring with capacity rounded up to a power of two.
func NewRingQueue[T any](capacity int, factory func() T) *RingQueue[T] {
	size := ceilPow2(capacity)
	q := &RingQueue[T]{
		buf:  make([]T, size),
		mask: int64(size - 1),
	}
	for i := range q.buf {
		q.buf[i] = factory()
	}
	return q
}

func (q *RingQueue[T]) Get(cursor int64) T {
	return q.buf[cursor&q.mask]
}

func (q *RingQueue[T]) Capacity() int {
	return len(q.buf)
}
