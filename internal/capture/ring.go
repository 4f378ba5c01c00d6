package capture

// ring is a fixed-capacity FIFO that overwrites its oldest entry when full.
type ring[T any] struct {
	items    []T
	capacity int
	head     int // next write position
	size     int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{items: make([]T, capacity), capacity: capacity}
}

// push appends v and reports whether the oldest entry was evicted.
func (r *ring[T]) push(v T) bool {
	evicted := r.size == r.capacity
	r.items[r.head] = v
	r.head = (r.head + 1) % r.capacity
	if !evicted {
		r.size++
	}
	return evicted
}

func (r *ring[T]) len() int {
	return r.size
}

// all returns the entries from oldest to newest.
func (r *ring[T]) all() []T {
	if r.size == 0 {
		return nil
	}
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.head-r.size+i+r.capacity)%r.capacity]
	}
	return out
}

// truncate drops the oldest entries until n remain.
func (r *ring[T]) truncate(n int) {
	if n >= r.size {
		return
	}
	var zero T
	for i := 0; i < r.size-n; i++ {
		r.items[(r.head-r.size+i+r.capacity)%r.capacity] = zero
	}
	r.size = n
}

func (r *ring[T]) clear() {
	clear(r.items)
	r.head = 0
	r.size = 0
}
