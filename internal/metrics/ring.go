package metrics

import "sync"

// Ring is a fixed-capacity FIFO buffer. Once full, each Push overwrites the
// oldest item in place.
type Ring[T any] struct {
	mutex sync.Mutex
	items []T
	head  int // index of the oldest item
	size  int
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

func (r *Ring[T]) Push(item T) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.size < len(r.items) {
		r.items[(r.head+r.size)%len(r.items)] = item
		r.size++
		return
	}

	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
}

// Items returns a copy of the buffered items, oldest first. It never returns nil.
func (r *Ring[T]) Items() []T {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.head+i)%len(r.items)]
	}
	return out
}

func (r *Ring[T]) Len() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.size
}

func (r *Ring[T]) Cap() int {
	return len(r.items)
}
