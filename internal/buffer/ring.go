package buffer

// Ring is a fixed-capacity FIFO that overwrites its oldest entry when full.
// It is not safe for concurrent use; callers hold their own lock.
type Ring[T any] struct {
	entries []T
	start   int
	count   int
}

func NewRing[T any](size int) *Ring[T] {
	if size <= 0 {
		size = 1
	}
	return &Ring[T]{
		entries: make([]T, size),
	}
}

// Add appends entry, silently discarding the oldest entry when full.
func (r *Ring[T]) Add(entry T) {
	r.Push(entry)
}

// Push appends entry. When the ring is full the oldest entry is evicted and
// returned with evicted set to true.
func (r *Ring[T]) Push(entry T) (old T, evicted bool) {
	if r == nil || len(r.entries) == 0 {
		return old, false
	}

	if r.count < len(r.entries) {
		index := (r.start + r.count) % len(r.entries)
		r.entries[index] = entry
		r.count++
		return old, false
	}

	old = r.entries[r.start]
	r.entries[r.start] = entry
	r.start = (r.start + 1) % len(r.entries)
	return old, true
}

// Shift removes and returns the oldest entry.
func (r *Ring[T]) Shift() (T, bool) {
	var zero T
	if r == nil || r.count == 0 {
		return zero, false
	}
	entry := r.entries[r.start]
	r.entries[r.start] = zero
	r.start = (r.start + 1) % len(r.entries)
	r.count--
	return entry, true
}

func (r *Ring[T]) Len() int {
	if r == nil {
		return 0
	}
	return r.count
}

func (r *Ring[T]) Cap() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

func (r *Ring[T]) Full() bool {
	return r != nil && r.count == len(r.entries)
}

func (r *Ring[T]) List() []T {
	if r == nil || r.count == 0 {
		return nil
	}

	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		index := (r.start + i) % len(r.entries)
		out[i] = r.entries[index]
	}
	return out
}

// Reset empties the ring and returns the entries it held, oldest first.
func (r *Ring[T]) Reset() []T {
	out := r.List()
	if r == nil {
		return out
	}
	var zero T
	for i := range r.entries {
		r.entries[i] = zero
	}
	r.start = 0
	r.count = 0
	return out
}
