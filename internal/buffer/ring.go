package buffer

// Ring is a fixed-capacity ring buffer that keeps the most recent entries.
type Ring[T any] struct {
	entries []T
	next    int
	count   int
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		entries: make([]T, capacity),
	}
}

func (ring *Ring[T]) Add(entry T) {
	if ring == nil || len(ring.entries) == 0 {
		return
	}

	ring.entries[ring.next] = entry
	ring.next = (ring.next + 1) % len(ring.entries)
	if ring.count < len(ring.entries) {
		ring.count++
	}
}

func (ring *Ring[T]) Len() int {
	if ring == nil {
		return 0
	}
	return ring.count
}

func (ring *Ring[T]) Cap() int {
	if ring == nil {
		return 0
	}
	return len(ring.entries)
}

// List returns the stored entries, oldest first.
func (ring *Ring[T]) List() []T {
	return ring.Last(0)
}

// Last returns up to count of the most recent entries, oldest first.
// A count of zero or less returns everything.
func (ring *Ring[T]) Last(count int) []T {
	if ring == nil || ring.count == 0 {
		return nil
	}
	if count <= 0 || count > ring.count {
		count = ring.count
	}

	start := (ring.next - count + len(ring.entries)) % len(ring.entries)
	out := make([]T, count)
	for i := range out {
		out[i] = ring.entries[(start+i)%len(ring.entries)]
	}
	return out
}
