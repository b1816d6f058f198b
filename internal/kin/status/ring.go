package status

import "sync"

// DefaultRingSize is the number of lines a Ring keeps when created with size <= 0.
const DefaultRingSize = 50

// Ring keeps the most recent status lines in a fixed-size circular buffer.
// The health endpoint serves its contents; tests use it to observe reports.
type Ring struct {
	mu     sync.Mutex
	buffer []string
	head   int
	filled bool
	total  int
}

// NewRing creates a Ring holding up to size lines.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{buffer: make([]string, size)}
}

// Append stores line, overwriting the oldest line once the ring is full.
func (r *Ring) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer[r.head] = line
	r.head = (r.head + 1) % len(r.buffer)
	if r.head == 0 {
		r.filled = true
	}
	r.total++
}

// Lines returns the retained lines, oldest first.
func (r *Ring) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.filled {
		out := make([]string, r.head)
		copy(out, r.buffer[:r.head])
		return out
	}
	out := make([]string, 0, len(r.buffer))
	for i := 0; i < len(r.buffer); i++ {
		out = append(out, r.buffer[(r.head+i)%len(r.buffer)])
	}
	return out
}

// Total returns how many lines were ever appended, including overwritten ones.
func (r *Ring) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

var _ Sink = (*Ring)(nil)
