package process

import "sync"

// DefaultLogCapacity is the number of output lines retained per miner.
const DefaultLogCapacity = 1000

// LogBuffer is a fixed-capacity FIFO of output lines. The oldest line is
// evicted once the buffer is full. Safe for one writer and many readers.
type LogBuffer struct {
	mu       sync.RWMutex
	lines    []string
	head     int
	size     int
	total    uint64
	capacity int
}

// NewLogBuffer creates a buffer. capacity <= 0 uses DefaultLogCapacity.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &LogBuffer{lines: make([]string, capacity), capacity: capacity}
}

// Append adds a line, evicting the oldest when full.
func (b *LogBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := (b.head + b.size) % b.capacity
	b.lines[idx] = line
	if b.size < b.capacity {
		b.size++
	} else {
		b.head = (b.head + 1) % b.capacity
	}
	b.total++
}

// Snapshot returns a copy of all retained lines, oldest first.
func (b *LogBuffer) Snapshot() []string {
	return b.Tail(0)
}

// Tail returns a copy of the last n lines, oldest first. n <= 0 returns all.
func (b *LogBuffer) Tail(n int) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 || n > b.size {
		n = b.size
	}
	out := make([]string, n)
	start := b.head + b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.lines[(start+i)%b.capacity]
	}
	return out
}

// Len returns the number of retained lines.
func (b *LogBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Total returns the number of lines ever appended.
func (b *LogBuffer) Total() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}

// Capacity returns the maximum number of retained lines.
func (b *LogBuffer) Capacity() int {
	return b.capacity
}
