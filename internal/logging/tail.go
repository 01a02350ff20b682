package logging

import (
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single buffered line before truncation.
	MaxLineLength = 4096

	// DefaultTailLines is the number of recent lines kept when no size is given.
	DefaultTailLines = 20
)

// TailBuffer keeps the most recent lines written by a process so they can
// be attached to a failure log record. Safe for concurrent use.
type TailBuffer struct {
	buffer []string
	bufIdx int
	count  int
	mu     sync.Mutex
}

// NewTailBuffer creates a circular buffer holding up to size lines.
func NewTailBuffer(size int) *TailBuffer {
	if size <= 0 {
		size = DefaultTailLines
	}
	return &TailBuffer{
		buffer: make([]string, size),
	}
}

// Add stores a line, truncating it if too long.
func (t *TailBuffer) Add(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	t.mu.Lock()
	t.buffer[t.bufIdx] = line
	t.bufIdx = (t.bufIdx + 1) % len(t.buffer)
	if t.count < len(t.buffer) {
		t.count++
	}
	t.mu.Unlock()
}

// Lines returns up to n of the most recent lines, oldest first.
// n <= 0 returns everything buffered.
func (t *TailBuffer) Lines(n int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n <= 0 || n > t.count {
		n = t.count
	}

	size := len(t.buffer)
	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (t.bufIdx - n + i + size) % size
		lines = append(lines, t.buffer[idx])
	}
	return lines
}

// Len returns the number of buffered lines.
func (t *TailBuffer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}
