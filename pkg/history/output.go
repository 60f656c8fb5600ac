package history

import "sync"

// OutputBuffer keeps the last max lines of a run's output.
type OutputBuffer struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func NewOutputBuffer(max int) *OutputBuffer {
	if max <= 0 {
		max = MaxOutputLines
	}
	return &OutputBuffer{max: max}
}

func (b *OutputBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = append([]string{}, b.lines[len(b.lines)-b.max:]...)
	}
}

func (b *OutputBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.lines...)
}

func (b *OutputBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}
