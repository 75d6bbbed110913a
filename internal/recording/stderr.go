package recording

import (
	"strings"
	"sync"
)

// stderrTail keeps the last lines an encoder wrote to stderr.
type stderrTail struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func newStderrTail(n int) *stderrTail {
	if n < 1 {
		n = 20
	}
	return &stderrTail{lines: make([]string, n)}
}

func (t *stderrTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		t.lines[t.next] = line
		t.next = (t.next + 1) % len(t.lines)
		if t.next == 0 {
			t.full = true
		}
	}
	return len(p), nil
}

// String joins the retained lines oldest first.
func (t *stderrTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var ordered []string
	if t.full {
		ordered = append(ordered, t.lines[t.next:]...)
	}
	ordered = append(ordered, t.lines[:t.next]...)
	return strings.Join(ordered, " | ")
}
