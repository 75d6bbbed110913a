package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Bar renders progress states as a single rewriting terminal line.
type Bar struct {
	mu          sync.Mutex
	out         io.Writer
	description string
	width       int
	lastUpdate  time.Time
	lastPercent int
	now         func() time.Time
}

func NewBar(out io.Writer, description string) *Bar {
	return &Bar{
		out:         out,
		description: description,
		width:       30,
		lastPercent: -1,
		now:         time.Now,
	}
}

// Report draws s, skipping redraws closer than 100ms apart unless the percentage changed.
func (b *Bar) Report(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if s.Percent == b.lastPercent && now.Sub(b.lastUpdate) < 100*time.Millisecond {
		return
	}
	b.lastUpdate = now
	b.lastPercent = s.Percent

	pct := s.Percent
	if pct > 100 {
		pct = 100
	}
	completed := b.width * pct / 100
	bar := strings.Repeat("=", completed) + strings.Repeat("-", b.width-completed)

	eta := "--"
	if s.ETA != nil {
		eta = (time.Duration(*s.ETA) * time.Second).String()
	}

	fmt.Fprintf(b.out, "\r%s [%s] %3d%% ETA: %s", b.description, bar, s.Percent, eta)
}

// Complete draws the final state and ends the line.
func (b *Bar) Complete(s State) {
	b.Report(s)
	fmt.Fprintln(b.out)
}
