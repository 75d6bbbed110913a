package server

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vedantwpatil/FormFrame/internal/analysis"
	"github.com/vedantwpatil/FormFrame/internal/annotate"
	"github.com/vedantwpatil/FormFrame/internal/log"
)

// ErrShuttingDown is returned by Start once Shutdown has begun.
var ErrShuttingDown = errors.New("server is shutting down")

// maxRetained bounds how many finished runs stay addressable in memory.
const maxRetained = 64

// Runs executes annotation runs in the background and tracks them by id.
type Runs struct {
	base      annotate.Options
	deps      annotate.Deps
	stillDir  string
	fallback  bool
	logger    zerolog.Logger
	ctx       context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup

	mu     sync.Mutex
	closed bool
	runs   map[string]*annotate.Run
	order  []string
}

// NewRuns creates a manager that builds every run from base and deps.
// With fallback set, runs that fail to capture or assemble export a still into base.OutputDir.
func NewRuns(base annotate.Options, deps annotate.Deps, fallback bool) *Runs {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runs{
		base:      base,
		deps:      deps,
		stillDir:  base.OutputDir,
		fallback:  fallback,
		logger:    log.WithComponent("runs"),
		ctx:       ctx,
		cancelAll: cancel,
		runs:      make(map[string]*annotate.Run),
	}
}

// Start launches a run for videoPath and returns without waiting for it.
func (m *Runs) Start(result *analysis.Result, videoPath, label string) (*annotate.Run, error) {
	opts := m.base
	opts.VideoPath = videoPath
	opts.Label = label

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrShuttingDown
	}
	run, err := annotate.NewRun(result, opts, m.deps)
	if err != nil {
		return nil, err
	}
	m.runs[run.ID()] = run
	m.order = append(m.order, run.ID())
	m.evictLocked()

	m.wg.Add(1)
	go m.execute(run)
	return run, nil
}

func (m *Runs) execute(run *annotate.Run) {
	defer m.wg.Done()
	_, err := run.Execute(m.ctx)
	if err == nil || !m.fallback {
		return
	}
	if errors.Is(err, annotate.ErrCapture) || errors.Is(err, annotate.ErrAssembly) {
		if path, err := run.ExportStill(m.stillDir); err != nil {
			m.logger.Warn().Err(err).Str(log.FieldRunID, run.ID()).Msg("still fallback failed")
		} else {
			m.logger.Info().Str(log.FieldRunID, run.ID()).Str(log.FieldPath, path).Msg("still fallback exported")
		}
	}
}

// evictLocked drops the oldest finished runs beyond maxRetained.
func (m *Runs) evictLocked() {
	for len(m.order) > maxRetained {
		evicted := false
		for i, id := range m.order {
			run := m.runs[id]
			if !run.State().Terminal() {
				continue
			}
			run.Release()
			delete(m.runs, id)
			m.order = append(m.order[:i], m.order[i+1:]...)
			evicted = true
			break
		}
		if !evicted {
			return
		}
	}
}

func (m *Runs) Get(id string) (*annotate.Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	return run, ok
}

// Cancel cancels the run with id; false when it is unknown.
func (m *Runs) Cancel(id string) bool {
	run, ok := m.Get(id)
	if ok {
		run.Cancel()
	}
	return ok
}

// Shutdown cancels all runs and waits for them to finish or ctx to end.
func (m *Runs) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancelAll()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
