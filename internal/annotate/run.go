// Package annotate drives one annotation run: load the source, render and
// record every frame, then assemble and publish the recording.
package annotate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vedantwpatil/FormFrame/internal/analysis"
	"github.com/vedantwpatil/FormFrame/internal/config"
	"github.com/vedantwpatil/FormFrame/internal/device"
	"github.com/vedantwpatil/FormFrame/internal/history"
	"github.com/vedantwpatil/FormFrame/internal/log"
	"github.com/vedantwpatil/FormFrame/internal/metrics"
	"github.com/vedantwpatil/FormFrame/internal/progress"
	"github.com/vedantwpatil/FormFrame/internal/recording"
	"github.com/vedantwpatil/FormFrame/internal/render"
	"github.com/vedantwpatil/FormFrame/internal/video"
)

var (
	// ErrSetup covers metadata timeouts, unreadable sources and empty durations.
	ErrSetup = errors.New("setup failed")
	// ErrCapture covers a recorder that could not start.
	ErrCapture = errors.New("capture failed")
	// ErrAssembly covers a recording that stopped without a usable blob.
	ErrAssembly = errors.New("assembly failed")
	// ErrCancelled is returned when Cancel or the caller's context ends the run.
	ErrCancelled = errors.New("run cancelled")
	// ErrStarted is returned when Execute is called twice.
	ErrStarted = errors.New("run already started")
	// ErrNoSurface is returned by ExportStill before a surface exists.
	ErrNoSurface = errors.New("no surface to export")
)

// Ledger records finished runs.
type Ledger interface {
	Record(ctx context.Context, e history.Entry) error
}

type Options struct {
	VideoPath string
	// Label names output files; the exercise label when empty.
	Label           string
	OutputDir       string
	MetadataTimeout time.Duration
	FinalizeTimeout time.Duration
	// Realtime paces rendering at the source frame rate. ETA estimates
	// assume it, since they extrapolate from wall-clock time.
	Realtime       bool
	FallbackWidth  int
	FallbackHeight int
	Render         render.Options
	Recording      recording.Options
}

func DefaultOptions() Options {
	return Options{
		MetadataTimeout: 10 * time.Second,
		FinalizeTimeout: 10 * time.Second,
		Realtime:        true,
		FallbackWidth:   640,
		FallbackHeight:  480,
		Render:          render.DefaultOptions(),
		Recording:       recording.DefaultOptions(),
	}
}

// OptionsFromConfig maps the loaded configuration onto run options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		OutputDir:       cfg.Recording.OutputDir,
		MetadataTimeout: cfg.Pipeline.MetadataTimeout,
		FinalizeTimeout: cfg.Pipeline.FinalizeTimeout,
		Realtime:        cfg.Pipeline.Realtime,
		FallbackWidth:   cfg.Render.FallbackWidth,
		FallbackHeight:  cfg.Render.FallbackHeight,
		Render: render.Options{
			CaptionWindow:   cfg.Render.CaptionWindow,
			MarkerTolerance: cfg.Render.MarkerTolerance,
			MaxCaptionLines: cfg.Render.MaxCaptionLines,
		},
		Recording: recording.Options{
			FPS:       cfg.Recording.FPS,
			Bitrate:   cfg.Recording.Bitrate,
			Timeslice: cfg.Recording.Timeslice,
			MimeTypes: cfg.Recording.MimeTypes,
		},
	}
}

// Deps are the host capabilities a run uses. Only Recorder or Encoder is required.
type Deps struct {
	Loader video.Loader
	// Recorder is built from Encoder and URLs when nil.
	Recorder recording.Recorder
	Encoder  recording.MediaEncoder
	URLs     *recording.ObjectURLs

	Speaker device.Speaker
	Haptic  device.HapticDevice
	Ledger  Ledger

	Scheduler  func(fps float64) FrameScheduler
	Now        func() time.Time
	OnProgress func(progress.State)
}

// Outcome describes a published recording.
type Outcome struct {
	RunID    string `json:"run_id"`
	URL      string `json:"url"`
	Path     string `json:"path,omitempty"`
	MimeType string `json:"mime_type"`
	Bytes    int    `json:"bytes"`
	Reps     int    `json:"reps"`
}

// Snapshot is a point-in-time view of a run.
type Snapshot struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	State   State    `json:"state"`
	Percent int      `json:"percent"`
	ETA     *int     `json:"eta_seconds,omitempty"`
	Reps    int      `json:"reps"`
	Error   string   `json:"error,omitempty"`
	Outcome *Outcome `json:"outcome,omitempty"`
}

// Run owns the source, surface and recorder session of one annotation.
// A Run executes once; start a new Run to retry.
type Run struct {
	id     string
	label  string
	opts   Options
	result *analysis.Result
	deps   Deps
	logger zerolog.Logger
	fsm    *machine

	mu              sync.Mutex
	started         bool
	cancelRequested bool
	cancel          context.CancelFunc
	surface         *render.Surface
	progress        progress.State
	reps            int
	outcome         *Outcome
	err             error
}

func NewRun(result *analysis.Result, opts Options, deps Deps) (*Run, error) {
	if result == nil {
		return nil, fmt.Errorf("%w: missing analysis result", analysis.ErrInvalid)
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	if opts.VideoPath == "" {
		return nil, errors.New("video path is required")
	}

	defaults := DefaultOptions()
	if opts.MetadataTimeout <= 0 {
		opts.MetadataTimeout = defaults.MetadataTimeout
	}
	if opts.FinalizeTimeout <= 0 {
		opts.FinalizeTimeout = defaults.FinalizeTimeout
	}
	if opts.FallbackWidth <= 0 || opts.FallbackHeight <= 0 {
		opts.FallbackWidth, opts.FallbackHeight = defaults.FallbackWidth, defaults.FallbackHeight
	}
	if opts.Label == "" {
		opts.Label = result.Exercise
	}

	if deps.Loader == nil {
		deps.Loader = video.VidioLoader{}
	}
	if deps.Recorder == nil {
		if deps.Encoder == nil {
			return nil, errors.New("a recorder or media encoder is required")
		}
		deps.Recorder = recording.NewStreamRecorder(deps.Encoder, deps.URLs, opts.Recording)
	}
	if deps.Speaker == nil {
		deps.Speaker = device.Nop{}
	}
	if deps.Haptic == nil {
		deps.Haptic = device.Nop{}
	}
	if deps.Scheduler == nil {
		deps.Scheduler = func(float64) FrameScheduler { return Unpaced() }
		if opts.Realtime {
			deps.Scheduler = Ticker
		}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	id := uuid.NewString()
	r := &Run{
		id:     id,
		label:  opts.Label,
		opts:   opts,
		result: result,
		deps:   deps,
		logger: log.WithComponent("annotate").With().Str(log.FieldRunID, id).Logger(),
	}
	r.fsm = newMachine(func(from, to State) {
		r.logger.Info().
			Str(log.FieldOldState, string(from)).
			Str(log.FieldNewState, string(to)).
			Msg("run state changed")
	})
	return r, nil
}

func (r *Run) ID() string    { return r.id }
func (r *Run) Label() string { return r.label }
func (r *Run) State() State  { return r.fsm.State() }

// Progress returns the latest progress estimate.
func (r *Run) Progress() progress.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Snapshot{
		ID:      r.id,
		Label:   r.label,
		State:   r.fsm.State(),
		Percent: r.progress.Percent,
		ETA:     r.progress.ETA,
		Reps:    r.reps,
		Outcome: r.outcome,
	}
	if r.err != nil {
		s.Error = r.err.Error()
	}
	return s
}

// Execute runs the pipeline to a terminal state. Errors wrap ErrSetup,
// ErrCapture or ErrAssembly, or are ErrCancelled.
func (r *Run) Execute(ctx context.Context) (*Outcome, error) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil, ErrStarted
	}
	r.started = true
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	if r.cancelRequested {
		cancel()
	}
	r.mu.Unlock()
	defer cancel()

	startedAt := r.deps.Now()
	out, err := r.execute(ctx)
	r.finish(ctx, startedAt, out, err)
	return out, err
}

// Cancel ends the run: the frame loop stops, the recording session is
// discarded and the source is closed. Cancelling before Execute makes
// Execute end cancelled.
func (r *Run) Cancel() {
	r.mu.Lock()
	r.cancelRequested = true
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Release revokes the published URL once the caller is done with it.
func (r *Run) Release() {
	r.deps.Recorder.Reset()
}

// ExportStill writes the current surface to dir as a PNG. It is the
// fallback when recording fails.
func (r *Run) ExportStill(dir string) (string, error) {
	r.mu.Lock()
	surface := r.surface
	r.mu.Unlock()
	if surface == nil {
		return "", ErrNoSurface
	}

	path := filepath.Join(dir, StillName(r.label))
	if err := video.WriteStill(path, surface.Snapshot()); err != nil {
		return "", fmt.Errorf("export still: %w", err)
	}
	r.logger.Info().Str(log.FieldPath, path).Msg("still frame exported")
	return path, nil
}

func (r *Run) execute(ctx context.Context) (*Outcome, error) {
	r.fire(eventLoad)
	if ctx.Err() != nil {
		return nil, r.abort(ctx, ctx.Err())
	}

	src, err := r.load(ctx)
	if err != nil {
		return nil, r.abort(ctx, err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			r.logger.Debug().Err(err).Msg("close source")
		}
	}()
	meta := src.Metadata()

	w, h := meta.Width, meta.Height
	if w <= 0 || h <= 0 {
		r.logger.Warn().Int(log.FieldWidth, w).Int(log.FieldHeight, h).Msg("source has no dimensions, using fallback surface size")
		w, h = r.opts.FallbackWidth, r.opts.FallbackHeight
	}
	surface := render.NewSurface(w, h)
	r.mu.Lock()
	r.surface = surface
	r.mu.Unlock()

	renderer := render.New(surface, r.result, r.opts.Render)
	pb := newPlayback(src, meta)
	first := pb.next()
	renderer.Render(first)

	if err := r.deps.Recorder.StartRecording(ctx, surface); err != nil {
		r.deps.Recorder.Reset()
		return nil, r.abort(ctx, fmt.Errorf("%w: %w", ErrCapture, err))
	}
	r.fire(eventRecord)

	est := progress.NewEstimator(r.deps.Now)
	if err := r.play(ctx, renderer, pb, est, first); err != nil {
		r.deps.Recorder.Cancel()
		return nil, r.abort(ctx, err)
	}
	return r.finalize(ctx, est, renderer.RepsSoFar())
}

func (r *Run) load(ctx context.Context) (video.Source, error) {
	lctx, cancel := context.WithTimeout(ctx, r.opts.MetadataTimeout)
	defer cancel()

	src, err := r.deps.Loader.Open(lctx, r.opts.VideoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	meta := src.Metadata()
	if err := meta.Validate(); err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	r.logger.Info().
		Str(log.FieldPath, r.opts.VideoPath).
		Int(log.FieldWidth, meta.Width).
		Int(log.FieldHeight, meta.Height).
		Float64(log.FieldFPS, meta.FPS).
		Float64(log.FieldDuration, meta.Duration).
		Msg("source loaded")
	return src, nil
}

// play renders until the source ends. first has already been drawn.
func (r *Run) play(ctx context.Context, renderer *render.Renderer, pb *playback, est *progress.Estimator, first render.Input) error {
	sched := r.deps.Scheduler(pb.meta.FPS)
	defer sched.Stop()
	cues := startCues(ctx, r.deps.Speaker, r.deps.Haptic, r.logger)
	defer cues.close()

	est.Begin()
	announced := 0
	in := first
	for {
		st := est.Update(in.Time, pb.meta.Duration, est.Elapsed())
		reps := renderer.RepsSoFar()
		for announced < reps {
			announced++
			cues.enqueue(announced)
		}
		r.report(st, reps)

		if in.Ended {
			return nil
		}
		if err := sched.Wait(ctx); err != nil {
			return err
		}
		in = pb.next()
		renderer.Render(in)
	}
}

func (r *Run) finalize(ctx context.Context, est *progress.Estimator, reps int) (*Outcome, error) {
	r.deps.Recorder.StopRecording()
	r.fire(eventFinalize)

	actx, cancel := context.WithTimeout(ctx, r.opts.FinalizeTimeout)
	defer cancel()
	blob, err := r.deps.Recorder.Await(actx)
	if err != nil {
		r.deps.Recorder.Reset()
		return nil, r.abort(ctx, fmt.Errorf("%w: %w", ErrAssembly, err))
	}
	url, ok := r.deps.Recorder.RecordedURL()
	if !ok {
		r.deps.Recorder.Reset()
		return nil, r.abort(ctx, fmt.Errorf("%w: no recorded url", ErrAssembly))
	}

	out := &Outcome{
		RunID:    r.id,
		URL:      url,
		MimeType: blob.MimeType,
		Bytes:    blob.Size(),
		Reps:     reps,
	}
	if r.opts.OutputDir != "" {
		path, err := writeRecording(r.logger, r.opts.OutputDir, RecordingName(r.label, blob.MimeType), blob.Data)
		if err != nil {
			r.deps.Recorder.Reset()
			return nil, r.abort(ctx, fmt.Errorf("%w: %w", ErrAssembly, err))
		}
		out.Path = path
	}

	r.report(est.Finalize(), reps)
	r.mu.Lock()
	r.outcome = out
	r.mu.Unlock()
	r.fire(eventComplete)
	return out, nil
}

func (r *Run) report(st progress.State, reps int) {
	r.mu.Lock()
	r.progress = st
	r.reps = reps
	r.mu.Unlock()
	if r.deps.OnProgress != nil {
		r.deps.OnProgress(st)
	}
}

// abort moves the run to cancelled when ctx ended, failed otherwise.
func (r *Run) abort(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		r.fire(eventCancel)
		return ErrCancelled
	}
	r.fire(eventFail)
	return err
}

func (r *Run) fire(ev event) {
	if _, err := r.fsm.fire(ev); err != nil {
		r.logger.Error().Err(err).Msg("lifecycle violation")
	}
}

func (r *Run) finish(ctx context.Context, startedAt time.Time, out *Outcome, err error) {
	state := r.fsm.State()
	finishedAt := r.deps.Now()
	metrics.RunsTotal.WithLabelValues(string(state)).Inc()
	metrics.RunDuration.WithLabelValues(string(state)).Observe(finishedAt.Sub(startedAt).Seconds())

	r.mu.Lock()
	r.err = err
	reps := r.reps
	r.mu.Unlock()

	evt := r.logger.Info()
	if err != nil {
		evt = r.logger.Warn().Err(err)
	}
	evt.Str(log.FieldExercise, r.result.Exercise).Int(log.FieldRep, reps).Msg("run finished")

	if r.deps.Ledger == nil {
		return
	}
	entry := history.Entry{
		ID:         r.id,
		Label:      r.label,
		VideoPath:  r.opts.VideoPath,
		State:      string(state),
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		FormScore:  r.result.FormScore,
		RepCount:   r.result.RepCount,
	}
	if out != nil {
		entry.OutputPath = out.Path
		entry.MimeType = out.MimeType
		entry.Bytes = int64(out.Bytes)
	}
	if err != nil {
		entry.Error = err.Error()
	}
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.deps.Ledger.Record(lctx, entry); err != nil {
		r.logger.Warn().Err(err).Msg("failed to record run history")
	}
}
