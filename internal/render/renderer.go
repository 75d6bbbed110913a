// Package render draws annotated frames onto a fixed-size surface.
package render

import (
	"errors"
	"image"
	"time"

	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"

	"github.com/vedantwpatil/FormFrame/internal/analysis"
	"github.com/vedantwpatil/FormFrame/internal/log"
	"github.com/vedantwpatil/FormFrame/internal/metrics"
)

var errNoFrame = errors.New("no video frame available")

type Options struct {
	CaptionWindow   time.Duration
	MarkerTolerance time.Duration
	MaxCaptionLines int
}

func DefaultOptions() Options {
	return Options{
		CaptionWindow:   4 * time.Second,
		MarkerTolerance: 500 * time.Millisecond,
		MaxCaptionLines: 3,
	}
}

// Input describes the playback instant to draw.
type Input struct {
	Time     float64
	Frame    image.Image
	FrameErr error
	Ended    bool
}

// Renderer composes the video frame and its overlays onto a Surface.
type Renderer struct {
	surface  *Surface
	result   *analysis.Result
	overlays []Overlay
	reps     int
	logger   zerolog.Logger
}

func New(surface *Surface, result *analysis.Result, opts Options) *Renderer {
	if opts.MaxCaptionLines <= 0 {
		opts.MaxCaptionLines = DefaultOptions().MaxCaptionLines
	}
	if opts.CaptionWindow <= 0 {
		opts.CaptionWindow = DefaultOptions().CaptionWindow
	}
	text := newTextPainter(surface.Bounds().Dy())

	r := &Renderer{
		surface: surface,
		result:  result,
		logger:  log.WithComponent("render"),
	}
	r.AddOverlay(&InfoPanel{text: text})
	r.AddOverlay(&Caption{text: text, window: opts.CaptionWindow.Seconds(), maxLines: opts.MaxCaptionLines})
	r.AddOverlay(&RepMarker{text: text, tolerance: opts.MarkerTolerance.Seconds()})
	return r
}

// AddOverlay appends an overlay drawn after the existing ones.
func (r *Renderer) AddOverlay(o Overlay) {
	r.overlays = append(r.overlays, o)
}

// RepsSoFar is the number of key frames passed; it never decreases.
func (r *Renderer) RepsSoFar() int {
	return r.reps
}

// Render draws one annotated frame and reports whether playback continues.
func (r *Renderer) Render(in Input) bool {
	if reps := r.result.RepsAt(in.Time); reps > r.reps {
		r.reps = reps
	}
	st := FrameState{Time: in.Time, RepsSoFar: r.reps, Result: r.result}

	r.surface.Paint(func(dst *image.RGBA) {
		fillRect(dst, dst.Bounds(), colorClear)

		if err := drawFrame(dst, in); err != nil {
			metrics.FrameDrawErrors.Inc()
			r.logger.Warn().Err(err).Float64("t", in.Time).Msg("video frame not drawn, continuing with overlays")
		}
		for _, o := range r.overlays {
			o.Draw(dst, st)
		}
	})
	metrics.FramesRendered.Inc()

	return !in.Ended
}

func drawFrame(dst *image.RGBA, in Input) error {
	if in.FrameErr != nil {
		return in.FrameErr
	}
	if in.Frame == nil || in.Frame.Bounds().Empty() {
		return errNoFrame
	}
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), in.Frame, in.Frame.Bounds(), xdraw.Src, nil)
	return nil
}
