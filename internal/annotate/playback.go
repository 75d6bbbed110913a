package annotate

import (
	"errors"
	"image"
	"io"

	"github.com/vedantwpatil/FormFrame/internal/render"
	"github.com/vedantwpatil/FormFrame/internal/video"
)

// playback turns decoded frames into render inputs and tracks the clock.
type playback struct {
	src  video.Source
	meta video.Metadata
	t    float64
	last image.Image
}

func newPlayback(src video.Source, meta video.Metadata) *playback {
	if meta.FPS <= 0 {
		meta.FPS = video.DefaultFPS
	}
	return &playback{src: src, meta: meta}
}

// next reads one frame. A decode error still advances the clock by one
// frame so the overlays keep drawing and playback reaches its end.
func (p *playback) next() render.Input {
	frame, err := p.src.Next()
	switch {
	case err == nil:
		p.t = frame.Time
		p.last = frame.Image
		return render.Input{Time: frame.Time, Frame: frame.Image}
	case errors.Is(err, io.EOF):
		return render.Input{Time: p.meta.Duration, Frame: p.last, Ended: true}
	default:
		p.t += 1 / p.meta.FPS
		if p.t >= p.meta.Duration {
			return render.Input{Time: p.meta.Duration, FrameErr: err, Ended: true}
		}
		return render.Input{Time: p.t, FrameErr: err}
	}
}
