// Package video decodes source videos into RGBA frames.
package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	vidio "github.com/AlexEidt/Vidio"
	"github.com/rs/zerolog"

	"github.com/vedantwpatil/FormFrame/internal/log"
)

// DefaultFPS is assumed when the container does not report a frame rate.
const DefaultFPS = 30.0

// ErrInvalidMetadata is returned for sources without a usable duration.
var ErrInvalidMetadata = errors.New("invalid video metadata")

type Metadata struct {
	Width    int
	Height   int
	FPS      float64
	Duration float64
	Codec    string
}

// Frame is one decoded picture and its presentation time in seconds.
type Frame struct {
	Image *image.RGBA
	Time  float64
}

// Source yields frames in presentation order. Next returns io.EOF after the last frame.
type Source interface {
	Metadata() Metadata
	Next() (Frame, error)
	Close() error
}

// Loader opens sources; Open must honour ctx for the metadata phase.
type Loader interface {
	Open(ctx context.Context, path string) (Source, error)
}

// VidioLoader opens files through ffprobe/ffmpeg via Vidio.
type VidioLoader struct{}

func (VidioLoader) Open(ctx context.Context, path string) (Source, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("input file does not exist: %s: %w", path, err)
	}

	type opened struct {
		video *vidio.Video
		err   error
	}
	ch := make(chan opened, 1)
	go func() {
		v, err := vidio.NewVideo(path)
		ch <- opened{video: v, err: err}
	}()

	select {
	case <-ctx.Done():
		// release the decoder once ffprobe returns
		go func() {
			if o := <-ch; o.video != nil {
				o.video.Close()
			}
		}()
		return nil, fmt.Errorf("load metadata for %s: %w", path, ctx.Err())
	case o := <-ch:
		if o.err != nil {
			return nil, fmt.Errorf("open video %s: %w", path, o.err)
		}
		return newVidioSource(o.video)
	}
}

type vidioSource struct {
	video  *vidio.Video
	frame  *image.RGBA
	meta   Metadata
	index  int
	logger zerolog.Logger
}

func newVidioSource(v *vidio.Video) (*vidioSource, error) {
	meta := Metadata{
		Width:    v.Width(),
		Height:   v.Height(),
		FPS:      v.FPS(),
		Duration: v.Duration(),
		Codec:    v.Codec(),
	}
	if err := meta.Validate(); err != nil {
		v.Close()
		return nil, err
	}
	if meta.FPS <= 0 {
		meta.FPS = DefaultFPS
	}

	frame := image.NewRGBA(image.Rect(0, 0, meta.Width, meta.Height))
	if err := v.SetFrameBuffer(frame.Pix); err != nil {
		v.Close()
		return nil, fmt.Errorf("attach frame buffer: %w", err)
	}

	logger := log.WithComponent("video")
	logOpened(logger, meta)

	return &vidioSource{video: v, frame: frame, meta: meta, logger: logger}, nil
}

func logOpened(logger zerolog.Logger, meta Metadata) {
	logger.Debug().
		Int(log.FieldWidth, meta.Width).
		Int(log.FieldHeight, meta.Height).
		Float64(log.FieldFPS, meta.FPS).
		Float64(log.FieldDuration, meta.Duration).
		Str("codec", meta.Codec).
		Msg("source opened")
}

func (s *vidioSource) Metadata() Metadata { return s.meta }

func (s *vidioSource) Next() (Frame, error) {
	if !s.video.Read() {
		return Frame{}, io.EOF
	}
	ts := float64(s.index) / s.meta.FPS
	s.index++
	return Frame{Image: s.frame, Time: ts}, nil
}

func (s *vidioSource) Close() error {
	s.logger.Debug().Int("frames", s.index).Msg("source closed")
	s.video.Close()
	return nil
}

// Validate rejects metadata that cannot drive playback.
func (m Metadata) Validate() error {
	if m.Duration <= 0 {
		return fmt.Errorf("%w: duration %.3fs", ErrInvalidMetadata, m.Duration)
	}
	if m.Width < 0 || m.Height < 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidMetadata, m.Width, m.Height)
	}
	return nil
}
