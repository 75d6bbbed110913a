package annotate

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vedantwpatil/FormFrame/internal/history"
	"github.com/vedantwpatil/FormFrame/internal/recording"
	"github.com/vedantwpatil/FormFrame/internal/video"
)

var errDecode = errors.New("corrupt packet")

// fakeLoader serves a synthetic solid-colour clip.
type fakeLoader struct {
	meta    video.Metadata
	openErr error
	block   bool
	// failEvery makes every nth frame a decode error.
	failEvery int

	mu      sync.Mutex
	sources []*fakeSource
}

func (l *fakeLoader) Open(ctx context.Context, _ string) (video.Source, error) {
	if l.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if l.openErr != nil {
		return nil, l.openErr
	}
	img := image.NewRGBA(image.Rect(0, 0, max(l.meta.Width, 1), max(l.meta.Height, 1)))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{R: 40, G: 120, B: 200, A: 255}}, image.Point{}, draw.Src)

	fps := l.meta.FPS
	if fps <= 0 {
		fps = video.DefaultFPS
	}
	src := &fakeSource{meta: l.meta, img: img, frames: int(l.meta.Duration * fps), fps: fps, failEvery: l.failEvery}
	l.mu.Lock()
	l.sources = append(l.sources, src)
	l.mu.Unlock()
	return src, nil
}

func (l *fakeLoader) source() *fakeSource {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.sources) == 0 {
		return nil
	}
	return l.sources[len(l.sources)-1]
}

type fakeSource struct {
	meta      video.Metadata
	img       *image.RGBA
	frames    int
	fps       float64
	failEvery int
	index     int
	closed    atomic.Bool
}

func (s *fakeSource) Metadata() video.Metadata { return s.meta }

func (s *fakeSource) Next() (video.Frame, error) {
	if s.index >= s.frames {
		return video.Frame{}, io.EOF
	}
	i := s.index
	s.index++
	if s.failEvery > 0 && i%s.failEvery == s.failEvery-1 {
		return video.Frame{}, errDecode
	}
	return video.Frame{Image: s.img, Time: float64(i) / s.fps}, nil
}

func (s *fakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

// chunkEncoder emits header at start and a small chunk per captured frame.
type chunkEncoder struct {
	header     []byte
	perFrame   bool
	ignoreStop bool
	failWith   error
}

func (e *chunkEncoder) IsTypeSupported(mime string) bool {
	return mime == "video/webm;codecs=vp9"
}

func (e *chunkEncoder) Start(_ context.Context, track *recording.VideoTrack, _ recording.EncodeOptions, onChunk recording.ChunkFunc) (recording.Encoding, error) {
	enc := &chunkEncoding{
		stop: make(chan struct{}),
		kill: make(chan struct{}),
		done: make(chan struct{}),
	}
	go func() {
		defer close(enc.done)
		if len(e.header) > 0 {
			onChunk(e.header)
		}
		frames := track.Frames()
		stop := enc.stop
		if e.ignoreStop {
			stop = nil
		}
		for {
			select {
			case <-enc.kill:
				enc.err = context.Canceled
				return
			case <-stop:
				enc.err = e.failWith
				return
			case f, ok := <-frames:
				if !ok {
					if e.ignoreStop {
						frames = nil
						continue
					}
					enc.err = e.failWith
					return
				}
				if e.perFrame {
					onChunk(f[:4])
				}
			}
		}
	}()
	return enc, nil
}

type chunkEncoding struct {
	stop     chan struct{}
	stopOnce sync.Once
	kill     chan struct{}
	killOnce sync.Once
	done     chan struct{}
	err      error
}

func (c *chunkEncoding) Stop()                 { c.stopOnce.Do(func() { close(c.stop) }) }
func (c *chunkEncoding) Kill()                 { c.killOnce.Do(func() { close(c.kill) }) }
func (c *chunkEncoding) Done() <-chan struct{} { return c.done }
func (c *chunkEncoding) Err() error            { <-c.done; return c.err }

// noTrackRecorder fails every start the way a surface without a video track does.
type noTrackRecorder struct {
	urlCalls atomic.Int32
	resets   atomic.Int32
}

func (r *noTrackRecorder) StartRecording(context.Context, recording.FrameSurface) error {
	return recording.ErrNoVideoTrack
}

func (r *noTrackRecorder) StopRecording() {}

func (r *noTrackRecorder) RecordedURL() (string, bool) {
	r.urlCalls.Add(1)
	return "", false
}

func (r *noTrackRecorder) Await(context.Context) (recording.Blob, error) {
	return recording.Blob{}, recording.ErrNotRecording
}

func (r *noTrackRecorder) Reset()  { r.resets.Add(1) }
func (r *noTrackRecorder) Cancel() {}

type speechLog struct {
	mu      sync.Mutex
	phrases []string
	pulses  int
}

func (s *speechLog) Say(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phrases = append(s.phrases, text)
	return nil
}

func (s *speechLog) Vibrate(context.Context, time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pulses++
	return nil
}

func (s *speechLog) said() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.phrases...)
}

type memLedger struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (l *memLedger) Record(_ context.Context, e history.Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}
