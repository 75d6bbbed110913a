package recording

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"
)

// FrameSurface is the drawable the capture stream samples.
type FrameSurface interface {
	Bounds() image.Rectangle
	CopyPixels(dst []byte) int
}

// MediaStream groups the tracks captured from one surface.
type MediaStream struct {
	tracks []*VideoTrack
}

// CaptureStream samples surface at fps frames per second. A surface with
// empty bounds produces a stream without video tracks.
func CaptureStream(surface FrameSurface, fps int) (*MediaStream, error) {
	if fps <= 0 {
		return nil, errors.New("capture fps must be positive")
	}
	stream := &MediaStream{}
	b := surface.Bounds()
	if b.Empty() {
		return stream, nil
	}
	stream.tracks = append(stream.tracks, newVideoTrack(surface, b.Dx(), b.Dy(), fps))
	return stream, nil
}

func (s *MediaStream) VideoTracks() []*VideoTrack {
	return s.tracks
}

// Stop halts every track and releases the surface.
func (s *MediaStream) Stop() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

// VideoTrack delivers RGBA copies of the surface on a fixed cadence.
type VideoTrack struct {
	Width  int
	Height int
	FPS    int

	frames   chan []byte
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	dropped  atomic.Int64
}

func newVideoTrack(surface FrameSurface, w, h, fps int) *VideoTrack {
	t := &VideoTrack{
		Width:  w,
		Height: h,
		FPS:    fps,
		frames: make(chan []byte, 4),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go t.run(surface)
	return t
}

func (t *VideoTrack) run(surface FrameSurface) {
	defer close(t.done)
	defer close(t.frames)

	ticker := time.NewTicker(time.Second / time.Duration(t.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			buf := make([]byte, t.FrameSize())
			surface.CopyPixels(buf)
			// A slow consumer loses frames instead of stalling the surface.
			select {
			case t.frames <- buf:
			default:
				t.dropped.Add(1)
			}
		}
	}
}

// Frames is closed once the track stops.
func (t *VideoTrack) Frames() <-chan []byte {
	return t.frames
}

// FrameSize is the byte length of one RGBA frame.
func (t *VideoTrack) FrameSize() int {
	return t.Width * t.Height * 4
}

// Dropped counts frames discarded because the consumer lagged.
func (t *VideoTrack) Dropped() int64 {
	return t.dropped.Load()
}

// Stop ends capture and waits for the sampling goroutine to exit.
func (t *VideoTrack) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	<-t.done
}
