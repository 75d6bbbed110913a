package annotate

import (
	"context"
	"time"

	"github.com/vedantwpatil/FormFrame/internal/video"
)

// FrameScheduler paces the render loop, one Wait per frame.
type FrameScheduler interface {
	Wait(ctx context.Context) error
	Stop()
}

// Ticker paces frames at fps, which keeps playback at native speed.
func Ticker(fps float64) FrameScheduler {
	if fps <= 0 {
		fps = video.DefaultFPS
	}
	return &tickerScheduler{t: time.NewTicker(time.Duration(float64(time.Second) / fps))}
}

type tickerScheduler struct {
	t *time.Ticker
}

func (s *tickerScheduler) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.t.C:
		return nil
	}
}

func (s *tickerScheduler) Stop() { s.t.Stop() }

// Unpaced renders as fast as frames decode.
func Unpaced() FrameScheduler { return unpaced{} }

type unpaced struct{}

func (unpaced) Wait(ctx context.Context) error { return ctx.Err() }
func (unpaced) Stop()                          {}
