package annotate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vedantwpatil/FormFrame/internal/device"
	"github.com/vedantwpatil/FormFrame/internal/log"
)

const hapticPulse = 200 * time.Millisecond

// cueQueue announces reps on its own goroutine so slow speech never stalls rendering.
type cueQueue struct {
	speaker device.Speaker
	haptic  device.HapticDevice
	logger  zerolog.Logger

	reps chan int
	done chan struct{}
}

func startCues(ctx context.Context, speaker device.Speaker, haptic device.HapticDevice, logger zerolog.Logger) *cueQueue {
	q := &cueQueue{
		speaker: speaker,
		haptic:  haptic,
		logger:  logger,
		reps:    make(chan int, 16),
		done:    make(chan struct{}),
	}
	go q.run(ctx)
	return q
}

func (q *cueQueue) run(ctx context.Context) {
	defer close(q.done)
	for rep := range q.reps {
		if ctx.Err() != nil {
			continue
		}
		if err := q.speaker.Say(ctx, fmt.Sprintf("Rep %d", rep)); err != nil {
			q.logger.Debug().Err(err).Int(log.FieldRep, rep).Msg("spoken cue failed")
		}
		if err := q.haptic.Vibrate(ctx, hapticPulse); err != nil {
			q.logger.Debug().Err(err).Int(log.FieldRep, rep).Msg("haptic cue failed")
		}
	}
}

// enqueue never blocks; cues beyond the buffer are dropped.
func (q *cueQueue) enqueue(rep int) {
	select {
	case q.reps <- rep:
	default:
		q.logger.Warn().Int(log.FieldRep, rep).Msg("cue queue full, dropping cue")
	}
}

// close drains pending cues and waits for the goroutine to exit.
func (q *cueQueue) close() {
	close(q.reps)
	<-q.done
}
