// Package progress turns playback position into a user-facing percentage and ETA.
package progress

import (
	"math"
	"time"
)

// RunningCap is the highest percentage reported before Finalize.
const RunningCap = 99

// etaThreshold is the percentage that must be exceeded before an ETA is reported.
const etaThreshold = 1.0

// State is one progress report.
type State struct {
	Percent int
	// ETA is the estimated seconds remaining; nil until enough progress exists.
	ETA *int
}

// ETASeconds returns the ETA or -1 when none is available.
func (s State) ETASeconds() int {
	if s.ETA == nil {
		return -1
	}
	return *s.ETA
}

// Estimator extrapolates remaining time from the observed processing rate.
// It assumes frames are processed at native playback speed or faster, so the
// rate measured against wall-clock time is the rate of the whole job.
type Estimator struct {
	now     func() time.Time
	started time.Time
	state   State
}

// NewEstimator returns an estimator reading the wall clock from now (time.Now when nil).
func NewEstimator(now func() time.Time) *Estimator {
	if now == nil {
		now = time.Now
	}
	return &Estimator{now: now}
}

// Begin marks the start of elapsed-time tracking.
func (e *Estimator) Begin() {
	e.started = e.now()
}

// Elapsed is the wall-clock time since Begin, zero when Begin was not called.
func (e *Estimator) Elapsed() time.Duration {
	if e.started.IsZero() {
		return 0
	}
	return e.now().Sub(e.started)
}

// Update recomputes the state from the playback position.
func (e *Estimator) Update(currentTime, duration float64, elapsed time.Duration) State {
	if duration <= 0 || math.IsNaN(currentTime) {
		return e.state
	}
	if currentTime < 0 {
		currentTime = 0
	}

	pct := math.Min(currentTime/duration*100, RunningCap)
	next := State{Percent: int(math.Floor(pct))}

	secs := elapsed.Seconds()
	if pct > etaThreshold && secs > 0 {
		rate := pct / secs
		remaining := int(math.Round((100 - pct) / rate))
		next.ETA = &remaining
	}

	e.state = next
	return next
}

// Finalize reports completion.
func (e *Estimator) Finalize() State {
	zero := 0
	e.state = State{Percent: 100, ETA: &zero}
	return e.state
}

// State returns the last computed state.
func (e *Estimator) State() State {
	return e.state
}

// Reset zeroes elapsed tracking and clears percentage and ETA.
func (e *Estimator) Reset() {
	e.started = time.Time{}
	e.state = State{}
}
