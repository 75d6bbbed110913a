// Package analysis holds the form-analysis payload that drives annotation
// and the pure timing rules derived from it.
package analysis

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// ErrInvalid marks a payload that fails validation.
var ErrInvalid = errors.New("invalid analysis result")

// CaptionWindow is the length of one feedback caption slot in seconds.
const CaptionWindow = 4.0

// MarkerTolerance is the half-width in seconds of the window around a key
// frame during which its rep badge is shown.
const MarkerTolerance = 0.5

// Result is the read-only evaluation of one video produced upstream.
type Result struct {
	Exercise    string    `json:"exercise" yaml:"exercise"`
	FormScore   int       `json:"form_score" yaml:"form_score"`
	RepCount    int       `json:"rep_count" yaml:"rep_count"`
	Tempo       string    `json:"tempo" yaml:"tempo"`
	Feedback    []string  `json:"feedback" yaml:"feedback"`
	Suggestions []string  `json:"suggestions" yaml:"suggestions"`
	KeyFrames   []float64 `json:"key_frames" yaml:"key_frames"`
}

// Validate checks the invariants the renderer relies on.
func (r *Result) Validate() error {
	if strings.TrimSpace(r.Exercise) == "" {
		return fmt.Errorf("%w: exercise label is empty", ErrInvalid)
	}
	if r.FormScore < 0 || r.FormScore > 100 {
		return fmt.Errorf("%w: form score %d outside 0..100", ErrInvalid, r.FormScore)
	}
	if r.RepCount < 0 {
		return fmt.Errorf("%w: negative rep count %d", ErrInvalid, r.RepCount)
	}
	for i, kf := range r.KeyFrames {
		if kf < 0 || math.IsNaN(kf) || math.IsInf(kf, 0) {
			return fmt.Errorf("%w: key frame %d has invalid timestamp %v", ErrInvalid, i, kf)
		}
		if i > 0 && kf < r.KeyFrames[i-1] {
			return fmt.Errorf("%w: key frames not ascending at index %d", ErrInvalid, i)
		}
	}
	return nil
}

// RepsAt counts key frames at or before t.
func (r *Result) RepsAt(t float64) int {
	return sort.Search(len(r.KeyFrames), func(i int) bool {
		return r.KeyFrames[i] > t
	})
}

// ActiveRep returns the 1-based number of the first key frame within tol
// seconds of t, or 0 when none is close enough.
func (r *Result) ActiveRep(t, tol float64) int {
	for i, kf := range r.KeyFrames {
		if math.Abs(t-kf) <= tol {
			return i + 1
		}
	}
	return 0
}

// Caption returns the feedback line shown at t, or "" when there is none.
func (r *Result) Caption(t float64) string {
	idx := CaptionIndex(t, len(r.Feedback))
	if idx < 0 {
		return ""
	}
	return r.Feedback[idx]
}

// CaptionIndex is floor(t / CaptionWindow) mod n, or -1 for n == 0.
func CaptionIndex(t float64, n int) int {
	return CaptionIndexWindow(t, n, CaptionWindow)
}

// CaptionIndexWindow is CaptionIndex with an explicit window length.
func CaptionIndexWindow(t float64, n int, window float64) int {
	if n <= 0 || window <= 0 {
		return -1
	}
	if t < 0 {
		t = 0
	}
	slot := int(math.Floor(t / window))
	return slot % n
}

// Cadence summarises the spacing between consecutive key frames.
type Cadence struct {
	Intervals    int
	MeanInterval float64
	StdDev       float64
}

// Cadence returns interval statistics; the zero value when fewer than two key frames exist.
func (r *Result) Cadence() Cadence {
	if len(r.KeyFrames) < 2 {
		return Cadence{}
	}
	intervals := make([]float64, 0, len(r.KeyFrames)-1)
	for i := 1; i < len(r.KeyFrames); i++ {
		intervals = append(intervals, r.KeyFrames[i]-r.KeyFrames[i-1])
	}
	mean, std := stat.MeanStdDev(intervals, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return Cadence{
		Intervals:    len(intervals),
		MeanInterval: mean,
		StdDev:       std,
	}
}
