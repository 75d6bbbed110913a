package annotate

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vedantwpatil/FormFrame/internal/analysis"
	"github.com/vedantwpatil/FormFrame/internal/progress"
	"github.com/vedantwpatil/FormFrame/internal/recording"
	"github.com/vedantwpatil/FormFrame/internal/video"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func squatResult() *analysis.Result {
	return &analysis.Result{
		Exercise:    "Back Squat",
		FormScore:   82,
		RepCount:    5,
		Tempo:       "2-0-2",
		Feedback:    []string{"Keep your chest up", "Drive through the heels", "Brace before descending"},
		Suggestions: []string{"Film from the side"},
		KeyFrames:   []float64{2, 6, 10, 14, 18},
	}
}

func clip(duration float64) *fakeLoader {
	return &fakeLoader{meta: video.Metadata{Width: 64, Height: 48, FPS: 30, Duration: duration}}
}

func batchOptions(t *testing.T) Options {
	opts := DefaultOptions()
	opts.VideoPath = "squat.mp4"
	opts.OutputDir = t.TempDir()
	opts.Realtime = false
	return opts
}

func TestRunEndToEnd(t *testing.T) {
	loader := clip(20)
	speech := &speechLog{}
	ledger := &memLedger{}
	urls := recording.NewObjectURLs()

	var (
		mu     sync.Mutex
		states []progress.State
	)
	opts := batchOptions(t)
	run, err := NewRun(squatResult(), opts, Deps{
		Loader:  loader,
		Encoder: &chunkEncoder{header: []byte("\x1a\x45\xdf\xa3"), perFrame: true},
		URLs:    urls,
		Speaker: speech,
		Haptic:  speech,
		Ledger:  ledger,
		OnProgress: func(s progress.State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	out, err := run.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDone, run.State())

	assert.Equal(t, run.ID(), out.RunID)
	assert.Equal(t, "video/webm;codecs=vp9", out.MimeType)
	assert.Greater(t, out.Bytes, 0)
	assert.Equal(t, 5, out.Reps)

	blob, ok := urls.Open(out.URL)
	require.True(t, ok)
	assert.Equal(t, out.Bytes, blob.Size())

	assert.Equal(t, filepath.Join(opts.OutputDir, "back_squat_analyzed.webm"), out.Path)
	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Equal(t, blob.Data, data)

	final := run.Progress()
	assert.Equal(t, 100, final.Percent)
	assert.Equal(t, 0, final.ETASeconds())

	mu.Lock()
	require.NotEmpty(t, states)
	for i, s := range states[:len(states)-1] {
		assert.LessOrEqual(t, s.Percent, progress.RunningCap, "state %d", i)
		assert.LessOrEqual(t, s.Percent, states[i+1].Percent, "percent must not decrease at %d", i)
	}
	assert.Equal(t, 100, states[len(states)-1].Percent)
	mu.Unlock()

	snap := run.Snapshot()
	assert.Equal(t, 5, snap.Reps)
	assert.Empty(t, snap.Error)
	require.NotNil(t, snap.Outcome)

	assert.Equal(t, []string{"Rep 1", "Rep 2", "Rep 3", "Rep 4", "Rep 5"}, speech.said())
	assert.True(t, loader.source().closed.Load())

	require.Len(t, ledger.entries, 1)
	entry := ledger.entries[0]
	assert.Equal(t, "done", entry.State)
	assert.Equal(t, out.Path, entry.OutputPath)
	assert.EqualValues(t, out.Bytes, entry.Bytes)
	assert.Equal(t, 82, entry.FormScore)

	run.Release()
	_, ok = urls.Open(out.URL)
	assert.False(t, ok)
}

func TestRunCaptureFailureFallsBackToStill(t *testing.T) {
	rec := &noTrackRecorder{}
	ledger := &memLedger{}
	opts := batchOptions(t)
	run, err := NewRun(squatResult(), opts, Deps{Loader: clip(20), Recorder: rec, Ledger: ledger})
	require.NoError(t, err)

	_, err = run.Execute(context.Background())
	require.ErrorIs(t, err, ErrCapture)
	require.ErrorIs(t, err, recording.ErrNoVideoTrack)
	assert.Equal(t, StateFailed, run.State())
	assert.Zero(t, rec.urlCalls.Load(), "a failed start must not consult the recorded URL")
	assert.Equal(t, int32(1), rec.resets.Load())

	path, err := run.ExportStill(opts.OutputDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(opts.OutputDir, "back_squat_frame.png"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())

	require.Len(t, ledger.entries, 1)
	assert.Equal(t, "failed", ledger.entries[0].State)
	assert.Contains(t, ledger.entries[0].Error, "no video track")
}

func TestRunMetadataTimeout(t *testing.T) {
	opts := batchOptions(t)
	opts.MetadataTimeout = 20 * time.Millisecond
	run, err := NewRun(squatResult(), opts, Deps{Loader: &fakeLoader{block: true}, Encoder: &chunkEncoder{}})
	require.NoError(t, err)

	_, err = run.Execute(context.Background())
	require.ErrorIs(t, err, ErrSetup)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateFailed, run.State())

	_, err = run.ExportStill(opts.OutputDir)
	assert.ErrorIs(t, err, ErrNoSurface)
}

func TestRunRejectsEmptyDuration(t *testing.T) {
	run, err := NewRun(squatResult(), batchOptions(t), Deps{Loader: clip(0), Encoder: &chunkEncoder{}})
	require.NoError(t, err)

	_, err = run.Execute(context.Background())
	require.ErrorIs(t, err, ErrSetup)
	assert.ErrorIs(t, err, video.ErrInvalidMetadata)
	assert.Equal(t, StateFailed, run.State())
}

func TestRunFallbackSurfaceSize(t *testing.T) {
	loader := &fakeLoader{meta: video.Metadata{FPS: 30, Duration: 1}}
	rec := &noTrackRecorder{}
	opts := batchOptions(t)
	run, err := NewRun(squatResult(), opts, Deps{Loader: loader, Recorder: rec})
	require.NoError(t, err)

	_, err = run.Execute(context.Background())
	require.ErrorIs(t, err, ErrCapture)

	path, err := run.ExportStill(opts.OutputDir)
	require.NoError(t, err)
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 480, cfg.Height)
}

func TestRunCancelDuringRecording(t *testing.T) {
	loader := clip(20)
	urls := recording.NewObjectURLs()
	opts := batchOptions(t)

	var run *Run
	run, err := NewRun(squatResult(), opts, Deps{
		Loader:  loader,
		Encoder: &chunkEncoder{header: []byte("hdr")},
		URLs:    urls,
		OnProgress: func(s progress.State) {
			if s.Percent >= 10 {
				run.Cancel()
			}
		},
	})
	require.NoError(t, err)

	_, err = run.Execute(context.Background())
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StateCancelled, run.State())
	assert.Less(t, run.Progress().Percent, 100)
	assert.True(t, loader.source().closed.Load())
	assert.Zero(t, urls.Len())

	entries, err := os.ReadDir(opts.OutputDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "a cancelled run exports nothing")
}

func TestRunCancelBeforeExecute(t *testing.T) {
	run, err := NewRun(squatResult(), batchOptions(t), Deps{Loader: clip(20), Encoder: &chunkEncoder{}})
	require.NoError(t, err)

	run.Cancel()
	_, err = run.Execute(context.Background())
	require.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StateCancelled, run.State())
}

func TestRunAssemblyTimeout(t *testing.T) {
	opts := batchOptions(t)
	opts.FinalizeTimeout = 50 * time.Millisecond
	run, err := NewRun(squatResult(), opts, Deps{
		Loader:  clip(2),
		Encoder: &chunkEncoder{header: []byte("hdr"), ignoreStop: true},
	})
	require.NoError(t, err)

	_, err = run.Execute(context.Background())
	require.ErrorIs(t, err, ErrAssembly)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateFailed, run.State())

	_, err = run.ExportStill(opts.OutputDir)
	assert.NoError(t, err)
}

func TestRunEmptyRecordingIsAssemblyFailure(t *testing.T) {
	opts := batchOptions(t)
	run, err := NewRun(squatResult(), opts, Deps{Loader: clip(2), Encoder: &chunkEncoder{}})
	require.NoError(t, err)

	_, err = run.Execute(context.Background())
	require.ErrorIs(t, err, ErrAssembly)
	assert.ErrorIs(t, err, recording.ErrEmptyRecording)
	assert.Equal(t, StateFailed, run.State())

	_, err = os.Stat(filepath.Join(opts.OutputDir, "back_squat_analyzed.webm"))
	assert.True(t, os.IsNotExist(err), "no partial recording may be exported")
}

func TestRunExportFailureRevokesURL(t *testing.T) {
	urls := recording.NewObjectURLs()
	opts := batchOptions(t)
	blocked := filepath.Join(opts.OutputDir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o600))
	opts.OutputDir = blocked

	run, err := NewRun(squatResult(), opts, Deps{
		Loader:  clip(2),
		Encoder: &chunkEncoder{header: []byte("hdr"), perFrame: true},
		URLs:    urls,
	})
	require.NoError(t, err)

	_, err = run.Execute(context.Background())
	require.ErrorIs(t, err, ErrAssembly)
	assert.Equal(t, StateFailed, run.State())
	assert.Zero(t, urls.Len(), "a failed export must not leave a published blob")
	assert.Nil(t, run.Snapshot().Outcome)
}

func TestRunSurvivesDecodeErrors(t *testing.T) {
	loader := clip(4)
	loader.failEvery = 3
	run, err := NewRun(squatResult(), batchOptions(t), Deps{
		Loader:  loader,
		Encoder: &chunkEncoder{header: []byte("hdr")},
	})
	require.NoError(t, err)

	out, err := run.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Reps)
	assert.Equal(t, StateDone, run.State())
}

func TestExecuteTwice(t *testing.T) {
	run, err := NewRun(squatResult(), batchOptions(t), Deps{Loader: clip(1), Encoder: &chunkEncoder{header: []byte("x")}})
	require.NoError(t, err)

	_, err = run.Execute(context.Background())
	require.NoError(t, err)
	_, err = run.Execute(context.Background())
	assert.ErrorIs(t, err, ErrStarted)
}

func TestNewRunValidation(t *testing.T) {
	_, err := NewRun(nil, batchOptions(t), Deps{Encoder: &chunkEncoder{}})
	assert.ErrorIs(t, err, analysis.ErrInvalid)

	bad := squatResult()
	bad.FormScore = 140
	_, err = NewRun(bad, batchOptions(t), Deps{Encoder: &chunkEncoder{}})
	assert.ErrorIs(t, err, analysis.ErrInvalid)

	opts := batchOptions(t)
	opts.VideoPath = ""
	_, err = NewRun(squatResult(), opts, Deps{Encoder: &chunkEncoder{}})
	assert.Error(t, err)

	_, err = NewRun(squatResult(), batchOptions(t), Deps{})
	assert.Error(t, err)
}

func TestRealtimeRunPacesFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("paced playback")
	}
	opts := batchOptions(t)
	opts.Realtime = true
	loader := &fakeLoader{meta: video.Metadata{Width: 16, Height: 16, FPS: 50, Duration: 0.3}}
	run, err := NewRun(squatResult(), opts, Deps{Loader: loader, Encoder: &chunkEncoder{header: []byte("x")}})
	require.NoError(t, err)

	start := time.Now()
	_, err = run.Execute(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 250*time.Millisecond)
}
