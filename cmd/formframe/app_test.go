package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vedantwpatil/FormFrame/internal/history"
	"github.com/vedantwpatil/FormFrame/internal/log"
)

func newTestApp(t *testing.T) (*Application, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := NewApplication(&stdout, &stderr)
	t.Cleanup(app.cancel)
	return app, &stdout, &stderr
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "formframe.yaml")
	body := "log:\n  level: error\nhistory:\n  path: " + filepath.Join(dir, "runs.db") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunWithoutCommandPrintsHelp(t *testing.T) {
	app, stdout, _ := newTestApp(t)

	require.NoError(t, app.Run(nil))
	assert.Contains(t, stdout.String(), "annotate")
	assert.Contains(t, stdout.String(), "history")
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	app, _, _ := newTestApp(t)

	err := app.Run([]string{"transcode"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
	assert.Contains(t, err.Error(), "transcode")
}

func TestAnnotateRequiresVideoAndAnalysis(t *testing.T) {
	dir := t.TempDir()
	app, _, _ := newTestApp(t)

	err := app.Run([]string{"annotate", "--config", writeConfig(t, dir), "--video", "squat.mp4"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analysis")
}

func TestAnnotateRejectsMissingAnalysis(t *testing.T) {
	dir := t.TempDir()
	app, _, _ := newTestApp(t)

	err := app.Run([]string{
		"annotate",
		"--config", writeConfig(t, dir),
		"--video", filepath.Join(dir, "squat.mp4"),
		"--analysis", filepath.Join(dir, "missing.json"),
	})
	assert.Error(t, err)
}

func TestSetupAppliesConfiguredLogging(t *testing.T) {
	dir := t.TempDir()
	app, _, stderr := newTestApp(t)
	t.Cleanup(func() { log.Configure(log.Config{Output: io.Discard}) })

	require.NoError(t, app.setup(writeConfig(t, dir)))
	assert.Equal(t, zerolog.ErrorLevel, log.Base().GetLevel())

	app.logger.Warn().Msg("below threshold")
	app.logger.Error().Msg("cli failure")
	assert.Contains(t, stderr.String(), "cli failure")
	assert.NotContains(t, stderr.String(), "below threshold")
}

func TestHistoryListsRecordedRuns(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	store, err := history.NewStore(filepath.Join(dir, "runs.db"))
	require.NoError(t, err)
	finished := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, store.Record(context.Background(), history.Entry{
		ID:         "run-1",
		Label:      "squat",
		VideoPath:  "squat.mp4",
		State:      "done",
		StartedAt:  finished.Add(-20 * time.Second),
		FinishedAt: finished,
		OutputPath: "output/squat_analyzed.webm",
		FormScore:  82,
		RepCount:   5,
	}))
	require.NoError(t, store.Close())

	app, stdout, _ := newTestApp(t)
	require.NoError(t, app.Run([]string{"history", "--config", cfgPath, "--limit", "5"}))

	out := stdout.String()
	assert.Contains(t, out, "LABEL")
	assert.Contains(t, out, "squat")
	assert.Contains(t, out, "output/squat_analyzed.webm")
}

func TestHistoryEmpty(t *testing.T) {
	dir := t.TempDir()
	app, stdout, _ := newTestApp(t)

	require.NoError(t, app.Run([]string{"history", "--config", writeConfig(t, dir)}))
	assert.Contains(t, stdout.String(), "No runs recorded")
}

func TestSignalsCancelActiveRunThenExit(t *testing.T) {
	app, _, _ := newTestApp(t)

	cancelled := make(chan struct{}, 1)
	app.track(func() { cancelled <- struct{}{} })

	exited := make(chan int, 1)
	app.exit = func(code int) { exited <- code }

	sigChan := make(chan os.Signal, 2)
	done := make(chan struct{})
	go func() {
		defer close(done)
		app.handleSignals(sigChan)
	}()

	sigChan <- syscall.SIGINT
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("active run was not cancelled")
	}
	assert.NoError(t, app.ctx.Err())

	sigChan <- syscall.SIGINT
	select {
	case code := <-exited:
		assert.Equal(t, exitInterrupted, code)
	case <-time.After(time.Second):
		t.Fatal("second signal did not exit")
	}
	<-done
}

func TestSignalWithoutActiveRunCancelsApplication(t *testing.T) {
	app, _, _ := newTestApp(t)

	sigChan := make(chan os.Signal, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		app.handleSignals(sigChan)
	}()

	sigChan <- syscall.SIGTERM
	select {
	case <-app.ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("application context was not cancelled")
	}
	<-done
}
