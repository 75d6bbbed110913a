package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	first := Entry{
		ID:         "run-1",
		Label:      "squat",
		VideoPath:  "/videos/squat.mp4",
		State:      "done",
		StartedAt:  base,
		FinishedAt: base.Add(21 * time.Second),
		OutputPath: "output/squat_analyzed.webm",
		MimeType:   "video/webm;codecs=vp9",
		Bytes:      48213,
		FormScore:  82,
		RepCount:   5,
	}
	second := Entry{
		ID:         "run-2",
		Label:      "lunge",
		State:      "failed",
		StartedAt:  base.Add(time.Minute),
		FinishedAt: base.Add(time.Minute + time.Second),
		Error:      "capture failed: capture stream has no video track",
	}
	require.NoError(t, s.Record(ctx, first))
	require.NoError(t, s.Record(ctx, second))

	entries, err := s.List(ctx, 0)
	require.NoError(t, err)
	if diff := cmp.Diff([]Entry{second, first}, entries); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}

	limited, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "run-2", limited[0].ID)
}

func TestRecordReplacesOutcome(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Record(ctx, Entry{ID: "r", Label: "deadlift", State: "failed", StartedAt: now, FinishedAt: now, Error: "boom"}))
	require.NoError(t, s.Record(ctx, Entry{ID: "r", Label: "deadlift", State: "done", StartedAt: now, FinishedAt: now, Bytes: 10}))

	got, err := s.Get(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, "done", got.State)
	assert.Empty(t, got.Error)
	assert.EqualValues(t, 10, got.Bytes)
}

func TestGetUnknown(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordRejectsUnknownState(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	err := s.Record(context.Background(), Entry{ID: "x", Label: "squat", State: "recording", StartedAt: now, FinishedAt: now})
	assert.Error(t, err)
}
