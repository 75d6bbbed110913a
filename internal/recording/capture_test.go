package recording

import (
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptureStreamDeliversFrames(t *testing.T) {
	surface := newTestSurface(2, 1, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	stream, err := CaptureStream(surface, 200)
	require.NoError(t, err)

	tracks := stream.VideoTracks()
	require.Len(t, tracks, 1)
	track := tracks[0]
	assert.Equal(t, 2, track.Width)
	assert.Equal(t, 1, track.Height)
	assert.Equal(t, 8, track.FrameSize())

	select {
	case frame := <-track.Frames():
		assert.Equal(t, []byte{10, 20, 30, 255, 10, 20, 30, 255}, frame)
	case <-time.After(time.Second):
		t.Fatal("no frame captured")
	}

	stream.Stop()
	stream.Stop()
	for range track.Frames() {
	}
}

func TestCaptureStreamEmptySurface(t *testing.T) {
	stream, err := CaptureStream(newTestSurface(0, 0, color.RGBA{}), 60)
	require.NoError(t, err)
	assert.Empty(t, stream.VideoTracks())
	stream.Stop()
}

func TestCaptureStreamRejectsInvalidFPS(t *testing.T) {
	_, err := CaptureStream(newTestSurface(1, 1, color.RGBA{}), 0)
	assert.Error(t, err)
}

func TestObjectURLs(t *testing.T) {
	urls := NewObjectURLs()
	url := urls.Create(Blob{Data: []byte("abc"), MimeType: "video/webm"})

	id, ok := ParseObjectURL(url)
	require.True(t, ok)
	b, ok := urls.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, "abc", string(b.Data))
	assert.Equal(t, 3, b.Size())

	urls.Revoke(url)
	_, ok = urls.Open(url)
	assert.False(t, ok)
	urls.Revoke("not-a-url")

	_, ok = ParseObjectURL(ObjectURLPrefix)
	assert.False(t, ok)
}
