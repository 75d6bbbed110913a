package video

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_Validate(t *testing.T) {
	require.NoError(t, Metadata{Width: 640, Height: 480, FPS: 30, Duration: 20}.Validate())
	require.NoError(t, Metadata{Duration: 1}.Validate(), "unknown size falls back later")

	assert.ErrorIs(t, Metadata{Width: 640, Height: 480, Duration: 0}.Validate(), ErrInvalidMetadata)
	assert.ErrorIs(t, Metadata{Width: -1, Height: 480, Duration: 3}.Validate(), ErrInvalidMetadata)
}

func TestLogOpened(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	logOpened(logger, Metadata{Width: 1280, Height: 720, FPS: 30, Duration: 20, Codec: "h264"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "source opened", entry["message"])
	assert.Equal(t, float64(1280), entry["width"])
	assert.Equal(t, float64(720), entry["height"])
	assert.Equal(t, float64(30), entry["fps"])
	assert.Equal(t, float64(20), entry["duration_s"])
	assert.Equal(t, "h264", entry["codec"])
}

func TestVidioLoader_MissingFile(t *testing.T) {
	_, err := VidioLoader{}.Open(context.Background(), filepath.Join(t.TempDir(), "missing.mp4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input file does not exist")
}

func TestWriteStill_PNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	img.SetRGBA(3, 2, color.RGBA{R: 200, G: 10, B: 20, A: 255})

	path := filepath.Join(t.TempDir(), "nested", "squat_frame.png")
	require.NoError(t, WriteStill(path, img))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 6), decoded.Bounds())
	r, g, b, _ := decoded.At(3, 2).RGBA()
	assert.Equal(t, uint32(200), r>>8)
	assert.Equal(t, uint32(10), g>>8)
	assert.Equal(t, uint32(20), b>>8)
}

func TestWriteStill_SubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	img.SetRGBA(5, 5, color.RGBA{G: 255, A: 255})
	sub := img.SubImage(image.Rect(4, 4, 8, 8)).(*image.RGBA)

	path := filepath.Join(t.TempDir(), "sub.png")
	require.NoError(t, WriteStill(path, sub))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 4, decoded.Bounds().Dx())
	_, g, _, _ := decoded.At(1, 1).RGBA()
	assert.Equal(t, uint32(255), g>>8)
}

func TestWriteStill_Empty(t *testing.T) {
	err := WriteStill(filepath.Join(t.TempDir(), "x.png"), image.NewRGBA(image.Rect(0, 0, 0, 0)))
	require.Error(t, err)
}
