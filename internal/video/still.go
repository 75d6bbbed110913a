package video

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	vidio "github.com/AlexEidt/Vidio"
)

// WriteStill encodes img to path; the format follows the file extension.
func WriteStill(path string, img *image.RGBA) error {
	b := img.Bounds()
	if b.Empty() {
		return fmt.Errorf("write still %s: empty image", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	pix := img.Pix
	if b.Min != (image.Point{}) || img.Stride != 4*b.Dx() {
		tight := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := 0; y < b.Dy(); y++ {
			copy(tight.Pix[y*tight.Stride:], img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):][:4*b.Dx()])
		}
		pix = tight.Pix
	}

	if err := vidio.Write(path, b.Dx(), b.Dy(), pix); err != nil {
		return fmt.Errorf("write still %s: %w", path, err)
	}
	return nil
}
