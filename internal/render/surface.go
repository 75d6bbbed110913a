package render

import (
	"image"
	"image/color"
	"sync"
)

// Surface is the drawable target shared by the renderer and the capture stream.
type Surface struct {
	mu  sync.Mutex
	img *image.RGBA
}

// NewSurface allocates a surface of w x h pixels. Non-positive sizes yield an empty surface.
func NewSurface(w, h int) *Surface {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return &Surface{img: image.NewRGBA(image.Rect(0, 0, w, h))}
}

func (s *Surface) Bounds() image.Rectangle {
	return s.img.Bounds()
}

// Paint runs fn with exclusive access to the pixels.
func (s *Surface) Paint(fn func(dst *image.RGBA)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.img)
}

// CopyPixels copies the RGBA pixel data into dst and returns the number of bytes copied.
func (s *Surface) CopyPixels(dst []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copy(dst, s.img.Pix)
}

// Snapshot returns a copy of the current image.
func (s *Surface) Snapshot() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := image.NewRGBA(s.img.Rect)
	copy(out.Pix, s.img.Pix)
	return out
}

// At reads a single pixel; used by tests and previews.
func (s *Surface) At(x, y int) color.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.img.RGBAAt(x, y)
}
