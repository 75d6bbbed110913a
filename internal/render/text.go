package render

import (
	"image"
	"image/color"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const ellipsis = "..."

// textPainter draws basicfont text magnified by an integer factor.
type textPainter struct {
	face  *basicfont.Face
	scale int
}

func newTextPainter(surfaceHeight int) *textPainter {
	scale := surfaceHeight / 360
	if scale < 1 {
		scale = 1
	}
	return &textPainter{face: basicfont.Face7x13, scale: scale}
}

func (p *textPainter) lineHeight() int {
	return (p.face.Height + 2) * p.scale
}

func (p *textPainter) measure(s string) int {
	return font.MeasureString(p.face, s).Ceil() * p.scale
}

// draw renders s with its top-left corner at (x, y).
func (p *textPainter) draw(dst *image.RGBA, x, y int, s string, c color.Color) {
	w := font.MeasureString(p.face, s).Ceil()
	if w <= 0 {
		return
	}
	h := p.face.Height
	glyphs := image.NewRGBA(image.Rect(0, 0, w, h))
	d := &font.Drawer{
		Dst:  glyphs,
		Src:  image.NewUniform(c),
		Face: p.face,
		Dot:  fixed.P(0, p.face.Ascent),
	}
	d.DrawString(s)

	target := image.Rect(x, y, x+w*p.scale, y+h*p.scale)
	xdraw.NearestNeighbor.Scale(dst, target, glyphs, glyphs.Bounds(), xdraw.Over, nil)
}

// wrapText greedily breaks text into at most maxLines lines no wider than
// maxWidth. Text that does not fit ends with an ellipsis.
func wrapText(text string, maxWidth, maxLines int, measure func(string) int) []string {
	words := strings.Fields(text)
	if len(words) == 0 || maxLines <= 0 || maxWidth <= 0 {
		return nil
	}

	var lines []string
	current := ""
	truncated := false

	for i := 0; i < len(words); i++ {
		word := fitWord(words[i], maxWidth, measure)
		candidate := word
		if current != "" {
			candidate = current + " " + word
		}
		if measure(candidate) <= maxWidth {
			current = candidate
			continue
		}
		lines = append(lines, current)
		current = word
		if len(lines) == maxLines {
			truncated = true
			current = ""
			break
		}
	}
	if current != "" {
		lines = append(lines, current)
	}

	if truncated {
		last := len(lines) - 1
		lines[last] = withEllipsis(lines[last], maxWidth, measure)
	}
	return lines
}

// fitWord hard-cuts a single word that is wider than maxWidth.
func fitWord(word string, maxWidth int, measure func(string) int) string {
	if measure(word) <= maxWidth {
		return word
	}
	runes := []rune(word)
	for len(runes) > 1 && measure(string(runes)) > maxWidth {
		runes = runes[:len(runes)-1]
	}
	return string(runes)
}

func withEllipsis(line string, maxWidth int, measure func(string) int) string {
	runes := []rune(line)
	for len(runes) > 0 && measure(string(runes)+ellipsis) > maxWidth {
		runes = runes[:len(runes)-1]
	}
	return strings.TrimRight(string(runes), " ") + ellipsis
}
