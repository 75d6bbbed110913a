package render

import (
	"fmt"
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"

	"github.com/vedantwpatil/FormFrame/internal/analysis"
)

var (
	colorPanel   = color.RGBA{A: 170}
	colorCaption = color.RGBA{R: 20, G: 40, B: 90, A: 190}
	colorBadge   = color.RGBA{R: 30, G: 160, B: 70, A: 230}
	colorText    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colorGood    = color.RGBA{R: 80, G: 220, B: 110, A: 255}
	colorFair    = color.RGBA{R: 250, G: 200, B: 60, A: 255}
	colorPoor    = color.RGBA{R: 240, G: 80, B: 70, A: 255}
	colorClear   = color.RGBA{A: 255}
)

// FrameState is what an overlay may draw from.
type FrameState struct {
	Time      float64
	RepsSoFar int
	Result    *analysis.Result
}

// Overlay draws one layer of annotation on top of the video frame.
type Overlay interface {
	Name() string
	Draw(dst *image.RGBA, st FrameState)
}

func fillRect(dst *image.RGBA, r image.Rectangle, c color.Color) {
	xdraw.Draw(dst, r.Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, xdraw.Over)
}

func scoreColor(score int) color.RGBA {
	switch {
	case score >= 80:
		return colorGood
	case score >= 60:
		return colorFair
	default:
		return colorPoor
	}
}

// InfoPanel shows score, reps so far, exercise and tempo in the top-left corner.
type InfoPanel struct {
	text *textPainter
}

func (p *InfoPanel) Name() string { return "info_panel" }

func (p *InfoPanel) Draw(dst *image.RGBA, st FrameState) {
	res := st.Result
	margin := 10 * p.text.scale
	pad := 6 * p.text.scale
	lh := p.text.lineHeight()

	lines := []struct {
		text string
		c    color.Color
	}{
		{fmt.Sprintf("Form Score: %d%%", res.FormScore), scoreColor(res.FormScore)},
		{fmt.Sprintf("Reps: %d/%d", st.RepsSoFar, res.RepCount), colorText},
		{fmt.Sprintf("Exercise: %s", res.Exercise), colorText},
		{fmt.Sprintf("Tempo: %s", res.Tempo), colorText},
	}

	width := 0
	for _, l := range lines {
		if w := p.text.measure(l.text); w > width {
			width = w
		}
	}
	panel := image.Rect(margin, margin, margin+width+2*pad, margin+len(lines)*lh+2*pad)
	fillRect(dst, panel, colorPanel)

	for i, l := range lines {
		p.text.draw(dst, panel.Min.X+pad, panel.Min.Y+pad+i*lh, l.text, l.c)
	}
}

// Caption shows the rotating feedback line in a bounded box along the bottom edge.
type Caption struct {
	text     *textPainter
	window   float64
	maxLines int
}

func (c *Caption) Name() string { return "caption" }

func (c *Caption) Draw(dst *image.RGBA, st FrameState) {
	idx := analysis.CaptionIndexWindow(st.Time, len(st.Result.Feedback), c.window)
	if idx < 0 {
		return
	}
	b := dst.Bounds()
	margin := 10 * c.text.scale
	pad := 6 * c.text.scale
	lh := c.text.lineHeight()

	maxWidth := b.Dx() - 2*margin - 2*pad
	lines := wrapText(st.Result.Feedback[idx], maxWidth, c.maxLines, c.text.measure)
	if len(lines) == 0 {
		return
	}

	box := image.Rect(margin, b.Max.Y-margin-len(lines)*lh-2*pad, b.Max.X-margin, b.Max.Y-margin)
	fillRect(dst, box, colorCaption)
	for i, line := range lines {
		c.text.draw(dst, box.Min.X+pad, box.Min.Y+pad+i*lh, line, colorText)
	}
}

// RepMarker flashes a "Rep N" badge in the top-right corner around each key frame.
type RepMarker struct {
	text      *textPainter
	tolerance float64
}

func (m *RepMarker) Name() string { return "rep_marker" }

func (m *RepMarker) Draw(dst *image.RGBA, st FrameState) {
	rep := st.Result.ActiveRep(st.Time, m.tolerance)
	if rep == 0 {
		return
	}
	label := fmt.Sprintf("Rep %d", rep)
	b := dst.Bounds()
	margin := 10 * m.text.scale
	pad := 6 * m.text.scale

	w := m.text.measure(label) + 2*pad
	h := m.text.lineHeight() + 2*pad
	badge := image.Rect(b.Max.X-margin-w, margin, b.Max.X-margin, margin+h)
	fillRect(dst, badge, colorBadge)
	m.text.draw(dst, badge.Min.X+pad, badge.Min.Y+pad, label, colorText)
}
