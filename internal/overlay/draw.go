package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/chenhan1218/autopilot/internal/introspection"
)

// FrameHighlighter renders highlights onto a captured frame image. It
// keeps a pristine copy of the frame so Clear restores it exactly; the
// at-most-one-highlight rule of the Selector means restore-then-draw is
// all it ever needs.
type FrameHighlighter struct {
	mu    sync.Mutex
	frame *image.RGBA
	base  *image.RGBA
}

var (
	highlightColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	labelColor     = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	outlineColor   = color.RGBA{R: 0, G: 0, B: 0, A: 200}
)

// NewFrameHighlighter wraps img. The image is copied; the caller's
// original is never modified.
func NewFrameHighlighter(img image.Image) *FrameHighlighter {
	base := toRGBA(img)
	frame := image.NewRGBA(base.Bounds())
	draw.Draw(frame, frame.Bounds(), base, base.Bounds().Min, draw.Src)
	return &FrameHighlighter{frame: frame, base: base}
}

// Highlight draws rect (with a geometry label) over a fresh copy of the
// base frame.
func (h *FrameHighlighter) Highlight(r introspection.Rect) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restore()

	x1, y1 := int(r.X), int(r.Y)
	x2, y2 := int(r.X+r.W), int(r.Y+r.H)
	drawRectangle(h.frame, x1, y1, x2, y2, highlightColor)

	label := fmt.Sprintf("%gx%g@(%g,%g)", r.W, r.H, r.X, r.Y)
	drawTextWithOutline(h.frame, label, (x1+x2)/2, (y1+y2)/2, labelColor, outlineColor)
	return nil
}

// Clear restores the pristine frame.
func (h *FrameHighlighter) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restore()
	return nil
}

// Frame returns the current rendered frame.
func (h *FrameHighlighter) Frame() image.Image {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := image.NewRGBA(h.frame.Bounds())
	draw.Draw(out, out.Bounds(), h.frame, h.frame.Bounds().Min, draw.Src)
	return out
}

func (h *FrameHighlighter) restore() {
	draw.Draw(h.frame, h.frame.Bounds(), h.base, h.base.Bounds().Min, draw.Src)
}

func toRGBA(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	return rgba
}

func within(bounds image.Rectangle, x, y int) bool {
	return x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y
}

// drawRectangle draws a one-pixel rectangle outline, clamped to the image.
func drawRectangle(img *image.RGBA, x1, y1, x2, y2 int, c color.Color) {
	bounds := img.Bounds()
	if x1 < bounds.Min.X {
		x1 = bounds.Min.X
	}
	if y1 < bounds.Min.Y {
		y1 = bounds.Min.Y
	}
	if x2 > bounds.Max.X {
		x2 = bounds.Max.X
	}
	if y2 > bounds.Max.Y {
		y2 = bounds.Max.Y
	}
	if x2 <= x1 || y2 <= y1 {
		return
	}
	for x := x1; x < x2; x++ {
		if within(bounds, x, y1) {
			img.Set(x, y1, c)
		}
		if within(bounds, x, y2-1) {
			img.Set(x, y2-1, c)
		}
	}
	for y := y1; y < y2; y++ {
		if within(bounds, x1, y) {
			img.Set(x1, y, c)
		}
		if within(bounds, x2-1, y) {
			img.Set(x2-1, y, c)
		}
	}
}

// drawTextWithOutline centers text at (x, y) with a contrast outline.
func drawTextWithOutline(img *image.RGBA, text string, x, y int, textColor, outline color.Color) {
	// basicfont.Face7x13: ~7px per character, 13px tall.
	offsetX := x - len(text)*7/2
	offsetY := y - 13/2

	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			drawText(img, text, offsetX+dx, offsetY+dy, outline)
		}
	}
	drawText(img, text, offsetX, offsetY, textColor)
}

func drawText(img *image.RGBA, text string, x, y int, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot: fixed.Point26_6{
			X: fixed.Int26_6(x * 64),
			Y: fixed.Int26_6(y * 64),
		},
	}
	d.DrawString(text)
}
