package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/chenhan1218/autopilot/internal/introspection"
)

func solidFrame(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestFrameHighlighter_HighlightDrawsOutline(t *testing.T) {
	base := solidFrame(100, 100, color.White)
	h := NewFrameHighlighter(base)

	if err := h.Highlight(introspection.Rect{X: 10, Y: 10, W: 40, H: 20}); err != nil {
		t.Fatal(err)
	}

	// Assert on the bottom edge, away from the centered geometry label.
	frame := h.Frame()
	if got := frame.At(10, 29); got != highlightColor {
		t.Errorf("expected highlight color on the bottom-left corner, got %v", got)
	}
	if got := frame.At(49, 29); got != highlightColor {
		t.Errorf("expected highlight color on the bottom-right corner, got %v", got)
	}
}

func TestFrameHighlighter_ClearRestoresBase(t *testing.T) {
	base := solidFrame(100, 100, color.White)
	h := NewFrameHighlighter(base)

	if err := h.Highlight(introspection.Rect{X: 10, Y: 10, W: 40, H: 20}); err != nil {
		t.Fatal(err)
	}
	if err := h.Clear(); err != nil {
		t.Fatal(err)
	}

	frame := h.Frame().(*image.RGBA)
	for _, pt := range []image.Point{{10, 10}, {30, 20}, {49, 29}} {
		r, g, b, _ := frame.At(pt.X, pt.Y).RGBA()
		if r != 0xffff || g != 0xffff || b != 0xffff {
			t.Errorf("expected white at %v after clear, got %v", pt, frame.At(pt.X, pt.Y))
		}
	}
}

func TestFrameHighlighter_SecondHighlightReplacesFirst(t *testing.T) {
	base := solidFrame(100, 100, color.White)
	h := NewFrameHighlighter(base)

	if err := h.Highlight(introspection.Rect{X: 5, Y: 5, W: 10, H: 10}); err != nil {
		t.Fatal(err)
	}
	if err := h.Highlight(introspection.Rect{X: 60, Y: 60, W: 20, H: 20}); err != nil {
		t.Fatal(err)
	}

	frame := h.Frame()
	r, g, b, _ := frame.At(5, 5).RGBA()
	if r != 0xffff || g != 0xffff || b != 0xffff {
		t.Error("expected the first highlight to be gone")
	}
	if got := frame.At(60, 60); got != highlightColor {
		t.Errorf("expected the second highlight, got %v", got)
	}
}

func TestFrameHighlighter_RectClampedToFrame(t *testing.T) {
	base := solidFrame(50, 50, color.White)
	h := NewFrameHighlighter(base)

	// Partially off-frame rectangles must not panic.
	if err := h.Highlight(introspection.Rect{X: -10, Y: -10, W: 40, H: 40}); err != nil {
		t.Fatal(err)
	}
	if err := h.Highlight(introspection.Rect{X: 40, Y: 40, W: 100, H: 100}); err != nil {
		t.Fatal(err)
	}
}

func TestFrameHighlighter_DoesNotModifyCallerImage(t *testing.T) {
	base := solidFrame(100, 100, color.White)
	h := NewFrameHighlighter(base)

	if err := h.Highlight(introspection.Rect{X: 10, Y: 10, W: 40, H: 20}); err != nil {
		t.Fatal(err)
	}

	r, g, b, _ := base.At(10, 10).RGBA()
	if r != 0xffff || g != 0xffff || b != 0xffff {
		t.Error("the caller's image must not be drawn on")
	}
}
