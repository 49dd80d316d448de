// Package coords converts selection rectangles between the overlay's
// CSS/logical pixel space and the captured bitmap's native pixel space.
package coords

import "math"

// Rect is a rectangle in either logical or bitmap pixels.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Size is a width/height pair.
type Size struct {
	Width  int
	Height int
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// MapRect scales a logical-pixel rectangle into bitmap pixels and clamps it
// to the bitmap bounds. The scale per axis is bitmap/logical, which absorbs
// both the display scale factor and any thumbnail downscaling.
//
// The returned bool is false when the clamped rectangle has zero area, which
// callers treat as "no crop" rather than an error.
func MapRect(css Rect, logical Size, bitmap Size) (Rect, bool) {
	if logical.Width <= 0 || logical.Height <= 0 || bitmap.Width <= 0 || bitmap.Height <= 0 {
		return Rect{}, false
	}

	scaleX := float64(bitmap.Width) / float64(logical.Width)
	scaleY := float64(bitmap.Height) / float64(logical.Height)

	out := Rect{
		X:      int(math.Round(float64(css.X) * scaleX)),
		Y:      int(math.Round(float64(css.Y) * scaleY)),
		Width:  int(math.Round(float64(css.Width) * scaleX)),
		Height: int(math.Round(float64(css.Height) * scaleY)),
	}

	out.X = clamp(out.X, 0, bitmap.Width-1)
	out.Y = clamp(out.Y, 0, bitmap.Height-1)
	out.Width = clamp(out.Width, 0, bitmap.Width-out.X)
	out.Height = clamp(out.Height, 0, bitmap.Height-out.Y)

	if out.Empty() {
		return Rect{}, false
	}
	return out, true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
