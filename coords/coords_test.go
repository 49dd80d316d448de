package coords

import "testing"

func TestMapRectAt2xScale(t *testing.T) {
	logical := Size{Width: 1920, Height: 1080}
	bitmap := Size{Width: 3840, Height: 2160}

	got, ok := MapRect(Rect{X: 100, Y: 100, Width: 200, Height: 150}, logical, bitmap)
	if !ok {
		t.Fatal("Expected a usable rectangle")
	}
	want := Rect{X: 200, Y: 200, Width: 400, Height: 300}
	if got != want {
		t.Errorf("MapRect = %+v, want %+v", got, want)
	}
}

func TestMapRectIdentityScale(t *testing.T) {
	size := Size{Width: 1920, Height: 1080}
	got, ok := MapRect(Rect{X: 10, Y: 20, Width: 30, Height: 40}, size, size)
	if !ok {
		t.Fatal("Expected a usable rectangle")
	}
	if got != (Rect{X: 10, Y: 20, Width: 30, Height: 40}) {
		t.Errorf("Identity mapping changed rect: %+v", got)
	}
}

func TestMapRectClampsOutOfBounds(t *testing.T) {
	logical := Size{Width: 1920, Height: 1080}
	bitmap := Size{Width: 3840, Height: 2160}

	got, ok := MapRect(Rect{X: 1900, Y: 1000, Width: 500, Height: 500}, logical, bitmap)
	if !ok {
		t.Fatal("Expected a usable rectangle")
	}
	if got.X+got.Width > bitmap.Width {
		t.Errorf("x+width = %d exceeds bitmap width %d", got.X+got.Width, bitmap.Width)
	}
	if got.Y+got.Height > bitmap.Height {
		t.Errorf("y+height = %d exceeds bitmap height %d", got.Y+got.Height, bitmap.Height)
	}
}

func TestMapRectContainment(t *testing.T) {
	logical := Size{Width: 1366, Height: 768}
	bitmap := Size{Width: 2049, Height: 1152}

	rects := []Rect{
		{X: -100, Y: -100, Width: 50, Height: 50},
		{X: -100, Y: -100, Width: 5000, Height: 5000},
		{X: 1366, Y: 768, Width: 10, Height: 10},
		{X: 0, Y: 0, Width: 0, Height: 0},
		{X: 10, Y: 10, Width: -5, Height: 20},
		{X: 1365, Y: 767, Width: 1, Height: 1},
		{X: 500, Y: 300, Width: 1366, Height: 768},
	}

	for _, r := range rects {
		got, ok := MapRect(r, logical, bitmap)
		if !ok {
			// Zero-area results are "no crop", which is valid.
			continue
		}
		if got.X < 0 || got.Y < 0 {
			t.Errorf("MapRect(%+v) origin out of bounds: %+v", r, got)
		}
		if got.X+got.Width > bitmap.Width || got.Y+got.Height > bitmap.Height {
			t.Errorf("MapRect(%+v) extends past bitmap: %+v", r, got)
		}
		if got.Empty() {
			t.Errorf("MapRect(%+v) returned ok with empty rect %+v", r, got)
		}
	}
}

func TestMapRectZeroAreaIsNoCrop(t *testing.T) {
	logical := Size{Width: 1920, Height: 1080}
	bitmap := Size{Width: 1920, Height: 1080}

	cases := []Rect{
		{X: 0, Y: 0, Width: 0, Height: 100},
		{X: 0, Y: 0, Width: 100, Height: 0},
		{X: -500, Y: 0, Width: 400, Height: 100},
		{X: 5000, Y: 5000, Width: 10, Height: 10},
	}
	for _, r := range cases {
		if _, ok := MapRect(r, logical, bitmap); ok {
			t.Errorf("MapRect(%+v) should report no usable area", r)
		}
	}
}

func TestMapRectInvalidDimensions(t *testing.T) {
	if _, ok := MapRect(Rect{X: 0, Y: 0, Width: 10, Height: 10}, Size{}, Size{Width: 100, Height: 100}); ok {
		t.Error("Expected no result for zero logical size")
	}
	if _, ok := MapRect(Rect{X: 0, Y: 0, Width: 10, Height: 10}, Size{Width: 100, Height: 100}, Size{}); ok {
		t.Error("Expected no result for zero bitmap size")
	}
}
