package capture

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"snip-assist/coords"
	"snip-assist/display"
)

func testEnumerator(w, h int) display.Enumerator {
	return func() []display.Display {
		return []display.Display{{
			ID:          0,
			Bounds:      image.Rect(0, 0, w, h),
			ScaleFactor: 1,
			Primary:     true,
		}}
	}
}

func testGrabber(w, h int) Grabber {
	return func(bounds image.Rectangle) (*image.RGBA, error) {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetRGBA(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), A: 255})
			}
		}
		return img, nil
	}
}

func TestCaptureFullDisplayNoCrop(t *testing.T) {
	c := NewWith(testGrabber(1920, 1080), testEnumerator(1920, 1080), nil)

	shot, err := c.Capture(Options{DisplayID: 0})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if len(shot.JPEG) == 0 {
		t.Error("Expected non-empty encoded image")
	}
	if shot.Bitmap == nil {
		t.Fatal("Expected retained bitmap")
	}
	if got := shot.Bitmap.Bounds(); got.Dx() != 1920 || got.Dy() != 1080 {
		t.Errorf("Bitmap size = %dx%d, want 1920x1080", got.Dx(), got.Dy())
	}
	if shot.Meta.ScaleFactor != 1 {
		t.Errorf("ScaleFactor = %v, want 1", shot.Meta.ScaleFactor)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(shot.JPEG))
	if err != nil {
		t.Fatalf("Encoded payload is not valid JPEG: %v", err)
	}
	if cfg.Width != 1920 || cfg.Height != 1080 {
		t.Errorf("JPEG size = %dx%d, want 1920x1080", cfg.Width, cfg.Height)
	}
}

func TestCaptureDerivesScaleFactor(t *testing.T) {
	// Logical 1920x1080 display backed by a 3840x2160 bitmap is 2x.
	c := NewWith(testGrabber(3840, 2160), testEnumerator(1920, 1080), nil)

	shot, err := c.Capture(Options{DisplayID: 0})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if shot.Meta.ScaleFactor != 2 {
		t.Errorf("ScaleFactor = %v, want 2", shot.Meta.ScaleFactor)
	}
}

func TestCaptureWithCropAt2x(t *testing.T) {
	c := NewWith(testGrabber(3840, 2160), testEnumerator(1920, 1080), nil)

	crop := coords.Rect{X: 100, Y: 100, Width: 200, Height: 150}
	shot, err := c.Capture(Options{Crop: &crop, DisplayID: 0})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(shot.JPEG))
	if err != nil {
		t.Fatalf("Invalid JPEG: %v", err)
	}
	if cfg.Width != 400 || cfg.Height != 300 {
		t.Errorf("Cropped JPEG = %dx%d, want 400x300", cfg.Width, cfg.Height)
	}
	// The full bitmap is retained regardless of the crop.
	if got := shot.Bitmap.Bounds(); got.Dx() != 3840 {
		t.Errorf("Retained bitmap width = %d, want full 3840", got.Dx())
	}
}

func TestCaptureZeroAreaCropReturnsFullImage(t *testing.T) {
	c := NewWith(testGrabber(1920, 1080), testEnumerator(1920, 1080), nil)

	crop := coords.Rect{X: -500, Y: 0, Width: 400, Height: 100}
	shot, err := c.Capture(Options{Crop: &crop, DisplayID: 0})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(shot.JPEG))
	if err != nil {
		t.Fatalf("Invalid JPEG: %v", err)
	}
	if cfg.Width != 1920 || cfg.Height != 1080 {
		t.Errorf("Zero-area crop should return full image, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestCaptureUnknownDisplayFallsBack(t *testing.T) {
	c := NewWith(testGrabber(1920, 1080), testEnumerator(1920, 1080), nil)
	if _, err := c.Capture(Options{DisplayID: 42}); err != nil {
		t.Errorf("Unknown display id must fall back, got error: %v", err)
	}
}

func TestCaptureNoDisplays(t *testing.T) {
	c := NewWith(testGrabber(10, 10), func() []display.Display { return nil }, nil)
	if _, err := c.Capture(Options{DisplayID: 0}); err == nil {
		t.Error("Expected error with no displays")
	}
}

func TestRecropUsesStoredBitmap(t *testing.T) {
	c := NewWith(testGrabber(3840, 2160), testEnumerator(1920, 1080), nil)

	shot, err := c.Capture(Options{DisplayID: 0})
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	out, err := Recrop(shot, coords.Rect{X: 1900, Y: 1000, Width: 500, Height: 500})
	if err != nil {
		t.Fatalf("Recrop failed: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("Invalid JPEG: %v", err)
	}
	// cssRect {1900,1000,500,500} at 2x clamps inside 3840x2160.
	if cfg.Width != 3840-3800 || cfg.Height != 2160-2000 {
		t.Errorf("Clamped recrop = %dx%d, want 40x160", cfg.Width, cfg.Height)
	}
}

func TestRecropWithoutBitmap(t *testing.T) {
	if _, err := Recrop(Shot{}, coords.Rect{X: 0, Y: 0, Width: 10, Height: 10}); err == nil {
		t.Error("Expected error when no bitmap is retained")
	}
}

func TestCaptureFollowsSourceCorrelation(t *testing.T) {
	displays := []display.Display{
		{ID: 0, Bounds: image.Rect(0, 0, 1920, 1080), ScaleFactor: 1, Primary: true},
		{ID: 1, Bounds: image.Rect(1920, 0, 3840, 1080), ScaleFactor: 1},
	}
	var grabbed image.Rectangle
	grab := func(bounds image.Rectangle) (*image.RGBA, error) {
		grabbed = bounds
		return image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy())), nil
	}
	c := NewWith(grab, func() []display.Display { return displays }, nil)
	// The capture API reports display 0's pixels under a source hinting at
	// display 1; the hint must win over the requested bounds.
	c.SetSources(func() []display.CaptureSource {
		return []display.CaptureSource{
			{ID: "screen:0:0", Name: "Screen 1", DisplayHint: 1},
		}
	})

	if _, err := c.Capture(Options{DisplayID: 0}); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if grabbed != displays[1].Bounds {
		t.Errorf("grabbed %v, want source-correlated bounds %v", grabbed, displays[1].Bounds)
	}
}

func TestCaptureDefaultSourcesKeepResolvedDisplay(t *testing.T) {
	displays := []display.Display{
		{ID: 0, Bounds: image.Rect(0, 0, 800, 600), ScaleFactor: 1, Primary: true},
		{ID: 1, Bounds: image.Rect(800, 0, 1600, 600), ScaleFactor: 1},
	}
	var grabbed image.Rectangle
	grab := func(bounds image.Rectangle) (*image.RGBA, error) {
		grabbed = bounds
		return image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy())), nil
	}
	c := NewWith(grab, func() []display.Display { return displays }, nil)

	if _, err := c.Capture(Options{DisplayID: 1}); err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if grabbed != displays[1].Bounds {
		t.Errorf("grabbed %v, want %v", grabbed, displays[1].Bounds)
	}
}
