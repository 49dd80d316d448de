// Package capture produces full-resolution bitmaps of a resolved display,
// optionally cropped to a rectangle expressed in overlay logical pixels.
package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"log"

	"github.com/kbinani/screenshot"

	"snip-assist/coords"
	"snip-assist/display"
)

// jpegQuality keeps analyzer payloads small; the decoded bitmap is retained
// so later re-crops never re-decode the lossy bytes.
const jpegQuality = 85

// DisplayMeta records everything needed to map a later selection back onto
// the captured bitmap.
type DisplayMeta struct {
	DisplayID   int
	ScaleFactor float64
	LogicalSize coords.Size
}

// Shot is one completed capture. JPEG holds the encoded payload; Bitmap the
// original decoded pixels for lossless re-cropping.
type Shot struct {
	JPEG   []byte
	Bitmap *image.RGBA
	Meta   DisplayMeta
}

// Options select what to capture. A nil Crop captures the whole display.
// DisplayID < 0 resolves the display under the pointer.
type Options struct {
	Crop      *coords.Rect
	DisplayID int
}

// Grabber captures the raw pixels of a display rectangle. The default uses
// kbinani/screenshot; tests inject synthetic frames.
type Grabber func(bounds image.Rectangle) (*image.RGBA, error)

// PointerFunc reports the current pointer position in OS logical coordinates.
type PointerFunc func() image.Point

// Capturer resolves a display and produces Shots.
type Capturer struct {
	grab      Grabber
	enumerate display.Enumerator
	pointer   PointerFunc
	sources   display.SourceLister
}

// New returns a Capturer backed by the OS screen APIs.
func New() *Capturer {
	return &Capturer{
		grab:      screenshot.CaptureRect,
		enumerate: display.Enumerate,
		pointer:   func() image.Point { return image.Point{} },
	}
}

// SetSources overrides the capture-source lister. The default derives
// sources from the display enumeration itself.
func (c *Capturer) SetSources(list display.SourceLister) {
	c.sources = list
}

// NewWith returns a Capturer with injected dependencies. Any nil argument
// keeps the OS-backed default.
func NewWith(grab Grabber, enumerate display.Enumerator, pointer PointerFunc) *Capturer {
	c := New()
	if grab != nil {
		c.grab = grab
	}
	if enumerate != nil {
		c.enumerate = enumerate
	}
	if pointer != nil {
		c.pointer = pointer
	}
	return c
}

// Capture grabs the resolved display and returns the encoded shot. Crop
// failures degrade to the uncropped image; only a failed grab is an error.
func (c *Capturer) Capture(opts Options) (Shot, error) {
	displays := c.enumerate()
	if len(displays) == 0 {
		return Shot{}, fmt.Errorf("no active displays found")
	}

	var d display.Display
	var ok bool
	if opts.DisplayID >= 0 {
		d, ok = display.Resolve(displays, opts.DisplayID)
	} else {
		d, ok = display.ResolveAt(displays, c.pointer())
	}
	if !ok {
		return Shot{}, fmt.Errorf("no display could be resolved")
	}

	img, err := c.grab(c.grabBounds(d, displays))
	if err != nil {
		return Shot{}, fmt.Errorf("capture display %d: %w", d.ID, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return Shot{}, fmt.Errorf("capture display %d: zero-dimension bitmap", d.ID)
	}

	meta := DisplayMeta{
		DisplayID:   d.ID,
		ScaleFactor: scaleFactor(d, img),
		LogicalSize: coords.Size{Width: d.LogicalWidth(), Height: d.LogicalHeight()},
	}

	out := img
	if opts.Crop != nil {
		out = cropBitmap(img, *opts.Crop, meta.LogicalSize)
	}

	encoded, err := EncodeJPEG(out)
	if err != nil {
		return Shot{}, err
	}
	return Shot{JPEG: encoded, Bitmap: img, Meta: meta}, nil
}

// grabBounds correlates the resolved display with the capture sources and
// returns the rectangle to grab. When the matched source's hint names a
// different display, the source correlation wins; the two enumerations can
// order multi-monitor setups differently.
func (c *Capturer) grabBounds(d display.Display, displays []display.Display) image.Rectangle {
	var sources []display.CaptureSource
	if c.sources != nil {
		sources = c.sources()
	} else {
		sources = display.DefaultSources(displays)
	}
	if len(sources) == 0 {
		return d.Bounds
	}

	idx := 0
	for i, cand := range displays {
		if cand.ID == d.ID {
			idx = i
			break
		}
	}
	src, ok := display.MatchSource(d, idx, displays, sources)
	if !ok {
		return d.Bounds
	}
	if src.DisplayHint >= 0 && src.DisplayHint != d.ID {
		if sd, found := display.Resolve(displays, src.DisplayHint); found {
			log.Printf("capture: source %q correlates display %d to %d", src.ID, d.ID, sd.ID)
			return sd.Bounds
		}
	}
	return d.Bounds
}

// Recrop applies a logical-pixel rectangle to a previously captured shot,
// operating on the stored bitmap so compression artifacts never accumulate.
func Recrop(shot Shot, crop coords.Rect) ([]byte, error) {
	if shot.Bitmap == nil {
		return nil, fmt.Errorf("shot has no retained bitmap")
	}
	return EncodeJPEG(cropBitmap(shot.Bitmap, crop, shot.Meta.LogicalSize))
}

// EncodeJPEG compresses a bitmap at the capture quality level.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// cropBitmap maps and applies a logical-space crop. A rectangle that clamps
// to zero area means "no crop": the full image is returned.
func cropBitmap(img *image.RGBA, crop coords.Rect, logical coords.Size) *image.RGBA {
	b := img.Bounds()
	mapped, ok := coords.MapRect(crop, logical, coords.Size{Width: b.Dx(), Height: b.Dy()})
	if !ok {
		log.Printf("capture: crop %+v maps to zero area, returning full image", crop)
		return img
	}

	dst := image.NewRGBA(image.Rect(0, 0, mapped.Width, mapped.Height))
	src := image.Rect(
		b.Min.X+mapped.X,
		b.Min.Y+mapped.Y,
		b.Min.X+mapped.X+mapped.Width,
		b.Min.Y+mapped.Y+mapped.Height,
	)
	draw.Draw(dst, dst.Bounds(), img, src.Min, draw.Src)
	return dst
}

// scaleFactor derives the device scale from bitmap vs logical width. The
// enumeration API reports logical bounds only, so this is measured, not read.
func scaleFactor(d display.Display, img *image.RGBA) float64 {
	if d.LogicalWidth() == 0 {
		return 1
	}
	f := float64(img.Bounds().Dx()) / float64(d.LogicalWidth())
	if f <= 0 {
		return 1
	}
	return f
}
