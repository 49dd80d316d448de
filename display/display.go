// Package display enumerates physical displays and correlates them with
// screen-capture sources. The capture API and the display enumeration are
// independent subsystems that can disagree on ordering, so matching a source
// to a display is heuristic; see MatchSource.
package display

import (
	"fmt"
	"image"
	"log"

	"github.com/kbinani/screenshot"
)

// Display describes one physical monitor. Displays are enumerated fresh for
// every capture because monitors can be hot-plugged; never cache a Display
// across capture operations.
type Display struct {
	ID          int
	Bounds      image.Rectangle // OS logical coordinates
	ScaleFactor float64
	Primary     bool
}

// LogicalWidth returns the display width in logical pixels.
func (d Display) LogicalWidth() int { return d.Bounds.Dx() }

// LogicalHeight returns the display height in logical pixels.
func (d Display) LogicalHeight() int { return d.Bounds.Dy() }

// CaptureSource is one enumerated screen-capture handle: an opaque id, a
// human-readable name, a thumbnail and an optional display-correlation hint.
// The hint is platform-dependent and often absent (-1).
type CaptureSource struct {
	ID          string
	Name        string
	Thumbnail   image.Rectangle // thumbnail dimensions; origin is always (0,0)
	DisplayHint int             // correlated display id, or -1 when unknown
}

// Enumerator lists displays. The default implementation reads the OS via
// kbinani/screenshot; tests substitute fixed lists.
type Enumerator func() []Display

// SourceLister enumerates capture sources. Platforms whose capture API has
// its own enumeration replace the default.
type SourceLister func() []CaptureSource

// thumbnailMaxWidth bounds derived thumbnail dimensions.
const thumbnailMaxWidth = 320

// DefaultSources derives one source per display, in display order, with
// the display id as the correlation hint. Capture APIs that enumerate
// independently provide their own lister and usually no hint, which is
// when the later MatchSource heuristics earn their keep.
func DefaultSources(displays []Display) []CaptureSource {
	sources := make([]CaptureSource, 0, len(displays))
	for i, d := range displays {
		name := fmt.Sprintf("Screen %d", i+1)
		if len(displays) == 1 {
			name = "Entire Screen"
		}
		sources = append(sources, CaptureSource{
			ID:          fmt.Sprintf("screen:%d:0", d.ID),
			Name:        name,
			Thumbnail:   thumbnailRect(d.Bounds),
			DisplayHint: d.ID,
		})
	}
	return sources
}

// thumbnailRect scales bounds down to the thumbnail width, preserving
// aspect ratio.
func thumbnailRect(bounds image.Rectangle) image.Rectangle {
	w, h := bounds.Dx(), bounds.Dy()
	if w <= thumbnailMaxWidth || w == 0 {
		return image.Rect(0, 0, w, h)
	}
	scaled := h * thumbnailMaxWidth / w
	return image.Rect(0, 0, thumbnailMaxWidth, scaled)
}

// Enumerate returns all active displays in OS enumeration order. Display 0
// is the OS primary. Scale factor is not exposed by the enumeration API, so
// it defaults to 1 and is refined later from the captured bitmap dimensions.
func Enumerate() []Display {
	n := screenshot.NumActiveDisplays()
	displays := make([]Display, 0, n)
	for i := 0; i < n; i++ {
		displays = append(displays, Display{
			ID:          i,
			Bounds:      screenshot.GetDisplayBounds(i),
			ScaleFactor: 1,
			Primary:     i == 0,
		})
	}
	return displays
}

// Resolve finds the display with the given id. A missing id falls back to
// the first display rather than failing; capture must always proceed.
func Resolve(displays []Display, targetID int) (Display, bool) {
	for _, d := range displays {
		if d.ID == targetID {
			return d, true
		}
	}
	if len(displays) == 0 {
		return Display{}, false
	}
	log.Printf("display: id %d not found, falling back to display %d", targetID, displays[0].ID)
	return displays[0], true
}

// ResolveAt finds the display containing the point, or the nearest display
// when the point is outside every display (e.g. pointer on a just-unplugged
// monitor).
func ResolveAt(displays []Display, pt image.Point) (Display, bool) {
	if len(displays) == 0 {
		return Display{}, false
	}
	for _, d := range displays {
		if pt.In(d.Bounds) {
			return d, true
		}
	}
	best := displays[0]
	bestDist := distanceToRect(pt, best.Bounds)
	for _, d := range displays[1:] {
		if dist := distanceToRect(pt, d.Bounds); dist < bestDist {
			best, bestDist = d, dist
		}
	}
	return best, true
}

func distanceToRect(pt image.Point, r image.Rectangle) int {
	dx := 0
	if pt.X < r.Min.X {
		dx = r.Min.X - pt.X
	} else if pt.X > r.Max.X {
		dx = pt.X - r.Max.X
	}
	dy := 0
	if pt.Y < r.Min.Y {
		dy = r.Min.Y - pt.Y
	} else if pt.Y > r.Max.Y {
		dy = pt.Y - r.Max.Y
	}
	return dx*dx + dy*dy
}
