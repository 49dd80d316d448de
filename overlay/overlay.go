// Package overlay shows the full-screen selection window. Select blocks
// on the event-loop goroutine until the user drags a rectangle or cancels.
package overlay

import (
	"context"

	"snip-assist/coords"
	"snip-assist/display"
)

// Selector runs one region selection over the given display. Returns the
// selected rectangle in CSS pixels relative to the display origin,
// cancelled=true if the user pressed ESC or closed the overlay without
// answering, or an error if the overlay could not open. Must be called
// from the event-loop goroutine only.
type Selector interface {
	Select(ctx context.Context, disp display.Display) (coords.Rect, bool, error)
}

// NewSelector returns the platform implementation.
func NewSelector() Selector {
	return newPlatformSelector()
}
