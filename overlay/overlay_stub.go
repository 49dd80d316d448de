//go:build !windows

package overlay

import (
	"context"
	"fmt"

	"snip-assist/coords"
	"snip-assist/display"
)

type stubSelector struct{}

func newPlatformSelector() Selector { return &stubSelector{} }

func (s *stubSelector) Select(ctx context.Context, disp display.Display) (coords.Rect, bool, error) {
	return coords.Rect{}, false, fmt.Errorf("region selection not supported on this platform")
}
