//go:build !windows

package popup

import (
	"log"
	"sync/atomic"
)

type stubPresenter struct{}

func newPlatformPresenter() Presenter { return &stubPresenter{} }

type stubWindow struct {
	alive atomic.Bool
}

func (w *stubWindow) Close()      { w.alive.Store(false) }
func (w *stubWindow) Alive() bool { return w.alive.Load() }

// Present logs the text instead of opening a window.
func (p *stubPresenter) Present(kind Kind, text string) (Window, error) {
	log.Printf("popup(%s): %s", kind, text)
	w := &stubWindow{}
	w.alive.Store(true)
	return w, nil
}
