// Package popup owns the transient result windows. At most one popup of any
// kind exists at a time; opening a new one tears down the previous first so
// always-on-top windows cannot accumulate.
package popup

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Kind classifies a popup window.
type Kind int

const (
	KindResult Kind = iota
	KindPicker
	KindSpeech
)

func (k Kind) String() string {
	switch k {
	case KindResult:
		return "result"
	case KindPicker:
		return "picker"
	case KindSpeech:
		return "speech"
	}
	return "unknown"
}

// Window is one live popup.
type Window interface {
	Close()
	Alive() bool
}

// Presenter creates platform windows. Tests inject fakes.
type Presenter interface {
	Present(kind Kind, text string) (Window, error)
}

// openDelay lets a closing window finish tearing down before the next one
// appears; overlapping always-on-top windows glitch focus.
const openDelay = 50 * time.Millisecond

// Manager serializes popup lifecycle.
type Manager struct {
	mu        sync.Mutex
	presenter Presenter
	current   Window
	delay     time.Duration
}

// NewManager builds a manager over the given presenter. A nil presenter
// uses the platform default.
func NewManager(p Presenter) *Manager {
	if p == nil {
		p = newPlatformPresenter()
	}
	return &Manager{presenter: p, delay: openDelay}
}

// Show closes any existing popup and opens a new one.
func (m *Manager) Show(kind Kind, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.Close()
		m.current = nil
		time.Sleep(m.delay)
	}

	w, err := m.presenter.Present(kind, text)
	if err != nil {
		return fmt.Errorf("open %s popup: %w", kind, err)
	}
	m.current = w
	log.Printf("popup: opened %s (%d chars)", kind, len(text))
	return nil
}

// Close tears down the current popup if any.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
}

// Visible reports whether a popup is currently alive.
func (m *Manager) Visible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && m.current.Alive()
}
