package popup

import (
	"sync"
	"time"
)

// speechController is the subset of the speech state machine the indicator
// drives. Polling pulls state out of the controller instead of the
// controller pushing into a window that may already be disposed.
type speechController interface {
	ShouldStop() bool
	StopAndTranscribe(generation uint64)
	PopupClosed(generation uint64)
}

// stopPollInterval is how often the indicator checks whether the hotkey
// was released.
const stopPollInterval = 150 * time.Millisecond

// SpeechIndicator shows the "recording" popup and polls the controller's
// stop flag while it is open.
type SpeechIndicator struct {
	mgr  *Manager
	ctrl speechController
	poll time.Duration

	mu     sync.Mutex
	cancel chan struct{}
}

// NewSpeechIndicator wires the indicator to a popup manager and controller.
func NewSpeechIndicator(mgr *Manager, ctrl speechController) *SpeechIndicator {
	return &SpeechIndicator{mgr: mgr, ctrl: ctrl, poll: stopPollInterval}
}

// Open shows the recording popup for one generation and starts the stop
// poll. Implements the controller's Indicator contract.
func (s *SpeechIndicator) Open(generation uint64) error {
	if err := s.mgr.Show(KindSpeech, "Recording... release the hotkey to stop"); err != nil {
		return err
	}

	s.mu.Lock()
	if s.cancel != nil {
		close(s.cancel)
	}
	cancel := make(chan struct{})
	s.cancel = cancel
	s.mu.Unlock()

	go s.pollLoop(generation, cancel)
	return nil
}

func (s *SpeechIndicator) pollLoop(generation uint64, cancel chan struct{}) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		select {
		case <-cancel:
			return
		case <-ticker.C:
			if s.ctrl.ShouldStop() {
				s.ctrl.StopAndTranscribe(generation)
				return
			}
			if !s.mgr.Visible() {
				// The window went away without a stop: forced close.
				s.ctrl.PopupClosed(generation)
				return
			}
		}
	}
}

// Close tears down the popup and the poll loop.
func (s *SpeechIndicator) Close() {
	s.mu.Lock()
	if s.cancel != nil {
		close(s.cancel)
		s.cancel = nil
	}
	s.mu.Unlock()
	s.mgr.Close()
}

// Visible reports whether the recording popup is still on screen.
func (s *SpeechIndicator) Visible() bool {
	return s.mgr.Visible()
}
