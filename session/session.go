// Package session owns the single in-flight selection: which analyzer was
// requested, the pre-captured screenshot and where the user's rectangle
// landed. At most one session is active per process.
package session

import (
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"snip-assist/capture"
	"snip-assist/coords"
)

var (
	ErrSelectionCancelled = errors.New("selection cancelled")
	ErrNoActiveSession    = errors.New("no active selection session")
	ErrBoundsTooSmall     = errors.New("selection too small")
)

// minSelectionSpan rejects accidental click-drags; anything under 10 logical
// pixels on either axis is discarded.
const minSelectionSpan = 10

// AnalyzerKind selects which backend and result UI a selection is routed to.
type AnalyzerKind string

const (
	KindNone     AnalyzerKind = ""
	KindPrompt   AnalyzerKind = "prompt"
	KindImage    AnalyzerKind = "image"
	KindTextgrab AnalyzerKind = "textgrab"
	KindSpeech   AnalyzerKind = "speech"
)

// Valid reports whether k names a real analyzer.
func (k AnalyzerKind) Valid() bool {
	switch k {
	case KindPrompt, KindImage, KindTextgrab, KindSpeech:
		return true
	}
	return false
}

// Phase is the lifecycle position of the singleton session.
type Phase int

const (
	Idle Phase = iota
	AwaitingSelection
	Resolved
)

func (p Phase) String() string {
	switch p {
	case AwaitingSelection:
		return "awaiting-selection"
	case Resolved:
		return "resolved"
	default:
		return "idle"
	}
}

// Snapshot is a read-only copy of the session fields handed to dispatchers.
type Snapshot struct {
	ID     string
	Kind   AnalyzerKind
	Shot   capture.Shot
	Bounds coords.Rect
	Epoch  uint64
}

// State is the explicitly owned session object. All methods are safe for
// concurrent use, but in practice mutation happens only on the event loop.
type State struct {
	mu sync.Mutex

	phase  Phase
	id     string
	kind   AnalyzerKind
	shot   capture.Shot
	bounds coords.Rect
	epoch  uint64
}

// New returns an idle session state.
func New() *State { return &State{} }

// Begin opens a new session for the given analyzer kind. A session already
// awaiting a selection is superseded: its state is discarded and the epoch
// advances so late callbacks from the old overlay are ignored.
func (s *State) Begin(kind AnalyzerKind) (Snapshot, error) {
	if !kind.Valid() {
		return Snapshot{}, errors.New("unknown analyzer kind")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != Idle {
		log.Printf("session: superseding %s session %s (phase %s)", s.kind, s.id, s.phase)
		s.resetLocked()
	}

	s.phase = AwaitingSelection
	s.id = uuid.NewString()
	s.kind = kind
	s.epoch++
	log.Printf("session: begin %s session %s (epoch %d)", kind, s.id, s.epoch)
	return s.snapshotLocked(), nil
}

// StoreShot attaches the pre-capture screenshot. The epoch guards against a
// capture that finished after its session was superseded.
func (s *State) StoreShot(epoch uint64, shot capture.Shot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == Idle || epoch != s.epoch {
		log.Printf("session: dropping stale screenshot (epoch %d, current %d)", epoch, s.epoch)
		return false
	}
	s.shot = shot
	return true
}

// Resolve records the overlay's selection rectangle and moves the session to
// Resolved. Degenerate rectangles are rejected and the session stays open.
func (s *State) Resolve(epoch uint64, bounds coords.Rect) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != AwaitingSelection || epoch != s.epoch {
		return Snapshot{}, ErrNoActiveSession
	}
	if bounds.Width < minSelectionSpan || bounds.Height < minSelectionSpan {
		return Snapshot{}, ErrBoundsTooSmall
	}

	s.phase = Resolved
	s.bounds = bounds
	return s.snapshotLocked(), nil
}

// Cancel aborts an in-flight selection. Cancelling an idle session is a
// no-op; a stale overlay close must not disturb a newer session.
func (s *State) Cancel(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == Idle || epoch != s.epoch {
		return
	}
	log.Printf("session: cancelled %s session %s", s.kind, s.id)
	s.resetLocked()
}

// Clear resets every field once an analyzer finishes or fails. Safe to call
// repeatedly.
func (s *State) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

// Phase returns the current lifecycle phase.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Epoch returns the current epoch token. Continuations capture it and pass
// it back so stale callbacks can be detected.
func (s *State) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// StoredShot returns the pre-captured screenshot, if any.
func (s *State) StoredShot() (capture.Shot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shot, len(s.shot.JPEG) > 0
}

// Snapshot returns a copy of the current session fields.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		ID:     s.id,
		Kind:   s.kind,
		Shot:   s.shot,
		Bounds: s.bounds,
		Epoch:  s.epoch,
	}
}

func (s *State) resetLocked() {
	s.phase = Idle
	s.id = ""
	s.kind = KindNone
	s.shot = capture.Shot{}
	s.bounds = coords.Rect{}
}
