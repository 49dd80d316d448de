// Package hotkey binds accelerator strings to capture actions and owns the
// OS-level keyboard hook. Bindings persist across restarts through a Store.
package hotkey

import (
	"context"
	"fmt"
	"log"
	"sync"

	gohook "github.com/robotn/gohook"
)

// Action names what a binding triggers.
type Action string

const (
	ActionPrompt   Action = "prompt"
	ActionImage    Action = "image"
	ActionTextgrab Action = "textgrab"
	ActionSpeech   Action = "speech"
	ActionMaster   Action = "master"
)

// Valid reports whether a names a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionPrompt, ActionImage, ActionTextgrab, ActionSpeech, ActionMaster:
		return true
	}
	return false
}

// Store persists bindings. The config package provides the durable
// implementation; tests use an in-memory one.
type Store interface {
	LoadBindings() (map[Action]string, error)
	SaveBindings(map[Action]string) error
}

// EventKind mirrors the subset of hook events the router consumes.
type EventKind int

const (
	KeyDown EventKind = iota
	KeyUp
)

// KeyEvent is one raw keyboard event.
type KeyEvent struct {
	Kind    EventKind
	Rawcode uint16
}

// EventSource delivers raw key events until ctx is done. The default wraps
// the gohook global hook; tests feed synthetic channels.
type EventSource func(ctx context.Context) (<-chan KeyEvent, error)

// Handler receives fired actions. Repeat is true for auto-repeat key-down
// signals of a combo that is already held (only the speech action sees
// those; everything else is edge-triggered).
type Handler func(action Action, repeat bool)

// binding tracks the per-key pressed state of one accelerator.
type binding struct {
	action Action
	acc    Accelerator
	keys   []keyState
}

type keyState struct {
	name     string
	rawcodes []uint16
	pressed  bool
}

// Router exclusive-owns hotkey registrations. Register uses an
// unregister-before-register discipline so an accelerator is never bound to
// two actions at once.
type Router struct {
	mu       sync.Mutex
	bindings map[Action]*binding
	store    Store
	source   EventSource
	handler  Handler
	running  bool
}

// NewRouter creates a router that persists through store and listens via
// source (nil means the gohook-backed default).
func NewRouter(store Store, source EventSource, handler Handler) *Router {
	if source == nil {
		source = gohookSource
	}
	return &Router{
		bindings: make(map[Action]*binding),
		store:    store,
		source:   source,
		handler:  handler,
	}
}

// Restore re-registers all persisted bindings at startup. Individual
// failures are logged and skipped; one bad accelerator must not take down
// the rest.
func (r *Router) Restore() {
	if r.store == nil {
		return
	}
	saved, err := r.store.LoadBindings()
	if err != nil {
		log.Printf("hotkey: failed to load persisted bindings: %v", err)
		return
	}
	for action, accel := range saved {
		if err := r.register(action, accel, false); err != nil {
			log.Printf("hotkey: skipping persisted binding %s=%q: %v", action, accel, err)
		}
	}
}

// Register binds an accelerator to an action and persists the change.
func (r *Router) Register(action Action, accel string) error {
	return r.register(action, accel, true)
}

func (r *Router) register(action Action, accel string, persist bool) error {
	if !action.Valid() {
		return fmt.Errorf("unknown action %q", action)
	}
	acc, err := ParseAccelerator(accel)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Unregister-before-register: drop any binding already using this
	// accelerator, then our own previous one.
	for a, b := range r.bindings {
		if a != action && b.acc.Raw == acc.Raw {
			log.Printf("hotkey: accelerator %q moves from %s to %s", accel, a, action)
			delete(r.bindings, a)
		}
	}
	delete(r.bindings, action)

	states := make([]keyState, 0, len(acc.Keys))
	for _, k := range acc.Keys {
		states = append(states, keyState{name: k, rawcodes: KeyRawcodes(k)})
	}
	r.bindings[action] = &binding{action: action, acc: acc, keys: states}
	log.Printf("hotkey: registered %s -> %q", action, accel)

	if persist {
		return r.persistLocked()
	}
	return nil
}

// Unregister removes an action's binding and persists the removal.
func (r *Router) Unregister(action Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bindings[action]; !ok {
		return nil
	}
	delete(r.bindings, action)
	log.Printf("hotkey: unregistered %s", action)
	return r.persistLocked()
}

// Binding returns the accelerator bound to an action.
func (r *Router) Binding(action Action) (Accelerator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[action]
	if !ok {
		return Accelerator{}, false
	}
	return b.acc, true
}

func (r *Router) persistLocked() error {
	if r.store == nil {
		return nil
	}
	out := make(map[Action]string, len(r.bindings))
	for a, b := range r.bindings {
		out[a] = b.acc.Raw
	}
	return r.store.SaveBindings(out)
}

// Run consumes raw key events until ctx is done. It must be started once.
func (r *Router) Run(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("hotkey router already running")
	}
	r.running = true
	r.mu.Unlock()

	events, err := r.source(ctx)
	if err != nil {
		return fmt.Errorf("start key event source: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.handleEvent(ev)
		}
	}
}

func (r *Router) handleEvent(ev KeyEvent) {
	r.mu.Lock()
	var fired []firedAction
	for _, b := range r.bindings {
		if f, repeat := b.apply(ev); f {
			fired = append(fired, firedAction{b.action, repeat})
		}
	}
	handler := r.handler
	r.mu.Unlock()

	if handler == nil {
		return
	}
	for _, f := range fired {
		handler(f.action, f.repeat)
	}
}

type firedAction struct {
	action Action
	repeat bool
}

// apply updates pressed state for one event and reports whether the binding
// fired. The speech action passes auto-repeat key-downs through (the
// controller needs the raw press stream); other actions are edge-triggered
// and re-arm only after the primary key is released.
func (b *binding) apply(ev KeyEvent) (fired bool, repeat bool) {
	idx := -1
	for i := range b.keys {
		for _, rc := range b.keys[i].rawcodes {
			if ev.Rawcode == rc {
				idx = i
			}
		}
	}
	if idx < 0 {
		return false, false
	}

	ks := &b.keys[idx]
	switch ev.Kind {
	case KeyDown:
		wasPressed := ks.pressed
		ks.pressed = true
		if !b.allPressed() {
			return false, false
		}
		if ks.name != b.acc.Primary {
			// Modifier arriving last never fires; the primary key
			// is the trigger.
			return false, false
		}
		if wasPressed {
			return b.action == ActionSpeech, true
		}
		return true, false
	case KeyUp:
		ks.pressed = false
	}
	return false, false
}

func (b *binding) allPressed() bool {
	for i := range b.keys {
		if !b.keys[i].pressed {
			return false
		}
	}
	return true
}

// gohookSource adapts the global gohook event loop. gohook supports only a
// single Start per process, which is why the router exclusive-owns it.
func gohookSource(ctx context.Context) (<-chan KeyEvent, error) {
	evChan := gohook.Start()
	if evChan == nil {
		return nil, fmt.Errorf("gohook.Start returned nil channel")
	}
	out := make(chan KeyEvent, 16)
	go func() {
		defer close(out)
		defer gohook.End()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-evChan:
				if !ok {
					return
				}
				switch ev.Kind {
				case gohook.KeyDown, gohook.KeyHold:
					out <- KeyEvent{Kind: KeyDown, Rawcode: ev.Rawcode}
				case gohook.KeyUp:
					out <- KeyEvent{Kind: KeyUp, Rawcode: ev.Rawcode}
				}
			}
		}
	}()
	return out, nil
}
