// Package speech implements hold-to-record capture. The global hotkey layer
// only delivers key-down signals, so release is detected out of band by a
// keystate watcher, and the recording popup polls a should-stop flag instead
// of receiving a push event that could target an already-disposed window.
package speech

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"snip-assist/keystate"
)

// Phase is the controller's lifecycle state.
type Phase int

const (
	Idle Phase = iota
	Recording
	Transcribing
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Transcribing:
		return "transcribing"
	}
	return "unknown"
}

// Recorder captures microphone audio between Start and Stop.
type Recorder interface {
	Start(ctx context.Context) error
	// Stop returns the captured samples and their native sample rate.
	Stop() (samples []float32, sampleRate int, err error)
}

// TranscribeFunc turns PCM samples into text.
type TranscribeFunc func(ctx context.Context, samples []float32, sampleRate int) (string, error)

// DeliverFunc hands finished text back to the previously focused window.
type DeliverFunc func(text string) error

// Indicator is the recording popup. It polls ShouldStop on its own timer and
// calls StopAndTranscribe / PopupClosed with the generation it was opened
// with.
type Indicator interface {
	Open(generation uint64) error
	Close()
	Visible() bool
}

const transcribeTimeout = 60 * time.Second

// Controller is the hold-to-record state machine. All state mutations
// happen under one mutex; the generation counter keeps callbacks from
// replaced popups away from newer sessions.
type Controller struct {
	mu         sync.Mutex
	phase      Phase
	shouldStop bool
	generation uint64
	cancel     context.CancelFunc

	rec        Recorder
	transcribe TranscribeFunc
	deliver    DeliverFunc
	indicator  Indicator
	watcher    *keystate.Watcher
	timeout    time.Duration
}

// NewController wires the controller. watcher may be nil when release
// watching is handled elsewhere (tests drive RequestStop directly).
func NewController(rec Recorder, transcribe TranscribeFunc, deliver DeliverFunc, indicator Indicator, watcher *keystate.Watcher) *Controller {
	return &Controller{
		rec:        rec,
		transcribe: transcribe,
		deliver:    deliver,
		indicator:  indicator,
		watcher:    watcher,
		timeout:    transcribeTimeout,
	}
}

// Phase returns the current lifecycle state.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Generation returns the current popup generation.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Press handles a speech hotkey signal. The first press starts a recording;
// auto-repeat signals while recording are ignored. If internal state says
// recording but the popup is gone, the state is stale (forced close, crash)
// and the press resets it before starting fresh. combo lists the rawcode
// alternatives of every key in the accelerator, for the release watcher.
func (c *Controller) Press(combo [][]uint16, repeat bool) error {
	c.mu.Lock()

	if c.phase != Idle {
		if c.indicator != nil && !c.indicator.Visible() {
			log.Printf("speech: state says %s but popup is gone, resetting", c.phase)
			c.resetLocked()
		} else {
			c.mu.Unlock()
			return nil
		}
	}
	if repeat {
		// Reaching here Idle with a repeat flag means the hook missed
		// the KeyUp: the press is physically fresh, so it still starts.
		// Genuine auto-repeat during a recording returns above.
		log.Printf("speech: repeat-flagged press while idle, starting anyway")
	}

	c.generation++
	gen := c.generation
	c.shouldStop = false
	c.phase = Recording

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	if err := c.rec.Start(ctx); err != nil {
		c.mu.Lock()
		if gen == c.generation {
			c.resetLocked()
		}
		c.mu.Unlock()
		return fmt.Errorf("start recording: %w", err)
	}

	if c.indicator != nil {
		if err := c.indicator.Open(gen); err != nil {
			log.Printf("speech: open recording popup: %v", err)
		}
	}
	if c.watcher != nil && len(combo) > 0 {
		c.watcher.WatchRelease(ctx, combo, func() { c.RequestStop(gen) })
	}
	log.Printf("speech: recording started, generation %d", gen)
	return nil
}

// RequestStop raises the should-stop flag. Stale generations are ignored.
func (c *Controller) RequestStop(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation || c.phase != Recording {
		return
	}
	c.shouldStop = true
}

// ShouldStop reports and clears the stop flag. The popup polls this.
func (c *Controller) ShouldStop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := c.shouldStop
	c.shouldStop = false
	return v
}

// StopAndTranscribe finishes the recording for the given generation: stops
// the recorder, transcribes asynchronously and delivers the text. The popup
// calls this after observing ShouldStop. A safety timer bounds the
// transcription so a hung backend cannot pin the controller in
// Transcribing forever.
func (c *Controller) StopAndTranscribe(generation uint64) {
	c.mu.Lock()
	if generation != c.generation || c.phase != Recording {
		c.mu.Unlock()
		return
	}
	c.phase = Transcribing
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	timeout := c.timeout
	c.mu.Unlock()

	samples, rate, err := c.rec.Stop()
	if err != nil {
		log.Printf("speech: stop recording: %v", err)
		c.finish(generation)
		return
	}
	if len(samples) == 0 {
		log.Printf("speech: recording produced no samples")
		c.finish(generation)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		text, err := c.transcribe(ctx, samples, rate)
		if err != nil {
			log.Printf("speech: transcription failed: %v", err)
			c.finish(generation)
			return
		}
		// Reset state before delivery so the next press does not have
		// to wait on the paste teardown.
		c.finish(generation)
		if text != "" && c.deliver != nil {
			if err := c.deliver(text); err != nil {
				log.Printf("speech: deliver transcript: %v", err)
			}
		}
	}()
}

// PopupClosed resets state when the popup for the given generation goes
// away mid-recording. Close events from replaced popups carry an old
// generation and do nothing.
func (c *Controller) PopupClosed(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if generation != c.generation {
		return
	}
	if c.phase == Recording {
		log.Printf("speech: popup closed mid-recording, discarding generation %d", generation)
		if _, _, err := c.stopRecorderLocked(); err != nil {
			log.Printf("speech: stop recording on popup close: %v", err)
		}
		c.resetLocked()
	}
}

func (c *Controller) finish(generation uint64) {
	c.mu.Lock()
	if generation != c.generation {
		c.mu.Unlock()
		return
	}
	c.resetLocked()
	indicator := c.indicator
	c.mu.Unlock()
	if indicator != nil {
		indicator.Close()
	}
}

func (c *Controller) stopRecorderLocked() ([]float32, int, error) {
	if c.rec == nil {
		return nil, 0, nil
	}
	return c.rec.Stop()
}

func (c *Controller) resetLocked() {
	c.phase = Idle
	c.shouldStop = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
