package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// maxRecording bounds the buffer; a hold-to-record clip longer than this
// keeps only the most recent audio.
const maxRecording = 2 * time.Minute

// provisionalRate sizes the ring buffer before the device reports its
// actual rate. Oversizing only raises the retention ceiling.
const provisionalRate = 48000

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
)

// Source starts the platform microphone stream at the requested rate and
// reports the actual device rate. It feeds samples to the callback until
// ctx is cancelled. The windows build talks to WASAPI; tests inject a
// synthetic source.
type Source func(ctx context.Context, wantRate int, cb func(samples []float32)) (actualRate int, err error)

// Recorder accumulates one microphone take into a ring buffer and hands it
// out resampled to TargetSampleRate.
type Recorder struct {
	mu      sync.Mutex
	source  Source
	buf     *RingBuffer
	rate    int
	active  bool
	written int
	cancel  context.CancelFunc
}

// NewRecorder builds a recorder over the given source. A nil source uses
// the platform default.
func NewRecorder(source Source) *Recorder {
	if source == nil {
		source = platformSource
	}
	return &Recorder{source: source}
}

// Start opens the microphone stream and begins buffering.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.active {
		r.mu.Unlock()
		return ErrAlreadyRecording
	}

	// The device can deliver callbacks before the open call returns, so
	// the buffer has to exist first. It is sized for the fastest common
	// device rate; the rate is corrected once the stream reports it.
	ctx, cancel := context.WithCancel(ctx)
	r.buf = NewRingBuffer(int(maxRecording.Seconds()) * provisionalRate)
	r.rate = TargetSampleRate
	r.written = 0
	r.active = true
	r.cancel = cancel
	r.mu.Unlock()

	rate, err := r.source(ctx, TargetSampleRate, r.append)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		cancel()
		r.active = false
		r.cancel = nil
		r.buf = nil
		return fmt.Errorf("open microphone: %w", err)
	}
	if rate > 0 {
		r.rate = rate
	}
	return nil
}

func (r *Recorder) append(samples []float32) {
	r.mu.Lock()
	buf := r.buf
	active := r.active
	if active {
		r.written += len(samples)
	}
	r.mu.Unlock()
	if active && buf != nil {
		buf.Write(samples)
	}
}

// Stop closes the stream and returns everything captured, resampled to
// TargetSampleRate.
func (r *Recorder) Stop() ([]float32, int, error) {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return nil, 0, ErrNotRecording
	}
	r.active = false
	cancel := r.cancel
	r.cancel = nil
	buf := r.buf
	rate := r.rate
	n := r.written
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	samples := buf.Read(n)
	return Resample(samples, rate, TargetSampleRate), TargetSampleRate, nil
}
