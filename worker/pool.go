// Package worker runs analyzer jobs off the event-loop goroutine. The input
// queue has a single slot: a second job submitted while one is queued is
// rejected instead of piling up behind a slow backend.
package worker

import (
	"context"
	"log"
	"sync"

	"snip-assist/dispatch"
)

// ResultCallback receives the finished envelope on a worker goroutine. The
// event loop passes a closure that posts the result back onto its own
// channel.
type ResultCallback func(resp dispatch.Response)

type job struct {
	ctx context.Context
	req dispatch.Request
	cb  ResultCallback
}

// Pool is a fixed-size analyzer pool with strict backpressure.
type Pool struct {
	jobs       chan job
	wg         sync.WaitGroup
	dispatcher *dispatch.Dispatcher
}

// New creates the pool. Analyzer backends are either network-bound or hold
// a process-wide engine, so size defaults to 1.
func New(d *dispatch.Dispatcher, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{jobs: make(chan job, 1), dispatcher: d}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for j := range p.jobs {
		resp := p.dispatcher.Dispatch(j.ctx, j.req)
		if j.ctx.Err() != nil {
			// The session that wanted this result is gone; discard
			// quietly.
			log.Printf("worker: discarding %s result for cancelled job", j.req.Kind)
			continue
		}
		j.cb(resp)
	}
}

// Submit enqueues a job if the queue slot is free. Returns false when the
// job was dropped.
func (p *Pool) Submit(ctx context.Context, req dispatch.Request, cb ResultCallback) bool {
	select {
	case p.jobs <- job{ctx: ctx, req: req, cb: cb}:
		return true
	default:
		log.Printf("worker: queue full, dropping %s job", req.Kind)
		return false
	}
}

// Close drains current work and stops the workers.
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}
