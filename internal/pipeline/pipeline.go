// Package pipeline implements an ordered, bounded, parallel map: a single
// producer feeds inputs to N worker goroutines, and a sink callback
// observes their outputs strictly in the order the inputs were written,
// regardless of which worker finished first.
package pipeline

import (
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrFinalized is returned by Write once Finalize has been called.
var ErrFinalized = errors.New("pipeline: write after finalize")

// ProcessFunc is run by a worker for each input, against that worker's own
// State. It must be safe to call concurrently with other workers' calls
// against their own State values.
type ProcessFunc[State, In, Out any] func(state *State, input In) (Out, error)

// SinkFunc observes each output exactly once, strictly in write order, on
// the caller's thread (inside Write, Poll or Finalize). It must not call back into
// the pipeline.
type SinkFunc[Ctx, Out any] func(ctx *Ctx, output Out) error

type job[In any] struct {
	index int
	input In
}

type result[Out any] struct {
	index  int
	output Out
	err    error
}

// Pipeline is the ordered bounded parallel map described above. The zero
// value is not usable; construct with New.
type Pipeline[In, Out, Ctx, State any] struct {
	sinkCtx *Ctx
	sinkFn  SinkFunc[Ctx, Out]

	jobs    chan job[In]
	results chan result[Out]
	wg      sync.WaitGroup

	// inFlight bounds the total number of inputs that have been written
	// but not yet finished processing, to N workers plus bufferBound
	// buffered completions. Write acquires one unit before dispatch;
	// accept releases it as soon as the result is received, independent
	// of delivery order, so a slow head-of-line job can't exhaust the
	// bound with results that are already done but waiting their turn.
	inFlight *semaphore.Weighted

	nextWriteIndex int
	nextSinkIndex  int
	pending        map[int]result[Out]

	finalized bool
}

// New creates a pipeline that will deliver outputs to sinkFn against the
// given sink context.
func New[In, Out, Ctx, State any](sinkCtx *Ctx, sinkFn SinkFunc[Ctx, Out]) *Pipeline[In, Out, Ctx, State] {
	return &Pipeline[In, Out, Ctx, State]{
		sinkCtx: sinkCtx,
		sinkFn:  sinkFn,
		pending: make(map[int]result[Out]),
	}
}

// SpawnWorkers starts n worker goroutines, each seeded with its own copy of
// initValue, running processFn against the input stream. bufferBound sizes
// the results channel: a worker blocks once bufferBound finished outputs
// are waiting to be received by Write, Poll or Finalize; the recommended
// value is 2*n. Outputs already received but still waiting for an earlier
// index are held in a map that has no size limit.
func (p *Pipeline[In, Out, Ctx, State]) SpawnWorkers(n int, bufferBound int, initValue State, processFn ProcessFunc[State, In, Out]) {
	p.jobs = make(chan job[In])
	p.results = make(chan result[Out], bufferBound)
	p.inFlight = semaphore.NewWeighted(int64(n + bufferBound))

	p.wg.Add(n)

	for range n {
		go func() {
			defer p.wg.Done()

			state := initValue

			for j := range p.jobs {
				out, err := processFn(&state, j.input)
				p.results <- result[Out]{index: j.index, output: out, err: err}
			}
		}()
	}
}

// Write enqueues one input, assigning it the next monotonic index. It
// blocks while every worker is busy and does not block while at least one
// worker is idle, since jobs is unbuffered. While every in-flight slot is
// taken, Write receives finished results itself, delivering any that are
// next in order to sinkFn, so a caller that never calls Poll still makes
// progress.
func (p *Pipeline[In, Out, Ctx, State]) Write(input In) error {
	if p.finalized {
		return ErrFinalized
	}

	for !p.inFlight.TryAcquire(1) {
		if err := p.accept(<-p.results); err != nil {
			return err
		}
	}

	idx := p.nextWriteIndex
	p.nextWriteIndex++

	p.jobs <- job[In]{index: idx, input: input}

	return nil
}

// QueueDepth reports how many finished outputs are currently buffered,
// waiting either for their turn in write order or for a Poll/Finalize call
// to deliver them to sinkFn.
func (p *Pipeline[In, Out, Ctx, State]) QueueDepth() int {
	return len(p.results) + len(p.pending)
}

// Poll delivers any outputs that have finished and whose index is next in
// line, without blocking on outputs that have not finished yet.
func (p *Pipeline[In, Out, Ctx, State]) Poll() error {
	for {
		select {
		case res, ok := <-p.results:
			if !ok {
				return nil
			}

			if err := p.accept(res); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// Finalize signals termination to all workers, blocks until every
// remaining output has been delivered in order, joins all workers, and
// returns the accumulated sink context.
func (p *Pipeline[In, Out, Ctx, State]) Finalize() (*Ctx, error) {
	p.finalized = true

	close(p.jobs)

	go func() {
		p.wg.Wait()
		close(p.results)
	}()

	for res := range p.results {
		if err := p.accept(res); err != nil {
			return p.sinkCtx, err
		}
	}

	return p.sinkCtx, nil
}

// accept releases the in-flight slot res occupied, since a finished job no
// longer needs a worker, then buffers res and flushes every contiguous run
// starting at nextSinkIndex through sinkFn, in order. Releasing here rather
// than at delivery keeps the bound tracking outstanding writes, not
// undelivered results, so a slow in-order job cannot starve Write of slots
// that fast later jobs have already returned.
func (p *Pipeline[In, Out, Ctx, State]) accept(res result[Out]) error {
	p.inFlight.Release(1)
	p.pending[res.index] = res

	for {
		next, ok := p.pending[p.nextSinkIndex]
		if !ok {
			return nil
		}

		delete(p.pending, p.nextSinkIndex)
		p.nextSinkIndex++

		if next.err != nil {
			return next.err
		}

		if err := p.sinkFn(p.sinkCtx, next.output); err != nil {
			return err
		}
	}
}
