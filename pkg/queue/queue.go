// Package queue implements the Request Queue (spec §4.7, C6): one RQ per
// owning entity id, guaranteeing serial execution of everything submitted
// against that owner, plus a process-wide directory of live RQs.
package queue

import (
	"sync"
	"time"

	"github.com/worldgs/gameserver/pkg/log"
	"github.com/worldgs/gameserver/pkg/metrics"
)

// state is an RQ's lifecycle stage (spec §3's RQ state machine): open
// accepts new work; draining finishes queued work but accepts no more;
// closed has drained fully and unregistered from the directory.
type state int

const (
	stateOpen state = iota
	stateDraining
	stateClosed
)

// item is one unit of work submitted to an RQ.
type item struct {
	tag string
	fn  func()
	cb  func()
}

// RQ serializes execution of everything pushed to it: a single worker
// goroutine drains an internal, unbounded item channel one at a time.
type RQ struct {
	owner string

	mu    sync.Mutex
	st    state
	items chan item

	done chan struct{}
}

// PushOpts controls how a pushed item is handled.
type PushOpts struct {
	// Close flips the RQ to draining as soon as this item is pushed, so
	// later pushes are dropped; once this item and everything queued before
	// it have run, the RQ is closed. The RQ does not remove itself from its
	// Directory.
	Close bool
}

func newRQ(owner string) *RQ {
	rq := &RQ{
		owner: owner,
		items: make(chan item, 1024),
		done:  make(chan struct{}),
	}
	go rq.run()
	return rq
}

func (rq *RQ) run() {
	defer close(rq.done)
	for it := range rq.items {
		timer := metrics.NewTimer()
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithComponent("queue").Error().
						Interface("panic", r).
						Str("owner", rq.owner).
						Str("tag", it.tag).
						Msg("RQ item panicked")
				}
			}()
			it.fn()
		}()
		timer.ObserveDurationVec(metrics.RQProcessingDuration, it.tag)
		metrics.RQDepth.WithLabelValues(rq.owner).Set(float64(len(rq.items)))
		if it.cb != nil {
			it.cb()
		}
	}
}

// Push enqueues fn under tag, invoking cb (if non-nil) after fn returns.
// Push on a draining or closed RQ is a no-op; cb is still invoked so
// callers awaiting completion don't hang.
func (rq *RQ) Push(tag string, fn func(), cb func(), opts PushOpts) {
	rq.mu.Lock()
	if rq.st != stateOpen {
		rq.mu.Unlock()
		if cb != nil {
			cb()
		}
		return
	}
	if opts.Close {
		rq.st = stateDraining
	}
	rq.mu.Unlock()

	metrics.RQDepth.WithLabelValues(rq.owner).Set(float64(len(rq.items) + 1))
	rq.items <- item{tag: tag, fn: fn, cb: cb}

	if opts.Close {
		go rq.finishDraining()
	}
}

// finishDraining closes the item channel once all currently queued items
// have been submitted, allowing the worker goroutine to exit after
// draining them and flipping state to closed.
func (rq *RQ) finishDraining() {
	close(rq.items)
	<-rq.done
	rq.mu.Lock()
	rq.st = stateClosed
	rq.mu.Unlock()
	metrics.RQDepth.DeleteLabelValues(rq.owner)
}

// Closed reports whether the RQ has fully drained and closed.
func (rq *RQ) Closed() bool {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	return rq.st == stateClosed
}

// Owner returns the id this RQ serializes work for.
func (rq *RQ) Owner() string { return rq.owner }

// Directory is the process-wide registry mapping owner id to its RQ.
type Directory struct {
	mu   sync.Mutex
	rqs  map[string]*RQ
}

// NewDirectory constructs an empty RQ directory.
func NewDirectory() *Directory {
	return &Directory{rqs: make(map[string]*RQ)}
}

// Get returns the RQ for owner, creating it on first use.
func (d *Directory) Get(owner string) *RQ {
	d.mu.Lock()
	defer d.mu.Unlock()

	if rq, ok := d.rqs[owner]; ok && !rq.Closed() {
		return rq
	}
	rq := newRQ(owner)
	d.rqs[owner] = rq
	metrics.RQActive.Set(float64(len(d.rqs)))
	return rq
}

// Remove unregisters owner's RQ from the directory (called once it has
// fully closed).
func (d *Directory) Remove(owner string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.rqs, owner)
	metrics.RQActive.Set(float64(len(d.rqs)))
}

// DrainAll pushes a close-tagged item to every currently registered RQ and
// blocks until each has fully drained and closed, for the worker runtime's
// shutdown sequence (spec §4.11: "drain and close all RQs" before RPC is
// shut down).
func (d *Directory) DrainAll() {
	d.mu.Lock()
	rqs := make([]*RQ, 0, len(d.rqs))
	for _, rq := range d.rqs {
		rqs = append(rqs, rq)
	}
	d.mu.Unlock()

	var wg sync.WaitGroup
	for _, rq := range rqs {
		wg.Add(1)
		go func(rq *RQ) {
			defer wg.Done()
			done := make(chan struct{})
			rq.Push("shutdown-drain", func() {}, func() { close(done) }, PushOpts{Close: true})
			<-done
			d.Remove(rq.Owner())
		}(rq)
	}
	wg.Wait()
}

// Len reports how many RQs are currently registered.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rqs)
}

// AverageDepth computes the mean queued-item count across all registered
// RQs, updating the gauge metric, for periodic sampling by the worker
// runtime.
func (d *Directory) AverageDepth() float64 {
	d.mu.Lock()
	rqs := make([]*RQ, 0, len(d.rqs))
	for _, rq := range d.rqs {
		rqs = append(rqs, rq)
	}
	d.mu.Unlock()

	if len(rqs) == 0 {
		metrics.RQAverageDepth.Set(0)
		return 0
	}
	var total int
	for _, rq := range rqs {
		total += len(rq.items)
	}
	avg := float64(total) / float64(len(rqs))
	metrics.RQAverageDepth.Set(avg)
	return avg
}

// sampleInterval is how often a long-lived worker process should call
// AverageDepth to refresh the gauge.
const sampleInterval = 5 * time.Second

// SampleInterval exposes sampleInterval to callers wiring a ticker.
func SampleInterval() time.Duration { return sampleInterval }
