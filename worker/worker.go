// Package worker implements spec §4.7 (C7): a single dedicated worker that
// owns all vault state, processing submitted operations one at a time in
// the order they were submitted (spec §5's total-ordering guarantee).
//
// Grounded on api/rio/rioCmds.go's Monitor/Event channel idiom for how the
// caller observes progress asynchronously, and on cmd/rio/main.go's
// CancelOnInterrupt goroutine for the signal-driven shutdown idiom adapted
// here into Close. Spec §4.7's "dedicated thread" maps onto a single
// goroutine: Go's scheduler already guarantees a goroutine never runs
// concurrently with itself, which is all "single worker of execution"
// requires -- no OS thread pinning is needed or attempted.
package worker

import (
	"github.com/polydawn/vault/events"
)

// Request is one submitted operation: Run performs the work and reports
// progress/done/error through mon, which the worker hands it pre-wired to
// the caller's channel.
type Request struct {
	Op  events.Operation
	Run func(mon events.Monitor)
}

// Worker is a single-goroutine serial executor. Zero value is not usable;
// construct with New.
type Worker struct {
	reqs chan Request
	mon  events.Monitor
	done chan struct{}
}

// New starts the worker goroutine, wiring every submitted Request's Run to
// mon. On Linux, capabilities are dropped to the minimum this long-lived
// goroutine needs, mirroring caps/caps.go's capability-awareness but
// actively applying a drop instead of merely querying (see caps_linux.go).
func New(mon events.Monitor) *Worker {
	dropCapabilities()
	w := &Worker{
		reqs: make(chan Request, 16),
		mon:  mon,
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer close(w.done)
	for req := range w.reqs {
		req.Run(w.mon)
	}
}

// Submit enqueues req. It never blocks the caller on the operation's
// completion -- only on queue capacity, same as api/rio's async Monitor
// contract. A request submitted while one is running is simply queued,
// per spec §4.7.
func (w *Worker) Submit(req Request) {
	w.reqs <- req
}

// Close stops accepting new requests and waits for the queue to drain and
// the worker goroutine to exit.
func (w *Worker) Close() {
	close(w.reqs)
	<-w.done
}
