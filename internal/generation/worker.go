// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generation

import (
	"sync"

	"github.com/jeranaias/ochat/internal/provider"
)

// =============================================================================
// WORKER
// =============================================================================

// Worker runs a Controller on its own goroutine for the lifetime of the
// application. It is safe for concurrent use.
type Worker struct {
	ctrl     *Controller
	requests chan request
	queue    *eventQueue
	done     chan struct{}
	stopped  chan struct{}

	closeOnce sync.Once
}

type requestKind int

const (
	requestSubmit requestKind = iota
	requestCancel
)

type request struct {
	kind  requestKind
	req   Request
	reply chan reply
}

type reply struct {
	outcome   Outcome
	cancelled bool
	err       error
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithCompletionHook registers fn to receive a Record for every session.
// fn runs on the session goroutine.
func WithCompletionHook(fn func(Record)) WorkerOption {
	return func(w *Worker) {
		w.ctrl.OnComplete(fn)
	}
}

// NewWorker starts a worker streaming from p.
func NewWorker(p provider.Provider, opts ...WorkerOption) *Worker {
	w := &Worker{
		requests: make(chan request),
		queue:    newEventQueue(),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	w.ctrl = NewController(p, w.queue.push)
	for _, opt := range opts {
		opt(w)
	}

	go w.queue.pump(w.done)
	go w.loop()
	return w
}

// Events returns the channel every event is delivered on. It is closed
// after Close.
func (w *Worker) Events() <-chan Event {
	return w.queue.out
}

// Submit queues req and waits for the controller to accept it.
func (w *Worker) Submit(req Request) (Outcome, error) {
	r, err := w.call(request{kind: requestSubmit, req: req})
	return r.outcome, err
}

// Cancel queues a cancel and reports whether a session was stopped.
func (w *Worker) Cancel() bool {
	r, _ := w.call(request{kind: requestCancel})
	return r.cancelled
}

// Streaming reports whether a session is active.
func (w *Worker) Streaming() bool {
	return w.ctrl.Streaming()
}

// Close cancels any active session and stops the worker. Pending events are
// dropped.
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		<-w.stopped
		w.ctrl.Cancel()
		w.ctrl.Wait()
	})
}

func (w *Worker) call(r request) (reply, error) {
	r.reply = make(chan reply, 1)
	select {
	case w.requests <- r:
	case <-w.done:
		return reply{}, ErrClosed
	}
	select {
	case rep := <-r.reply:
		return rep, rep.err
	case <-w.stopped:
		return reply{}, ErrClosed
	}
}

func (w *Worker) loop() {
	defer close(w.stopped)
	for {
		select {
		case <-w.done:
			return
		case r := <-w.requests:
			var rep reply
			switch r.kind {
			case requestSubmit:
				rep.outcome, rep.err = w.ctrl.Submit(r.req)
			case requestCancel:
				rep.cancelled = w.ctrl.Cancel()
			}
			r.reply <- rep
		}
	}
}

// =============================================================================
// EVENT QUEUE
// =============================================================================

// eventQueue is an unbounded FIFO between session goroutines and the
// consumer. push never blocks, so a cancel cannot wait on a slow reader.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	signal chan struct{}
	out    chan Event
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		signal: make(chan struct{}, 1),
		out:    make(chan Event),
	}
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	ev := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return ev, true
}

func (q *eventQueue) pump(done <-chan struct{}) {
	defer close(q.out)
	for {
		ev, ok := q.pop()
		if !ok {
			select {
			case <-q.signal:
				continue
			case <-done:
				return
			}
		}
		select {
		case q.out <- ev:
		case <-done:
			return
		}
	}
}
