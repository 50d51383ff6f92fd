package base

import (
	"fmt"
	"github.com/ValentinKolb/gamelink/rpc/common"
	"slices"
	"sync"
)

// --------------------------------------------------------------------------
// Event Dispatcher
// --------------------------------------------------------------------------

// eventDispatcher holds the registered event handlers in registration order.
// The handler slice is copied on write, so dispatch works on a stable snapshot
// without holding the lock while handlers run.
type eventDispatcher struct {
	mu       sync.RWMutex
	handlers []common.EventHandler

	// onFailure is called for every handler that failed (optional)
	onFailure func(ev common.Event, err error)
}

// register appends handler to the observer list
func (d *eventDispatcher) register(handler common.EventHandler) {
	if handler == nil {
		return
	}
	d.mu.Lock()
	d.handlers = append(slices.Clip(d.handlers), handler)
	d.mu.Unlock()
}

// reset drops all handlers
func (d *eventDispatcher) reset() {
	d.mu.Lock()
	d.handlers = nil
	d.mu.Unlock()
}

// count returns the number of registered handlers
func (d *eventDispatcher) count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// dispatch calls every handler with ev in registration order. A failing handler
// is logged and skipped. It returns the number of failed handlers.
func (d *eventDispatcher) dispatch(ev common.Event) int {
	d.mu.RLock()
	handlers := d.handlers
	d.mu.RUnlock()

	failed := 0
	for i, handler := range handlers {
		if err := invokeHandler(handler, ev); err != nil {
			failed++
			Logger.Errorf("Event handler %d failed for event %s: %v", i, ev.Name, err)
			if d.onFailure != nil {
				d.onFailure(ev, err)
			}
		}
	}
	return failed
}

// invokeHandler runs one handler and turns a panic into an error
func invokeHandler(handler common.EventHandler, ev common.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(ev)
}

// --------------------------------------------------------------------------
// Event Queue
// --------------------------------------------------------------------------

// eventQueue is an unbounded FIFO between the receive loop (producer) and the
// dispatch goroutine (consumer). push never blocks, so slow handlers cannot
// stall reading from the connection.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []common.Event
	closed bool
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends ev. It returns false if the queue is closed.
func (q *eventQueue) push(ev common.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, ev)
	q.cond.Signal()
	return true
}

// pop blocks until an event is available. It returns false once the queue is
// closed and drained.
func (q *eventQueue) pop() (common.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return common.Event{}, false
	}

	ev := q.items[0]
	q.items[0] = common.Event{} // help go gc
	q.items = q.items[1:]
	return ev, true
}

// close prevents further pushes. Events already queued are still returned by pop.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// len returns the number of queued events
func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
