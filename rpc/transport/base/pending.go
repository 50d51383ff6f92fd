package base

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/gamelink/rpc/common"
	"github.com/puzpuzpuz/xsync/v3"
	"sync/atomic"
)

// responseResult contains the result of a request
type responseResult struct {
	data json.RawMessage
	err  error
}

// pendingRequest is the table entry of one in-flight request
type pendingRequest struct {
	respCh chan responseResult // buffered (1), written exactly once
}

// pendingTable maps correlation ids to in-flight requests.
//
// Every operation is non-blocking: resolving removes the entry with
// LoadAndDelete and hands the result to a buffered channel, so only the
// first of resolve, expire and cancelAll delivers a result and the others are no-ops.
type pendingTable struct {
	requests *xsync.MapOf[string, *pendingRequest]
	closed   atomic.Bool
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		requests: xsync.NewMapOf[string, *pendingRequest](),
	}
}

// register inserts a new pending request for id and returns the channel the
// caller waits on
func (p *pendingTable) register(id string) (<-chan responseResult, error) {
	if p.closed.Load() {
		return nil, common.ErrConnectionClosed
	}

	pr := &pendingRequest{
		respCh: make(chan responseResult, 1),
	}
	if _, loaded := p.requests.LoadOrStore(id, pr); loaded {
		return nil, fmt.Errorf("%w: %s", common.ErrDuplicateRequestID, id)
	}

	// cancelAll may have run between the check above and the store
	if p.closed.Load() {
		p.resolve(id, responseResult{err: common.ErrConnectionClosed})
	}

	return pr.respCh, nil
}

// resolve removes the entry for id and delivers the result. Unknown ids (late,
// duplicate or already expired responses) are ignored. It returns whether a
// pending request was resolved.
func (p *pendingTable) resolve(id string, result responseResult) bool {
	pr, ok := p.requests.LoadAndDelete(id)
	if !ok {
		return false
	}
	pr.respCh <- result
	return true
}

// expire resolves id with a timeout error. It returns false when a response won the race.
func (p *pendingTable) expire(id string) bool {
	return p.resolve(id, responseResult{err: common.ErrRequestTimeout})
}

// cancelAll fails every pending request with err and refuses new registrations.
// It returns the number of cancelled requests.
func (p *pendingTable) cancelAll(err error) int {
	p.closed.Store(true)

	cancelled := 0
	p.requests.Range(func(id string, _ *pendingRequest) bool {
		if p.resolve(id, responseResult{err: err}) {
			cancelled++
		}
		return true
	})
	return cancelled
}

// size returns the number of pending requests
func (p *pendingTable) size() int {
	return p.requests.Size()
}
