package client

import (
	"context"
	"runtime"
	"sync"

	"github.com/example/livekv"
)

// ResponseHandle is a lazy, ordered stream of result sets for a single
// Get or Watch call. A Get handle yields exactly one value; a Watch
// handle yields one value per matching insert (plus an initial
// snapshot) until Close is called.
//
// Go has no deterministic destructors, so the tear-down contract —
// dropping a handle must UNWATCH — cannot be enforced purely by scope
// exit. Close does it explicitly; a finalizer is registered as a
// backstop for callers that forget, so a leaked handle still converges
// to a torn-down server-side watch once it is garbage collected.
type ResponseHandle struct {
	client  *Client
	queryID string
	inbox   <-chan []livekv.KVPair
	closed  chan struct{}

	once sync.Once
}

func newResponseHandle(c *Client, queryID string, inbox <-chan []livekv.KVPair) *ResponseHandle {
	h := &ResponseHandle{client: c, queryID: queryID, inbox: inbox, closed: make(chan struct{})}
	runtime.SetFinalizer(h, func(h *ResponseHandle) { h.Close() })
	return h
}

// Recv blocks until the next result set arrives, ctx is done, the
// handle is closed (ErrHandleClosed), or the client's connection ends
// (ErrClientClosed).
func (h *ResponseHandle) Recv(ctx context.Context) ([]livekv.KVPair, error) {
	select {
	case res := <-h.inbox:
		return res, nil
	case <-h.closed:
		return nil, livekv.ErrHandleClosed
	case <-h.client.readDone:
		select {
		case res := <-h.inbox:
			return res, nil
		default:
		}
		return nil, livekv.ErrClientClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close sends UNWATCH and removes this handle's subscription. It is
// safe to call more than once and safe to call concurrently with Recv.
func (h *ResponseHandle) Close() error {
	h.once.Do(func() {
		runtime.SetFinalizer(h, nil)
		h.client.unwatch(h.queryID)
		close(h.closed)
	})
	return nil
}
