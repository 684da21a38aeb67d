// Package client implements the client-side correlator (C7): it
// multiplexes Response frames by query_id over a single persistent
// WebSocket connection, and guarantees that dropping a subscription
// handle tears the matching server-side watch down.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/livekv"
)

type subscription struct {
	persistent bool
	inbox      chan []livekv.KVPair
}

// Client is a single persistent connection to a livekv server. It is
// safe for concurrent use: Insert, Get, and Watch may be called from
// any number of goroutines.
type Client struct {
	conn *websocket.Conn
	log  *zap.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	subs   map[string]*subscription
	closed bool

	readDone chan struct{}
}

// Dial opens a WebSocket connection to url and starts the response
// reader. url should be a ws:// or wss:// URL, e.g. "ws://host:3990/".
func Dial(ctx context.Context, url string, log *zap.Logger) (*Client, error) {
	return DialWithDialer(ctx, websocket.DefaultDialer, url, log)
}

// DialWithDialer is Dial with an explicit *websocket.Dialer, so callers
// can route the connection through something other than a real TCP dial —
// an in-process net.Pipe transport in tests (see internal/memtransport),
// or a dialer carrying TLS/proxy settings in production.
func DialWithDialer(ctx context.Context, dialer *websocket.Dialer, url string, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", url, err)
	}

	c := &Client{
		conn:     conn,
		log:      log,
		subs:     make(map[string]*subscription),
		readDone: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Insert sends an INSERT query for key/value. The server never responds
// to an insert, so this returns as soon as the frame is written.
func (c *Client) Insert(key string, value json.RawMessage) error {
	q := livekv.Query{
		QueryID:   uuid.NewString(),
		QueryType: livekv.InsertQuery(key, value),
	}
	return c.send(q)
}

// Get sends a one-shot GET query and returns a handle that yields
// exactly one result set.
func (c *Client) Get(sel livekv.Selector) (*ResponseHandle, error) {
	return c.open(sel, false, livekv.GetQuery(sel))
}

// Watch sends a WATCH query and returns a handle that yields an
// unbounded, non-restartable stream of result sets: one immediately
// (the snapshot), then one per matching insert until the handle is
// closed.
func (c *Client) Watch(sel livekv.Selector) (*ResponseHandle, error) {
	return c.open(sel, true, livekv.WatchQuery(sel))
}

func (c *Client) open(sel livekv.Selector, persistent bool, qt livekv.QueryType) (*ResponseHandle, error) {
	queryID := uuid.NewString()
	sub := &subscription{persistent: persistent, inbox: make(chan []livekv.KVPair, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, livekv.ErrClientClosed
	}
	c.subs[queryID] = sub
	c.mu.Unlock()

	q := livekv.Query{QueryID: queryID, QueryType: qt}
	if err := c.send(q); err != nil {
		c.mu.Lock()
		delete(c.subs, queryID)
		c.mu.Unlock()
		return nil, err
	}

	h := newResponseHandle(c, queryID, sub.inbox)
	return h, nil
}

func (c *Client) send(q livekv.Query) error {
	frame, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("client: encode query: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return livekv.ErrClientClosed
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("client: write: %w", err)
	}
	return nil
}

// unwatch sends an UNWATCH for queryID and removes its local
// subscription, regardless of whether the subscription was a get or a
// watch (UNWATCH on a one-shot get is a harmless server-side no-op).
func (c *Client) unwatch(queryID string) {
	c.mu.Lock()
	delete(c.subs, queryID)
	c.mu.Unlock()

	_ = c.send(livekv.Query{
		QueryID:   queryID,
		QueryType: livekv.UnwatchQuery(),
	})
}

// readLoop decodes inbound Response frames and dispatches query_res to
// the matching subscription's inbox: deliver if present, and drop a
// non-persistent entry from the map just before the delivery attempt.
//
// A persistent (watch) subscription whose inbox is full is logged and
// left registered rather than removed — an adaptation from the literal
// dispatch rule, recorded as an Open Question resolution in DESIGN.md,
// since a Go channel send failure cannot distinguish "receiver
// permanently gone" from "receiver momentarily slow" the way a dropped
// Rust mpsc::Sender can.
func (c *Client) readLoop() {
	defer close(c.readDone)
	defer c.markClosed()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var resp livekv.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			c.log.Info("discarding malformed response frame", zap.Error(err))
			continue
		}

		c.mu.Lock()
		sub, ok := c.subs[resp.QueryID]
		if ok && !sub.persistent {
			delete(c.subs, resp.QueryID)
		}
		c.mu.Unlock()

		if !ok {
			continue
		}

		select {
		case sub.inbox <- resp.QueryRes:
		default:
			// Receiver is not keeping up or is gone; the entry was
			// already removed above if non-persistent. A persistent
			// (watch) subscriber that falls behind simply misses this
			// update rather than blocking the reader.
			c.log.Warn("dropping response, receiver not ready", zap.String("query_id", resp.QueryID))
		}
	}
}

func (c *Client) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Close closes the underlying connection and unblocks any pending
// ResponseHandle.Recv calls with ErrClientClosed.
func (c *Client) Close() error {
	c.markClosed()
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("client: close: %w", err)
	}
	<-c.readDone
	return nil
}
