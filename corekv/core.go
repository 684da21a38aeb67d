// Package corekv implements the event-loop core (C4): the single
// serialized consumer that owns the client table, the watch table, and
// the database, and performs every mutation and every outbound response.
package corekv

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/example/livekv"
	"github.com/example/livekv/internal/eventqueue"
	"github.com/example/livekv/procset"
	"github.com/example/livekv/storekv"
)

// ClientID identifies a live connection, assigned by the connection
// reader (C3) on accept.
type ClientID string

// Writer is the raw transport write surface the core holds per client.
// It does not know about JSON: encode failures and write failures are
// handled differently by the core (see respond), so this interface only
// ever sees already-encoded bytes.
type Writer interface {
	Write(frame []byte) error
	Close() error
}

// MatchMode selects how a procedure watch is matched against an
// inserted key, per the fan-out rule in the design notes.
type MatchMode int

const (
	// MatchLiteral reproduces the source's literal behavior: a procedure
	// watch named name matches an insert of key iff name starts with
	// key. This is preserved for wire compatibility and is the default.
	MatchLiteral MatchMode = iota

	// MatchAlwaysReevaluate is the corrected rule: every procedure watch
	// is re-evaluated on every insert, regardless of key.
	MatchAlwaysReevaluate
)

type watchEntry struct {
	client   ClientID
	queryID  string
	selector livekv.Selector
}

type eventKind int

const (
	eventConnected eventKind = iota
	eventDisconnected
	eventQuery
)

type event struct {
	kind   eventKind
	client ClientID
	writer Writer
	query  livekv.Query
}

// Core is the single-serializer owner of the client table, watch table,
// and store. All of its exported methods besides Run are safe to call
// from any goroutine; they only ever push onto the internal event queue.
type Core struct {
	store *storekv.Store
	procs *procset.Registry
	mode  MatchMode
	log   *zap.Logger

	queue *eventqueue.Queue[event]
	stop  chan struct{}

	// The following fields are touched only by the goroutine running
	// Run. They are deliberately unexported and un-mutexed: the single-
	// serializer discipline is the synchronization.
	clients map[ClientID]Writer
	watches []watchEntry
}

// New builds a Core around store and procs. mode selects the procedure
// watch fan-out rule; pass MatchLiteral for wire compatibility with the
// reference implementation.
func New(store *storekv.Store, procs *procset.Registry, mode MatchMode, log *zap.Logger) *Core {
	if log == nil {
		log = zap.NewNop()
	}
	if procs == nil {
		procs = procset.New()
	}
	return &Core{
		store:   store,
		procs:   procs,
		mode:    mode,
		log:     log,
		queue:   eventqueue.New[event](),
		stop:    make(chan struct{}),
		clients: make(map[ClientID]Writer),
	}
}

// Connected posts ClientConnected for a freshly accepted connection.
func (c *Core) Connected(id ClientID, w Writer) {
	c.queue.Push(event{kind: eventConnected, client: id, writer: w})
}

// Disconnected posts ClientDisconnected, triggered by reader close or
// read failure.
func (c *Core) Disconnected(id ClientID) {
	c.queue.Push(event{kind: eventDisconnected, client: id})
}

// Query posts a decoded inbound Query, attributed to client id.
func (c *Core) Query(id ClientID, q livekv.Query) {
	c.queue.Push(event{kind: eventQuery, client: id, query: q})
}

// Run drains the event queue until ctx is done or Stop is called. It
// must run on exactly one goroutine: it is the single serializer for
// all client-table, watch-table, and store mutations.
func (c *Core) Run(ctx context.Context) error {
	for {
		for {
			ev, ok := c.queue.TryPop()
			if !ok {
				break
			}
			c.dispatch(ev)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case <-c.queue.Wait():
		}
	}
}

// Stop causes a running Run to return after draining whatever is
// currently queued.
func (c *Core) Stop() {
	close(c.stop)
}

func (c *Core) dispatch(ev event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("recovered panic in event loop", zap.String("client_id", string(ev.client)), zap.Any("panic", r))
		}
	}()
	switch ev.kind {
	case eventConnected:
		c.clients[ev.client] = ev.writer
	case eventDisconnected:
		delete(c.clients, ev.client)
		c.removeWatchesFor(ev.client)
	case eventQuery:
		c.handleQuery(ev.client, ev.query)
	}
}

func (c *Core) removeWatchesFor(id ClientID) {
	kept := c.watches[:0]
	for _, w := range c.watches {
		if w.client != id {
			kept = append(kept, w)
		}
	}
	c.watches = kept
}

func (c *Core) handleQuery(client ClientID, q livekv.Query) {
	switch q.QueryType.Kind {
	case livekv.QueryGet:
		c.handleGet(client, q.QueryID, q.QueryType.Selector)
	case livekv.QueryWatch:
		c.handleWatch(client, q.QueryID, q.QueryType.Selector)
	case livekv.QueryUnwatch:
		c.handleUnwatch(q.QueryID)
	case livekv.QueryInsert:
		c.handleInsert(q.QueryType.InsertKey, q.QueryType.InsertValue)
	}
}

func (c *Core) handleGet(client ClientID, queryID string, sel livekv.Selector) {
	res, ok := c.evaluate(sel)
	if !ok {
		// Unknown procedure: log and drop, no response sent (see design
		// notes on the error table).
		return
	}
	c.respond(client, livekv.Response{QueryID: queryID, QueryRes: res})
}

func (c *Core) handleWatch(client ClientID, queryID string, sel livekv.Selector) {
	c.watches = append(c.watches, watchEntry{client: client, queryID: queryID, selector: sel})
	// Self-enqueue the initial snapshot under the same query_id, so the
	// client sees its first response before any later update — the
	// watch and its snapshot share one FIFO-ordered path.
	c.Query(client, livekv.Query{
		QueryID:   queryID,
		QueryType: livekv.GetQuery(sel),
	})
}

func (c *Core) handleUnwatch(queryID string) {
	kept := c.watches[:0]
	for _, w := range c.watches {
		if w.queryID != queryID {
			kept = append(kept, w)
		}
	}
	c.watches = kept
}

func (c *Core) handleInsert(key string, value json.RawMessage) {
	if err := c.store.Insert(key, value); err != nil {
		c.log.Warn("insert failed", zap.String("key", key), zap.Error(err))
		return
	}

	for _, w := range c.watches {
		if !c.matches(w.selector, key) {
			continue
		}
		c.Query(w.client, livekv.Query{
			QueryID:   w.queryID,
			QueryType: livekv.GetQuery(w.selector),
		})
	}
}

// matches implements the insert fan-out rule from the design notes. The
// procedure branch under MatchLiteral intentionally reproduces the
// reference implementation's inverted comparison.
func (c *Core) matches(sel livekv.Selector, key string) bool {
	switch sel.Kind {
	case livekv.SelectorPrefix:
		return strings.HasPrefix(key, sel.Prefix)
	case livekv.SelectorProcedure:
		if c.mode == MatchAlwaysReevaluate {
			return true
		}
		return strings.HasPrefix(sel.ProcName, key)
	default:
		return false
	}
}

// evaluate computes a selector's result set. ok is false only when a
// procedure selector names an unregistered procedure.
func (c *Core) evaluate(sel livekv.Selector) ([]livekv.KVPair, bool) {
	switch sel.Kind {
	case livekv.SelectorPrefix:
		res := c.store.ScanPrefix(sel.Prefix)
		if res == nil {
			res = []livekv.KVPair{}
		}
		return res, true
	case livekv.SelectorProcedure:
		fn, ok := c.procs.Lookup(sel.ProcName)
		if !ok {
			c.log.Warn("unknown procedure, dropping query", zap.String("name", sel.ProcName))
			return nil, false
		}
		res := fn(c.store, sel.ProcArg)
		if res == nil {
			res = []livekv.KVPair{}
		}
		return res, true
	default:
		return nil, false
	}
}

// respond encodes resp and writes it to client's writer. A JSON encode
// failure is logged and dropped; the client is kept (I2 is unaffected,
// since nothing was ever sent). A transport write failure removes the
// client and its watches immediately, rather than waiting for a
// separate disconnect event, per the design note under INSERT's
// cleanup discussion.
func (c *Core) respond(client ClientID, resp livekv.Response) {
	w, ok := c.clients[client]
	if !ok {
		return
	}

	frame, err := json.Marshal(resp)
	if err != nil {
		c.log.Error("encode response failed, dropping", zap.String("query_id", resp.QueryID), zap.Error(err))
		return
	}

	if err := w.Write(frame); err != nil {
		c.log.Info("write failed, removing client", zap.Error(err))
		delete(c.clients, client)
		c.removeWatchesFor(client)
		return
	}
}
