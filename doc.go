// Package livekv implements the wire-level data model for a small reactive
// key-value store: KVPair, Selector, Query, and Response, together with the
// JSON encoding that lets a Go server or client interoperate with any other
// implementation of the same protocol.
//
// # Overview
//
// A client opens a persistent connection to a livekv server and sends
// Query frames to insert JSON values under string keys, to read every
// entry whose key shares a prefix, or to register a standing watch that
// re-delivers the matching result set after every insert that could have
// changed it. The server never sends a negative acknowledgement: a query
// that fails produces no response at all (see the comment on the sentinel
// errors in errors.go).
//
// # Wire format
//
// Query and Response are encoded as externally-tagged JSON, matching the
// serde-derived representation of the original implementation so that
// existing clients remain wire-compatible:
//
//	{"query_type":{"INSERT":["user-1",{"name":"thor"}]},"query_id":"<uuid>"}
//	{"query_type":{"GET":{"Prefix":""}},"query_id":"<uuid>"}
//	{"query_type":{"WATCH":{"Procedure":["get_random",null]}},"query_id":"<uuid>"}
//	{"query_id":"<uuid>","query_res":[{"key":"user-1","value":{"name":"thor"}}]}
//
// # Packages
//
// The rest of the system is split across sibling packages, one per
// component of the design:
//
//   - storekv: the store adapter (C1) wrapping an embedded ordered KV engine.
//   - procset: the procedure registry (C5).
//   - corekv: the single-serializer event-loop core (C4) — the heart of the
//     system.
//   - transportkv: the WebSocket acceptor and connection reader (C3/C6).
//   - client: the client-side correlator (C7).
package livekv
