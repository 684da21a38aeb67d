package livekv

import "errors"

// Sentinel errors shared across the livekv packages. None of them is ever
// sent on the wire: per the wire protocol, a malformed frame or an
// unroutable query produces no response at all, so a remote peer has
// nothing to compare these errors against.
var (
	// ErrUnknownSelector is returned by codec paths that encounter a
	// Selector JSON object with neither a "Prefix" nor a "Procedure" key.
	ErrUnknownSelector = errors.New("livekv: unknown selector variant")

	// ErrUnknownQueryType is returned by codec paths that encounter a
	// query_type JSON value that is not one of GET, WATCH, UNWATCH, INSERT.
	ErrUnknownQueryType = errors.New("livekv: unknown query type variant")

	// ErrHandleClosed is returned by ResponseHandle.Recv after the
	// handle's Close method has been called.
	ErrHandleClosed = errors.New("livekv: response handle closed")

	// ErrClientClosed is returned by Client operations, and by
	// ResponseHandle.Recv, once the client's connection has been closed
	// (by Client.Close or by the server).
	ErrClientClosed = errors.New("livekv: client closed")
)
