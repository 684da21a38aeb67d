// Package storekv adapts an embedded ordered byte-oriented key-value
// engine into the typed, JSON-aware store contract the rest of the
// system depends on: C1 in the design.
package storekv

import "errors"

// ErrIO is wrapped by Engine implementations to signal a durability
// failure (disk full, closed database, I/O error) distinct from "not
// found".
var ErrIO = errors.New("storekv: engine I/O failure")

// Engine is the contract storekv needs from the embedded ordered KV
// store: byte keys, byte values, durable blind-overwrite insert, a point
// get, and a lexicographically ordered prefix scan. It is satisfied by
// BboltEngine, and is the seam a test fake implements instead.
type Engine interface {
	// Put durably writes value under key, overwriting any existing value.
	Put(key, value []byte) error

	// Get returns the value stored under key, or ok=false if absent.
	Get(key []byte) (value []byte, ok bool, err error)

	// ScanPrefix invokes fn once per stored entry whose key starts with
	// prefix, in ascending key order. Iteration stops early if fn
	// returns false.
	ScanPrefix(prefix []byte, fn func(key, value []byte) bool) error

	// Close releases the engine's resources.
	Close() error
}
