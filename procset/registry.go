// Package procset implements the procedure registry (C5): an immutable,
// startup-supplied mapping from procedure name to a pure read-only
// function over the store.
package procset

import (
	"encoding/json"

	"github.com/example/livekv"
	"github.com/example/livekv/storekv"
)

// Func computes a result set from the current database contents and a
// caller-supplied JSON argument. It must be bounded-time and
// non-blocking: it runs inline on the event-loop core and blocks every
// other client while it executes.
type Func func(db storekv.Reader, arg json.RawMessage) []livekv.KVPair

// Entry pairs a procedure name with its implementation, in the order
// procedures were registered.
type Entry struct {
	Name string
	Fn   Func
}

// Registry is an immutable sequence of registered procedures. Lookup is
// linear, matching the source: the set of procedures is expected to stay
// small.
type Registry struct {
	entries []Entry
}

// New builds a Registry from entries, in the order given. Apart from
// lookup cost, the order matters only for duplicate names: the first
// entry with a given name wins and later ones are never reached.
func New(entries ...Entry) *Registry {
	return &Registry{entries: entries}
}

// Lookup returns the Func registered under name, or ok=false if none
// matches.
func (r *Registry) Lookup(name string) (Func, bool) {
	for _, e := range r.entries {
		if e.Name == name {
			return e.Fn, true
		}
	}
	return nil, false
}
