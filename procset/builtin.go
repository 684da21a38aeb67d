package procset

import (
	"crypto/rand"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/example/livekv"
	"github.com/example/livekv/storekv"
)

// GetAll returns every stored entry, ignoring its argument. It is the
// simplest possible procedure and a useful smoke test for the WATCH
// procedure path.
func GetAll(db storekv.Reader, _ json.RawMessage) []livekv.KVPair {
	return db.ScanPrefix("")
}

// GetRandom returns a coin-flip subset of every stored entry: each entry
// is independently included with roughly 50% probability. Grounded
// directly on the reference implementation's get_random, which filters
// scan_prefix("") by comparing two freshly generated UUIDv4 values.
func GetRandom(db storekv.Reader, _ json.RawMessage) []livekv.KVPair {
	all := db.ScanPrefix("")
	out := make([]livekv.KVPair, 0, len(all))
	for _, pair := range all {
		if coinFlip() {
			out = append(out, pair)
		}
	}
	return out
}

// coinFlip reproduces the source's uuid-comparison coin flip rather than
// reaching for math/rand directly, since that is the exact selection
// bias a wire-compatible client may be depending on.
func coinFlip() bool {
	a, err := uuid.NewRandomFromReader(rand.Reader)
	if err != nil {
		return false
	}
	b, err := uuid.NewRandomFromReader(rand.Reader)
	if err != nil {
		return false
	}
	return a.String() > b.String()
}
