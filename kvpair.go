package livekv

import "encoding/json"

// KVPair is a single stored entry: a UTF-8 key and an arbitrary JSON value.
type KVPair struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}
