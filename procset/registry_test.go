package procset

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/livekv"
)

type fakeReader struct {
	pairs []livekv.KVPair
}

func (f fakeReader) Get(key string) (json.RawMessage, bool) {
	for _, p := range f.pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

func (f fakeReader) ScanPrefix(prefix string) []livekv.KVPair {
	var out []livekv.KVPair
	for _, p := range f.pairs {
		if len(p.Key) >= len(prefix) && p.Key[:len(prefix)] == prefix {
			out = append(out, p)
		}
	}
	return out
}

func TestRegistryLookup(t *testing.T) {
	r := New(
		Entry{Name: "get_all", Fn: GetAll},
		Entry{Name: "get_random", Fn: GetRandom},
	)

	fn, ok := r.Lookup("get_all")
	require.True(t, ok)
	assert.NotNil(t, fn)

	_, ok = r.Lookup("unknown")
	assert.False(t, ok)
}

func TestGetAllReturnsEverything(t *testing.T) {
	db := fakeReader{pairs: []livekv.KVPair{
		{Key: "a", Value: json.RawMessage(`1`)},
		{Key: "b", Value: json.RawMessage(`2`)},
	}}

	got := GetAll(db, nil)
	assert.Len(t, got, 2)
}

func TestGetRandomNeverExceedsInput(t *testing.T) {
	db := fakeReader{pairs: []livekv.KVPair{
		{Key: "a", Value: json.RawMessage(`1`)},
		{Key: "b", Value: json.RawMessage(`2`)},
		{Key: "c", Value: json.RawMessage(`3`)},
	}}

	got := GetRandom(db, nil)
	assert.LessOrEqual(t, len(got), 3)
}
