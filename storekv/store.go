package storekv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/example/livekv"
)

// Store is the typed, JSON-aware adapter in front of an Engine: C1 in the
// design. It is the only component that may write to the database; the
// read-only surface it exposes to procedures (via Reader) cannot reach
// Insert.
type Store struct {
	engine Engine
	log    *zap.Logger
}

// New wraps engine with JSON encode/decode and diagnostic logging.
func New(engine Engine, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{engine: engine, log: log}
}

// Reader is the read-only surface of Store handed to procedures, so a
// procedure cannot perform a write through the handle it is given.
type Reader interface {
	Get(key string) (json.RawMessage, bool)
	ScanPrefix(prefix string) []livekv.KVPair
}

var _ Reader = (*Store)(nil)

// Insert serializes value to compact JSON and writes it under key,
// overwriting any existing value.
func (s *Store) Insert(key string, value json.RawMessage) error {
	compact, err := compactJSON(value)
	if err != nil {
		return fmt.Errorf("storekv: insert %q: %w", key, err)
	}
	if err := s.engine.Put([]byte(key), compact); err != nil {
		return fmt.Errorf("storekv: insert %q: %w", key, err)
	}
	return nil
}

// Get returns the decoded JSON value stored under key, or ok=false if
// absent, or if the stored bytes fail UTF-8 or JSON validation (logged).
func (s *Store) Get(key string) (json.RawMessage, bool) {
	raw, ok, err := s.engine.Get([]byte(key))
	if err != nil {
		s.log.Warn("store get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if !utf8.Valid(raw) || !json.Valid(raw) {
		s.log.Warn("store entry is not valid UTF-8 JSON, skipping", zap.String("key", key))
		return nil, false
	}
	return json.RawMessage(raw), true
}

// ScanPrefix returns every pair whose key starts with prefix, in
// ascending key order. Entries with a non-UTF-8 key or non-JSON value
// are skipped with a diagnostic; iteration proceeds.
func (s *Store) ScanPrefix(prefix string) []livekv.KVPair {
	var out []livekv.KVPair
	err := s.engine.ScanPrefix([]byte(prefix), func(key, value []byte) bool {
		if !utf8.Valid(key) {
			s.log.Warn("store key is not valid UTF-8, skipping")
			return true
		}
		if !json.Valid(value) {
			s.log.Warn("store value is not valid JSON, skipping", zap.ByteString("key", key))
			return true
		}
		out = append(out, livekv.KVPair{
			Key:   string(key),
			Value: append(json.RawMessage(nil), value...),
		})
		return true
	})
	if err != nil {
		s.log.Warn("store scan_prefix failed", zap.String("prefix", prefix), zap.Error(err))
		return nil
	}
	return out
}

// Close releases the underlying engine.
func (s *Store) Close() error {
	return s.engine.Close()
}

// ScanPrefixAs decodes every matching entry's value as T, skipping (with
// a diagnostic) any entry whose value does not decode as T. It is a free
// function rather than a method because Go methods cannot introduce a
// new type parameter.
func ScanPrefixAs[T any](s *Store, prefix string) []struct {
	Key   string
	Value T
} {
	var out []struct {
		Key   string
		Value T
	}
	for _, pair := range s.ScanPrefix(prefix) {
		var v T
		if err := json.Unmarshal(pair.Value, &v); err != nil {
			s.log.Warn("store entry failed typed decode, skipping",
				zap.String("key", pair.Key), zap.Error(err))
			continue
		}
		out = append(out, struct {
			Key   string
			Value T
		}{Key: pair.Key, Value: v})
	}
	return out
}

func compactJSON(value json.RawMessage) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, value); err != nil {
		return nil, fmt.Errorf("value is not valid JSON: %w", err)
	}
	return buf.Bytes(), nil
}
