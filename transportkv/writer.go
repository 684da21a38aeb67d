package transportkv

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// wsWriter adapts a *websocket.Conn to corekv.Writer. gorilla/websocket
// conns are not safe for concurrent writes, but the core only ever calls
// Write from its own single goroutine — the mutex here guards against
// Close racing a concurrent Write during shutdown, not against the core
// itself.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) Write(frame []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("transportkv: write: %w", err)
	}
	return nil
}

func (w *wsWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.conn.Close(); err != nil {
		return fmt.Errorf("transportkv: close: %w", err)
	}
	return nil
}
