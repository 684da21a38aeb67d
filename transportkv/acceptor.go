// Package transportkv implements the WebSocket acceptor and per-connection
// reader (C6 and C3): the only part of the system that speaks to the
// network. Everything it decodes is handed to a corekv.Core; everything
// it writes is a frame the core already encoded.
package transportkv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/livekv"
	"github.com/example/livekv/corekv"
)

// Core is the subset of corekv.Core the acceptor and reader depend on.
type Core interface {
	Connected(id corekv.ClientID, w corekv.Writer)
	Disconnected(id corekv.ClientID)
	Query(id corekv.ClientID, q livekv.Query)
}

// ServeConfig configures the WebSocket acceptor.
type ServeConfig struct {
	// Core is the event-loop core that every connection's events are
	// posted to.
	Core Core

	// Addr is the address to listen on. Defaults to "0.0.0.0:3990", the
	// reference endpoint.
	Addr string

	// Listener is an optional pre-created listener; if set, Addr is
	// ignored. Used by tests to bind an in-memory or ephemeral port.
	Listener net.Listener

	// Path is the HTTP path the WebSocket endpoint is served on.
	// Defaults to "/".
	Path string

	// GracefulTimeout bounds how long Serve waits for in-flight HTTP
	// requests to finish after a shutdown signal. Connections already
	// upgraded to WebSocket are hijacked from the HTTP server and are not
	// waited for. Defaults to 30s.
	GracefulTimeout time.Duration

	// Log receives diagnostics. Defaults to a no-op logger.
	Log *zap.Logger

	// ShutdownContext, if set, causes Serve to shut down when cancelled,
	// instead of listening for os.Interrupt. Used by tests.
	ShutdownContext context.Context
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Serve binds config.Addr (or uses config.Listener), accepts WebSocket
// upgrades on config.Path, and spawns one reader per connection. It
// blocks until shut down by os.Interrupt or config.ShutdownContext, then
// waits up to GracefulTimeout for in-flight HTTP requests to finish
// (upgraded WebSocket connections are not waited for) before returning.
func Serve(config ServeConfig) error {
	if config.Addr == "" && config.Listener == nil {
		config.Addr = "0.0.0.0:3990"
	}
	if config.Path == "" {
		config.Path = "/"
	}
	if config.GracefulTimeout == 0 {
		config.GracefulTimeout = 30 * time.Second
	}
	log := config.Log
	if log == nil {
		log = zap.NewNop()
	}

	mux := http.NewServeMux()
	mux.Handle(config.Path, Handler(config.Core, log))

	server := &http.Server{Handler: mux}

	listener := config.Listener
	if listener == nil {
		var err error
		listener, err = net.Listen("tcp", config.Addr)
		if err != nil {
			return fmt.Errorf("transportkv: listen on %s: %w", config.Addr, err)
		}
	}

	var shutdownOnce sync.Once
	shutdownDone := make(chan struct{})
	shutdown := func() {
		shutdownOnce.Do(func() {
			defer close(shutdownDone)
			ctx, cancel := context.WithTimeout(context.Background(), config.GracefulTimeout)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				log.Warn("graceful shutdown did not complete cleanly", zap.Error(err))
			}
		})
	}

	if config.ShutdownContext != nil {
		go func() {
			<-config.ShutdownContext.Done()
			shutdown()
		}()
	} else {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt)
		go func() {
			<-sigCh
			shutdown()
		}()
	}

	err := server.Serve(listener)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("transportkv: serve: %w", err)
	}
	// server.Serve returns as soon as Shutdown begins; wait for it to end.
	<-shutdownDone
	return nil
}

// Handler returns an http.Handler that upgrades every request to a
// WebSocket connection and runs its reader loop against core. It is
// exported so callers can mount the protocol on an existing mux (or an
// httptest.Server) instead of going through Serve's listen-and-shutdown
// lifecycle.
func Handler(core Core, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Info("websocket upgrade failed", zap.Error(err))
			return
		}
		runConnection(conn, core, log)
	})
}

// runConnection is the reader task (C3): it owns conn for its entire
// lifetime, posting exactly one Connected, any number of Query events,
// and exactly one Disconnected before returning.
func runConnection(conn *websocket.Conn, core Core, log *zap.Logger) {
	id := corekv.ClientID(uuid.NewString())
	w := &wsWriter{conn: conn}

	core.Connected(id, w)
	defer core.Disconnected(id)
	defer conn.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		// The protocol is JSON text frames only; binary, ping, and pong
		// are not part of it. gorilla/websocket answers ping/pong at the
		// control-frame layer automatically, so any frame reaching here
		// is either text or binary.
		if msgType != websocket.TextMessage {
			return
		}

		var q livekv.Query
		if err := json.Unmarshal(data, &q); err != nil {
			log.Info("discarding malformed frame", zap.String("client", string(id)), zap.Error(err))
			continue
		}
		core.Query(id, q)
	}
}
