package client_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/livekv"
	"github.com/example/livekv/client"
	"github.com/example/livekv/corekv"
	"github.com/example/livekv/internal/memtransport"
	"github.com/example/livekv/procset"
	"github.com/example/livekv/storekv"
	"github.com/example/livekv/transportkv"
)

// startInProcessServer wires a full corekv.Core up to transportkv.Serve
// over a memtransport.Listener instead of a real TCP socket, so the
// acceptor and client correlator talk over net.Pipe() end to end.
func startInProcessServer(t *testing.T) (*memtransport.Listener, func()) {
	t.Helper()
	store := storekv.New(newMemEngine(), nil)
	procs := procset.New(procset.Entry{Name: "get_all", Fn: procset.GetAll})
	core := corekv.New(store, procs, corekv.MatchLiteral, nil)

	coreCtx, coreCancel := context.WithCancel(context.Background())
	coreDone := make(chan struct{})
	go func() {
		defer close(coreDone)
		_ = core.Run(coreCtx)
	}()

	ln := memtransport.New()
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- transportkv.Serve(transportkv.ServeConfig{
			Core:            core,
			Listener:        ln,
			ShutdownContext: shutdownCtx,
		})
	}()

	cleanup := func() {
		shutdownCancel()
		<-serveDone
		ln.Close()
		coreCancel()
		<-coreDone
	}
	return ln, cleanup
}

// dialThroughMemtransport connects a client.Client through ln's in-memory
// net.Pipe transport rather than a real network dial, exercising
// memtransport.Listener.DialContext/Accept via the full WebSocket upgrade
// and framing path.
func dialThroughMemtransport(ctx context.Context, ln *memtransport.Listener) (*client.Client, error) {
	dialer := &websocket.Dialer{NetDialContext: ln.DialContext}
	return client.DialWithDialer(ctx, dialer, "ws://mem/", nil)
}

func TestInProcessRoundTripOverMemtransport(t *testing.T) {
	ln, cleanup := startInProcessServer(t)
	defer cleanup()

	ctx := context.Background()
	c, err := dialThroughMemtransport(ctx, ln)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Insert("user-1", json.RawMessage(`{"name":"thor"}`)))

	// Insert has no response; give the core a moment to apply it before
	// issuing the read, same as the real-network equivalent in
	// client_test.go.
	time.Sleep(50 * time.Millisecond)

	h, err := c.Get(livekv.PrefixSelector(""))
	require.NoError(t, err)
	defer h.Close()

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := h.Recv(recvCtx)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "user-1", res[0].Key)
}

func TestWatchOverMemtransport(t *testing.T) {
	ln, cleanup := startInProcessServer(t)
	defer cleanup()

	ctx := context.Background()
	c, err := dialThroughMemtransport(ctx, ln)
	require.NoError(t, err)
	defer c.Close()

	h, err := c.Watch(livekv.PrefixSelector("user-"))
	require.NoError(t, err)
	defer h.Close()

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	snap, err := h.Recv(recvCtx)
	require.NoError(t, err)
	assert.Empty(t, snap)

	require.NoError(t, c.Insert("user-1", json.RawMessage(`{"name":"thor"}`)))

	recvCtx2, cancel2 := context.WithTimeout(ctx, 2*time.Second)
	defer cancel2()
	update, err := h.Recv(recvCtx2)
	require.NoError(t, err)
	require.Len(t, update, 1)
	assert.Equal(t, "user-1", update[0].Key)
}
