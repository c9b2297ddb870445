// File: internal/da/disperser_test.go
package da

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/owizdom/swarm-mindv2/internal/config"
)

func TestMain(m *testing.M) {
	// Idle HTTP keep-alive connections are pooled beyond test scope;
	// only the disperser's own worker goroutine is under test.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func TestDisperser_DeliversCommitment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"commitment": "kzg:deadbeef"}`))
	}))
	defer srv.Close()

	var (
		mu       sync.Mutex
		received = make(map[string]string)
	)
	done := make(chan struct{})

	d := New(config.DAConfig{
		ProxyURL:  srv.URL,
		QueueSize: 8,
		Timeout:   2 * time.Second,
	}, func(signalID, commitment string) {
		mu.Lock()
		received[signalID] = commitment
		mu.Unlock()
		close(done)
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	d.Enqueue("sig-1", []byte("payload"))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("commitment callback never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "kzg:deadbeef", received["sig-1"])
}

func TestDisperser_BareStringCommitment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0xabc123\n"))
	}))
	defer srv.Close()

	done := make(chan string, 1)
	d := New(config.DAConfig{ProxyURL: srv.URL, QueueSize: 1, Timeout: time.Second},
		func(_, commitment string) { done <- commitment }, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	d.Enqueue("sig-2", []byte("blob"))

	select {
	case c := <-done:
		assert.Equal(t, "0xabc123", c)
	case <-time.After(3 * time.Second):
		t.Fatal("commitment callback never fired")
	}
}

func TestDisperser_DisabledWithoutProxyURL(t *testing.T) {
	d := New(config.DAConfig{}, nil, zap.NewNop())
	assert.False(t, d.Enabled())

	// Start and Enqueue are no-ops; nothing leaks.
	d.Start(context.Background())
	d.Enqueue("sig", []byte("x"))
	d.Stop()
}

func TestDisperser_OverflowDropsSilently(t *testing.T) {
	// A disperser that is never started drains nothing, so the queue
	// fills and further enqueues drop without blocking.
	d := New(config.DAConfig{ProxyURL: "http://127.0.0.1:1", QueueSize: 2, Timeout: time.Second}, nil, zap.NewNop())

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			d.Enqueue("sig", []byte("x"))
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
	require.True(t, d.Enabled())
	d.Stop()
}
