package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/resultbot/pkg/chat"
	"github.com/entrhq/resultbot/pkg/chat/console"
)

func TestRunTransport_InFlightHandlerOutlivesShutdown(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	transport := console.New(r, &bytes.Buffer{}, t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	release := make(chan struct{})
	var handlerErr error
	var finished atomic.Bool
	handle := func(ctx context.Context, ev chat.Event) {
		close(started)
		<-release
		handlerErr = ctx.Err()
		finished.Store(true)
	}

	var drainedWhileRunning atomic.Bool
	drain := func() error {
		drainedWhileRunning.Store(!finished.Load())
		close(release)
		return nil
	}

	result := make(chan error, 1)
	go func() {
		result <- runTransport(ctx, transport, handle, drain)
	}()

	_, err = w.Write([]byte("/result\n"))
	require.NoError(t, err)
	<-started

	// Shutdown signal arrives mid-request
	cancel()

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runTransport did not return")
	}

	assert.True(t, finished.Load(), "handler ran to completion")
	assert.NoError(t, handlerErr, "handler context is not canceled by the shutdown signal")
	assert.True(t, drainedWhileRunning.Load(), "pool drain starts while the handler is still running")
}

func TestRunTransport_TransportStopsOnItsOwn(t *testing.T) {
	transport := console.New(strings.NewReader("/help\n"), &bytes.Buffer{}, t.TempDir())

	var handled, drained atomic.Int32
	err := runTransport(context.Background(), transport,
		func(ctx context.Context, ev chat.Event) { handled.Add(1) },
		func() error {
			drained.Add(1)
			return nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, int32(1), handled.Load())
	assert.Equal(t, int32(1), drained.Load())
}

func TestRunTransport_ReportsDrainError(t *testing.T) {
	transport := console.New(strings.NewReader(""), &bytes.Buffer{}, t.TempDir())
	forced := errors.New("grace period exceeded")

	err := runTransport(context.Background(), transport,
		func(ctx context.Context, ev chat.Event) {},
		func() error { return forced },
	)
	assert.ErrorIs(t, err, forced)
}
