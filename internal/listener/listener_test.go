package listener

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ringtransport/transport/internal/uring"
)

func TestListenerTracksReadyWorkerCounts(t *testing.T) {
	ring := uring.NewFakeRing(1, 0)
	cfg := DefaultConfig()
	cfg.WorkersCount = 3
	l := New(cfg, ring, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	defer cancel()

	ring.PushCompletion(uring.CQE{Res: 1})
	ring.PushCompletion(uring.CQE{Res: 1})
	ring.PushCompletion(uring.CQE{Res: 2})

	select {
	case <-l.ReadyNotify():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ready notification")
	}

	require.Eventually(t, func() bool {
		counts := l.ReadyCounts()
		return counts[1] == 2 && counts[2] == 1
	}, time.Second, time.Millisecond)
}

func TestListenerShutdownStopsRun(t *testing.T) {
	ring := uring.NewFakeRing(1, 0)
	cfg := DefaultConfig()
	cfg.WorkersCount = 1
	l := New(cfg, ring, nil)

	done := make(chan error, 1)
	ctx := context.Background()
	go func() { done <- l.Run(ctx) }()

	l.Shutdown()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop after shutdown sentinel")
	}
}
