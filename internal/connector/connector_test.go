package connector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ringtransport/transport/internal/balancer"
	"github.com/ringtransport/transport/internal/socket"
	"github.com/ringtransport/transport/internal/tag"
	"github.com/ringtransport/transport/internal/uring"
)

func TestConnectorStagesConnectAndForwardsOnCompletion(t *testing.T) {
	ring := uring.NewFakeRing(1, 0)
	bal := balancer.New()
	bal.Add(balancer.Channel{WorkerID: 0, RingFd: 55})
	c := New(DefaultConfig(), ring, bal, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	defer cancel()

	client := &socket.Client{Fd: 11, Addr: nil}
	c.Connect(client)

	require.Eventually(t, func() bool {
		for _, sqe := range ring.Submitted {
			if sqe.Op == "CONNECT" && sqe.Fd == 11 {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	connectTag := tag.Encode(tag.OpConnect, 11, 0)
	ring.PushCompletion(uring.CQE{UserData: connectTag, Res: 0})

	require.Eventually(t, func() bool {
		for _, sqe := range ring.Submitted {
			if sqe.Op == "MSG_RING" && sqe.TargetRingFd == 55 && sqe.Length == 11 {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}
