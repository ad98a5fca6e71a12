package acceptor

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

func TestAcceptorArmsMultishotAcceptOnStart(t *testing.T) {
	ring := uring.NewFakeRing(1, 0)
	bal := balancer.New()
	bal.Add(balancer.Channel{WorkerID: 0, RingFd: 2})
	a := New(DefaultConfig(), ring, &socket.Server{Fd: 5}, bal, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	defer cancel()

	require.Eventually(t, func() bool {
		for _, sqe := range ring.Submitted {
			if sqe.Op == "MULTISHOT_ACCEPT" && sqe.Fd == 5 {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}

func TestAcceptorForwardsAcceptedFdToBalancedWorker(t *testing.T) {
	ring := uring.NewFakeRing(1, 0)
	bal := balancer.New()
	bal.Add(balancer.Channel{WorkerID: 0, RingFd: 77})
	a := New(DefaultConfig(), ring, &socket.Server{Fd: 5}, bal, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	defer cancel()

	acceptTag := tag.Encode(tag.OpAccept, 5, 0)
	ring.PushCompletion(uring.CQE{UserData: acceptTag, Res: 123, Flags: uring.CQEFMore})

	require.Eventually(t, func() bool {
		for _, sqe := range ring.Submitted {
			if sqe.Op == "MSG_RING" && sqe.TargetRingFd == 77 && sqe.Length == 123 {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}
