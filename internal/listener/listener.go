// Package listener implements the Listener: the ring every worker signals
// batch-readiness to via msg_ring, so a single thread can learn which
// workers currently have completions worth draining without polling each
// worker's ring directly.
package listener

import (
	"context"
	"time"

	"github.com/ringtransport/transport/internal/interfaces"
	"github.com/ringtransport/transport/internal/scheduler"
	"github.com/ringtransport/transport/internal/tag"
	"github.com/ringtransport/transport/internal/uring"
)

// Config configures a Listener.
type Config struct {
	RingEntries  uint32
	PollTimeout  time.Duration
	WorkersCount int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{RingEntries: 256, PollTimeout: 50 * time.Millisecond}
}

// Listener owns one ring and a ready_workers tally: each completion it
// reaps carries a worker id in Res, and it increments that worker's count
// so the runtime knows which workers to drain next.
type Listener struct {
	cfg    Config
	ring   uring.Ring
	sched  scheduler.Scheduler
	logger interfaces.Logger

	ready       []int
	shutdown    bool
	readyNotify chan struct{}
}

// New creates a Listener tracking workersCount worker ids, 0..workersCount-1.
func New(cfg Config, ring uring.Ring, logger interfaces.Logger) *Listener {
	return &Listener{
		cfg:         cfg,
		ring:        ring,
		sched:       scheduler.Default{},
		logger:      logger,
		ready:       make([]int, cfg.WorkersCount),
		readyNotify: make(chan struct{}, 1),
	}
}

// RingFd returns the Listener's own ring fd, the target every worker's
// msg_ring readiness signal is addressed to.
func (l *Listener) RingFd() int32 { return l.ring.Fd() }

// ReadyNotify is signaled at least once after every batch of readiness
// completions is reaped, so a runtime driving workers can wait on it
// instead of busy-polling ReadyCounts.
func (l *Listener) ReadyNotify() <-chan struct{} { return l.readyNotify }

// ReadyCounts returns, and resets, the accumulated ready-batch count per
// worker id since the last call.
func (l *Listener) ReadyCounts() []int {
	counts := make([]int, len(l.ready))
	copy(counts, l.ready)
	for i := range l.ready {
		l.ready[i] = 0
	}
	return counts
}

// Shutdown submits the sentinel shutdown message to the Listener's own
// ring: a msg_ring whose completion res is negative, which reap recognizes
// and reports as a request to stop.
func (l *Listener) Shutdown() {
	sqe := l.provideSQE()
	sqe.PrepareMsgRing(l.ring.Fd(), -1, tag.EncodeMessage(tag.OpMessage))
	l.ring.Submit()
}

func (l *Listener) provideSQE() uring.SQE {
	for {
		if sqe, ok := l.ring.GetSQE(); ok {
			return sqe
		}
		l.ring.Submit()
		l.sched.Yield()
	}
}

// Run reaps readiness completions until a shutdown sentinel is received or
// ctx is canceled.
func (l *Listener) Run(ctx context.Context) error {
	defer l.ring.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := l.ring.SubmitAndWaitTimeout(0, l.cfg.PollTimeout); err != nil {
			if l.logger != nil {
				l.logger.Debugf("listener: submit_and_wait: %v", err)
			}
		}

		if l.reap() {
			return nil
		}
	}
}

// reap processes one batch of completions, returning true if a shutdown
// sentinel was among them.
func (l *Listener) reap() bool {
	var batch [128]uring.CQE
	n := l.ring.PeekBatchCQE(batch[:])
	sawShutdown := false
	sawReady := false
	for i := 0; i < n; i++ {
		res := int(batch[i].Res)
		if res < 0 {
			sawShutdown = true
			continue
		}
		if res < len(l.ready) {
			l.ready[res]++
			sawReady = true
		}
	}
	l.ring.CQAdvance(uint32(n))

	if sawReady {
		select {
		case l.readyNotify <- struct{}{}:
		default:
		}
	}
	return sawShutdown
}
