// Package acceptor implements the Acceptor: a dedicated ring that owns a
// listening socket, multishot-accepts inbound connections, and forwards
// each accepted fd to a worker chosen by the Balancer via msg_ring.
package acceptor

import (
	"context"
	"time"

	"github.com/ringtransport/transport/internal/balancer"
	"github.com/ringtransport/transport/internal/interfaces"
	"github.com/ringtransport/transport/internal/scheduler"
	"github.com/ringtransport/transport/internal/socket"
	"github.com/ringtransport/transport/internal/tag"
	"github.com/ringtransport/transport/internal/uring"
)

// State is the Acceptor's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateArmed
	StateRunning
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Config configures an Acceptor.
type Config struct {
	RingEntries uint32
	PollTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{RingEntries: 64, PollTimeout: 50 * time.Millisecond}
}

// Acceptor owns one ring and one listening socket; it multishot-accepts and
// forwards every accepted fd to the next worker the Balancer picks.
type Acceptor struct {
	cfg    Config
	ring   uring.Ring
	server *socket.Server
	bal    *balancer.Balancer
	sched  scheduler.Scheduler
	logger interfaces.Logger

	state State
}

// New creates an Acceptor bound to server, forwarding accepted connections
// to the workers registered in bal.
func New(cfg Config, ring uring.Ring, server *socket.Server, bal *balancer.Balancer, logger interfaces.Logger) *Acceptor {
	return &Acceptor{cfg: cfg, ring: ring, server: server, bal: bal, sched: scheduler.Default{}, logger: logger, state: StateIdle}
}

// State reports the Acceptor's current lifecycle state.
func (a *Acceptor) State() State { return a.state }

func (a *Acceptor) provideSQE() uring.SQE {
	for {
		if sqe, ok := a.ring.GetSQE(); ok {
			return sqe
		}
		a.ring.Submit()
		a.sched.Yield()
	}
}

func (a *Acceptor) arm() {
	sqe := a.provideSQE()
	sqe.PrepareMultishotAccept(a.server.Fd)
	sqe.SetUserData(tag.Encode(tag.OpAccept, a.server.Fd, 0))
	a.ring.Submit()
	a.state = StateArmed
}

// Run arms the multishot accept and forwards every accepted connection
// until ctx is canceled.
func (a *Acceptor) Run(ctx context.Context) error {
	defer a.ring.Close()

	a.arm()
	a.state = StateRunning

	for {
		select {
		case <-ctx.Done():
			a.state = StateDraining
			a.cancel()
			a.state = StateClosed
			return nil
		default:
		}

		if _, err := a.ring.SubmitAndWaitTimeout(0, a.cfg.PollTimeout); err != nil {
			if a.logger != nil {
				a.logger.Debugf("acceptor: submit_and_wait: %v", err)
			}
		}
		a.reap()
	}
}

func (a *Acceptor) cancel() {
	sqe := a.provideSQE()
	sqe.PrepareCancelFd(a.server.Fd)
	sqe.SetUserData(tag.Encode(tag.OpClose, a.server.Fd, 0))
	a.ring.Submit()
}

func (a *Acceptor) reap() {
	var batch [64]uring.CQE
	n := a.ring.PeekBatchCQE(batch[:])
	for i := 0; i < n; i++ {
		a.handle(batch[i])
	}
	a.ring.CQAdvance(uint32(n))
}

func (a *Acceptor) handle(cqe uring.CQE) {
	op, _, _ := tag.Decode(cqe.UserData)
	if op != tag.OpAccept {
		return
	}
	if cqe.Res < 0 {
		if a.logger != nil {
			a.logger.Debugf("acceptor: accept failed res=%d", cqe.Res)
		}
		// A multishot accept that terminates (e.g. the rare kernel-side
		// multishot drop) is re-armed while the Acceptor is still Running;
		// once shutdown has moved it out of Running it is not re-armed, and
		// anything else is left to the caller's logs.
		if cqe.Flags&uring.CQEFMore == 0 && a.state == StateRunning {
			a.arm()
		}
		return
	}

	fd := int(cqe.Res)
	if a.bal.Len() == 0 {
		if a.logger != nil {
			a.logger.Debugf("acceptor: no workers registered, dropping fd %d", fd)
		}
		return
	}
	ch := a.bal.Next()
	a.forward(ch.RingFd, fd)

	if cqe.Flags&uring.CQEFMore == 0 {
		a.arm()
	}
}

// forward hands fd to a worker's ring via msg_ring, fd in the len argument
// and an ACCEPT-class, payload-free tag in user_data: the worker side never
// needs to tell a forwarded accept apart from one of its own direct
// multishot accepts, so both conventions decode identically.
func (a *Acceptor) forward(targetRingFd int32, fd int) {
	sqe := a.provideSQE()
	sqe.PrepareMsgRing(targetRingFd, fd, tag.EncodeMessage(tag.OpAccept))
	a.ring.Submit()
}
