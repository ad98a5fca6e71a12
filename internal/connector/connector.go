// Package connector implements the Connector: a dedicated ring that issues
// outbound async connects on behalf of the rest of the system and forwards
// each established fd to a worker chosen by the Balancer, mirroring the
// Acceptor's msg_ring forwarding convention exactly.
package connector

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

// Config configures a Connector.
type Config struct {
	RingEntries          uint32
	PollTimeout          time.Duration
	InboundQueueCapacity int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{RingEntries: 64, PollTimeout: 50 * time.Millisecond, InboundQueueCapacity: 64}
}

// Connector owns one ring and issues outbound connects queued by the
// runtime, forwarding each established connection to a balanced worker.
type Connector struct {
	cfg    Config
	ring   uring.Ring
	bal    *balancer.Balancer
	sched  scheduler.Scheduler
	logger interfaces.Logger

	pending chan *socket.Client
}

// New creates a Connector forwarding established connections to bal.
func New(cfg Config, ring uring.Ring, bal *balancer.Balancer, logger interfaces.Logger) *Connector {
	return &Connector{
		cfg:     cfg,
		ring:    ring,
		bal:     bal,
		sched:   scheduler.Default{},
		logger:  logger,
		pending: make(chan *socket.Client, cfg.InboundQueueCapacity),
	}
}

// Connect queues an outbound connect for client; blocks if the inbound
// queue is full, providing backpressure.
func (c *Connector) Connect(client *socket.Client) {
	c.pending <- client
}

func (c *Connector) provideSQE() uring.SQE {
	for {
		if sqe, ok := c.ring.GetSQE(); ok {
			return sqe
		}
		c.ring.Submit()
		c.sched.Yield()
	}
}

// Run drains queued connects and reaps their completions until ctx is
// canceled.
func (c *Connector) Run(ctx context.Context) error {
	defer c.ring.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case client := <-c.pending:
			c.stage(client)
		default:
		}

		if _, err := c.ring.SubmitAndWaitTimeout(0, c.cfg.PollTimeout); err != nil {
			if c.logger != nil {
				c.logger.Debugf("connector: submit_and_wait: %v", err)
			}
		}
		c.reap()
	}
}

func (c *Connector) stage(client *socket.Client) {
	sqe := c.provideSQE()
	if err := sqe.PrepareConnect(client.Fd, client.Addr); err != nil {
		if c.logger != nil {
			c.logger.Debugf("connector: prepare_connect fd=%d: %v", client.Fd, err)
		}
		return
	}
	sqe.SetUserData(tag.Encode(tag.OpConnect, client.Fd, 0))
	c.ring.Submit()
}

func (c *Connector) reap() {
	var batch [64]uring.CQE
	n := c.ring.PeekBatchCQE(batch[:])
	for i := 0; i < n; i++ {
		c.handle(batch[i])
	}
	c.ring.CQAdvance(uint32(n))
}

func (c *Connector) handle(cqe uring.CQE) {
	op, fd, _ := tag.Decode(cqe.UserData)
	if op != tag.OpConnect {
		return
	}
	if cqe.Res < 0 {
		if c.logger != nil {
			c.logger.Debugf("connector: connect fd=%d failed res=%d", fd, cqe.Res)
		}
		return
	}
	if c.bal.Len() == 0 {
		if c.logger != nil {
			c.logger.Debugf("connector: no workers registered, dropping fd %d", fd)
		}
		return
	}
	ch := c.bal.Next()
	c.forward(ch.RingFd, fd)
}

// forward mirrors the Acceptor's convention exactly: fd always travels in
// msg_ring's len argument, the tag always carries just the CONNECT class
// with no payload bits.
func (c *Connector) forward(targetRingFd int32, fd int) {
	sqe := c.provideSQE()
	sqe.PrepareMsgRing(targetRingFd, fd, tag.EncodeMessage(tag.OpConnect))
	c.ring.Submit()
}
