// Package transport implements an io_uring-style asynchronous I/O core: a
// pool of ring-owning Workers fed by an Acceptor and a Connector through
// msg_ring forwarding, coordinated by a round-robin Balancer and a
// Listener that tracks which workers currently have completions to drain.
package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/ringtransport/transport/internal/acceptor"
	"github.com/ringtransport/transport/internal/balancer"
	"github.com/ringtransport/transport/internal/connector"
	"github.com/ringtransport/transport/internal/listener"
	"github.com/ringtransport/transport/internal/logging"
	"github.com/ringtransport/transport/internal/socket"
	"github.com/ringtransport/transport/internal/uring"
	"github.com/ringtransport/transport/internal/worker"
)

// Transport wires one Listener, one Acceptor, one Connector and a pool of
// Workers into a single running system.
type Transport struct {
	cfg Config

	server *socket.Server
	bal    *balancer.Balancer

	workers  []*worker.Worker
	acc      *acceptor.Acceptor
	conn     *connector.Connector
	lis      *listener.Listener
	logger   *logging.Logger
	metrics  *Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Transport from cfg without starting it: it creates the
// listening socket and every ring, registers every worker's buffer pool,
// and wires the Balancer, but issues no accepts or connects until Start is
// called.
func New(cfg Config, logger *logging.Logger) (*Transport, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if len(cfg.Workers) == 0 {
		return nil, NewError("transport.New", CodeInvalidParameters, "at least one worker is required")
	}

	host, portStr, err := net.SplitHostPort(cfg.ListenAddr)
	if err != nil {
		return nil, WrapError("transport.New", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, NewError("transport.New", CodeInvalidParameters, fmt.Sprintf("invalid port %q", portStr))
	}

	server, err := socket.NewServer(socket.ServerOptions{
		Family:  socket.FamilyTCP,
		IP:      host,
		Port:    port,
		Backlog: 128,
	})
	if err != nil {
		return nil, WrapError("transport.New", err)
	}

	listenerRing, err := uring.NewGiouringRing(uring.Config{Entries: cfg.Listener.RingEntries})
	if err != nil {
		return nil, WrapError("transport.New", err)
	}
	lis := listener.New(cfg.Listener, listenerRing, logger)

	bal := balancer.New()
	metrics := NewMetrics()
	obs := NewMetricsObserver(metrics)

	workers := make([]*worker.Worker, 0, len(cfg.Workers))
	for _, wcfg := range cfg.Workers {
		ring, err := uring.NewGiouringRing(uring.Config{Entries: wcfg.RingEntries})
		if err != nil {
			return nil, WrapError("transport.New", err)
		}
		w, err := worker.New(wcfg, ring, logger.WithWorker(wcfg.ID), obs)
		if err != nil {
			return nil, WrapError("transport.New", err)
		}
		w.SetListenerRingFd(lis.RingFd())
		workers = append(workers, w)
		bal.Add(balancer.Channel{WorkerID: wcfg.ID, RingFd: w.RingFd()})
	}

	acceptorRing, err := uring.NewGiouringRing(uring.Config{Entries: cfg.Acceptor.RingEntries})
	if err != nil {
		return nil, WrapError("transport.New", err)
	}
	acc := acceptor.New(cfg.Acceptor, acceptorRing, server, bal, logger)

	connectorRing, err := uring.NewGiouringRing(uring.Config{Entries: cfg.Connector.RingEntries})
	if err != nil {
		return nil, WrapError("transport.New", err)
	}
	conn := connector.New(cfg.Connector, connectorRing, bal, logger)

	return &Transport{
		cfg:     cfg,
		server:  server,
		bal:     bal,
		workers: workers,
		acc:     acc,
		conn:    conn,
		lis:     lis,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Workers returns the running workers in configuration order, so a runtime
// can read their ports and drive AddRead/AddWrite.
func (t *Transport) Workers() []*worker.Worker { return t.workers }

// Connector exposes the Connector so a runtime can queue outbound connects.
func (t *Transport) Connector() *connector.Connector { return t.conn }

// Metrics returns the Transport's metrics, snapshot-able at any time.
func (t *Transport) Metrics() *Metrics { return t.metrics }

// ListenPort returns the bound TCP port, useful when Config.ListenAddr asks
// for an ephemeral port.
func (t *Transport) ListenPort() int { return t.server.Port }

// Start launches the Listener, Acceptor, Connector and every Worker on
// their own goroutine and returns immediately; call Shutdown to stop them.
func (t *Transport) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	t.wg.Add(3 + len(t.workers))
	go func() { defer t.wg.Done(); t.lis.Run(ctx) }()
	go func() { defer t.wg.Done(); t.acc.Run(ctx) }()
	go func() { defer t.wg.Done(); t.conn.Run(ctx) }()
	for _, w := range t.workers {
		w := w
		go func() { defer t.wg.Done(); w.Run(ctx) }()
	}
}

// Shutdown cancels every component's drain loop and blocks until they have
// all returned.
func (t *Transport) Shutdown() {
	if t.cancel != nil {
		t.cancel()
	}
	for _, w := range t.workers {
		w.Close()
	}
	t.wg.Wait()
	t.metrics.Stop()
}
