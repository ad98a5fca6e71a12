package transport

import (
	"github.com/ringtransport/transport/internal/acceptor"
	"github.com/ringtransport/transport/internal/connector"
	"github.com/ringtransport/transport/internal/listener"
	"github.com/ringtransport/transport/internal/worker"
)

// WorkerConfig configures a single Worker: its fixed buffer pool, its
// sequence pool and its ring.
type WorkerConfig = worker.Config

// DefaultWorkerConfig returns sensible single-worker defaults.
func DefaultWorkerConfig() WorkerConfig { return worker.DefaultConfig() }

// AcceptorConfig configures the Acceptor's ring and poll cadence.
type AcceptorConfig = acceptor.Config

// DefaultAcceptorConfig returns sensible Acceptor defaults.
func DefaultAcceptorConfig() AcceptorConfig { return acceptor.DefaultConfig() }

// ConnectorConfig configures the Connector's ring and poll cadence.
type ConnectorConfig = connector.Config

// DefaultConnectorConfig returns sensible Connector defaults.
func DefaultConnectorConfig() ConnectorConfig { return connector.DefaultConfig() }

// ListenerConfig configures the Listener's ring and worker tally.
type ListenerConfig = listener.Config

// DefaultListenerConfig returns sensible Listener defaults.
func DefaultListenerConfig() ListenerConfig { return listener.DefaultConfig() }

// Config configures a complete Transport: one Listener, one Acceptor, one
// Connector and a pool of Workers.
type Config struct {
	Workers   []WorkerConfig
	Acceptor  AcceptorConfig
	Connector ConnectorConfig
	Listener  ListenerConfig

	// ListenAddr is the ip:port the Acceptor's server socket binds to.
	ListenAddr string
}

// DefaultConfig returns a two-worker TCP configuration suitable for the
// echo-server example and for tests that need a complete, wired Transport.
func DefaultConfig() Config {
	w1 := DefaultWorkerConfig()
	w1.ID = 0
	w2 := DefaultWorkerConfig()
	w2.ID = 1

	listenerCfg := DefaultListenerConfig()
	listenerCfg.WorkersCount = 2

	return Config{
		Workers:    []WorkerConfig{w1, w2},
		Acceptor:   DefaultAcceptorConfig(),
		Connector:  DefaultConnectorConfig(),
		Listener:   listenerCfg,
		ListenAddr: "127.0.0.1:0",
	}
}
