// Package interfaces holds narrow internal contracts shared by the
// worker/acceptor/connector/listener packages and the root transport
// package, kept separate to avoid a circular import between them.
package interfaces

import "golang.org/x/sys/unix"

// Logger is the minimal logging surface a ring-owning component needs.
// internal/logging.Logger satisfies it structurally.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer is the minimal metrics surface a ring-owning component needs.
// The root package's *MetricsObserver and NoOpObserver satisfy it
// structurally.
type Observer interface {
	ObserveAccept(latencyNs uint64, success bool)
	ObserveConnect(latencyNs uint64, success bool)
	ObserveRead(bytes uint64, latencyNs uint64, success bool)
	ObserveWrite(bytes uint64, latencyNs uint64, success bool)
	ObserveCancel()
	ObserveBufferExhaustion()
	ObserveQueueDepth(depth uint32)
}

// ReadPayload is delivered on a worker's read port after a read or recv
// completion. The runtime owns Data until it calls back to release
// BufferID. Addr is set for a receive_message completion on an unconnected
// (datagram) socket, carrying the sender's address; it is nil for a plain
// read. SequenceID is nonzero when the read was issued with a sequence id,
// in which case BufferID has already been appended to that sequence.
type ReadPayload struct {
	Fd         int
	BufferID   int
	Data       []byte
	Addr       unix.Sockaddr
	SequenceID int
	Err        error
}

// WritePayload is delivered on a worker's write port after a write or send
// completion. SequenceID is nonzero when the write was issued with a
// sequence id, in which case the sequence's head element has already been
// released.
type WritePayload struct {
	Fd         int
	BufferID   int
	Size       int
	SequenceID int
	Err        error
}

// AcceptPayload is delivered on a worker's accept port once a forwarded fd
// has been registered and its first read armed.
type AcceptPayload struct {
	Fd   int
	Addr unix.Sockaddr
	Err  error
}

// ConnectPayload is delivered on a worker's connect port once an outbound
// connection completes.
type ConnectPayload struct {
	Fd   int
	Addr unix.Sockaddr
	Err  error
}
