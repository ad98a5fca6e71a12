// Package uring wraps the kernel submission/completion queue ring behind a
// narrow interface so the rest of the tree never imports the ring backend
// directly. Every ring-owning entity (Worker, Acceptor, Connector,
// Listener) is backed by one Ring; a ring is owned by exactly one OS
// thread, and submission from any other thread is forbidden.
package uring

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"
)

// ErrRingFull describes a submission queue with no free slots. GetSQE does
// not return it; GetSQE reports that condition as ok=false. The worker's
// provide_sqe contract is the only legal response: submit what has been
// staged, yield to the scheduler, and retry.
var ErrRingFull = errors.New("uring: submission queue full")

// CQE is a decoded completion queue entry.
type CQE struct {
	UserData uint64
	Res      int32
	Flags    uint32
}

// CQE flag bits relevant to buffer-select completions (flags>>16 recovers
// the provided-buffer id the kernel picked for a recv).
const (
	CQEFBuffer    = 1 << 0
	CQEFMore      = 1 << 1
	CQEBufferShift = 16
)

// SQE is a single submission queue entry acquired from a Ring. Exactly one
// PrepareXxx call and one SetUserData call must be made before the SQE is
// considered staged; SetFlags is optional and used for IOSQE_IO_LINK
// chaining and provided-buffer selection.
type SQE interface {
	PrepareReadFixed(fd int, bufIndex int, buf []byte, offset uint64)
	PrepareWriteFixed(fd int, bufIndex int, buf []byte, offset uint64)
	PrepareSendMsg(fd int, msg *unix.Msghdr, flags int)
	PrepareRecvMsg(fd int, msg *unix.Msghdr, flags int)
	PrepareMultishotAccept(fd int)
	PrepareConnect(fd int, addr unix.Sockaddr) error
	PrepareMsgRing(targetRingFd int32, length int, tag uint64)
	PrepareCancelFd(fd int)
	PrepareCancelTag(cancelTag uint64)
	PrepareClose(fd int)
	PrepareNop()
	SetUserData(tag uint64)
	SetFlags(flags uint8)
	SetBufferGroup(groupID uint16)
}

// IOSQE flag bits, mirroring the kernel uapi constants used to chain or
// annotate submissions.
const (
	SqeIOLink      uint8 = 1 << 2
	SqeBufferSelect uint8 = 1 << 5
)

// Ring is the minimal surface the Worker, Acceptor, Connector and Listener
// need from a kernel submission/completion queue pair.
type Ring interface {
	// Fd returns the ring's own file descriptor, used as the target of a
	// msg_ring SQE submitted by another ring.
	Fd() int32

	// GetSQE acquires a submission queue entry to prepare. It never
	// blocks; callers that receive ok=false must submit what they have,
	// yield to the scheduler, and retry (the provide_sqe contract).
	GetSQE() (sqe SQE, ok bool)

	// Submit flushes prepared SQEs to the kernel without waiting for any
	// completions.
	Submit() (uint32, error)

	// SubmitAndWaitTimeout flushes prepared SQEs and blocks until at
	// least waitNr completions are available or timeout elapses.
	SubmitAndWaitTimeout(waitNr uint32, timeout time.Duration) (uint32, error)

	// PeekBatchCQE fills cqes with as many ready completions as fit and
	// returns the count; it does not block.
	PeekBatchCQE(cqes []CQE) int

	// CQAdvance releases n completions back to the kernel after they have
	// been processed.
	CQAdvance(n uint32)

	// RegisterBuffers registers a fixed-buffer table once at startup.
	RegisterBuffers(iovecs []unix.Iovec) error

	// Close tears down the ring and releases kernel resources.
	Close() error
}

// Config configures a new Ring.
type Config struct {
	Entries uint32
	Flags   uint32
}

// DefaultConfig returns a sensible default ring configuration.
func DefaultConfig() Config {
	return Config{Entries: 256}
}
