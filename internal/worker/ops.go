package worker

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/ringtransport/transport/internal/interfaces"
	"github.com/ringtransport/transport/internal/socket"
	"github.com/ringtransport/transport/internal/tag"
	"github.com/ringtransport/transport/internal/uring"
)

type opKind int

const (
	opFunc opKind = iota
	opAddRead
	opAddWrite
	opAddSendMessage
	opAddReceiveMessage
	opConnect
	opAccept
	opCancelByFd
	opRemoveEvent
	opCustom
	opSubmit
)

// operation is a single queued request for the drain-loop goroutine; either
// a typed ring operation or an arbitrary closure (see Worker.call).
type operation struct {
	kind opKind
	fn   func()

	fd         int
	bufferID   int
	offset     uint64
	timeout    time.Duration
	sequenceID int
	sqeFlags   uint8
	msgFlags   int
	addr       unix.Sockaddr

	client *socket.Client
	server *socket.Server

	tag uint64
}

// AddRead queues a fixed-buffer read of fd into bufferID at offset. A
// positive timeout registers the resulting tag with the event registry. A
// nonzero sequenceID appends bufferID to that sequence once the read
// completes, chaining it into a multi-buffer transfer (see
// Worker.AllocateSequence); pass 0 for a standalone read.
func (w *Worker) AddRead(fd, bufferID int, offset uint64, timeout time.Duration, sqeFlags uint8, sequenceID int) {
	w.inbound.push(&operation{kind: opAddRead, fd: fd, bufferID: bufferID, offset: offset, timeout: timeout, sqeFlags: sqeFlags, sequenceID: sequenceID})
}

// AddWrite queues a fixed-buffer write of bufferID's current logical
// contents to fd at offset. A nonzero sequenceID releases that sequence's
// head element once the write completes, consuming it in completion
// order; pass 0 for a standalone write.
func (w *Worker) AddWrite(fd, bufferID int, offset uint64, timeout time.Duration, sqeFlags uint8, sequenceID int) {
	w.inbound.push(&operation{kind: opAddWrite, fd: fd, bufferID: bufferID, offset: offset, timeout: timeout, sqeFlags: sqeFlags, sequenceID: sequenceID})
}

// AddSendMessage queues a sendmsg of bufferID's contents to addr (nil for a
// connected socket). sequenceID behaves as in AddWrite.
func (w *Worker) AddSendMessage(fd, bufferID int, addr unix.Sockaddr, msgFlags int, timeout time.Duration, sqeFlags uint8, sequenceID int) {
	w.inbound.push(&operation{kind: opAddSendMessage, fd: fd, bufferID: bufferID, addr: addr, msgFlags: msgFlags, timeout: timeout, sqeFlags: sqeFlags, sequenceID: sequenceID})
}

// AddReceiveMessage queues a recvmsg into bufferID, capturing the sender's
// address for delivery on ReadPayload.Addr. sequenceID behaves as in
// AddRead.
func (w *Worker) AddReceiveMessage(fd, bufferID int, msgFlags int, timeout time.Duration, sqeFlags uint8, sequenceID int) {
	w.inbound.push(&operation{kind: opAddReceiveMessage, fd: fd, bufferID: bufferID, msgFlags: msgFlags, timeout: timeout, sqeFlags: sqeFlags, sequenceID: sequenceID})
}

// Connect queues an async connect for client.
func (w *Worker) Connect(client *socket.Client, timeout time.Duration) {
	w.inbound.push(&operation{kind: opConnect, client: client, timeout: timeout})
}

// Accept queues a multishot accept on server, used when a worker owns its
// own listening socket rather than receiving forwarded fds from an
// Acceptor.
func (w *Worker) Accept(server *socket.Server) {
	w.inbound.push(&operation{kind: opAccept, server: server})
}

// CancelByFd submits an async-cancel SQE for every event currently
// registered against fd.
func (w *Worker) CancelByFd(fd int) {
	w.inbound.push(&operation{kind: opCancelByFd, fd: fd})
}

// RemoveEvent drops a tag from the event registry without canceling its
// underlying operation, e.g. once its completion has already been handled.
func (w *Worker) RemoveEvent(t uint64) {
	w.inbound.push(&operation{kind: opRemoveEvent, tag: t})
}

// Custom posts a user-data-only no-op completion to the worker's own ring,
// letting the runtime wake the drain loop for reasons outside the
// read/write/accept/connect vocabulary.
func (w *Worker) Custom(data uint64) {
	w.inbound.push(&operation{kind: opCustom, tag: data})
}

// Submit forces an immediate flush of any SQEs staged so far, instead of
// waiting for the loop's own submit-and-wait call.
func (w *Worker) Submit() {
	w.inbound.push(&operation{kind: opSubmit})
}

// Close stops accepting new queued operations; in-flight ones already
// pushed are still drained by the loop before Run returns.
func (w *Worker) Close() {
	w.inbound.close()
}

func (w *Worker) drainInbound() {
	for {
		op, ok := w.inbound.tryPop()
		if !ok {
			return
		}
		w.stageOp(op)
	}
}

// provideSQE is the provide_sqe contract: GetSQE never fails here. A full
// ring is handled by submitting what is already staged and yielding to the
// scheduler before retrying, never by returning an error to the caller.
func (w *Worker) provideSQE() uring.SQE {
	for {
		if sqe, ok := w.ring.GetSQE(); ok {
			return sqe
		}
		w.ring.Submit()
		w.sched.Yield()
	}
}

func (w *Worker) nowNs() int64 {
	return time.Now().UnixNano()
}

func (w *Worker) stageOp(op *operation) {
	switch op.kind {
	case opFunc:
		op.fn()

	case opAddRead:
		sqe := w.provideSQE()
		buf := w.buffers.Capacity(op.bufferID)
		sqe.PrepareReadFixed(op.fd, op.bufferID, buf, op.offset)
		t := tag.Encode(tag.OpRead, op.fd, uint32(op.bufferID))
		sqe.SetUserData(t)
		if op.sqeFlags != 0 {
			sqe.SetFlags(op.sqeFlags)
		}
		if op.timeout > 0 {
			w.events.Register(t, op.timeout.Nanoseconds(), w.nowNs())
		}
		if op.sequenceID != 0 {
			w.pendingSeq[t] = op.sequenceID
		}

	case opAddWrite:
		sqe := w.provideSQE()
		buf := w.buffers.Bytes(op.bufferID)
		sqe.PrepareWriteFixed(op.fd, op.bufferID, buf, op.offset)
		t := tag.Encode(tag.OpWrite, op.fd, uint32(op.bufferID))
		sqe.SetUserData(t)
		if op.sqeFlags != 0 {
			sqe.SetFlags(op.sqeFlags)
		}
		if op.timeout > 0 {
			w.events.Register(t, op.timeout.Nanoseconds(), w.nowNs())
		}
		if op.sequenceID != 0 {
			w.pendingSeq[t] = op.sequenceID
		}

	case opAddSendMessage:
		sqe := w.provideSQE()
		buf := w.buffers.Bytes(op.bufferID)
		msg, err := uring.BuildMsghdr(op.addr, buf)
		t := tag.Encode(tag.OpWrite, op.fd, uint32(op.bufferID))
		if err != nil {
			w.deliverWriteError(op.fd, op.bufferID, err)
			break
		}
		sqe.PrepareSendMsg(op.fd, msg, op.msgFlags)
		sqe.SetUserData(t)
		if op.sqeFlags != 0 {
			sqe.SetFlags(op.sqeFlags)
		}
		if op.timeout > 0 {
			w.events.Register(t, op.timeout.Nanoseconds(), w.nowNs())
		}
		if op.sequenceID != 0 {
			w.pendingSeq[t] = op.sequenceID
		}

	case opAddReceiveMessage:
		sqe := w.provideSQE()
		buf := w.buffers.Capacity(op.bufferID)
		msg := uring.BuildRecvMsghdr(buf)
		t := tag.Encode(tag.OpRead, op.fd, uint32(op.bufferID))
		sqe.PrepareRecvMsg(op.fd, msg, op.msgFlags)
		sqe.SetUserData(t)
		if op.sqeFlags != 0 {
			sqe.SetFlags(op.sqeFlags)
		}
		if op.timeout > 0 {
			w.events.Register(t, op.timeout.Nanoseconds(), w.nowNs())
		}
		if op.sequenceID != 0 {
			w.pendingSeq[t] = op.sequenceID
		}
		w.pendingMsg[t] = msg

	case opConnect:
		sqe := w.provideSQE()
		if err := sqe.PrepareConnect(op.client.Fd, op.client.Addr); err != nil {
			w.connectPort <- interfaces.ConnectPayload{Fd: op.client.Fd, Err: err}
			break
		}
		t := tag.Encode(tag.OpConnect, op.client.Fd, 0)
		sqe.SetUserData(t)
		w.pendingConnectAddr[t] = op.client.Addr
		if op.timeout > 0 {
			w.events.Register(t, op.timeout.Nanoseconds(), w.nowNs())
		}

	case opAccept:
		sqe := w.provideSQE()
		sqe.PrepareMultishotAccept(op.server.Fd)
		t := tag.Encode(tag.OpAccept, op.server.Fd, 0)
		sqe.SetUserData(t)

	case opCancelByFd:
		matching := w.events.FdTags(func(t uint64) bool { return tag.HasFd(t, op.fd) })
		for _, t := range matching {
			sqe := w.provideSQE()
			sqe.PrepareCancelTag(t)
			sqe.SetUserData(tag.Encode(tag.OpClose, op.fd, 0))
			w.events.Remove(t)
			w.discardPending(t)
			if w.obs != nil {
				w.obs.ObserveCancel()
			}
		}

	case opRemoveEvent:
		w.events.Remove(op.tag)

	case opCustom:
		sqe := w.provideSQE()
		sqe.PrepareNop()
		sqe.SetUserData(op.tag)

	case opSubmit:
		w.ring.Submit()
	}
}
