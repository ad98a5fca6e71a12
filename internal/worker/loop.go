package worker

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/ringtransport/transport/internal/interfaces"
	"github.com/ringtransport/transport/internal/tag"
	"github.com/ringtransport/transport/internal/uring"
)

const cqeBatchSize = 128

// reapCompletions peeks and dispatches as many ready completions as fit in
// one batch and advances the completion queue past them, returning how many
// were processed.
func (w *Worker) reapCompletions() int {
	var batch [cqeBatchSize]uring.CQE
	n := w.ring.PeekBatchCQE(batch[:])
	for i := 0; i < n; i++ {
		w.handleCompletion(batch[i])
	}
	w.ring.CQAdvance(uint32(n))
	return n
}

func (w *Worker) handleCompletion(cqe uring.CQE) {
	op, fd, aux := tag.Decode(cqe.UserData)

	if cqe.Res < 0 {
		w.events.Remove(cqe.UserData)
		w.discardPending(cqe.UserData)
		w.deliverCompletionError(op, fd, int(aux), syscall.Errno(-cqe.Res))
		return
	}

	switch op {
	case tag.OpAccept:
		w.events.Remove(cqe.UserData)
		newFd := int(cqe.Res)
		// The peer address isn't captured by the multishot accept SQE
		// itself (it is forwarded across rings by fd alone via msg_ring,
		// which carries no room for a sockaddr); getpeername on the
		// now-connected fd recovers the exact same address a captured
		// accept buffer would have held, whether this fd was accepted
		// directly or forwarded in from an Acceptor.
		addr, _ := unix.Getpeername(newFd)
		w.armInitialRead(op, newFd, addr)

	case tag.OpConnect:
		w.events.Remove(cqe.UserData)
		newFd := int(cqe.Res)
		addr := w.takeConnectAddr(cqe.UserData)
		w.armInitialRead(op, newFd, addr)

	case tag.OpRead:
		w.events.Remove(cqe.UserData)
		n := int(cqe.Res)
		bufferID := int(aux)
		w.buffers.SetLength(bufferID, n)
		var addr unix.Sockaddr
		if msg, ok := w.takeMsg(cqe.UserData); ok {
			addr, _ = uring.DecodeMsgName(msg)
		}
		seqID, hasSeq := w.takeSeq(cqe.UserData)
		if hasSeq {
			w.sequences.AddBuffer(seqID, bufferID)
		}
		w.readPort <- interfaces.ReadPayload{Fd: fd, BufferID: bufferID, Data: w.buffers.Bytes(bufferID), Addr: addr, SequenceID: seqID}
		if w.obs != nil {
			w.obs.ObserveRead(uint64(n), 0, true)
		}

	case tag.OpWrite:
		w.events.Remove(cqe.UserData)
		bufferID := int(aux)
		seqID, hasSeq := w.takeSeq(cqe.UserData)
		if hasSeq {
			if elem, ok := w.sequences.First(seqID); ok {
				w.sequences.ReleaseElement(seqID, elem)
			}
		}
		w.writePort <- interfaces.WritePayload{Fd: fd, BufferID: bufferID, Size: int(cqe.Res), SequenceID: seqID}
		if w.obs != nil {
			w.obs.ObserveWrite(uint64(cqe.Res), 0, true)
		}

	case tag.OpClose:
		// Completion of our own async-cancel or close SQE; nothing to
		// dispatch to the runtime.

	default:
		// OpMessage and bare Custom() completions carry no payload the
		// runtime needs decoded here; they exist purely to wake the loop.
	}
}

// armInitialRead allocates a buffer and stages the first read on a freshly
// accepted or connected fd, then notifies the runtime it is ready. addr is
// the peer's address, when known (see handleCompletion's OpAccept/OpConnect
// cases), and is nil if it could not be determined.
func (w *Worker) armInitialRead(op tag.OpClass, fd int, addr unix.Sockaddr) {
	bufferID, ok := w.buffers.Get()
	if !ok {
		if w.obs != nil {
			w.obs.ObserveBufferExhaustion()
		}
		w.deliverInitialError(op, fd, errAllocationExhausted)
		return
	}

	w.stageOp(&operation{kind: opAddRead, fd: fd, bufferID: bufferID})

	if op == tag.OpAccept {
		if w.obs != nil {
			w.obs.ObserveAccept(0, true)
		}
		w.acceptPort <- interfaces.AcceptPayload{Fd: fd, Addr: addr}
		return
	}
	if w.obs != nil {
		w.obs.ObserveConnect(0, true)
	}
	w.connectPort <- interfaces.ConnectPayload{Fd: fd, Addr: addr}
}

// takeSeq pops the sequence id associated with tag t, if AddRead/AddWrite/
// AddSendMessage/AddReceiveMessage was called with a nonzero sequenceID.
func (w *Worker) takeSeq(t uint64) (int, bool) {
	id, ok := w.pendingSeq[t]
	if ok {
		delete(w.pendingSeq, t)
	}
	return id, ok
}

// takeConnectAddr pops the destination address an opConnect staged for tag
// t, the address the worker itself dialed.
func (w *Worker) takeConnectAddr(t uint64) unix.Sockaddr {
	addr := w.pendingConnectAddr[t]
	delete(w.pendingConnectAddr, t)
	return addr
}

// takeMsg pops the Msghdr an opAddReceiveMessage staged for tag t, whose
// scratch name buffer the kernel fills in with the sender's address.
func (w *Worker) takeMsg(t uint64) (*unix.Msghdr, bool) {
	msg, ok := w.pendingMsg[t]
	if ok {
		delete(w.pendingMsg, t)
	}
	return msg, ok
}

// discardPending drops any sequence/address/msghdr bookkeeping staged
// against tag t, used when an event registered against it is removed via a
// path other than its own successful completion (cancellation, timeout).
func (w *Worker) discardPending(t uint64) {
	delete(w.pendingSeq, t)
	delete(w.pendingConnectAddr, t)
	delete(w.pendingMsg, t)
}

func (w *Worker) deliverInitialError(op tag.OpClass, fd int, err error) {
	if op == tag.OpAccept {
		if w.obs != nil {
			w.obs.ObserveAccept(0, false)
		}
		w.acceptPort <- interfaces.AcceptPayload{Fd: fd, Err: err}
		return
	}
	if w.obs != nil {
		w.obs.ObserveConnect(0, false)
	}
	w.connectPort <- interfaces.ConnectPayload{Fd: fd, Err: err}
}

func (w *Worker) deliverCompletionError(op tag.OpClass, fd, bufferID int, errno syscall.Errno) {
	switch op {
	case tag.OpAccept, tag.OpConnect:
		w.deliverInitialError(op, fd, errno)
	case tag.OpRead:
		if w.obs != nil {
			w.obs.ObserveRead(0, 0, false)
		}
		w.readPort <- interfaces.ReadPayload{Fd: fd, BufferID: bufferID, Err: errno}
	case tag.OpWrite:
		if w.obs != nil {
			w.obs.ObserveWrite(0, 0, false)
		}
		w.writePort <- interfaces.WritePayload{Fd: fd, BufferID: bufferID, Err: errno}
	}
}

func (w *Worker) deliverReadError(fd, bufferID int, err error) {
	if w.obs != nil {
		w.obs.ObserveRead(0, 0, false)
	}
	w.readPort <- interfaces.ReadPayload{Fd: fd, BufferID: bufferID, Err: err}
}

func (w *Worker) deliverWriteError(fd, bufferID int, err error) {
	if w.obs != nil {
		w.obs.ObserveWrite(0, 0, false)
	}
	w.writePort <- interfaces.WritePayload{Fd: fd, BufferID: bufferID, Err: err}
}

// checkTimeouts submits an async-cancel SQE for every event that has
// expired since the last check, per the worker's timeout checker period.
func (w *Worker) checkTimeouts() {
	expired := w.events.CheckTimeouts(w.nowNs())
	if len(expired) == 0 {
		return
	}
	for _, t := range expired {
		sqe := w.provideSQE()
		sqe.PrepareCancelTag(t)
		sqe.SetUserData(tag.Encode(tag.OpClose, 0, 0))
		w.events.Remove(t)
		w.discardPending(t)
		if w.obs != nil {
			w.obs.ObserveCancel()
		}
	}
	w.ring.Submit()
}

// notifyListener forwards a single msg_ring to the Listener this worker
// reports to, carrying the worker's own id as the len argument, matching
// the ready_workers[worker_id] bookkeeping on the receiving side.
func (w *Worker) notifyListener() {
	sqe := w.provideSQE()
	sqe.PrepareMsgRing(w.listenerRingFd, w.id, tag.EncodeMessage(tag.OpMessage))
	w.ring.Submit()
}

// errAllocationExhausted is delivered when the buffer pool has no free id
// to arm an initial read with.
var errAllocationExhausted = syscall.ENOBUFS
