package uring

import (
	"time"

	"golang.org/x/sys/unix"
)

// FakeSQE records what a test prepared on it, so assertions can inspect the
// operation instead of parsing real kernel memory.
type FakeSQE struct {
	Op           string
	Fd           int
	BufIndex     int
	Buf          []byte
	Offset       uint64
	Msg          *unix.Msghdr
	MsgFlags     int
	Addr         unix.Sockaddr
	TargetRingFd int32
	Length       int
	CancelTag    uint64
	Tag          uint64
	SqeFlags     uint8
	BufGroup     uint16
}

func (s *FakeSQE) PrepareReadFixed(fd int, bufIndex int, buf []byte, offset uint64) {
	s.Op, s.Fd, s.BufIndex, s.Buf, s.Offset = "READ_FIXED", fd, bufIndex, buf, offset
}

func (s *FakeSQE) PrepareWriteFixed(fd int, bufIndex int, buf []byte, offset uint64) {
	s.Op, s.Fd, s.BufIndex, s.Buf, s.Offset = "WRITE_FIXED", fd, bufIndex, buf, offset
}

func (s *FakeSQE) PrepareSendMsg(fd int, msg *unix.Msghdr, flags int) {
	s.Op, s.Fd, s.Msg, s.MsgFlags = "SENDMSG", fd, msg, flags
}

func (s *FakeSQE) PrepareRecvMsg(fd int, msg *unix.Msghdr, flags int) {
	s.Op, s.Fd, s.Msg, s.MsgFlags = "RECVMSG", fd, msg, flags
}

func (s *FakeSQE) PrepareMultishotAccept(fd int) {
	s.Op, s.Fd = "MULTISHOT_ACCEPT", fd
}

func (s *FakeSQE) PrepareConnect(fd int, addr unix.Sockaddr) error {
	s.Op, s.Fd, s.Addr = "CONNECT", fd, addr
	return nil
}

func (s *FakeSQE) PrepareMsgRing(targetRingFd int32, length int, tag uint64) {
	s.Op, s.TargetRingFd, s.Length, s.Tag = "MSG_RING", targetRingFd, length, tag
}

func (s *FakeSQE) PrepareCancelFd(fd int) {
	s.Op, s.Fd = "CANCEL_FD", fd
}

func (s *FakeSQE) PrepareCancelTag(cancelTag uint64) {
	s.Op, s.CancelTag = "CANCEL_TAG", cancelTag
}

func (s *FakeSQE) PrepareClose(fd int) {
	s.Op, s.Fd = "CLOSE", fd
}

func (s *FakeSQE) PrepareNop() {
	s.Op = "NOP"
}

func (s *FakeSQE) SetUserData(tag uint64) {
	s.Tag = tag
}

func (s *FakeSQE) SetFlags(flags uint8) {
	s.SqeFlags = flags
}

func (s *FakeSQE) SetBufferGroup(groupID uint16) {
	s.BufGroup = groupID
}

// FakeRing is an in-memory Ring for unit tests: it never touches the
// kernel. Tests stage expected completions with PushCompletion and drive
// the code under test exactly as a real ring would via GetSQE/Submit/
// PeekBatchCQE/CQAdvance.
type FakeRing struct {
	fd       int32
	capacity int

	staged    []*FakeSQE
	Submitted []*FakeSQE

	completions []CQE

	RegisteredBuffers []unix.Iovec
	Closed            bool

	// SQEFull, when true, makes the next GetSQE call fail once, to
	// exercise the provide_sqe submit-yield-retry contract.
	SQEFull bool
}

// NewFakeRing creates a fake ring identified by fd, with capacity SQEs
// available per submission batch (0 means unlimited).
func NewFakeRing(fd int32, capacity int) *FakeRing {
	return &FakeRing{fd: fd, capacity: capacity}
}

func (r *FakeRing) Fd() int32 { return r.fd }

func (r *FakeRing) GetSQE() (SQE, bool) {
	if r.SQEFull {
		r.SQEFull = false
		return nil, false
	}
	if r.capacity > 0 && len(r.staged) >= r.capacity {
		return nil, false
	}
	sqe := &FakeSQE{}
	r.staged = append(r.staged, sqe)
	return sqe, true
}

func (r *FakeRing) Submit() (uint32, error) {
	n := len(r.staged)
	for _, sqe := range r.staged {
		// A msg_ring addressed at this same fake ring loops back into its
		// own completion queue immediately, mirroring what a real kernel
		// does for a self-targeted msg_ring and letting tests exercise
		// shutdown-sentinel and self-notification paths without a second
		// FakeRing standing in for the peer.
		if sqe.Op == "MSG_RING" && sqe.TargetRingFd == r.fd {
			r.completions = append(r.completions, CQE{UserData: sqe.Tag, Res: int32(sqe.Length)})
		}
	}
	r.Submitted = append(r.Submitted, r.staged...)
	r.staged = nil
	return uint32(n), nil
}

func (r *FakeRing) SubmitAndWaitTimeout(waitNr uint32, timeout time.Duration) (uint32, error) {
	return r.Submit()
}

// PushCompletion enqueues a completion a subsequent PeekBatchCQE call will
// surface, simulating a kernel CQE arriving.
func (r *FakeRing) PushCompletion(c CQE) {
	r.completions = append(r.completions, c)
}

func (r *FakeRing) PeekBatchCQE(cqes []CQE) int {
	n := len(cqes)
	if n > len(r.completions) {
		n = len(r.completions)
	}
	copy(cqes, r.completions[:n])
	return n
}

func (r *FakeRing) CQAdvance(n uint32) {
	if int(n) > len(r.completions) {
		n = uint32(len(r.completions))
	}
	r.completions = r.completions[n:]
}

func (r *FakeRing) RegisterBuffers(iovecs []unix.Iovec) error {
	r.RegisteredBuffers = iovecs
	return nil
}

func (r *FakeRing) Close() error {
	r.Closed = true
	return nil
}

var _ Ring = (*FakeRing)(nil)
var _ SQE = (*FakeSQE)(nil)
