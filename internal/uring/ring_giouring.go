//go:build linux

package uring

import (
	"syscall"
	"time"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
	"golang.org/x/sys/unix"
)

// giouringRing backs Ring with github.com/pawelgaczynski/giouring, the
// dependency the teacher's go.mod already carried for its (unused, CGO
// based) URING_CMD path; here it drives the standard network opcodes
// instead.
type giouringRing struct {
	ring *giouring.Ring
}

// NewGiouringRing creates a Ring backed by a real kernel io_uring instance.
func NewGiouringRing(cfg Config) (Ring, error) {
	ring, err := giouring.CreateRing(cfg.Entries)
	if err != nil {
		return nil, err
	}
	return &giouringRing{ring: ring}, nil
}

func (r *giouringRing) Fd() int32 {
	return int32(r.ring.Fd())
}

func (r *giouringRing) GetSQE() (SQE, bool) {
	entry := r.ring.GetSQE()
	if entry == nil {
		return nil, false
	}
	return &giouringSQE{entry: entry}, true
}

func (r *giouringRing) Submit() (uint32, error) {
	return r.ring.SubmitAndWait(0)
}

func (r *giouringRing) SubmitAndWaitTimeout(waitNr uint32, timeout time.Duration) (uint32, error) {
	ts := syscall.NsecToTimespec(int64(timeout))
	n, err := r.ring.SubmitAndWaitTimeout(waitNr, &ts, nil)
	if err == syscall.ETIME || err == syscall.EAGAIN || err == syscall.EINTR {
		return n, nil
	}
	return n, err
}

func (r *giouringRing) PeekBatchCQE(cqes []CQE) int {
	raw := make([]*giouring.CompletionQueueEvent, len(cqes))
	n := r.ring.PeekBatchCQE(raw)
	for i := 0; i < int(n); i++ {
		cqes[i] = CQE{UserData: raw[i].UserData, Res: raw[i].Res, Flags: raw[i].Flags}
	}
	return int(n)
}

func (r *giouringRing) CQAdvance(n uint32) {
	r.ring.CQAdvance(n)
}

func (r *giouringRing) RegisterBuffers(iovecs []unix.Iovec) error {
	return r.ring.RegisterBuffers(iovecs)
}

func (r *giouringRing) Close() error {
	r.ring.QueueExit()
	return nil
}

// giouringSQE adapts a *giouring.SubmissionQueueEntry to the SQE interface.
type giouringSQE struct {
	entry *giouring.SubmissionQueueEntry
}

func (s *giouringSQE) PrepareReadFixed(fd int, bufIndex int, buf []byte, offset uint64) {
	s.entry.PrepareReadFixed(fd, uintptr(unsafe.Pointer(&buf[0])), uint32(len(buf)), offset, bufIndex)
}

func (s *giouringSQE) PrepareWriteFixed(fd int, bufIndex int, buf []byte, offset uint64) {
	s.entry.PrepareWriteFixed(fd, uintptr(unsafe.Pointer(&buf[0])), uint32(len(buf)), offset, bufIndex)
}

func (s *giouringSQE) PrepareSendMsg(fd int, msg *unix.Msghdr, flags int) {
	s.entry.PrepareSendMsg(fd, (*syscall.Msghdr)(unsafe.Pointer(msg)), uint32(flags))
}

func (s *giouringSQE) PrepareRecvMsg(fd int, msg *unix.Msghdr, flags int) {
	s.entry.PrepareRecvMsg(fd, (*syscall.Msghdr)(unsafe.Pointer(msg)), uint32(flags))
}

func (s *giouringSQE) PrepareMultishotAccept(fd int) {
	s.entry.PrepareMultishotAccept(fd, 0, 0, 0)
}

func (s *giouringSQE) PrepareConnect(fd int, addr unix.Sockaddr) error {
	rsa, addrLen, err := sockaddrToRaw(addr)
	if err != nil {
		return err
	}
	s.entry.PrepareConnect(fd, uintptr(unsafe.Pointer(rsa)), uint64(addrLen))
	return nil
}

func (s *giouringSQE) PrepareMsgRing(targetRingFd int32, length int, tag uint64) {
	s.entry.PrepareMsgRing(int(targetRingFd), uint32(length), tag, 0)
}

func (s *giouringSQE) PrepareCancelFd(fd int) {
	s.entry.PrepareCancelFd(fd, 0)
}

func (s *giouringSQE) PrepareCancelTag(cancelTag uint64) {
	s.entry.PrepareCancel(cancelTag, 0)
}

func (s *giouringSQE) PrepareClose(fd int) {
	s.entry.PrepareClose(fd)
}

func (s *giouringSQE) PrepareNop() {
	s.entry.PrepareNop()
}

func (s *giouringSQE) SetUserData(tag uint64) {
	s.entry.UserData = tag
}

func (s *giouringSQE) SetFlags(flags uint8) {
	s.entry.Flags = flags
}

func (s *giouringSQE) SetBufferGroup(groupID uint16) {
	s.entry.Flags |= SqeBufferSelect
	s.entry.BufIG = groupID
}
