package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ringtransport/transport/internal/tag"
	"github.com/ringtransport/transport/internal/uring"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BuffersCount = 4
	cfg.BufferSize = 64
	cfg.SequencesCount = 2
	cfg.SequenceCellsCount = 8
	cfg.PollTimeout = time.Millisecond
	cfg.TimeoutCheckerPeriod = time.Millisecond
	return cfg
}

func newTestWorker(t *testing.T) (*Worker, *uring.FakeRing) {
	t.Helper()
	ring := uring.NewFakeRing(1, 0)
	w, err := New(testConfig(), ring, nil, nil)
	require.NoError(t, err)
	return w, ring
}

func TestWorkerAllocateAndWriteBuffer(t *testing.T) {
	w, _ := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer cancel()

	id, ok := w.AllocateBuffer()
	require.True(t, ok)

	w.WriteBuffer(id, []byte("hello"))
	got := w.BufferBytes(id)
	require.Equal(t, "hello", string(got))

	w.ReleaseBuffer(id)
}

func TestWorkerAddReadStagesFixedRead(t *testing.T) {
	w, ring := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer cancel()

	id, ok := w.AllocateBuffer()
	require.True(t, ok)

	w.AddRead(42, id, 0, 0, 0, 0)
	w.Submit()

	require.Eventually(t, func() bool { return len(ring.Submitted) > 0 }, time.Second, time.Millisecond)
	sqe := ring.Submitted[len(ring.Submitted)-1]
	require.Equal(t, "READ_FIXED", sqe.Op)
	require.Equal(t, 42, sqe.Fd)
	require.Equal(t, id, sqe.BufIndex)

	op, fd, aux := tag.Decode(sqe.Tag)
	require.Equal(t, tag.OpRead, op)
	require.Equal(t, 42, fd)
	require.Equal(t, uint32(id), aux)
}

func TestWorkerReadCompletionDeliversPayload(t *testing.T) {
	w, ring := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer cancel()

	id, ok := w.AllocateBuffer()
	require.True(t, ok)
	w.AddRead(7, id, 0, 0, 0, 0)

	readTag := tag.Encode(tag.OpRead, 7, uint32(id))
	require.Eventually(t, func() bool {
		ring.PushCompletion(uring.CQE{UserData: readTag, Res: 5})
		select {
		case p := <-w.ReadPort():
			require.Equal(t, 7, p.Fd)
			require.Equal(t, id, p.BufferID)
			require.NoError(t, p.Err)
			return true
		case <-time.After(10 * time.Millisecond):
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestWorkerCancelByFdCancelsRegisteredTimeout(t *testing.T) {
	w, ring := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer cancel()

	id, ok := w.AllocateBuffer()
	require.True(t, ok)
	w.AddRead(9, id, 0, time.Hour, 0, 0)
	w.Submit()
	require.Eventually(t, func() bool { return len(ring.Submitted) > 0 }, time.Second, time.Millisecond)

	w.CancelByFd(9)
	w.Submit()

	require.Eventually(t, func() bool {
		for _, sqe := range ring.Submitted {
			if sqe.Op == "CANCEL_TAG" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestWorkerSequenceChainsReadAndReleasesOnWrite(t *testing.T) {
	w, ring := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer cancel()

	id, ok := w.AllocateBuffer()
	require.True(t, ok)
	seqID, ok := w.AllocateSequence()
	require.True(t, ok)

	w.AddRead(11, id, 0, 0, 0, seqID)
	readTag := tag.Encode(tag.OpRead, 11, uint32(id))
	require.Eventually(t, func() bool {
		ring.PushCompletion(uring.CQE{UserData: readTag, Res: 5})
		select {
		case p := <-w.ReadPort():
			require.Equal(t, seqID, p.SequenceID)
			return true
		case <-time.After(10 * time.Millisecond):
			return false
		}
	}, time.Second, 5*time.Millisecond)

	elem, ok := w.SequenceFirst(seqID)
	require.True(t, ok)
	require.Equal(t, id, w.SequenceBufferID(elem))

	w.AddWrite(11, id, 0, 0, 0, seqID)
	writeTag := tag.Encode(tag.OpWrite, 11, uint32(id))
	require.Eventually(t, func() bool {
		ring.PushCompletion(uring.CQE{UserData: writeTag, Res: 5})
		select {
		case p := <-w.WritePort():
			require.Equal(t, seqID, p.SequenceID)
			return true
		case <-time.After(10 * time.Millisecond):
			return false
		}
	}, time.Second, 5*time.Millisecond)

	_, ok = w.SequenceFirst(seqID)
	require.False(t, ok)
}

func TestWorkerSendAndReceiveMessageStageCorrectSQEs(t *testing.T) {
	w, ring := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer cancel()

	sendID, ok := w.AllocateBuffer()
	require.True(t, ok)
	w.WriteBuffer(sendID, []byte("hi"))
	dest := &unix.SockaddrInet4{Port: 9999, Addr: [4]byte{127, 0, 0, 1}}
	w.AddSendMessage(21, sendID, dest, 0, 0, 0, 0)
	w.Submit()

	require.Eventually(t, func() bool { return len(ring.Submitted) > 0 }, time.Second, time.Millisecond)
	sendSQE := ring.Submitted[len(ring.Submitted)-1]
	require.Equal(t, "SENDMSG", sendSQE.Op)
	require.Equal(t, 21, sendSQE.Fd)
	require.NotNil(t, sendSQE.Msg)

	recvID, ok := w.AllocateBuffer()
	require.True(t, ok)
	w.AddReceiveMessage(22, recvID, 0, 0, 0, 0)
	w.Submit()

	require.Eventually(t, func() bool {
		for _, sqe := range ring.Submitted {
			if sqe.Op == "RECVMSG" {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	var recvSQE *uring.FakeSQE
	for _, sqe := range ring.Submitted {
		if sqe.Op == "RECVMSG" {
			recvSQE = sqe
		}
	}
	require.Equal(t, 22, recvSQE.Fd)
	require.NotNil(t, recvSQE.Msg)

	recvTag := tag.Encode(tag.OpRead, 22, uint32(recvID))
	require.Eventually(t, func() bool {
		ring.PushCompletion(uring.CQE{UserData: recvTag, Res: 2})
		select {
		case p := <-w.ReadPort():
			require.Equal(t, 22, p.Fd)
			require.Equal(t, recvID, p.BufferID)
			return true
		case <-time.After(10 * time.Millisecond):
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestWorkerAcceptCompletionArmsInitialRead(t *testing.T) {
	w, ring := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	defer cancel()

	acceptTag := tag.EncodeMessage(tag.OpAccept)
	ring.PushCompletion(uring.CQE{UserData: acceptTag, Res: 99})

	select {
	case p := <-w.AcceptPort():
		require.Equal(t, 99, p.Fd)
		require.NoError(t, p.Err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for accept payload")
	}

	require.Eventually(t, func() bool {
		for _, sqe := range ring.Submitted {
			if sqe.Op == "READ_FIXED" && sqe.Fd == 99 {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}
