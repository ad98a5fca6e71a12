// Package worker implements the ring-owning Worker: the component that
// actually issues reads, writes, datagram sends/receives and outbound
// connects against its own io_uring instance, tracks their buffers,
// sequences and timeouts, and delivers completions back to the runtime
// through a small set of typed ports.
//
// A Worker pins exactly one goroutine as its drain loop; every other method
// on *Worker is safe to call from any goroutine and works by queueing a
// request for that loop to execute, preserving the single-writer-per-ring
// invariant the rest of the tree assumes.
package worker

import (
	"context"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ringtransport/transport/internal/buffer"
	"github.com/ringtransport/transport/internal/event"
	"github.com/ringtransport/transport/internal/interfaces"
	"github.com/ringtransport/transport/internal/scheduler"
	"github.com/ringtransport/transport/internal/sequence"
	"github.com/ringtransport/transport/internal/uring"
)

// Config configures a Worker's buffer pool, sequence pool and ring.
type Config struct {
	ID                    int
	BuffersCount          int
	BufferSize            int
	SequencesCount        int
	SequenceCellsCount    int
	RingEntries           uint32
	PollTimeout           time.Duration
	TimeoutCheckerPeriod  time.Duration
	InboundQueueCapacity  int
	PortBufferSize        int
}

// DefaultConfig returns sensible defaults for a single worker.
func DefaultConfig() Config {
	return Config{
		BuffersCount:         64,
		BufferSize:           4096,
		SequencesCount:       32,
		SequenceCellsCount:   128,
		RingEntries:          256,
		PollTimeout:          50 * time.Millisecond,
		TimeoutCheckerPeriod: 10 * time.Millisecond,
		InboundQueueCapacity: 256,
		PortBufferSize:       64,
	}
}

// Worker owns one ring, its fixed buffer pool, its sequence pool and its
// event registry. See internal/buffer, internal/sequence and internal/event
// for why none of those are safe to touch from any goroutine but the one
// running Run.
type Worker struct {
	id     int
	cfg    Config
	ring   uring.Ring
	sched  scheduler.Scheduler
	logger interfaces.Logger
	obs    interfaces.Observer

	buffers   *buffer.Pool
	sequences *sequence.Pool
	events    *event.Registry

	// pendingSeq, pendingConnectAddr and pendingMsg carry per-tag state
	// from the moment an operation is staged to the moment its completion
	// arrives; all three are drain-loop-goroutine-only, like the pools
	// above.
	pendingSeq         map[uint64]int
	pendingConnectAddr map[uint64]unix.Sockaddr
	pendingMsg         map[uint64]*unix.Msghdr

	inbound *boundedQueue

	readPort    chan interfaces.ReadPayload
	writePort   chan interfaces.WritePayload
	acceptPort  chan interfaces.AcceptPayload
	connectPort chan interfaces.ConnectPayload

	listenerRingFd int32
	shutdown       bool
}

// New creates a Worker backed by ring. The ring's fixed buffer table is
// registered immediately so read_fixed/write_fixed operations are legal as
// soon as New returns.
func New(cfg Config, ring uring.Ring, logger interfaces.Logger, obs interfaces.Observer) (*Worker, error) {
	buffers, err := buffer.NewPool(cfg.BuffersCount, cfg.BufferSize)
	if err != nil {
		return nil, err
	}
	if err := ring.RegisterBuffers(buffers.Iovecs()); err != nil {
		buffers.Close()
		return nil, err
	}

	// Sequence id 0 means "no sequence" to AddRead/AddWrite/AddSendMessage/
	// AddReceiveMessage, so it is reserved here and never handed out by
	// AllocateSequence.
	sequences := sequence.NewPool(cfg.SequencesCount+1, cfg.SequenceCellsCount)
	sequences.Get()

	w := &Worker{
		id:                 cfg.ID,
		cfg:                cfg,
		ring:               ring,
		sched:              scheduler.Default{},
		logger:             logger,
		obs:                obs,
		buffers:            buffers,
		sequences:          sequences,
		events:             event.NewRegistry(),
		pendingSeq:         make(map[uint64]int),
		pendingConnectAddr: make(map[uint64]unix.Sockaddr),
		pendingMsg:         make(map[uint64]*unix.Msghdr),
		inbound:            newBoundedQueue(cfg.InboundQueueCapacity),
		readPort:           make(chan interfaces.ReadPayload, cfg.PortBufferSize),
		writePort:          make(chan interfaces.WritePayload, cfg.PortBufferSize),
		acceptPort:         make(chan interfaces.AcceptPayload, cfg.PortBufferSize),
		connectPort:        make(chan interfaces.ConnectPayload, cfg.PortBufferSize),
	}
	return w, nil
}

// ID returns the worker's configured id, used as the msg_ring payload the
// Listener tracks readiness by.
func (w *Worker) ID() int { return w.id }

// RingFd returns the worker's ring fd, the target of an Acceptor or
// Connector's msg_ring forward.
func (w *Worker) RingFd() int32 { return w.ring.Fd() }

// SetListenerRingFd arms the worker to signal batch readiness to a Listener
// after every non-empty completion drain.
func (w *Worker) SetListenerRingFd(fd int32) { w.listenerRingFd = fd }

// ReadPort delivers a payload after every completed read or receive_message.
func (w *Worker) ReadPort() <-chan interfaces.ReadPayload { return w.readPort }

// WritePort delivers a payload after every completed write or send_message.
func (w *Worker) WritePort() <-chan interfaces.WritePayload { return w.writePort }

// AcceptPort delivers a payload once an accepted connection's first read has
// been armed.
func (w *Worker) AcceptPort() <-chan interfaces.AcceptPayload { return w.acceptPort }

// ConnectPort delivers a payload once an outbound connect completes.
func (w *Worker) ConnectPort() <-chan interfaces.ConnectPayload { return w.connectPort }

// call runs fn on the drain-loop goroutine and blocks until it has run,
// giving external callers synchronous access to the pools without
// violating the single-writer-per-ring invariant.
func (w *Worker) call(fn func()) {
	done := make(chan struct{})
	op := &operation{kind: opFunc, fn: func() {
		fn()
		close(done)
	}}
	if !w.inbound.push(op) {
		return
	}
	<-done
}

// AllocateBuffer reserves a free buffer id from the worker's fixed pool.
func (w *Worker) AllocateBuffer() (id int, ok bool) {
	w.call(func() { id, ok = w.buffers.Get() })
	return
}

// ReleaseBuffer returns a buffer id to the pool's free list.
func (w *Worker) ReleaseBuffer(id int) {
	w.call(func() { w.buffers.Release(id) })
}

// BufferBytes copies out the current logical contents of a buffer id. The
// copy avoids handing out a slice that aliases memory the worker loop may
// reuse the moment the caller releases the id.
func (w *Worker) BufferBytes(id int) []byte {
	var out []byte
	w.call(func() {
		src := w.buffers.Bytes(id)
		out = make([]byte, len(src))
		copy(out, src)
	})
	return out
}

// WriteBuffer copies data into buffer id's backing storage and sets its
// logical length, preparing it for a subsequent AddWrite/AddSendMessage.
func (w *Worker) WriteBuffer(id int, data []byte) {
	w.call(func() {
		dst := w.buffers.Capacity(id)
		n := copy(dst, data)
		w.buffers.SetLength(id, n)
	})
}

// AllocateSequence reserves an empty sequence id. Pass the returned id as
// the trailing sequenceID argument to AddRead/AddWrite/AddSendMessage/
// AddReceiveMessage to chain that operation's buffer into the sequence;
// completions on those ports report back which sequence they belong to via
// SequenceID, and the drain loop itself appends (on read) or releases (on
// write) elements as completions arrive, so most callers never need
// SequenceAddBuffer/SequenceReleaseElement directly.
func (w *Worker) AllocateSequence() (id int, ok bool) {
	w.call(func() { id, ok = w.sequences.Get() })
	return
}

// ReleaseSequence returns a (now-empty) sequence id to the pool.
func (w *Worker) ReleaseSequence(id int) {
	w.call(func() { w.sequences.Release(id) })
}

// SequenceAddBuffer appends bufferID to sequence seqID.
func (w *Worker) SequenceAddBuffer(seqID, bufferID int) (elem int, ok bool) {
	w.call(func() { elem, ok = w.sequences.AddBuffer(seqID, bufferID) })
	return
}

// SequenceReleaseElement unlinks elem from its sequence and frees its cell.
func (w *Worker) SequenceReleaseElement(seqID, elem int) {
	w.call(func() { w.sequences.ReleaseElement(seqID, elem) })
}

// SequenceFirst returns the first element of seqID, or ok=false if the
// sequence is empty (every buffer written and released already).
func (w *Worker) SequenceFirst(seqID int) (elem int, ok bool) {
	w.call(func() { elem, ok = w.sequences.First(seqID) })
	return
}

// SequenceBufferID returns the buffer id carried by elem.
func (w *Worker) SequenceBufferID(elem int) int {
	var id int
	w.call(func() { id = w.sequences.BufferID(elem) })
	return id
}

// Run executes the worker's drain loop until ctx is canceled. It must be
// called from the single goroutine that owns this Worker's ring; every
// other *Worker method is safe to call from any other goroutine.
func (w *Worker) Run(ctx context.Context) error {
	defer w.ring.Close()
	defer w.buffers.Close()

	ticker := time.NewTicker(w.cfg.TimeoutCheckerPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.drainInbound()
			w.ring.Submit()
			return nil
		case <-ticker.C:
			w.checkTimeouts()
		default:
		}

		w.drainInbound()

		if _, err := w.ring.SubmitAndWaitTimeout(0, w.cfg.PollTimeout); err != nil {
			if w.logger != nil {
				w.logger.Debugf("worker %d: submit_and_wait: %v", w.id, err)
			}
		}

		if n := w.reapCompletions(); n > 0 && w.listenerRingFd != 0 {
			w.notifyListener()
		}
	}
}
