// Package balancer implements the round-robin selector the Acceptor and
// Connector use to pick a target worker ring for a freshly accepted or
// connected file descriptor.
package balancer


// Channel is anything the balancer can forward a file descriptor to: a
// worker's ring-owning side, identified by its ring fd and worker id.
type Channel struct {
	WorkerID int
	RingFd   int32
}

// Balancer selects a target Channel for each accepted/connected fd.
// Registration order is not exposed to callers; Next rotates through
// registered channels, giving each equal frequency in the limit.
type Balancer struct {
	channels []Channel
	cursor   int
}

// New creates an empty round-robin Balancer.
func New() *Balancer {
	return &Balancer{}
}

// Add registers a channel as an eligible balancing target.
func (b *Balancer) Add(ch Channel) {
	b.channels = append(b.channels, ch)
}

// Next returns the next channel in round-robin order. It panics if called
// with no channels registered, since the Acceptor/Connector must not start
// accepting before at least one worker is registered.
func (b *Balancer) Next() Channel {
	if len(b.channels) == 0 {
		panic("balancer: Next called with no registered channels")
	}
	ch := b.channels[b.cursor]
	b.cursor = (b.cursor + 1) % len(b.channels)
	return ch
}

// Len reports how many channels are registered.
func (b *Balancer) Len() int {
	return len(b.channels)
}
