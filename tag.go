package transport

import "github.com/ringtransport/transport/internal/tag"

// OpClass identifies the operation a completion tag describes. See
// internal/tag for the bit layout; this package re-exports it as the
// public API surface.
type OpClass = tag.OpClass

const (
	OpRead    = tag.OpRead
	OpWrite   = tag.OpWrite
	OpAccept  = tag.OpAccept
	OpConnect = tag.OpConnect
	OpMessage = tag.OpMessage
	OpClose   = tag.OpClose

	AllFlags = tag.AllFlags
)

// EncodeTag packs an operation class with an fd and an auxiliary id (a
// buffer id for READ/WRITE, a sequence id when sequencing is in play, or 0
// when unused) into a single 64-bit completion tag.
func EncodeTag(op OpClass, fd int, aux uint32) uint64 {
	return tag.Encode(op, fd, aux)
}

// DecodeTag recovers the operation class, fd and auxiliary id from a
// completion tag produced by EncodeTag.
func DecodeTag(t uint64) (op OpClass, fd int, aux uint32) {
	return tag.Decode(t)
}

// EncodeMessageTag builds the tag carried in a msg_ring SQE's user_data
// field: the given class (ACCEPT or CONNECT for a forwarded fd, MESSAGE for
// a Listener readiness or shutdown signal) with no payload bits, since the
// value itself travels in msg_ring's len argument rather than in the tag.
func EncodeMessageTag(op OpClass) uint64 {
	return tag.EncodeMessage(op)
}
