package transport

import "github.com/ringtransport/transport/internal/interfaces"

// ReadPayload is delivered on a worker's read port after a read or
// receive_message completion. Data aliases the worker's fixed buffer;
// ownership transfers to the runtime until it calls ReleaseBuffer with
// BufferID, after which the worker is free to reuse that memory for
// another operation.
type ReadPayload = interfaces.ReadPayload

// WritePayload is delivered on a worker's write port after a write or
// send_message completion.
type WritePayload = interfaces.WritePayload

// AcceptPayload is delivered on a worker's accept port once a forwarded
// (or directly accepted) connection's first read has been armed.
type AcceptPayload = interfaces.AcceptPayload

// ConnectPayload is delivered on a worker's connect port once an outbound
// connection completes.
type ConnectPayload = interfaces.ConnectPayload
