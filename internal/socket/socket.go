// Package socket implements the out-of-core socket creation helpers the
// specification treats as an external collaborator: TCP, UDP, UNIX-stream
// and UNIX-dgram client/server constructors. These are still implemented
// here because the example scenarios and tests need real file descriptors
// to exercise the Worker/Acceptor/Connector against.
package socket

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// Family identifies a socket family/type pairing.
type Family int

const (
	FamilyTCP Family = iota
	FamilyUDP
	FamilyUnixStream
	FamilyUnixDgram
)

func (f Family) String() string {
	switch f {
	case FamilyTCP:
		return "tcp"
	case FamilyUDP:
		return "udp"
	case FamilyUnixStream:
		return "unix-stream"
	case FamilyUnixDgram:
		return "unix-dgram"
	default:
		return "unknown"
	}
}

// Server is a listening (TCP/UNIX-stream) or bound (UDP/UNIX-dgram) socket.
type Server struct {
	Fd             int
	Family         Family
	Port           int
	RecvBufferSize int
	SendBufferSize int
}

// Client represents the outbound side of a socket connection request.
type Client struct {
	Fd             int
	Family         Family
	Addr           unix.Sockaddr
	RecvBufferSize int
	SendBufferSize int
}

// ServerOptions configures a new server socket.
type ServerOptions struct {
	Family         Family
	IP             string
	Port           int
	Backlog        int
	RecvBufferSize int
	SendBufferSize int
}

// DefaultServerOptions returns sensible defaults for a TCP echo-style
// server.
func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		Family:         FamilyTCP,
		IP:             "0.0.0.0",
		Port:           0,
		Backlog:        128,
		RecvBufferSize: 212992,
		SendBufferSize: 212992,
	}
}

// NewServer creates, binds and (for stream families) listens on a socket
// per opts.Family, mirroring the raw socket/bind/listen sequence used by
// the reference io_uring-based TCP listener this is grounded on.
func NewServer(opts ServerOptions) (*Server, error) {
	switch opts.Family {
	case FamilyTCP:
		return newInetServer(opts, unix.SOCK_STREAM, true)
	case FamilyUDP:
		return newInetServer(opts, unix.SOCK_DGRAM, false)
	case FamilyUnixStream:
		return newUnixServer(opts, unix.SOCK_STREAM, true)
	case FamilyUnixDgram:
		return newUnixServer(opts, unix.SOCK_DGRAM, false)
	default:
		return nil, fmt.Errorf("socket: unknown family %v", opts.Family)
	}
}

func newInetServer(opts ServerOptions, sockType int, listenAfterBind bool) (*Server, error) {
	fd, err := unix.Socket(unix.AF_INET, sockType, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socket: SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socket: SO_REUSEPORT: %w", err)
	}
	applyBufferSizes(fd, opts.RecvBufferSize, opts.SendBufferSize)

	ip := net.ParseIP(opts.IP)
	if ip == nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socket: invalid IP %q", opts.IP)
	}
	sa := &unix.SockaddrInet4{Port: opts.Port}
	if ip4 := ip.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socket: bind: %w", err)
	}

	port := opts.Port
	if port == 0 {
		if sn, err := unix.Getsockname(fd); err == nil {
			if v, ok := sn.(*unix.SockaddrInet4); ok {
				port = v.Port
			}
		}
	}

	if listenAfterBind {
		backlog := opts.Backlog
		if backlog == 0 {
			backlog = 128
		}
		if err := unix.Listen(fd, backlog); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("socket: listen: %w", err)
		}
	}

	return &Server{
		Fd:             fd,
		Family:         opts.Family,
		Port:           port,
		RecvBufferSize: opts.RecvBufferSize,
		SendBufferSize: opts.SendBufferSize,
	}, nil
}

func newUnixServer(opts ServerOptions, sockType int, listenAfterBind bool) (*Server, error) {
	fd, err := unix.Socket(unix.AF_UNIX, sockType, 0)
	if err != nil {
		return nil, fmt.Errorf("socket: socket: %w", err)
	}
	applyBufferSizes(fd, opts.RecvBufferSize, opts.SendBufferSize)

	sa := &unix.SockaddrUnix{Name: opts.IP}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("socket: bind: %w", err)
	}

	if listenAfterBind {
		backlog := opts.Backlog
		if backlog == 0 {
			backlog = 128
		}
		if err := unix.Listen(fd, backlog); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("socket: listen: %w", err)
		}
	}

	return &Server{Fd: fd, Family: opts.Family, RecvBufferSize: opts.RecvBufferSize, SendBufferSize: opts.SendBufferSize}, nil
}

func applyBufferSizes(fd, recvSize, sendSize int) {
	if recvSize > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, recvSize)
	}
	if sendSize > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, sendSize)
	}
}

// NewClient creates an unconnected socket and resolves addr to a
// unix.Sockaddr ready for a uring connect SQE; the connect itself is
// performed asynchronously by the Connector.
func NewClient(family Family, ipPort string) (*Client, error) {
	switch family {
	case FamilyTCP:
		fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
		if err != nil {
			return nil, fmt.Errorf("socket: socket: %w", err)
		}
		addr, err := ParseInetAddr(ipPort)
		if err != nil {
			unix.Close(fd)
			return nil, err
		}
		return &Client{Fd: fd, Family: family, Addr: addr}, nil
	case FamilyUDP:
		fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
		if err != nil {
			return nil, fmt.Errorf("socket: socket: %w", err)
		}
		addr, err := ParseInetAddr(ipPort)
		if err != nil {
			unix.Close(fd)
			return nil, err
		}
		return &Client{Fd: fd, Family: family, Addr: addr}, nil
	case FamilyUnixStream:
		fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
		if err != nil {
			return nil, fmt.Errorf("socket: socket: %w", err)
		}
		return &Client{Fd: fd, Family: family, Addr: &unix.SockaddrUnix{Name: ipPort}}, nil
	case FamilyUnixDgram:
		fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM, 0)
		if err != nil {
			return nil, fmt.Errorf("socket: socket: %w", err)
		}
		return &Client{Fd: fd, Family: family, Addr: &unix.SockaddrUnix{Name: ipPort}}, nil
	default:
		return nil, fmt.Errorf("socket: unknown family %v", family)
	}
}

// ParseInetAddr parses "host:port" into a unix.Sockaddr, choosing
// SockaddrInet4 or SockaddrInet6 as appropriate.
func ParseInetAddr(ipPort string) (unix.Sockaddr, error) {
	host, portStr, err := net.SplitHostPort(ipPort)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("socket: invalid port %q", portStr)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return nil, fmt.Errorf("socket: invalid IP %q", host)
	}
	if ip4 := ip.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: port}
		copy(sa.Addr[:], ip4)
		return sa, nil
	}
	sa := &unix.SockaddrInet6{Port: port}
	copy(sa.Addr[:], ip.To16())
	return sa, nil
}

// Close releases the socket's file descriptor. The core never auto-closes
// fds that are already live in a worker's hands; this is only used for
// teardown of not-yet-handed-off sockets.
func Close(fd int) error {
	return unix.Close(fd)
}
