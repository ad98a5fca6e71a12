package uring

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// sockaddrToRaw converts a unix.Sockaddr into the raw bytes io_uring's
// connect/sendmsg/recvmsg opcodes expect, mirroring what net.sysSockaddr
// does internally for TCP/UNIX addresses. Kept separate from the build-
// tagged giouring ring file since the fake ring's tests build on every
// platform and also exercise BuildMsghdr.
func sockaddrToRaw(sa unix.Sockaddr) (*unix.RawSockaddrAny, uint32, error) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		raw := &unix.RawSockaddrInet4{Family: unix.AF_INET, Port: htons(uint16(a.Port))}
		raw.Addr = a.Addr
		return (*unix.RawSockaddrAny)(unsafe.Pointer(raw)), uint32(unsafe.Sizeof(*raw)), nil
	case *unix.SockaddrInet6:
		raw := &unix.RawSockaddrInet6{Family: unix.AF_INET6, Port: htons(uint16(a.Port)), Scope_id: a.ZoneId}
		raw.Addr = a.Addr
		return (*unix.RawSockaddrAny)(unsafe.Pointer(raw)), uint32(unsafe.Sizeof(*raw)), nil
	case *unix.SockaddrUnix:
		raw := &unix.RawSockaddrUnix{Family: unix.AF_UNIX}
		for i := 0; i < len(a.Name); i++ {
			raw.Path[i] = int8(a.Name[i])
		}
		return (*unix.RawSockaddrAny)(unsafe.Pointer(raw)), uint32(unsafe.Sizeof(*raw)), nil
	default:
		return nil, 0, syscall.EAFNOSUPPORT
	}
}

func htons(port uint16) uint16 {
	return (port << 8) | (port >> 8)
}

// rawToSockaddr is the inverse of sockaddrToRaw: it decodes the bytes a
// completed accept or receive_message wrote into a scratch sockaddr buffer
// back into a unix.Sockaddr, dispatching on the address family the kernel
// filled in.
func rawToSockaddr(raw *unix.RawSockaddrAny, length uint32) (unix.Sockaddr, error) {
	switch raw.Addr.Family {
	case unix.AF_INET:
		r := (*unix.RawSockaddrInet4)(unsafe.Pointer(raw))
		sa := &unix.SockaddrInet4{Port: int(htons(r.Port))}
		sa.Addr = r.Addr
		return sa, nil
	case unix.AF_INET6:
		r := (*unix.RawSockaddrInet6)(unsafe.Pointer(raw))
		sa := &unix.SockaddrInet6{Port: int(htons(r.Port)), ZoneId: r.Scope_id}
		sa.Addr = r.Addr
		return sa, nil
	case unix.AF_UNIX:
		r := (*unix.RawSockaddrUnix)(unsafe.Pointer(raw))
		pathLen := int(length) - int(unsafe.Offsetof(r.Path))
		if pathLen < 0 {
			pathLen = 0
		}
		name := make([]byte, 0, pathLen)
		for i := 0; i < pathLen && r.Path[i] != 0; i++ {
			name = append(name, byte(r.Path[i]))
		}
		return &unix.SockaddrUnix{Name: string(name)}, nil
	default:
		return nil, syscall.EAFNOSUPPORT
	}
}

// BuildMsghdr assembles the Msghdr a sendmsg SQE needs: a single iovec
// wrapping buf, and (when addr is non-nil) the destination address for a
// datagram send.
func BuildMsghdr(addr unix.Sockaddr, buf []byte) (*unix.Msghdr, error) {
	msg := &unix.Msghdr{}
	if addr != nil {
		raw, rawLen, err := sockaddrToRaw(addr)
		if err != nil {
			return nil, err
		}
		msg.Name = (*byte)(unsafe.Pointer(raw))
		msg.Namelen = rawLen
	}
	if len(buf) > 0 {
		iov := &unix.Iovec{Base: &buf[0]}
		iov.SetLen(len(buf))
		msg.Iov = iov
		msg.Iovlen = 1
	}
	return msg, nil
}

// BuildRecvMsghdr assembles the Msghdr a receive_message SQE needs: a
// single iovec wrapping buf, plus a scratch sockaddr buffer the kernel
// fills in with the datagram's source address. Call DecodeMsgName on the
// same *unix.Msghdr once its completion has arrived to recover that
// address; the kernel updates Namelen in place to the address length it
// actually wrote.
func BuildRecvMsghdr(buf []byte) *unix.Msghdr {
	msg := &unix.Msghdr{}
	scratch := &unix.RawSockaddrAny{}
	msg.Name = (*byte)(unsafe.Pointer(scratch))
	msg.Namelen = uint32(unsafe.Sizeof(*scratch))
	if len(buf) > 0 {
		iov := &unix.Iovec{Base: &buf[0]}
		iov.SetLen(len(buf))
		msg.Iov = iov
		msg.Iovlen = 1
	}
	return msg
}

// DecodeMsgName recovers the address a receive_message completion wrote
// into msg's scratch name buffer, built by BuildRecvMsghdr. It returns
// nil, nil if msg carries no name buffer at all.
func DecodeMsgName(msg *unix.Msghdr) (unix.Sockaddr, error) {
	if msg.Name == nil || msg.Namelen == 0 {
		return nil, nil
	}
	raw := (*unix.RawSockaddrAny)(unsafe.Pointer(msg.Name))
	return rawToSockaddr(raw, msg.Namelen)
}
