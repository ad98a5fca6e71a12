package uring

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSockaddrToRawAndBackRoundTripsInet4(t *testing.T) {
	want := &unix.SockaddrInet4{Port: 4242, Addr: [4]byte{127, 0, 0, 1}}

	raw, length, err := sockaddrToRaw(want)
	require.NoError(t, err)

	got, err := rawToSockaddr(raw, length)
	require.NoError(t, err)

	gotInet4, ok := got.(*unix.SockaddrInet4)
	require.True(t, ok)
	require.Equal(t, want.Port, gotInet4.Port)
	require.Equal(t, want.Addr, gotInet4.Addr)
}

func TestSockaddrToRawAndBackRoundTripsInet6(t *testing.T) {
	want := &unix.SockaddrInet6{Port: 8443, Addr: [16]byte{0: 0xfe, 1: 0x80, 15: 1}}

	raw, length, err := sockaddrToRaw(want)
	require.NoError(t, err)

	got, err := rawToSockaddr(raw, length)
	require.NoError(t, err)

	gotInet6, ok := got.(*unix.SockaddrInet6)
	require.True(t, ok)
	require.Equal(t, want.Port, gotInet6.Port)
	require.Equal(t, want.Addr, gotInet6.Addr)
}

func TestDecodeMsgNameRecoversAddressWrittenIntoScratchBuffer(t *testing.T) {
	buf := make([]byte, 16)
	msg := BuildRecvMsghdr(buf)

	// Simulate the kernel filling the scratch buffer in with the
	// datagram's source address, the way a real recvmsg completion would.
	raw, rawLen, err := sockaddrToRaw(&unix.SockaddrInet4{Port: 5353, Addr: [4]byte{10, 0, 0, 7}})
	require.NoError(t, err)
	scratch := (*unix.RawSockaddrAny)(unsafe.Pointer(msg.Name))
	*scratch = *raw
	msg.Namelen = rawLen

	addr, err := DecodeMsgName(msg)
	require.NoError(t, err)
	inet4, ok := addr.(*unix.SockaddrInet4)
	require.True(t, ok)
	require.Equal(t, 5353, inet4.Port)
	require.Equal(t, [4]byte{10, 0, 0, 7}, inet4.Addr)
}

func TestDecodeMsgNameNilWhenNoNameBuffer(t *testing.T) {
	msg := &unix.Msghdr{}
	addr, err := DecodeMsgName(msg)
	require.NoError(t, err)
	require.Nil(t, addr)
}
