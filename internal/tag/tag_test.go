package tag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		op  OpClass
		fd  int
		aux uint32
	}{
		{OpRead, 7, 3},
		{OpWrite, 1 << 20, 0},
		{OpAccept, 0, 0},
		{OpConnect, 65535, (1 << 26) - 1},
		{OpMessage, -1, 0},
	}
	for _, c := range cases {
		encoded := Encode(c.op, c.fd, c.aux)
		op, fd, aux := Decode(encoded)
		require.Equal(t, c.op, op)
		require.Equal(t, c.fd, fd)
		require.Equal(t, c.aux, aux)
	}
}

func TestOpClassIsOneHot(t *testing.T) {
	classes := []OpClass{OpRead, OpWrite, OpAccept, OpConnect, OpMessage, OpClose}
	for _, c := range classes {
		require.Equal(t, 1, popcount(uint64(c)))
	}
}

func TestHasFd(t *testing.T) {
	encoded := Encode(OpRead, 42, 5)
	require.True(t, HasFd(encoded, 42))
	require.False(t, HasFd(encoded, 43))
}

func popcount(v uint64) int {
	n := 0
	for v != 0 {
		n += int(v & 1)
		v >>= 1
	}
	return n
}
