package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndRemove(t *testing.T) {
	r := NewRegistry()
	r.Register(42, 50_000_000, 1_000)
	require.Equal(t, 1, r.Len())

	e, ok := r.Lookup(42)
	require.True(t, ok)
	require.Equal(t, int64(50_000_000), e.TimeoutNs)

	r.Remove(42)
	require.Equal(t, 0, r.Len())
	_, ok = r.Lookup(42)
	require.False(t, ok)
}

func TestRegistryCheckTimeouts(t *testing.T) {
	r := NewRegistry()
	r.Register(1, 50_000_000, 0)
	r.Register(2, 100_000_000, 0)
	r.Register(3, 0, 0) // never expires

	expired := r.CheckTimeouts(60_000_000)
	require.ElementsMatch(t, []uint64{1}, expired)

	r.Remove(1)
	expired = r.CheckTimeouts(200_000_000)
	require.ElementsMatch(t, []uint64{2}, expired)
}

func TestRegistryFdTags(t *testing.T) {
	r := NewRegistry()
	r.Register(0x10, 0, 0)
	r.Register(0x11, 0, 0)
	r.Register(0x20, 0, 0)

	tags := r.FdTags(func(tag uint64) bool {
		return tag&0xF0 == 0x10
	})
	require.ElementsMatch(t, []uint64{0x10, 0x11}, tags)
}
