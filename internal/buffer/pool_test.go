package buffer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolGetReleaseAccounting(t *testing.T) {
	p, err := NewPool(4, 4096)
	require.NoError(t, err)
	defer p.Close()

	require.Equal(t, 4, p.FreeCount())

	ids := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		id, ok := p.Get()
		require.True(t, ok)
		ids = append(ids, id)
	}
	require.Equal(t, 0, p.FreeCount())

	_, ok := p.Get()
	require.False(t, ok, "pool should report exhaustion once all buffers are in flight")

	for _, id := range ids {
		p.Release(id)
	}
	require.Equal(t, 4, p.FreeCount())
}

func TestPoolRotatingCursorAvoidsImmediateReuse(t *testing.T) {
	p, err := NewPool(3, 64)
	require.NoError(t, err)
	defer p.Close()

	a, _ := p.Get()
	b, _ := p.Get()
	p.Release(a)

	c, ok := p.Get()
	require.True(t, ok)
	require.NotEqual(t, a, c)
	require.NotEqual(t, b, c)
}

func TestPoolDoubleReleasePanics(t *testing.T) {
	p, err := NewPool(2, 64)
	require.NoError(t, err)
	defer p.Close()

	id, _ := p.Get()
	p.Release(id)

	require.Panics(t, func() {
		p.Release(id)
	})
}

func TestPoolIovecsStableAcrossAllocations(t *testing.T) {
	p, err := NewPool(2, 128)
	require.NoError(t, err)
	defer p.Close()

	iovecs := p.Iovecs()
	base0 := iovecs[0].Base

	id, _ := p.Get()
	p.SetLength(id, 42)
	p.Release(id)

	require.Equal(t, base0, p.Iovecs()[0].Base, "iovec base pointers must be stable for the pool lifetime")
}
