package balancer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBalancerRoundRobinFairness(t *testing.T) {
	b := New()
	for i := 0; i < 4; i++ {
		b.Add(Channel{WorkerID: i, RingFd: int32(100 + i)})
	}

	received := make(map[int]int)
	for i := 0; i < 100; i++ {
		ch := b.Next()
		received[ch.WorkerID]++
	}

	for id, count := range received {
		require.LessOrEqual(t, abs(count-25), 1, "worker %d got %d, expected ~25", id, count)
	}
}

func TestBalancerEqualFrequencyInLimit(t *testing.T) {
	b := New()
	b.Add(Channel{WorkerID: 0})
	b.Add(Channel{WorkerID: 1})
	b.Add(Channel{WorkerID: 2})

	counts := make(map[int]int)
	for i := 0; i < 300; i++ {
		counts[b.Next().WorkerID]++
	}
	for _, c := range counts {
		require.Equal(t, 100, c)
	}
}

func TestBalancerNextPanicsWhenEmpty(t *testing.T) {
	b := New()
	require.Panics(t, func() {
		b.Next()
	})
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
