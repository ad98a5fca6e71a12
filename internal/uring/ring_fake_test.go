package uring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFakeRingSQEExhaustionAndRetry(t *testing.T) {
	r := NewFakeRing(7, 2)

	_, ok := r.GetSQE()
	require.True(t, ok)
	_, ok = r.GetSQE()
	require.True(t, ok)

	_, ok = r.GetSQE()
	require.False(t, ok, "ring should report full once capacity is reached")

	n, err := r.Submit()
	require.NoError(t, err)
	require.Equal(t, uint32(2), n)

	_, ok = r.GetSQE()
	require.True(t, ok, "submit should free the staged slots for the next batch")
}

func TestFakeRingPeekAndAdvance(t *testing.T) {
	r := NewFakeRing(1, 0)
	r.PushCompletion(CQE{UserData: 1, Res: 0})
	r.PushCompletion(CQE{UserData: 2, Res: 3})

	buf := make([]CQE, 4)
	n := r.PeekBatchCQE(buf)
	require.Equal(t, 2, n)
	require.Equal(t, uint64(1), buf[0].UserData)

	r.CQAdvance(1)
	n = r.PeekBatchCQE(buf)
	require.Equal(t, 1, n)
	require.Equal(t, uint64(2), buf[0].UserData)
}

func TestFakeSQERecordsPreparedOperation(t *testing.T) {
	r := NewFakeRing(1, 0)
	sqe, ok := r.GetSQE()
	require.True(t, ok)

	sqe.PrepareMultishotAccept(9)
	sqe.SetUserData(0xdead)

	fake := sqe.(*FakeSQE)
	require.Equal(t, "MULTISHOT_ACCEPT", fake.Op)
	require.Equal(t, 9, fake.Fd)
	require.Equal(t, uint64(0xdead), fake.Tag)
}
