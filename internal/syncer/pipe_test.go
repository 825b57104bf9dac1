package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPipe_DeliversInOrder(t *testing.T) {
	a, b := Pipe()
	ctx := context.Background()

	pkt := []byte{1, 2, 3}
	require.NoError(t, a.Send(ctx, pkt))
	require.NoError(t, a.Send(ctx, []byte{4}))
	pkt[0] = 9

	got, err := b.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, got)
	got, err = b.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte{4}, got)

	require.NoError(t, b.Send(ctx, []byte{5}))
	got, err = a.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte{5}, got)
}

func TestPipe_CloseDrainsThenFails(t *testing.T) {
	a, b := Pipe()
	ctx := context.Background()

	require.NoError(t, a.Send(ctx, []byte{1}))
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	got, err := b.Receive(ctx)
	require.NoError(t, err)
	require.Equal(t, []byte{1}, got)

	_, err = b.Receive(ctx)
	require.ErrorIs(t, err, ErrTransportClosed)
	require.ErrorIs(t, b.Send(ctx, []byte{2}), ErrTransportClosed)
	require.ErrorIs(t, a.Send(ctx, []byte{2}), ErrTransportClosed)
}

func TestPipe_ReceiveHonoursContext(t *testing.T) {
	_, b := Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
