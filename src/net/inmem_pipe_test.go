package net

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInmemPipeOrder(t *testing.T) {
	a, b := NewInmemPipe(8)

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, a.Send(i, []byte{byte(i)}))
	}
	require.NoError(t, b.Send(9, nil))

	for i := uint64(1); i <= 5; i++ {
		f := <-b.Frames()
		assert.Equal(t, i, f.Code)
		assert.Equal(t, []byte{byte(i)}, f.Payload)
	}
	assert.Equal(t, uint64(9), (<-a.Frames()).Code)
}

func TestInmemPipeClose(t *testing.T) {
	a, b := NewInmemPipe(0)

	require.NoError(t, b.Close())

	select {
	case <-a.Done():
	default:
		t.Fatal("closing one end must close the other")
	}

	assert.Equal(t, ErrTransportShutdown, a.Send(1, nil))
	assert.Equal(t, ErrTransportShutdown, b.Send(1, nil))
	assert.NoError(t, a.Close())
	assert.NoError(t, a.Err())
}
