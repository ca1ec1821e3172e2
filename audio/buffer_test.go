package audio

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleBufferFIFO(t *testing.T) {
	b := newSampleBuffer(6)
	ctx := context.Background()
	require.NoError(t, b.write(ctx, []int16{1, 2, 3, 4}))

	dst := make([]int16, 3)
	assert.Equal(t, 3, b.read(dst))
	assert.Equal(t, []int16{1, 2, 3}, dst)

	// wraps around the end of the ring
	require.NoError(t, b.write(ctx, []int16{5, 6, 7, 8, 9}))
	assert.Equal(t, 6, b.len())
	dst = make([]int16, 10)
	assert.Equal(t, 6, b.read(dst))
	assert.Equal(t, []int16{4, 5, 6, 7, 8, 9}, dst[:6])
	assert.Zero(t, b.read(dst))
}

func TestSampleBufferWriteBlocksUntilRead(t *testing.T) {
	b := newSampleBuffer(4)
	done := make(chan error, 1)
	go func() { done <- b.write(context.Background(), []int16{1, 2, 3, 4, 5, 6}) }()

	select {
	case <-done:
		t.Fatal("write must block while the buffer is full")
	case <-time.After(20 * time.Millisecond):
	}

	dst := make([]int16, 4)
	assert.Equal(t, 4, b.read(dst))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("write did not resume")
	}
	assert.Equal(t, 2, b.read(dst))
	assert.Equal(t, []int16{5, 6}, dst[:2])
}

func TestSampleBufferWriteCancelled(t *testing.T) {
	b := newSampleBuffer(2)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := b.write(ctx, []int16{1, 2, 3})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	b.flush()
	assert.Zero(t, b.len())
}

func TestBeepStream(t *testing.T) {
	s := newBeepSink(10 * time.Millisecond)
	require.NoError(t, s.Write(context.Background(), []int16{16384, -16384}))

	out := make([][2]float64, 3)
	n, ok := s.stream(out)
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	assert.Equal(t, [2]float64{0.5, -0.5}, out[0])
	assert.Equal(t, [2]float64{0, 0}, out[1], "underrun plays silence")

	require.NoError(t, s.Write(context.Background(), []int16{100, 100}))
	s.SetPaused(true)
	out[0] = [2]float64{1, 1}
	s.stream(out)
	assert.Equal(t, [2]float64{0, 0}, out[0])
	assert.Equal(t, 2, s.buf.len(), "paused stream keeps the samples")

	s.Flush()
	assert.Zero(t, s.buf.len())
}

func TestOtoRead(t *testing.T) {
	s := &OtoSink{buf: newSampleBuffer(8)}
	require.NoError(t, s.Write(context.Background(), []int16{1, -2}))

	p := make([]byte, 8)
	n, err := s.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, int16(1), int16(binary.LittleEndian.Uint16(p[0:])))
	assert.Equal(t, int16(-2), int16(binary.LittleEndian.Uint16(p[2:])))
	assert.Equal(t, []byte{0, 0, 0, 0}, p[4:])

	// player is nil when not opened on a device
	s.SetPaused(true)
	assert.NoError(t, s.Close())
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("alsa", 0)
	assert.Error(t, err)
}
