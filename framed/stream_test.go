package framed_test

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"

	"github.com/dcreager/cobs-ring-go/framed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	written, dropped, packets, corrupt, skipped int
}

func (o *recordingObserver) ObserveWrite(written, dropped int) {
	o.written += written
	o.dropped += dropped
}

func (o *recordingObserver) ObservePacket(length int) {
	o.packets++
}

func (o *recordingObserver) ObserveCorrupt(skipped int) {
	o.corrupt++
	o.skipped += skipped
}

func TestStreamStats(t *testing.T) {
	s := framed.NewStream(framed.New(32))
	obs := &recordingObserver{}
	s.SetObserver(obs)
	dest := make([]byte, 8)

	_, err := s.ReadPacket(dest)
	assert.Equal(t, framed.ErrNoBytes, err)

	s.Write(encode([]byte("abc")))
	s.Write([]byte("\x05ab\x00"))
	s.Write([]byte("\x03"))

	n, err := s.ReadPacket(dest)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	_, err = s.ReadPacket(dest)
	assert.True(t, errors.Is(err, framed.ErrCorrupt))
	_, err = s.ReadPacket(dest)
	assert.Equal(t, framed.ErrIncomplete, err)

	assert.Equal(t, framed.Stats{
		BytesWritten: 10,
		Packets:      1,
		PacketBytes:  3,
		Corrupt:      1,
		Skipped:      3,
		Incomplete:   1,
		Empty:        1,
	}, s.Stats())
	assert.Equal(t, 10, obs.written)
	assert.Equal(t, 1, obs.packets)
	assert.Equal(t, 1, obs.corrupt)
	assert.Equal(t, 3, obs.skipped)
}

func TestStreamCountsDroppedBytes(t *testing.T) {
	s := framed.NewStream(framed.New(8))
	assert.Equal(t, 0, s.Fill([]byte("abcde")))
	assert.Equal(t, 2, s.Available())
	assert.Equal(t, 2, s.Fill([]byte("fghi")))
	assert.Equal(t, 7, s.Buffered())
	assert.Equal(t, 13, s.Fill(make([]byte, 13)))
	assert.Equal(t, uint64(15), s.Stats().BytesDropped)
	assert.Equal(t, uint64(22), s.Stats().BytesWritten)
}

func TestStreamConcurrentProducerConsumer(t *testing.T) {
	const count = 200
	s := framed.NewStream(framed.New(64))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < count; i++ {
			encoded := encode([]byte(fmt.Sprintf("packet-%d", i)))
			for s.Available() < len(encoded) {
				runtime.Gosched()
			}
			s.Write(encoded)
		}
	}()

	dest := make([]byte, 32)
	for i := 0; i < count; {
		n, err := s.ReadPacket(dest)
		if err != nil {
			require.Equal(t, framed.ErrNoBytes, err)
			runtime.Gosched()
			continue
		}
		require.Equal(t, fmt.Sprintf("packet-%d", i), string(dest[:n]))
		i++
	}
	wg.Wait()
	assert.Equal(t, uint64(0), s.Stats().BytesDropped)
}

func TestStreamStalled(t *testing.T) {
	s := framed.NewStream(framed.New(8))
	s.Write([]byte("\xffabc"))
	_, err := s.ReadPacket(make([]byte, 8))
	require.Equal(t, framed.ErrIncomplete, err)
	assert.False(t, s.Stalled())

	s.Write([]byte("def"))
	_, err = s.ReadPacket(make([]byte, 8))
	require.Equal(t, framed.ErrIncomplete, err)
	assert.True(t, s.Stalled())

	assert.Equal(t, 7, s.Reset())
	assert.False(t, s.Stalled())
	assert.Equal(t, 0, s.Buffered())
	assert.Equal(t, uint64(7), s.Stats().BytesDropped)
}
