package framed_test

import (
	"testing"

	"github.com/dcreager/cobs-ring-go/cobs"
	"github.com/dcreager/cobs-ring-go/framed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var payload = rapid.SliceOfN(rapid.Byte(), 0, 600)

// checkPackets writes every packet into r, in pieces whose sizes come from
// cuts, and checks that ReadPacket returns them all in order.
func checkPackets(t require.TestingT, r *framed.Reader, packets [][]byte, cuts []int) {
	var stream []byte
	for _, p := range packets {
		stream = append(stream, encode(p)...)
	}

	dest := make([]byte, 600)
	var decoded [][]byte
	for len(stream) > 0 {
		cut := 128
		if len(cuts) > 0 {
			cut, cuts = cuts[0], cuts[1:]
		}
		if cut > len(stream) {
			cut = len(stream)
		}
		require.LessOrEqual(t, cut, r.Available())
		r.Write(stream[:cut])
		stream = stream[cut:]

		for {
			n, err := r.ReadPacket(dest)
			if err == framed.ErrNoBytes || err == framed.ErrIncomplete {
				break
			}
			require.NoError(t, err)
			decoded = append(decoded, append([]byte{}, dest[:n]...))
		}
	}

	require.Equal(t, len(packets), len(decoded))
	for i := range packets {
		assert.Equal(t, packets[i], decoded[i])
	}
}

func TestPacketsSurviveWraparound(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		packets := rapid.SliceOfN(payload, 0, 8).Draw(t, "packets").([][]byte)
		offset := rapid.IntRange(0, 1023).Draw(t, "offset").(int)
		cuts := rapid.SliceOf(rapid.IntRange(1, 128)).Draw(t, "cuts").([]int)
		resume := rapid.Bool().Draw(t, "resume").(bool)

		opts := []framed.Option{framed.WithDecoderOptions(cobs.WithZeroRestore())}
		if resume {
			opts = append(opts, framed.WithResume())
		}
		r := readerAt(t, 1024, offset, opts...)
		checkPackets(t, r, packets, cuts)
	})
}

func TestWrappedMatchesUnwrapped(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := rapid.SliceOfN(rapid.ByteRange(1, 0xff), 0, 508).Draw(t, "payload").([]byte)
		encoded := encode(p)
		offset := rapid.IntRange(0, 1023).Draw(t, "offset").(int)

		straight := readerAt(t, 1024, 0)
		wrapped := readerAt(t, 1024, offset)
		straight.Write(encoded)
		wrapped.Write(encoded)

		destA := make([]byte, 508)
		destB := make([]byte, 508)
		nA, errA := straight.ReadPacket(destA)
		nB, errB := wrapped.ReadPacket(destB)
		require.NoError(t, errA)
		require.NoError(t, errB)
		assert.Equal(t, destA[:nA], destB[:nB])
		assert.Equal(t, p, destB[:nB])
	})
}
