package framed_test

import (
	"bytes"

	"github.com/dcreager/cobs-ring-go/framed"
	"github.com/dcreager/cobs-ring-go/ring"
	"github.com/stretchr/testify/require"
)

// encode is a reference COBS encoder, used to produce reader input.  It
// appends the trailing delimiter.  Copied from cobs/helpers_test.go; keep the
// two in sync.
func encode(payload []byte) []byte {
	out := []byte{0}
	codeIdx := 0
	code := byte(1)
	finish := func() {
		out[codeIdx] = code
		codeIdx = len(out)
		out = append(out, 0)
		code = 1
	}
	for _, b := range payload {
		if b == 0 {
			finish()
			continue
		}
		out = append(out, b)
		code++
		if code == 0xff {
			finish()
		}
	}
	out[codeIdx] = code
	return append(out, 0)
}

// readerAt returns a Reader over an empty buffer whose cursors both sit at
// offset.
func readerAt(t require.TestingT, capacity, offset int, opts ...framed.Option) *framed.Reader {
	buf := ring.New(capacity)
	if offset > 0 {
		buf.Write(bytes.Repeat([]byte{0xee}, offset))
		require.Equal(t, offset, buf.Read(make([]byte, offset)))
	}
	return framed.NewReader(buf, opts...)
}
