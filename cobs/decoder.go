package cobs

import (
	"errors"
	"fmt"
)

// Delimiter is the byte that terminates an encoded packet.
const Delimiter = 0x00

const chainHeader = 0xff
const maxChunk = chainHeader - 1

var (
	// ErrIncomplete is returned by Push when the input ran out before the end
	// of a packet.  The decoder keeps its state so that the next Push
	// continues the same packet.
	ErrIncomplete = errors.New("cobs: packet incomplete")

	// ErrCorrupt matches every error caused by malformed input.  Use
	// errors.Is to test for it.
	ErrCorrupt = errors.New("cobs: corrupt packet")

	// ErrUnexpectedDelimiter is the error that is returned when a delimiter
	// appears inside a chunk that still expects payload bytes.
	ErrUnexpectedDelimiter = errors.New("cobs: unexpected delimiter inside chunk")

	// ErrOverflow is the error that is returned when a decoded packet does not
	// fit in the destination slice.
	ErrOverflow = errors.New("cobs: decoded packet exceeds destination")
)

// DecodeError describes malformed input found by Push.  Offset is the index
// of the offending byte within the slice passed to Push, which is also the
// number of bytes consumed before it.
type DecodeError struct {
	Offset int
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v at offset %d", e.Err, e.Offset)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrCorrupt, so that every DecodeError matches
// it.
func (e *DecodeError) Is(target error) bool {
	return target == ErrCorrupt
}

// State is the position of the decoder within the current chunk.
type State uint8

const (
	// Idle means no chunk is open.  The next non-zero byte is a chunk
	// header.
	Idle State = iota
	// Grab means the decoder is inside a chunk of fewer than 254 payload
	// bytes.
	Grab
	// GrabChain means the decoder is inside a full 254-byte chunk, which is
	// followed directly by the next header.
	GrabChain
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Grab:
		return "grab"
	case GrabChain:
		return "grab-chain"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Kind says what a single call to Feed produced.
type Kind uint8

const (
	// NoData means the byte was a header or a stray delimiter.
	NoData Kind = iota
	// Emit means a payload byte was appended to the destination.
	Emit
	// Complete means the byte was the delimiter that ends a packet.
	Complete
)

// Result is the outcome of feeding one byte to a Decoder.  Byte is set for
// Emit, and Len holds the decoded packet length for Complete.
type Result struct {
	Kind Kind
	Byte byte
	Len  int
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithZeroRestore makes the decoder emit a 0x00 between a chunk of fewer than
// 254 bytes and the chunk header that follows it.  This is the standard COBS
// reading of such a header; without this option the header is consumed
// without producing a byte.
func WithZeroRestore() Option {
	return func(d *Decoder) {
		d.zeroRestore = true
	}
}

// Decoder decodes a single COBS packet into a caller-supplied slice.  Create
// one with NewDecoder, and call Reset to reuse it for another packet.
type Decoder struct {
	dest        []byte
	idx         int
	state       State
	remaining   uint8
	zeroRestore bool
}

// NewDecoder returns a Decoder that writes decoded bytes into dest.  The
// largest packet it can decode is len(dest) bytes.
func NewDecoder(dest []byte, opts ...Option) *Decoder {
	d := &Decoder{dest: dest}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Reset discards any partial packet and starts decoding into dest.
func (d *Decoder) Reset(dest []byte) {
	d.dest = dest
	d.restart()
}

// State returns the current chunk state.
func (d *Decoder) State() State {
	return d.state
}

// Remaining returns the number of payload bytes left in the current chunk.
func (d *Decoder) Remaining() int {
	return int(d.remaining)
}

// Len returns the number of bytes decoded so far for the current packet.
func (d *Decoder) Len() int {
	return d.idx
}

// Feed advances the decoder by one input byte.  Errors are ErrUnexpectedDelimiter
// or ErrOverflow; either one abandons the current packet and leaves the
// decoder idle.
func (d *Decoder) Feed(b byte) (Result, error) {
	if d.state == Idle {
		d.header(b)
		return Result{}, nil
	}

	if d.remaining == 0 {
		if b == Delimiter {
			n := d.idx
			d.restart()
			return Result{Kind: Complete, Len: n}, nil
		}
		restore := d.zeroRestore && d.state == Grab
		d.header(b)
		if restore {
			if err := d.emit(0); err != nil {
				return Result{}, err
			}
			return Result{Kind: Emit, Byte: 0}, nil
		}
		return Result{}, nil
	}

	if b == Delimiter {
		d.restart()
		return Result{}, ErrUnexpectedDelimiter
	}
	if err := d.emit(b); err != nil {
		return Result{}, err
	}
	d.remaining--
	return Result{Kind: Emit, Byte: b}, nil
}

// Push feeds data to the decoder until a packet completes, an error occurs,
// or data runs out.
//
// When a packet completes, Push returns its length and the number of bytes of
// data consumed, including the delimiter.  When data runs out first, Push
// returns ErrIncomplete with consumed equal to len(data), and the decoder
// state carries over to the next call.  Malformed input is reported as a
// *DecodeError, with consumed counting the bytes before the offending one.
func (d *Decoder) Push(data []byte) (n, consumed int, err error) {
	for i, b := range data {
		res, err := d.Feed(b)
		if err != nil {
			return 0, i, &DecodeError{Offset: i, Err: err}
		}
		if res.Kind == Complete {
			return res.Len, i + 1, nil
		}
	}
	return 0, len(data), ErrIncomplete
}

// header opens the chunk announced by b.  A zero header only occurs while
// idle, where it is a stray delimiter.
func (d *Decoder) header(b byte) {
	switch b {
	case Delimiter:
		d.state = Idle
		d.remaining = 0
	case chainHeader:
		d.state = GrabChain
		d.remaining = maxChunk
	default:
		d.state = Grab
		d.remaining = b - 1
	}
}

func (d *Decoder) emit(b byte) error {
	if d.idx >= len(d.dest) {
		d.restart()
		return ErrOverflow
	}
	d.dest[d.idx] = b
	d.idx++
	return nil
}

func (d *Decoder) restart() {
	d.idx = 0
	d.state = Idle
	d.remaining = 0
}
