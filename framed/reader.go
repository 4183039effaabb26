// Package framed extracts COBS packets from a ring buffer of encoded bytes.
//
// A Reader owns a ring.Buffer.  Transport code appends raw bytes with Write,
// and the consumer calls ReadPacket to pull out one decoded packet at a time.
// ReadPacket handles packets whose encoded bytes wrap around the end of the
// buffer's storage, and skips over corrupt input so that the next call can
// pick up the following packet.
package framed

import (
	"errors"
	"fmt"

	"github.com/dcreager/cobs-ring-go/cobs"
	"github.com/dcreager/cobs-ring-go/ring"
	"github.com/rs/zerolog"
)

var (
	// ErrNoBytes is returned by ReadPacket when the buffer is empty.  It is a
	// signal to poll again later, not a failure.
	ErrNoBytes = errors.New("framed: no bytes buffered")

	// ErrIncomplete is returned by ReadPacket when the buffered bytes do not
	// yet contain the end of a packet.
	ErrIncomplete = errors.New("framed: packet incomplete")

	// ErrCorrupt matches the error returned by ReadPacket when malformed input
	// was found and skipped.
	ErrCorrupt = errors.New("framed: corrupt packet")
)

// CorruptError reports malformed input that ReadPacket skipped.  Skipped is
// the number of buffered bytes that were discarded, and Cause is the decoder
// error, with its offset counted from the read cursor.
type CorruptError struct {
	Skipped int
	Cause   error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("framed: corrupt packet, skipped %d bytes: %v", e.Skipped, e.Cause)
}

func (e *CorruptError) Unwrap() error {
	return e.Cause
}

func (e *CorruptError) Is(target error) bool {
	return target == ErrCorrupt
}

// Option configures a Reader.
type Option func(*Reader)

// WithResume keeps a partially decoded packet across ReadPacket calls that
// return ErrIncomplete, so that bytes already scanned are not decoded again.
// The saved progress is only reused when the next call passes the same
// destination slice, and is dropped whenever a Write overwrites unread data.
func WithResume() Option {
	return func(r *Reader) {
		r.resume = true
	}
}

// WithLogger sets the logger used for debug events.  The default logger
// discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Reader) {
		r.log = logger
	}
}

// WithDecoderOptions passes options through to the COBS decoder.
func WithDecoderOptions(opts ...cobs.Option) Option {
	return func(r *Reader) {
		r.decoderOpts = append(r.decoderOpts, opts...)
	}
}

// Reader decodes COBS packets out of a ring buffer.  A Reader is not safe for
// concurrent use; see Stream for a locked variant.
type Reader struct {
	buf         *ring.Buffer
	dec         *cobs.Decoder
	decoderOpts []cobs.Option
	log         zerolog.Logger
	resume      bool

	// Progress of a partial packet, kept only with WithResume.
	scanned  int
	lastDest *byte
	lastLen  int
}

// New returns a Reader over a fresh ring buffer of the given capacity.
func New(capacity int, opts ...Option) *Reader {
	return NewReader(ring.New(capacity), opts...)
}

// NewReader returns a Reader that decodes the contents of buf.  The Reader
// takes ownership of buf; callers must not write to it directly afterwards.
func NewReader(buf *ring.Buffer, opts ...Option) *Reader {
	r := &Reader{
		buf: buf,
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.dec = cobs.NewDecoder(nil, r.decoderOpts...)
	return r
}

// Buffered returns the number of undecoded bytes in the buffer.
func (r *Reader) Buffered() int {
	return r.buf.AvailableToRead()
}

// Available returns the number of bytes that can be written without
// overwriting undecoded data.
func (r *Reader) Available() int {
	return r.buf.AvailableToWrite()
}

// Write appends encoded bytes to the buffer.  It never fails: if p does not
// fit, the oldest undecoded bytes are overwritten.
func (r *Reader) Write(p []byte) (int, error) {
	if len(p) > r.buf.AvailableToWrite() {
		r.forget()
	}
	return r.buf.Write(p), nil
}

// Reset discards every buffered byte and returns how many there were.
func (r *Reader) Reset() int {
	n := r.buf.AvailableToRead()
	r.buf.Reset()
	r.forget()
	return n
}

// ReadPacket decodes the next packet into dest and returns its length.
//
// It returns ErrNoBytes if the buffer is empty and ErrIncomplete if the
// buffered bytes end before the packet does; in both cases nothing is
// consumed.  If the packet is malformed, or is larger than dest, the bytes up
// to the point of failure are discarded and the error matches ErrCorrupt.
func (r *Reader) ReadPacket(dest []byte) (int, error) {
	if r.buf.Empty() {
		r.forget()
		return 0, ErrNoBytes
	}

	skip := r.session(dest)
	first, second := r.buf.Contiguous()

	total := 0
	for _, run := range [][]byte{first, second} {
		if skip >= len(run) {
			skip -= len(run)
			total += len(run)
			continue
		}
		run = run[skip:]
		total += skip
		skip = 0

		n, consumed, err := r.dec.Push(run)
		total += consumed
		switch {
		case err == nil:
			r.buf.Discard(total)
			r.forget()
			return n, nil
		case errors.Is(err, cobs.ErrIncomplete):
			continue
		default:
			var decodeErr *cobs.DecodeError
			if errors.As(err, &decodeErr) {
				decodeErr.Offset = total
			}
			r.buf.Discard(total)
			r.forget()
			r.log.Debug().
				Err(err).
				Int("skipped", total).
				Int("buffered", r.buf.AvailableToRead()).
				Msg("skipped corrupt packet")
			return 0, &CorruptError{Skipped: total, Cause: err}
		}
	}

	if r.resume {
		r.scanned = total
	}
	return 0, ErrIncomplete
}

// session prepares the decoder for a ReadPacket call, and returns the number
// of buffered bytes that it has already consumed.
func (r *Reader) session(dest []byte) int {
	if r.resume && r.scanned > 0 && len(dest) > 0 &&
		&dest[0] == r.lastDest && len(dest) == r.lastLen {
		return r.scanned
	}
	r.dec.Reset(dest)
	r.scanned = 0
	r.lastDest, r.lastLen = nil, 0
	if len(dest) > 0 {
		r.lastDest, r.lastLen = &dest[0], len(dest)
	}
	return 0
}

func (r *Reader) forget() {
	r.scanned = 0
	r.lastDest, r.lastLen = nil, 0
}
