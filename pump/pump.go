// Package pump moves encoded bytes from a transport into a framed.Stream, and
// hands the decoded packets to the application.
//
// Run is the producer side: it reads from an io.Reader (usually a serial
// port) in small chunks, the way the device's USB receive task drains its
// FIFO.  Drain is the consumer side: it polls the stream for packets.  The two
// are meant to run on separate goroutines.
package pump

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/dcreager/cobs-ring-go/framed"
	"github.com/rs/zerolog"
)

// Handler receives each decoded packet.  The slice is only valid for the
// duration of the call.  Returning an error stops Drain.
type Handler func(packet []byte) error

// Option configures a Pump.
type Option func(*Pump)

// WithChunkSize sets the largest single read from the source.  The default is
// 64 bytes.
func WithChunkSize(n int) Option {
	return func(p *Pump) {
		if n > 0 {
			p.chunk = n
		}
	}
}

// WithOverwrite lets reads proceed while the stream is full, so that new
// bytes overwrite undecoded ones.  By default Run stops reading until the
// consumer makes room.
func WithOverwrite() Option {
	return func(p *Pump) {
		p.overwrite = true
	}
}

// WithThrottle sets how long Run waits before checking a full stream again.
func WithThrottle(d time.Duration) Option {
	return func(p *Pump) {
		if d > 0 {
			p.throttle = d
		}
	}
}

// WithPollInterval sets how long Drain waits after finding no complete
// packet.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pump) {
		if d > 0 {
			p.poll = d
		}
	}
}

// WithLogger sets the logger.  The default logger discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pump) {
		p.log = logger
	}
}

// Pump connects a byte source to a framed.Stream.
type Pump struct {
	src       io.Reader
	stream    *framed.Stream
	log       zerolog.Logger
	chunk     int
	overwrite bool
	throttle  time.Duration
	poll      time.Duration
}

// New returns a Pump that reads from src into stream.
func New(src io.Reader, stream *framed.Stream, opts ...Option) *Pump {
	p := &Pump{
		src:      src,
		stream:   stream,
		log:      zerolog.Nop(),
		chunk:    64,
		throttle: 50 * time.Millisecond,
		poll:     10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run copies bytes from the source into the stream until the context is
// cancelled, the source reaches EOF, or a read fails.  EOF is not an error.
//
// Reads happen on a separate goroutine, since most sources cannot be
// interrupted; if the context is cancelled that goroutine exits after its
// current read returns.
func (p *Pump) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		errc <- p.copy(ctx)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errc:
		return err
	}
}

func (p *Pump) copy(ctx context.Context) error {
	buf := make([]byte, p.chunk)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := len(buf)
		if !p.overwrite {
			room := p.stream.Available()
			if room == 0 {
				p.log.Debug().Msg("stream full, throttling reads")
				if err := p.sleep(ctx, p.throttle); err != nil {
					return err
				}
				continue
			}
			if room < n {
				n = room
			}
		}

		got, err := p.src.Read(buf[:n])
		if got > 0 {
			if dropped := p.stream.Fill(buf[:got]); dropped > 0 {
				p.log.Warn().Int("dropped", dropped).Msg("ring buffer overwrote undecoded bytes")
			}
		}
		if errors.Is(err, io.EOF) {
			p.log.Debug().Msg("source closed")
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Flush hands every complete packet currently buffered to fn, and returns
// the number of packets delivered.  It stops without error once the stream is
// empty or holds only part of a packet.  Corrupt packets are logged and
// skipped.  Unless WithOverwrite is set, a stream that is full but holds no
// complete packet is emptied, since Run would otherwise wait for room
// forever.
func (p *Pump) Flush(dest []byte, fn Handler) (int, error) {
	delivered := 0
	for {
		n, err := p.stream.ReadPacket(dest)
		switch {
		case err == nil:
			if err := fn(dest[:n]); err != nil {
				return delivered, err
			}
			delivered++
		case errors.Is(err, framed.ErrNoBytes):
			return delivered, nil
		case errors.Is(err, framed.ErrIncomplete):
			// A full buffer without a packet boundary can never complete,
			// and Run will not read until there is room.
			if !p.overwrite && p.stream.Stalled() {
				dropped := p.stream.Reset()
				p.log.Warn().Int("dropped", dropped).Msg("buffer full without a complete packet, discarding")
			}
			return delivered, nil
		case errors.Is(err, framed.ErrCorrupt):
			p.log.Warn().Err(err).Msg("skipped corrupt packet")
		default:
			return delivered, err
		}
	}
}

// Drain calls Flush repeatedly, waiting for the poll interval whenever no
// complete packet is buffered, until the context is cancelled or fn fails.
func (p *Pump) Drain(ctx context.Context, dest []byte, fn Handler) error {
	for {
		if _, err := p.Flush(dest, fn); err != nil {
			return err
		}
		if err := p.sleep(ctx, p.poll); err != nil {
			return err
		}
	}
}

func (p *Pump) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
