package framed

import (
	"errors"
	"sync"
)

// Stats counts the traffic that passed through a Stream.
type Stats struct {
	BytesWritten uint64
	BytesDropped uint64
	Packets      uint64
	PacketBytes  uint64
	Corrupt      uint64
	Skipped      uint64
	Incomplete   uint64
	Empty        uint64
}

// Observer is notified of Stream events, for example to export metrics.
// Calls are made with the Stream's lock held, so they must not call back into
// the Stream.
type Observer interface {
	ObserveWrite(written, dropped int)
	ObservePacket(length int)
	ObserveCorrupt(skipped int)
}

// Stream is a Reader guarded by a mutex, so that one goroutine can write
// encoded bytes while another reads packets.
type Stream struct {
	mu    sync.Mutex
	r     *Reader
	stats Stats
	obs   Observer

	stalled bool
}

// NewStream wraps r.  r must not be used directly afterwards.
func NewStream(r *Reader) *Stream {
	return &Stream{r: r}
}

// SetObserver installs o, replacing any previous observer.  A nil o removes
// the observer.
func (s *Stream) SetObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.obs = o
}

// Fill appends encoded bytes and returns how many buffered or incoming bytes
// were lost to overwriting.
func (s *Stream) Fill(p []byte) (dropped int) {
	if len(p) == 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.r.Buffered()
	s.r.Write(p)
	s.stalled = false
	dropped = before + len(p) - s.r.Buffered()

	s.stats.BytesWritten += uint64(len(p))
	s.stats.BytesDropped += uint64(dropped)
	if s.obs != nil {
		s.obs.ObserveWrite(len(p), dropped)
	}
	return dropped
}

// Write implements io.Writer.  It never returns an error; use Fill to learn
// whether data was overwritten.
func (s *Stream) Write(p []byte) (int, error) {
	s.Fill(p)
	return len(p), nil
}

// ReadPacket decodes the next packet into dest.  See Reader.ReadPacket.
func (s *Stream) ReadPacket(dest []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.r.ReadPacket(dest)
	s.stalled = err == ErrIncomplete && s.r.Available() == 0
	var corrupt *CorruptError
	switch {
	case err == nil:
		s.stats.Packets++
		s.stats.PacketBytes += uint64(n)
		if s.obs != nil {
			s.obs.ObservePacket(n)
		}
	case errors.As(err, &corrupt):
		s.stats.Corrupt++
		s.stats.Skipped += uint64(corrupt.Skipped)
		if s.obs != nil {
			s.obs.ObserveCorrupt(corrupt.Skipped)
		}
	case err == ErrIncomplete:
		s.stats.Incomplete++
	case err == ErrNoBytes:
		s.stats.Empty++
	}
	return n, err
}

// Reset discards every buffered byte, counting them as dropped, and returns
// how many were discarded.
func (s *Stream) Reset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := s.r.Reset()
	s.stalled = false
	s.stats.BytesDropped += uint64(dropped)
	if s.obs != nil {
		s.obs.ObserveWrite(0, dropped)
	}
	return dropped
}

// Stalled reports whether the last ReadPacket found a full buffer that holds
// no complete packet.  Such a buffer can only make progress by overwriting,
// or by being Reset.
func (s *Stream) Stalled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stalled
}

// Buffered returns the number of undecoded bytes.
func (s *Stream) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Buffered()
}

// Available returns the number of bytes that can be written without
// overwriting undecoded data.
func (s *Stream) Available() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Available()
}

// Stats returns a snapshot of the stream's counters.
func (s *Stream) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
