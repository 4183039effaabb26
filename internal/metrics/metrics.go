// Package metrics exports framed.Stream activity as prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cobsring"

// Collector implements framed.Observer.
type Collector struct {
	bytesWritten prometheus.Counter
	bytesDropped prometheus.Counter
	packets      prometheus.Counter
	packetBytes  prometheus.Counter
	corrupt      prometheus.Counter
	skipped      prometheus.Counter
}

// New creates the counters and registers them with reg.
func New(reg prometheus.Registerer) *Collector {
	counter := func(subsystem, name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}
	c := &Collector{
		bytesWritten: counter("buffer", "bytes_written_total", "Encoded bytes written into the ring buffer."),
		bytesDropped: counter("buffer", "bytes_dropped_total", "Encoded bytes lost to overwriting."),
		packets:      counter("decoder", "packets_total", "Packets decoded."),
		packetBytes:  counter("decoder", "packet_bytes_total", "Decoded payload bytes."),
		corrupt:      counter("decoder", "corrupt_total", "Corrupt packets skipped."),
		skipped:      counter("decoder", "skipped_bytes_total", "Encoded bytes discarded while skipping corrupt packets."),
	}
	reg.MustRegister(c.bytesWritten, c.bytesDropped, c.packets, c.packetBytes, c.corrupt, c.skipped)
	return c
}

// ObserveWrite counts bytes appended to the buffer and unread bytes they overwrote.
func (c *Collector) ObserveWrite(written, dropped int) {
	c.bytesWritten.Add(float64(written))
	c.bytesDropped.Add(float64(dropped))
}

// ObservePacket counts one decoded packet of the given length.
func (c *Collector) ObservePacket(length int) {
	c.packets.Inc()
	c.packetBytes.Add(float64(length))
}

// ObserveCorrupt counts one skipped corrupt packet.
func (c *Collector) ObserveCorrupt(skipped int) {
	c.corrupt.Inc()
	c.skipped.Add(float64(skipped))
}
