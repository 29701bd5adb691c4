// SPDX-License-Identifier: MIT
package spectrogram

import (
	"sync"

	"spectrum/internal/log"
	"spectrum/internal/transport"
)

// Collector writes delivered rows into a Buffer and forwards them to a set
// of transports. Its Handle method has the pipeline's FrameHandler shape.
type Collector struct {
	buf        *Buffer
	transports []transport.Transport
	log        *log.Logger

	mu        sync.Mutex
	received  int
	last      int // highest index seen, -1 before the first row
	gaps      int // frames skipped between consecutive deliveries
	overflow  int // rows beyond the buffer, still forwarded
	sendFails int

	done     chan struct{}
	doneOnce sync.Once
}

// NewCollector returns a Collector filling buf. buf may be nil when rows
// only need forwarding.
func NewCollector(buf *Buffer, transports ...transport.Transport) *Collector {
	return &Collector{
		buf:        buf,
		transports: transports,
		log:        log.WithComponent("collector"),
		last:       -1,
		done:       make(chan struct{}),
	}
}

// Handle consumes one delivered row. The terminal call closes Done and is
// forwarded to the transports as a terminal Frame.
func (c *Collector) Handle(index int, magnitudes []float64) error {
	if index < 0 {
		c.forward(transport.Frame{Index: index, Magnitudes: []float64{}})
		c.doneOnce.Do(func() { close(c.done) })
		return nil
	}

	var err error
	if c.buf != nil {
		err = c.buf.WriteRow(index, magnitudes)
	}

	c.mu.Lock()
	c.received++
	if index > c.last+1 {
		c.gaps += index - c.last - 1
	}
	if index > c.last {
		c.last = index
	}
	if err != nil {
		c.overflow++
	}
	c.mu.Unlock()

	c.forward(transport.Frame{Index: index, Magnitudes: magnitudes})
	return err
}

func (c *Collector) forward(frame transport.Frame) {
	for _, t := range c.transports {
		if err := t.Send(frame); err != nil {
			c.mu.Lock()
			c.sendFails++
			c.mu.Unlock()
			c.log.Debugf("forwarding frame %d: %v", frame.Index, err)
		}
	}
}

// Done is closed after the terminal row.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

// Summary is a point-in-time view of what the collector has seen.
type Summary struct {
	Received     int // rows, not counting the terminal call
	LastIndex    int
	MissedFrames int // indices skipped by dropped batches
	Overflow     int // rows the buffer rejected
	SendFailures int
}

func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Summary{
		Received:     c.received,
		LastIndex:    c.last,
		MissedFrames: c.gaps,
		Overflow:     c.overflow,
		SendFailures: c.sendFails,
	}
}
