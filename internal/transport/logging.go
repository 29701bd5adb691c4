// SPDX-License-Identifier: MIT
package transport

import (
	"sync/atomic"

	"spectrum/internal/log"
)

// LoggingTransport writes a debug line per frame. It is useful to watch a
// run without any receiver attached.
type LoggingTransport struct {
	log  *log.Logger
	sent atomic.Int64
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	return &LoggingTransport{log: log.WithComponent("transport.log")}
}

// Send logs a summary of data. It never fails.
func (lt *LoggingTransport) Send(data any) error {
	lt.sent.Add(1)
	switch v := data.(type) {
	case Frame:
		if v.Terminal() {
			lt.log.Debugf("end of stream")
			return nil
		}
		peak, at := peakOf(v.Magnitudes)
		lt.log.Debugf("frame %d: %d bins, peak %.1f dB at bin %d", v.Index, len(v.Magnitudes), peak, at)
	default:
		lt.log.Debugf("%T: %+v", data, data)
	}
	return nil
}

// Sent returns the number of messages seen.
func (lt *LoggingTransport) Sent() int64 {
	return lt.sent.Load()
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	lt.log.Debugf("closed after %d messages", lt.sent.Load())
	return nil
}

func peakOf(mags []float64) (float64, int) {
	if len(mags) == 0 {
		return 0, -1
	}
	at := 0
	for i, v := range mags {
		if v > mags[at] {
			at = i
		}
	}
	return mags[at], at
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
