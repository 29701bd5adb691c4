// SPDX-License-Identifier: MIT
package pipeline

import (
	"context"
	"sync"
)

// FrameChannel adapts the callback contract to a channel, for consumers
// that prefer to drain rows on their own goroutine. Every row, then the
// terminal frame, is posted to the returned channel, which is closed after
// the terminal frame.
//
// A full channel blocks the transform goroutine until the consumer catches
// up or ctx is done; in the latter case the row is not posted and the
// handler returns ctx.Err(). The terminal frame is dropped rather than
// waited for once ctx is done, but the channel is still closed. The handler
// serves a single run.
func FrameChannel(ctx context.Context, capacity int) (FrameHandler, <-chan SpectrumFrame) {
	frames := make(chan SpectrumFrame, capacity)
	var closeOnce sync.Once

	handler := func(index int, magnitudes []float64) error {
		frame := SpectrumFrame{Index: index, Magnitudes: magnitudes}
		if index == TerminalIndex {
			defer closeOnce.Do(func() { close(frames) })
		}
		select {
		case frames <- frame:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return handler, frames
}
