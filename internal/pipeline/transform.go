// SPDX-License-Identifier: MIT
package pipeline

import (
	"fmt"
	"time"
)

// transform is the consumer task. Whatever ends it, the sentinel or
// cancellation, it makes the terminal call exactly once on the way out.
func (p *Pipeline) transform(r *run) {
	defer p.terminate(r)

	for {
		select {
		case <-r.ctx.Done():
			return
		case batch, ok := <-r.batches:
			if !ok {
				return
			}
			if !p.processBatch(r, batch) {
				return
			}
		}
	}
}

// processBatch delivers every row of batch in index order. It returns false
// if the run was cancelled part way through.
func (p *Pipeline) processBatch(r *run, batch FrameBatch) bool {
	start := time.Now()
	defer func() {
		p.metrics.BatchDuration.Record(r.ctx, time.Since(start).Seconds())
	}()

	for i, index := range batch.Indices {
		if r.ctx.Err() != nil {
			return false
		}

		row := make([]float64, r.processor.BinCount())
		if err := r.processor.Process(batch.Samples[i], row); err != nil {
			p.report(fmt.Errorf("frame %d: %w", index, err))
			continue
		}

		if err := p.deliver(index, row); err != nil {
			r.callbackErrors.Add(1)
			p.metrics.CallbackErrors.Add(r.ctx, 1)
			p.report(err)
			continue
		}
		r.framesDelivered.Add(1)
		p.metrics.FramesDelivered.Add(r.ctx, 1)
	}
	return true
}

// deliver calls the handler, converting a panic into ErrCallback.
func (p *Pipeline) deliver(index int, row []float64) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: frame %d: panic: %v", ErrCallback, index, rec)
		}
	}()
	if herr := p.handler(index, row); herr != nil {
		return fmt.Errorf("%w: frame %d: %w", ErrCallback, index, herr)
	}
	return nil
}

// terminate makes the end-of-stream call. A failure here is only logged.
func (p *Pipeline) terminate(r *run) {
	if err := p.deliver(TerminalIndex, []float64{}); err != nil {
		p.log.Errorf("run %d: terminal frame: %v", r.id, err)
	}
}
