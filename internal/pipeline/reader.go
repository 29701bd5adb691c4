// SPDX-License-Identifier: MIT
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"time"

	"spectrum/internal/source"
)

// read is the producer task. It always closes the batch channel on exit,
// which the transform task takes as end of stream.
func (p *Pipeline) read(r *run) {
	defer close(r.batches)
	defer func() {
		if err := r.stream.Close(); err != nil {
			p.log.Warnf("closing stream: %v", err)
		}
	}()

	channels := r.stream.NumChannels()
	batch := newFrameBatch(p.cfg.BatchSize)

	for {
		if r.ctx.Err() != nil {
			// Unlike the end-of-stream path, the in-progress batch is not
			// flushed: its enqueue could only lose to the cancelled context.
			return
		}

		chunk, err := r.stream.ReadChunk()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.streamErrors.Add(1)
			p.metrics.StreamErrors.Add(r.ctx, 1)
			p.report(fmt.Errorf("%w: %w", ErrStreamRead, err))
			break
		}

		frames := r.segmenter.Push(source.Mono(chunk, channels))
		r.framesProduced.Add(int64(len(frames)))
		p.metrics.FramesProduced.Add(r.ctx, int64(len(frames)))

		for _, f := range frames {
			batch.Indices = append(batch.Indices, f.Index)
			batch.Samples = append(batch.Samples, f.Samples)
			if batch.Len() < p.cfg.BatchSize {
				continue
			}
			p.enqueue(r, batch)
			if r.ctx.Err() != nil {
				return
			}
			batch = newFrameBatch(p.cfg.BatchSize)
		}
	}

	// No more input: the run drains what is queued and cannot be
	// cancelled by Stop any more.
	p.markDraining(r)

	if batch.Len() > 0 {
		p.enqueue(r, batch)
	}
}

// enqueue offers batch to the transform task for at most EnqueueTimeout.
// A batch that does not fit in time is dropped and never retried; the
// frames it carried leave a gap in the delivered indices.
func (p *Pipeline) enqueue(r *run, batch FrameBatch) bool {
	timer := time.NewTimer(p.cfg.EnqueueTimeout)
	defer timer.Stop()

	select {
	case r.batches <- batch:
		r.batchesEnqueued.Add(1)
		p.metrics.BatchesEnqueued.Add(r.ctx, 1)
		return true
	case <-timer.C:
		r.batchesDropped.Add(1)
		r.framesDropped.Add(int64(batch.Len()))
		p.metrics.RecordDrop(r.ctx, batch.Len())
		p.log.Warnf("queue full for %s, dropped frames %d-%d",
			p.cfg.EnqueueTimeout, batch.Indices[0], batch.Indices[batch.Len()-1])
		return false
	case <-r.ctx.Done():
		return false
	}
}
