// SPDX-License-Identifier: MIT
/*
Package pipeline turns a decoded audio source into a stream of decibel
spectrum rows delivered to a FrameHandler.

Each run uses two goroutines joined by a bounded channel:
- the reader decodes chunks, downmixes to mono, cuts overlapping frames and
  enqueues them in batches, dropping a batch when the queue stays full for
  longer than EnqueueTimeout
- the transform windows each frame, runs the FFT and hands the row to the
  handler, then makes exactly one terminal call with TerminalIndex

Closing the channel marks the end of the stream. Stop cancels both tasks
and waits for them for at most StopTimeout.
*/
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"spectrum/internal/analysis"
	"spectrum/internal/log"
	"spectrum/internal/observe"
	"spectrum/internal/source"
)

// Pipeline coordinates runs over a single source. Its methods are safe for
// concurrent use.
type Pipeline struct {
	src     source.Source
	handler FrameHandler
	cfg     Config
	onError ErrorHandler
	metrics *observe.Metrics
	log     *log.Logger

	ctl sync.Mutex // serialises Start and Stop

	mu    sync.Mutex // guards state and run
	state State
	run   *run
	runs  uint64
}

// run is the state owned by one Start call. A new run never shares its
// channel, segmenter or counters with an earlier one.
type run struct {
	id        uint64
	ctx       context.Context
	cancel    context.CancelFunc
	batches   chan FrameBatch
	stream    source.Stream
	segmenter *analysis.Segmenter
	processor *analysis.SpectrumProcessor
	done      chan struct{}
	started   time.Time

	framesProduced  atomic.Int64
	framesDelivered atomic.Int64
	framesDropped   atomic.Int64
	batchesEnqueued atomic.Int64
	batchesDropped  atomic.Int64
	callbackErrors  atomic.Int64
	streamErrors    atomic.Int64
}

func (r *run) stats() Stats {
	return Stats{
		FramesProduced:  r.framesProduced.Load(),
		FramesDelivered: r.framesDelivered.Load(),
		FramesDropped:   r.framesDropped.Load(),
		BatchesEnqueued: r.batchesEnqueued.Load(),
		BatchesDropped:  r.batchesDropped.Load(),
		CallbackErrors:  r.callbackErrors.Load(),
		StreamErrors:    r.streamErrors.Load(),
	}
}

// New returns an idle pipeline reading from src and delivering rows to
// handler.
func New(src source.Source, handler FrameHandler, opts ...Option) (*Pipeline, error) {
	if src == nil {
		return nil, errors.New("pipeline: nil source")
	}
	if handler == nil {
		return nil, errors.New("pipeline: nil frame handler")
	}

	p := &Pipeline{
		src:     src,
		handler: handler,
		cfg:     DefaultConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.cfg = p.cfg.withDefaults()
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	if p.log == nil {
		p.log = log.WithComponent("pipeline")
	}
	return p, nil
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Start probes the source, opens its stream and launches a run. It fails
// with ErrAlreadyRunning while a run is active, with ErrMetadataUnavailable
// when the probe is unusable and with ErrStreamRead when the stream cannot
// be opened; in all three cases the state is unchanged.
//
// ctx bounds the probe and open only; the run itself ends at end of stream
// or on Stop.
func (p *Pipeline) Start(ctx context.Context) (Snapshot, error) {
	p.ctl.Lock()
	defer p.ctl.Unlock()

	if s := p.State(); s == Running || s == Stopping {
		return Snapshot{}, ErrAlreadyRunning
	}

	snap, err := Describe(ctx, p.src, p.cfg)
	if err != nil {
		return Snapshot{}, err
	}
	meta := snap.AudioMetadata

	processor, err := analysis.NewSpectrumProcessor(p.cfg.FFTSize, p.cfg.Window, len(snap.Frequencies))
	if err != nil {
		return Snapshot{}, err
	}
	segmenter, err := analysis.NewSegmenter(p.cfg.FFTSize, p.cfg.HopLength)
	if err != nil {
		return Snapshot{}, err
	}

	stream, err := p.src.Open(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrStreamRead, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.mu.Lock()
	p.runs++
	r := &run{
		id:        p.runs,
		ctx:       runCtx,
		cancel:    cancel,
		batches:   make(chan FrameBatch, p.cfg.QueueCapacity),
		stream:    stream,
		segmenter: segmenter,
		processor: processor,
		done:      make(chan struct{}),
		started:   time.Now(),
	}
	p.run = r
	p.state = Running
	p.mu.Unlock()

	p.log.Infof("run %d started: %.0f Hz, %.2fs, %d frames expected, %d bins",
		r.id, meta.SampleRate, meta.Duration, snap.NumTimeFrames, len(snap.Frequencies))
	p.metrics.ActiveRuns.Add(runCtx, 1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.read(r)
	}()
	go func() {
		defer wg.Done()
		p.transform(r)
	}()
	go p.supervise(r, &wg)

	return snap, nil
}

// Describe probes src and returns the layout a run with cfg would deliver,
// without starting anything. Zero fields of cfg take their defaults.
func Describe(ctx context.Context, src source.Source, cfg Config) (Snapshot, error) {
	cfg = cfg.withDefaults()

	info, err := src.Probe(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrMetadataUnavailable, err)
	}
	if info.SampleRate <= 0 || info.TotalSamples <= 0 || info.Duration <= 0 {
		return Snapshot{}, fmt.Errorf("%w: sample rate %g, %d samples, %gs",
			ErrMetadataUnavailable, info.SampleRate, info.TotalSamples, info.Duration)
	}

	bins := analysis.FrequencyBins(info.SampleRate, cfg.FFTSize)
	bins = bins[:analysis.TruncationIndex(bins, cfg.MaxFrequency)]

	return Snapshot{
		AudioMetadata: AudioMetadata{
			SampleRate:   info.SampleRate,
			Duration:     info.Duration,
			TotalSamples: info.TotalSamples,
		},
		FFTSize:       cfg.FFTSize,
		HopLength:     cfg.HopLength,
		Frequencies:   bins,
		NumTimeFrames: NumTimeFrames(info.TotalSamples, cfg.FFTSize, cfg.HopLength),
	}, nil
}

// markDraining moves a run whose input is exhausted from Running to
// Stopping. Queued batches are still delivered.
func (p *Pipeline) markDraining(r *run) {
	p.mu.Lock()
	if p.run == r && p.state == Running {
		p.state = Stopping
	}
	p.mu.Unlock()
}

// supervise joins the run's tasks and marks it finished, unless a newer run
// has replaced it in the meantime.
func (p *Pipeline) supervise(r *run, wg *sync.WaitGroup) {
	wg.Wait()
	r.cancel()
	p.metrics.ActiveRuns.Add(context.Background(), -1)

	p.mu.Lock()
	if p.run == r {
		p.state = Finished
	}
	p.mu.Unlock()

	st := r.stats()
	p.log.Infof("run %d finished in %s: %d frames delivered, %d dropped in %d batches, %d callback errors",
		r.id, time.Since(r.started).Round(time.Millisecond),
		st.FramesDelivered, st.FramesDropped, st.BatchesDropped, st.CallbackErrors)
	close(r.done)
}

// Stop cancels the active run and waits up to StopTimeout for its tasks to
// exit. The pipeline is Finished afterwards even if the wait timed out.
// Stop is a no-op unless the pipeline is Running, so calling it twice is
// safe. Once the input is exhausted the run is Stopping and Stop leaves it
// to deliver what is already queued; use Wait or Done to join it. Stop
// never delivers the terminal frame itself.
//
// Called from inside the FrameHandler, Stop cannot see the transform task
// exit, because that task is the caller: it returns only after the full
// StopTimeout, with a warning logged. Handlers that want to end a run early
// should return and let another goroutine call Stop.
func (p *Pipeline) Stop() error {
	p.ctl.Lock()
	defer p.ctl.Unlock()

	p.mu.Lock()
	if p.state != Running {
		p.mu.Unlock()
		return nil
	}
	p.state = Stopping
	r := p.run
	p.mu.Unlock()

	r.cancel()

	timer := time.NewTimer(p.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-r.done:
	case <-timer.C:
		p.log.Warnf("run %d did not stop within %s", r.id, p.cfg.StopTimeout)
	}

	p.mu.Lock()
	if p.run == r {
		p.state = Finished
	}
	p.mu.Unlock()
	return nil
}

// State returns the current lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Done returns a channel closed once the current run's tasks have exited.
// Before the first Start it returns a closed channel.
func (p *Pipeline) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return p.run.done
}

// Wait blocks until the current run has finished or ctx is done.
func (p *Pipeline) Wait(ctx context.Context) error {
	select {
	case <-p.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns the counters of the current or most recent run.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	r := p.run
	p.mu.Unlock()
	if r == nil {
		return Stats{}
	}
	return r.stats()
}

// report logs err and forwards it to the error handler, if any.
func (p *Pipeline) report(err error) {
	p.log.Errorf("%v", err)
	if p.onError != nil {
		p.onError(err)
	}
}
