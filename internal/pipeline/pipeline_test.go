// SPDX-License-Identifier: MIT
package pipeline

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/goleak"

	"spectrum/internal/analysis"
	"spectrum/internal/log"
	"spectrum/internal/observe"
	"spectrum/internal/source"
	"spectrum/pkg/utils"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	goleak.VerifyTestMain(m)
}

// recorder is a FrameHandler that keeps everything it is given.
type recorder struct {
	mu        sync.Mutex
	indices   []int
	rows      [][]float64
	terminals int
	afterEnd  int // calls made after the terminal one
	done      chan struct{}

	// hook, when set, runs before a frame is recorded.
	hook func(index int) error
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) handle(index int, mags []float64) error {
	if index != TerminalIndex && r.hook != nil {
		if err := r.hook(index); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminals > 0 {
		r.afterEnd++
	}
	if index == TerminalIndex {
		if len(mags) != 0 {
			panic("terminal call carried magnitudes")
		}
		r.terminals++
		if r.terminals == 1 {
			close(r.done)
		}
		return nil
	}
	r.indices = append(r.indices, index)
	r.rows = append(r.rows, mags)
	return nil
}

func (r *recorder) snapshot() (indices []int, terminals, afterEnd int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.indices...), r.terminals, r.afterEnd
}

func (r *recorder) waitTerminal(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		t.Fatal("terminal frame not delivered")
	}
}

func testMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	require.NoError(t, err)
	return m, reader
}

func newTestPipeline(t *testing.T, src source.Source, handler FrameHandler, cfg Config, opts ...Option) *Pipeline {
	t.Helper()
	m, _ := testMetrics(t)
	opts = append([]Option{WithConfig(cfg), WithMetrics(m)}, opts...)
	p, err := New(src, handler, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = p.Stop()
		<-p.Done()
	})
	return p
}

func waitDone(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Wait(ctx))
}

func consecutive(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestNaturalCompletion(t *testing.T) {
	const fft, batch = 256, 4
	// Three full batches plus two frames.
	total := fft * (3*batch + 2)
	src := source.NewMemory(utils.GenerateSineWave(total, 8000, 1000), 8000, 1000)
	rec := newRecorder()

	p := newTestPipeline(t, src, rec.handle, Config{FFTSize: fft, HopLength: fft, BatchSize: batch})
	snap, err := p.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 14, snap.NumTimeFrames)
	assert.Len(t, snap.Frequencies, fft/2+1)
	assert.Equal(t, 8000.0, snap.SampleRate)

	rec.waitTerminal(t)
	waitDone(t, p)

	indices, terminals, afterEnd := rec.snapshot()
	assert.Equal(t, consecutive(14), indices)
	assert.Equal(t, 1, terminals)
	assert.Zero(t, afterEnd)
	assert.Equal(t, Finished, p.State())
	for _, row := range rec.rows {
		require.Len(t, row, fft/2+1)
	}

	st := p.Stats()
	assert.Equal(t, int64(14), st.FramesProduced)
	assert.Equal(t, int64(14), st.FramesDelivered)
	assert.Equal(t, int64(4), st.BatchesEnqueued)
	assert.Zero(t, st.BatchesDropped)

	// Stop after natural completion is a no-op.
	require.NoError(t, p.Stop())
	assert.Equal(t, Finished, p.State())
	_, terminals, _ = rec.snapshot()
	assert.Equal(t, 1, terminals)
}

func TestOverlappingFrames(t *testing.T) {
	src := source.NewMemory(make([]float64, 1000), 8000, 300)
	rec := newRecorder()

	p := newTestPipeline(t, src, rec.handle, Config{FFTSize: 256, HopLength: 64, BatchSize: 5})
	snap, err := p.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, snap.NumTimeFrames)

	rec.waitTerminal(t)
	indices, _, _ := rec.snapshot()
	assert.Equal(t, consecutive(12), indices)
}

func TestSpectrumPeakDelivered(t *testing.T) {
	const fft = 256
	src := source.NewMemory(utils.GenerateSineWave(fft*4, 8000, 1000), 8000, 0)
	rec := newRecorder()

	p := newTestPipeline(t, src, rec.handle, Config{FFTSize: fft, HopLength: fft})
	_, err := p.Start(context.Background())
	require.NoError(t, err)
	rec.waitTerminal(t)

	require.Len(t, rec.rows, 4)
	for _, row := range rec.rows {
		peak := utils.FindPeakBin(row, 0, len(row)-1)
		assert.InDelta(t, 32, peak, 1)
	}
}

func TestStereoDuplicateKeepsPeak(t *testing.T) {
	const fft = 256
	stereo := utils.Interleave(utils.GenerateSineWave(fft*3, 8000, 1000), 2)
	src := &source.Memory{Samples: stereo, SampleRate: 8000, Channels: 2}
	rec := newRecorder()

	p := newTestPipeline(t, src, rec.handle, Config{FFTSize: fft, HopLength: fft})
	_, err := p.Start(context.Background())
	require.NoError(t, err)
	rec.waitTerminal(t)

	require.Len(t, rec.rows, 3)
	for _, row := range rec.rows {
		assert.Equal(t, 32, utils.FindPeakBin(row, 0, len(row)-1))
	}
}

func TestStereoDownmixAverages(t *testing.T) {
	const fft = 128
	mono := utils.GenerateSineWave(fft*2, 8000, 500)
	stereo := make([]float64, 0, 2*len(mono))
	for _, s := range mono {
		stereo = append(stereo, s, -s)
	}
	src := &source.Memory{Samples: stereo, SampleRate: 8000, Channels: 2}
	rec := newRecorder()

	p := newTestPipeline(t, src, rec.handle, Config{FFTSize: fft, HopLength: fft})
	snap, err := p.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, snap.NumTimeFrames)
	rec.waitTerminal(t)

	require.Len(t, rec.rows, 2)
	for _, row := range rec.rows {
		for _, v := range row {
			assert.Equal(t, analysis.FloorDB, v)
		}
	}
}

func TestMaxFrequencyTruncates(t *testing.T) {
	src := source.NewMemory(make([]float64, 512), 8000, 0)
	rec := newRecorder()

	p := newTestPipeline(t, src, rec.handle, Config{FFTSize: 256, HopLength: 256, MaxFrequency: 1000})
	snap, err := p.Start(context.Background())
	require.NoError(t, err)

	// Bins are 31.25 Hz apart; 1000 Hz is bin 32, which is excluded.
	require.Len(t, snap.Frequencies, 32)
	assert.Less(t, snap.Frequencies[31], 1000.0)

	rec.waitTerminal(t)
	for _, row := range rec.rows {
		assert.Len(t, row, 32)
	}
}

func TestShortStreamDeliversOnlyTerminal(t *testing.T) {
	src := source.NewMemory(make([]float64, 100), 8000, 0)
	rec := newRecorder()

	p := newTestPipeline(t, src, rec.handle, Config{FFTSize: 256})
	snap, err := p.Start(context.Background())
	require.NoError(t, err)
	assert.Zero(t, snap.NumTimeFrames)

	rec.waitTerminal(t)
	indices, terminals, _ := rec.snapshot()
	assert.Empty(t, indices)
	assert.Equal(t, 1, terminals)
}

func TestStartWhileRunning(t *testing.T) {
	release := make(chan struct{})
	rec := newRecorder()
	rec.hook = func(int) error {
		<-release
		return nil
	}
	// More batches than the queue holds, so the reader is still busy.
	src := source.NewMemory(make([]float64, 256*400), 8000, 0)

	p := newTestPipeline(t, src, rec.handle, Config{FFTSize: 256, HopLength: 256})
	_, err := p.Start(context.Background())
	require.NoError(t, err)

	_, err = p.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, Running, p.State())

	close(release)
	rec.waitTerminal(t)
	waitDone(t, p)
}

func TestStopWhenIdle(t *testing.T) {
	p := newTestPipeline(t, source.NewMemory(make([]float64, 512), 8000, 0), newRecorder().handle, Config{})
	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())
	assert.Equal(t, Idle, p.State())

	select {
	case <-p.Done():
	default:
		t.Error("Done() should be closed before the first run")
	}
}

func TestStopCancelsRun(t *testing.T) {
	started := make(chan struct{})
	var once sync.Once
	rec := newRecorder()
	rec.hook = func(int) error {
		once.Do(func() { close(started) })
		time.Sleep(time.Millisecond)
		return nil
	}
	src := source.NewMemory(make([]float64, 256*2000), 8000, 0)

	p := newTestPipeline(t, src, rec.handle, Config{FFTSize: 256, HopLength: 256, BatchSize: 4})
	_, err := p.Start(context.Background())
	require.NoError(t, err)
	<-started

	require.NoError(t, p.Stop())
	assert.Equal(t, Finished, p.State())
	require.NoError(t, p.Stop())
	assert.Equal(t, Finished, p.State())

	rec.waitTerminal(t)
	waitDone(t, p)

	indices, terminals, afterEnd := rec.snapshot()
	assert.Less(t, len(indices), 2000)
	assert.Equal(t, 1, terminals)
	assert.Zero(t, afterEnd)
}

func TestStopReturnsWithinTimeout(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	rec := newRecorder()
	rec.hook = func(int) error {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return nil
	}
	src := source.NewMemory(make([]float64, 256*1000), 8000, 0)

	p := newTestPipeline(t, src, rec.handle, Config{
		FFTSize:     256,
		HopLength:   256,
		StopTimeout: 50 * time.Millisecond,
	})
	_, err := p.Start(context.Background())
	require.NoError(t, err)
	<-entered
	done := p.Done()

	begin := time.Now()
	require.NoError(t, p.Stop())
	assert.Less(t, time.Since(begin), time.Second)
	assert.Equal(t, Finished, p.State())

	close(release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tasks did not exit after the handler returned")
	}
	_, terminals, _ := rec.snapshot()
	assert.Equal(t, 1, terminals)
}

func TestStopWhileDrainingDeliversQueuedFrames(t *testing.T) {
	rec := newRecorder()
	rec.hook = func(int) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	}
	const frames = 40
	src := source.NewMemory(make([]float64, 256*frames), 8000, 0)

	// The queue holds the whole stream, so the reader finishes first.
	p := newTestPipeline(t, src, rec.handle, Config{
		FFTSize:       256,
		HopLength:     256,
		BatchSize:     4,
		QueueCapacity: 16,
	})
	_, err := p.Start(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return p.State() == Stopping },
		time.Second, time.Millisecond, "exhausted input should leave the run Stopping")

	require.NoError(t, p.Stop())
	rec.waitTerminal(t)
	waitDone(t, p)

	indices, terminals, _ := rec.snapshot()
	assert.Equal(t, consecutive(frames), indices)
	assert.Equal(t, 1, terminals)
	assert.Equal(t, Finished, p.State())

	st := p.Stats()
	assert.Equal(t, int64(frames), st.FramesDelivered)
	assert.Zero(t, st.FramesDropped)
}

func TestStopFromHandlerWaitsForTimeout(t *testing.T) {
	const timeout = 50 * time.Millisecond
	var (
		p       *Pipeline
		stopErr error
		elapsed time.Duration
	)
	rec := newRecorder()
	rec.hook = func(index int) error {
		if index == 0 {
			begin := time.Now()
			stopErr = p.Stop()
			elapsed = time.Since(begin)
		}
		return nil
	}
	// Queue of one batch: the reader cannot reach the end before frame 0.
	src := source.NewMemory(make([]float64, 64*200), 8000, 0)

	p = newTestPipeline(t, src, rec.handle, Config{
		FFTSize:       64,
		HopLength:     64,
		BatchSize:     1,
		QueueCapacity: 1,
		StopTimeout:   timeout,
	})
	_, err := p.Start(context.Background())
	require.NoError(t, err)
	rec.waitTerminal(t)
	waitDone(t, p)

	require.NoError(t, stopErr)
	assert.GreaterOrEqual(t, elapsed, timeout)
	assert.Equal(t, Finished, p.State())

	indices, terminals, afterEnd := rec.snapshot()
	assert.Equal(t, []int{0}, indices)
	assert.Equal(t, 1, terminals)
	assert.Zero(t, afterEnd)
}

func TestBackpressureDropsBatches(t *testing.T) {
	rec := newRecorder()
	rec.hook = func(int) error {
		time.Sleep(2 * time.Millisecond)
		return nil
	}
	const frames = 200
	src := source.NewMemory(make([]float64, 64*frames), 8000, 0)

	p := newTestPipeline(t, src, rec.handle, Config{
		FFTSize:        64,
		HopLength:      64,
		BatchSize:      2,
		QueueCapacity:  1,
		EnqueueTimeout: time.Millisecond,
	})
	_, err := p.Start(context.Background())
	require.NoError(t, err)
	rec.waitTerminal(t)
	waitDone(t, p)

	st := p.Stats()
	assert.Positive(t, st.BatchesDropped)
	assert.Equal(t, 2*st.BatchesDropped, st.FramesDropped)
	assert.Equal(t, int64(frames), st.FramesProduced)
	assert.Equal(t, st.FramesProduced, st.FramesDelivered+st.FramesDropped)

	indices, terminals, _ := rec.snapshot()
	assert.Equal(t, 1, terminals)
	assert.Len(t, indices, int(st.FramesDelivered))
	gaps := 0
	for i := 1; i < len(indices); i++ {
		require.Greater(t, indices[i], indices[i-1], "indices must increase")
		if indices[i] != indices[i-1]+1 {
			gaps++
		}
	}
	assert.Positive(t, gaps)
}

func TestRestartAfterFinished(t *testing.T) {
	src := source.NewMemory(make([]float64, 1024), 8000, 0)
	var mu sync.Mutex
	var calls []int
	handler := func(index int, _ []float64) error {
		mu.Lock()
		calls = append(calls, index)
		mu.Unlock()
		return nil
	}

	p := newTestPipeline(t, src, handler, Config{FFTSize: 256, HopLength: 256})
	for range 2 {
		_, err := p.Start(context.Background())
		require.NoError(t, err)
		waitDone(t, p)
		assert.Equal(t, Finished, p.State())
		assert.Equal(t, int64(4), p.Stats().FramesDelivered)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, -1, 0, 1, 2, 3, -1}, calls)
}

func TestMetadataUnavailable(t *testing.T) {
	tests := []struct {
		name string
		src  *source.Memory
	}{
		{"probe error", &source.Memory{ProbeErr: errors.New("no header"), SampleRate: 8000, Samples: make([]float64, 512)}},
		{"zero sample rate", &source.Memory{Samples: make([]float64, 512)}},
		{"empty stream", &source.Memory{SampleRate: 8000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecorder()
			p := newTestPipeline(t, tt.src, rec.handle, Config{FFTSize: 256})
			_, err := p.Start(context.Background())
			assert.ErrorIs(t, err, ErrMetadataUnavailable)
			assert.Equal(t, Idle, p.State())

			indices, terminals, _ := rec.snapshot()
			assert.Empty(t, indices)
			assert.Zero(t, terminals)
		})
	}
}

func TestOpenFailure(t *testing.T) {
	src := &source.Memory{Samples: make([]float64, 512), SampleRate: 8000, OpenErr: errors.New("locked")}
	p := newTestPipeline(t, src, newRecorder().handle, Config{FFTSize: 256})

	_, err := p.Start(context.Background())
	assert.ErrorIs(t, err, ErrStreamRead)
	assert.Equal(t, Idle, p.State())
}

func TestStreamReadFailureMidRun(t *testing.T) {
	boom := errors.New("corrupt frame")
	src := &source.Memory{
		Samples:     make([]float64, 256*10),
		SampleRate:  8000,
		ChunkFrames: 256,
		ReadErr:     boom,
		FailAfter:   3,
	}
	rec := newRecorder()
	var mu sync.Mutex
	var reported []error

	p := newTestPipeline(t, src, rec.handle, Config{FFTSize: 256, HopLength: 256},
		WithErrorHandler(func(err error) {
			mu.Lock()
			reported = append(reported, err)
			mu.Unlock()
		}))
	_, err := p.Start(context.Background())
	require.NoError(t, err)
	rec.waitTerminal(t)
	waitDone(t, p)

	indices, terminals, _ := rec.snapshot()
	assert.Equal(t, consecutive(3), indices)
	assert.Equal(t, 1, terminals)
	assert.Equal(t, int64(1), p.Stats().StreamErrors)
	assert.Equal(t, Finished, p.State())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], ErrStreamRead)
	assert.ErrorIs(t, reported[0], boom)
}

func TestHandlerFailuresDoNotStopDelivery(t *testing.T) {
	rec := newRecorder()
	rec.hook = func(index int) error {
		switch index {
		case 1:
			return errors.New("disk full")
		case 2:
			panic("bad row")
		}
		return nil
	}
	var mu sync.Mutex
	var reported []error

	src := source.NewMemory(make([]float64, 256*5), 8000, 0)
	p := newTestPipeline(t, src, rec.handle, Config{FFTSize: 256, HopLength: 256},
		WithErrorHandler(func(err error) {
			mu.Lock()
			reported = append(reported, err)
			mu.Unlock()
		}))
	_, err := p.Start(context.Background())
	require.NoError(t, err)
	rec.waitTerminal(t)
	waitDone(t, p)

	indices, terminals, _ := rec.snapshot()
	assert.Equal(t, []int{0, 3, 4}, indices)
	assert.Equal(t, 1, terminals)

	st := p.Stats()
	assert.Equal(t, int64(2), st.CallbackErrors)
	assert.Equal(t, int64(3), st.FramesDelivered)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 2)
	for _, err := range reported {
		assert.ErrorIs(t, err, ErrCallback)
	}
}

func TestMetricsRecorded(t *testing.T) {
	m, reader := testMetrics(t)
	rec := newRecorder()
	src := source.NewMemory(make([]float64, 256*6), 8000, 0)

	p, err := New(src, rec.handle, WithConfig(Config{FFTSize: 256, HopLength: 256, BatchSize: 4}), WithMetrics(m))
	require.NoError(t, err)
	_, err = p.Start(context.Background())
	require.NoError(t, err)
	waitDone(t, p)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if sum, ok := met.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[met.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(6), sums["spectrum.frames.produced"])
	assert.Equal(t, int64(6), sums["spectrum.frames.delivered"])
	assert.Equal(t, int64(2), sums["spectrum.batches.enqueued"])
	assert.Zero(t, sums["spectrum.active_runs"])
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"defaults", DefaultConfig(), true},
		{"not power of two", Config{FFTSize: 1000, HopLength: 250, BatchSize: 1, QueueCapacity: 1}, false},
		{"hop larger than fft", Config{FFTSize: 256, HopLength: 512, BatchSize: 1, QueueCapacity: 1}, false},
		{"zero hop", Config{FFTSize: 256, HopLength: 0, BatchSize: 1, QueueCapacity: 1}, false},
		{"zero batch", Config{FFTSize: 256, HopLength: 64, BatchSize: 0, QueueCapacity: 1}, false},
		{"zero queue", Config{FFTSize: 256, HopLength: 64, BatchSize: 1, QueueCapacity: 0}, false},
		{"negative max frequency", Config{FFTSize: 256, HopLength: 64, BatchSize: 1, QueueCapacity: 1, MaxFrequency: -1}, false},
		{"hop equals fft", Config{FFTSize: 256, HopLength: 256, BatchSize: 1, QueueCapacity: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	p, err := New(source.NewMemory(nil, 8000, 0), newRecorder().handle, WithConfig(Config{FFTSize: 1024}))
	require.NoError(t, err)
	cfg := p.Config()
	assert.Equal(t, 256, cfg.HopLength)
	assert.Equal(t, DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, DefaultQueueCapacity, cfg.QueueCapacity)
	assert.Equal(t, DefaultStopTimeout, cfg.StopTimeout)

	_, err = New(source.NewMemory(nil, 8000, 0), newRecorder().handle, WithConfig(Config{FFTSize: 1000}))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(nil, newRecorder().handle)
	assert.Error(t, err)
}

func TestNumTimeFrames(t *testing.T) {
	tests := []struct {
		total    int64
		fft, hop int
		want     int
	}{
		{0, 256, 64, 0},
		{255, 256, 64, 0},
		{256, 256, 64, 1},
		{1000, 256, 64, 12},
		{44100, 2048, 512, 83},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NumTimeFrames(tt.total, tt.fft, tt.hop), "%+v", tt)
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "finished", Finished.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestDeliveredRowsAreFinite(t *testing.T) {
	src := source.NewMemory(utils.GenerateComplexWave(2048*3, 44100), 44100, 0)
	rec := newRecorder()
	p := newTestPipeline(t, src, rec.handle, Config{})
	_, err := p.Start(context.Background())
	require.NoError(t, err)
	rec.waitTerminal(t)

	require.NotEmpty(t, rec.rows)
	for _, row := range rec.rows {
		for _, v := range row {
			require.False(t, math.IsNaN(v) || math.IsInf(v, 0))
			require.GreaterOrEqual(t, v, analysis.FloorDB)
		}
	}
}

func TestDescribeMatchesStart(t *testing.T) {
	src := source.NewMemory(make([]float64, 5000), 8000, 0)
	cfg := Config{FFTSize: 512, MaxFrequency: 2000}

	desc, err := Describe(context.Background(), src, cfg)
	require.NoError(t, err)
	assert.Equal(t, 128, desc.HopLength)
	assert.Equal(t, 36, desc.NumTimeFrames)
	assert.Len(t, desc.Frequencies, 128)

	p := newTestPipeline(t, src, newRecorder().handle, cfg)
	snap, err := p.Start(context.Background())
	require.NoError(t, err)
	waitDone(t, p)
	assert.Equal(t, desc, snap)

	_, err = Describe(context.Background(), &source.Memory{}, cfg)
	assert.ErrorIs(t, err, ErrMetadataUnavailable)
}

func TestFrameChannel(t *testing.T) {
	handler, frames := FrameChannel(context.Background(), 4)
	p := newTestPipeline(t, source.NewMemory(utils.GenerateSineWave(256*4, 8000, 1000), 8000, 100), handler,
		Config{FFTSize: 256, HopLength: 256, BatchSize: 2},
		WithLogger(log.WithComponent("pipeline").With("test", t.Name())))

	_, err := p.Start(context.Background())
	require.NoError(t, err)

	var indices []int
	for f := range frames {
		indices = append(indices, f.Index)
		if f.Index >= 0 {
			assert.Len(t, f.Magnitudes, 129)
		} else {
			assert.Empty(t, f.Magnitudes)
		}
	}
	assert.Equal(t, []int{0, 1, 2, 3, TerminalIndex}, indices)
	waitDone(t, p)
}

func TestFrameChannelGivesUpOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	handler, frames := FrameChannel(ctx, 1)

	require.NoError(t, handler(0, []float64{1}))
	cancel()
	assert.ErrorIs(t, handler(1, []float64{2}), context.Canceled)
	assert.ErrorIs(t, handler(TerminalIndex, []float64{}), context.Canceled)

	f, ok := <-frames
	require.True(t, ok)
	assert.Equal(t, 0, f.Index)
	_, ok = <-frames
	assert.False(t, ok, "channel closed after the terminal call")
}
