// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"spectrum/internal/analysis"
	"spectrum/internal/config"
	"spectrum/internal/log"
	"spectrum/internal/observe"
	"spectrum/internal/pipeline"
	"spectrum/internal/source"
	"spectrum/internal/spectrogram"
	"spectrum/internal/transport"
	"spectrum/internal/transport/udp"
	"spectrum/pkg/build"
)

const progressInterval = time.Second

type analyzeOptions struct {
	configPath   string
	fftSize      int
	hopLength    int
	batchSize    int
	maxFrequency float64
	window       string
	chunkFrames  int
	verbose      bool
	logFrames    bool
	websocket    string
	udp          string
	metrics      string
}

func newAnalyzeCommand() *cobra.Command {
	opts := analyzeOptions{}

	analyzeCmd := &cobra.Command{
		Use:   "analyze FILE",
		Short: "Compute the spectrogram of a WAV or MP3 file",
		Long: "Decode FILE, compute its decibel spectrogram frame by frame and\n" +
			"optionally stream the rows to websocket or UDP receivers.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			log.SetLevel(cfg.Level())

			return runAnalyze(cmd.Context(), cmd.OutOrStdout(), args[0], cfg)
		},
	}

	flags := analyzeCmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a YAML config file (default: ./config.yaml or ./spectrum.yaml)")
	flags.IntVarP(&opts.fftSize, "fft-size", "n", config.DefaultFFTSize, "Samples per frame, a power of two")
	flags.IntVar(&opts.hopLength, "hop-length", 0, "Samples between frame starts (default fft-size/4)")
	flags.IntVarP(&opts.batchSize, "batch-size", "b", config.DefaultBatchSize, "Frames per queued batch")
	flags.Float64Var(&opts.maxFrequency, "max-frequency", 0, "Drop bins above this frequency in Hz (0 keeps all)")
	flags.StringVarP(&opts.window, "window", "w", config.DefaultWindow, "Window function (hann, hamming, blackman, nuttall, ...)")
	flags.IntVar(&opts.chunkFrames, "chunk-frames", config.DefaultChunkFrames, "Sample frames decoded per read")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Show verbose output")
	flags.BoolVar(&opts.logFrames, "log-frames", false, "Log a line per delivered frame (needs --verbose)")
	flags.StringVar(&opts.websocket, "websocket", "", "Serve rows to websocket clients on ADDR")
	flags.StringVar(&opts.udp, "udp", "", "Send rows as UDP packets to ADDR")
	flags.StringVar(&opts.metrics, "metrics", "", "Expose Prometheus metrics on ADDR")
	return analyzeCmd
}

// apply copies the flags the user actually set over the loaded config.
func (o *analyzeOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("fft-size") {
		cfg.Analysis.FFTSize = o.fftSize
		if !flags.Changed("hop-length") {
			cfg.Analysis.HopLength = 0
		}
	}
	if flags.Changed("hop-length") {
		cfg.Analysis.HopLength = o.hopLength
	}
	if flags.Changed("batch-size") {
		cfg.Analysis.BatchSize = o.batchSize
	}
	if flags.Changed("max-frequency") {
		cfg.Analysis.MaxFrequency = o.maxFrequency
	}
	if flags.Changed("window") {
		cfg.Analysis.Window = o.window
	}
	if flags.Changed("chunk-frames") {
		cfg.Source.ChunkFrames = o.chunkFrames
	}
	if o.verbose {
		cfg.Debug = true
	}
	if o.logFrames {
		cfg.Transport.LogFrames = true
	}
	if o.websocket != "" {
		cfg.Transport.WebSocketEnabled = true
		cfg.Transport.WebSocketAddress = o.websocket
	}
	if o.udp != "" {
		cfg.Transport.UDPEnabled = true
		cfg.Transport.UDPTargetAddress = o.udp
	}
	if o.metrics != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = o.metrics
	}
}

// runAnalyze wires source, pipeline, buffer and transports together and
// blocks until the run ends or ctx is cancelled.
func runAnalyze(ctx context.Context, out io.Writer, path string, cfg *config.Config) error {
	src, err := source.ForPath(path, cfg.Source.ChunkFrames)
	if err != nil {
		return err
	}
	pcfg := cfg.PipelineConfig()

	// The layout is known before the run, so the buffer and the websocket
	// greeting can be sized up front.
	snap, err := pipeline.Describe(ctx, src, pcfg)
	if err != nil {
		return err
	}
	buf, err := spectrogram.NewBuffer(snap.NumTimeFrames, len(snap.Frequencies), analysis.FloorDB)
	if err != nil {
		return err
	}

	var metricsServer *observe.Server
	if cfg.Metrics.Enabled {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceVersion: build.GetBuildFlags().Version,
		})
		if err != nil {
			return fmt.Errorf("initialising metrics: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Warnf("metrics shutdown: %v", err)
			}
		}()
		metricsServer = observe.NewServer(cfg.Metrics.Address)
		log.Infof("serving metrics on http://%s/metrics", cfg.Metrics.Address)
	}

	transports, closeTransports, err := openTransports(cfg, snap)
	if err != nil {
		return err
	}
	defer closeTransports()

	collector := spectrogram.NewCollector(buf, transports...)
	p, err := pipeline.New(src, collector.Handle,
		pipeline.WithConfig(pcfg),
		pipeline.WithLogger(log.WithComponent("pipeline").With("file", path)),
		pipeline.WithErrorHandler(func(err error) {
			log.Debugf("pipeline: %v", err)
		}),
	)
	if err != nil {
		return err
	}

	if _, err := p.Start(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if metricsServer != nil {
		g.Go(func() error {
			return metricsServer.Run(gctx)
		})
	}
	g.Go(func() error {
		reportProgress(gctx, collector, snap.NumTimeFrames)
		return nil
	})
	g.Go(func() error {
		// Ending the run releases the other goroutines.
		defer cancel()
		select {
		case <-p.Done():
		case <-gctx.Done():
			if err := p.Stop(); err != nil {
				return err
			}
			// A run that was already draining is not cancelled by Stop.
			waitCtx, cancelWait := context.WithTimeout(context.Background(), p.Config().StopTimeout)
			defer cancelWait()
			if err := p.Wait(waitCtx); err != nil {
				log.Warnf("pipeline still draining after %s", p.Config().StopTimeout)
			}
		}
		return nil
	})

	waitErr := g.Wait()
	interrupted := ctx.Err() != nil
	printSummary(out, path, snap, p.Stats(), collector.Summary(), buf, interrupted)
	return waitErr
}

// openTransports starts the receivers enabled in cfg. The returned function
// closes them in reverse order.
func openTransports(cfg *config.Config, snap pipeline.Snapshot) ([]transport.Transport, func(), error) {
	var (
		transports []transport.Transport
		closers    []func() error
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warnf("closing transport: %v", err)
			}
		}
	}

	if cfg.Transport.LogFrames {
		lt := transport.NewLoggingTransport()
		transports = append(transports, lt)
		closers = append(closers, lt.Close)
	}

	if cfg.Transport.WebSocketEnabled {
		wst := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress)
		wst.SetHello(transport.Metadata{
			Type:          "metadata",
			SampleRate:    snap.SampleRate,
			Duration:      snap.Duration,
			FFTSize:       snap.FFTSize,
			HopLength:     snap.HopLength,
			NumTimeFrames: snap.NumTimeFrames,
			Frequencies:   snap.Frequencies,
		})
		if err := wst.Start(); err != nil {
			wst.Close()
			closeAll()
			return nil, nil, fmt.Errorf("starting websocket transport: %w", err)
		}
		transports = append(transports, wst)
		closers = append(closers, wst.Close)
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("starting udp transport: %w", err)
		}
		pub, err := udp.NewPublisher(sender, cfg.Transport.UDPQueueSize)
		if err != nil {
			sender.Close()
			closeAll()
			return nil, nil, err
		}
		pub.Start()
		transports = append(transports, pub)
		closers = append(closers, sender.Close, pub.Close)
	}

	return transports, closeAll, nil
}

func reportProgress(ctx context.Context, collector *spectrogram.Collector, expected int) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-collector.Done():
			return
		case <-ticker.C:
			s := collector.Summary()
			log.Infof("progress: %d/%d frames", s.Received, expected)
		}
	}
}

func printSummary(out io.Writer, path string, snap pipeline.Snapshot, st pipeline.Stats,
	sum spectrogram.Summary, buf *spectrogram.Buffer, interrupted bool) {
	fmt.Fprintf(out, "file: %s\n", path)
	fmt.Fprintf(out, "audio: %.0f Hz, %.2fs, %d samples\n", snap.SampleRate, snap.Duration, snap.TotalSamples)
	fmt.Fprintf(out, "layout: fft %d, hop %d, %d bins up to %.1f Hz\n",
		snap.FFTSize, snap.HopLength, len(snap.Frequencies), lastOf(snap.Frequencies))
	fmt.Fprintf(out, "frames delivered: %d/%d\n", st.FramesDelivered, snap.NumTimeFrames)
	if st.BatchesDropped > 0 || sum.MissedFrames > 0 {
		fmt.Fprintf(out, "dropped: %d frames in %d batches\n", st.FramesDropped, st.BatchesDropped)
	}
	if st.CallbackErrors > 0 {
		fmt.Fprintf(out, "callback errors: %d\n", st.CallbackErrors)
	}
	if frame, bin, db, ok := buf.Peak(); ok {
		fmt.Fprintf(out, "peak: %.1f Hz at frame %d (%.1f dB)\n", snap.Frequencies[bin], frame, db)
	}
	if buf.Filled() > 0 {
		fmt.Fprint(out, "bands:")
		for _, l := range buf.BandLevels(snap.Frequencies, spectrogram.DefaultBands(snap.SampleRate/2)) {
			if l.Bins == 0 {
				continue
			}
			fmt.Fprintf(out, " %s %.1f dB", l.Name, l.DB)
		}
		fmt.Fprintln(out)
	}
	if interrupted {
		fmt.Fprintln(out, "stopped before the end of the file")
	}
}

func lastOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return v[len(v)-1]
}
