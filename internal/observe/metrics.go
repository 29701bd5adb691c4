// SPDX-License-Identifier: MIT

// Package observe holds the OpenTelemetry instruments recorded by the
// analysis pipeline and the Prometheus bridge used to expose them.
//
// Tests should build their own [Metrics] with [NewMetrics] and a
// ManualReader-backed provider; [DefaultMetrics] binds to the global
// provider.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "spectrum"

// Metrics holds the pipeline's instruments. The OTel types are safe for
// concurrent use.
type Metrics struct {
	// FramesProduced counts frames cut by the segmenter.
	FramesProduced metric.Int64Counter

	// FramesDelivered counts rows handed to the frame handler.
	FramesDelivered metric.Int64Counter

	// FramesDropped counts frames lost with dropped batches.
	FramesDropped metric.Int64Counter

	BatchesEnqueued metric.Int64Counter
	BatchesDropped  metric.Int64Counter

	// CallbackErrors counts handler failures, panics included.
	CallbackErrors metric.Int64Counter

	StreamErrors metric.Int64Counter

	// BatchDuration tracks transform time per batch.
	BatchDuration metric.Float64Histogram

	ActiveRuns metric.Int64UpDownCounter
}

// Batches of 16 frames at fft 2048 take well under a millisecond on a
// desktop machine; the tail covers slow handlers.
var batchBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.1, 0.5,
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesProduced, err = m.Int64Counter("spectrum.frames.produced",
		metric.WithDescription("Frames cut from the sample stream."),
	); err != nil {
		return nil, err
	}
	if met.FramesDelivered, err = m.Int64Counter("spectrum.frames.delivered",
		metric.WithDescription("Spectrum rows delivered to the frame handler."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("spectrum.frames.dropped",
		metric.WithDescription("Frames discarded because their batch could not be enqueued."),
	); err != nil {
		return nil, err
	}
	if met.BatchesEnqueued, err = m.Int64Counter("spectrum.batches.enqueued",
		metric.WithDescription("Frame batches handed to the transform task."),
	); err != nil {
		return nil, err
	}
	if met.BatchesDropped, err = m.Int64Counter("spectrum.batches.dropped",
		metric.WithDescription("Frame batches dropped on enqueue timeout."),
	); err != nil {
		return nil, err
	}
	if met.CallbackErrors, err = m.Int64Counter("spectrum.callback.errors",
		metric.WithDescription("Frame handler failures."),
	); err != nil {
		return nil, err
	}
	if met.StreamErrors, err = m.Int64Counter("spectrum.stream.errors",
		metric.WithDescription("Sample stream read failures."),
	); err != nil {
		return nil, err
	}
	if met.BatchDuration, err = m.Float64Histogram("spectrum.batch.duration",
		metric.WithDescription("Time to transform and deliver one batch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(batchBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveRuns, err = m.Int64UpDownCounter("spectrum.active_runs",
		metric.WithDescription("Pipeline runs currently in progress."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance built from the global
// meter provider on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordDrop counts one dropped batch holding frames frames.
func (m *Metrics) RecordDrop(ctx context.Context, frames int) {
	m.BatchesDropped.Add(ctx, 1)
	m.FramesDropped.Add(ctx, int64(frames))
}
