// Copyright 2026 The revdoc Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package oteltest supports testing of OpenTelemetry integrations.
package oteltest

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// TestExporter records OpenTelemetry spans and metrics in memory.
// It should be created with NewTestExporter.
type TestExporter struct {
	t       testing.TB
	spans   *tracetest.SpanRecorder
	reader  *sdkmetric.ManualReader
	tracerP *sdktrace.TracerProvider
	meterP  *sdkmetric.MeterProvider
}

// NewTestExporter creates a TestExporter and installs it as the global
// tracer and meter provider. Call Shutdown to restore no-op providers.
func NewTestExporter(t testing.TB) *TestExporter {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(spans),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)

	return &TestExporter{t: t, spans: spans, reader: reader, tracerP: tp, meterP: mp}
}

// Spans returns the spans that have ended, in the order they ended.
func (te *TestExporter) Spans() []sdktrace.ReadOnlySpan {
	return te.spans.Ended()
}

// Metrics collects and returns the current metric data.
func (te *TestExporter) Metrics(ctx context.Context) []metricdata.ScopeMetrics {
	var rm metricdata.ResourceMetrics
	if err := te.reader.Collect(ctx, &rm); err != nil {
		te.t.Fatalf("collecting metrics: %v", err)
	}
	return rm.ScopeMetrics
}

// Shutdown unregisters and shuts down the exporter.
func (te *TestExporter) Shutdown(ctx context.Context) {
	otel.SetTracerProvider(nooptrace.NewTracerProvider())
	otel.SetMeterProvider(noopmetric.NewMeterProvider())
	if err := te.tracerP.Shutdown(ctx); err != nil {
		te.t.Errorf("shutting down tracer provider: %v", err)
	}
	if err := te.meterP.Shutdown(ctx); err != nil {
		te.t.Errorf("shutting down meter provider: %v", err)
	}
}
