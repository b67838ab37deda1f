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

// Package otel supports OpenTelemetry tracing and metrics for revdoc APIs.
package otel

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"revdoc.dev/internal/rderr"
)

// Common attribute keys used across revdoc.
var (
	MethodKey   = attribute.Key("revdoc.method")
	PackageKey  = attribute.Key("revdoc.package")
	ProviderKey = attribute.Key("revdoc.provider")
	StatusKey   = attribute.Key("revdoc.status")
)

// MetricSet contains the metrics recorded for every traced call.
type MetricSet struct {
	Latency        metric.Float64Histogram
	CompletedCalls metric.Int64Counter
}

// NewMetricSet creates the standard metrics for a revdoc package.
func NewMetricSet(pkg string) (*MetricSet, error) {
	meter := otel.GetMeterProvider().Meter(pkg)

	latency, err := meter.Float64Histogram(
		pkg+".latency",
		metric.WithDescription("Latency of method call in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create latency metric: %w", err)
	}

	completedCalls, err := meter.Int64Counter(
		pkg+".completed_calls",
		metric.WithDescription("Count of method calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create completed_calls metric: %w", err)
	}
	return &MetricSet{Latency: latency, CompletedCalls: completedCalls}, nil
}

// Tracer provides OpenTelemetry tracing and call metrics for a revdoc package.
type Tracer struct {
	Package  string
	Provider string
	metrics  *MetricSet
}

// ProviderName returns the name of the provider associated with the driver value.
// It is intended to be used to set Tracer.Provider.
// It actually returns the package path of the driver's type.
func ProviderName(driver any) string {
	if driver == nil {
		return ""
	}
	t := reflect.TypeOf(driver)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.PkgPath()
}

// NewTracer creates a new Tracer for a package and provider. Metrics are
// recorded through the global meter provider; if the instruments cannot be
// created, the Tracer only produces spans.
func NewTracer(pkg, provider string) *Tracer {
	ms, _ := NewMetricSet(pkg)
	return &Tracer{Package: pkg, Provider: provider, metrics: ms}
}

// A Span is an in-progress traced call.
type Span struct {
	span   trace.Span
	method string
	start  time.Time
}

// Start creates and starts a new span for methodName.
func (t *Tracer) Start(ctx context.Context, methodName string) (context.Context, *Span) {
	fullName := t.Package + "." + methodName
	attrs := []attribute.KeyValue{
		PackageKey.String(t.Package),
		MethodKey.String(fullName),
	}
	if t.Provider != "" {
		attrs = append(attrs, ProviderKey.String(t.Provider))
	}
	ctx, span := otel.Tracer(t.Package).Start(ctx, fullName, trace.WithAttributes(attrs...))
	return ctx, &Span{span: span, method: fullName, start: time.Now()}
}

// End completes a span with error information if applicable, and records
// the call's latency and status.
func (t *Tracer) End(ctx context.Context, s *Span, err error) {
	status := fmt.Sprint(rderr.Code(err))
	if err != nil {
		s.span.SetAttributes(StatusKey.String(status))
		s.span.SetStatus(codes.Error, err.Error())
		s.span.RecordError(err)
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()

	if t.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		MethodKey.String(s.method),
		ProviderKey.String(t.Provider),
		StatusKey.String(status),
	)
	t.metrics.Latency.Record(ctx, float64(time.Since(s.start).Nanoseconds())/1e6, attrs)
	t.metrics.CompletedCalls.Add(ctx, 1, attrs)
}
