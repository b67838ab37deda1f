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

package oteltest

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	rdotel "revdoc.dev/internal/otel"
	"revdoc.dev/rderrors"
)

// Call represents a method call/span with its result code.
type Call struct {
	Method string
	Code   rderrors.ErrorCode
}

func formatSpan(s sdktrace.ReadOnlySpan) string {
	if s == nil {
		return "missing"
	}
	return fmt.Sprintf("<Name: %q, Code: %s>", s.Name(), s.Status().Code)
}

func formatCall(c *Call) string {
	if c == nil {
		return "nothing"
	}
	return fmt.Sprintf("<Name: %q, Code: %s>", c.Method, c.Code)
}

// Diff compares the recorded spans and metrics with an expected list of
// calls. Span names and status codes are compared in order; each call must
// also appear as a completed_calls data point with the matching method and
// status attributes. namePrefix is prepended to every Call.Method.
func Diff(gotSpans []sdktrace.ReadOnlySpan, gotMetrics []metricdata.ScopeMetrics, namePrefix string, want []Call) string {
	var diffs []string
	for i := 0; i < len(gotSpans) || i < len(want); i++ {
		switch {
		case i >= len(gotSpans):
			w := want[i]
			w.Method = namePrefix + "." + w.Method
			diffs = append(diffs, fmt.Sprintf("#%d: got %s, want %s", i, formatSpan(nil), formatCall(&w)))
		case i >= len(want):
			diffs = append(diffs, fmt.Sprintf("#%d: got %s, want %s", i, formatSpan(gotSpans[i]), formatCall(nil)))
		default:
			w := want[i]
			w.Method = namePrefix + "." + w.Method
			wantCode := codes.Ok
			if w.Code != rderrors.OK {
				wantCode = codes.Error
			}
			if gotSpans[i].Name() != w.Method || gotSpans[i].Status().Code != wantCode {
				diffs = append(diffs, fmt.Sprintf("#%d: got %s, want %s", i, formatSpan(gotSpans[i]), formatCall(&w)))
			}
		}
	}

	seen := map[string]bool{}
	for _, sm := range gotMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				method, _ := dp.Attributes.Value(rdotel.MethodKey)
				status, _ := dp.Attributes.Value(rdotel.StatusKey)
				seen[method.AsString()+"|"+status.AsString()] = true
			}
		}
	}
	for _, w := range want {
		key := namePrefix + "." + w.Method + "|" + fmt.Sprint(w.Code)
		if !seen[key] {
			diffs = append(diffs, fmt.Sprintf("missing metric data point for %q", key))
		}
	}
	return strings.Join(diffs, "\n")
}
