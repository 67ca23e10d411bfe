// The MIT License
//
// Copyright (c) 2020 Temporal Technologies Inc.  All rights reserved.
//
// Copyright (c) 2020 Uber Technologies, Inc.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type (
	otelHandler struct {
		meter metric.Meter
		tags  []Tag
	}

	otelCounter struct {
		handler *otelHandler
		counter metric.Int64Counter
	}

	otelTimer struct {
		handler *otelHandler
		hist    metric.Float64Histogram
	}

	otelGauge struct {
		handler *otelHandler
		gauge   metric.Float64Gauge
	}
)

var _ Handler = (*otelHandler)(nil)

// NewOtelHandler returns a Handler backed by an OpenTelemetry meter.
func NewOtelHandler(meter metric.Meter) Handler {
	return &otelHandler{meter: meter}
}

func (h *otelHandler) WithTags(tags ...Tag) Handler {
	return &otelHandler{
		meter: h.meter,
		tags:  append(append([]Tag(nil), h.tags...), tags...),
	}
}

func (h *otelHandler) Counter(name string) CounterIface {
	c, err := h.meter.Int64Counter(name)
	if err != nil {
		return noopCounter{}
	}
	return &otelCounter{handler: h, counter: c}
}

func (h *otelHandler) Timer(name string) TimerIface {
	t, err := h.meter.Float64Histogram(name, metric.WithUnit("ms"))
	if err != nil {
		return noopTimer{}
	}
	return &otelTimer{handler: h, hist: t}
}

func (h *otelHandler) Gauge(name string) GaugeIface {
	g, err := h.meter.Float64Gauge(name)
	if err != nil {
		return noopGauge{}
	}
	return &otelGauge{handler: h, gauge: g}
}

func (c *otelCounter) Record(n int64, tags ...Tag) {
	c.counter.Add(context.Background(), n, metric.WithAttributes(c.handler.attributes(tags)...))
}

func (t *otelTimer) Record(d time.Duration, tags ...Tag) {
	t.hist.Record(context.Background(), float64(d)/float64(time.Millisecond), metric.WithAttributes(t.handler.attributes(tags)...))
}

func (g *otelGauge) Record(v float64, tags ...Tag) {
	g.gauge.Record(context.Background(), v, metric.WithAttributes(g.handler.attributes(tags)...))
}

func (h *otelHandler) attributes(tags []Tag) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(h.tags)+len(tags))
	for _, t := range h.tags {
		attrs = append(attrs, attribute.String(t.Key, t.Value))
	}
	for _, t := range tags {
		attrs = append(attrs, attribute.String(t.Key, t.Value))
	}
	return attrs
}
