// Copyright (c) Bas van Beek 2022.
// Copyright (c) Tetrate, Inc 2021.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package trace

import (
	"context"
	"time"

	"github.com/basvanbeek/honeyspan/pkg/ids"
)

// bundleKeyType is a private context key type to avoid collisions.
type bundleKeyType struct{}

var bundleKey bundleKeyType

// bundle carries the tracer together with the current Datum so that the
// package-level operations only need the context. Context is threaded by
// value through nested calls; there is no ambient per-goroutine state, so
// concurrent tasks with independently threaded contexts never interfere.
type bundle struct {
	tracer *Tracer
	datum  *Datum
}

// Tracer owns the hand-off queue, the reported service name and the clock.
// It is constructed once during process wiring and shared by all tasks.
type Tracer struct {
	queue       *Queue
	serviceName string
	now         func() time.Time
}

// Option configures a Tracer.
type Option func(*Tracer)

// WithServiceName sets the service name stamped on every Datum.
func WithServiceName(name string) Option {
	return func(t *Tracer) {
		t.serviceName = name
	}
}

// WithClock injects the time source, used by tests for deterministic
// durations.
func WithClock(now func() time.Time) Option {
	return func(t *Tracer) {
		t.now = now
	}
}

// New returns a Tracer delivering closed spans to q.
func New(q *Queue, opts ...Option) *Tracer {
	t := &Tracer{
		queue: q,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin establishes a brand new trace and runs fn inside it. The error
// returned by fn is passed through unchanged.
func (t *Tracer) Begin(ctx context.Context, fn func(context.Context) error) error {
	return t.Using(ctx, ids.New(), "", fn)
}

// Using establishes a trace with an externally supplied trace identifier and
// optional external parent span identifier, then runs fn inside it. It
// creates the synthetic root Datum: no span id of its own, a fresh empty
// metadata container, and the given parent. The root itself is never
// finalized or enqueued; only spans opened via Enclose inside it are.
func (t *Tracer) Using(ctx context.Context, traceID, parentSpanID string, fn func(context.Context) error) error {
	root := &Datum{
		Start:        t.now(),
		Trace:        &Trace{ID: traceID},
		ParentSpanID: parentSpanID,
		ServiceName:  t.serviceName,
		Metadata:     NewMetadata(),
	}
	return fn(context.WithValue(ctx, bundleKey, &bundle{tracer: t, datum: root}))
}

// Enclose opens a named child span of the current span, runs fn
// synchronously inside it, and on return closes the span and enqueues it.
// The child's trace identity is inherited unchanged from its parent; its
// metadata container starts as an independent snapshot of the parent's.
// fn's error is returned unchanged.
//
// If fn panics, the span is neither closed nor enqueued and the panic
// propagates untouched: tracing never alters the application's unwinding.
// Without an active trace context, fn runs untraced.
func Enclose(ctx context.Context, name string, fn func(context.Context) error) error {
	b, ok := ctx.Value(bundleKey).(*bundle)
	if !ok {
		return fn(ctx)
	}
	t, parent := b.tracer, b.datum

	child := &Datum{
		SpanID:       ids.New(),
		Name:         name,
		Start:        t.now(),
		Trace:        parent.Trace,
		ParentSpanID: parent.SpanID,
		ServiceName:  parent.ServiceName,
		Metadata:     parent.Metadata.Snapshot(),
	}
	if child.ParentSpanID == "" {
		// Direct child of the synthetic root: carry the external parent.
		child.ParentSpanID = parent.ParentSpanID
	}

	err := fn(context.WithValue(ctx, bundleKey, &bundle{tracer: t, datum: child}))

	child.End = t.now()
	t.queue.Enqueue(child)
	return err
}

// Telemetry folds the given metric values into the current span's metadata
// container, in order; the most recently applied value per key wins. The
// mutation is never visible to the parent's or siblings' containers. It is a
// no-op without an active span context or on an already closed span.
func Telemetry(ctx context.Context, values ...MetricValue) {
	b, ok := ctx.Value(bundleKey).(*bundle)
	if !ok || !b.datum.Open() {
		return
	}
	for _, v := range values {
		b.datum.Metadata.Set(v.Key, v.Value)
	}
}

// Event emits a trace-level annotation: a Datum without a span identity of
// its own, carrying a snapshot of the current metadata extended with the
// given values. It is enqueued immediately. A no-op without an active trace
// context.
func Event(ctx context.Context, name string, values ...MetricValue) {
	b, ok := ctx.Value(bundleKey).(*bundle)
	if !ok {
		return
	}
	t, cur := b.tracer, b.datum

	md := cur.Metadata.Snapshot()
	for _, v := range values {
		md.Set(v.Key, v.Value)
	}
	t.queue.Enqueue(&Datum{
		Name:         name,
		Start:        t.now(),
		Trace:        cur.Trace,
		ParentSpanID: cur.SpanID,
		ServiceName:  cur.ServiceName,
		Metadata:     md,
	})
}

// FromContext returns the current Datum, or nil if the context does not
// carry one.
func FromContext(ctx context.Context) *Datum {
	if b, ok := ctx.Value(bundleKey).(*bundle); ok {
		return b.datum
	}
	return nil
}
