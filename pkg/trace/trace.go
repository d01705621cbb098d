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

// Package trace implements the span and trace lifecycle of the SDK: opening
// traces and nested spans by explicit context threading, attaching metadata
// to the current span, and handing completed spans to the export queue.
//
// Telemetry concerns must never become application concerns: no operation in
// this package returns an error of its own or panics; spans opened without an
// active trace context simply run their action untraced.
package trace

import "time"

// Trace identifies one logical end-to-end operation. It is created exactly
// once per top-level Begin or Using call, is immutable, and is referenced by
// every Datum in its span tree.
type Trace struct {
	ID string
}

// Datum is a single named, timed unit of work within a Trace. A Datum is
// open while End is the zero time and closed thereafter. A closed Datum is
// immutable and is enqueued exactly once.
type Datum struct {
	// SpanID is empty for the synthetic root created by Using and for
	// trace-level events.
	SpanID string
	Name   string
	Start  time.Time
	// End is set exactly once, when the span closes.
	End time.Time
	// Trace is referenced, never owned.
	Trace        *Trace
	ParentSpanID string
	ServiceName  string
	Metadata     *Metadata
}

// Open reports whether the Datum has not been closed yet.
func (d *Datum) Open() bool {
	return d.End.IsZero()
}

// Duration returns the wall-clock duration of a closed Datum and zero for an
// open one.
func (d *Datum) Duration() time.Duration {
	if d.Open() {
		return 0
	}
	return d.End.Sub(d.Start)
}

// TraceID returns the identifier of the owning Trace, or the empty string if
// the Datum does not belong to one.
func (d *Datum) TraceID() string {
	if d.Trace == nil {
		return ""
	}
	return d.Trace.ID
}
