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

// Package export defines the pluggable telemetry backend abstraction and the
// drain loop delivering completed spans to the selected backend.
package export

import (
	"github.com/tetratelabs/run"

	"github.com/basvanbeek/honeyspan/pkg/trace"
)

// Forwarder accepts a finite ordered batch of closed Datums and performs the
// side effect of delivering them. Delivery is strictly best-effort: a
// Forwarder never reports failure to its caller. It is created once per
// process and invoked from a single consumer; it need not support
// overlapping invocations.
type Forwarder func(datums []*trace.Datum)

// Exporter describes a telemetry backend as a plain record of capabilities,
// selected by codename at startup. New backends are new struct literals, not
// subclasses.
type Exporter struct {
	// Name is the codename the backend is selected by.
	Name string

	// Flags extends the configuration surface with the options the backend
	// requires. May be nil for backends without configuration.
	Flags func() *run.FlagSet

	// Setup performs one-time initialization and yields the process-wide
	// Forwarder. It validates all required configuration eagerly; an error
	// aborts startup before any spans can be delivered.
	Setup func() (Forwarder, error)

	// Close releases backend resources after the final drain. May be nil.
	Close func()
}
