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

// Package zipkin delivers completed spans to a Zipkin collector. It proves
// the exporter surface is pluggable beyond the reference Honeycomb backend:
// closed Datums are converted into Zipkin span models and handed to a Zipkin
// reporter, which owns buffering and HTTP delivery.
package zipkin

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/openzipkin/zipkin-go/model"
	"github.com/openzipkin/zipkin-go/reporter"
	zrpr "github.com/openzipkin/zipkin-go/reporter/http"
	"github.com/tetratelabs/multierror"
	"github.com/tetratelabs/run"

	"github.com/basvanbeek/honeyspan/pkg"
	"github.com/basvanbeek/honeyspan/pkg/export"
	"github.com/basvanbeek/honeyspan/pkg/trace"
)

// flags
const (
	ReporterEndpoint = "zipkin-reporter-endpoint"
	LocalServicename = "zipkin-local-servicename"
)

const (
	// ExporterName is the codename the backend registers under.
	ExporterName = "zipkin"

	defaultReporterAddr = "http://zipkin:9411/api/v2/spans"
)

// Backend holds the resolved Zipkin configuration and reporter.
type Backend struct {
	Servicename string
	Address     string

	// Reporter may be preset by tests; Setup creates an HTTP reporter
	// otherwise and then owns its lifecycle.
	Reporter     reporter.Reporter
	ownsReporter bool

	local *model.Endpoint
}

// Exporter returns the backend descriptor to register with the export
// service.
func (b *Backend) Exporter() export.Exporter {
	return export.Exporter{
		Name:  ExporterName,
		Flags: b.flagSet,
		Setup: b.setup,
		Close: b.close,
	}
}

func (b *Backend) flagSet() *run.FlagSet {
	// set defaults if needed
	if b.Address == "" {
		b.Address = defaultReporterAddr
	}
	if b.Servicename == "" {
		b.Servicename = path.Base(os.Args[0])
	}

	flags := run.NewFlagSet("Zipkin exporter config")

	flags.StringVar(
		&b.Address,
		ReporterEndpoint,
		b.Address,
		`Full address, including URI, of the Zipkin HTTP collector`)
	flags.StringVar(
		&b.Servicename,
		LocalServicename,
		b.Servicename,
		`Local ServiceName to report`)

	return flags
}

func (b *Backend) setup() (export.Forwarder, error) {
	var mErr error

	if b.Reporter == nil {
		if _, err := url.Parse(b.Address); err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf(pkg.FlagErr, ReporterEndpoint, err))
		}
	}
	if strings.TrimSpace(b.Servicename) == "" {
		mErr = multierror.Append(mErr, fmt.Errorf(pkg.FlagErr, LocalServicename, pkg.ErrRequired))
	}
	if mErr != nil {
		return nil, mErr
	}

	if b.Reporter == nil {
		b.ownsReporter = true
		b.Reporter = zrpr.NewReporter(b.Address)
	}
	b.local = &model.Endpoint{ServiceName: b.Servicename}

	return b.forward, nil
}

func (b *Backend) close() {
	if b.ownsReporter {
		_ = b.Reporter.Close() // nolint: errcheck
	}
}

// forward implements export.Forwarder. The reporter batches internally, so
// each datum is handed over individually, preserving input order.
func (b *Backend) forward(datums []*trace.Datum) {
	for _, d := range datums {
		b.Reporter.Send(b.spanModel(d))
	}
}

// fold maps an opaque string identifier onto Zipkin's numeric id space.
func fold(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}

// spanModel converts one closed Datum into the Zipkin span model.
func (b *Backend) spanModel(d *trace.Datum) model.SpanModel {
	var sc model.SpanContext
	if d.Trace != nil {
		sc.TraceID = model.TraceID{Low: fold(d.Trace.ID)}
	}
	if d.SpanID != "" {
		sc.ID = model.ID(fold(d.SpanID))
	}
	if d.ParentSpanID != "" {
		pid := model.ID(fold(d.ParentSpanID))
		sc.ParentID = &pid
	}

	tags := make(map[string]string, d.Metadata.Len())
	for k, v := range d.Metadata.Fields() {
		tags[k] = fmt.Sprintf("%v", v)
	}

	sm := model.SpanModel{
		SpanContext:   sc,
		Name:          d.Name,
		Timestamp:     d.Start,
		LocalEndpoint: b.local,
		Tags:          tags,
	}
	if !d.End.IsZero() {
		sm.Duration = d.Duration()
	}
	return sm
}
