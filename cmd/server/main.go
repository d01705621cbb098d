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

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/basvanbeek/honeyspan/internal/service"
	"github.com/basvanbeek/honeyspan/pkg/export"
	pkghoneycomb "github.com/basvanbeek/honeyspan/pkg/export/honeycomb"
	pkgzipkin "github.com/basvanbeek/honeyspan/pkg/export/zipkin"
	pkghttp "github.com/basvanbeek/honeyspan/pkg/http"
	"github.com/basvanbeek/honeyspan/pkg/trace"

	"github.com/tetratelabs/run"
	"github.com/tetratelabs/run/pkg/signal"
)

const (
	defaultServiceName       = "demosvc"
	defaultHTTPListenAddress = ":8000"

	// exitConfig is the reserved exit status for telemetry
	// misconfiguration, per sysexits EX_CONFIG.
	exitConfig = 78
)

func main() {
	// we take the serviceName from an environment variable as we need
	// this information to be available prior to run.Group bootstrap.
	serviceName := os.Getenv("SVCNAME")
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	g := run.Group{
		Name:     serviceName,
		HelpText: "HTTP service instrumented with the honeyspan tracing SDK",
	}

	queue := trace.NewQueue()
	tracer := trace.New(queue, trace.WithServiceName(serviceName))

	svcExport := &export.Service{
		Queue:        queue,
		ExporterName: pkghoneycomb.ExporterName,
		Exporters: []export.Exporter{
			(&pkghoneycomb.Backend{}).Exporter(),
			(&pkgzipkin.Backend{Servicename: serviceName}).Exporter(),
		},
	}
	svcEndpoints := &service.Endpoints{
		ServiceName: serviceName,
		Tracer:      tracer,
	}
	svcHTTP := &pkghttp.Service{
		ListenAddress: defaultHTTPListenAddress,
	}

	g.Register(
		new(signal.Handler),
		svcExport,
		svcEndpoints,
		svcHTTP,
		run.NewPreRunner(serviceName, func() error {
			svcHTTP.Handler = svcEndpoints.Handler()
			return nil
		}),
	)

	if err := g.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s exit: %v\n", g.Name, err)
		if !errors.Is(err, run.ErrRequestedShutdown) {
			// Startup configuration failure: fail fast so the
			// application never runs with broken observability.
			os.Exit(exitConfig)
		}
	}
}
