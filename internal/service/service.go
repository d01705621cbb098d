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

// Package service implements the demo endpoints instrumented with the
// tracing SDK: every request runs inside a trace, handler work runs inside
// nested spans, and request details are attached as span metadata.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/tetratelabs/multierror"
	"github.com/tetratelabs/run"

	"github.com/basvanbeek/honeyspan/pkg"
	"github.com/basvanbeek/honeyspan/pkg/trace"
)

const (
	flagLatency = "ep-latency"

	headerRequestID = "X-Request-Id"

	errLatency pkg.Error = "expected a zero or positive duration"
)

// Endpoints implements a run.Config compatible group of endpoints which
// register themselves on the provided http service.
type Endpoints struct {
	// dependencies
	Tracer *trace.Tracer

	ServiceName string

	latency time.Duration
}

// Name implements run.Unit.
func (ep *Endpoints) Name() string {
	return "endpoints"
}

// FlagSet implements run.Config.
func (ep *Endpoints) FlagSet() *run.FlagSet {
	flags := run.NewFlagSet("Endpoint options")

	flags.DurationVar(&ep.latency, flagLatency, ep.latency,
		`Simulated work duration on the echo handler`)

	return flags
}

// Validate implements run.Config.
func (ep *Endpoints) Validate() error {
	var mErr error

	if ep.latency < 0 {
		mErr = multierror.Append(mErr, fmt.Errorf(pkg.FlagErr, flagLatency, errLatency))
	}

	return mErr
}

// Handler returns the router with all endpoints attached.
func (ep *Endpoints) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/echo/{msg}", ep.echo)
	r.HandleFunc("/healthz", ep.health)
	r.Use(requestID)
	return r
}

// requestID mints a request identifier when the caller did not supply one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(headerRequestID) == "" {
			r.Header.Set(headerRequestID, uuid.NewString())
		}
		w.Header().Set(headerRequestID, r.Header.Get(headerRequestID))
		next.ServeHTTP(w, r)
	})
}

type response struct {
	Service string `json:"service"`
	Code    int    `json:"statusCode"`
	TraceID string `json:"traceID"`
	Message string `json:"message,omitempty"`
}

func (ep *Endpoints) writeResponse(ctx context.Context, w http.ResponseWriter, res response) {
	res.Service = ep.ServiceName
	if d := trace.FromContext(ctx); d != nil {
		res.TraceID = d.TraceID()
	}
	trace.Telemetry(ctx, trace.Metric("http.status_code", res.Code))

	w.Header().Add("Content-Type", "application/json")
	if res.Code > 0 {
		w.WriteHeader(res.Code)
	}
	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.Printf("error while writing http response: %v", err)
	}
}

func (ep *Endpoints) echo(w http.ResponseWriter, r *http.Request) {
	_ = ep.Tracer.Begin(r.Context(), func(ctx context.Context) error {
		trace.Telemetry(ctx,
			trace.Metric("http.method", r.Method),
			trace.Metric("http.path", r.URL.Path),
			trace.Metric("request.id", r.Header.Get(headerRequestID)),
		)
		return trace.Enclose(ctx, "echo", func(ctx context.Context) error {
			msg := mux.Vars(r)["msg"]
			trace.Telemetry(ctx, trace.Metric("echo.size", len(msg)))
			if ep.latency > 0 {
				time.Sleep(ep.latency)
			}
			ep.writeResponse(ctx, w, response{Code: http.StatusOK, Message: msg})
			return nil
		})
	})
}

func (ep *Endpoints) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
