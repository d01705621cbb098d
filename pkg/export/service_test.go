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

package export_test

import (
	"sync"
	"testing"
	"time"

	"github.com/basvanbeek/honeyspan/pkg"
	"github.com/basvanbeek/honeyspan/pkg/export"
	"github.com/basvanbeek/honeyspan/pkg/trace"
)

// recorder collects forwarded batches.
type recorder struct {
	mtx     sync.Mutex
	batches [][]*trace.Datum
	closed  bool
}

func (r *recorder) forward(datums []*trace.Datum) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.batches = append(r.batches, datums)
}

func (r *recorder) exporter(name string) export.Exporter {
	return export.Exporter{
		Name:  name,
		Setup: func() (export.Forwarder, error) { return r.forward, nil },
		Close: func() {
			r.mtx.Lock()
			defer r.mtx.Unlock()
			r.closed = true
		},
	}
}

func TestValidateUnknownExporter(t *testing.T) {
	rec := &recorder{}
	svc := &export.Service{
		Queue:        trace.NewQueue(),
		Exporters:    []export.Exporter{rec.exporter("known")},
		ExporterName: "bogus",
	}
	_ = svc.FlagSet()

	if err := svc.Validate(); err == nil {
		t.Fatal("expected validation error for unknown codename")
	}

	svc.ExporterName = "known"
	if err := svc.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestSetupErrorAbortsStartup(t *testing.T) {
	errSetup := pkg.Error("api key missing")
	svc := &export.Service{
		Queue: trace.NewQueue(),
		Exporters: []export.Exporter{{
			Name:  "failing",
			Setup: func() (export.Forwarder, error) { return nil, errSetup },
		}},
		ExporterName: "failing",
	}
	_ = svc.FlagSet()

	err := svc.PreRun()
	if !pkg.HasError(err, errSetup) {
		t.Fatalf("expected setup error to abort PreRun, got %v", err)
	}
}

func TestServeFlushesAndDrainsOnStop(t *testing.T) {
	rec := &recorder{}
	q := trace.NewQueue()
	svc := &export.Service{
		Queue:         q,
		Exporters:     []export.Exporter{rec.exporter("test")},
		ExporterName:  "test",
		FlushInterval: 10 * time.Millisecond,
	}
	_ = svc.FlagSet()
	if err := svc.PreRun(); err != nil {
		t.Fatalf("unexpected PreRun error: %v", err)
	}

	q.Enqueue(&trace.Datum{Name: "first"})
	q.Enqueue(&trace.Datum{Name: "second"})

	served := make(chan error, 1)
	go func() { served <- svc.Serve() }()

	// wait for the ticker flush
	deadline := time.After(2 * time.Second)
	for {
		rec.mtx.Lock()
		n := len(rec.batches)
		rec.mtx.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("ticker flush never happened")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// spans enqueued after the last tick must still go out on shutdown
	q.Enqueue(&trace.Datum{Name: "late"})
	svc.GracefulStop()
	if err := <-served; err != nil {
		t.Fatalf("unexpected Serve error: %v", err)
	}

	rec.mtx.Lock()
	defer rec.mtx.Unlock()
	if !rec.closed {
		t.Error("expected exporter Close to run after the final drain")
	}
	var names []string
	for _, b := range rec.batches {
		for _, d := range b {
			names = append(names, d.Name)
		}
	}
	want := []string{"first", "second", "late"}
	if len(names) != len(want) {
		t.Fatalf("expected %v forwarded, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v forwarded in order, got %v", want, names)
		}
	}
	if q.Len() != 0 {
		t.Errorf("queue not empty after shutdown: %d", q.Len())
	}
}
