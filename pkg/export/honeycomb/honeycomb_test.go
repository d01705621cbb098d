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

package honeycomb

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	ltest "github.com/sirupsen/logrus/hooks/test"

	"github.com/basvanbeek/honeyspan/pkg"
	"github.com/basvanbeek/honeyspan/pkg/trace"
)

func closedDatum(name string) *trace.Datum {
	start := time.Date(2022, 3, 1, 12, 0, 0, 0, time.UTC)
	md := trace.NewMetadata()
	md.Set("user.field", "kept")
	return &trace.Datum{
		SpanID:       "span-1",
		Name:         name,
		Start:        start,
		End:          start.Add(1500 * time.Microsecond),
		Trace:        &trace.Trace{ID: "trace-1"},
		ParentSpanID: "span-0",
		ServiceName:  "svc",
		Metadata:     md,
	}
}

func TestEncode(t *testing.T) {
	t.Run("span", func(t *testing.T) {
		ev := encode(closedDatum("op"))

		if ev.Time != "2022-03-01T12:00:00Z" {
			t.Errorf("unexpected time field %q", ev.Time)
		}
		expected := map[string]interface{}{
			"user.field":      "kept",
			"name":            "op",
			"trace.span_id":   "span-1",
			"trace.parent_id": "span-0",
			"trace.trace_id":  "trace-1",
			"service_name":    "svc",
			"duration_ms":     1.5,
		}
		for k, want := range expected {
			if got := ev.Data[k]; got != want {
				t.Errorf("%s: expected %v, got %v", k, want, got)
			}
		}
		if _, ok := ev.Data["meta.annotation_type"]; ok {
			t.Error("span must not carry the span_event marker")
		}
	})

	t.Run("span-event", func(t *testing.T) {
		d := closedDatum("annotation")
		d.SpanID = ""
		d.End = time.Time{}
		ev := encode(d)

		if got := ev.Data["meta.annotation_type"]; got != "span_event" {
			t.Errorf("expected span_event marker, got %v", got)
		}
		if _, ok := ev.Data["trace.span_id"]; ok {
			t.Error("span event must omit trace.span_id")
		}
		if _, ok := ev.Data["duration_ms"]; ok {
			t.Error("open datum must omit duration_ms")
		}
	})

	t.Run("no-trace", func(t *testing.T) {
		d := closedDatum("detached")
		d.SpanID = ""
		d.Trace = nil
		ev := encode(d)

		if _, ok := ev.Data["meta.annotation_type"]; ok {
			t.Error("datum without a trace must carry no marker")
		}
		if _, ok := ev.Data["trace.trace_id"]; ok {
			t.Error("datum without a trace must omit trace.trace_id")
		}
	})

	t.Run("reserved-keys-win", func(t *testing.T) {
		d := closedDatum("real-name")
		d.Metadata.Set("name", "user-name")
		d.Metadata.Set("trace.trace_id", "user-trace")
		ev := encode(d)

		if got := ev.Data["name"]; got != "real-name" {
			t.Errorf("expected system name to win, got %v", got)
		}
		if got := ev.Data["trace.trace_id"]; got != "trace-1" {
			t.Errorf("expected system trace id to win, got %v", got)
		}
	})
}

func TestSetupMissingConfig(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}))
	defer srv.Close()

	t.Setenv(EnvAPIKey, "")
	b := &Backend{Dataset: "prod", APIHost: srv.URL, Client: srv.Client()}

	_, err := b.setup()
	if !pkg.HasError(err, pkg.ErrRequired) {
		t.Fatalf("expected required-config error, got %v", err)
	}
	if !strings.Contains(err.Error(), EnvAPIKey) {
		t.Errorf("diagnostic does not name %s: %v", EnvAPIKey, err)
	}
	if atomic.LoadInt32(&requests) != 0 {
		t.Error("setup must not emit HTTP requests")
	}

	t.Setenv(EnvAPIKey, "team-key")
	b2 := &Backend{Dataset: "  ", APIHost: srv.URL, Client: srv.Client()}
	if _, err = b2.setup(); !pkg.HasError(err, pkg.ErrRequired) {
		t.Fatalf("expected required-config error for blank dataset, got %v", err)
	}
}

func TestForwardPartialRejection(t *testing.T) {
	hook := ltest.NewGlobal()
	defer hook.Reset()

	var gotPath, gotTeam string
	var gotBatch []event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTeam = r.Header.Get("X-Honeycomb-Team")
		body, _ := ioutil.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBatch)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"status":202},{"status":500},{"status":202}]`))
	}))
	defer srv.Close()

	b := &Backend{Dataset: "prod", APIHost: srv.URL, APIKey: "team-key", Client: srv.Client()}
	b.forward([]*trace.Datum{closedDatum("a"), closedDatum("b"), closedDatum("c")})

	if gotPath != "/1/batch/prod" {
		t.Errorf("expected POST to /1/batch/prod, got %q", gotPath)
	}
	if gotTeam != "team-key" {
		t.Errorf("expected team header, got %q", gotTeam)
	}
	if len(gotBatch) != 3 {
		t.Fatalf("expected 3 submitted events, got %d", len(gotBatch))
	}
	for i, name := range []string{"a", "b", "c"} {
		if gotBatch[i].Data["name"] != name {
			t.Errorf("position %d: expected %q, got %v", i, name, gotBatch[i].Data["name"])
		}
	}

	var rejections []logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "honeycomb rejected event" {
			rejections = append(rejections, *e)
		}
	}
	if len(rejections) != 1 {
		t.Fatalf("expected exactly one rejection logged, got %d", len(rejections))
	}
	if idx := rejections[0].Data["index"]; idx != 1 {
		t.Errorf("expected rejection at index 1, got %v", idx)
	}
	if item, _ := rejections[0].Data["item"].(string); !strings.Contains(item, "500") {
		t.Errorf("expected raw item payload logged, got %v", item)
	}
}

func TestForwardTopLevelFailure(t *testing.T) {
	hook := ltest.NewGlobal()
	defer hook.Reset()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "try later", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := &Backend{Dataset: "prod", APIHost: srv.URL, APIKey: "team-key", Client: srv.Client()}
	// must return normally, nothing to recover
	b.forward([]*trace.Datum{closedDatum("a")})

	var failure *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Message == "honeycomb batch delivery failed" {
			failure = e
		}
	}
	if failure == nil {
		t.Fatal("expected a generic delivery failure logged")
	}
	if failure.Data["status"] != http.StatusServiceUnavailable {
		t.Errorf("expected status 503 in diagnostics, got %v", failure.Data["status"])
	}
	if resp, _ := failure.Data["response"].(string); !strings.Contains(resp, "try later") {
		t.Errorf("expected dumped response diagnostics, got %q", resp)
	}
}

func TestForwardEmptyBatch(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
	}))
	defer srv.Close()

	b := &Backend{Dataset: "prod", APIHost: srv.URL, APIKey: "team-key", Client: srv.Client()}
	b.forward(nil)

	if atomic.LoadInt32(&requests) != 0 {
		t.Error("empty batch must not be posted")
	}
}
