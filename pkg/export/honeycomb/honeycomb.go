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

// Package honeycomb delivers completed spans to Honeycomb's batch ingestion
// API. Delivery is best-effort and at-most-once: transport and backend
// failures are logged, never surfaced to the caller, and never retried.
package honeycomb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tetratelabs/multierror"
	"github.com/tetratelabs/run"

	"github.com/basvanbeek/honeyspan/pkg"
	"github.com/basvanbeek/honeyspan/pkg/export"
	"github.com/basvanbeek/honeyspan/pkg/trace"
)

// flags
const (
	Dataset = "dataset"
	APIHost = "honeycomb-api-host"
)

// EnvAPIKey is the environment variable holding the required team API key.
const EnvAPIKey = "HONEYCOMB_API_KEY"

const (
	// ExporterName is the codename the backend registers under.
	ExporterName = "honeycomb"

	defaultAPIHost = "https://api.honeycomb.io"

	headerTeam     = "X-Honeycomb-Team"
	acceptedStatus = 202
)

// Backend holds the resolved Honeycomb configuration. Its zero value is
// usable once registered: the API key is read from the environment and the
// dataset from the contributed flag.
type Backend struct {
	Dataset string
	APIHost string
	APIKey  string

	// Client may be preset by tests; defaults to a TLS-capable client with
	// a delivery timeout.
	Client *http.Client
}

// Exporter returns the backend descriptor to register with the export
// service.
func (b *Backend) Exporter() export.Exporter {
	return export.Exporter{
		Name:  ExporterName,
		Flags: b.flagSet,
		Setup: b.setup,
	}
}

func (b *Backend) flagSet() *run.FlagSet {
	if b.APIHost == "" {
		b.APIHost = defaultAPIHost
	}

	flags := run.NewFlagSet("Honeycomb exporter config")

	flags.StringVar(
		&b.Dataset,
		Dataset,
		b.Dataset,
		`Honeycomb dataset to deliver completed spans to (required)`)
	flags.StringVar(
		&b.APIHost,
		APIHost,
		b.APIHost,
		`Base URL of the Honeycomb batch ingestion API`)

	return flags
}

// setup validates the required configuration eagerly and yields the
// process-wide Forwarder. Missing configuration is fatal to startup:
// telemetry misconfiguration must never let the application run silently
// with broken observability.
func (b *Backend) setup() (export.Forwarder, error) {
	if b.APIKey == "" {
		b.APIKey = os.Getenv(EnvAPIKey)
	}

	var mErr error
	if strings.TrimSpace(b.APIKey) == "" {
		mErr = multierror.Append(mErr,
			fmt.Errorf("environment variable %s: %w", EnvAPIKey, pkg.ErrRequired))
	}
	if strings.TrimSpace(b.Dataset) == "" {
		mErr = multierror.Append(mErr, fmt.Errorf(pkg.FlagErr, Dataset, pkg.ErrRequired))
	}
	if _, err := url.Parse(b.APIHost); err != nil {
		mErr = multierror.Append(mErr, fmt.Errorf(pkg.FlagErr, APIHost, err))
	}
	if mErr != nil {
		return nil, mErr
	}

	if b.Client == nil {
		b.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return b.forward, nil
}

// event is the wire record of one Datum.
type event struct {
	Time string                 `json:"time"`
	Data map[string]interface{} `json:"data"`
}

// encode transforms one Datum into its Honeycomb point format. Insertions
// run in a fixed order and each unconditionally overwrites a colliding
// user-supplied metadata key, so system-reserved fields always win.
func encode(d *trace.Datum) event {
	data := d.Metadata.Fields()

	data["name"] = d.Name
	switch {
	case d.SpanID != "":
		data["trace.span_id"] = d.SpanID
	case d.Trace != nil:
		// trace-level record with no span identity of its own
		data["meta.annotation_type"] = "span_event"
	}
	if d.ParentSpanID != "" {
		data["trace.parent_id"] = d.ParentSpanID
	}
	if d.Trace != nil {
		data["trace.trace_id"] = d.Trace.ID
	}
	if d.ServiceName != "" {
		data["service_name"] = d.ServiceName
	}
	if !d.End.IsZero() {
		data["duration_ms"] = float64(d.Duration()) / float64(time.Millisecond)
	}

	return event{
		Time: d.Start.Format(time.RFC3339Nano),
		Data: data,
	}
}

// forward implements export.Forwarder. It POSTs one batch and interprets the
// per-item acknowledgments. Nothing here raises to the caller.
func (b *Backend) forward(datums []*trace.Datum) {
	if len(datums) == 0 {
		return
	}

	events := make([]event, 0, len(datums))
	for _, d := range datums {
		events = append(events, encode(d))
	}
	body, err := json.Marshal(events)
	if err != nil {
		logrus.WithError(err).Warn("honeycomb batch could not be encoded")
		return
	}

	u := strings.TrimSuffix(b.APIHost, "/") + "/1/batch/" + url.PathEscape(b.Dataset)
	req, err := http.NewRequest(http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		logrus.WithError(errors.Wrap(err, "building batch request")).
			Warn("honeycomb batch delivery failed")
		return
	}
	req.Header.Set(headerTeam, b.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		logrus.WithError(errors.Wrap(err, "posting batch")).
			Warn("honeycomb batch delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		dump, _ := httputil.DumpResponse(resp, true)
		logrus.WithFields(logrus.Fields{
			"status":   resp.StatusCode,
			"response": string(dump),
		}).Warn("honeycomb batch delivery failed")
		return
	}

	var acks []json.RawMessage
	if err = json.NewDecoder(resp.Body).Decode(&acks); err != nil {
		logrus.WithError(errors.Wrap(err, "decoding batch acknowledgment")).
			Warn("honeycomb batch acknowledgment malformed")
		return
	}
	for i, raw := range acks {
		var ack map[string]int
		if err = json.Unmarshal(raw, &ack); err == nil &&
			len(ack) == 1 && ack["status"] == acceptedStatus {
			continue
		}
		logrus.WithFields(logrus.Fields{
			"index": i,
			"item":  string(raw),
		}).Warn("honeycomb rejected event")
	}
}
