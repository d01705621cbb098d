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

package export

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tetratelabs/multierror"
	"github.com/tetratelabs/run"

	"github.com/basvanbeek/honeyspan/pkg"
	"github.com/basvanbeek/honeyspan/pkg/trace"
)

// flags
const (
	ExporterName  = "exporter"
	FlushInterval = "flush-interval"
)

const (
	defaultFlushInterval = 1 * time.Second

	errUnknownExporter pkg.Error = "exporter not registered"
	errFlushInterval   pkg.Error = "expected a positive duration"
)

// Service implements run.GroupService. It owns the completed-span queue's
// consumer side: it selects one of the registered Exporters by codename,
// sets it up during PreRun, drains the queue to it on a fixed cadence while
// serving, and guarantees a final drain-to-empty on shutdown.
type Service struct {
	// dependencies
	Queue     *trace.Queue
	Exporters []Exporter

	ExporterName  string
	FlushInterval time.Duration

	delegate  *Exporter
	forwarder Forwarder
	closer    chan struct{}
}

// static compile time run interfaces validation
var (
	_ run.Config    = (*Service)(nil)
	_ run.PreRunner = (*Service)(nil)
	_ run.Service   = (*Service)(nil)
)

// Name implements run.Unit.
func (s *Service) Name() string {
	if s.delegate == nil {
		return "exporter"
	}
	return fmt.Sprintf("exporter[%s]", s.delegate.Name)
}

func (s *Service) codenames() []string {
	names := make([]string, 0, len(s.Exporters))
	for _, e := range s.Exporters {
		names = append(names, e.Name)
	}
	return names
}

// FlagSet implements run.Config. It merges the backend selector with every
// registered Exporter's own configuration surface.
func (s *Service) FlagSet() *run.FlagSet {
	if s.FlushInterval <= 0 {
		s.FlushInterval = defaultFlushInterval
	}

	flags := run.NewFlagSet("Telemetry exporter config")

	flags.StringVar(
		&s.ExporterName,
		ExporterName,
		s.ExporterName,
		fmt.Sprintf(`Codename of the telemetry exporter to use, one of %v`, s.codenames()))
	flags.DurationVar(
		&s.FlushInterval,
		FlushInterval,
		s.FlushInterval,
		`Interval between completed-span batch deliveries`)

	for _, e := range s.Exporters {
		if e.Flags != nil {
			flags.AddFlagSet(e.Flags().FlagSet)
		}
	}
	return flags
}

// Validate implements run.Config.
func (s *Service) Validate() error {
	var mErr error

	var found bool
	for _, e := range s.Exporters {
		if e.Name == s.ExporterName {
			found = true
			break
		}
	}
	if !found {
		mErr = multierror.Append(mErr, fmt.Errorf(pkg.FlagErr, ExporterName,
			fmt.Errorf("%w: %q, registered: %v", errUnknownExporter, s.ExporterName, s.codenames())))
	}
	if s.FlushInterval <= 0 {
		mErr = multierror.Append(mErr, fmt.Errorf(pkg.FlagErr, FlushInterval, errFlushInterval))
	}
	return mErr
}

// PreRun implements run.PreRunner. It runs the selected Exporter's Setup,
// which validates required backend configuration eagerly; a failure here
// aborts startup.
func (s *Service) PreRun() error {
	for i := range s.Exporters {
		if s.Exporters[i].Name == s.ExporterName {
			s.delegate = &s.Exporters[i]
			break
		}
	}
	if s.delegate == nil {
		return fmt.Errorf("%w: %q", errUnknownExporter, s.ExporterName)
	}

	fwd, err := s.delegate.Setup()
	if err != nil {
		return err
	}
	s.forwarder = fwd
	s.closer = make(chan struct{})
	return nil
}

// Serve implements run.GroupService. It is the single consumer of the
// completed-span queue.
func (s *Service) Serve() error {
	ticker := time.NewTicker(s.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush()
		case <-s.closer:
			// final drain so the queue is empty before process exit
			s.flush()
			if s.delegate.Close != nil {
				s.delegate.Close()
			}
			return nil
		}
	}
}

// GracefulStop implements run.GroupService.
func (s *Service) GracefulStop() {
	close(s.closer)
}

func (s *Service) flush() {
	batch := s.Queue.Drain()
	if len(batch) == 0 {
		return
	}
	logrus.WithFields(logrus.Fields{
		"exporter": s.delegate.Name,
		"spans":    len(batch),
	}).Debug("forwarding completed spans")
	s.forwarder(batch)
}
