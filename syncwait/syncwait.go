// Package syncwait waits for the exports of the remote service to land and to be readable.
package syncwait

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/interface/landing"
	"github.com/floodsnet/floodprep/service"
	"github.com/floodsnet/floodprep/service/log"
)

// Default timings
const (
	DefaultPollInterval = 30 * time.Second
	DefaultMaxWait      = 30 * time.Minute
)

// Probe returns an error if the file at location is not a readable raster
type Probe func(ctx context.Context, location string) error

// Waiter waits for files to land
type Waiter struct {
	landing landing.Landing
	clock   service.Clock
	probe   Probe
}

// Option of the waiter
type Option func(*Waiter)

// WithClock replaces the wall clock
func WithClock(c service.Clock) Option {
	return func(w *Waiter) {
		w.clock = c
	}
}

// WithProbe replaces the checksum probe
func WithProbe(p Probe) Option {
	return func(w *Waiter) {
		w.probe = p
	}
}

// New creates a waiter on the landing area
func New(l landing.Landing, options ...Option) *Waiter {
	w := &Waiter{
		landing: l,
		clock:   service.RealClock,
		probe:   ChecksumProbe,
	}
	for _, o := range options {
		o(w)
	}
	return w
}

// Landed describes the files of an export
type Landed struct {
	// Locations of the file, or of its tiles if the remote service split it
	Locations []string
	Split     bool
	// Degraded are the StructuralValidityTimeoutErrors of the files used although they could not be read
	Degraded []error
	Waited   time.Duration
}

// AwaitValid blocks until the export {name}.tif of the folder exists (or its tiles, if the remote service split it)
// and every file passes the validity probe. The elapsed time is shared by the two phases and bounded by maxWait:
//   - if the export is still missing after maxWait, an AcquisitionTimeoutError is returned,
//   - if a file is still invalid after maxWait, it is reported in Landed.Degraded and used as is.
func (w *Waiter) AwaitValid(ctx context.Context, folder, name string, pollInterval, maxWait time.Duration) (Landed, error) {
	lg := log.Logger(ctx).Sugar()
	var res Landed
	expected := filepath.Join(folder, name+common.Ext)

	sleep := func() error {
		if err := w.clock.Sleep(ctx, pollInterval); err != nil {
			return fmt.Errorf("AwaitValid: %w", err)
		}
		res.Waited += pollInterval
		return nil
	}

	for {
		single, splits, err := w.landing.Locate(ctx, folder, name)
		if err != nil {
			if !service.Temporary(err) {
				return res, fmt.Errorf("AwaitValid.Locate: %w", err)
			}
			lg.Warnf("locate %s: %v", name, err)
		}
		if single != "" {
			res.Locations = []string{single}
			break
		}
		if len(splits) > 0 {
			lg.Infof("%s was split into %d files", name, len(splits))
			res.Locations, res.Split = splits, true
			break
		}
		if res.Waited >= maxWait {
			return res, service.AcquisitionTimeoutError{Path: expected, Waited: res.Waited}
		}
		lg.Debugf("waiting for %s (%v)", expected, res.Waited)
		if err := sleep(); err != nil {
			return res, err
		}
	}

	for _, location := range res.Locations {
		for {
			err := w.probe(ctx, location)
			if err == nil {
				break
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return res, fmt.Errorf("AwaitValid: %w", err)
			}
			if res.Waited >= maxWait {
				invalid := service.StructuralValidityTimeoutError{Path: location, Waited: res.Waited, Cause: err}
				lg.Warnf("%v: using it anyway", invalid)
				res.Degraded = append(res.Degraded, invalid)
				break
			}
			lg.Debugf("%s is not valid yet: %v", location, err)
			if err := sleep(); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// Fetch copies the landed files into the local directory and returns their local paths
func (w *Waiter) Fetch(ctx context.Context, landed Landed, dir string) ([]string, error) {
	paths := make([]string, 0, len(landed.Locations))
	for _, location := range landed.Locations {
		p, err := w.landing.Fetch(ctx, location, dir)
		if err != nil {
			return paths, fmt.Errorf("Fetch: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}
