package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"google.golang.org/api/googleapi"
)

// transientError marks an error worth retrying
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// fatalError marks an error that stops the whole run
type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }
func (e *fatalError) Fatal() bool   { return true }

// MakeTemporary marks err as transient (see Temporary)
func MakeTemporary(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err}
}

// MakeFatal marks err as fatal (see Fatal)
func MakeFatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err}
}

// Temporary returns true if the call that returned err may succeed when retried:
// errors marked with MakeTemporary, throttling and unavailability of the google apis,
// network timeouts, reset or refused connections and interrupted contexts.
func Temporary(err error) bool {
	if err == nil {
		return false
	}
	var marked *transientError
	if errors.As(err, &marked) {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.EPIPE} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Fatal returns true if err, or one of the errors it wraps, is fatal
func Fatal(err error) bool {
	var f interface{ Fatal() bool }
	return errors.As(err, &f) && f.Fatal()
}

// UnknownDatasetError is returned for an unrecognized dataset tag. It stops the run.
type UnknownDatasetError struct {
	Tag string
}

func (e UnknownDatasetError) Error() string {
	return fmt.Sprintf("unknown dataset: %s (expecting one of all, world_floods, sen1_floods11, usgs, unosat)", e.Tag)
}

func (e UnknownDatasetError) Fatal() bool { return true }

// AcquisitionTimeoutError is returned when an expected output never materialized on the landing area
type AcquisitionTimeoutError struct {
	Path   string
	Waited time.Duration
}

func (e AcquisitionTimeoutError) Error() string {
	return fmt.Sprintf("%s not found after %v", e.Path, e.Waited)
}

// MixedDtypeError is returned when the bands of a raster do not share the same data type
type MixedDtypeError struct {
	Path  string
	Types []string
}

func (e MixedDtypeError) Error() string {
	return fmt.Sprintf("%s: bands have mixed data types: %s", e.Path, strings.Join(e.Types, ","))
}

// RemoteJobFailedError is returned when a remote acquisition job ended in failure
type RemoteJobFailedError struct {
	Job     string
	Handle  string
	Message string
}

func (e RemoteJobFailedError) Error() string {
	return fmt.Sprintf("remote job %s (%s) failed: %s", e.Job, e.Handle, e.Message)
}

// StructuralValidityTimeoutError is returned when a landed file is still unreadable after the maximum wait.
// The file is used as-is.
type StructuralValidityTimeoutError struct {
	Path   string
	Waited time.Duration
	Cause  error
}

func (e StructuralValidityTimeoutError) Error() string {
	return fmt.Sprintf("%s still invalid after %v: %v", e.Path, e.Waited, e.Cause)
}

func (e StructuralValidityTimeoutError) Unwrap() error { return e.Cause }

// EventScoped returns true if the error only concerns one event: the dataset pass can go on.
func EventScoped(err error) bool {
	if err == nil {
		return false
	}
	var (
		unknown UnknownDatasetError
		timeout AcquisitionTimeoutError
		mixed   MixedDtypeError
		job     RemoteJobFailedError
		invalid StructuralValidityTimeoutError
	)
	switch {
	case errors.As(err, &unknown):
		return false
	case errors.As(err, &timeout), errors.As(err, &mixed), errors.As(err, &job), errors.As(err, &invalid):
		return true
	}
	return !Fatal(err) && !errors.Is(err, context.Canceled)
}
