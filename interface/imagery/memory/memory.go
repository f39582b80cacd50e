// Package memory implements an in-memory imagery.Service. Jobs complete after a configurable number of polls
// and their outputs are written by a Producer.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/interface/imagery"
	"github.com/google/uuid"
)

// Producer writes the output of a completed job into the shared folder
type Producer func(ctx context.Context, req imagery.ExportRequest) error

type job struct {
	req   imagery.ExportRequest
	polls int
	state common.TaskState
	msg   string
}

// Service is an in-memory imagery.Service
type Service struct {
	mu        sync.Mutex
	images    map[imagery.Collection][]imagery.Image
	jobs      map[string]*job
	submitted []imagery.ExportRequest
	latency   int
	failures  map[string]string
	producer  Producer
}

// Option of the service
type Option func(*Service)

// WithImages adds images to the collection
func WithImages(collection imagery.Collection, images ...imagery.Image) Option {
	return func(s *Service) {
		for _, img := range images {
			img.Collection = collection
			s.images[collection] = append(s.images[collection], img)
		}
	}
}

// WithLatency sets the number of polls before a job is terminated (half queued, half running)
func WithLatency(polls int) Option {
	return func(s *Service) {
		s.latency = polls
	}
}

// WithFailure makes the job named name fail with the message
func WithFailure(name, message string) Option {
	return func(s *Service) {
		s.failures[name] = message
	}
}

// New creates an in-memory service
func New(producer Producer, options ...Option) *Service {
	s := &Service{
		images:   map[imagery.Collection][]imagery.Image{},
		jobs:     map[string]*job{},
		failures: map[string]string{},
		producer: producer,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Search implements imagery.Service: images of the collection starting within the dates whose footprint intersects the region
func (s *Service) Search(ctx context.Context, collection imagery.Collection, region common.BBox, dates common.DateRange) ([]imagery.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var images []imagery.Image
	for _, img := range s.images[collection] {
		if !img.Start.Before(dates.Start) && !img.Start.After(dates.End) && img.Footprint.Intersects(region) {
			images = append(images, img)
		}
	}
	return images, nil
}

// Export implements imagery.Service
func (s *Service) Export(ctx context.Context, req imagery.ExportRequest) (string, error) {
	if len(req.Name) > common.MaxJobNameLength {
		return "", fmt.Errorf("Export: job name too long (%d characters)", len(req.Name))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	handle := uuid.New().String()
	s.jobs[handle] = &job{req: req, state: common.TaskQueued}
	s.submitted = append(s.submitted, req)
	return handle, nil
}

// Status implements imagery.Service
func (s *Service) Status(ctx context.Context, handle string) (common.TaskState, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[handle]
	if !ok {
		return common.TaskQueued, "", fmt.Errorf("Status: unknown job %s", handle)
	}
	if j.state.Terminal() {
		return j.state, j.msg, nil
	}
	j.polls++
	switch {
	case j.polls <= s.latency/2:
		j.state = common.TaskQueued
	case j.polls <= s.latency:
		j.state = common.TaskRunning
	default:
		if msg, ok := s.failures[j.req.Name]; ok {
			j.state, j.msg = common.TaskFailed, msg
		} else if s.producer == nil {
			j.state = common.TaskCompleted
		} else if err := s.producer(ctx, j.req); err != nil {
			j.state, j.msg = common.TaskFailed, err.Error()
		} else {
			j.state = common.TaskCompleted
		}
	}
	return j.state, j.msg, nil
}

// Submitted returns the requests of all the submitted jobs
func (s *Service) Submitted() []imagery.ExportRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]imagery.ExportRequest(nil), s.submitted...)
}
