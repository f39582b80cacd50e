// Package acquisition submits remote export jobs for the layers missing from an event and
// polls them until they are terminated.
package acquisition

import (
	"context"
	"fmt"
	"time"

	"github.com/floodsnet/floodprep/classification"
	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/interface/imagery"
	"github.com/floodsnet/floodprep/service"
	"github.com/floodsnet/floodprep/service/log"
)

// DefaultPollInterval between two polls of the remote jobs
const DefaultPollInterval = 20 * time.Second

// Task is a remote export job
type Task struct {
	Handle    string
	Request   imagery.ExportRequest
	Event     common.Event
	State     common.TaskState
	Message   string
	Submitted time.Time
	Updated   time.Time
}

// Name of the job, also the name of its output
func (t *Task) Name() string {
	return t.Request.Name
}

// Kind of the layer produced by the job
func (t *Task) Kind() common.AssetKind {
	return t.Request.Kind
}

// Err returns a RemoteJobFailedError if the task failed
func (t *Task) Err() error {
	if t.State != common.TaskFailed {
		return nil
	}
	return service.RemoteJobFailedError{Job: t.Request.Name, Handle: t.Handle, Message: t.Message}
}

func (t *Task) transition(to common.TaskState, msg string, now time.Time) bool {
	if to == t.State || !t.State.CanTransition(to) {
		return false
	}
	t.State, t.Message, t.Updated = to, msg, now
	return true
}

// Listener is notified of the lifecycle of the tasks
type Listener interface {
	TaskSubmitted(ctx context.Context, t Task)
	TaskUpdated(ctx context.Context, t Task)
}

// Manager submits and polls the remote jobs
type Manager struct {
	service   imagery.Service
	clock     service.Clock
	interval  time.Duration
	maxYear   int
	listeners []Listener
}

// Option of the manager
type Option func(*Manager)

// WithClock replaces the wall clock
func WithClock(c service.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithPollInterval sets the interval between two polls
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		m.interval = d
	}
}

// WithHistoryMaxYear caps the flood year of the water history windows (0: no cap)
func WithHistoryMaxYear(year int) Option {
	return func(m *Manager) {
		m.maxYear = year
	}
}

// WithListener adds a listener
func WithListener(l Listener) Option {
	return func(m *Manager) {
		m.listeners = append(m.listeners, l)
	}
}

// NewManager creates a manager of the jobs of the service
func NewManager(svc imagery.Service, options ...Option) *Manager {
	m := &Manager{
		service:  svc,
		clock:    service.RealClock,
		interval: DefaultPollInterval,
	}
	for _, o := range options {
		o(m)
	}
	return m
}

// Submit submits the jobs producing the layer of the given kind for the event, exporting the region into folder.
// Optical and radar layers are exported image by image: one task is returned per image acquired within dates
// (none if no image is found). The water history is exported as one server-side composition whose window
// is derived from the date of the event.
func (m *Manager) Submit(ctx context.Context, kind common.AssetKind, event common.Event, region common.BBox, dates common.DateRange, folder string) ([]*Task, error) {
	ctx = log.With(ctx, "event", event.ID())
	switch kind {
	case common.KindS2, common.KindS1:
		images, err := m.service.Search(ctx, imagery.CollectionOf(kind), region, dates)
		if err != nil {
			return nil, fmt.Errorf("Submit.Search(%s): %w", kind, err)
		}
		if len(images) == 0 {
			log.Logger(ctx).Sugar().Warnf("no %s image found in %s", kind, dates)
		}
		var tasks []*Task
		for i := range images {
			img := images[i]
			t, err := m.SubmitRequest(ctx, imagery.ExportRequest{
				Name:   common.RawName(event.ID(), img.Index, kind),
				Kind:   kind,
				Folder: folder,
				Region: region,
				Image:  &img,
			}, event)
			if err != nil {
				return tasks, err
			}
			tasks = append(tasks, t)
		}
		return tasks, nil
	case common.KindJRC:
		w := classification.NewWindow(event.Date(), m.maxYear, false)
		t, err := m.SubmitRequest(ctx, imagery.ExportRequest{
			Name:   w.Name(event.ID()),
			Kind:   kind,
			Folder: folder,
			Region: region,
			Window: &w,
		}, event)
		if err != nil {
			return nil, err
		}
		return []*Task{t}, nil
	}
	return nil, fmt.Errorf("Submit: %s layers are not acquired remotely", kind)
}

// SubmitRequest submits one export job
func (m *Manager) SubmitRequest(ctx context.Context, req imagery.ExportRequest, event common.Event) (*Task, error) {
	if len(req.Name) > common.MaxJobNameLength {
		return nil, service.MakeFatal(fmt.Errorf("SubmitRequest: job name %s exceeds %d characters", req.Name, common.MaxJobNameLength))
	}
	handle, err := m.service.Export(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("SubmitRequest(%s): %w", req.Name, err)
	}
	now := m.clock.Now()
	t := &Task{
		Handle:    handle,
		Request:   req,
		Event:     event,
		State:     common.TaskQueued,
		Submitted: now,
		Updated:   now,
	}
	log.Logger(ctx).Sugar().Infof("submitted %s (%s)", req.Name, handle)
	for _, l := range m.listeners {
		l.TaskSubmitted(ctx, *t)
	}
	return t, nil
}

// Poll queries the state of the tasks that are not terminated yet, once.
// It returns the number of tasks still queued or running.
func (m *Manager) Poll(ctx context.Context, tasks []*Task) (int, error) {
	pending := 0
	for _, t := range tasks {
		if t.State.Terminal() {
			continue
		}
		state, msg, err := m.service.Status(ctx, t.Handle)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return 0, ctx.Err()
		case service.Temporary(err):
			log.Logger(ctx).Sugar().Warnf("status of %s: %v", t.Name(), err)
			pending++
			continue
		default:
			state, msg = common.TaskFailed, err.Error()
		}
		if t.transition(state, msg, m.clock.Now()) {
			lg := log.Logger(ctx).Sugar()
			if state == common.TaskFailed {
				lg.Warnf("%s (%s) failed: %s", t.Name(), t.Handle, msg)
			} else {
				lg.Debugf("%s (%s) is %s", t.Name(), t.Handle, state)
			}
			for _, l := range m.listeners {
				l.TaskUpdated(ctx, *t)
			}
		}
		if !t.State.Terminal() {
			pending++
		}
	}
	return pending, nil
}

// PollAll blocks until every task is Completed or Failed and returns the errors of the failed tasks.
// There is no deadline: the wait is only bounded by ctx.
func (m *Manager) PollAll(ctx context.Context, tasks []*Task) ([]error, error) {
	start := m.clock.Now()
	for {
		pending, err := m.Poll(ctx, tasks)
		if err != nil {
			return nil, fmt.Errorf("PollAll: %w", err)
		}
		if pending == 0 {
			break
		}
		if err := m.clock.Sleep(ctx, m.interval); err != nil {
			return nil, fmt.Errorf("PollAll: %w", err)
		}
	}
	var failed []error
	for _, t := range tasks {
		if err := t.Err(); err != nil {
			failed = append(failed, err)
		}
	}
	if len(tasks) > 0 {
		log.Logger(ctx).Sugar().Infof("%d task(s) terminated in %v (%d failed)", len(tasks), m.clock.Now().Sub(start), len(failed))
	}
	return failed, nil
}
