// Package pipeline prepares the datasets: it discovers the events of each dataset, fills the gaps of its
// index through the remote imagery service, then aligns and classifies the layers of every event.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/airbusgeo/geocube/interface/messaging"
	"github.com/floodsnet/floodprep/acquisition"
	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/indexer"
	db "github.com/floodsnet/floodprep/interface/database"
	"github.com/floodsnet/floodprep/interface/imagery"
	"github.com/floodsnet/floodprep/interface/landing"
	"github.com/floodsnet/floodprep/interface/metadata"
	"github.com/floodsnet/floodprep/interface/vector"
	"github.com/floodsnet/floodprep/registry"
	"github.com/floodsnet/floodprep/service"
	"github.com/floodsnet/floodprep/service/log"
	"github.com/floodsnet/floodprep/syncwait"
	"github.com/google/uuid"
)

// Config of a run
type Config struct {
	// Acquire submits the missing layers to the remote service. Otherwise, only the present layers are processed.
	Acquire bool `yaml:"acquire"`
	// TaskPollInterval between two polls of the remote jobs
	TaskPollInterval time.Duration `yaml:"task_poll_interval"`
	// PollInterval between two probes of the landing area, MaxWait for an export to land and be readable
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxWait      time.Duration `yaml:"max_wait"`
	// HistoryMaxYear caps the flood year of the water history windows (0: no cap)
	HistoryMaxYear int `yaml:"history_max_year"`
	// Bundle zips the outputs of each event
	Bundle bool `yaml:"bundle"`
	// RenameKeys renames the outputs of hashed keys with the names of their layers at the end of the run
	RenameKeys bool `yaml:"rename"`
}

// MetadataFactory returns the metadata reader of a dataset
type MetadataFactory func(cfg registry.Config, d common.Dataset) (metadata.Reader, error)

// Pipeline runs the preparation of the datasets
type Pipeline struct {
	Config
	registry *registry.Registry
	manager  *acquisition.Manager
	waiter   *syncwait.Waiter
	clock    service.Clock
	probe    syncwait.Probe

	vectors   vector.Source
	metadata  MetadataFactory
	journal   db.JournalDBBackend
	notifier  messaging.Publisher
	publisher service.Storage
	exists    func(path string) bool

	runID  string
	status *status
	// keys maps the hashed keys to the names of the layers they were derived from
	keys map[string]string
}

// Option of the pipeline
type Option func(*Pipeline)

// WithClock replaces the wall clock (polls of the remote jobs and of the landing area)
func WithClock(c service.Clock) Option {
	return func(p *Pipeline) {
		p.clock = c
	}
}

// WithProbe replaces the validity probe of the landed files
func WithProbe(probe syncwait.Probe) Option {
	return func(p *Pipeline) {
		p.probe = probe
	}
}

// WithVectorSource replaces the OGR reader of vector ground truth
func WithVectorSource(v vector.Source) Option {
	return func(p *Pipeline) {
		p.vectors = v
	}
}

// WithMetadata replaces the metadata readers of the datasets
func WithMetadata(f MetadataFactory) Option {
	return func(p *Pipeline) {
		p.metadata = f
	}
}

// WithJournal records the tasks and the events of the run
func WithJournal(j db.JournalDBBackend) Option {
	return func(p *Pipeline) {
		p.journal = j
	}
}

// WithNotifier publishes a message per processed event
func WithNotifier(n messaging.Publisher) Option {
	return func(p *Pipeline) {
		p.notifier = n
	}
}

// WithPublisher uploads the outputs of each event to the storage
func WithPublisher(s service.Storage) Option {
	return func(p *Pipeline) {
		p.publisher = s
	}
}

// WithRunID sets the identifier of the run (default: random uuid)
func WithRunID(id string) Option {
	return func(p *Pipeline) {
		p.runID = id
	}
}

// New creates a pipeline exporting the missing layers with svc. The exports are expected on the landing area.
func New(reg *registry.Registry, svc imagery.Service, l landing.Landing, cfg Config, options ...Option) *Pipeline {
	p := &Pipeline{
		Config:   cfg,
		registry: reg,
		clock:    service.RealClock,
		probe:    syncwait.ChecksumProbe,
		vectors:  vector.OGR{},
		metadata: metadata.New,
		exists:   registry.Exists,
		runID:    uuid.New().String(),
		keys:     map[string]string{},
	}
	for _, o := range options {
		o(p)
	}
	if p.TaskPollInterval <= 0 {
		p.TaskPollInterval = acquisition.DefaultPollInterval
	}
	if p.PollInterval <= 0 {
		p.PollInterval = syncwait.DefaultPollInterval
	}
	if p.MaxWait <= 0 {
		p.MaxWait = syncwait.DefaultMaxWait
	}
	p.status = newStatus(p.runID)
	p.manager = acquisition.NewManager(svc,
		acquisition.WithClock(p.clock),
		acquisition.WithPollInterval(p.TaskPollInterval),
		acquisition.WithHistoryMaxYear(p.HistoryMaxYear),
		acquisition.WithListener(p))
	p.waiter = syncwait.New(l, syncwait.WithClock(p.clock), syncwait.WithProbe(p.probe))
	return p
}

// RunID returns the identifier of the run
func (p *Pipeline) RunID() string {
	return p.runID
}

// Snapshot returns the state of the run
func (p *Pipeline) Snapshot() Snapshot {
	return p.status.snapshot()
}

// Summary of a run
type Summary struct {
	RunID string
	// Events per status
	Events map[common.EventStatus]int
	// Tasks submitted, and failed
	Submitted, Failed int
}

// Complete returns true if no event failed
func (s Summary) Complete() bool {
	return s.Events[common.EventFailed] == 0
}

func (s Summary) String() string {
	return fmt.Sprintf("run %s: %d done, %d skipped, %d dropped, %d failed events (%d tasks submitted, %d failed)", s.RunID,
		s.Events[common.EventDone], s.Events[common.EventSkipped], s.Events[common.EventDropped], s.Events[common.EventFailed],
		s.Submitted, s.Failed)
}

func (p *Pipeline) summary() Summary {
	snap := p.status.snapshot()
	s := Summary{RunID: p.runID, Events: map[common.EventStatus]int{}}
	for _, e := range snap.Events {
		s.Events[e.Status]++
	}
	s.Submitted = len(snap.Tasks)
	for _, t := range snap.Tasks {
		if t.State == common.TaskFailed {
			s.Failed++
		}
	}
	return s
}

// Run prepares the datasets, one after the other.
// Errors of one event do not stop the run: they are reported in the Summary. The first error
// concerning a whole dataset (configuration, unreachable remote service...) stops the run.
func (p *Pipeline) Run(ctx context.Context, datasets []common.Dataset) (Summary, error) {
	ctx = log.With(ctx, "run", p.runID)
	if p.journal != nil {
		if err := p.journal.CreateRun(ctx, p.runID, datasets); err != nil {
			return p.summary(), fmt.Errorf("Run.%w", err)
		}
	}
	for _, d := range datasets {
		if err := p.runDataset(ctx, d); err != nil {
			return p.summary(), fmt.Errorf("Run[%s].%w", d, err)
		}
	}
	s := p.summary()
	log.Logger(ctx).Sugar().Info(s.String())
	return s, nil
}

// Index returns the keys of the events of the dataset missing each acquirable layer
func (p *Pipeline) Index(ctx context.Context, d common.Dataset) (map[common.AssetKind][]string, error) {
	ctx = log.With(ctx, "dataset", d.String())
	src, err := p.registry.Source(d)
	if err != nil {
		return nil, fmt.Errorf("Index.%w", err)
	}
	_, gts, err := p.discover(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("Index.%w", err)
	}
	return indexer.Build(src, gts).Report(), nil
}

func (p *Pipeline) runDataset(ctx context.Context, d common.Dataset) error {
	ctx = log.With(ctx, "dataset", d.String())
	lg := log.Logger(ctx).Sugar()

	src, err := p.registry.Source(d)
	if err != nil {
		return fmt.Errorf("runDataset.%w", err)
	}
	events, gts, err := p.discover(ctx, src)
	if err != nil {
		return fmt.Errorf("runDataset.%w", err)
	}
	lg.Infof("%d event(s)", len(events))

	ix := indexer.Build(src, gts)
	for _, key := range ix.Collisions() {
		lg.Warnf("key %s is shared by several ground truth records: only the first one is used", key)
	}

	failed := map[string]error{}
	if p.Acquire {
		if failed, err = p.acquire(ctx, src, events, ix); err != nil {
			return fmt.Errorf("runDataset.%w", err)
		}
		ix = indexer.Build(src, gts)
	}

	for _, e := range events {
		ectx := log.With(ctx, "event", e.ID())
		if err := failed[e.ID()]; err != nil {
			log.Logger(ectx).Sugar().Warnf("event failed: %v", err)
			p.finish(ectx, e, common.EventFailed, err.Error(), nil)
			continue
		}
		start := p.clock.Now()
		st, outputs, err := p.processEvent(ectx, src, ix, e)
		if err != nil {
			if !service.EventScoped(err) || ctx.Err() != nil {
				return fmt.Errorf("runDataset[%s].%w", e.ID(), err)
			}
			log.Logger(ectx).Sugar().Errorf("event failed: %v", err)
			p.finish(ectx, e, common.EventFailed, err.Error(), outputs)
			continue
		}
		eventDurationSeconds.WithLabelValues(d.String()).Observe(p.clock.Now().Sub(start).Seconds())
		msg := ""
		if st == common.EventDropped {
			msg = "no optical nor radar layer"
		}
		if st != common.EventDropped {
			if outputs, err = p.deliver(ectx, e, st, outputs); err != nil {
				if errors.Is(err, context.Canceled) {
					return fmt.Errorf("runDataset[%s].%w", e.ID(), err)
				}
				log.Logger(ectx).Sugar().Errorf("delivery failed: %v", err)
				p.finish(ectx, e, common.EventFailed, err.Error(), outputs)
				continue
			}
		}
		p.finish(ectx, e, st, msg, outputs)
	}

	if d == common.DatasetUNOSAT {
		if err := p.writeKeys(ctx); err != nil {
			return fmt.Errorf("runDataset.%w", err)
		}
	}
	return nil
}

// finish records the outcome of the event
func (p *Pipeline) finish(ctx context.Context, e common.Event, st common.EventStatus, msg string, outputs []string) {
	rec := db.Event{
		RunID:   p.runID,
		Dataset: e.Dataset,
		Key:     e.Key,
		Tile:    e.Tile,
		Status:  st,
		Message: msg,
		Outputs: outputs,
		Updated: p.clock.Now(),
	}
	p.status.setEvent(rec)
	eventsTotal.WithLabelValues(e.Dataset.String(), st.String()).Inc()
	if p.journal != nil {
		if err := p.journal.RecordEvent(ctx, rec); err != nil {
			log.Logger(ctx).Sugar().Warnf("journal: %v", err)
		}
	}
	if p.notifier != nil {
		if err := p.notify(ctx, rec); err != nil {
			log.Logger(ctx).Sugar().Warnf("notify: %v", err)
		}
	}
}
