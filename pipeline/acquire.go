package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/floodsnet/floodprep/acquisition"
	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/indexer"
	db "github.com/floodsnet/floodprep/interface/database"
	"github.com/floodsnet/floodprep/registry"
	"github.com/floodsnet/floodprep/service"
	"github.com/floodsnet/floodprep/service/log"
)

// acquisitionOrder is the order of submission of the missing layers of an event
var acquisitionOrder = []common.AssetKind{common.KindS2, common.KindS1, common.KindJRC}

// acquire submits the missing layers of every event, then waits for all of them to terminate and to land.
// It returns the events whose exports never landed (AcquisitionTimeoutError).
// Failed jobs are logged: the events go on without the layer.
func (p *Pipeline) acquire(ctx context.Context, src registry.Source, events []common.Event, ix *indexer.Index) (map[string]error, error) {
	lg := log.Logger(ctx).Sugar()
	dirs := src.Dirs()

	var tasks []*acquisition.Task
	for _, e := range events {
		ectx := log.With(ctx, "event", e.ID())
		for _, kind := range acquisitionOrder {
			if len(ix.Lookup(e.ID(), kind)) > 0 {
				continue
			}
			rawDir, err := dirs.Raw(kind)
			if err != nil {
				return nil, fmt.Errorf("acquire.%w", err)
			}
			submitted, err := p.manager.Submit(ectx, kind, e, e.BBox, e.Dates, filepath.Base(rawDir))
			tasks = append(tasks, submitted...)
			if err != nil {
				if service.Fatal(err) || ctx.Err() != nil {
					return nil, fmt.Errorf("acquire.%w", err)
				}
				log.Logger(ectx).Sugar().Warnf("%s not submitted: %v", kind, err)
			}
		}
	}
	if len(tasks) == 0 {
		return nil, nil
	}
	lg.Infof("%d task(s) submitted, waiting for them", len(tasks))

	jobErrors, err := p.manager.PollAll(ctx, tasks)
	if err != nil {
		return nil, fmt.Errorf("acquire.%w", err)
	}
	for _, err := range jobErrors {
		lg.Warnf("%v: going on without this layer", err)
	}

	failed := map[string]error{}
	for _, t := range tasks {
		if t.State != common.TaskCompleted {
			continue
		}
		ectx := log.With(ctx, "event", t.Event.ID())
		rawDir, _ := dirs.Raw(t.Kind())
		landed, err := p.waiter.AwaitValid(ectx, rawDir, t.Name(), p.PollInterval, p.MaxWait)
		landingWaitSeconds.WithLabelValues(t.Kind().String()).Observe(landed.Waited.Seconds())
		if err == nil {
			_, err = p.waiter.Fetch(ectx, landed, rawDir)
		}
		if err != nil {
			var timeout service.AcquisitionTimeoutError
			if !errors.As(err, &timeout) && (ctx.Err() != nil || !service.EventScoped(err)) {
				return nil, fmt.Errorf("acquire.%w", err)
			}
			if failed[t.Event.ID()] == nil {
				failed[t.Event.ID()] = err
			}
		}
	}
	return failed, nil
}

func (p *Pipeline) taskRecord(t acquisition.Task) db.Task {
	return db.Task{
		RunID:     p.runID,
		Handle:    t.Handle,
		Name:      t.Name(),
		Dataset:   t.Event.Dataset,
		EventID:   t.Event.ID(),
		Kind:      t.Kind(),
		State:     t.State,
		Message:   t.Message,
		Submitted: t.Submitted,
		Updated:   t.Updated,
	}
}

// TaskSubmitted implements acquisition.Listener
func (p *Pipeline) TaskSubmitted(ctx context.Context, t acquisition.Task) {
	rec := p.taskRecord(t)
	p.status.setTask(rec)
	tasksSubmittedTotal.WithLabelValues(rec.Dataset.String(), rec.Kind.String()).Inc()
	if p.journal != nil {
		if err := p.journal.CreateTask(ctx, rec); err != nil {
			log.Logger(ctx).Sugar().Warnf("journal: %v", err)
		}
	}
}

// TaskUpdated implements acquisition.Listener
func (p *Pipeline) TaskUpdated(ctx context.Context, t acquisition.Task) {
	rec := p.taskRecord(t)
	p.status.setTask(rec)
	if t.State == common.TaskFailed {
		tasksFailedTotal.WithLabelValues(rec.Dataset.String(), rec.Kind.String()).Inc()
	}
	if p.journal != nil {
		var msg *string
		if t.Message != "" {
			msg = &t.Message
		}
		if err := p.journal.UpdateTask(ctx, p.runID, t.Handle, t.State, msg); err != nil {
			log.Logger(ctx).Sugar().Warnf("journal: %v", err)
		}
	}
}
