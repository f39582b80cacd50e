package db

import (
	"context"
	"fmt"
	"time"

	"github.com/floodsnet/floodprep/common"
)

// Task is the journal entry of an acquisition task
type Task struct {
	RunID     string           `json:"run_id"`
	Handle    string           `json:"handle"`
	Name      string           `json:"name"`
	Dataset   common.Dataset   `json:"dataset"`
	EventID   string           `json:"event"`
	Kind      common.AssetKind `json:"kind"`
	State     common.TaskState `json:"state"`
	Message   string           `json:"message"`
	Submitted time.Time        `json:"submitted"`
	Updated   time.Time        `json:"updated"`
}

// Event is the journal entry of the outcome of an event
type Event struct {
	RunID   string             `json:"run_id"`
	Dataset common.Dataset     `json:"dataset"`
	Key     string             `json:"key"`
	Tile    string             `json:"tile"`
	Status  common.EventStatus `json:"status"`
	Message string             `json:"message"`
	Outputs []string           `json:"outputs"`
	Updated time.Time          `json:"updated"`
}

type ErrAlreadyExists struct {
	Type, ID string
}

func (e ErrAlreadyExists) Error() string {
	return fmt.Sprintf("%s alreay exists: %s", e.Type, e.ID)
}

type ErrNotFound struct {
	Type, ID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Type, e.ID)
}

type JournalTxBackend interface {
	JournalBackend
	// Must be call to apply transaction
	Commit() error
	// Might be called to cancel the transaction (no effect if commit has already be done)
	Rollback() error
}

type JournalDBBackend interface {
	JournalBackend
	StartTransaction(ctx context.Context) (JournalTxBackend, error)
	Close() error
}

// Status counts the tasks per state
type Status struct {
	Queued, Running, Completed, Failed int64
}

// Set the number of occurences for a given state
func (s *Status) Set(state common.TaskState, nb int64) {
	switch state {
	case common.TaskQueued:
		s.Queued = nb
	case common.TaskRunning:
		s.Running = nb
	case common.TaskCompleted:
		s.Completed = nb
	case common.TaskFailed:
		s.Failed = nb
	}
}

type JournalBackend interface {
	// Create a run, may return ErrAlreadyExists
	CreateRun(ctx context.Context, runID string, datasets []common.Dataset) error

	// Create a task, may return ErrAlreadyExists
	CreateTask(ctx context.Context, task Task) error
	// Update task state & message (if != nil), may return ErrNotFound
	UpdateTask(ctx context.Context, runID, handle string, state common.TaskState, message *string) error
	// Tasks returns the tasks of the run
	// state [optional=nil] filters the tasks
	Tasks(ctx context.Context, runID string, state *common.TaskState) ([]Task, error)
	// Returns the number of tasks of the run per state
	TasksStatus(ctx context.Context, runID string) (Status, error)

	// Create or replace the outcome of an event
	RecordEvent(ctx context.Context, event Event) error
	// Events returns the outcomes of the events of the run
	Events(ctx context.Context, runID string) ([]Event, error)
}

// UnitOfWork runs a function and commit the database at the end or rollback if the function returns an error
func UnitOfWork(ctx context.Context, db JournalDBBackend, f func(tx JournalTxBackend) error) (err error) {
	// Start transaction
	txn, err := db.StartTransaction(ctx)
	if err != nil {
		return fmt.Errorf("uow.starttransaction: %w", err)
	}

	// Rollback if not successful
	defer func() {
		if e := txn.Rollback(); err == nil {
			err = e
		}
	}()

	// Execute function
	if err = f(txn); err != nil {
		return fmt.Errorf("uow.%w", err)
	}

	return txn.Commit()
}
