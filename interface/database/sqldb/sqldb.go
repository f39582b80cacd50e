// Package sqldb implements the journal on Postgres (lib/pq) or SQLite (modernc), selected by the connection string.
package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/floodsnet/floodprep/common"
	db "github.com/floodsnet/floodprep/interface/database"
	"github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// sqlInterface allows to use either a sql.DB or a sql.Tx
type sqlInterface interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// BackendTx implements JournalTxBackend
type BackendTx struct {
	*sql.Tx
	Backend
}

// BackendDB implements JournalDBBackend
type BackendDB struct {
	*sql.DB
	Backend
}

// Backend implements JournalBackend
type Backend struct {
	sqlInterface
}

/* http://www.postgresql.org/docs/9.3/static/errcodes-appendix.html */
const (
	noError           = "00000"
	connectionFailure = "08006"

	notPqError = "X"
)

func pqErrorCode(err error) pq.ErrorCode {
	if err == nil {
		return noError
	}
	var pqerr *pq.Error
	if errors.As(err, &pqerr) {
		return pqerr.Code
	}
	return notPqError
}

const schema = `
CREATE TABLE IF NOT EXISTS run (
	id TEXT PRIMARY KEY,
	datasets TEXT NOT NULL,
	created TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS task (
	run_id TEXT NOT NULL,
	handle TEXT NOT NULL,
	name TEXT NOT NULL,
	dataset TEXT NOT NULL,
	event_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	state TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	submitted TIMESTAMP NOT NULL,
	updated TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, handle)
);
CREATE TABLE IF NOT EXISTS event (
	run_id TEXT NOT NULL,
	dataset TEXT NOT NULL,
	key TEXT NOT NULL,
	tile TEXT NOT NULL,
	status TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	outputs TEXT NOT NULL DEFAULT '[]',
	updated TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, dataset, key, tile)
);`

// New opens the journal: a postgres connection string (postgres://..., or "host=... dbname=...")
// or the path of a sqlite file. The schema is created if needed.
func New(ctx context.Context, dbConnection string) (*BackendDB, error) {
	driver, dsn := "sqlite", dbConnection
	if strings.HasPrefix(dbConnection, "postgres://") || strings.HasPrefix(dbConnection, "postgresql://") || strings.Contains(dbConnection, "dbname=") {
		driver = "postgres"
	} else {
		if err := os.MkdirAll(filepath.Dir(dbConnection), 0755); err != nil {
			return nil, fmt.Errorf("sqldb.New: %w", err)
		}
		dsn = dbConnection + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.open: %w", err)
	}
	if driver == "sqlite" {
		// Only one writer at a time
		sqldb.SetMaxOpenConns(1)
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := sqldb.ExecContext(ctx, stmt); err != nil {
			sqldb.Close()
			if pqErrorCode(err) == connectionFailure {
				return nil, fmt.Errorf("sqldb.New: connection failure: %w", err)
			}
			return nil, fmt.Errorf("sqldb.New.migrate: %w", err)
		}
	}
	return &BackendDB{sqldb, Backend{sqlInterface: sqldb}}, nil
}

// StartTransaction implements JournalDBBackend
func (bdb BackendDB) StartTransaction(ctx context.Context) (db.JournalTxBackend, error) {
	tx, err := bdb.BeginTx(ctx, nil)
	if err != nil {
		return BackendTx{}, err
	}
	return BackendTx{tx, Backend{sqlInterface: tx}}, nil
}

// Rollback overloads sql.Tx.Rollback to be idempotent
func (btx BackendTx) Rollback() error {
	err := btx.Tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// CreateRun implements JournalBackend
func (b Backend) CreateRun(ctx context.Context, runID string, datasets []common.Dataset) error {
	names := make([]string, len(datasets))
	for i, d := range datasets {
		names[i] = d.String()
	}
	res, err := b.ExecContext(ctx, "insert into run(id, datasets, created) values($1,$2,$3) on conflict do nothing",
		runID, strings.Join(names, ","), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("CreateRun.exec: %w", err)
	}
	if nb, _ := res.RowsAffected(); nb == 0 {
		return db.ErrAlreadyExists{Type: "run", ID: runID}
	}
	return nil
}

// CreateTask implements JournalBackend
func (b Backend) CreateTask(ctx context.Context, t db.Task) error {
	res, err := b.ExecContext(ctx, "insert into task(run_id,handle,name,dataset,event_id,kind,state,message,submitted,updated) values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) on conflict do nothing",
		t.RunID, t.Handle, t.Name, t.Dataset.String(), t.EventID, t.Kind.String(), t.State, t.Message, t.Submitted.UTC(), t.Submitted.UTC())
	if err != nil {
		return fmt.Errorf("CreateTask.exec: %w", err)
	}
	if nb, _ := res.RowsAffected(); nb == 0 {
		return db.ErrAlreadyExists{Type: "task", ID: t.Handle}
	}
	return nil
}

// UpdateTask implements JournalBackend
func (b Backend) UpdateTask(ctx context.Context, runID, handle string, state common.TaskState, message *string) error {
	var res sql.Result
	var err error
	if message != nil {
		res, err = b.ExecContext(ctx, "update task set state=$1, message=$2, updated=$3 where run_id=$4 and handle=$5", state, *message, time.Now().UTC(), runID, handle)
	} else {
		res, err = b.ExecContext(ctx, "update task set state=$1, updated=$2 where run_id=$3 and handle=$4", state, time.Now().UTC(), runID, handle)
	}
	if err != nil {
		return fmt.Errorf("UpdateTask.exec: %w", err)
	}
	if nb, _ := res.RowsAffected(); nb == 0 {
		return db.ErrNotFound{Type: "task", ID: handle}
	}
	return nil
}

// Tasks implements JournalBackend
func (b Backend) Tasks(ctx context.Context, runID string, state *common.TaskState) ([]db.Task, error) {
	query := "select run_id,handle,name,dataset,event_id,kind,state,message,submitted,updated from task where run_id=$1"
	args := []interface{}{runID}
	if state != nil {
		query += " and state=$2"
		args = append(args, *state)
	}
	rows, err := b.QueryContext(ctx, query+" order by submitted, handle", args...)
	if err != nil {
		return nil, fmt.Errorf("Tasks.QueryContext: %w", err)
	}
	defer rows.Close()
	tasks := make([]db.Task, 0)
	for rows.Next() {
		var t db.Task
		var dataset, kind string
		if err := rows.Scan(&t.RunID, &t.Handle, &t.Name, &dataset, &t.EventID, &kind, &t.State, &t.Message, &t.Submitted, &t.Updated); err != nil {
			return nil, fmt.Errorf("Tasks.Scan: %w", err)
		}
		if t.Dataset, err = common.DatasetString(dataset); err != nil {
			return nil, fmt.Errorf("Tasks: %w", err)
		}
		if t.Kind, err = common.AssetKindString(kind); err != nil {
			return nil, fmt.Errorf("Tasks: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Tasks.rows.err: %w", err)
	}
	return tasks, nil
}

// TasksStatus implements JournalBackend
func (b Backend) TasksStatus(ctx context.Context, runID string) (db.Status, error) {
	s := db.Status{}
	rows, err := b.QueryContext(ctx, "select state, count(state) from task where run_id=$1 group by state", runID)
	if err != nil {
		return s, fmt.Errorf("TasksStatus.QueryContext: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var state common.TaskState
		var nb int64
		if err := rows.Scan(&state, &nb); err != nil {
			return s, fmt.Errorf("TasksStatus.Scan: %w", err)
		}
		s.Set(state, nb)
	}
	if err := rows.Err(); err != nil {
		return s, fmt.Errorf("TasksStatus.rows.err: %w", err)
	}
	return s, nil
}

// RecordEvent implements JournalBackend
func (b Backend) RecordEvent(ctx context.Context, e db.Event) error {
	outputs, err := json.Marshal(e.Outputs)
	if err != nil {
		return fmt.Errorf("RecordEvent.Marshal: %w", err)
	}
	if _, err := b.ExecContext(ctx, `insert into event(run_id,dataset,key,tile,status,message,outputs,updated) values($1,$2,$3,$4,$5,$6,$7,$8)
		on conflict (run_id,dataset,key,tile) do update set status=excluded.status, message=excluded.message, outputs=excluded.outputs, updated=excluded.updated`,
		e.RunID, e.Dataset.String(), e.Key, e.Tile, e.Status, e.Message, string(outputs), time.Now().UTC()); err != nil {
		return fmt.Errorf("RecordEvent.exec: %w", err)
	}
	return nil
}

// Events implements JournalBackend
func (b Backend) Events(ctx context.Context, runID string) ([]db.Event, error) {
	rows, err := b.QueryContext(ctx, "select run_id,dataset,key,tile,status,message,outputs,updated from event where run_id=$1 order by dataset, key, tile", runID)
	if err != nil {
		return nil, fmt.Errorf("Events.QueryContext: %w", err)
	}
	defer rows.Close()
	events := make([]db.Event, 0)
	for rows.Next() {
		var e db.Event
		var dataset, outputs string
		if err := rows.Scan(&e.RunID, &dataset, &e.Key, &e.Tile, &e.Status, &e.Message, &outputs, &e.Updated); err != nil {
			return nil, fmt.Errorf("Events.Scan: %w", err)
		}
		if e.Dataset, err = common.DatasetString(dataset); err != nil {
			return nil, fmt.Errorf("Events: %w", err)
		}
		if err := json.Unmarshal([]byte(outputs), &e.Outputs); err != nil {
			return nil, fmt.Errorf("Events.Unmarshal: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Events.rows.err: %w", err)
	}
	return events, nil
}
