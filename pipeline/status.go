package pipeline

import (
	"sort"
	"sync"

	db "github.com/floodsnet/floodprep/interface/database"
)

// Snapshot is the state of a run
type Snapshot struct {
	RunID  string     `json:"run_id"`
	Tasks  []db.Task  `json:"tasks"`
	Events []db.Event `json:"events"`
	// Counts of the events per status
	Counts map[string]int `json:"counts"`
}

// status keeps the state of the run in memory
type status struct {
	mu     sync.Mutex
	runID  string
	tasks  map[string]db.Task
	events map[string]db.Event
}

func newStatus(runID string) *status {
	return &status{
		runID:  runID,
		tasks:  map[string]db.Task{},
		events: map[string]db.Event{},
	}
}

func (s *status) setTask(t db.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.Handle] = t
}

func (s *status) setEvent(e db.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.Dataset.String()+"/"+eventID(e)] = e
}

func eventID(e db.Event) string {
	if e.Tile == "" {
		return e.Key
	}
	return e.Key + "_" + e.Tile
}

// snapshot returns a copy of the state, sorted
func (s *status) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{RunID: s.runID, Counts: map[string]int{}}
	for _, t := range s.tasks {
		snap.Tasks = append(snap.Tasks, t)
	}
	for _, e := range s.events {
		snap.Events = append(snap.Events, e)
		snap.Counts[e.Status.String()]++
	}
	sort.Slice(snap.Tasks, func(i, j int) bool { return snap.Tasks[i].Name < snap.Tasks[j].Name })
	sort.Slice(snap.Events, func(i, j int) bool {
		if snap.Events[i].Dataset != snap.Events[j].Dataset {
			return snap.Events[i].Dataset < snap.Events[j].Dataset
		}
		return eventID(snap.Events[i]) < eventID(snap.Events[j])
	})
	return snap
}

// find returns the events of the key (all the tiles of the key) or of the event id
func (s *status) find(key string) []db.Event {
	var events []db.Event
	for _, e := range s.snapshot().Events {
		if e.Key == key || eventID(e) == key {
			events = append(events, e)
		}
	}
	return events
}
