package common

//go:generate go run github.com/dmarkham/enumer -json -sql -type TaskState -trimprefix Task
//go:generate go run github.com/dmarkham/enumer -json -sql -type EventStatus -trimprefix Event

// TaskState is the state of a remote acquisition task
type TaskState int

const (
	TaskQueued TaskState = iota
	TaskRunning
	TaskCompleted
	TaskFailed
)

// Terminal returns true if no transition can leave the state
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// CanTransition returns true if the transition s -> to is allowed.
// Queued may jump directly to a terminal state when a poll misses the running phase.
func (s TaskState) CanTransition(to TaskState) bool {
	switch s {
	case TaskQueued:
		return to != TaskQueued
	case TaskRunning:
		return to != TaskQueued
	}
	return false
}

// EventStatus is the outcome of the processing of one event
type EventStatus int

const (
	EventDone    EventStatus = iota // all the outputs are available
	EventSkipped                    // nothing to do, outputs already available
	EventDropped                    // no primary layer
	EventFailed                     // an event-scoped error occurred
)
