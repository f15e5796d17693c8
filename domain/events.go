package domain

import (
	"sync/atomic"
	"time"
)

const (
	EventTaskCreated       = "task-created"
	EventTaskUpdated       = "task-updated"
	EventTaskDeleted       = "task-deleted"
	EventTaskStatusUpdated = "task-status-updated"
)

// Event is a board mutation fanned out to the owning account's sessions.
// Deleted events still carry the last known record so clients can remove
// the card without a refetch.
type Event struct {
	Type      string `json:"type"`
	TaskID    string `json:"taskId"`
	Task      *Task  `json:"task,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

var lastEventTimestamp int64

// nextEventTimestamp returns a strictly increasing millisecond timestamp so
// events for one account always carry the order their mutations committed in,
// even when two commits land within the same millisecond.
func nextEventTimestamp() int64 {
	for {
		now := time.Now().UnixMilli()
		last := atomic.LoadInt64(&lastEventTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastEventTimestamp, last, now) {
			return now
		}
	}
}

// NewEvent stamps a fan-out event for the given mutation.
func NewEvent(eventType string, task Task) Event {
	return Event{
		Type:      eventType,
		TaskID:    task.ID,
		Task:      &task,
		Timestamp: nextEventTimestamp(),
	}
}
