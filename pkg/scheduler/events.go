package scheduler

import "time"

// EventType names a scheduler lifecycle event.
type EventType string

const (
	EventEnqueued EventType = "enqueued"
	EventStarted  EventType = "started"
	EventFinished EventType = "finished"
	EventFailed   EventType = "failed"
	EventIdle     EventType = "idle"
)

// Event is emitted to the observer. Item is zero for EventIdle.
type Event struct {
	Type      EventType
	Item      WorkItem
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

// Observer receives scheduler events synchronously on the emitting goroutine.
type Observer func(Event)

// Observers fans events out in order.
func Observers(list ...Observer) Observer {
	return func(e Event) {
		for _, o := range list {
			if o != nil {
				o(e)
			}
		}
	}
}
