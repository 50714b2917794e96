// Package logbus is the in-memory fan-out channel carrying structured log
// events for pipeline runs to any number of SSE subscribers.
package logbus

import (
	"sync"
	"time"
)

// Level is the severity of a log event.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Event is one structured log line from a run. Progress fields are optional;
// consumers compute percentages client-side. A terminal marker with Complete
// set is appended when the worker finishes cleanup.
type Event struct {
	RunID           int64     `json:"run_id"`
	Level           Level     `json:"level,omitempty"`
	Message         string    `json:"message,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Step            string    `json:"step,omitempty"`
	ProgressCurrent int       `json:"progress_current,omitempty"`
	ProgressTotal   int       `json:"progress_total,omitempty"`
	CurrentTerm     string    `json:"current_term,omitempty"`
	Complete        bool      `json:"complete,omitempty"`
}

// subscriberBuffer bounds each subscriber's channel. Bursts beyond it drop
// the oldest queued event: losing log lines is preferable to stalling the
// pipeline worker.
const subscriberBuffer = 256

type subscriber struct {
	id    uint64
	runID int64
	ch    chan Event
}

// Bus fans events out to subscribers. One bus serves one project; subscribers
// filter on run id. Publish never blocks.
type Bus struct {
	mu          sync.Mutex
	subscribers []*subscriber
	nextID      uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Publish delivers an event to every subscriber watching its run. Slow
// consumers lose their oldest queued event instead of blocking the producer.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subscribers {
		if sub.runID != e.RunID {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			// Buffer full: evict the oldest, then retry once.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- e:
			default:
			}
		}
	}
}

// Complete appends the terminal marker for a run. Idempotent from the
// consumer's perspective: every subscriber sees at least one marker.
func (b *Bus) Complete(runID int64) {
	b.Publish(Event{RunID: runID, Complete: true, Timestamp: time.Now().UTC()})
}

// Subscribe registers a watcher for one run's events and returns the event
// channel plus an unsubscribe function. The channel is closed on unsubscribe.
func (b *Bus) Subscribe(runID int64) (<-chan Event, func()) {
	sub := &subscriber{
		runID: runID,
		ch:    make(chan Event, subscriberBuffer),
	}

	b.mu.Lock()
	b.nextID++
	sub.id = b.nextID
	b.subscribers = append(b.subscribers, sub)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, existing := range b.subscribers {
			if existing.id == sub.id {
				b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
				close(sub.ch)
				break
			}
		}
	}
	return sub.ch, unsubscribe
}

// SubscriberCount reports the number of active subscribers (introspection).
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}
