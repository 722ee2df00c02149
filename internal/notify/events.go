// Package notify carries job lifecycle events to in-process readers and an
// optional webhook.
package notify

import (
	"sync"
	"time"
)

// Name identifies a lifecycle event. Names are part of the webhook contract.
type Name string

const (
	JobStarted       Name = "job_started"
	ChapterStarted   Name = "chapter_started"
	ChapterCompleted Name = "chapter_completed"
	ChapterFailed    Name = "chapter_failed"
	JobCompleted     Name = "job_completed"
	JobPartial       Name = "job_partial"
	JobFailed        Name = "job_failed"
	QueuePaused      Name = "queue_paused"
	QueueResumed     Name = "queue_resumed"
)

// Event is one sequenced lifecycle message.
type Event struct {
	Seq             int64     `json:"seq"`
	Name            Name      `json:"event"`
	Timestamp       time.Time `json:"timestamp"`
	JobID           string    `json:"job_id,omitempty"`
	Title           string    `json:"title,omitempty"`
	Author          string    `json:"author,omitempty"`
	Chapter         int       `json:"chapter,omitempty"`
	ChapterTitle    string    `json:"chapter_title,omitempty"`
	OutputPath      string    `json:"output_path,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	Error           string    `json:"error,omitempty"`
	Reason          string    `json:"reason,omitempty"`
}

// Terminal reports whether e ends a job.
func (e Event) Terminal() bool {
	return e.Name == JobCompleted || e.Name == JobPartial || e.Name == JobFailed
}

// Publisher accepts events.
type Publisher interface {
	Publish(Event) Event
}

// Bus stores recent events and provides incremental reads.
type Bus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
	subs      []func(Event)
}

// NewBus creates a bounded in-memory event buffer.
func NewBus(maxEvents int) *Bus {
	if maxEvents <= 0 {
		maxEvents = 500
	}
	return &Bus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Subscribe registers fn to receive every published event, after the event
// is stored. fn runs on the publishing goroutine.
func (b *Bus) Subscribe(fn func(Event)) {
	b.mu.Lock()
	b.subs = append(b.subs, fn)
	b.mu.Unlock()
}

// Publish appends one event and assigns sequence and timestamp.
func (b *Bus) Publish(event Event) Event {
	b.mu.Lock()
	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}
	subs := b.subs
	b.mu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *Bus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}
	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// ForJob returns the stored events of one job.
func (b *Bus) ForJob(jobID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, event := range b.events {
		if event.JobID == jobID {
			out = append(out, event)
		}
	}
	return out
}
