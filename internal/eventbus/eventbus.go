// Package eventbus is a typed pub/sub used by Scanner, Pipeline, and
// Lifecycle to feed the API's WebSocket hub: a multi-subscriber
// broadcast channel, since the engine pushes events rather than
// waiting to be polled.
package eventbus

import (
	"sync"
)

// EventType identifies the shape of an Event's Payload.
type EventType string

const (
	EventScanProgress          EventType = "scan_progress"
	EventJobProgress           EventType = "job_progress"
	EventJobComplete           EventType = "job_complete"
	EventJobFailed             EventType = "job_failed"
	EventModelDownloadProgress EventType = "model_download_progress"
	EventModelDownloadComplete EventType = "model_download_complete"
	EventModelDownloadError    EventType = "model_download_error"
	EventConsistencyRepair     EventType = "consistency_repair"
	EventError                 EventType = "error"
)

// Event is one message published onto the bus. Payload is whatever
// JSON-serializable shape the event type calls for (e.g.
// JobProgressPayload); handlers type-switch or re-marshal it.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// JobProgressPayload is the payload for EventJobProgress.
type JobProgressPayload struct {
	ItemID   string  `json:"item_id"`
	JobID    string  `json:"job_id"`
	Stage    string  `json:"stage"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`
}

// JobCompletePayload is the payload for EventJobComplete.
type JobCompletePayload struct {
	ItemID string `json:"item_id"`
	JobID  string `json:"job_id"`
}

// JobFailedPayload is the payload for EventJobFailed.
type JobFailedPayload struct {
	ItemID    string `json:"item_id"`
	JobID     string `json:"job_id"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

// ScanProgressPayload is the payload for EventScanProgress.
type ScanProgressPayload struct {
	LibraryID    string `json:"library_id"`
	FilesFound   int    `json:"files_found"`
	FilesNew     int    `json:"files_new"`
	FilesChanged int    `json:"files_changed"`
	FilesDeleted int    `json:"files_deleted"`
	Done         bool   `json:"done"`
}

// ConsistencyRepairPayload is the payload for EventConsistencyRepair.
type ConsistencyRepairPayload struct {
	ItemsRequeued       int `json:"items_requeued"`
	JobsMarkedLost      int `json:"jobs_marked_lost"`
	StaleArtifactsFound int `json:"stale_artifacts_found"`
	OrphanFilesDeleted  int `json:"orphan_files_deleted"`
	TempFilesPurged     int `json:"temp_files_purged"`
}

// subscriberBuffer bounds how many undelivered events a slow
// subscriber may queue before being dropped, so one stalled WebSocket
// writer can never block publishers (the event loop goroutine).
const subscriberBuffer = 256

// Subscription is a single subscriber's event channel, returned by
// Subscribe. Call Unsubscribe when the consumer (e.g. a closed
// WebSocket connection) goes away.
type Subscription struct {
	id     uint64
	ch     chan Event
	topics map[EventType]bool // nil means "all topics"
	bus    *Bus
}

// Events returns the channel this subscription receives on. The
// channel is closed when Unsubscribe is called or the Bus is closed.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Unsubscribe removes this subscription from the bus and closes its channel.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id)
}

// Bus is a fan-out broadcaster: every Publish call is delivered, in
// emission order, to every current subscriber's channel. Slow
// subscribers drop events rather than block publishers.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription
	closed bool
}

// New creates an empty event bus.
func New() *Bus {
	return &Bus{subs: make(map[uint64]*Subscription)}
}

// Subscribe registers a new subscriber. If topics is empty, the
// subscriber receives every event type.
func (b *Bus) Subscribe(topics ...EventType) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	var filter map[EventType]bool
	if len(topics) > 0 {
		filter = make(map[EventType]bool, len(topics))
		for _, t := range topics {
			filter[t] = true
		}
	}

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		ch:     make(chan Event, subscriberBuffer),
		topics: filter,
		bus:    b,
	}
	b.subs[sub.id] = sub
	return sub
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// Publish delivers ev to every subscriber interested in its type. A
// subscriber whose buffer is full has the event dropped for it rather
// than blocking the publisher — the event stream is progress
// telemetry, not a guaranteed-delivery log.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if sub.topics != nil && !sub.topics[ev.Type] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Close shuts down the bus, closing every subscriber channel. No
// further Publish calls are delivered.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
