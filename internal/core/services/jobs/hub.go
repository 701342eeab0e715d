package jobs

import (
	"sync"

	"github.com/lcalzada-xor/cvetrack/internal/core/domain"
)

// subscriberBuffer bounds how far a slow consumer may lag before it is
// dropped. The producer never blocks on subscribers.
const subscriberBuffer = 64

type subscriber struct {
	ch     chan domain.JobLogEntry
	closed bool
}

// Hub fans job log entries out to live subscribers. Each subscriber owns an
// independent cursor starting at subscription time; disconnects never affect
// the producer or other subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[int64]map[*subscriber]bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[int64]map[*subscriber]bool)}
}

// closeLocked closes a subscriber channel exactly once. Callers hold h.mu.
func (h *Hub) closeLocked(jobID int64, sub *subscriber) {
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
	if set, ok := h.subs[jobID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, jobID)
		}
	}
}

// Subscribe attaches a new consumer to a job's log stream. The returned
// cancel function is idempotent and closes the channel.
func (h *Hub) Subscribe(jobID int64) (<-chan domain.JobLogEntry, func()) {
	sub := &subscriber{ch: make(chan domain.JobLogEntry, subscriberBuffer)}

	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[*subscriber]bool)
	}
	h.subs[jobID][sub] = true
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		h.closeLocked(jobID, sub)
		h.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish delivers an entry to every subscriber of the job. A subscriber
// whose buffer is full is dropped rather than blocking the pipeline.
func (h *Hub) Publish(entry domain.JobLogEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[entry.JobID] {
		select {
		case sub.ch <- entry:
		default:
			h.closeLocked(entry.JobID, sub)
		}
	}
}

// CloseJob ends the stream for all subscribers of a finished job.
func (h *Hub) CloseJob(jobID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[jobID] {
		h.closeLocked(jobID, sub)
	}
}

// SubscriberCount reports the live subscribers for a job.
func (h *Hub) SubscriberCount(jobID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}
