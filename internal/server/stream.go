package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// keepAliveInterval is the period of SSE comment pings on idle streams.
var keepAliveInterval = 30 * time.Second

// subscriberBuffer is the number of events a slow client may lag behind
// before events are dropped for it.
const subscriberBuffer = 16

// ProgressEvent is a snapshot of a job's progress sent to stream clients.
type ProgressEvent struct {
	JobID       string    `json:"jobId"`
	State       JobState  `json:"state"`
	Steps       int       `json:"steps"`
	Evaluations int       `json:"evaluations"`
	Value       float64   `json:"value"`
	Timestamp   time.Time `json:"timestamp"`
}

func progressEvent(j Job) ProgressEvent {
	return ProgressEvent{
		JobID:       j.ID,
		State:       j.State,
		Steps:       j.Steps,
		Evaluations: j.Evaluations,
		Value:       j.Value,
		Timestamp:   time.Now(),
	}
}

// finished reports whether no further events follow this one.
func (e ProgressEvent) finished() bool {
	return e.State == StateCompleted || e.State == StateFailed || e.State == StateCancelled
}

// topic is the subscriber set of one job and its latest event.
type topic struct {
	subs map[chan ProgressEvent]struct{}
	last *ProgressEvent
}

// EventBroadcaster fans job progress out to stream subscribers. Late
// subscribers first receive the job's latest event.
type EventBroadcaster struct {
	mu     sync.Mutex
	topics map[string]*topic
}

// NewEventBroadcaster creates an empty broadcaster.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{topics: make(map[string]*topic)}
}

func (eb *EventBroadcaster) topic(jobID string) *topic {
	t, ok := eb.topics[jobID]
	if !ok {
		t = &topic{subs: make(map[chan ProgressEvent]struct{})}
		eb.topics[jobID] = t
	}
	return t
}

// Subscribe registers a subscriber for a job. The returned function
// unsubscribes and may be called more than once. The channel is closed on
// unsubscribe or when the job is closed.
func (eb *EventBroadcaster) Subscribe(jobID string) (<-chan ProgressEvent, func()) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan ProgressEvent, subscriberBuffer)
	t := eb.topic(jobID)
	t.subs[ch] = struct{}{}
	if t.last != nil {
		ch <- *t.last
	}
	slog.Debug("Stream client subscribed", "job_id", jobID, "clients", len(t.subs))

	return ch, func() { eb.unsubscribe(jobID, ch) }
}

func (eb *EventBroadcaster) unsubscribe(jobID string, ch chan ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	t, ok := eb.topics[jobID]
	if !ok {
		return
	}
	if _, ok := t.subs[ch]; ok {
		delete(t.subs, ch)
		close(ch)
	}
}

// Broadcast records ev as the job's latest event and sends it to every
// subscriber that has room for it.
func (eb *EventBroadcaster) Broadcast(ev ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	t := eb.topic(ev.JobID)
	t.last = &ev
	for ch := range t.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("Stream client lagging, event dropped", "job_id", ev.JobID, "steps", ev.Steps)
		}
	}
}

// Close closes all subscribers of a job and forgets its latest event.
func (eb *EventBroadcaster) Close(jobID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	t, ok := eb.topics[jobID]
	if !ok {
		return
	}
	for ch := range t.subs {
		close(ch)
	}
	delete(eb.topics, jobID)
}

// handleJobStream streams a job's progress as server-sent events until the
// job finishes or the client disconnects.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, unsubscribe := s.jobManager.broadcaster.Subscribe(jobID)
	defer unsubscribe()

	send := func(ev ProgressEvent) bool {
		if err := writeSSEEvent(w, ev); err != nil {
			slog.Debug("Stream write failed", "job_id", jobID, "error", err)
			return false
		}
		flusher.Flush()
		return !ev.finished()
	}
	if !send(progressEvent(job)) {
		return
	}

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok || !send(ev) {
				return
			}
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes ev as one server-sent event named after the job
// state, with the step number as event ID.
func writeSSEEvent(w io.Writer, ev ProgressEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Steps, ev.State, data)
	return err
}
