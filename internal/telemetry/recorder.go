// Package telemetry provides a fire-and-forget recorder for submission
// outcomes. Recording never blocks the caller: when the buffer is full the
// event is dropped and counted.
package telemetry

import (
	"log"
	"sync/atomic"
	"time"
)

// Event is one observational record about a submission.
type Event struct {
	Kind   string
	UserID int64
	QuizID int64
	Detail string
	At     time.Time
}

// Event kinds emitted by the submission path.
const (
	KindSubmissionAccepted  = "submission_accepted"
	KindSubmissionRejected  = "submission_rejected"
	KindDuplicateSubmission = "duplicate_submission"
	KindRecomputeFailed     = "recompute_failed"
	KindInteractionsSkipped = "interactions_skipped"
)

// Recorder consumes events on a single goroutine and writes them to the log.
type Recorder struct {
	events  chan Event
	done    chan struct{}
	dropped atomic.Uint64
}

// NewRecorder starts a recorder with the given buffer size.
func NewRecorder(buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 64
	}
	r := &Recorder{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go r.consume()
	return r
}

// Record enqueues an event without blocking. It reports whether the event
// was accepted; a full buffer drops the event.
func (r *Recorder) Record(event Event) bool {
	if event.At.IsZero() {
		event.At = time.Now()
	}
	select {
	case r.events <- event:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Dropped reports how many events were discarded under backpressure.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stops the consumer after draining buffered events.
func (r *Recorder) Close() {
	close(r.events)
	<-r.done
}

func (r *Recorder) consume() {
	defer close(r.done)
	for event := range r.events {
		if event.Detail != "" {
			log.Printf("telemetry: %s user=%d quiz=%d detail=%q", event.Kind, event.UserID, event.QuizID, event.Detail)
			continue
		}
		log.Printf("telemetry: %s user=%d quiz=%d", event.Kind, event.UserID, event.QuizID)
	}
}
