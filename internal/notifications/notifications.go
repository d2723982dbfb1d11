// Package notifications is the ambient event-notification layer:
// bundle/publication/promotion/release lifecycle events are written to
// an in-process docker/go-events queue and fanned out to sinks (by
// default, a structured-logging sink). It has no analogue in
// original_source — the reference implementation doesn't notify
// anything — but is grounded on the teacher's own
// registry/notifications package (events.Sink, events.Queue, the
// actor/source/target envelope shape), generalized from container
// image push/pull/delete events to this repository's publish/bundle/
// promote/release events.
package notifications

import (
	"time"

	events "github.com/docker/go-events"
	"github.com/sirupsen/logrus"

	"github.com/inflatable-cookie/convergence-sub001/internal/dcontext"
)

// Event types emitted over the lifetime of a repository.
const (
	EventPublicationCreated = "publication.created"
	EventBundleCreated      = "bundle.created"
	EventBundleApproved     = "bundle.approved"
	EventBundlePromoted     = "bundle.promoted"
	EventReleaseCreated     = "release.created"
)

// Event is one notification record. Subject holds the primary
// identifier the event concerns (publication, bundle, or release id).
type Event struct {
	Type      string         `json:"type"`
	RepoID    string         `json:"repo_id"`
	Subject   string         `json:"subject"`
	Actor     string         `json:"actor"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Broadcaster fans events out to an underlying events.Sink via an
// events.Queue, so producers never block on slow sinks.
type Broadcaster struct {
	queue events.Sink
}

// NewBroadcaster wraps sink in an async queue.
func NewBroadcaster(sink events.Sink) *Broadcaster {
	return &Broadcaster{queue: events.NewQueue(sink)}
}

// Publish enqueues ev, logging (not failing the caller) on write error.
func (b *Broadcaster) Publish(ev Event) {
	if b == nil {
		return
	}
	if err := b.queue.Write(ev); err != nil {
		dcontext.GetLogger(dcontext.Background()).WithError(err).Error("failed to enqueue event")
	}
}

// Close drains and closes the underlying queue.
func (b *Broadcaster) Close() error {
	if b == nil {
		return nil
	}
	return b.queue.Close()
}

// LoggingSink is an events.Sink that writes each event as a structured
// log line via internal/dcontext's logrus-backed logger, mirroring the
// teacher's notifications.NewSink pattern, generalized from the HTTP
// endpoint sink to a single in-process sink (this server has no fanout
// webhook registry).
type LoggingSink struct{}

// Write implements events.Sink.
func (LoggingSink) Write(event events.Event) error {
	ev, ok := event.(Event)
	if !ok {
		return nil
	}
	logger := dcontext.GetLogger(dcontext.Background())
	fields := map[string]any{
		"event_type": ev.Type,
		"repo_id":    ev.RepoID,
		"subject":    ev.Subject,
		"actor":      ev.Actor,
	}
	for k, v := range ev.Fields {
		fields[k] = v
	}
	logger.WithFields(toLogrusFields(fields)).Info("repository event")
	return nil
}

// Close implements events.Sink.
func (LoggingSink) Close() error { return nil }
