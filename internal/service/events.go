package service

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// Write event types.
const (
	EventNodeCreated     = "node.created"
	EventNodeUpdated     = "node.updated"
	EventNodeMerged      = "node.merged"
	EventNodeDeleted     = "node.deleted"
	EventEdgeCreated     = "edge.created"
	EventEdgeUpdated     = "edge.updated"
	EventEdgeDeleted     = "edge.deleted"
	EventNodesBatched    = "node.batch_created"
	EventEdgesBatched    = "edge.batch_created"
	EventTxnCommitted    = "transaction.committed"
	EventOntologyChanged = "ontology.changed"
)

// EventSink receives write events. The WebSocket hub implements it.
type EventSink interface {
	Publish(eventType string, data json.RawMessage)
}

// event is a single write notification waiting to be published.
type event struct {
	Type string
	Data any
}

// EventWorker buffers write events and publishes them from a single goroutine
// so writers never block on slow subscribers.
type EventWorker struct {
	sink EventSink
	log  *logrus.Logger
	jobs chan event
}

// NewEventWorker creates an EventWorker with the given queue capacity.
func NewEventWorker(sink EventSink, log *logrus.Logger, queueSize int) *EventWorker {
	if queueSize <= 0 {
		queueSize = 1000
	}

	return &EventWorker{
		sink: sink,
		log:  log,
		jobs: make(chan event, queueSize),
	}
}

// Enqueue adds an event. Non-blocking; drops the event if the queue is full.
func (w *EventWorker) Enqueue(eventType string, data any) {
	select {
	case w.jobs <- event{Type: eventType, Data: data}:
	default:
		w.log.WithField("event", eventType).Warn("event queue full, dropping event")
	}
}

// Run publishes events until the context is cancelled, then drains remaining ones.
func (w *EventWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		case ev := <-w.jobs:
			w.process(ev)
		}
	}
}

func (w *EventWorker) drain() {
	for {
		select {
		case ev := <-w.jobs:
			w.process(ev)
		default:
			return
		}
	}
}

func (w *EventWorker) process(ev event) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		w.log.WithError(err).WithField("event", ev.Type).Warn("encoding event failed")
		return
	}

	w.sink.Publish(ev.Type, data)
}

// emit queues a write event when a sink is configured.
func (d *Database) emit(eventType string, data any) {
	d.mu.RLock()
	w := d.events
	d.mu.RUnlock()

	if w != nil {
		w.Enqueue(eventType, data)
	}
}
