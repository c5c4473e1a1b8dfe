// Package audit records status transitions of matches and match requests.
//
// The trail is best-effort: a Sink accepts events and never reports back, so
// nothing that fails here can roll back or delay the transition it records.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gorm.io/datatypes"

	"github.com/oggyb/muzz-matchmaking/internal/db"
	"github.com/oggyb/muzz-matchmaking/internal/events"
	"github.com/oggyb/muzz-matchmaking/internal/observability"
	"github.com/oggyb/muzz-matchmaking/internal/repository"
)

const (
	EntityMatch        = "match"
	EntityMatchRequest = "match_request"
)

// Event is one transition.
type Event struct {
	EntityType  string         `json:"entity_type"`
	EntityID    string         `json:"entity_id"`
	FromStatus  string         `json:"from_status,omitempty"`
	ToStatus    string         `json:"to_status"`
	Reason      string         `json:"reason,omitempty"`
	TriggeredBy uint64         `json:"triggered_by,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// Sink is the fire-and-forget capability the engine writes to.
type Sink interface {
	Record(ctx context.Context, e Event)
}

// Writer is a backend that can fail. Wrap it in Async or Sync to get a Sink.
type Writer interface {
	Write(ctx context.Context, e Event) error
}

// StoreWriter appends to status_audit_records.
type StoreWriter struct {
	repo *repository.AuditRepository
}

func NewStoreWriter(repo *repository.AuditRepository) *StoreWriter {
	return &StoreWriter{repo: repo}
}

func (w *StoreWriter) Write(ctx context.Context, e Event) error {
	var meta datatypes.JSON
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
		meta = raw
	}
	return w.repo.Append(ctx, &db.StatusAuditRecord{
		EntityType:  e.EntityType,
		EntityID:    e.EntityID,
		FromStatus:  e.FromStatus,
		ToStatus:    e.ToStatus,
		Reason:      e.Reason,
		TriggeredBy: e.TriggeredBy,
		Metadata:    meta,
		CreatedAt:   e.OccurredAt,
	})
}

// PublisherWriter ships events to the broker under one routing key.
type PublisherWriter struct {
	pub        events.Publisher
	routingKey string
}

func NewPublisherWriter(pub events.Publisher, routingKey string) *PublisherWriter {
	return &PublisherWriter{pub: pub, routingKey: routingKey}
}

func (w *PublisherWriter) Write(ctx context.Context, e Event) error {
	return w.pub.Publish(ctx, w.routingKey, e)
}

// Multi writes to every writer and joins the failures.
type Multi []Writer

func (m Multi) Write(ctx context.Context, e Event) error {
	var errs []error
	for _, w := range m {
		if err := w.Write(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sync writes inline and logs failures.
type Sync struct {
	w   Writer
	log *slog.Logger
}

func NewSync(w Writer, log *slog.Logger) *Sync {
	if log == nil {
		log = slog.Default()
	}
	return &Sync{w: w, log: log}
}

func (s *Sync) Record(ctx context.Context, e Event) {
	write(ctx, s.w, s.log, stamp(e))
}

// Async queues events for a background writer. When the queue is full the
// event is dropped and counted.
type Async struct {
	w     Writer
	log   *slog.Logger
	queue chan Event

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsync(w Writer, size int, log *slog.Logger) *Async {
	if log == nil {
		log = slog.Default()
	}
	if size <= 0 {
		size = 1
	}
	a := &Async{
		w:     w,
		log:   log,
		queue: make(chan Event, size),
		done:  make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Record(_ context.Context, e Event) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		observability.IncAuditEvent("dropped")
		return
	}
	select {
	case a.queue <- stamp(e):
	default:
		observability.IncAuditEvent("dropped")
		a.log.Warn("audit queue full, event dropped",
			"entity_type", e.EntityType, "entity_id", e.EntityID, "to", e.ToStatus)
	}
}

// Close stops accepting events and waits until the queue is drained.
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}

func (a *Async) run() {
	defer close(a.done)
	for e := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		write(ctx, a.w, a.log, e)
		cancel()
	}
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}

func write(ctx context.Context, w Writer, log *slog.Logger, e Event) {
	if err := w.Write(ctx, e); err != nil {
		observability.IncAuditEvent("failed")
		log.Warn("audit write failed",
			"entity_type", e.EntityType, "entity_id", e.EntityID, "to", e.ToStatus, "err", err)
		return
	}
	observability.IncAuditEvent("written")
}

func stamp(e Event) Event {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	return e
}
