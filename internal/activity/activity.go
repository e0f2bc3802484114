// Package activity records the mutations performed through the console.
// Events are published to AMQP when a broker is configured, appended to
// the sqlite journal when it is not, or only logged.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gestionale/internal/listing"
	"gestionale/internal/log"
)

// Event is one create, update or delete attempt.
type Event struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	SessionID  string    `json:"session_id"`
	User       string    `json:"user"`
	Resource   string    `json:"resource"`
	Operation  string    `json:"operation"`
	RecordID   string    `json:"record_id,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

// Actor identifies who performed a mutation.
type Actor struct {
	SessionID string
	User      string
}

// NewEvent stamps a new event with a fresh id and the current time.
func NewEvent(actor Actor, resource string, op listing.Op, recordID string, err error) Event {
	ev := Event{
		ID:         uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		SessionID:  actor.SessionID,
		User:       actor.User,
		Resource:   resource,
		Operation:  string(op),
		RecordID:   recordID,
		Success:    err == nil,
	}
	if err != nil {
		ev.Error = err.Error()
	}
	return ev
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes and checks an event read from the queue.
func EventFromJSON(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	if ev.ID == "" || ev.Resource == "" || ev.Operation == "" {
		return Event{}, fmt.Errorf("incomplete activity event %q", ev.ID)
	}
	return ev, nil
}

// Recorder stores or forwards events.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Journal is the durable event store.
type Journal interface {
	AppendActivity(ctx context.Context, ev Event) error
}

// LogRecorder only logs events.
type LogRecorder struct {
	logger *log.Logger
}

func NewLogRecorder(logger *log.Logger) *LogRecorder {
	return &LogRecorder{logger: logger.WithComponent(log.ComponentActivity)}
}

func (r *LogRecorder) Record(ctx context.Context, ev Event) error {
	r.logger.InfoContext(ctx, "Console activity",
		log.FieldResource, ev.Resource,
		log.FieldOperation, ev.Operation,
		log.FieldRecordID, ev.RecordID,
		log.FieldUser, ev.User,
		log.FieldSuccess, ev.Success)
	return nil
}

// JournalRecorder appends events straight to the journal.
type JournalRecorder struct {
	journal Journal
}

func NewJournalRecorder(j Journal) *JournalRecorder {
	return &JournalRecorder{journal: j}
}

func (r *JournalRecorder) Record(ctx context.Context, ev Event) error {
	if err := r.journal.AppendActivity(ctx, ev); err != nil {
		return fmt.Errorf("append activity %s: %w", ev.ID, err)
	}
	return nil
}

// Hook adapts rec into a listing mutation hook for one actor. Recording
// failures are logged and never reach the user.
func Hook(rec Recorder, actor Actor, logger *log.Logger) func(ctx context.Context, resource string, op listing.Op, id string, err error) {
	logger = logger.WithComponent(log.ComponentActivity)
	return func(ctx context.Context, resource string, op listing.Op, id string, err error) {
		ev := NewEvent(actor, resource, op, id, err)
		if rerr := rec.Record(ctx, ev); rerr != nil {
			logger.WarnContext(ctx, "Failed to record activity",
				log.FieldResource, resource,
				log.FieldOperation, string(op),
				log.FieldError, rerr)
		}
	}
}
