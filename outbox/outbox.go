// Package outbox appends notification events in the caller's transaction so
// delivery (email, inbox) can be done by a separate relay.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

const (
	TopicListingSelected = "progress.listing_selected"
	TopicStepCompleted   = "progress.step_completed"
	TopicDocumentUpload  = "progress.document_uploaded"
	TopicChecklistToggle = "checklist.item_toggled"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
)

// Message represents a transactional outbox entry.
type Message struct {
	ID        string
	Topic     string
	Payload   []byte
	Status    string
	Attempts  int
	CreatedAt time.Time
}

// Event is a notification to enqueue alongside a write. A zero Event means
// nothing to send.
type Event struct {
	Topic   string
	Payload map[string]any
}

// Querier is satisfied by pgxpool.Pool, pgx.Conn and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Writer enqueues outbox rows.
type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

// Enqueue inserts one pending message inside tx.
func (w *Writer) Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	if topic == "" {
		return fmt.Errorf("outbox: empty topic")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}
	const q = `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`
	if _, err := tx.Exec(ctx, q, topic, body); err != nil {
		return fmt.Errorf("outbox: enqueue %s: %w", topic, err)
	}
	return nil
}

// Claim locks up to limit undelivered messages, oldest first, skipping rows
// another relay already holds. q should be the relay's transaction so the
// locks last until Ack and commit.
func (w *Writer) Claim(ctx context.Context, q Querier, limit int) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := q.Query(ctx, `
		SELECT id::text, topic, payload, status, attempts, created_at
		FROM outbox
		WHERE status = 'pending'
		ORDER BY created_at ASC
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox: claim: %w", err)
	}
	defer rows.Close()

	out := make([]Message, 0, limit)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.Status, &m.Attempts, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("outbox: scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox: iterate: %w", err)
	}
	return out, nil
}

// Ack records one delivery attempt for a claimed message. Delivered messages
// become sent; the rest stay pending for the next claim.
func (w *Writer) Ack(ctx context.Context, tx pgx.Tx, id string, delivered bool) error {
	status := StatusPending
	if delivered {
		status = StatusSent
	}
	const q = `UPDATE outbox SET status = $2, attempts = attempts + 1 WHERE id = $1::uuid`
	if _, err := tx.Exec(ctx, q, id, status); err != nil {
		return fmt.Errorf("outbox: ack %s: %w", id, err)
	}
	return nil
}
