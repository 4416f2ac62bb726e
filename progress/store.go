package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealflow/outbox"
	"dealflow/steps"
)

// Mutation edits a locked record in place. Returning an error aborts the
// write; a non-empty event is enqueued in the same transaction.
type Mutation func(r *Record) (outbox.Event, error)

// Store persists progress records and answers the auxiliary questions the
// evaluator needs.
type Store interface {
	GetOrCreate(ctx context.Context, role steps.Role, ownerID string) (Record, error)
	Update(ctx context.Context, role steps.Role, ownerID string, mutate Mutation) (Record, error)
	HasSentMessage(ctx context.Context, senderID, listingID string) (bool, error)
	CountBuyers(ctx context.Context, listingID string) (int, error)
}

// OutboxWriter enqueues notifications inside a transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

type PGStore struct {
	pool   *pgxpool.Pool
	outbox OutboxWriter
}

func NewPGStore(pool *pgxpool.Pool, outbox OutboxWriter) *PGStore {
	return &PGStore{pool: pool, outbox: outbox}
}

const progressColumns = `role, owner_id::text, selected_listing_id::text, current_step, completed_steps, created_at, updated_at`

const seedProgressSQL = `
INSERT INTO transaction_progress (role, owner_id)
VALUES ($1, $2::uuid)
ON CONFLICT (role, owner_id) DO NOTHING`

func (s *PGStore) GetOrCreate(ctx context.Context, role steps.Role, ownerID string) (Record, error) {
	if _, err := s.pool.Exec(ctx, seedProgressSQL, role, ownerID); err != nil {
		return Record{}, fmt.Errorf("progress: seed: %w", err)
	}
	rec, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM transaction_progress WHERE role = $1 AND owner_id = $2::uuid`,
		role, ownerID))
	if err != nil {
		return Record{}, fmt.Errorf("progress: get: %w", err)
	}
	return rec, nil
}

func (s *PGStore) Update(ctx context.Context, role steps.Role, ownerID string, mutate Mutation) (Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("progress: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, seedProgressSQL, role, ownerID); err != nil {
		return Record{}, fmt.Errorf("progress: seed: %w", err)
	}

	rec, err := scanRecord(tx.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM transaction_progress WHERE role = $1 AND owner_id = $2::uuid FOR UPDATE`,
		role, ownerID))
	if err != nil {
		return Record{}, fmt.Errorf("progress: lock: %w", err)
	}

	event, err := mutate(&rec)
	if err != nil {
		return Record{}, err
	}

	const updateSQL = `
UPDATE transaction_progress
SET selected_listing_id = $3::uuid,
    current_step = $4,
    completed_steps = $5,
    updated_at = now()
WHERE role = $1 AND owner_id = $2::uuid
RETURNING ` + progressColumns

	var listing any
	if rec.HasSelectedListing() {
		listing = *rec.SelectedListingID
	}
	completed := rec.CompletedSteps
	if completed == nil {
		completed = []int{}
	}
	rec, err = scanRecord(tx.QueryRow(ctx, updateSQL, role, ownerID, listing, rec.CurrentStep, completed))
	if err != nil {
		return Record{}, fmt.Errorf("progress: update: %w", err)
	}

	if event.Topic != "" && s.outbox != nil {
		if err := s.outbox.Enqueue(ctx, tx, event.Topic, event.Payload); err != nil {
			return Record{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("progress: commit tx: %w", err)
	}
	return rec, nil
}

// HasSentMessage reports whether senderID has messaged about the listing, or
// about anything when listingID is empty.
func (s *PGStore) HasSentMessage(ctx context.Context, senderID, listingID string) (bool, error) {
	const q = `
SELECT EXISTS (
	SELECT 1 FROM messages
	WHERE sender_id = $1::uuid
	  AND ($2::uuid IS NULL OR listing_id = $2::uuid)
)`
	var listing any
	if listingID != "" {
		listing = listingID
	}
	var sent bool
	if err := s.pool.QueryRow(ctx, q, senderID, listing).Scan(&sent); err != nil {
		return false, fmt.Errorf("progress: message lookup: %w", err)
	}
	return sent, nil
}

// CountBuyers returns how many buyers currently have listingID selected.
func (s *PGStore) CountBuyers(ctx context.Context, listingID string) (int, error) {
	const q = `
SELECT count(*)
FROM transaction_progress
WHERE role = 'buyer' AND selected_listing_id = $1::uuid`
	var n int
	if err := s.pool.QueryRow(ctx, q, listingID).Scan(&n); err != nil {
		return 0, fmt.Errorf("progress: count buyers: %w", err)
	}
	return n, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.Role,
		&rec.OwnerID,
		&rec.SelectedListingID,
		&rec.CurrentStep,
		&rec.CompletedSteps,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("progress: record vanished: %w", err)
		}
		return Record{}, err
	}
	return rec, nil
}
