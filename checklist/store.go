package checklist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealflow/outbox"
)

// Mutation edits a locked checklist in place. Returning an error aborts the
// write; a non-empty Event is enqueued in the same transaction.
type Mutation func(c *Checklist) (outbox.Event, error)

// Store persists one checklist per listing.
type Store interface {
	// GetOrCreate returns the stored checklist, inserting seed if none exists.
	GetOrCreate(ctx context.Context, seed Checklist) (Checklist, error)
	// Update runs mutate against the current checklist under a row lock.
	Update(ctx context.Context, seed Checklist, mutate Mutation) (Checklist, error)
	// Load and Save are the unlocked whole-document path kept for migration
	// tooling. Interleaved Load/Save cycles can drop each other's changes.
	Load(ctx context.Context, listingID string) (Checklist, error)
	Save(ctx context.Context, c Checklist) error
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

const selectChecklistSQL = `
SELECT listing_id::text, categories, buyer_items, seller_items, broker_items, last_updated_by, updated_at
FROM pre_close_checklists
WHERE listing_id = $1`

const insertChecklistSQL = `
INSERT INTO pre_close_checklists (listing_id, categories, last_updated_by, updated_at)
VALUES ($1, $2::jsonb, $3, $4)
ON CONFLICT (listing_id) DO NOTHING`

const updateChecklistSQL = `
UPDATE pre_close_checklists
SET categories = $2::jsonb,
    buyer_items = NULL,
    seller_items = NULL,
    broker_items = NULL,
    last_updated_by = $3,
    updated_at = $4
WHERE listing_id = $1`

func (s *PGStore) GetOrCreate(ctx context.Context, seed Checklist) (Checklist, error) {
	if seed.ListingID == "" {
		return Checklist{}, ErrInvalidRequest
	}
	if err := insertSeed(ctx, s.pool, seed); err != nil {
		return Checklist{}, err
	}
	return scanChecklist(s.pool.QueryRow(ctx, selectChecklistSQL, seed.ListingID))
}

func (s *PGStore) Update(ctx context.Context, seed Checklist, mutate Mutation) (Checklist, error) {
	if seed.ListingID == "" {
		return Checklist{}, ErrInvalidRequest
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Checklist{}, fmt.Errorf("checklist: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertSeed(ctx, tx, seed); err != nil {
		return Checklist{}, err
	}

	current, err := scanChecklist(tx.QueryRow(ctx, selectChecklistSQL+" FOR UPDATE", seed.ListingID))
	if err != nil {
		return Checklist{}, err
	}

	event, err := mutate(&current)
	if err != nil {
		return Checklist{}, err
	}

	if err := writeChecklist(ctx, tx, current); err != nil {
		return Checklist{}, err
	}

	if event.Topic != "" && s.outbox != nil {
		if err := s.outbox.Enqueue(ctx, tx, event.Topic, event.Payload); err != nil {
			return Checklist{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Checklist{}, fmt.Errorf("checklist: commit tx: %w", err)
	}
	return current, nil
}

func (s *PGStore) Load(ctx context.Context, listingID string) (Checklist, error) {
	return scanChecklist(s.pool.QueryRow(ctx, selectChecklistSQL, listingID))
}

func (s *PGStore) Save(ctx context.Context, c Checklist) error {
	if c.ListingID == "" {
		return ErrInvalidRequest
	}
	body, err := json.Marshal(c.Categories)
	if err != nil {
		return fmt.Errorf("checklist: marshal: %w", err)
	}
	const upsertSQL = `
INSERT INTO pre_close_checklists (listing_id, categories, last_updated_by, updated_at)
VALUES ($1, $2::jsonb, $3, $4)
ON CONFLICT (listing_id) DO UPDATE
SET categories = EXCLUDED.categories,
    buyer_items = NULL,
    seller_items = NULL,
    broker_items = NULL,
    last_updated_by = EXCLUDED.last_updated_by,
    updated_at = EXCLUDED.updated_at`
	if _, err := s.pool.Exec(ctx, upsertSQL, c.ListingID, body, c.LastUpdatedBy, c.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("checklist: save: %w", err)
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertSeed(ctx context.Context, db execer, seed Checklist) error {
	body, err := json.Marshal(seed.Categories)
	if err != nil {
		return fmt.Errorf("checklist: marshal seed: %w", err)
	}
	if _, err := db.Exec(ctx, insertChecklistSQL, seed.ListingID, body, seed.LastUpdatedBy, seed.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("checklist: seed: %w", err)
	}
	return nil
}

func writeChecklist(ctx context.Context, tx pgx.Tx, c Checklist) error {
	body, err := json.Marshal(c.Categories)
	if err != nil {
		return fmt.Errorf("checklist: marshal: %w", err)
	}
	if _, err := tx.Exec(ctx, updateChecklistSQL, c.ListingID, body, c.LastUpdatedBy, c.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("checklist: update: %w", err)
	}
	return nil
}

// scanChecklist reads a row in either layout. Rows still in the legacy
// three-partition format are merged on read; the next write stores the
// unified form.
func scanChecklist(row pgx.Row) (Checklist, error) {
	var (
		c                           Checklist
		categories                  []byte
		buyerRaw, sellerRaw, broker []byte
		updatedAt                   time.Time
	)
	if err := row.Scan(&c.ListingID, &categories, &buyerRaw, &sellerRaw, &broker, &c.LastUpdatedBy, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Checklist{}, ErrNotFound
		}
		return Checklist{}, fmt.Errorf("checklist: scan: %w", err)
	}
	c.UpdatedAt = updatedAt.UTC()

	if !isNullJSON(categories) {
		if err := json.Unmarshal(categories, &c.Categories); err != nil {
			return Checklist{}, fmt.Errorf("checklist: decode: %w", err)
		}
		return c, nil
	}

	var parts Partitions
	var err error
	if parts.Buyer, err = decodeLegacyPartition(buyerRaw, PartyBuyer); err != nil {
		return Checklist{}, err
	}
	if parts.Seller, err = decodeLegacyPartition(sellerRaw, PartySeller); err != nil {
		return Checklist{}, err
	}
	if parts.Broker, err = decodeLegacyPartition(broker, PartyBroker); err != nil {
		return Checklist{}, err
	}
	c.Categories = Merge(parts)
	return c, nil
}
