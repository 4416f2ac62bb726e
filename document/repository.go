package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrOwnerMissing signals a write without a buyer or seller owner.
	ErrOwnerMissing = errors.New("document: buyer or seller owner required")
)

const documentColumns = `id::text, type, category, operation_type, step_id, status, file_name, file_size,
	uploaded_at, downloaded_at, buyer_id::text, seller_id::text, listing_id::text, created_at`

// OutboxWriter enqueues notifications inside a transaction.
type OutboxWriter interface {
	Enqueue(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error
}

// Repository persists document metadata. File bytes live elsewhere.
type Repository struct {
	pool   *pgxpool.Pool
	outbox OutboxWriter
	now    func() time.Time
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

// WithOutbox makes RecordUpload enqueue an upload notification in the same
// transaction as the insert.
func (r *Repository) WithOutbox(w OutboxWriter) *Repository {
	r.outbox = w
	return r
}

// List returns documents matching the filter, oldest first.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Document, error) {
	where := []string{"1=1"}
	args := []any{}

	if filter.BuyerID != "" {
		where = append(where, fmt.Sprintf("buyer_id=$%d", len(args)+1))
		args = append(args, filter.BuyerID)
	}
	if filter.SellerID != "" {
		where = append(where, fmt.Sprintf("seller_id=$%d", len(args)+1))
		args = append(args, filter.SellerID)
	}
	if filter.ListingID != "" {
		where = append(where, fmt.Sprintf("listing_id=$%d", len(args)+1))
		args = append(args, filter.ListingID)
	}
	if filter.StepID != nil {
		where = append(where, fmt.Sprintf("step_id=$%d", len(args)+1))
		args = append(args, *filter.StepID)
	}
	if filter.Category != "" {
		where = append(where, fmt.Sprintf("category=$%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Type != "" {
		where = append(where, fmt.Sprintf("type=$%d", len(args)+1))
		args = append(args, filter.Type)
	}

	query := "SELECT " + documentColumns + " FROM documents WHERE " + strings.Join(where, " AND ") + " ORDER BY created_at ASC, id ASC"
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("document: list: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0, 16)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("document: scan: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("document: iterate: %w", err)
	}
	return docs, nil
}

// RecordUpload stores a completed upload row.
func (r *Repository) RecordUpload(ctx context.Context, params UploadParams) (Document, error) {
	if params.BuyerID == "" && params.SellerID == "" {
		return Document{}, ErrOwnerMissing
	}

	const insertSQL = `
		INSERT INTO documents (type, category, operation_type, step_id, status, file_name, file_size,
			uploaded_at, buyer_id, seller_id, listing_id)
		VALUES ($1, $2, 'UPLOAD', $3, 'COMPLETED', $4, $5, $6, $7::uuid, $8::uuid, $9::uuid)
		RETURNING ` + documentColumns

	var fileName, fileSize any
	if params.FileName != "" {
		fileName = params.FileName
	}
	if params.FileSize > 0 {
		fileSize = params.FileSize
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("document: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	doc, err := scanDocument(tx.QueryRow(ctx, insertSQL,
		params.Type,
		params.Category,
		params.StepID,
		fileName,
		fileSize,
		r.now().UTC(),
		nullableString(params.BuyerID),
		nullableString(params.SellerID),
		nullableString(params.ListingID),
	))
	if err != nil {
		return Document{}, fmt.Errorf("document: record upload: %w", err)
	}

	if r.outbox != nil && params.Topic != "" {
		payload := map[string]any{
			"document_id": doc.ID,
			"type":        doc.Type,
			"step_id":     params.StepID,
			"buyer_id":    params.BuyerID,
			"seller_id":   params.SellerID,
			"listing_id":  params.ListingID,
		}
		if err := r.outbox.Enqueue(ctx, tx, params.Topic, payload); err != nil {
			return Document{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Document{}, fmt.Errorf("document: commit upload: %w", err)
	}
	return doc, nil
}

// RecordDownload stamps DownloadedAt on the party's existing download row for
// the step, inserting the row on first download.
func (r *Repository) RecordDownload(ctx context.Context, params DownloadParams) (Document, error) {
	if params.BuyerID == "" && params.SellerID == "" {
		return Document{}, ErrOwnerMissing
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Document{}, fmt.Errorf("document: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := r.now().UTC()
	buyer := nullableString(params.BuyerID)
	seller := nullableString(params.SellerID)
	listing := nullableString(params.ListingID)

	const updateSQL = `
		UPDATE documents
		SET downloaded_at = $1
		WHERE id = (
			SELECT id FROM documents
			WHERE operation_type = 'DOWNLOAD'
			  AND type = $2
			  AND step_id = $3
			  AND buyer_id IS NOT DISTINCT FROM $4::uuid
			  AND seller_id IS NOT DISTINCT FROM $5::uuid
			  AND listing_id IS NOT DISTINCT FROM $6::uuid
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE
		)
		RETURNING ` + documentColumns

	doc, err := scanDocument(tx.QueryRow(ctx, updateSQL, now, params.Type, params.StepID, buyer, seller, listing))
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		const insertSQL = `
			INSERT INTO documents (type, category, operation_type, step_id, status, downloaded_at, buyer_id, seller_id, listing_id)
			VALUES ($1, 'AGENT_PROVIDED', 'DOWNLOAD', $2, 'COMPLETED', $3, $4::uuid, $5::uuid, $6::uuid)
			RETURNING ` + documentColumns
		doc, err = scanDocument(tx.QueryRow(ctx, insertSQL, params.Type, params.StepID, now, buyer, seller, listing))
		if err != nil {
			return Document{}, fmt.Errorf("document: insert download: %w", err)
		}
	default:
		return Document{}, fmt.Errorf("document: refresh download: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Document{}, fmt.Errorf("document: commit download: %w", err)
	}
	return doc, nil
}

func scanDocument(row pgx.Row) (Document, error) {
	var (
		doc       Document
		createdAt *time.Time
	)
	err := row.Scan(
		&doc.ID,
		&doc.Type,
		&doc.Category,
		&doc.Operation,
		&doc.StepID,
		&doc.Status,
		&doc.FileName,
		&doc.FileSize,
		&doc.UploadedAt,
		&doc.DownloadedAt,
		&doc.BuyerID,
		&doc.SellerID,
		&doc.ListingID,
		&createdAt,
	)
	if err != nil {
		return Document{}, err
	}
	if createdAt != nil {
		doc.CreatedAt = *createdAt
	}
	return doc, nil
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
