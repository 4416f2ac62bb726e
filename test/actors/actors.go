package actors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"dealflow/checklist"
	"dealflow/outbox"
	"dealflow/progress"
	"dealflow/steps"
)

// ToggleLedger counts acknowledged toggles per checklist item. A toggle whose
// commit raced a killed backend may land without being acknowledged, so the
// ledger is a lower bound on what the database recorded.
type ToggleLedger struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewToggleLedger() *ToggleLedger {
	return &ToggleLedger{counts: make(map[string]int)}
}

func ledgerKey(categoryID, itemID string) string { return categoryID + "/" + itemID }

func (l *ToggleLedger) record(categoryID, itemID string) {
	l.mu.Lock()
	l.counts[ledgerKey(categoryID, itemID)]++
	l.mu.Unlock()
}

// Count returns the acknowledged toggles of one item.
func (l *ToggleLedger) Count(categoryID, itemID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[ledgerKey(categoryID, itemID)]
}

// Total is the number of acknowledged toggles.
func (l *ToggleLedger) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.counts {
		n += c
	}
	return n
}

type itemRef struct{ category, item string }

var templateItems = func() []itemRef {
	var out []itemRef
	for _, cat := range checklist.DefaultTemplate() {
		for _, it := range cat.Items {
			out = append(out, itemRef{cat.ID, it.ID})
		}
	}
	return out
}()

// Toggler flips random items of one listing's checklist through the service.
// Only toggles the service acknowledged are recorded in the ledger.
func Toggler(ctx context.Context, svc *checklist.Service, ledger *ToggleLedger, listingID, actorID, actorName string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		ref := templateItems[rand.Intn(len(templateItems))]
		_, err := svc.Toggle(ctx, checklist.ToggleRequest{
			ListingID:  listingID,
			CategoryID: ref.category,
			ItemID:     ref.item,
			ActorID:    actorID,
			ActorName:  actorName,
		})
		switch {
		case err == nil:
			ledger.record(ref.category, ref.item)
		case retryable(err):
		default:
			return fmt.Errorf("toggler %s: %w", actorID, err)
		}
		time.Sleep(time.Duration(5+rand.Intn(15)) * time.Millisecond)
	}
}

// ChecklistReader keeps loading the checklist while togglers run; every read
// must see the whole template.
func ChecklistReader(ctx context.Context, svc *checklist.Service, listingID string, stop <-chan struct{}) error {
	want := len(templateItems)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		c, err := svc.Get(ctx, listingID)
		if err != nil {
			if retryable(err) {
				continue
			}
			return fmt.Errorf("checklist reader: %w", err)
		}
		if got := c.ItemCount(); got != want {
			return fmt.Errorf("checklist reader: %d items, want %d", got, want)
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// BuyerJourney walks one buyer through the transaction, racing other
// journeys on the same listing. Locked steps are expected under contention
// and retried on the next pass.
func BuyerJourney(ctx context.Context, svc *progress.Service, buyerID, listingID string, stop <-chan struct{}) error {
	if _, err := svc.SelectListing(ctx, steps.RoleBuyer, buyerID, listingID); err != nil && !retryable(err) {
		return fmt.Errorf("buyer %s select: %w", buyerID, err)
	}
	plan := []func() error{
		func() error { return upload(ctx, svc, steps.RoleBuyer, buyerID, 2) },
		func() error { return upload(ctx, svc, steps.RoleBuyer, buyerID, 3) },
		func() error { return download(ctx, svc, steps.RoleBuyer, buyerID, 4) },
		func() error { return upload(ctx, svc, steps.RoleBuyer, buyerID, 5) },
		func() error { return upload(ctx, svc, steps.RoleBuyer, buyerID, 6) },
		func() error { return complete(ctx, svc, steps.RoleBuyer, buyerID, 8) },
		func() error { return complete(ctx, svc, steps.RoleBuyer, buyerID, 9) },
		func() error { return complete(ctx, svc, steps.RoleBuyer, buyerID, 10) },
	}
	return journey(ctx, plan, stop)
}

// SellerJourney walks the listing's seller through the transaction. Step 5
// opens once any buyer selected the listing.
func SellerJourney(ctx context.Context, svc *progress.Service, sellerID, listingID string, stop <-chan struct{}) error {
	if _, err := svc.SelectListing(ctx, steps.RoleSeller, sellerID, listingID); err != nil && !retryable(err) {
		return fmt.Errorf("seller %s select: %w", sellerID, err)
	}
	plan := []func() error{
		func() error { return download(ctx, svc, steps.RoleSeller, sellerID, 2) },
		func() error { return upload(ctx, svc, steps.RoleSeller, sellerID, 3) },
		func() error { return upload(ctx, svc, steps.RoleSeller, sellerID, 4) },
		func() error { return download(ctx, svc, steps.RoleSeller, sellerID, 6) },
		func() error { return upload(ctx, svc, steps.RoleSeller, sellerID, 7) },
		func() error { return complete(ctx, svc, steps.RoleSeller, sellerID, 8) },
		func() error { return complete(ctx, svc, steps.RoleSeller, sellerID, 9) },
		func() error { return complete(ctx, svc, steps.RoleSeller, sellerID, 10) },
	}
	return journey(ctx, plan, stop)
}

// journey repeats plan until stop, tolerating locked steps.
func journey(ctx context.Context, plan []func() error, stop <-chan struct{}) error {
	for {
		for _, act := range plan {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-stop:
				return nil
			default:
			}
			if err := act(); err != nil {
				return err
			}
			time.Sleep(time.Duration(5+rand.Intn(20)) * time.Millisecond)
		}
	}
}

func upload(ctx context.Context, svc *progress.Service, role steps.Role, ownerID string, stepID int) error {
	_, err := svc.RecordUpload(ctx, role, ownerID, progress.UploadRequest{
		StepID:   stepID,
		FileName: fmt.Sprintf("step-%d.pdf", stepID),
		FileSize: int64(1024 + rand.Intn(4096)),
	})
	return tolerate(err, "upload", role, stepID)
}

func download(ctx context.Context, svc *progress.Service, role steps.Role, ownerID string, stepID int) error {
	_, err := svc.RecordDownload(ctx, role, ownerID, stepID)
	return tolerate(err, "download", role, stepID)
}

func complete(ctx context.Context, svc *progress.Service, role steps.Role, ownerID string, stepID int) error {
	_, err := svc.CompleteStep(ctx, role, ownerID, stepID)
	return tolerate(err, "complete", role, stepID)
}

func tolerate(err error, op string, role steps.Role, stepID int) error {
	if err == nil || errors.Is(err, progress.ErrStepLocked) || retryable(err) {
		return nil
	}
	return fmt.Errorf("%s %s step %d: %w", role, op, stepID, err)
}

// MessageSender writes introduction messages from the buyer to the seller.
// They are informational and must never move progress.
func MessageSender(ctx context.Context, pool *pgxpool.Pool, senderID, recipientID, listingID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `INSERT INTO messages (sender_id, recipient_id, listing_id, body) VALUES ($1, $2, $3, $4)`,
			senderID, recipientID, listingID, "Interested in the business")
		if err != nil && !retryable(err) {
			return fmt.Errorf("message sender: %w", err)
		}
		time.Sleep(time.Duration(100+rand.Intn(100)) * time.Millisecond)
	}
}

var relay = outbox.NewWriter()

// OutboxRelay drains pending outbox messages with SKIP LOCKED, failing a few
// deliveries at random so attempts grow.
func OutboxRelay(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if err := relayBatch(ctx, pool); err != nil && !retryable(err) {
			return fmt.Errorf("outbox relay: %w", err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func relayBatch(ctx context.Context, pool *pgxpool.Pool) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	claimed, err := relay.Claim(ctx, tx, 20)
	if err != nil {
		return err
	}
	for _, m := range claimed {
		if err := relay.Ack(ctx, tx, m.ID, rand.Intn(10) != 0); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// retryable covers errors the chaos actor provokes: killed backends, dropped
// connections and lock conflicts.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "40") || strings.HasPrefix(pgErr.Code, "57") || strings.HasPrefix(pgErr.Code, "08")
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "conn closed") || strings.Contains(msg, "connection reset") || strings.Contains(msg, "broken pipe")
}
