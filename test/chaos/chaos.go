package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TerminateRandomBackend occasionally kills another backend on the test
// database so in-flight transactions abort mid-write.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rand.Intn(5) == 0 {
				_, _ = pool.Exec(ctx, `SELECT pg_terminate_backend(pid) FROM pg_stat_activity
					WHERE datname = current_database() AND pid <> pg_backend_pid() AND state = 'active'
					ORDER BY random() LIMIT 1`)
			}
		}
	}
}

// StallChecklist holds the checklist row lock for a random pause so toggles
// queue behind it.
func StallChecklist(ctx context.Context, pool *pgxpool.Pool, listingID string, stop <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-time.After(time.Duration(300+rand.Intn(700)) * time.Millisecond):
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			continue
		}
		if _, err := tx.Exec(ctx, `SELECT 1 FROM pre_close_checklists WHERE listing_id = $1 FOR UPDATE`, listingID); err == nil {
			time.Sleep(time.Duration(20+rand.Intn(80)) * time.Millisecond)
		}
		_ = tx.Rollback(ctx)
	}
}
