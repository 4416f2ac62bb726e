package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Oracle is a query that must return no rows.
type Oracle struct {
	Name string
	SQL  string
}

const checklistItems = `
	SELECT c.listing_id, cat->>'id' AS category_id, it->>'id' AS item_id, it
	FROM pre_close_checklists c,
	     jsonb_array_elements(c.categories) AS cat,
	     jsonb_array_elements(cat->'items') AS it
	WHERE c.categories IS NOT NULL`

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_checklist_template_complete",
			SQL: `WITH items AS (` + checklistItems + `)
                  SELECT c.listing_id, COUNT(i.item_id) FROM pre_close_checklists c
                  LEFT JOIN items i ON i.listing_id = c.listing_id
                  WHERE c.categories IS NOT NULL
                  GROUP BY c.listing_id HAVING COUNT(i.item_id) <> 41`,
		},
		{
			Name: "O2_checklist_pair_unique",
			SQL: `WITH items AS (` + checklistItems + `)
                  SELECT listing_id, category_id, item_id, COUNT(*) FROM items
                  GROUP BY listing_id, category_id, item_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_checklist_attribution",
			SQL: `WITH items AS (` + checklistItems + `)
                  SELECT listing_id, category_id, item_id FROM items
                  WHERE ((it->>'completed')::boolean AND (it->>'completedBy' IS NULL OR it->>'completedAt' IS NULL))
                     OR (NOT (it->>'completed')::boolean AND (it ? 'completedBy' OR it ? 'completedAt'))`,
		},
		{
			Name: "O4_checklist_toggle_parity",
			SQL: `WITH items AS (` + checklistItems + `),
                  events AS (
                      SELECT payload->>'listing_id' AS listing_id, payload->>'category_id' AS category_id,
                             payload->>'item_id' AS item_id, COUNT(*) AS n
                      FROM outbox WHERE topic = 'checklist.item_toggled'
                      GROUP BY 1, 2, 3)
                  SELECT i.listing_id, i.category_id, i.item_id FROM items i
                  LEFT JOIN events e ON e.listing_id = i.listing_id::text
                       AND e.category_id = i.category_id AND e.item_id = i.item_id
                  WHERE (it->>'completed')::boolean <> (COALESCE(e.n, 0) % 2 = 1)`,
		},
		{
			Name: "O5_progress_steps_sorted_unique",
			SQL: `SELECT role, owner_id, completed_steps FROM transaction_progress
                  WHERE completed_steps <> COALESCE(
                      (SELECT array_agg(DISTINCT s ORDER BY s) FROM unnest(completed_steps) AS s), '{}')`,
		},
		{
			Name: "O6_progress_current_step_floor",
			SQL: `SELECT role, owner_id, current_step, completed_steps FROM transaction_progress
                  WHERE current_step < COALESCE((SELECT MAX(s) + 1 FROM unnest(completed_steps) AS s), 0)`,
		},
		{
			Name: "O7_progress_requires_listing",
			SQL: `SELECT role, owner_id FROM transaction_progress
                  WHERE cardinality(completed_steps) > 0 AND selected_listing_id IS NULL`,
		},
		{
			Name: "O8_seller_owns_listing",
			SQL: `SELECT p.owner_id, p.selected_listing_id FROM transaction_progress p
                  JOIN listings l ON l.id = p.selected_listing_id
                  WHERE p.role = 'seller' AND l.seller_id <> p.owner_id`,
		},
		{
			Name: "O9_upload_category_matches_owner",
			SQL: `SELECT id, category, buyer_id, seller_id FROM documents
                  WHERE operation_type = 'UPLOAD'
                    AND ((category = 'BUYER_UPLOAD' AND buyer_id IS NULL)
                      OR (category = 'SELLER_UPLOAD' AND seller_id IS NULL))`,
		},
		{
			Name: "O10_single_download_row",
			SQL: `SELECT type, step_id, buyer_id, seller_id, listing_id, COUNT(*) FROM documents
                  WHERE operation_type = 'DOWNLOAD'
                  GROUP BY type, step_id, buyer_id, seller_id, listing_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O11_outbox_stale",
			SQL: `SELECT id, topic, attempts FROM outbox
                  WHERE status = 'pending' AND now() - created_at > interval '5 minutes'`,
		},
	}
}

// Run executes every oracle and returns the first failure's name and a sample
// row, or an empty name when all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
