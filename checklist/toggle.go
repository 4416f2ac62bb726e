package checklist

import "time"

// Toggle flips the completion of one item and records who did it. The input
// is not modified. When the pair is not on the checklist the copy comes back
// unchanged with ok=false.
func Toggle(c Checklist, categoryID, itemID, actorID, actorName string, now time.Time) (Checklist, bool) {
	next := c.Clone()
	for i := range next.Categories {
		if next.Categories[i].ID != categoryID {
			continue
		}
		items := next.Categories[i].Items
		for j := range items {
			if items[j].ID != itemID {
				continue
			}
			at := now.UTC()
			items[j].Completed = !items[j].Completed
			if items[j].Completed {
				by := actorName
				items[j].CompletedBy = &by
				items[j].CompletedAt = &at
			} else {
				items[j].CompletedBy = nil
				items[j].CompletedAt = nil
			}
			id := actorID
			next.LastUpdatedBy = &id
			next.UpdatedAt = at
			return next, true
		}
	}
	return next, false
}
