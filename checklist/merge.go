package checklist

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Merge folds the legacy per-party partitions into one category list.
// Categories and items keep their first-seen order across buyer, seller and
// broker; a pair already seen is not added again.
func Merge(p Partitions) []Category {
	out := make([]Category, 0)
	catIndex := make(map[string]int)
	seen := make(map[string]map[string]bool)

	for _, part := range [][]Category{p.Buyer, p.Seller, p.Broker} {
		for _, cat := range part {
			idx, ok := catIndex[cat.ID]
			if !ok {
				idx = len(out)
				catIndex[cat.ID] = idx
				seen[cat.ID] = make(map[string]bool)
				out = append(out, Category{ID: cat.ID, Title: cat.Title, Items: make([]Item, 0, len(cat.Items))})
			}
			if out[idx].Title == "" {
				out[idx].Title = cat.Title
			}
			for _, it := range cat.Items {
				if seen[cat.ID][it.ID] {
					continue
				}
				seen[cat.ID][it.ID] = true
				out[idx].Items = append(out[idx].Items, cloneItem(it))
			}
		}
	}
	return out
}

// Partition returns the filtered view of items assigned to party. Categories
// with no such items are omitted.
func (c Checklist) Partition(party Party) []Category {
	out := make([]Category, 0, len(c.Categories))
	for _, cat := range c.Categories {
		var items []Item
		for _, it := range cat.Items {
			if it.Responsible == party {
				items = append(items, cloneItem(it))
			}
		}
		if len(items) == 0 {
			continue
		}
		out = append(out, Category{ID: cat.ID, Title: cat.Title, Items: items})
	}
	return out
}

// Partitions splits the checklist into the legacy three-party layout.
func (c Checklist) Partitions() Partitions {
	return Partitions{
		Buyer:  c.Partition(PartyBuyer),
		Seller: c.Partition(PartySeller),
		Broker: c.Partition(PartyBroker),
	}
}

// Find looks up an item by category and item id.
func (c Checklist) Find(categoryID, itemID string) (Item, bool) {
	for _, cat := range c.Categories {
		if cat.ID != categoryID {
			continue
		}
		for _, it := range cat.Items {
			if it.ID == itemID {
				return cloneItem(it), true
			}
		}
	}
	return Item{}, false
}

// ItemCount returns the number of items across all categories.
func (c Checklist) ItemCount() int {
	n := 0
	for _, cat := range c.Categories {
		n += len(cat.Items)
	}
	return n
}

// Clone returns a deep copy.
func (c Checklist) Clone() Checklist {
	out := c
	out.Categories = cloneCategories(c.Categories)
	if c.LastUpdatedBy != nil {
		v := *c.LastUpdatedBy
		out.LastUpdatedBy = &v
	}
	return out
}

func cloneCategories(in []Category) []Category {
	if in == nil {
		return nil
	}
	out := make([]Category, len(in))
	for i, cat := range in {
		out[i] = Category{ID: cat.ID, Title: cat.Title, Items: make([]Item, len(cat.Items))}
		for j, it := range cat.Items {
			out[i].Items[j] = cloneItem(it)
		}
	}
	return out
}

func cloneItem(it Item) Item {
	if it.CompletedBy != nil {
		v := *it.CompletedBy
		it.CompletedBy = &v
	}
	if it.CompletedAt != nil {
		v := *it.CompletedAt
		it.CompletedAt = &v
	}
	return it
}

// legacyItem is the per-item shape inside the old buyer/seller/broker maps,
// keyed by item id rather than carrying it.
type legacyItem struct {
	Task        string     `json:"task"`
	Completed   bool       `json:"completed"`
	Responsible Party      `json:"responsible"`
	Required    bool       `json:"required"`
	CompletedBy *string    `json:"completedBy"`
	CompletedAt *time.Time `json:"completedAt"`
}

// decodeLegacyPartition reads {categoryId: {title, items: {itemId: {...}}}}
// keeping the key order of the document so merges stay deterministic.
func decodeLegacyPartition(raw []byte, party Party) ([]Category, error) {
	if isNullJSON(raw) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var out []Category
	for dec.More() {
		catID, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		var body struct {
			Title string          `json:"title"`
			Items json.RawMessage `json:"items"`
		}
		if err := dec.Decode(&body); err != nil {
			return nil, fmt.Errorf("checklist: decode category %s: %w", catID, err)
		}
		items, err := decodeLegacyItems(body.Items, party)
		if err != nil {
			return nil, fmt.Errorf("checklist: decode category %s: %w", catID, err)
		}
		out = append(out, Category{ID: catID, Title: body.Title, Items: items})
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeLegacyItems(raw json.RawMessage, party Party) ([]Item, error) {
	if isNullJSON(raw) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var out []Item
	for dec.More() {
		itemID, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		var li legacyItem
		if err := dec.Decode(&li); err != nil {
			return nil, fmt.Errorf("item %s: %w", itemID, err)
		}
		responsible := li.Responsible
		if !responsible.Valid() {
			responsible = party
		}
		out = append(out, Item{
			ID:          itemID,
			Task:        li.Task,
			Completed:   li.Completed,
			Responsible: responsible,
			Required:    li.Required,
			CompletedBy: li.CompletedBy,
			CompletedAt: li.CompletedAt,
		})
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return out, nil
}

func isNullJSON(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("checklist: legacy layout: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("checklist: legacy layout: expected %q, got %v", want, tok)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("checklist: legacy layout: %w", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("checklist: legacy layout: expected key, got %v", tok)
	}
	return key, nil
}
