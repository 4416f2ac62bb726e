package checklist

import (
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 9, 12, 15, 4, 5, 0, time.UTC)

func TestDefaultTemplate_Shape(t *testing.T) {
	cats := DefaultTemplate()
	want := map[string]int{
		"letter_of_intent":         9,
		"asset_purchase_agreement": 11,
		"exhibits":                 11,
		"contingencies":            10,
	}
	if len(cats) != len(want) {
		t.Fatalf("expected %d categories, got %d", len(want), len(cats))
	}
	total := 0
	seen := make(map[string]bool)
	for _, cat := range cats {
		if want[cat.ID] != len(cat.Items) {
			t.Fatalf("category %s: expected %d items, got %d", cat.ID, want[cat.ID], len(cat.Items))
		}
		for _, it := range cat.Items {
			key := cat.ID + "/" + it.ID
			if seen[key] {
				t.Fatalf("duplicate item %s", key)
			}
			seen[key] = true
			if !it.Responsible.Valid() {
				t.Fatalf("item %s has invalid party %q", key, it.Responsible)
			}
			if it.Completed || it.CompletedBy != nil || it.CompletedAt != nil {
				t.Fatalf("item %s must start incomplete", key)
			}
		}
		total += len(cat.Items)
	}
	if total != 41 {
		t.Fatalf("expected 41 items, got %d", total)
	}

	cats[0].Items[0].Task = "mutated"
	if DefaultTemplate()[0].Items[0].Task == "mutated" {
		t.Fatal("DefaultTemplate must return a fresh copy")
	}
}

func TestPartitions_EveryItemInExactlyOneParty(t *testing.T) {
	c := Seed("listing-1", fixedNow)
	parts := c.Partitions()

	count := make(map[string]int)
	for party, part := range map[Party][]Category{PartyBuyer: parts.Buyer, PartySeller: parts.Seller, PartyBroker: parts.Broker} {
		for _, cat := range part {
			for _, it := range cat.Items {
				if it.Responsible != party {
					t.Fatalf("item %s/%s listed under %s but responsible is %s", cat.ID, it.ID, party, it.Responsible)
				}
				count[cat.ID+"/"+it.ID]++
			}
		}
	}
	if len(count) != 41 {
		t.Fatalf("expected 41 distinct items across partitions, got %d", len(count))
	}
	for key, n := range count {
		if n != 1 {
			t.Fatalf("item %s appears in %d partitions", key, n)
		}
	}

	merged := Checklist{Categories: Merge(parts)}
	if merged.ItemCount() != 41 || len(merged.Categories) != 4 {
		t.Fatalf("merge lost data: %d categories, %d items", len(merged.Categories), merged.ItemCount())
	}
	for _, cat := range c.Categories {
		for _, it := range cat.Items {
			if _, ok := merged.Find(cat.ID, it.ID); !ok {
				t.Fatalf("merge dropped %s/%s", cat.ID, it.ID)
			}
		}
	}
}

func TestMerge_FirstSeenOrder(t *testing.T) {
	parts := Partitions{
		Buyer: []Category{
			{ID: "b", Title: "Bravo", Items: []Item{{ID: "b2", Responsible: PartyBuyer}}},
		},
		Seller: []Category{
			{ID: "a", Title: "Alpha", Items: []Item{{ID: "a1", Responsible: PartySeller}}},
			{ID: "b", Title: "", Items: []Item{{ID: "b1", Responsible: PartySeller}}},
		},
		Broker: []Category{
			{ID: "b", Title: "Ignored", Items: []Item{{ID: "b2", Responsible: PartyBroker}}},
		},
	}
	got := Merge(parts)
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("unexpected category order: %+v", got)
	}
	if got[0].Title != "Bravo" {
		t.Fatalf("expected title from first partition, got %q", got[0].Title)
	}
	if len(got[0].Items) != 2 || got[0].Items[0].ID != "b2" || got[0].Items[1].ID != "b1" {
		t.Fatalf("unexpected item order: %+v", got[0].Items)
	}
	if got[0].Items[0].Responsible != PartyBuyer {
		t.Fatal("duplicate pair must keep the first occurrence")
	}
}

func TestToggle_TwiceRestoresItem(t *testing.T) {
	original := Seed("listing-1", fixedNow)

	once, ok := Toggle(original, "exhibits", "exh_lease", "user-1", "Dana Broker", fixedNow)
	if !ok {
		t.Fatal("expected item to be found")
	}
	twice, ok := Toggle(once, "exhibits", "exh_lease", "user-2", "Sam Seller", fixedNow.Add(time.Minute))
	if !ok {
		t.Fatal("expected item to be found")
	}

	before, _ := original.Find("exhibits", "exh_lease")
	after, _ := twice.Find("exhibits", "exh_lease")
	if before.Completed != after.Completed {
		t.Fatalf("expected completed=%v after two toggles, got %v", before.Completed, after.Completed)
	}
	if after.CompletedBy != nil || after.CompletedAt != nil {
		t.Fatal("expected attribution cleared after untoggle")
	}
	if twice.LastUpdatedBy == nil || *twice.LastUpdatedBy != "user-2" {
		t.Fatalf("expected last updater user-2, got %v", twice.LastUpdatedBy)
	}
}

func TestToggle_Attribution(t *testing.T) {
	c := Seed("listing-1", fixedNow)
	at := fixedNow.Add(2 * time.Hour)

	next, ok := Toggle(c, "letter_of_intent", "loi_draft", "user-9", "Pat Agent", at)
	if !ok {
		t.Fatal("expected toggle to apply")
	}
	item, _ := next.Find("letter_of_intent", "loi_draft")
	if !item.Completed {
		t.Fatal("expected item completed")
	}
	if item.CompletedBy == nil || *item.CompletedBy != "Pat Agent" {
		t.Fatalf("expected completedBy Pat Agent, got %v", item.CompletedBy)
	}
	if item.CompletedAt == nil || item.CompletedAt.Before(at) {
		t.Fatalf("expected completedAt >= %v, got %v", at, item.CompletedAt)
	}
	if !next.UpdatedAt.Equal(at) {
		t.Fatalf("expected updatedAt %v, got %v", at, next.UpdatedAt)
	}

	orig, _ := c.Find("letter_of_intent", "loi_draft")
	if orig.Completed {
		t.Fatal("toggle must not modify its input")
	}
}

func TestToggle_UnknownItemIsNoOp(t *testing.T) {
	c := Seed("listing-1", fixedNow)
	cases := [][2]string{
		{"exhibits", "missing"},
		{"missing", "exh_lease"},
		{"letter_of_intent", "exh_lease"},
	}
	for _, tc := range cases {
		next, ok := Toggle(c, tc[0], tc[1], "user-1", "Name", fixedNow.Add(time.Hour))
		if ok {
			t.Fatalf("%v: expected not found", tc)
		}
		if next.LastUpdatedBy != nil || !next.UpdatedAt.Equal(c.UpdatedAt) {
			t.Fatalf("%v: expected unchanged checklist", tc)
		}
		for i, cat := range next.Categories {
			for j, it := range cat.Items {
				if it.Completed != c.Categories[i].Items[j].Completed {
					t.Fatalf("%v: item %s changed", tc, it.ID)
				}
			}
		}
	}
}

func TestDecodeLegacyPartition_KeepsDocumentOrder(t *testing.T) {
	raw := []byte(`{
		"exhibits": {"title": "Exhibits", "items": {
			"exh_lease": {"task": "Copy of premises lease", "completed": true, "responsible": "seller", "required": true, "completedBy": "Sam"},
			"exh_asset_list": {"task": "Asset list", "completed": false, "required": true}
		}},
		"contingencies": {"title": "Contingencies", "items": null}
	}`)
	cats, err := decodeLegacyPartition(raw, PartySeller)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cats) != 2 || cats[0].ID != "exhibits" || cats[1].ID != "contingencies" {
		t.Fatalf("unexpected categories: %+v", cats)
	}
	items := cats[0].Items
	if len(items) != 2 || items[0].ID != "exh_lease" || items[1].ID != "exh_asset_list" {
		t.Fatalf("unexpected items: %+v", items)
	}
	if !items[0].Completed || items[0].CompletedBy == nil || *items[0].CompletedBy != "Sam" {
		t.Fatalf("lost item state: %+v", items[0])
	}
	if items[1].Responsible != PartySeller {
		t.Fatalf("expected missing responsible to default to the partition, got %q", items[1].Responsible)
	}

	if cats, err := decodeLegacyPartition([]byte("null"), PartyBuyer); err != nil || cats != nil {
		t.Fatalf("expected nil for null partition, got %v %v", cats, err)
	}
	if _, err := decodeLegacyPartition([]byte(`[1,2]`), PartyBuyer); err == nil {
		t.Fatal("expected error for non-object partition")
	}
}
