package checklist

import (
	"errors"
	"time"
)

var (
	// ErrNotFound signals no checklist row exists for the listing.
	ErrNotFound = errors.New("checklist: not found")
	// ErrItemNotFound signals the (category, item) pair is not on the checklist.
	ErrItemNotFound = errors.New("checklist: item not found")
	// ErrInvalidRequest signals missing identifiers on a toggle.
	ErrInvalidRequest = errors.New("checklist: listing, category and item ids required")
	// ErrMissingActor signals a toggle without an acting user.
	ErrMissingActor = errors.New("checklist: missing actor")
)

// Party is the role an item is nominally assigned to. It drives which column
// an item is shown in and never restricts who may toggle it.
type Party string

const (
	PartyBuyer  Party = "buyer"
	PartySeller Party = "seller"
	PartyBroker Party = "broker"
)

// Valid reports whether p is one of the three checklist parties.
func (p Party) Valid() bool {
	return p == PartyBuyer || p == PartySeller || p == PartyBroker
}

type Item struct {
	ID          string     `json:"id"`
	Task        string     `json:"task"`
	Completed   bool       `json:"completed"`
	Responsible Party      `json:"responsible"`
	Required    bool       `json:"required"`
	CompletedBy *string    `json:"completedBy,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type Category struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Items []Item `json:"items"`
}

// Checklist is the per-listing aggregate. Each (category, item) pair appears
// once; Responsible on the item is the only partitioning.
type Checklist struct {
	ListingID     string     `json:"-"`
	Categories    []Category `json:"checklist"`
	LastUpdatedBy *string    `json:"lastUpdatedBy"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Partitions is the legacy three-map layout: every category split by the
// party responsible for its items.
type Partitions struct {
	Buyer  []Category
	Seller []Category
	Broker []Category
}
