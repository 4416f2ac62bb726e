package listing

import "time"

type Status string

const (
	StatusActive     Status = "active"
	StatusUnderOffer Status = "under_offer"
	StatusSold       Status = "sold"
	StatusWithdrawn  Status = "withdrawn"
)

// Listing captures the subset of a business listing the transaction flow reads.
type Listing struct {
	ID        string
	Title     string
	SellerID  *string
	BrokerID  *string
	AgentID   *string
	Status    Status
	CreatedAt time.Time
}

// OwnedBy reports whether sellerID is the listing's seller.
func (l Listing) OwnedBy(sellerID string) bool {
	return l.SellerID != nil && *l.SellerID == sellerID
}
