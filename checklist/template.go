package checklist

import "time"

type templateItem struct {
	id          string
	task        string
	responsible Party
	required    bool
}

type templateCategory struct {
	id    string
	title string
	items []templateItem
}

// defaultTemplate seeds every new checklist. Editing it only affects
// checklists created afterwards.
var defaultTemplate = []templateCategory{
	{
		id:    "letter_of_intent",
		title: "Letter of Intent",
		items: []templateItem{
			{"loi_draft", "Draft letter of intent", PartyBroker, true},
			{"loi_terms", "Agree on purchase price and terms", PartyBuyer, true},
			{"loi_buyer_signature", "Buyer signs letter of intent", PartyBuyer, true},
			{"loi_seller_signature", "Seller signs letter of intent", PartySeller, true},
			{"loi_earnest_money", "Deliver earnest money deposit to escrow", PartyBuyer, true},
			{"loi_exclusivity", "Confirm exclusivity period", PartyBroker, false},
			{"loi_financing_letter", "Provide financing pre-qualification letter", PartyBuyer, false},
			{"loi_landlord_notice", "Notify landlord of pending sale", PartySeller, false},
			{"loi_escrow", "Open escrow account", PartyBroker, true},
		},
	},
	{
		id:    "asset_purchase_agreement",
		title: "Asset Purchase Agreement",
		items: []templateItem{
			{"apa_draft", "Draft asset purchase agreement", PartyBroker, true},
			{"apa_buyer_review", "Buyer attorney review", PartyBuyer, false},
			{"apa_seller_review", "Seller attorney review", PartySeller, false},
			{"apa_allocation", "Agree on purchase price allocation", PartyBuyer, true},
			{"apa_non_compete", "Negotiate non-compete terms", PartySeller, true},
			{"apa_training", "Define training and transition period", PartySeller, true},
			{"apa_inventory_method", "Agree on inventory valuation method", PartyBuyer, false},
			{"apa_buyer_signature", "Buyer signs asset purchase agreement", PartyBuyer, true},
			{"apa_seller_signature", "Seller signs asset purchase agreement", PartySeller, true},
			{"apa_deposit_release", "Confirm deposit release conditions", PartyBroker, true},
			{"apa_closing_date", "Set closing date", PartyBroker, true},
		},
	},
	{
		id:    "exhibits",
		title: "Exhibits",
		items: []templateItem{
			{"exh_equipment_list", "List of furniture, fixtures and equipment", PartySeller, true},
			{"exh_inventory_count", "Inventory count sheet", PartySeller, false},
			{"exh_lease", "Copy of premises lease", PartySeller, true},
			{"exh_assumed_contracts", "Schedule of assumed contracts", PartySeller, false},
			{"exh_lien_search", "UCC lien search results", PartyBroker, true},
			{"exh_licenses", "Business licenses and permits", PartySeller, true},
			{"exh_ip_assignment", "Intellectual property assignment", PartySeller, false},
			{"exh_employees", "Employee list and terms", PartySeller, false},
			{"exh_bill_of_sale", "Bill of sale", PartyBroker, true},
			{"exh_promissory_note", "Promissory note for seller financing", PartyBuyer, false},
			{"exh_security_agreement", "Security agreement", PartyBuyer, false},
		},
	},
	{
		id:    "contingencies",
		title: "Contingencies",
		items: []templateItem{
			{"cont_financing", "Financing approval obtained", PartyBuyer, true},
			{"cont_lease_assignment", "Lease assignment approved by landlord", PartySeller, true},
			{"cont_due_diligence", "Due diligence completed", PartyBuyer, true},
			{"cont_license_transfer", "License transfers approved", PartyBuyer, false},
			{"cont_franchisor", "Franchisor approval obtained", PartySeller, false},
			{"cont_inspection", "Premises inspection completed", PartyBuyer, false},
			{"cont_tax_clearance", "Tax clearance certificate received", PartySeller, true},
			{"cont_insurance", "Buyer insurance in place", PartyBuyer, true},
			{"cont_utilities", "Utilities transferred", PartyBuyer, false},
			{"cont_final_walkthrough", "Final walkthrough completed", PartyBroker, true},
		},
	},
}

// DefaultTemplate returns a fresh copy of the default template with every
// item incomplete.
func DefaultTemplate() []Category {
	out := make([]Category, 0, len(defaultTemplate))
	for _, tc := range defaultTemplate {
		cat := Category{ID: tc.id, Title: tc.title, Items: make([]Item, 0, len(tc.items))}
		for _, ti := range tc.items {
			cat.Items = append(cat.Items, Item{
				ID:          ti.id,
				Task:        ti.task,
				Responsible: ti.responsible,
				Required:    ti.required,
			})
		}
		out = append(out, cat)
	}
	return out
}

// Seed builds the initial checklist for a listing.
func Seed(listingID string, now time.Time) Checklist {
	return Checklist{
		ListingID:  listingID,
		Categories: DefaultTemplate(),
		UpdatedAt:  now.UTC(),
	}
}
