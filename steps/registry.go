// Package steps holds the ordered transaction steps for each party, the
// documents each step expects, the completion rules, and the derivation of
// current step and accessibility from those rules.
package steps

import (
	"fmt"

	"dealflow/document"
)

// Role selects which step list applies.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// StepCount is the number of steps in every role's list.
const StepCount = 11

// Requirement describes the artifact a step expects and how it is exchanged.
type Requirement struct {
	Type        document.Type      `json:"type"`
	Operation   document.Operation `json:"operationType"`
	Description string             `json:"description"`
}

// Definition is one immutable entry of a role's step list. ID order is
// transaction chronology.
type Definition struct {
	ID          int
	Title       string
	Requirement Requirement
}

// AllowsUpload reports whether the step accepts uploads from the party.
func (d Definition) AllowsUpload() bool {
	return d.Requirement.Operation == document.OperationUpload || d.Requirement.Operation == document.OperationBoth
}

// AllowsDownload reports whether the step offers a download to the party.
func (d Definition) AllowsDownload() bool {
	return d.Requirement.Operation == document.OperationDownload || d.Requirement.Operation == document.OperationBoth
}

var buyerSteps = [StepCount]Definition{
	{0, "Select Listing", Requirement{document.TypeNone, document.OperationNone, "Select a business listing to pursue"}},
	{1, "Email Agent", Requirement{document.TypeNone, document.OperationNone, "Email the listing agent to introduce yourself"}},
	{2, "Sign NDA", Requirement{document.TypeNDA, document.OperationBoth, "Download, sign, and upload the non-disclosure agreement"}},
	{3, "Financial Statement", Requirement{document.TypeFinancialStatement, document.OperationBoth, "Download, complete, and upload your financial statement"}},
	{4, "CBR/CIM", Requirement{document.TypeCBRCIM, document.OperationDownload, "Download CBR or CIM for the business"}},
	{5, "Upload Documents", Requirement{document.TypeUploadedDoc, document.OperationUpload, "Upload any additional documents requested by the agent"}},
	{6, "Purchase Contract", Requirement{document.TypePurchaseContract, document.OperationUpload, "Upload the signed purchase contract"}},
	{7, "Due Diligence", Requirement{document.TypeDueDiligence, document.OperationBoth, "Exchange due diligence documents with the seller"}},
	{8, "Pre-Close Checklist", Requirement{document.TypeNone, document.OperationNone, "Work through the pre-close checklist with the seller and broker"}},
	{9, "Closing Documents", Requirement{document.TypeClosingDocs, document.OperationBoth, "Review and sign the closing documents"}},
	{10, "After Sale", Requirement{document.TypeNone, document.OperationNone, "Complete the post-closing transition"}},
}

var sellerSteps = [StepCount]Definition{
	{0, "Select Listing", Requirement{document.TypeNone, document.OperationNone, "Select the listing you are selling"}},
	{1, "Email Agent", Requirement{document.TypeNone, document.OperationNone, "Email your listing agent to get started"}},
	{2, "Listing Agreement", Requirement{document.TypeListingAgreement, document.OperationDownload, "Download the listing agreement"}},
	{3, "Questionnaire", Requirement{document.TypeQuestionnaire, document.OperationUpload, "Upload the completed business questionnaire"}},
	{4, "Financial Documents", Requirement{document.TypeFinancialDocuments, document.OperationUpload, "Upload financial documents for the business"}},
	{5, "Buyer Activity", Requirement{document.TypeNone, document.OperationNone, "Track buyer interest in your listing"}},
	{6, "Purchase Agreement", Requirement{document.TypePurchaseAgreement, document.OperationDownload, "Download the purchase agreement"}},
	{7, "Due Diligence", Requirement{document.TypeDueDiligence, document.OperationUpload, "Upload due diligence documents for the buyer"}},
	{8, "Pre-Close Checklist", Requirement{document.TypeNone, document.OperationNone, "Work through the pre-close checklist with the buyer and broker"}},
	{9, "Closing Documents", Requirement{document.TypeClosingDocs, document.OperationBoth, "Review and sign the closing documents"}},
	{10, "After Sale", Requirement{document.TypeNone, document.OperationNone, "Complete the post-closing transition"}},
}

// BuyerSteps returns a copy of the buyer step list.
func BuyerSteps() []Definition {
	out := make([]Definition, StepCount)
	copy(out, buyerSteps[:])
	return out
}

// SellerSteps returns a copy of the seller step list.
func SellerSteps() []Definition {
	out := make([]Definition, StepCount)
	copy(out, sellerSteps[:])
	return out
}

// For returns the step list for role.
func For(role Role) ([]Definition, error) {
	switch role {
	case RoleBuyer:
		return BuyerSteps(), nil
	case RoleSeller:
		return SellerSteps(), nil
	default:
		return nil, fmt.Errorf("steps: unknown role %q", role)
	}
}

// Lookup returns a single step definition.
func Lookup(role Role, stepID int) (Definition, bool) {
	if stepID < 0 || stepID >= StepCount {
		return Definition{}, false
	}
	switch role {
	case RoleBuyer:
		return buyerSteps[stepID], true
	case RoleSeller:
		return sellerSteps[stepID], true
	default:
		return Definition{}, false
	}
}

// UploadCategory is the document category a role's uploads are filed under.
func UploadCategory(role Role) document.Category {
	if role == RoleSeller {
		return document.CategorySellerUpload
	}
	return document.CategoryBuyerUpload
}

// Valid reports whether role has a step list.
func (r Role) Valid() bool {
	return r == RoleBuyer || r == RoleSeller
}
