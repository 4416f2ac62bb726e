package document

import "time"

// Type identifies what an artifact is, independent of who produced it.
type Type string

const (
	TypeNone               Type = "NONE"
	TypeNDA                Type = "NDA"
	TypeFinancialStatement Type = "FINANCIAL_STATEMENT"
	TypeCBRCIM             Type = "CBR_CIM"
	TypePurchaseContract   Type = "PURCHASE_CONTRACT"
	TypeDueDiligence       Type = "DUE_DILIGENCE"
	TypeClosingDocs        Type = "CLOSING_DOCS"
	TypeUploadedDoc        Type = "UPLOADED_DOC"
	TypeListingAgreement   Type = "LISTING_AGREEMENT"
	TypeQuestionnaire      Type = "QUESTIONNAIRE"
	TypeFinancialDocuments Type = "FINANCIAL_DOCUMENTS"
	TypePurchaseAgreement  Type = "PURCHASE_AGREEMENT"
)

// Category records which party supplied the artifact.
type Category string

const (
	CategoryBuyerUpload   Category = "BUYER_UPLOAD"
	CategorySellerUpload  Category = "SELLER_UPLOAD"
	CategoryAgentProvided Category = "AGENT_PROVIDED"
)

// Operation records how the artifact reached the party.
type Operation string

const (
	OperationNone             Operation = "NONE"
	OperationUpload           Operation = "UPLOAD"
	OperationDownload         Operation = "DOWNLOAD"
	OperationBoth             Operation = "BOTH"
	OperationManualCompletion Operation = "MANUAL_COMPLETION"
)

type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusPending   Status = "PENDING"
)

// Document mirrors the documents table. FileName, FileSize and CreatedAt come
// from legacy rows that may be null or zeroed; nothing in the progress engine
// reads them.
type Document struct {
	ID           string
	Type         Type
	Category     Category
	Operation    Operation
	StepID       *int
	Status       Status
	FileName     *string
	FileSize     *int64
	UploadedAt   *time.Time
	DownloadedAt *time.Time
	BuyerID      *string
	SellerID     *string
	ListingID    *string
	CreatedAt    time.Time
}

// ForStep reports whether the document claims to satisfy stepID.
func (d Document) ForStep(stepID int) bool {
	return d.StepID != nil && *d.StepID == stepID
}

// Filter scopes a document query to one party's view of a listing.
type Filter struct {
	BuyerID   string
	SellerID  string
	ListingID string
	StepID    *int
	Category  Category
	Type      Type
}

// UploadParams describes a completed upload to persist.
type UploadParams struct {
	Type      Type
	Category  Category
	StepID    int
	FileName  string
	FileSize  int64
	BuyerID   string
	SellerID  string
	ListingID string
	// Topic, when set, is the outbox topic announcing the upload.
	Topic string
}

// DownloadParams describes a download acknowledgement. Repeating it for the
// same owner, listing, step and type refreshes DownloadedAt on the existing row.
type DownloadParams struct {
	Type      Type
	StepID    int
	BuyerID   string
	SellerID  string
	ListingID string
}
