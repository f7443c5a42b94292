package review

import (
	"time"

	"github.com/shopspring/decimal"
)

// Department identifies the organizational unit a request is charged to
type Department string

const (
	DepartmentEngineering Department = "engineering"
	DepartmentSales       Department = "sales"
	DepartmentMarketing   Department = "marketing"
	DepartmentOperations  Department = "operations"
	DepartmentFinance     Department = "finance"
	DepartmentOther       Department = "other"
)

// Valid reports whether d is a known department
func (d Department) Valid() bool {
	switch d {
	case DepartmentEngineering, DepartmentSales, DepartmentMarketing,
		DepartmentOperations, DepartmentFinance, DepartmentOther:
		return true
	}
	return false
}

// ExpenseCategory classifies an itemized expense
type ExpenseCategory string

const (
	CategoryTravel        ExpenseCategory = "travel"
	CategoryMeals         ExpenseCategory = "meals"
	CategoryLodging       ExpenseCategory = "lodging"
	CategorySupplies      ExpenseCategory = "supplies"
	CategorySoftware      ExpenseCategory = "software"
	CategoryEntertainment ExpenseCategory = "entertainment"
	CategoryOther         ExpenseCategory = "other"
)

// Valid reports whether c is a known expense category
func (c ExpenseCategory) Valid() bool {
	switch c {
	case CategoryTravel, CategoryMeals, CategoryLodging, CategorySupplies,
		CategorySoftware, CategoryEntertainment, CategoryOther:
		return true
	}
	return false
}

// ExpenseItem is a single line on a receipt
type ExpenseItem struct {
	Description string          `json:"description"`
	Category    ExpenseCategory `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
}

// Receipt represents a receipt attached to a reimbursement request
type Receipt struct {
	ID               string          `json:"id"`
	CreatedBy        string          `json:"created_by"`
	ItemizedExpenses []ExpenseItem   `json:"itemized_expenses"`
	Tax              decimal.Decimal `json:"tax"`
	Date             time.Time       `json:"date"`
	LocationName     string          `json:"location_name"`
	LocationAddress  string          `json:"location_address"`
	Notes            string          `json:"notes"`
	FileRef          string          `json:"file_ref"`
	AuditedBy        []string        `json:"audited_by"`          // set of reviewer ids, grows only
	RequestID        string          `json:"request_id,omitempty"` // ID of the request this receipt belongs to
	Version          int64           `json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Total is the sum of the itemized amounts plus tax
func (r *Receipt) Total() decimal.Decimal {
	total := r.Tax
	for _, item := range r.ItemizedExpenses {
		total = total.Add(item.Amount)
	}
	return total
}

// Name is the human label used in audit log entries
func (r *Receipt) Name() string {
	if r.LocationName != "" {
		return r.LocationName
	}
	return r.ID
}

// AuditedByReviewer reports whether reviewerID has audited the receipt
func (r *Receipt) AuditedByReviewer(reviewerID string) bool {
	for _, id := range r.AuditedBy {
		if id == reviewerID {
			return true
		}
	}
	return false
}

// AuditNote is a user-authored note on a request
type AuditNote struct {
	Note      string    `json:"note"`
	AuditorID string    `json:"auditor_id"`
	Timestamp time.Time `json:"timestamp"`
	IsPrivate bool      `json:"is_private"`
}

// AuditAction is the kind of a system-generated log entry
type AuditAction string

const (
	ActionStatusChange AuditAction = "status_change"
	ActionReceiptAudit AuditAction = "receipt_audit"
	ActionNoteAdded    AuditAction = "note_added"
)

// AuditLogEntry is an immutable, system-generated record of something that
// happened to a request. Only the payload fields for Action are populated.
type AuditLogEntry struct {
	Seq       int64       `json:"seq"`
	Action    AuditAction `json:"action"`
	AuditorID string      `json:"auditor_id"`
	Timestamp time.Time   `json:"timestamp"`

	// StatusChange
	From Status `json:"from,omitempty"`
	To   Status `json:"to,omitempty"`

	// ReceiptAudit
	ReceiptID     string           `json:"receipt_id,omitempty"`
	ReceiptName   string           `json:"receipt_name,omitempty"`
	ReceiptDate   *time.Time       `json:"receipt_date,omitempty"`
	ReceiptAmount *decimal.Decimal `json:"receipt_amount,omitempty"`

	// NoteAdded
	NotePreview string `json:"note_preview,omitempty"`
	IsPrivate   bool   `json:"is_private,omitempty"`
}

// ReimbursementRequest is a member's request to be paid back for receipts
type ReimbursementRequest struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DateOfPurchase time.Time       `json:"date_of_purchase"`
	PaymentMethod  string          `json:"payment_method"`
	Status         Status          `json:"status"`
	SubmittedBy    string          `json:"submitted_by"`
	Department     Department      `json:"department"`
	ReceiptIDs     []string        `json:"receipt_ids"`
	AuditNotes     []AuditNote     `json:"audit_notes"`
	AuditLogs      []AuditLogEntry `json:"audit_logs"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// appendLog appends entry with the next sequence number
func (r *ReimbursementRequest) appendLog(entry AuditLogEntry) {
	entry.Seq = int64(len(r.AuditLogs)) + 1
	r.AuditLogs = append(r.AuditLogs, entry)
}

// hasReceiptAudit reports whether the log already records reviewerID auditing receiptID
func (r *ReimbursementRequest) hasReceiptAudit(receiptID, reviewerID string) bool {
	for _, e := range r.AuditLogs {
		if e.Action == ActionReceiptAudit && e.ReceiptID == receiptID && e.AuditorID == reviewerID {
			return true
		}
	}
	return false
}
