package review

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// requestRecord is the persisted shape of a ReimbursementRequest. Array
// fields are stored as JSON-encoded strings and amounts as bare JSON
// numbers; nothing outside this file touches that encoding.
type requestRecord struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	TotalAmount    json.Number `json:"total_amount"`
	DateOfPurchase time.Time   `json:"date_of_purchase"`
	PaymentMethod  string      `json:"payment_method"`
	Status         Status      `json:"status"`
	SubmittedBy    string      `json:"submitted_by"`
	Department     Department  `json:"department"`
	Receipts       string      `json:"receipts"`
	AuditNotes     *string     `json:"audit_notes"`
	AuditLogs      *string     `json:"audit_logs"`
	Version        int64       `json:"version"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// receiptRecord is the persisted shape of a Receipt
type receiptRecord struct {
	ID               string      `json:"id"`
	CreatedBy        string      `json:"created_by"`
	ItemizedExpenses string      `json:"itemized_expenses"`
	Tax              json.Number `json:"tax"`
	Date             time.Time   `json:"date"`
	LocationName     string      `json:"location_name"`
	LocationAddress  string      `json:"location_address"`
	Notes            string      `json:"notes"`
	FileRef          string      `json:"file_ref"`
	AuditedBy        []string    `json:"audited_by"`
	RequestID        string      `json:"request_id,omitempty"`
	Version          int64       `json:"version"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// encodeArray renders a slice as a JSON string, using "[]" for nil
func encodeArray[T any](field string, items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", field, err)
	}
	return string(data), nil
}

// decodeArray parses a JSON string into a slice. Empty and null values
// decode to an empty slice.
func decodeArray[T any](field string, raw string) ([]T, error) {
	items := []T{}
	if raw == "" || raw == "null" {
		return items, nil
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", field, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// encodeAmount renders d as an unquoted JSON number
func encodeAmount(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

// decodeAmount parses a stored amount. Records written with quoted amounts
// still decode, and a missing amount is zero.
func decodeAmount(field string, n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("decoding %s: %w", field, err)
	}
	return d, nil
}

func encodeRequest(req *ReimbursementRequest) ([]byte, error) {
	receipts, err := encodeArray("receipts", req.ReceiptIDs)
	if err != nil {
		return nil, err
	}
	notes, err := encodeArray("audit_notes", req.AuditNotes)
	if err != nil {
		return nil, err
	}
	logs, err := encodeArray("audit_logs", req.AuditLogs)
	if err != nil {
		return nil, err
	}

	rec := requestRecord{
		ID:             req.ID,
		Title:          req.Title,
		TotalAmount:    encodeAmount(req.TotalAmount),
		DateOfPurchase: req.DateOfPurchase,
		PaymentMethod:  req.PaymentMethod,
		Status:         req.Status,
		SubmittedBy:    req.SubmittedBy,
		Department:     req.Department,
		Receipts:       receipts,
		AuditNotes:     &notes,
		AuditLogs:      &logs,
		Version:        req.Version,
		CreatedAt:      req.CreatedAt,
		UpdatedAt:      req.UpdatedAt,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshaling reimbursement: %w", err)
	}
	return data, nil
}

func decodeRequest(data []byte) (*ReimbursementRequest, error) {
	var rec requestRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling reimbursement: %w", err)
	}

	total, err := decodeAmount("total_amount", rec.TotalAmount)
	if err != nil {
		return nil, err
	}
	receipts, err := decodeArray[string]("receipts", rec.Receipts)
	if err != nil {
		return nil, err
	}
	notes, err := decodeArray[AuditNote]("audit_notes", deref(rec.AuditNotes))
	if err != nil {
		return nil, err
	}
	logs, err := decodeArray[AuditLogEntry]("audit_logs", deref(rec.AuditLogs))
	if err != nil {
		return nil, err
	}

	return &ReimbursementRequest{
		ID:             rec.ID,
		Title:          rec.Title,
		TotalAmount:    total,
		DateOfPurchase: rec.DateOfPurchase,
		PaymentMethod:  rec.PaymentMethod,
		Status:         rec.Status,
		SubmittedBy:    rec.SubmittedBy,
		Department:     rec.Department,
		ReceiptIDs:     receipts,
		AuditNotes:     notes,
		AuditLogs:      logs,
		Version:        rec.Version,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}, nil
}

func encodeReceipt(r *Receipt) ([]byte, error) {
	items, err := encodeArray("itemized_expenses", r.ItemizedExpenses)
	if err != nil {
		return nil, err
	}
	auditedBy := r.AuditedBy
	if auditedBy == nil {
		auditedBy = []string{}
	}

	rec := receiptRecord{
		ID:               r.ID,
		CreatedBy:        r.CreatedBy,
		ItemizedExpenses: items,
		Tax:              encodeAmount(r.Tax),
		Date:             r.Date,
		LocationName:     r.LocationName,
		LocationAddress:  r.LocationAddress,
		Notes:            r.Notes,
		FileRef:          r.FileRef,
		AuditedBy:        auditedBy,
		RequestID:        r.RequestID,
		Version:          r.Version,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshaling receipt: %w", err)
	}
	return data, nil
}

func decodeReceipt(data []byte) (*Receipt, error) {
	var rec receiptRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling receipt: %w", err)
	}

	items, err := decodeArray[ExpenseItem]("itemized_expenses", rec.ItemizedExpenses)
	if err != nil {
		return nil, err
	}
	tax, err := decodeAmount("tax", rec.Tax)
	if err != nil {
		return nil, err
	}
	auditedBy := rec.AuditedBy
	if auditedBy == nil {
		auditedBy = []string{}
	}

	return &Receipt{
		ID:               rec.ID,
		CreatedBy:        rec.CreatedBy,
		ItemizedExpenses: items,
		Tax:              tax,
		Date:             rec.Date,
		LocationName:     rec.LocationName,
		LocationAddress:  rec.LocationAddress,
		Notes:            rec.Notes,
		FileRef:          rec.FileRef,
		AuditedBy:        auditedBy,
		RequestID:        rec.RequestID,
		Version:          rec.Version,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
