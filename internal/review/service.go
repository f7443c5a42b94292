package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultMaxRetries bounds how often a conflicting write is re-applied
const DefaultMaxRetries = 5

// IDGenerator generates unique IDs for requests and receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}

// errUnchanged aborts a read-modify-write without writing
var errUnchanged = errors.New("unchanged")

// Service is the review workflow engine
type Service struct {
	db          DB
	users       CurrentUserProvider
	idGenerator IDGenerator
	timeSource  TimeSource
	maxRetries  int
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, users CurrentUserProvider) *Service {
	return &Service{
		db:          db,
		users:       users,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
		maxRetries:  DefaultMaxRetries,
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, users CurrentUserProvider, idGen IDGenerator, timeSrc TimeSource, maxRetries int) *Service {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Service{
		db:          db,
		users:       users,
		idGenerator: idGen,
		timeSource:  timeSrc,
		maxRetries:  maxRetries,
	}
}

// SetMaxRetries sets how often a conflicting write is re-applied
func (s *Service) SetMaxRetries(n int) {
	if n < 0 {
		n = 0
	}
	s.maxRetries = n
}

// actor resolves the acting user or fails with ErrUnauthenticated
func (s *Service) actor(ctx context.Context) (string, error) {
	id, err := s.users.CurrentUser(ctx)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if strings.TrimSpace(id) == "" {
		return "", ErrUnauthenticated
	}
	return id, nil
}

// retry runs fn until it succeeds, fails with something other than a
// concurrency conflict, or the retry budget is spent
func (s *Service) retry(op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err = fn()
		if !errors.Is(err, ErrConcurrencyConflict) {
			return err
		}
		slog.Warn("Concurrency conflict, retrying", "operation", op, "attempt", attempt+1, "error", err)
	}
	return err
}

// mutateRequest re-reads the request and applies mutate on every attempt.
// mutate may return errUnchanged to skip the write.
func (s *Service) mutateRequest(op, id string, mutate func(req *ReimbursementRequest) error) (*ReimbursementRequest, error) {
	var req *ReimbursementRequest
	err := s.retry(op, func() error {
		var err error
		req, err = s.db.GetRequest(id)
		if err != nil {
			return fmt.Errorf("getting reimbursement: %w", err)
		}
		if err := mutate(req); err != nil {
			return err
		}
		req.UpdatedAt = s.timeSource.Now()
		return s.db.UpdateRequest(req)
	})
	if errors.Is(err, errUnchanged) {
		return req, nil
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// mutateReceipt is mutateRequest for receipts
func (s *Service) mutateReceipt(op, id string, mutate func(r *Receipt) error) (*Receipt, error) {
	var receipt *Receipt
	err := s.retry(op, func() error {
		var err error
		receipt, err = s.db.GetReceipt(id)
		if err != nil {
			return fmt.Errorf("getting receipt: %w", err)
		}
		if err := mutate(receipt); err != nil {
			return err
		}
		receipt.UpdatedAt = s.timeSource.Now()
		return s.db.UpdateReceipt(receipt)
	})
	if errors.Is(err, errUnchanged) {
		return receipt, nil
	}
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// ReceiptInput holds the fields a member supplies for a new receipt
type ReceiptInput struct {
	ItemizedExpenses []ExpenseItem  `json:"itemized_expenses"`
	Tax              decimal.Decimal `json:"tax"`
	Date             time.Time       `json:"date"`
	LocationName     string          `json:"location_name"`
	LocationAddress  string          `json:"location_address"`
	Notes            string          `json:"notes"`
	FileRef          string          `json:"file_ref"`
}

func (in ReceiptInput) validate() error {
	if len(in.ItemizedExpenses) == 0 {
		return invalid("itemized_expenses", "at least one item is required")
	}
	for i, item := range in.ItemizedExpenses {
		if !item.Amount.IsPositive() {
			return invalid(fmt.Sprintf("itemized_expenses[%d].amount", i), "must be greater than zero")
		}
		if !item.Category.Valid() {
			return invalid(fmt.Sprintf("itemized_expenses[%d].category", i), fmt.Sprintf("unknown category %q", item.Category))
		}
	}
	if in.Tax.IsNegative() {
		return invalid("tax", "must not be negative")
	}
	return nil
}

// CreateReceipt validates and stores a receipt created by the acting user
func (s *Service) CreateReceipt(ctx context.Context, in ReceiptInput) (*Receipt, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	receipt := &Receipt{
		ID:               s.idGenerator.Generate(),
		CreatedBy:        actor,
		ItemizedExpenses: in.ItemizedExpenses,
		Tax:              in.Tax,
		Date:             in.Date,
		LocationName:     strings.TrimSpace(in.LocationName),
		LocationAddress:  strings.TrimSpace(in.LocationAddress),
		Notes:            in.Notes,
		FileRef:          in.FileRef,
		AuditedBy:        []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.db.CreateReceipt(receipt); err != nil {
		return nil, fmt.Errorf("saving receipt: %w", err)
	}
	return receipt, nil
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// SubmissionInput holds the fields a member supplies for a new request
type SubmissionInput struct {
	Title          string     `json:"title"`
	DateOfPurchase time.Time  `json:"date_of_purchase"`
	PaymentMethod  string     `json:"payment_method"`
	Department     Department `json:"department"`
	ReceiptIDs     []string   `json:"receipt_ids"`
}

// SubmitRequest creates a reimbursement request over existing receipts. The
// receipts are claimed for the new request id before the request is
// written, and a failed claim releases the earlier ones, so a failed
// submission leaves no request behind and every receipt free to resubmit.
// The total is derived from the receipts as claimed.
func (s *Service) SubmitRequest(ctx context.Context, in SubmissionInput) (*ReimbursementRequest, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, invalid("title", "required")
	}
	if !in.Department.Valid() {
		return nil, invalid("department", fmt.Sprintf("unknown department %q", in.Department))
	}
	if len(in.ReceiptIDs) == 0 {
		return nil, invalid("receipt_ids", "at least one receipt is required")
	}
	seen := make(map[string]bool, len(in.ReceiptIDs))
	for _, receiptID := range in.ReceiptIDs {
		if seen[receiptID] {
			return nil, invalid("receipt_ids", fmt.Sprintf("duplicate receipt %s", receiptID))
		}
		seen[receiptID] = true
	}

	id := s.idGenerator.Generate()
	total := decimal.Zero
	claimed := make([]string, 0, len(in.ReceiptIDs))
	for _, receiptID := range in.ReceiptIDs {
		receipt, err := s.claimReceipt(id, receiptID)
		if err != nil {
			s.releaseReceipts(id, claimed)
			return nil, fmt.Errorf("claiming receipt %s: %w", receiptID, err)
		}
		claimed = append(claimed, receiptID)
		total = total.Add(receipt.Total())
	}

	now := s.timeSource.Now()
	req := &ReimbursementRequest{
		ID:             id,
		Title:          strings.TrimSpace(in.Title),
		TotalAmount:    total,
		DateOfPurchase: in.DateOfPurchase,
		PaymentMethod:  in.PaymentMethod,
		Status:         StatusSubmitted,
		SubmittedBy:    actor,
		Department:     in.Department,
		ReceiptIDs:     claimed,
		AuditNotes:     []AuditNote{},
		AuditLogs:      []AuditLogEntry{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.db.CreateRequest(req); err != nil {
		s.releaseReceipts(id, claimed)
		return nil, fmt.Errorf("saving reimbursement: %w", err)
	}

	slog.Info("Reimbursement submitted", "request_id", req.ID, "actor", actor, "receipts", len(req.ReceiptIDs), "total", req.TotalAmount.String())
	return req, nil
}

// claimReceipt stamps an unowned receipt with requestID
func (s *Service) claimReceipt(requestID, receiptID string) (*Receipt, error) {
	return s.mutateReceipt("claim receipt", receiptID, func(r *Receipt) error {
		if r.RequestID == requestID {
			return errUnchanged
		}
		if r.RequestID != "" {
			return invalid("receipt_ids", fmt.Sprintf("receipt %s already belongs to reimbursement %s", r.ID, r.RequestID))
		}
		r.RequestID = requestID
		return nil
	})
}

// releaseReceipts undoes claimReceipt for receipts still owned by requestID.
// Failures are logged; the receipt stays pointing at a request that was
// never written.
func (s *Service) releaseReceipts(requestID string, receiptIDs []string) {
	for _, receiptID := range receiptIDs {
		_, err := s.mutateReceipt("release receipt", receiptID, func(r *Receipt) error {
			if r.RequestID != requestID {
				return errUnchanged
			}
			r.RequestID = ""
			return nil
		})
		if err != nil {
			slog.Error("Failed to release receipt claim", "receipt_id", receiptID, "request_id", requestID, "error", err)
		}
	}
}

// GetRequest retrieves a reimbursement request by ID
func (s *Service) GetRequest(id string) (*ReimbursementRequest, error) {
	req, err := s.db.GetRequest(id)
	if err != nil {
		return nil, fmt.Errorf("getting reimbursement: %w", err)
	}
	return req, nil
}

// GetRequestWithReceipts retrieves a request with its linked receipts in order
func (s *Service) GetRequestWithReceipts(id string) (*ReimbursementRequest, []*Receipt, error) {
	req, err := s.db.GetRequest(id)
	if err != nil {
		return nil, nil, fmt.Errorf("getting reimbursement: %w", err)
	}
	receipts, err := s.receiptsOf(req)
	if err != nil {
		return nil, nil, err
	}
	return req, receipts, nil
}

// ListRequests returns all reimbursement requests
func (s *Service) ListRequests() ([]*ReimbursementRequest, error) {
	reqs, err := s.db.ListRequests()
	if err != nil {
		return nil, fmt.Errorf("listing reimbursements: %w", err)
	}
	return reqs, nil
}

func (s *Service) receiptsOf(req *ReimbursementRequest) ([]*Receipt, error) {
	receipts := make([]*Receipt, 0, len(req.ReceiptIDs))
	for _, receiptID := range req.ReceiptIDs {
		receipt, err := s.db.GetReceipt(receiptID)
		if err != nil {
			return nil, fmt.Errorf("getting receipt %s: %w", receiptID, err)
		}
		receipts = append(receipts, receipt)
	}
	return receipts, nil
}
