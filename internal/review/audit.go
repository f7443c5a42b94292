package review

import (
	"context"
	"fmt"
	"log/slog"
)

// AuditReceipt records that the acting reviewer has audited a receipt and
// logs it on the owning request. Auditing twice is a no-op. If the log write
// failed on an earlier call, calling again completes it.
func (s *Service) AuditReceipt(ctx context.Context, receiptID string) (*Receipt, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}

	receipt, err := s.mutateReceipt("audit receipt", receiptID, func(r *Receipt) error {
		if r.RequestID == "" {
			return invalid("receipt", fmt.Sprintf("receipt %s is not attached to a reimbursement", r.ID))
		}
		if r.AuditedByReviewer(actor) {
			return errUnchanged
		}
		r.AuditedBy = append(r.AuditedBy, actor)
		return nil
	})
	if err != nil {
		return nil, err
	}

	date := receipt.Date
	amount := receipt.Total()
	_, err = s.mutateRequest("log receipt audit", receipt.RequestID, func(req *ReimbursementRequest) error {
		if req.hasReceiptAudit(receipt.ID, actor) {
			return errUnchanged
		}
		req.appendLog(AuditLogEntry{
			Action:        ActionReceiptAudit,
			AuditorID:     actor,
			Timestamp:     s.timeSource.Now(),
			ReceiptID:     receipt.ID,
			ReceiptName:   receipt.Name(),
			ReceiptDate:   &date,
			ReceiptAmount: &amount,
		})
		return nil
	})
	if err != nil {
		slog.Warn("Receipt audited but log entry not written",
			"receipt_id", receipt.ID,
			"request_id", receipt.RequestID,
			"actor", actor,
			"error", err,
		)
		return receipt, &PartialFailureError{Completed: StageReceiptAudit, Failed: StageAuditLog, Err: err}
	}

	return receipt, nil
}

// CanApprove reports whether the acting reviewer has personally audited
// every receipt linked to the request
func (s *Service) CanApprove(ctx context.Context, requestID string) (bool, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return false, err
	}
	req, err := s.db.GetRequest(requestID)
	if err != nil {
		return false, fmt.Errorf("getting reimbursement: %w", err)
	}
	receipts, err := s.receiptsOf(req)
	if err != nil {
		return false, err
	}
	return len(unauditedBy(actor, receipts)) == 0, nil
}

// unauditedBy returns the ids of receipts reviewerID has not audited. An
// empty receipt list yields none.
func unauditedBy(reviewerID string, receipts []*Receipt) []string {
	var missing []string
	for _, r := range receipts {
		if !r.AuditedByReviewer(reviewerID) {
			missing = append(missing, r.ID)
		}
	}
	return missing
}
