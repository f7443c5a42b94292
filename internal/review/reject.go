package review

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// RejectionNotePrefix starts the public note recorded for every rejection
const RejectionNotePrefix = "Rejection Reason: "

// Reject moves a request to Rejected and records the reason as a public
// note. The two writes are independent; if the note fails after the status
// changed, a *PartialFailureError says so and the same reviewer calling
// Reject again writes only the note.
func (s *Service) Reject(ctx context.Context, requestID, reason string) (*ReimbursementRequest, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, invalid("reason", "must not be empty")
	}
	note := RejectionNotePrefix + reason
	if err := validateNote(note); err != nil {
		return nil, err
	}

	current, err := s.GetRequest(requestID)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusRejected {
		if hasRejectionNote(current) {
			return nil, &TransitionError{From: StatusRejected, To: StatusRejected}
		}
		if by, ok := rejectedBy(current); ok && by != actor {
			return nil, fmt.Errorf("reimbursement %s was rejected by %s: %w", requestID, by, &TransitionError{From: StatusRejected, To: StatusRejected})
		}
		slog.Info("Completing rejection note", "request_id", requestID, "actor", actor)
	} else {
		if _, err := s.transition(actor, requestID, StatusRejected, true); err != nil {
			return nil, err
		}
	}

	req, err := s.addAuditNote(actor, requestID, note, false, hasRejectionNote)
	if err != nil {
		slog.Warn("Reimbursement rejected but reason note not written", "request_id", requestID, "actor", actor, "error", err)
		return nil, &PartialFailureError{Completed: StageTransition, Failed: StageNote, Err: err}
	}
	return req, nil
}

// rejectedBy returns the reviewer whose status change rejected req
func rejectedBy(req *ReimbursementRequest) (string, bool) {
	for i := len(req.AuditLogs) - 1; i >= 0; i-- {
		e := req.AuditLogs[i]
		if e.Action == ActionStatusChange && e.To == StatusRejected {
			return e.AuditorID, true
		}
	}
	return "", false
}

// hasRejectionNote reports whether a public rejection reason is on record.
// Rejected is terminal, so there is at most one rejection to explain.
func hasRejectionNote(req *ReimbursementRequest) bool {
	for _, n := range req.AuditNotes {
		if !n.IsPrivate && strings.HasPrefix(n.Note, RejectionNotePrefix) {
			return true
		}
	}
	return false
}
