package review

import (
	"context"
	"log/slog"
)

// Transition moves a request to the target status on behalf of the acting
// reviewer. Rejection needs a reason and goes through Reject instead.
func (s *Service) Transition(ctx context.Context, requestID string, to Status) (*ReimbursementRequest, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	return s.transition(actor, requestID, to, false)
}

func (s *Service) transition(actor, requestID string, to Status, withReason bool) (*ReimbursementRequest, error) {
	var from Status
	req, err := s.mutateRequest("transition", requestID, func(req *ReimbursementRequest) error {
		edge, ok := LookupEdge(req.Status, to)
		if !ok {
			return &TransitionError{From: req.Status, To: to}
		}
		if edge.RequiresReason && !withReason {
			return invalid("reason", "a reason is required to reject a reimbursement")
		}
		// Evaluated against the same request version that is written, so an
		// audit landing in between forces a conflict and a re-check.
		if edge.RequiresAudit {
			receipts, err := s.receiptsOf(req)
			if err != nil {
				return err
			}
			if missing := unauditedBy(actor, receipts); len(missing) > 0 {
				return &GatingError{ReviewerID: actor, Unaudited: missing}
			}
		}

		from = req.Status
		req.Status = to
		req.appendLog(AuditLogEntry{
			Action:    ActionStatusChange,
			AuditorID: actor,
			Timestamp: s.timeSource.Now(),
			From:      from,
			To:        to,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Reimbursement status changed", "request_id", req.ID, "actor", actor, "from", from, "to", to)
	return req, nil
}

// TransitionOption is a status the request can move to next
type TransitionOption struct {
	To             Status   `json:"to"`
	RequiresReason bool     `json:"requires_reason"`
	Blocked        bool     `json:"blocked"`
	Unaudited      []string `json:"unaudited,omitempty"`
}

// AllowedTransitions projects the transition table onto a request for the
// acting reviewer. Gated edges are reported as blocked with the receipts
// still to audit rather than omitted.
func (s *Service) AllowedTransitions(ctx context.Context, requestID string) ([]TransitionOption, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	req, err := s.GetRequest(requestID)
	if err != nil {
		return nil, err
	}

	options := make([]TransitionOption, 0)
	for _, edge := range edgesFrom(req.Status) {
		opt := TransitionOption{To: edge.To, RequiresReason: edge.RequiresReason}
		if edge.RequiresAudit {
			receipts, err := s.receiptsOf(req)
			if err != nil {
				return nil, err
			}
			opt.Unaudited = unauditedBy(actor, receipts)
			opt.Blocked = len(opt.Unaudited) > 0
		}
		options = append(options, opt)
	}
	return options, nil
}
