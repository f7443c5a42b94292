package review

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+devUserHeader)
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, map[string]string{"error": message})
}

// writeServiceError maps the workflow error taxonomy onto HTTP statuses
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		gating  *GatingError
		partial *PartialFailureError
	)
	switch {
	case errors.Is(err, ErrUnauthenticated):
		writeJSONError(w, "Unauthorized", http.StatusUnauthorized)
	case errors.As(err, &partial):
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":     err.Error(),
			"completed": string(partial.Completed),
			"failed":    string(partial.Failed),
		})
	case errors.Is(err, ErrNotFound):
		writeJSONError(w, "Not found", http.StatusNotFound)
	case errors.As(err, &gating):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":     err.Error(),
			"unaudited": gating.Unaudited,
		})
	case errors.Is(err, ErrValidation):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrConcurrencyConflict):
		writeJSONError(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("Unhandled service error", "error", err)
		writeJSONError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// canView reports whether the actor may see a request: reviewers see all,
// everyone else only their own
func (s *Server) canView(r *http.Request, req *ReimbursementRequest) (bool, bool) {
	actor, _ := ActorFromContext(r.Context())
	reviewer := s.directory.IsReviewer(actor)
	return reviewer || req.SubmittedBy == actor, reviewer
}

// projectRequest strips what the viewer may not see
func projectRequest(req *ReimbursementRequest, reviewer bool) ReimbursementRequest {
	view := *req
	view.AuditNotes = VisibleNotes(req.AuditNotes, reviewer)
	view.AuditLogs = VisibleLogs(req.AuditLogs, reviewer)
	return view
}

// handleCreateReceipt stores a new receipt for the caller
func (s *Server) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	var in ReceiptInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	receipt, err := s.service.CreateReceipt(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	actor, _ := ActorFromContext(r.Context())
	if receipt.CreatedBy != actor && !s.directory.IsReviewer(actor) {
		writeJSONError(w, "Not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleAuditReceipt marks a receipt audited by the caller
func (s *Server) handleAuditReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.AuditReceipt(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// handleSubmitReimbursement creates a reimbursement request
func (s *Server) handleSubmitReimbursement(w http.ResponseWriter, r *http.Request) {
	var in SubmissionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req, err := s.service.SubmitRequest(r.Context(), in)
	if err != nil {
		slog.Error("Error submitting reimbursement", "error", err)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// handleListReimbursements returns the requests visible to the caller
func (s *Server) handleListReimbursements(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.service.ListRequests()
	if err != nil {
		slog.Error("Error listing reimbursements", "error", err)
		writeServiceError(w, err)
		return
	}

	// Ensure we always return an array, not nil
	views := make([]ReimbursementRequest, 0, len(reqs))
	for _, req := range reqs {
		if ok, reviewer := s.canView(r, req); ok {
			views = append(views, projectRequest(req, reviewer))
		}
	}
	writeJSON(w, http.StatusOK, views)
}

// handleGetReimbursement returns a reimbursement with its receipts
func (s *Server) handleGetReimbursement(w http.ResponseWriter, r *http.Request) {
	req, receipts, err := s.service.GetRequestWithReceipts(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ok, reviewer := s.canView(r, req)
	if !ok {
		writeJSONError(w, "Not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reimbursement":     projectRequest(req, reviewer),
		"receipts":          receipts,
		"submitted_by_name": s.directory.DisplayName(req.SubmittedBy),
	})
}

// handleAllowedTransitions lists the statuses the caller can move the request to
func (s *Server) handleAllowedTransitions(w http.ResponseWriter, r *http.Request) {
	options, err := s.service.AllowedTransitions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, options)
}

// handleTransition changes the status of a request
func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !body.Status.Valid() {
		writeJSONError(w, "Unknown status: "+string(body.Status), http.StatusBadRequest)
		return
	}
	req, err := s.service.Transition(r.Context(), r.PathValue("id"), body.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// handleAddNote appends an audit note
func (s *Server) handleAddNote(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Note      string `json:"note"`
		IsPrivate bool   `json:"is_private"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req, err := s.service.AddAuditNote(r.Context(), r.PathValue("id"), body.Note, body.IsPrivate)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// handleReject rejects a request with a reason
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req, err := s.service.Reject(r.Context(), r.PathValue("id"), body.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
