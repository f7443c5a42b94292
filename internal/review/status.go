package review

// Status is the lifecycle state of a reimbursement request
type Status string

const (
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusInProgress  Status = "in_progress"
	StatusPaid        Status = "paid"
	StatusRejected    Status = "rejected"
)

// Statuses lists every status in lifecycle order
var Statuses = []Status{
	StatusSubmitted,
	StatusUnderReview,
	StatusApproved,
	StatusInProgress,
	StatusPaid,
	StatusRejected,
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves s
func (s Status) Terminal() bool {
	return len(edgesFrom(s)) == 0
}

// Edge is a legal status transition and its preconditions
type Edge struct {
	From Status `json:"from"`
	To   Status `json:"to"`

	// RequiresAudit gates the edge on the actor having audited every receipt
	RequiresAudit bool `json:"requires_audit"`

	// RequiresReason means the edge is only taken through the rejection workflow
	RequiresReason bool `json:"requires_reason"`
}

// edges is the single source of truth for the state machine.
var edges = []Edge{
	{From: StatusSubmitted, To: StatusUnderReview},
	{From: StatusUnderReview, To: StatusApproved, RequiresAudit: true},
	{From: StatusApproved, To: StatusInProgress},
	{From: StatusInProgress, To: StatusPaid},
	{From: StatusSubmitted, To: StatusRejected, RequiresReason: true},
	{From: StatusUnderReview, To: StatusRejected, RequiresReason: true},
	{From: StatusApproved, To: StatusRejected, RequiresReason: true},
	{From: StatusInProgress, To: StatusRejected, RequiresReason: true},
}

// LookupEdge returns the edge from -> to, if it exists
func LookupEdge(from, to Status) (Edge, bool) {
	for _, e := range edges {
		if e.From == from && e.To == to {
			return e, true
		}
	}
	return Edge{}, false
}

func edgesFrom(from Status) []Edge {
	var out []Edge
	for _, e := range edges {
		if e.From == from {
			out = append(out, e)
		}
	}
	return out
}
