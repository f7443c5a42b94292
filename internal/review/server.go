package review

import (
	"log/slog"
	"net/http"
)

// Directory resolves user ids for presentation and note visibility
type Directory interface {
	DisplayName(id string) string
	IsReviewer(id string) bool
}

// openDirectory treats every user as a reviewer and displays raw ids
type openDirectory struct{}

func (openDirectory) DisplayName(id string) string { return id }
func (openDirectory) IsReviewer(string) bool       { return true }

// Server handles HTTP requests for the review workflow
type Server struct {
	service   *Service
	auth      Auth
	directory Directory
	mux       *http.ServeMux
}

// NewServer creates a new Server with default mux. A nil directory treats
// every authenticated user as a reviewer.
func NewServer(service *Service, auth Auth, directory Directory) *Server {
	return NewServerWithMux(service, auth, directory, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, auth Auth, directory Directory, mux *http.ServeMux) *Server {
	if directory == nil {
		directory = openDirectory{}
	}
	s := &Server{
		service:   service,
		auth:      auth,
		directory: directory,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next(w, r)
	}
}

// requireAuth resolves the actor and stores it in the request context
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := s.auth.authenticate(r)
		if !ok {
			setCORSHeaders(w)
			if s.auth.Basic.Username != "" {
				w.Header().Set("WWW-Authenticate", `Basic realm="Reimbursement Review"`)
			}
			writeJSONError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(WithActor(r.Context(), actor)))
	}
}

// requireReviewer rejects authenticated users the directory does not list as reviewers
func (s *Server) requireReviewer(next http.HandlerFunc) http.HandlerFunc {
	return s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := ActorFromContext(r.Context())
		if !s.directory.IsReviewer(actor) {
			writeJSONError(w, "Reviewer role required", http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/receipts/{id}/audit", s.requireReviewer(s.handleAuditReceipt))
	s.mux.HandleFunc("GET /api/receipts/{id}", s.requireAuth(s.handleGetReceipt))
	s.mux.HandleFunc("POST /api/receipts", s.requireAuth(s.handleCreateReceipt))

	s.mux.HandleFunc("GET /api/reimbursements/{id}/transitions", s.requireReviewer(s.handleAllowedTransitions))
	s.mux.HandleFunc("POST /api/reimbursements/{id}/status", s.requireReviewer(s.handleTransition))
	s.mux.HandleFunc("POST /api/reimbursements/{id}/notes", s.requireReviewer(s.handleAddNote))
	s.mux.HandleFunc("POST /api/reimbursements/{id}/reject", s.requireReviewer(s.handleReject))
	s.mux.HandleFunc("GET /api/reimbursements/{id}", s.requireAuth(s.handleGetReimbursement))
	s.mux.HandleFunc("GET /api/reimbursements", s.requireAuth(s.handleListReimbursements))
	s.mux.HandleFunc("POST /api/reimbursements", s.requireAuth(s.handleSubmitReimbursement))
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s.corsMiddleware(s.mux.ServeHTTP))
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
