package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/outreach/internal/testsend"
	"github.com/foxzi/outreach/internal/verify"
)

// TestEmailResponse is the response for POST /api/v1/test-email
type TestEmailResponse struct {
	Message string           `json:"message"`
	Result  *testsend.Result `json:"result"`
}

// handleTestEmail handles POST /api/v1/test-email. Sample fields missing
// from the body keep their default values.
func (s *Server) handleTestEmail(w http.ResponseWriter, r *http.Request) {
	if s.testSend == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Test email not available")
		return
	}

	req := testsend.DefaultRequest()
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := s.testSend.Send(r.Context(), s.session.Snapshot(), req)
	if notice, ok := testsend.Notice(err); ok {
		s.sendError(w, http.StatusBadRequest, notice)
		return
	}
	if err != nil {
		s.sendServiceError(w, err, "Failed to send test email")
		return
	}

	s.sendJSON(w, http.StatusOK, TestEmailResponse{
		Message: fmt.Sprintf("Test email sent to %s!", res.Recipient),
		Result:  res,
	})
}

// handleStartVerify handles POST /api/v1/verify. The session is verified
// as it is at submission time.
func (s *Server) handleStartVerify(w http.ResponseWriter, r *http.Request) {
	if s.verifier == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Verification not available")
		return
	}

	task, err := s.verifier.Submit(r.Context(), s.session.Snapshot())
	if err != nil {
		s.sendServiceError(w, err, "Failed to start verification")
		return
	}

	w.Header().Set("Location", "/api/v1/verify/"+task.ID())
	s.sendJSON(w, http.StatusAccepted, task.Snapshot())
}

// handleGetVerify handles GET /api/v1/verify/{id}. With ?wait=true the
// request blocks until the task finishes or the client goes away.
func (s *Server) handleGetVerify(w http.ResponseWriter, r *http.Request) {
	if s.verifier == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Verification not available")
		return
	}

	task, err := s.verifier.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, err, "Failed to get verification")
		return
	}

	var snap verify.Snapshot
	if r.URL.Query().Get("wait") == "true" {
		// A cancelled wait still reports the latest state
		snap, _ = task.Wait(r.Context())
	} else {
		snap = task.Snapshot()
	}
	s.sendJSON(w, http.StatusOK, snap)
}
