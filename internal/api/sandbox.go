package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/outreach/internal/sandbox"
)

// SandboxMessageResponse represents a captured message in API responses
type SandboxMessageResponse struct {
	ID           string    `json:"id"`
	From         string    `json:"from"`
	To           []string  `json:"to"`
	Subject      string    `json:"subject"`
	Body         string    `json:"body,omitempty"`
	Domain       string    `json:"domain"`
	Mode         string    `json:"mode"`
	CapturedAt   time.Time `json:"captured_at"`
	Size         int       `json:"size,omitempty"`
	SimulatedErr string    `json:"simulated_error,omitempty"`
}

// SandboxListResponse is the response for GET /api/v1/sandbox
type SandboxListResponse struct {
	Messages []*SandboxMessageResponse `json:"messages"`
	Total    int                       `json:"total"`
}

// ClearResponse is the response for DELETE /api/v1/sandbox
type ClearResponse struct {
	Deleted int `json:"deleted"`
}

func toSandboxResponse(msg *sandbox.Message, withBody bool) *SandboxMessageResponse {
	resp := &SandboxMessageResponse{
		ID:           msg.ID,
		From:         msg.From,
		To:           msg.To,
		Subject:      msg.Subject,
		Domain:       msg.Domain,
		Mode:         msg.Mode,
		CapturedAt:   msg.CapturedAt,
		SimulatedErr: msg.SimulatedErr,
	}
	if withBody {
		resp.Body = msg.Body
		resp.Size = len(msg.Data)
	}
	return resp
}

// handleSandboxList handles GET /api/v1/sandbox
func (s *Server) handleSandboxList(w http.ResponseWriter, r *http.Request) {
	if s.sandbox == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Sandbox storage not available")
		return
	}

	q := r.URL.Query()
	filter := sandbox.ListFilter{
		Domain: q.Get("domain"),
		Mode:   q.Get("mode"),
		To:     q.Get("to"),
		Limit:  100, // Default limit
	}

	if limit := q.Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			filter.Limit = min(l, 1000)
		}
	}
	if offset := q.Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil && o >= 0 {
			filter.Offset = min(o, 1000000)
		}
	}

	messages, err := s.sandbox.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list sandbox messages", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list messages")
		return
	}

	resp := SandboxListResponse{
		Messages: make([]*SandboxMessageResponse, len(messages)),
		Total:    len(messages),
	}
	for i, msg := range messages {
		resp.Messages[i] = toSandboxResponse(msg, false)
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleSandboxGet handles GET /api/v1/sandbox/{id}
func (s *Server) handleSandboxGet(w http.ResponseWriter, r *http.Request) {
	if s.sandbox == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Sandbox storage not available")
		return
	}

	msg, err := s.sandbox.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendServiceError(w, err, "Failed to get message")
		return
	}
	s.sendJSON(w, http.StatusOK, toSandboxResponse(msg, true))
}

// handleSandboxDelete handles DELETE /api/v1/sandbox/{id}
func (s *Server) handleSandboxDelete(w http.ResponseWriter, r *http.Request) {
	if s.sandbox == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Sandbox storage not available")
		return
	}

	if err := s.sandbox.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendServiceError(w, err, "Failed to delete message")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSandboxClear handles DELETE /api/v1/sandbox. Optional query
// parameters: domain, older_than (Go duration).
func (s *Server) handleSandboxClear(w http.ResponseWriter, r *http.Request) {
	if s.sandbox == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Sandbox storage not available")
		return
	}

	var olderThan time.Duration
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			s.sendError(w, http.StatusBadRequest, "Invalid older_than duration")
			return
		}
		olderThan = d
	}

	count, err := s.sandbox.Clear(r.Context(), r.URL.Query().Get("domain"), olderThan)
	if err != nil {
		s.logger.Error("failed to clear sandbox", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to clear messages")
		return
	}

	s.logger.Info("sandbox cleared", "deleted", count)
	s.sendJSON(w, http.StatusOK, ClearResponse{Deleted: count})
}

// handleSandboxStats handles GET /api/v1/sandbox/stats
func (s *Server) handleSandboxStats(w http.ResponseWriter, r *http.Request) {
	if s.sandbox == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Sandbox storage not available")
		return
	}

	stats, err := s.sandbox.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to get sandbox stats", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get stats")
		return
	}
	s.sendJSON(w, http.StatusOK, stats)
}
