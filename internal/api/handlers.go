package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/foxzi/outreach/internal/campaign"
	"github.com/foxzi/outreach/internal/sandbox"
	"github.com/foxzi/outreach/internal/smtp"
	"github.com/foxzi/outreach/internal/testsend"
	"github.com/foxzi/outreach/internal/verify"
)

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Uptime       string `json:"uptime"`
	TestSendMode string `json:"test_send_mode,omitempty"`
	Verifying    bool   `json:"verifying"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.verifier != nil {
		resp.Verifying = s.verifier.Busy()
	}
	if s.testSend != nil {
		resp.TestSendMode = s.testSend.Mode()
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// decodeJSON reads a size-limited JSON body into v
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if s.config.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

// sendServiceError maps err to a status code and replies with its message.
// Server errors are logged and answered with fallback instead.
func (s *Server) sendServiceError(w http.ResponseWriter, err error, fallback string) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		s.logger.Error(fallback, "error", err)
		s.sendError(w, status, fallback)
		return
	}

	if status == http.StatusTooManyRequests {
		var rle *testsend.RateLimitError
		if errors.As(err, &rle) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rle.RetryAfter.Seconds()+0.5)))
		}
	}
	s.sendError(w, status, err.Error())
}

// errorStatus maps service errors to HTTP status codes
func errorStatus(err error) int {
	var deliveryErr *smtp.DeliveryError
	var simulatedErr *sandbox.SimulatedError

	switch {
	case errors.Is(err, campaign.ErrTemplateNotFound),
		errors.Is(err, verify.ErrNotFound),
		errors.Is(err, sandbox.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, verify.ErrBusy), errors.Is(err, testsend.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, testsend.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, campaign.ErrPrimaryTemplate),
		errors.Is(err, campaign.ErrABTestingDisabled),
		errors.Is(err, campaign.ErrUnknownCountry),
		errors.Is(err, campaign.ErrUnknownCity),
		errors.Is(err, campaign.ErrNoTemplates),
		errors.Is(err, campaign.ErrTemplateID),
		errors.Is(err, campaign.ErrInvalidSchedule),
		errors.Is(err, campaign.ErrInvalidTime),
		errors.Is(err, testsend.ErrEmailRequired),
		errors.Is(err, testsend.ErrTemplateRequired),
		errors.Is(err, testsend.ErrInvalidEmail):
		return http.StatusBadRequest
	case errors.As(err, &deliveryErr), errors.As(err, &simulatedErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
