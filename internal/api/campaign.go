package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/outreach/internal/campaign"
	"github.com/foxzi/outreach/internal/geo"
	"github.com/foxzi/outreach/internal/metrics"
	"github.com/foxzi/outreach/internal/template"
	"github.com/foxzi/outreach/internal/testsend"
)

// Submission endpoint messages
const (
	SubmissionReadyMessage  = "Campaign API endpoint ready for implementation"
	SubmissionFailedMessage = "Failed to process campaign"
	SubmissionInvalid       = "Campaign is not valid"
)

// SubmissionResponse is the body of every /api/campaign reply
type SubmissionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SubmitResponse is the response for POST /api/v1/session/submit
type SubmitResponse struct {
	Success    bool                       `json:"success"`
	Message    string                     `json:"message,omitempty"`
	Error      string                     `json:"error,omitempty"`
	Validation *campaign.ValidationResult `json:"validation,omitempty"`
	Campaign   *campaign.Config           `json:"campaign,omitempty"`
}

// RenderRequest is the request body for POST /api/v1/render. An empty
// template renders the session's primary template; nil values use the
// sample recipient with the session's industry and location.
type RenderRequest struct {
	Template string           `json:"template"`
	Values   *template.Values `json:"values,omitempty"`
}

// RenderResponse is the response for POST /api/v1/render
type RenderResponse struct {
	Rendered     string              `json:"rendered"`
	Preview      string              `json:"preview"`
	Placeholders template.ScanResult `json:"placeholders"`
}

// IndustryRequest is the request body for PUT /api/v1/session/industry
type IndustryRequest struct {
	Industry string `json:"industry"`
}

// LocationRequest is the request body for PUT /api/v1/session/location.
// An empty city selects the country's default city.
type LocationRequest struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

// ABTestingRequest is the request body for PUT /api/v1/session/ab-testing
type ABTestingRequest struct {
	Enabled bool `json:"enabled"`
}

// LimitsRequest is the request body for PUT /api/v1/session/limits
type LimitsRequest struct {
	EmailsPerDay int `json:"emails_per_day"`
	MinInterval  int `json:"min_interval"`
	MaxInterval  int `json:"max_interval"`
}

// WindowRequest is the request body for PUT /api/v1/session/window
type WindowRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// TemplateRequest is the request body for PUT /api/v1/session/templates/{id}
type TemplateRequest struct {
	Content string `json:"content"`
}

// handleCampaignSubmission handles /api/campaign. It accepts any JSON body
// on POST and only logs it.
func (s *Server) handleCampaignSubmission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		s.sendJSON(w, http.StatusMethodNotAllowed, SubmissionResponse{
			Error: fmt.Sprintf("Method %s Not Allowed", r.Method),
		})
		return
	}

	if s.config.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	}
	data, err := io.ReadAll(r.Body)
	if err == nil && len(strings.TrimSpace(string(data))) > 0 && !json.Valid(data) {
		err = fmt.Errorf("body is not valid JSON")
	}
	if err != nil {
		s.logger.Error("failed to process campaign submission", "error", err)
		metrics.IncSubmissions("error")
		s.sendJSON(w, http.StatusInternalServerError, SubmissionResponse{Error: SubmissionFailedMessage})
		return
	}

	s.logger.Info("campaign submission received", "campaign", string(data))
	metrics.IncSubmissions("received")

	s.sendJSON(w, http.StatusOK, SubmissionResponse{
		Success: true,
		Message: SubmissionReadyMessage,
	})
}

// handleLocations handles GET /api/v1/locations
func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, geo.Countries())
}

// handleLocation handles GET /api/v1/locations/{code}
func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	code := strings.ToLower(chi.URLParam(r, "code"))
	country, ok := geo.Lookup(code)
	if !ok {
		s.sendError(w, http.StatusNotFound, "Country not found")
		return
	}
	if country.Cities == nil {
		country.Cities = []string{}
	}
	s.sendJSON(w, http.StatusOK, country)
}

// handlePlaceholders handles GET /api/v1/placeholders
func (s *Server) handlePlaceholders(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, template.Catalog())
}

// handleValidate handles POST /api/v1/validate. The posted campaign is
// validated as-is, missing fields keep their defaults.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	cfg := campaign.Default()
	if err := s.decodeJSON(w, r, &cfg); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.sendJSON(w, http.StatusOK, s.validate(cfg))
}

func (s *Server) validate(cfg campaign.Config) campaign.ValidationResult {
	res := campaign.Validate(cfg)
	metrics.ObserveValidation(res.IsValid, res.Rules)
	return res
}

// handleRender handles POST /api/v1/render
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req RenderRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	cfg := s.session.Snapshot()
	tmpl := req.Template
	if tmpl == "" {
		if primary, ok := cfg.Primary(); ok {
			tmpl = primary.Content
		}
	}

	values := sampleValues(cfg)
	if req.Values != nil {
		values = *req.Values
	}

	rendered := template.RenderValues(tmpl, values)
	s.sendJSON(w, http.StatusOK, RenderResponse{
		Rendered:     rendered,
		Preview:      template.Truncate(rendered, testsend.DefaultPreviewLength),
		Placeholders: template.Scan(tmpl),
	})
}

func sampleValues(cfg campaign.Config) template.Values {
	sample := testsend.DefaultRequest()
	return template.Values{
		CompanyName: sample.CompanyName,
		CompanyInfo: sample.CompanyInfo,
		ContactName: sample.ContactName,
		Website:     sample.Website,
		Industry:    cfg.Industry,
		Location:    template.LocationFor(cfg.City, cfg.Country),
	}
}

// handleGetSession handles GET /api/v1/session
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.session.View())
}

// handleReplaceSession handles PUT /api/v1/session
func (s *Server) handleReplaceSession(w http.ResponseWriter, r *http.Request) {
	cfg := campaign.Default()
	if err := s.decodeJSON(w, r, &cfg); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.session.Replace(cfg); err != nil {
		s.sendServiceError(w, err, "Failed to replace campaign")
		return
	}
	s.logger.Info("campaign replaced")
	s.sendJSON(w, http.StatusOK, s.session.View())
}

// handleResetSession handles POST /api/v1/session/reset
func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	s.session.Reset()
	s.logger.Info("campaign reset")
	s.sendJSON(w, http.StatusOK, s.session.View())
}

// handleSetIndustry handles PUT /api/v1/session/industry
func (s *Server) handleSetIndustry(w http.ResponseWriter, r *http.Request) {
	var req IndustryRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.session.SetIndustry(req.Industry)
	s.sendJSON(w, http.StatusOK, s.session.View())
}

// handleSetLocation handles PUT /api/v1/session/location
func (s *Server) handleSetLocation(w http.ResponseWriter, r *http.Request) {
	var req LocationRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.session.SetLocation(req.Country, req.City); err != nil {
		s.sendServiceError(w, err, "Failed to set location")
		return
	}
	s.sendJSON(w, http.StatusOK, s.session.View())
}

// handleSetABTesting handles PUT /api/v1/session/ab-testing
func (s *Server) handleSetABTesting(w http.ResponseWriter, r *http.Request) {
	var req ABTestingRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.session.SetABTesting(req.Enabled)
	s.sendJSON(w, http.StatusOK, s.session.View())
}

// handleSetLimits handles PUT /api/v1/session/limits
func (s *Server) handleSetLimits(w http.ResponseWriter, r *http.Request) {
	var req LimitsRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	s.session.SetLimits(req.EmailsPerDay, req.MinInterval, req.MaxInterval)
	s.sendJSON(w, http.StatusOK, s.session.View())
}

// handleSetWindow handles PUT /api/v1/session/window
func (s *Server) handleSetWindow(w http.ResponseWriter, r *http.Request) {
	var req WindowRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.session.SetWindow(req.StartTime, req.EndTime); err != nil {
		s.sendServiceError(w, err, "Failed to set sending window")
		return
	}
	s.sendJSON(w, http.StatusOK, s.session.View())
}

// handleSetSchedule handles PUT /api/v1/session/schedule
func (s *Server) handleSetSchedule(w http.ResponseWriter, r *http.Request) {
	var sched campaign.Schedule
	if err := s.decodeJSON(w, r, &sched); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.session.SetSchedule(sched); err != nil {
		s.sendServiceError(w, err, "Failed to set schedule")
		return
	}
	s.sendJSON(w, http.StatusOK, s.session.View())
}

// handleAddTemplate handles POST /api/v1/session/templates
func (s *Server) handleAddTemplate(w http.ResponseWriter, r *http.Request) {
	tmpl, err := s.session.AddTemplate()
	if err != nil {
		s.sendServiceError(w, err, "Failed to add template")
		return
	}
	s.logger.Info("template variant added", "id", tmpl.ID)
	s.sendJSON(w, http.StatusCreated, s.session.View())
}

// handleUpdateTemplate handles PUT /api/v1/session/templates/{id}
func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.session.UpdateTemplate(chi.URLParam(r, "id"), req.Content); err != nil {
		s.sendServiceError(w, err, "Failed to update template")
		return
	}
	s.sendJSON(w, http.StatusOK, s.session.View())
}

// handleRemoveTemplate handles DELETE /api/v1/session/templates/{id}
func (s *Server) handleRemoveTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.session.RemoveTemplate(id); err != nil {
		s.sendServiceError(w, err, "Failed to remove template")
		return
	}
	s.logger.Info("template variant removed", "id", id)
	s.sendJSON(w, http.StatusOK, s.session.View())
}

// handleValidateSession handles GET /api/v1/session/validate
func (s *Server) handleValidateSession(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.validate(s.session.Snapshot()))
}

// handleSubmitSession handles POST /api/v1/session/submit. Only a valid
// campaign is accepted.
func (s *Server) handleSubmitSession(w http.ResponseWriter, r *http.Request) {
	cfg := s.session.Snapshot()
	res := s.validate(cfg)
	if !res.IsValid {
		metrics.IncSubmissions("invalid")
		s.sendJSON(w, http.StatusUnprocessableEntity, SubmitResponse{
			Error:      SubmissionInvalid,
			Validation: &res,
		})
		return
	}

	s.logger.Info("campaign submitted",
		"industry", cfg.Industry,
		"country", cfg.Country,
		"city", cfg.City,
		"templates", len(campaign.ActiveTemplates(cfg)),
	)
	metrics.IncSubmissions("accepted")

	s.sendJSON(w, http.StatusOK, SubmitResponse{
		Success:    true,
		Message:    SubmissionReadyMessage,
		Validation: &res,
		Campaign:   &cfg,
	})
}
