package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/outreach/internal/ratelimit"
)

var rateLimitLevels = []ratelimit.Level{
	ratelimit.LevelGlobal,
	ratelimit.LevelRecipient,
	ratelimit.LevelRecipientDomain,
}

// RateLimitsResponse is the response for GET /api/v1/ratelimits
type RateLimitsResponse struct {
	Limits   map[ratelimit.Level]*ratelimit.LimitConfig `json:"limits"`
	Counters []*ratelimit.Stats                         `json:"counters"`
}

// RateLimitStatsResponse is the response for GET /api/v1/ratelimits/{level}/{key}
type RateLimitStatsResponse struct {
	*ratelimit.Stats
	HourlyLimit int `json:"hourly_limit"`
	DailyLimit  int `json:"daily_limit"`
}

func knownLevel(level ratelimit.Level) bool {
	for _, l := range rateLimitLevels {
		if l == level {
			return true
		}
	}
	return false
}

// handleRateLimitsGet handles GET /api/v1/ratelimits
func (s *Server) handleRateLimitsGet(w http.ResponseWriter, r *http.Request) {
	if s.rateLimiter == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Rate limiting is not enabled")
		return
	}

	resp := RateLimitsResponse{
		Limits:   make(map[ratelimit.Level]*ratelimit.LimitConfig),
		Counters: s.rateLimiter.AllStats(r.Context()),
	}
	for _, level := range rateLimitLevels {
		if limit := s.rateLimiter.LimitFor(level); limit != nil {
			resp.Limits[level] = limit
		}
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleRateLimitStats handles GET /api/v1/ratelimits/{level}/{key}
func (s *Server) handleRateLimitStats(w http.ResponseWriter, r *http.Request) {
	if s.rateLimiter == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Rate limiting is not enabled")
		return
	}

	level := ratelimit.Level(chi.URLParam(r, "level"))
	key := strings.ToLower(chi.URLParam(r, "key"))
	if !knownLevel(level) || key == "" {
		s.sendError(w, http.StatusBadRequest, "Unknown rate limit level")
		return
	}

	stats, err := s.rateLimiter.GetStats(r.Context(), level, key)
	if err != nil {
		s.logger.Error("failed to get rate limit stats", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get rate limit stats")
		return
	}

	resp := RateLimitStatsResponse{Stats: stats}
	if limit := s.rateLimiter.LimitFor(level); limit != nil {
		resp.HourlyLimit = limit.MessagesPerHour
		resp.DailyLimit = limit.MessagesPerDay
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleRateLimitReset handles DELETE /api/v1/ratelimits/{level}/{key}
func (s *Server) handleRateLimitReset(w http.ResponseWriter, r *http.Request) {
	if s.rateLimiter == nil {
		s.sendError(w, http.StatusServiceUnavailable, "Rate limiting is not enabled")
		return
	}

	level := ratelimit.Level(chi.URLParam(r, "level"))
	key := strings.ToLower(chi.URLParam(r, "key"))
	if !knownLevel(level) || key == "" {
		s.sendError(w, http.StatusBadRequest, "Unknown rate limit level")
		return
	}

	if err := s.rateLimiter.Reset(r.Context(), level, key); err != nil {
		s.logger.Error("failed to reset rate limit", "level", level, "key", key, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to reset rate limit")
		return
	}

	s.logger.Info("rate limit reset", "level", level, "key", key)
	w.WriteHeader(http.StatusNoContent)
}
