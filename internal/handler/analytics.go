package handler

import (
	"net/http"
	"strconv"

	"github.com/sakif/linkbio/internal/apperror"
	"github.com/sakif/linkbio/internal/service"
)

// AnalyticsHandler serves the dashboard numbers. All routes take
// ?range=24h|7d|30d|90d|all (default 7d).
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
}

func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// HandleSummary returns totals, CTR, top referrers and countries, the
// device histogram and the daily series.
//
// HTTP: GET /api/analytics/summary?range=30d&limit=10
func (h *AnalyticsHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rng, err := service.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary, err := h.analytics.Summary(r.Context(), userID, rng, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HTTP: GET /api/analytics/links?range=7d
func (h *AnalyticsHandler) HandleLinks(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rng, err := service.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	stats, err := h.analytics.Links(r.Context(), userID, rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HTTP: GET /api/analytics/daily?range=90d
func (h *AnalyticsHandler) HandleDaily(w http.ResponseWriter, r *http.Request) {
	userID, err := currentUser(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rng, err := service.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	series, err := h.analytics.Daily(r.Context(), userID, rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

// parseLimit reads the top-N size. Empty means the service default; the
// service also caps it.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperror.ValidationFailed("limit", "limit must be a positive integer")
	}
	return n, nil
}
