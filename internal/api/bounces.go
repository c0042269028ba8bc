package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mcanepa/sendero/internal/models"
)

// ScanRequest is the request body for POST /api/v1/bounces/scan
type ScanRequest struct {
	Since *time.Time `json:"since,omitempty"`
}

// handleListBounces handles GET /api/v1/bounces
func (s *Server) handleListBounces(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.BounceListFilter{
		Limit:  queryInt(q.Get("limit"), 50),
		Offset: queryInt(q.Get("offset"), 0),
	}

	items, total, err := s.bounces.List(filter)
	if err != nil {
		s.handleServiceError(w, err, "failed to list bounces")
		return
	}
	s.sendJSON(w, http.StatusOK, ListResponse[models.BounceEvent]{Items: items, Total: total})
}

// handleScanBounces handles POST /api/v1/bounces/scan. Without an explicit
// since, the scan covers the last 7 days.
func (s *Server) handleScanBounces(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	since := time.Now().AddDate(0, 0, -7)
	if req.Since != nil {
		since = *req.Since
	}

	result, err := s.bounces.Sync(r.Context(), since)
	if err != nil {
		s.handleServiceError(w, err, "bounce scan failed")
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}
