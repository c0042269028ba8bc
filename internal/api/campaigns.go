package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mcanepa/sendero/internal/campaign"
	"github.com/mcanepa/sendero/internal/errs"
	"github.com/mcanepa/sendero/internal/models"
)

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// CampaignResponse is the detail response for a single campaign
type CampaignResponse struct {
	Campaign *models.Campaign      `json:"campaign"`
	Stats    *models.CampaignStats `json:"stats,omitempty"`
}

// ListResponse wraps paginated collections
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// handleListCampaigns handles GET /api/v1/campaigns
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.CampaignListFilter{
		Query:  q.Get("query"),
		Status: models.CampaignStatus(q.Get("status")),
		Limit:  queryInt(q.Get("limit"), 50),
		Offset: queryInt(q.Get("offset"), 0),
	}

	items, total, err := s.campaigns.List(filter)
	if err != nil {
		s.handleServiceError(w, err, "failed to list campaigns")
		return
	}
	s.sendJSON(w, http.StatusOK, ListResponse[models.Campaign]{Items: items, Total: total})
}

// handleCreateCampaign handles POST /api/v1/campaigns
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	c, err := s.campaigns.Create(in)
	if err != nil {
		s.handleServiceError(w, err, "failed to create campaign")
		return
	}

	s.logger.Info("campaign created", "id", c.ID, "name", c.Name)
	s.sendJSON(w, http.StatusCreated, CampaignResponse{Campaign: c})
}

// handleGetCampaign handles GET /api/v1/campaigns/{id}
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, stats, err := s.campaigns.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.handleServiceError(w, err, "failed to load campaign")
		return
	}
	s.sendJSON(w, http.StatusOK, CampaignResponse{Campaign: c, Stats: stats})
}

// handleUpdateCampaign handles PUT /api/v1/campaigns/{id}
func (s *Server) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var in campaign.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	c, err := s.campaigns.Update(chi.URLParam(r, "id"), in)
	if err != nil {
		s.handleServiceError(w, err, "failed to update campaign")
		return
	}
	s.sendJSON(w, http.StatusOK, CampaignResponse{Campaign: c})
}

// handleDeleteCampaign handles DELETE /api/v1/campaigns/{id}
func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.campaigns.Delete(id); err != nil {
		s.handleServiceError(w, err, "failed to delete campaign")
		return
	}
	s.logger.Info("campaign deleted", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// SnapshotRequest is the request body for POST /campaigns/{id}/snapshot
type SnapshotRequest struct {
	Force bool `json:"force"`
}

// handleSnapshot handles POST /api/v1/campaigns/{id}/snapshot
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	var req SnapshotRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	id := chi.URLParam(r, "id")
	result, err := s.campaigns.GenerateSnapshot(id, req.Force)
	if err != nil {
		s.handleServiceError(w, err, "failed to generate snapshot")
		return
	}

	s.logger.Info("snapshot generated", "campaign_id", id, "created", result.Created, "skipped", result.Skipped)
	s.sendJSON(w, http.StatusOK, result)
}

// handleStart handles POST /api/v1/campaigns/{id}/start
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.campaignAction(w, chi.URLParam(r, "id"), "started", s.campaigns.Start)
}

// handlePause handles POST /api/v1/campaigns/{id}/pause
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.campaignAction(w, chi.URLParam(r, "id"), "paused", s.campaigns.Pause)
}

// handleResume handles POST /api/v1/campaigns/{id}/resume
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.campaignAction(w, chi.URLParam(r, "id"), "resumed", s.campaigns.Resume)
}

// handleCancel handles POST /api/v1/campaigns/{id}/cancel
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.campaignAction(w, chi.URLParam(r, "id"), "cancelled", s.campaigns.Cancel)
}

// campaignAction runs a state transition and responds with the updated
// campaign so clients see the resulting status in one round trip.
func (s *Server) campaignAction(w http.ResponseWriter, id, verb string, fn func(string) error) {
	if err := fn(id); err != nil {
		s.handleServiceError(w, err, "campaign transition failed")
		return
	}

	c, stats, err := s.campaigns.Get(id)
	if err != nil {
		s.handleServiceError(w, err, "failed to reload campaign")
		return
	}

	s.logger.Info("campaign "+verb, "id", id, "status", c.Status)
	s.sendJSON(w, http.StatusOK, CampaignResponse{Campaign: c, Stats: stats})
}

// TestSendRequest is the request body for POST /campaigns/{id}/test-send
type TestSendRequest struct {
	ContactID string `json:"contact_id"`
	ToEmail   string `json:"to_email"`
}

// handleTestSend handles POST /api/v1/campaigns/{id}/test-send
func (s *Server) handleTestSend(w http.ResponseWriter, r *http.Request) {
	var req TestSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ev, err := s.campaigns.TestSend(r.Context(), chi.URLParam(r, "id"), req.ContactID, req.ToEmail)
	if err != nil {
		s.handleServiceError(w, err, "test send failed")
		return
	}

	if s.metrics != nil {
		s.metrics.TestSendsTotal.Inc()
	}
	s.sendJSON(w, http.StatusOK, ev)
}

// handleListTestSends handles GET /api/v1/campaigns/{id}/test-sends
func (s *Server) handleListTestSends(w http.ResponseWriter, r *http.Request) {
	events, err := s.campaigns.ListTestSends(chi.URLParam(r, "id"))
	if err != nil {
		s.handleServiceError(w, err, "failed to list test sends")
		return
	}
	s.sendJSON(w, http.StatusOK, ListResponse[models.TestSendEvent]{Items: events, Total: len(events)})
}

// IncludeContactRequest is the request body for POST /campaigns/{id}/include-contact
type IncludeContactRequest struct {
	ContactID string `json:"contact_id"`
}

// handleIncludeContact handles POST /api/v1/campaigns/{id}/include-contact
func (s *Server) handleIncludeContact(w http.ResponseWriter, r *http.Request) {
	var req IncludeContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	draft, err := s.campaigns.IncludeContact(chi.URLParam(r, "id"), req.ContactID)
	if err != nil {
		s.handleServiceError(w, err, "failed to include contact")
		return
	}
	s.sendJSON(w, http.StatusCreated, draft)
}

// handleListDrafts handles GET /api/v1/campaigns/{id}/drafts
func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.DraftListFilter{
		CampaignID: chi.URLParam(r, "id"),
		State:      models.DraftState(q.Get("state")),
		Query:      q.Get("query"),
		Limit:      queryInt(q.Get("limit"), 50),
		Offset:     queryInt(q.Get("offset"), 0),
	}

	items, total, err := s.campaigns.ListDrafts(filter)
	if err != nil {
		s.handleServiceError(w, err, "failed to list drafts")
		return
	}
	s.sendJSON(w, http.StatusOK, ListResponse[models.DraftItem]{Items: items, Total: total})
}

// handleExcludeDraft handles POST /api/v1/campaigns/{id}/drafts/{draftID}/exclude
func (s *Server) handleExcludeDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.campaigns.ExcludeDraft(chi.URLParam(r, "id"), chi.URLParam(r, "draftID")); err != nil {
		s.handleServiceError(w, err, "failed to exclude draft")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleIncludeDraft handles POST /api/v1/campaigns/{id}/drafts/{draftID}/include
func (s *Server) handleIncludeDraft(w http.ResponseWriter, r *http.Request) {
	if err := s.campaigns.IncludeDraft(chi.URLParam(r, "id"), chi.URLParam(r, "draftID")); err != nil {
		s.handleServiceError(w, err, "failed to include draft")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleServiceError maps domain errors to HTTP statuses. Anything outside
// the domain taxonomy is an infrastructure failure and is logged as such.
func (s *Server) handleServiceError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errs.IsValidation(err):
		s.sendError(w, http.StatusBadRequest, err.Error())
	case errs.IsNotFound(err):
		s.sendError(w, http.StatusNotFound, err.Error())
	case errs.IsStateConflict(err):
		s.sendError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error(logMsg, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
