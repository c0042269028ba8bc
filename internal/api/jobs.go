package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/mcanepa/sendero/internal/jobs"
	"github.com/mcanepa/sendero/internal/tick"
)

// TickResponse is the response for POST /api/jobs/send-tick. Success is
// false only for infrastructure failures, which also carry a 5xx status so
// the dispatcher redelivers; logic-level no-ops are successful.
type TickResponse struct {
	Success bool        `json:"success"`
	Result  tick.Result `json:"result,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleSendTick handles POST /api/jobs/send-tick. The signature is
// verified over the raw body before the payload is decoded; an invalid or
// missing signature is rejected without touching the campaign.
func (s *Server) handleSendTick(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	if !jobs.Verify(s.opts.SigningKey, body, r.Header.Get(jobs.SignatureHeader)) {
		s.logger.Warn("tick callback with invalid signature", "remote_addr", r.RemoteAddr)
		s.sendError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	var payload jobs.TickPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if payload.CampaignID == "" || payload.SendRunID == "" {
		s.sendError(w, http.StatusBadRequest, "campaignId and sendRunId are required")
		return
	}

	result, err := s.ticks.Process(r.Context(), payload.CampaignID, payload.SendRunID)
	if err != nil {
		s.logger.Error("tick processing failed",
			"campaign_id", payload.CampaignID,
			"run_id", payload.SendRunID,
			"error", err,
		)
		s.sendJSON(w, http.StatusInternalServerError, TickResponse{Success: false, Error: "Tick processing failed"})
		return
	}

	if s.metrics != nil {
		s.metrics.RecordTick(string(result.Action))
	}
	s.sendJSON(w, http.StatusOK, TickResponse{Success: true, Result: result})
}
