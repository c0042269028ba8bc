package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mcanepa/sendero/internal/models"
	"github.com/mcanepa/sendero/internal/schedule"
)

// handleGetSettings handles GET /api/v1/settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.settings.Get()
	if err != nil {
		s.handleServiceError(w, err, "failed to load settings")
		return
	}
	s.sendJSON(w, http.StatusOK, st)
}

// handleUpdateSettings handles PUT /api/v1/settings
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var st models.Settings
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := schedule.ValidateSettings(st); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	st.UpdatedAt = time.Now()
	if err := s.settings.Update(&st); err != nil {
		s.handleServiceError(w, err, "failed to update settings")
		return
	}

	s.logger.Info("settings updated",
		"timezone", st.Timezone,
		"daily_quota", st.DailyQuota,
		"min_delay_seconds", st.MinDelaySeconds,
	)
	s.sendJSON(w, http.StatusOK, st)
}
