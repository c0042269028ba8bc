package api

import (
	"encoding/json"
	"net/http"
)

// UnsubscribeRequest is the body of POST /api/unsubscribe
type UnsubscribeRequest struct {
	Token string `json:"token"`
}

// handleUnsubscribe handles GET and POST /api/unsubscribe. The route is
// public: the token itself is the credential, recipients arrive here from
// a link in their inbox without an API key.
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" && r.Method == http.MethodPost {
		var req UnsubscribeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		token = req.Token
	}
	if token == "" {
		s.sendError(w, http.StatusBadRequest, "Link de baja inválido")
		return
	}

	result, err := s.unsubs.Redeem(token)
	if err != nil {
		s.handleServiceError(w, err, "failed to redeem unsubscribe token")
		return
	}

	s.sendJSON(w, http.StatusOK, result)
}
