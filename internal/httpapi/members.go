package httpapi

import (
	"net/http"
	"time"
)

type memberResponse struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type membersResponse struct {
	Members []memberResponse `json:"members"`
}

// handleMembers lists an owner's members: users attached to the owner
// itself, not per-project shares.
func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")

	rows, err := s.Store.ListMembers(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query members")
		return
	}

	out := make([]memberResponse, len(rows))
	for i, m := range rows {
		out[i] = memberResponse{
			UserID:    m.UserID,
			Username:  m.Username,
			Name:      m.Name,
			CreatedAt: m.CreatedAt,
		}
	}

	writeJSON(w, http.StatusOK, membersResponse{Members: out})
}
