package httpapi

import "net/http"

type accessResponse struct {
	HasAccess bool `json:"has_access"`
}

// handleAccess reports whether the caller (owner or share) can reach
// owner/repo.
func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	owner, repo := r.PathValue("owner"), r.PathValue("repo")

	identity := callerIdentity(r)
	if identity == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	ok, err := s.Store.HasAccess(r.Context(), owner, repo, identity)
	if err != nil || !ok {
		writeError(w, http.StatusNotFound, "Project not found or you don't have access")
		return
	}

	writeJSON(w, http.StatusOK, accessResponse{HasAccess: true})
}
