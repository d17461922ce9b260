package httpapi

import "net/http"

type dashboardProject struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	OwnerName string `json:"owner_name"`
}

type dashboardResponse struct {
	Data        []dashboardProject `json:"data"`
	OwnedCount  int                `json:"owned_count"`
	SharedCount int                `json:"shared_count"`
}

// handleDashboard lists the caller's own and shared projects.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	identity := callerIdentity(r)
	if identity == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	projects, owned, err := s.Store.DashboardProjects(r.Context(), identity)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query database")
		return
	}

	data := make([]dashboardProject, len(projects))
	for i, p := range projects {
		data[i] = dashboardProject{ID: p.ID, Name: p.Name, OwnerName: p.OwnerName}
	}

	writeJSON(w, http.StatusOK, dashboardResponse{
		Data:        data,
		OwnedCount:  owned,
		SharedCount: len(data) - owned,
	})
}
