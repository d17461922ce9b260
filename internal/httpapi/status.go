package httpapi

import (
	"net/http"
	"time"
)

type statusResponse struct {
	Project    string     `json:"project"`
	Owner      string     `json:"owner"`
	Status     string     `json:"status"`
	BuildID    string     `json:"build_id"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

// handleStatus reports the latest build for a project: project lookup,
// then most recent build by created_at.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	owner, repo := r.PathValue("owner"), r.PathValue("repo")

	project, err := s.Store.FindProject(r.Context(), owner, repo)
	if err != nil {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}

	build, err := s.Store.LatestBuild(r.Context(), project.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get build status")
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, statusResponse{
		Project:    repo,
		Owner:      owner,
		Status:     string(build.Status),
		BuildID:    build.ID.String(),
		CreatedAt:  build.CreatedAt,
		UpdatedAt:  build.UpdatedAt,
		FinishedAt: build.FinishedAt,
	})
}
