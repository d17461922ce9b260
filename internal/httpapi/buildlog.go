package httpapi

import (
	"io"
	"net/http"
	"os"
)

// handleBuildLog streams the full build transcript for build_id, recovered
// from the original system's project router; the storage mechanism is
// internal/buildlog.
func (s *Server) handleBuildLog(w http.ResponseWriter, r *http.Request) {
	if s.BuildLog == nil {
		writeError(w, http.StatusNotFound, "Build log not found")
		return
	}

	owner, repo, buildID := r.PathValue("owner"), r.PathValue("repo"), r.PathValue("build_id")
	if _, err := s.Store.FindProject(r.Context(), owner, repo); err != nil {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}

	f, _, err := s.BuildLog.Get(buildID)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "Build log not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to read build log")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}
