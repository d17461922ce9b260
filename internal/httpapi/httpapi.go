// Package httpapi implements the read-only project endpoints recovered
// from the original dashboard/owner/project surface: tree browsing, build
// status, access checks, owner membership, and the caller's dashboard
// project list. All of it sits on top of the same store.ProjectStore the
// push path and build queue use.
//
// The original system gated these behind a cookie session; that auth
// model is out of scope here; instead the caller's identity is taken
// from the same HTTP Basic credentials used for git push (username only,
// no token check), and a caller with no Authorization header is treated
// as anonymous.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/shipgit/shipgit/internal/buildlog"
	"github.com/shipgit/shipgit/internal/store"
)

// Server serves the supplemented read endpoints against base, the same
// bare-repo root the smart-HTTP server uses.
type Server struct {
	Base     string
	Store    store.ProjectStore
	BuildLog *buildlog.Store // optional; powers the build-log download route
	Log      *slog.Logger
}

// Handler builds the routed read-only project surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/projects/{owner}/{repo}/tree", s.handleTree)
	mux.HandleFunc("GET /api/projects/{owner}/{repo}/status", s.handleStatus)
	mux.HandleFunc("GET /api/projects/{owner}/{repo}/access", s.handleAccess)
	mux.HandleFunc("GET /api/projects/{owner}/{repo}/builds/{build_id}/log", s.handleBuildLog)
	mux.HandleFunc("GET /api/owners/{owner}/members", s.handleMembers)
	mux.HandleFunc("GET /api/dashboard/projects", s.handleDashboard)
	return mux
}

// repoPath returns the absolute bare-repo path for owner/repo, always
// suffixed with ".git".
func (s *Server) repoPath(owner, repo string) string {
	if !strings.HasSuffix(repo, ".git") {
		repo += ".git"
	}
	return filepath.Join(s.Base, owner, repo)
}

// callerIdentity extracts the username from an HTTP Basic Authorization
// header, if any, without verifying a password or token; see the package
// doc for why this is the narrowed identity model used here.
func callerIdentity(r *http.Request) string {
	user, _, ok := r.BasicAuth()
	if !ok {
		return ""
	}
	return user
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Message: message})
}
