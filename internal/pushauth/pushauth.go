// Package pushauth implements the HTTP Basic-Auth gate applied to every
// git route, keyed on the (owner, repo, token) triple stored per project.
package pushauth

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shipgit/shipgit/internal/metrics"
	"github.com/shipgit/shipgit/internal/store"
)

// Middleware wraps next with the push-auth gate. If enabled is false every
// request passes through unchanged, matching the global git_auth flag.
type Middleware struct {
	Store   store.ProjectStore
	Enabled bool
	Log     *slog.Logger
	Metrics *metrics.Metrics
}

// OwnerRepo is implemented by callers that can tell the middleware which
// owner/repo a request is for, since that is parsed from the URL by the
// caller's own router, not by this package.
type OwnerRepo func(r *http.Request) (owner, repo string, ok bool)

func (m *Middleware) Wrap(resolve OwnerRepo, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		owner, repo, ok := resolve(r)
		if !ok {
			http.NotFound(w, r)
			return
		}
		repo = strings.TrimSuffix(repo, ".git")

		user, token, ok := parseBasicAuth(r.Header.Get("Authorization"))
		if !ok {
			m.logDebug("missing or malformed Authorization header", owner, repo)
			m.countFailure("git")
			RequireAuthHeader(w)
			return
		}

		if !m.authenticate(r.Context(), user, repo, token) {
			m.countFailure("failed to login")
			m.unauthorized(w, "failed to login")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate looks up tokens by the decoded Basic-Auth username rather
// than the URL-path owner: the two usually agree, but it's the decoded
// credential that is the authenticated identity.
func (m *Middleware) authenticate(ctx context.Context, user, repo, token string) bool {
	tokens, err := m.Store.ListTokensByOwner(ctx, user)
	if err != nil {
		m.logDebug("token lookup failed: "+err.Error(), user, repo)
		return false
	}

	for _, t := range tokens {
		if t.ProjectName == repo && t.ProjectOwner == user && t.Token == token {
			return true
		}
	}
	return false
}

func (m *Middleware) unauthorized(w http.ResponseWriter, realm string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
	w.WriteHeader(http.StatusUnauthorized)
}

func (m *Middleware) countFailure(realm string) {
	if m.Metrics != nil {
		m.Metrics.PushAuthFailures.WithLabelValues(realm).Inc()
	}
}

func (m *Middleware) logDebug(msg, owner, repo string) {
	if m.Log != nil {
		m.Log.Debug(msg, "owner", owner, "repo", repo)
	}
}

// parseBasicAuth decodes "Basic base64(user:token)", returning ok=false for
// any missing header, wrong scheme, bad base64, or missing ':' separator.
func parseBasicAuth(header string) (user, token string, ok bool) {
	if header == "" {
		return "", "", false
	}
	scheme, encoded, found := strings.Cut(header, " ")
	if !found || scheme != "Basic" {
		return "", "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", false
	}
	user, token, found = strings.Cut(string(decoded), ":")
	if !found {
		return "", "", false
	}
	return user, token, true
}

// RequireAuthHeader writes the initial 401 for a request whose
// Authorization header is missing or is not a well-formed Basic
// credential, using realm "git".
func RequireAuthHeader(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="git"`)
	w.WriteHeader(http.StatusUnauthorized)
}
