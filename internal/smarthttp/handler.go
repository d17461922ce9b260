// Package smarthttp implements the git smart-HTTP surface: ref
// advertisement, the upload-pack/receive-pack stateless RPCs, and the
// post-receive working-copy sync and build-queue handoff. It composes the
// pktline, gitproc, repofs, pushauth, and worktree packages behind one
// routed HTTP handler.
package smarthttp

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/shipgit/shipgit/internal/buildqueue"
	"github.com/shipgit/shipgit/internal/gitproc"
	"github.com/shipgit/shipgit/internal/metrics"
	"github.com/shipgit/shipgit/internal/pktline"
	"github.com/shipgit/shipgit/internal/pushauth"
	"github.com/shipgit/shipgit/internal/repofs"
	"github.com/shipgit/shipgit/internal/worktree"
)

// Server holds everything the smart-HTTP surface needs to serve one bare
// repository root: where repos live on disk, the push-auth gate, the
// post-receive synchronizer, and the build queue push lands in.
type Server struct {
	Base      string
	BodyLimit int64
	Auth      *pushauth.Middleware
	Sync      *worktree.Synchronizer
	Queue     *buildqueue.Queue
	Log       *slog.Logger
	Metrics   *metrics.Metrics
}

// Handler builds the full routed surface.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /{owner}/{repo}/info/refs", s.protect(s.handleInfoRefs))
	mux.Handle("POST /{owner}/{repo}/git-upload-pack", s.protect(s.handleUploadPack))
	mux.Handle("POST /{owner}/{repo}/git-receive-pack", s.protect(s.handleReceivePack))

	mux.Handle("GET /{owner}/{repo}/HEAD", s.protect(s.serveText("HEAD")))
	mux.Handle("GET /{owner}/{repo}/objects/info/alternates", s.protect(s.serveText("objects/info/alternates")))
	mux.Handle("GET /{owner}/{repo}/objects/info/http-alternates", s.protect(s.serveText("objects/info/http-alternates")))
	mux.Handle("GET /{owner}/{repo}/objects/info/packs", s.protect(s.handleInfoPacks))
	mux.Handle("GET /{owner}/{repo}/objects/info/{file}", s.protect(s.handleInfoFile))
	mux.Handle("GET /{owner}/{repo}/objects/{head}/{hash}", s.protect(s.handleLooseObject))
	mux.Handle("GET /{owner}/{repo}/objects/packs/{file}", s.protect(s.handlePackFile))

	return s.limitBody(mux)
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.BodyLimit > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.BodyLimit)
		}
		next.ServeHTTP(w, r)
	})
}

// protect gates handler behind the push-auth middleware, resolving
// owner/repo from the route values the mux has already populated.
func (s *Server) protect(handler http.HandlerFunc) http.Handler {
	return s.Auth.Wrap(func(r *http.Request) (owner, repo string, ok bool) {
		owner = r.PathValue("owner")
		repo = r.PathValue("repo")
		return owner, repo, owner != "" && repo != ""
	}, handler)
}

// repoPath returns the absolute path of the bare repository for
// owner/repo, always suffixed with ".git".
func (s *Server) repoPath(owner, repo string) string {
	if !strings.HasSuffix(repo, ".git") {
		repo += ".git"
	}
	return filepath.Join(s.Base, owner, repo)
}

func (s *Server) serveText(relPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		repoPath := s.repoPath(r.PathValue("owner"), r.PathValue("repo"))
		repofs.ServeText(w, repoPath, relPath)
	}
}

func (s *Server) handleInfoPacks(w http.ResponseWriter, r *http.Request) {
	repoPath := s.repoPath(r.PathValue("owner"), r.PathValue("repo"))
	repofs.ServeInfoPacks(w, repoPath)
}

func (s *Server) handleInfoFile(w http.ResponseWriter, r *http.Request) {
	repoPath := s.repoPath(r.PathValue("owner"), r.PathValue("repo"))
	repofs.ServeText(w, repoPath, filepath.Join("objects", "info", r.PathValue("file")))
}

func (s *Server) handleLooseObject(w http.ResponseWriter, r *http.Request) {
	repoPath := s.repoPath(r.PathValue("owner"), r.PathValue("repo"))
	repofs.ServeLooseObject(w, repoPath, r.PathValue("head"), r.PathValue("hash"))
}

func (s *Server) handlePackFile(w http.ResponseWriter, r *http.Request) {
	repoPath := s.repoPath(r.PathValue("owner"), r.PathValue("repo"))
	repofs.ServePackFile(w, repoPath, r.PathValue("file"))
}

// gitService strips the "git-" prefix axum/git clients send as the
// ?service= query value, e.g. "git-upload-pack" -> "upload-pack".
func gitService(raw string) string {
	if !strings.HasPrefix(raw, "git-") {
		return ""
	}
	return raw[len("git-"):]
}

func (s *Server) handleInfoRefs(w http.ResponseWriter, r *http.Request) {
	owner, repo := r.PathValue("owner"), r.PathValue("repo")
	repoPath := s.repoPath(owner, repo)
	service := gitService(r.URL.Query().Get("service"))

	if service != "upload-pack" && service != "receive-pack" {
		if err := gitproc.UpdateServerInfo(r.Context(), repoPath); err != nil {
			s.Log.Error("update-server-info failed", "owner", owner, "repo", repo, "err", err)
		}
		repofs.NoCache(w)
		repofs.ServeText(w, repoPath, "info/refs")
		return
	}

	protocolV2 := r.Header.Get("Git-Protocol") == "version=2"
	out, err := gitproc.AdvertiseRefs(r.Context(), repoPath, service, protocolV2)
	if err != nil {
		s.Log.Error("advertise-refs failed", "owner", owner, "repo", repo, "service", service, "err", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	body := append([]byte(pktline.Write("# service=git-"+service+"\n")), pktline.Flush...)
	body = append(body, out...)

	repofs.NoCache(w)
	w.Header().Set("Content-Type", "application/x-git-"+service+"-advertisement")
	w.Header().Set("Vary", "Accept-Encoding")
	w.Header().Set("Accept-Encoding", "Chunked")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handleUploadPack(w http.ResponseWriter, r *http.Request) {
	repoPath := s.repoPath(r.PathValue("owner"), r.PathValue("repo"))
	status, body, err := s.serviceRPC(r, "upload-pack", repoPath)
	if err != nil {
		s.Log.Error("upload-pack rpc failed", "err", err)
		w.Header().Set("Content-Type", "application/x-git-upload-pack-result")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeServiceResult(w, "upload-pack", status, body)
}

func (s *Server) handleReceivePack(w http.ResponseWriter, r *http.Request) {
	owner, repo := r.PathValue("owner"), r.PathValue("repo")
	repoPath := s.repoPath(owner, repo)

	status, body, err := s.serviceRPC(r, "receive-pack", repoPath)
	if err != nil {
		s.Log.Error("receive-pack rpc failed", "owner", owner, "repo", repo, "err", err)
		w.Header().Set("Content-Type", "application/x-git-receive-pack-result")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if status != http.StatusOK || len(body) == 0 {
		writeServiceResult(w, "receive-pack", status, body)
		return
	}

	containerSrc := filepath.Join(repoPath, "clone")
	if _, err := s.Sync.Sync(repoPath, containerSrc); err != nil {
		s.Log.Error("post-receive sync failed", "owner", owner, "repo", repo, "err", err)
		s.countPush(owner, repo, "sync_failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	name := containerName(owner, repo)
	if s.Queue != nil {
		// Deliberately not r.Context(): net/http cancels that the instant
		// ServeHTTP returns, which races this goroutine's send against the
		// response this handler is about to write.
		go s.Queue.Enqueue(context.Background(), buildqueue.Item{
			ContainerName: name,
			ContainerSrc:  containerSrc,
			Owner:         owner,
			Repo:          repo,
		})
	}
	s.countPush(owner, repo, "accepted")

	writeServiceResult(w, "receive-pack", status, body)
}

// containerName derives the build queue's dedup identity from the pushed
// repo: "<owner>-<repo without .git>", with every '.' replaced by '-'.
func containerName(owner, repo string) string {
	name := owner + "-" + strings.TrimSuffix(repo, ".git")
	return strings.ReplaceAll(name, ".", "-")
}

// serviceRPC handles gzip inflation, the 0000 capability probe shortcut,
// and driving the git subprocess with the (possibly inflated) body piped
// to its stdin. It returns the status and response body without writing
// to the ResponseWriter, so callers can run post-receive side effects
// before committing the response.
func (s *Server) serviceRPC(r *http.Request, rpc, repoPath string) (status int, body []byte, err error) {
	reqBody, err := readBody(r)
	if err != nil {
		return http.StatusInternalServerError, nil, err
	}

	if string(reqBody) == pktline.Flush {
		return http.StatusOK, nil, nil
	}

	started := time.Now()
	protocolV2 := r.Header.Get("Git-Protocol") == "version=2"
	out, err := gitproc.ServiceRPC(r.Context(), repoPath, rpc, strings.NewReader(string(reqBody)), protocolV2)
	if s.Metrics != nil {
		s.Metrics.GitRPCLatency.WithLabelValues(rpc).Observe(time.Since(started).Seconds())
	}
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, out, nil
}

// countPush records a terminal push outcome, keyed by owner/repo so a
// dashboard can break down traffic per project as well as overall.
func (s *Server) countPush(owner, repo, result string) {
	if s.Metrics != nil {
		s.Metrics.PushesTotal.WithLabelValues(owner, repo, result).Inc()
	}
}

func readBody(r *http.Request) ([]byte, error) {
	var reader io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}
	return io.ReadAll(reader)
}

func writeServiceResult(w http.ResponseWriter, rpc string, status int, body []byte) {
	if status == http.StatusOK && len(body) == 0 {
		w.Header().Set("Vary", "Accept-Encoding")
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "application/x-git-"+rpc+"-result")
	w.WriteHeader(status)
	if status == http.StatusOK {
		_, _ = w.Write(body)
	}
}
