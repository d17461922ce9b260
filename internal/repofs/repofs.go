// Package repofs serves the read-only static portion of a bare repository
// over HTTP: HEAD, alternates, loose objects, and pack/idx files, with the
// caching headers git clients expect.
package repofs

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// NoCache sets headers instructing clients and proxies never to cache the
// response, used for anything that can change between requests (refs,
// the pack list).
func NoCache(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Expires", "Fri, 01 Jan 1980 00:00:00 GMT")
	h.Set("Pragma", "no-cache")
	h.Set("Cache-Control", "no-cache, max-age=0, must-revalidate")
}

// CacheForever sets headers for content-addressed objects that never
// change once written (loose objects, pack/idx files).
func CacheForever(w http.ResponseWriter) {
	now := time.Now()
	h := w.Header()
	h.Set("Date", strconv.FormatInt(now.UnixMilli(), 10))
	h.Set("Expires", strconv.FormatInt(now.Add(365*24*time.Hour).UnixMilli(), 10))
	h.Set("Cache-Control", "public, max-age=31536000")
}

// ServeText serves repoRoot/relPath verbatim as text/plain, 404ing if it is
// missing. Used for HEAD, objects/info/alternates, objects/info/http-alternates,
// and the objects/info/:file fallthrough.
func ServeText(w http.ResponseWriter, repoRoot, relPath string) {
	serveFile(w, filepath.Join(repoRoot, relPath), "text/plain", false)
}

// ServeInfoPacks serves repoRoot/objects/info/packs as
// "text/plain; charset=utf-8" with no-cache headers.
func ServeInfoPacks(w http.ResponseWriter, repoRoot string) {
	NoCache(w)
	serveFile(w, filepath.Join(repoRoot, "objects", "info", "packs"), "text/plain; charset=utf-8", false)
}

// ServeLooseObject serves a loose object at objects/<head>/<hash> with
// cache-forever headers.
func ServeLooseObject(w http.ResponseWriter, repoRoot, head, hash string) {
	serveFile(w, filepath.Join(repoRoot, "objects", head, hash), "application/x-git-loose-object", true)
}

// ServePackFile serves a pack or idx file under objects/pack/, choosing the
// content type from the file's extension. Any other extension 404s, as in
// the original server.
func ServePackFile(w http.ResponseWriter, repoRoot, file string) {
	var contentType string
	switch filepath.Ext(file) {
	case ".pack":
		contentType = "application/x-git-packed-objects"
	case ".idx":
		contentType = "application/x-git-packed-objects-toc"
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	serveFile(w, filepath.Join(repoRoot, "objects", "pack", file), contentType, true)
}

func serveFile(w http.ResponseWriter, path, contentType string, cacheForever bool) {
	f, err := os.Open(path)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	defer f.Close()

	if cacheForever {
		CacheForever(w)
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}
