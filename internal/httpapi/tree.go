package httpapi

import (
	"errors"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// treeEntryKind mirrors the original server's TreeEntry tag set.
type treeEntryKind string

const (
	kindDir       treeEntryKind = "dir"
	kindFile      treeEntryKind = "file"
	kindSymlink   treeEntryKind = "symlink"
	kindSubmodule treeEntryKind = "submodule"
	kindOther     treeEntryKind = "other"
)

type treeEntry struct {
	Kind treeEntryKind `json:"kind"`
	Name string        `json:"name"`
	Size uint64        `json:"size,omitempty"`
}

type treeResponse struct {
	Ref         string      `json:"ref"`
	Path        string      `json:"path"`
	IsEmptyRepo bool        `json:"is_empty_repo"`
	Entries     []treeEntry `json:"entries"`
}

// handleTree lists a tree at a ref/path: open the bare repo, resolve ref
// (defaulting to HEAD, tolerating an unborn HEAD as an empty repo), walk
// into path if given, and list+sort entries dir/file/symlink/submodule/other
// then case-insensitive name.
func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	owner, repo := r.PathValue("owner"), r.PathValue("repo")
	if _, err := s.Store.FindProject(r.Context(), owner, repo); err != nil {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}

	repoPath := s.repoPath(owner, repo)
	gitRepo, err := git.PlainOpen(repoPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to open repository: "+err.Error())
		return
	}

	refInput := r.URL.Query().Get("ref")
	if refInput == "" {
		refInput = "HEAD"
	}
	reqPath := r.URL.Query().Get("path")

	tree, isEmpty, err := resolveTree(gitRepo, refInput)
	if err != nil {
		if errors.Is(err, errUnbornHEAD) {
			writeJSON(w, http.StatusOK, treeResponse{
				Ref:         refInput,
				Path:        reqPath,
				IsEmptyRepo: true,
				Entries:     []treeEntry{},
			})
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid reference")
		return
	}

	if reqPath != "" {
		entry, err := tree.FindEntry(path.Clean(reqPath))
		if err != nil {
			writeError(w, http.StatusNotFound, "Path not found")
			return
		}
		if entry.Mode != plumbing.FilemodeDir {
			writeError(w, http.StatusBadRequest, "Path is not a directory")
			return
		}
		sub, err := gitRepo.TreeObject(entry.Hash)
		if err != nil {
			writeError(w, http.StatusNotFound, "Path not found")
			return
		}
		tree = sub
	}

	entries := collectEntries(gitRepo, tree)
	sortEntries(entries)

	writeJSON(w, http.StatusOK, treeResponse{
		Ref:         refInput,
		Path:        reqPath,
		IsEmptyRepo: isEmpty,
		Entries:     entries,
	})
}

var errUnbornHEAD = errors.New("httpapi: unborn HEAD")

// resolveTree resolves ref_input to a tree, following the original's
// peel-to-commit-then-tree, peel-to-tree fallback, and unborn-HEAD
// detection for a freshly initialized empty repo.
func resolveTree(repo *git.Repository, refInput string) (*object.Tree, bool, error) {
	hash, err := repo.ResolveRevision(plumbing.Revision(refInput))
	if err != nil {
		if _, headErr := repo.Head(); headErr != nil {
			return nil, true, errUnbornHEAD
		}
		return nil, false, err
	}

	if commit, err := repo.CommitObject(*hash); err == nil {
		tree, err := commit.Tree()
		return tree, false, err
	}

	tree, err := repo.TreeObject(*hash)
	return tree, false, err
}

func collectEntries(repo *git.Repository, tree *object.Tree) []treeEntry {
	entries := make([]treeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		switch e.Mode {
		case plumbing.FilemodeDir:
			entries = append(entries, treeEntry{Kind: kindDir, Name: e.Name})
		case plumbing.FilemodeSubmodule:
			entries = append(entries, treeEntry{Kind: kindSubmodule, Name: e.Name})
		case plumbing.FilemodeSymlink:
			entries = append(entries, treeEntry{Kind: kindSymlink, Name: e.Name})
		case plumbing.FilemodeRegular, plumbing.FilemodeExecutable:
			var size uint64
			if blob, err := repo.BlobObject(e.Hash); err == nil {
				size = uint64(blob.Size)
			}
			entries = append(entries, treeEntry{Kind: kindFile, Name: e.Name, Size: size})
		default:
			entries = append(entries, treeEntry{Kind: kindOther, Name: e.Name})
		}
	}
	return entries
}

func entryRank(k treeEntryKind) int {
	switch k {
	case kindDir:
		return 0
	case kindFile:
		return 1
	case kindSymlink:
		return 2
	case kindSubmodule:
		return 3
	default:
		return 4
	}
}

// sortEntries orders dirs, files, symlinks, submodules, then others;
// ties break on case-insensitive name, matching view_project_tree.rs.
func sortEntries(entries []treeEntry) {
	sort.Slice(entries, func(i, j int) bool {
		ri, rj := entryRank(entries[i].Kind), entryRank(entries[j].Kind)
		if ri != rj {
			return ri < rj
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
}
