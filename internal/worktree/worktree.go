// Package worktree materializes a working-copy checkout of a bare
// repository at exactly the commit its HEAD currently resolves to, and
// coalesces concurrent syncs of the same repository.
package worktree

import (
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"golang.org/x/sync/singleflight"
)

// SyncError wraps a failure during clone/resolve/checkout.
type SyncError struct {
	BarePath, DestPath string
	Err                error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s -> %s: %v", e.BarePath, e.DestPath, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// Synchronizer coalesces concurrent Sync calls for the same destination
// path via singleflight, so two overlapping pushes to the same repo don't
// race to check out the same working copy.
type Synchronizer struct {
	group singleflight.Group
}

func New() *Synchronizer { return &Synchronizer{} }

// Sync makes destPath an exact, detached-HEAD checkout of barePath's
// current HEAD. It is idempotent: repeated calls with an unchanged bare
// HEAD produce the same tree.
func (s *Synchronizer) Sync(barePath, destPath string) (oid string, err error) {
	v, err, _ := s.group.Do(destPath, func() (any, error) {
		return sync(barePath, destPath)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func sync(barePath, destPath string) (string, error) {
	bare, err := git.PlainOpen(barePath)
	if err != nil {
		return "", &SyncError{barePath, destPath, fmt.Errorf("open bare repo: %w", err)}
	}

	head, err := bare.Head()
	if err != nil {
		return "", &SyncError{barePath, destPath, fmt.Errorf("resolve HEAD: %w", err)}
	}
	oid := head.Hash()

	if _, err := os.Stat(destPath); err == nil {
		if err := os.RemoveAll(destPath); err != nil {
			return "", &SyncError{barePath, destPath, fmt.Errorf("remove stale working copy: %w", err)}
		}
	}

	clone, err := git.PlainClone(destPath, false, &git.CloneOptions{URL: barePath})
	if err != nil {
		return "", &SyncError{barePath, destPath, fmt.Errorf("clone: %w", err)}
	}

	wt, err := clone.Worktree()
	if err != nil {
		return "", &SyncError{barePath, destPath, fmt.Errorf("open worktree: %w", err)}
	}

	if err := wt.Checkout(&git.CheckoutOptions{
		Hash:  oid,
		Force: true,
	}); err != nil {
		return "", &SyncError{barePath, destPath, fmt.Errorf("checkout %s: %w", oid, err)}
	}

	headRef := plumbing.NewHashReference(plumbing.HEAD, oid)
	if err := clone.Storer.SetReference(headRef); err != nil {
		return "", &SyncError{barePath, destPath, fmt.Errorf("detach HEAD: %w", err)}
	}

	return oid.String(), nil
}
