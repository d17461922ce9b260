package worktree

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

func run(t *testing.T, dir, name string, args ...string) {
	t.Helper()
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("%s %s: %v\n%s", name, strings.Join(args, " "), err, out)
	}
}

func makeBareWithCommit(t *testing.T, root, content string) string {
	t.Helper()
	bare := filepath.Join(root, "repo.git")
	run(t, root, "git", "init", "--bare", bare)

	work := filepath.Join(root, "work")
	run(t, root, "git", "clone", bare, work)
	run(t, work, "git", "config", "user.email", "a@b.c")
	run(t, work, "git", "config", "user.name", "a")
	run(t, work, "sh", "-c", "echo "+content+" > README")
	run(t, work, "git", "add", "README")
	run(t, work, "git", "commit", "-m", content)
	run(t, work, "git", "push", "origin", "HEAD:refs/heads/main")
	run(t, bare, "git", "symbolic-ref", "HEAD", "refs/heads/main")
	return bare
}

func TestSyncMatchesBareHEAD(t *testing.T) {
	requireGit(t)
	root := t.TempDir()
	bare := makeBareWithCommit(t, root, "first")
	dest := filepath.Join(root, "clone")

	s := New()
	oid, err := s.Sync(bare, dest)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if oid == "" {
		t.Fatal("expected non-empty oid")
	}

	content, err := os.ReadFile(filepath.Join(dest, "README"))
	if err != nil {
		t.Fatalf("read README: %v", err)
	}
	if strings.TrimSpace(string(content)) != "first" {
		t.Fatalf("README = %q", content)
	}
}

func TestSyncIsIdempotentAcrossPushes(t *testing.T) {
	requireGit(t)
	root := t.TempDir()
	bare := makeBareWithCommit(t, root, "first")
	dest := filepath.Join(root, "clone")

	s := New()
	if _, err := s.Sync(bare, dest); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	// push a second commit directly to the bare repo
	work2 := filepath.Join(root, "work2")
	run(t, root, "git", "clone", bare, work2)
	run(t, work2, "git", "config", "user.email", "a@b.c")
	run(t, work2, "git", "config", "user.name", "a")
	run(t, work2, "sh", "-c", "echo second >> README")
	run(t, work2, "git", "add", "README")
	run(t, work2, "git", "commit", "-m", "second")
	run(t, work2, "git", "push", "origin", "HEAD:refs/heads/main")

	if _, err := s.Sync(bare, dest); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dest, "README"))
	if err != nil {
		t.Fatalf("read README: %v", err)
	}
	if !strings.Contains(string(content), "second") {
		t.Fatalf("expected re-sync to pick up new commit, got %q", content)
	}
}
