package gitproc

import (
	"bytes"
	"context"
	"errors"
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

func initBareWithCommit(t *testing.T, dir string) string {
	t.Helper()
	bare := filepath.Join(dir, "repo.git")
	run(t, dir, "git", "init", "--bare", bare)

	work := filepath.Join(dir, "work")
	run(t, dir, "git", "clone", bare, work)
	run(t, work, "git", "config", "user.email", "a@b.c")
	run(t, work, "git", "config", "user.name", "a")
	run(t, work, "sh", "-c", "echo hi > README")
	run(t, work, "git", "add", "README")
	run(t, work, "git", "commit", "-m", "initial")
	run(t, work, "git", "push", "origin", "HEAD:refs/heads/main")
	run(t, bare, "git", "symbolic-ref", "HEAD", "refs/heads/main")
	return bare
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

func TestAdvertiseRefsEmptyRepo(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	bare := filepath.Join(dir, "empty.git")
	run(t, dir, "git", "init", "--bare", bare)

	out, err := AdvertiseRefs(context.Background(), bare, "upload-pack", false)
	if err != nil {
		t.Fatalf("advertise refs: %v", err)
	}
	if !bytes.HasSuffix(out, []byte("0000")) {
		t.Fatalf("expected advertisement to end in flush-pkt, got %q", out)
	}
}

func TestResolveHEAD(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	bare := initBareWithCommit(t, dir)

	oid, err := ResolveHEAD(context.Background(), bare)
	if err != nil {
		t.Fatalf("resolve HEAD: %v", err)
	}
	if len(oid) != 40 && len(oid) != 64 {
		t.Fatalf("unexpected oid length: %q", oid)
	}
}

func TestRunReportsGitProcessError(t *testing.T) {
	requireGit(t)
	dir := t.TempDir()
	_, err := Run(context.Background(), dir, []string{"this-is-not-a-subcommand"}, nil, nil)
	if err == nil {
		t.Fatal("expected error for invalid git subcommand")
	}
	var pe *ProcessError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProcessError, got %T", err)
	}
}
