package buildexec

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shipgit/shipgit/internal/builder"
	"github.com/shipgit/shipgit/internal/buildlog"
	"github.com/shipgit/shipgit/internal/buildqueue"
	"github.com/shipgit/shipgit/internal/domainbind"
	"github.com/shipgit/shipgit/internal/store"
)

type fakeStore struct {
	store.ProjectStore
	mu       sync.Mutex
	builds   map[uuid.UUID]*store.BuildRecord
	domains  map[string]*store.DomainRecord
	statuses []store.BuildStatus
}

func newFakeStore(id uuid.UUID, projectID string) *fakeStore {
	return &fakeStore{
		builds: map[uuid.UUID]*store.BuildRecord{
			id: {ID: id, ProjectID: projectID, Status: store.BuildPending},
		},
		domains: map[string]*store.DomainRecord{},
	}
}

func (f *fakeStore) GetBuild(ctx context.Context, id uuid.UUID) (*store.BuildRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.builds[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) UpdateBuildStatus(ctx context.Context, id uuid.UUID, status store.BuildStatus, log string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, status)
	b, ok := f.builds[id]
	if !ok {
		return store.ErrNotFound
	}
	b.Status = status
	b.Log = log
	return nil
}

func (f *fakeStore) GetDomain(ctx context.Context, projectID string) (*store.DomainRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.domains[projectID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) InsertDomain(ctx context.Context, id uuid.UUID, projectID, name string, port int, ip string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.domains[projectID] = &store.DomainRecord{ID: id, ProjectID: projectID, Name: name, Port: port, IP: ip}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testItem(buildID uuid.UUID) buildqueue.BuildItem {
	return buildqueue.BuildItem{
		BuildID:   buildID,
		ProjectID: "project-1",
		Item: buildqueue.Item{
			ContainerName: "alice-proj",
			ContainerSrc:  "/tmp/alice-proj",
			Owner:         "alice",
			Repo:          "proj",
		},
	}
}

func TestRunSucceedsAndBindsDomain(t *testing.T) {
	buildID := uuid.New()
	st := newFakeStore(buildID, "project-1")
	b := &builder.Fake{Outcome: &builder.Outcome{IP: "10.0.0.5", Port: 8080, BuildLog: "ok"}}
	binder := &recordingBinder{}

	released := false
	e := &Executor{
		Store:        st,
		Builder:      b,
		DomainBinder: binder,
		Log:          discardLogger(),
		BuildTimeout: time.Second,
		Release:      func() { released = true },
	}

	e.Run(context.Background(), testItem(buildID))

	if !released {
		t.Fatal("expected Release to be called")
	}
	rec, _ := st.GetBuild(context.Background(), buildID)
	if rec.Status != store.BuildSuccessful {
		t.Fatalf("status = %s, want successful", rec.Status)
	}
	if len(binder.calls) != 1 || binder.calls[0].name != "alice-proj" || binder.calls[0].ip != "10.0.0.5" {
		t.Fatalf("unexpected binder calls: %+v", binder.calls)
	}
	if st.domains["project-1"] == nil {
		t.Fatal("expected a domain record to be inserted")
	}
}

func TestRunDoesNotRebindExistingDomain(t *testing.T) {
	buildID := uuid.New()
	st := newFakeStore(buildID, "project-1")
	st.domains["project-1"] = &store.DomainRecord{ProjectID: "project-1", Name: "alice-proj", IP: "10.0.0.1", Port: 80}
	b := &builder.Fake{Outcome: &builder.Outcome{IP: "10.0.0.9", Port: 9090}}
	binder := &recordingBinder{}

	e := &Executor{
		Store:        st,
		Builder:      b,
		DomainBinder: binder,
		Log:          discardLogger(),
		BuildTimeout: time.Second,
		Release:      func() {},
	}

	e.Run(context.Background(), testItem(buildID))

	if len(binder.calls) != 0 {
		t.Fatalf("expected no rebind, got %+v", binder.calls)
	}
}

func TestRunRecordsFailure(t *testing.T) {
	buildID := uuid.New()
	st := newFakeStore(buildID, "project-1")
	b := &builder.Fake{Err: errors.New("docker build failed: exit 1")}

	e := &Executor{
		Store:        st,
		Builder:      b,
		DomainBinder: domainbind.Noop{},
		Log:          discardLogger(),
		BuildTimeout: time.Second,
		Release:      func() {},
	}

	e.Run(context.Background(), testItem(buildID))

	rec, _ := st.GetBuild(context.Background(), buildID)
	if rec.Status != store.BuildFailed {
		t.Fatalf("status = %s, want failed", rec.Status)
	}
	if rec.Log != "docker build failed: exit 1" {
		t.Fatalf("log = %q", rec.Log)
	}
}

func TestRunRecordsTimeout(t *testing.T) {
	buildID := uuid.New()
	st := newFakeStore(buildID, "project-1")
	b := &builder.Fake{Delay: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	e := &Executor{
		Store:        st,
		Builder:      b,
		DomainBinder: domainbind.Noop{},
		Log:          discardLogger(),
		BuildTimeout: 20 * time.Millisecond,
		Release:      func() {},
	}

	e.Run(context.Background(), testItem(buildID))

	rec, _ := st.GetBuild(context.Background(), buildID)
	if rec.Status != store.BuildFailed {
		t.Fatalf("status = %s, want failed", rec.Status)
	}
	if rec.Log != "Build timeout after 0 seconds" {
		t.Fatalf("log = %q", rec.Log)
	}
}

func TestRunMarksBuildingBeforeInvokingBuilder(t *testing.T) {
	buildID := uuid.New()
	st := newFakeStore(buildID, "project-1")
	b := &builder.Fake{Outcome: &builder.Outcome{IP: "10.0.0.2", Port: 80}}

	e := &Executor{
		Store:        st,
		Builder:      b,
		DomainBinder: domainbind.Noop{},
		Log:          discardLogger(),
		BuildTimeout: time.Second,
		Release:      func() {},
	}

	e.Run(context.Background(), testItem(buildID))

	if len(st.statuses) < 2 || st.statuses[0] != store.BuildBuilding {
		t.Fatalf("expected building to be recorded first, got %v", st.statuses)
	}
}

func TestRunPersistsFullLogWhenBuildLogConfigured(t *testing.T) {
	buildID := uuid.New()
	st := newFakeStore(buildID, "project-1")
	b := &builder.Fake{Outcome: &builder.Outcome{IP: "10.0.0.5", Port: 8080, BuildLog: "step 1\nstep 2\n"}}
	bl, err := buildlog.New(t.TempDir(), 0, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	e := &Executor{
		Store:        st,
		Builder:      b,
		DomainBinder: domainbind.Noop{},
		BuildLog:     bl,
		Log:          discardLogger(),
		BuildTimeout: time.Second,
		Release:      func() {},
	}

	e.Run(context.Background(), testItem(buildID))

	rec, _ := st.GetBuild(context.Background(), buildID)
	if rec.Log != "build succeeded" {
		t.Fatalf("store log = %q, want short status message", rec.Log)
	}

	f, _, err := bl.Get(buildID.String())
	if err != nil {
		t.Fatalf("build log not persisted: %v", err)
	}
	defer f.Close()
	contents, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(contents) != "step 1\nstep 2\n" {
		t.Fatalf("persisted log = %q", contents)
	}
}

func TestNewExecutorConvertsMillisecondsToSeconds(t *testing.T) {
	e := NewExecutor(nil, nil, domainbind.Noop{}, nil, discardLogger(), nil, 2500, func() {})
	if e.BuildTimeout != 2*time.Second {
		t.Fatalf("BuildTimeout = %v, want 2s", e.BuildTimeout)
	}
}

type recordingBinder struct {
	calls []bindCall
}

type bindCall struct{ name, ip string }

func (b *recordingBinder) Bind(ctx context.Context, name, ip string) error {
	b.calls = append(b.calls, bindCall{name, ip})
	return nil
}
