package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "shipgit.db")
	s, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedProject(t *testing.T, s *SQLiteStore, owner, repo string) string {
	t.Helper()
	ctx := context.Background()
	ownerID := uuid.New().String()
	projectID := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `INSERT INTO project_owners (id, name) VALUES (?, ?)`, ownerID, owner)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `INSERT INTO projects (id, owner_id, name) VALUES (?, ?, ?)`, projectID, ownerID, repo)
	require.NoError(t, err)
	return projectID
}

func TestFindProjectAndTokens(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	projectID := seedProject(t, s, "alice", "proj")
	_, err := s.db.ExecContext(ctx, `INSERT INTO api_token (project_id, token) VALUES (?, ?)`, projectID, "secret")
	require.NoError(t, err)

	p, err := s.FindProject(ctx, "alice", "proj")
	require.NoError(t, err)
	require.Equal(t, projectID, p.ID)

	_, err = s.FindProject(ctx, "alice", "nope")
	require.ErrorIs(t, err, ErrNotFound)

	tokens, err := s.ListTokensByOwner(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	require.Equal(t, "secret", tokens[0].Token)
}

func TestBuildLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	projectID := seedProject(t, s, "bob", "site")

	id := uuid.New()
	require.NoError(t, s.InsertBuild(ctx, id, projectID))

	b, err := s.GetBuild(ctx, id)
	require.NoError(t, err)
	require.Equal(t, BuildPending, b.Status)
	require.Nil(t, b.FinishedAt)

	require.NoError(t, s.UpdateBuildStatus(ctx, id, BuildBuilding, ""))
	b, err = s.GetBuild(ctx, id)
	require.NoError(t, err)
	require.Equal(t, BuildBuilding, b.Status)
	require.Nil(t, b.FinishedAt)

	require.NoError(t, s.UpdateBuildStatus(ctx, id, BuildSuccessful, "build ok"))
	b, err = s.GetBuild(ctx, id)
	require.NoError(t, err)
	require.Equal(t, BuildSuccessful, b.Status)
	require.NotNil(t, b.FinishedAt)
	require.Equal(t, "build ok", b.Log)

	latest, err := s.LatestBuild(ctx, projectID)
	require.NoError(t, err)
	require.Equal(t, id, latest.ID)
}

func TestDomainInsertedOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	projectID := seedProject(t, s, "carol", "app")

	_, err := s.GetDomain(ctx, projectID)
	require.ErrorIs(t, err, ErrNotFound)

	id := uuid.New()
	require.NoError(t, s.InsertDomain(ctx, id, projectID, "carol-app", 8080, "10.0.0.5"))

	d, err := s.GetDomain(ctx, projectID)
	require.NoError(t, err)
	require.Equal(t, "carol-app", d.Name)
	require.Equal(t, 8080, d.Port)

	err = s.InsertDomain(ctx, uuid.New(), projectID, "carol-app", 8081, "10.0.0.6")
	require.Error(t, err, "project_id is unique on domains; a second insert must fail")
}

func seedUser(t *testing.T, s *SQLiteStore, id, username, name string) {
	t.Helper()
	_, err := s.db.ExecContext(context.Background(),
		`INSERT INTO users (id, username, name) VALUES (?, ?, ?)`, id, username, name)
	require.NoError(t, err)
}

func TestHasAccessOwnerAndShare(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedProject(t, s, "dora", "owned")
	sharedProject := seedProject(t, s, "hank", "shared")

	seedUser(t, s, "u-1", "dora-user", "Dora")
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users_owners (user_id, owner_id) SELECT 'u-1', id FROM project_owners WHERE name = 'dora'`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `INSERT INTO project_shares (project_id, user_id) VALUES (?, ?)`, sharedProject, "u-2")
	require.NoError(t, err)

	ok, err := s.HasAccess(ctx, "dora", "owned", "u-1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.HasAccess(ctx, "hank", "shared", "u-2")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.HasAccess(ctx, "hank", "shared", "u-1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListMembers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedProject(t, s, "erin", "app")
	seedUser(t, s, "u-1", "erin-user", "Erin")
	seedUser(t, s, "u-2", "frank-user", "Frank")
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users_owners (user_id, owner_id) SELECT 'u-1', id FROM project_owners WHERE name = 'erin'`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users_owners (user_id, owner_id) SELECT 'u-2', id FROM project_owners WHERE name = 'erin'`)
	require.NoError(t, err)

	members, err := s.ListMembers(ctx, "erin")
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.Equal(t, "erin-user", members[0].Username)
}

func TestDashboardProjects(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seedProject(t, s, "gina", "owned-site")
	sharedProject := seedProject(t, s, "hank", "shared-site")
	seedUser(t, s, "u-1", "gina-user", "Gina")

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users_owners (user_id, owner_id) SELECT 'u-1', id FROM project_owners WHERE name = 'gina'`)
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `INSERT INTO project_shares (project_id, user_id) VALUES (?, ?)`, sharedProject, "u-1")
	require.NoError(t, err)

	projects, owned, err := s.DashboardProjects(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, projects, 2)
	require.Equal(t, 1, owned)
}
