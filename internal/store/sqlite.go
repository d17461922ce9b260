package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the concrete ProjectStore backing this daemon, using the
// pure-Go modernc.org/sqlite driver (no cgo build requirement).
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (and migrates) a SQLite database at dsn, e.g. "file:shipgit.db".
func Open(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY churn

	s := &SQLiteStore{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// DB exposes the underlying connection for callers that need to seed rows
// the ProjectStore interface has no write path for (users, memberships,
// shares); user/owner management is an external collaborator this store
// does not mutate at runtime.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS project_owners (
			id   TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS projects (
			id       TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL REFERENCES project_owners(id),
			name     TEXT NOT NULL,
			UNIQUE(owner_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS api_token (
			project_id TEXT NOT NULL REFERENCES projects(id),
			token      TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS builds (
			id          TEXT PRIMARY KEY,
			project_id  TEXT NOT NULL REFERENCES projects(id),
			status      TEXT NOT NULL,
			created_at  DATETIME NOT NULL,
			updated_at  DATETIME NOT NULL,
			finished_at DATETIME,
			log         TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS domains (
			id         TEXT PRIMARY KEY,
			project_id TEXT NOT NULL UNIQUE REFERENCES projects(id),
			name       TEXT NOT NULL,
			port       INTEGER NOT NULL,
			ip         TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id       TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			name     TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS users_owners (
			user_id    TEXT NOT NULL,
			owner_id   TEXT NOT NULL REFERENCES project_owners(id),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS project_shares (
			project_id TEXT NOT NULL REFERENCES projects(id),
			user_id    TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *SQLiteStore) ListTokensByOwner(ctx context.Context, owner string) ([]ProjectToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT projects.name, project_owners.name, api_token.token
		FROM api_token
		JOIN projects ON projects.id = api_token.project_id
		JOIN project_owners ON project_owners.id = projects.owner_id
		WHERE project_owners.name = ?`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProjectToken
	for rows.Next() {
		var t ProjectToken
		if err := rows.Scan(&t.ProjectName, &t.ProjectOwner, &t.Token); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FindProject(ctx context.Context, owner, repo string) (*Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx, `
		SELECT projects.id, project_owners.name, projects.name
		FROM projects
		JOIN project_owners ON project_owners.id = projects.owner_id
		WHERE project_owners.name = ? AND projects.name = ?`, owner, repo).
		Scan(&p.ID, &p.Owner, &p.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) InsertBuild(ctx context.Context, id uuid.UUID, projectID string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO builds (id, project_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`, id.String(), projectID, string(BuildPending), now, now)
	return err
}

func (s *SQLiteStore) GetBuild(ctx context.Context, id uuid.UUID) (*BuildRecord, error) {
	return s.scanBuild(s.db.QueryRowContext(ctx, `
		SELECT id, project_id, status, created_at, updated_at, finished_at, log
		FROM builds WHERE id = ?`, id.String()))
}

func (s *SQLiteStore) LatestBuild(ctx context.Context, projectID string) (*BuildRecord, error) {
	return s.scanBuild(s.db.QueryRowContext(ctx, `
		SELECT id, project_id, status, created_at, updated_at, finished_at, log
		FROM builds WHERE project_id = ?
		ORDER BY created_at DESC LIMIT 1`, projectID))
}

func (s *SQLiteStore) scanBuild(row *sql.Row) (*BuildRecord, error) {
	var (
		b          BuildRecord
		idStr      string
		finishedAt sql.NullTime
	)
	err := row.Scan(&idStr, &b.ProjectID, &b.Status, &b.CreatedAt, &b.UpdatedAt, &finishedAt, &b.Log)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse build id: %w", err)
	}
	b.ID = id
	if finishedAt.Valid {
		b.FinishedAt = &finishedAt.Time
	}
	return &b, nil
}

func (s *SQLiteStore) UpdateBuildStatus(ctx context.Context, id uuid.UUID, status BuildStatus, log string) error {
	now := time.Now().UTC()
	var finishedAt any
	if status == BuildSuccessful || status == BuildFailed {
		finishedAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE builds SET status = ?, log = ?, updated_at = ?, finished_at = COALESCE(?, finished_at)
		WHERE id = ?`, string(status), log, now, finishedAt, id.String())
	return err
}

func (s *SQLiteStore) GetDomain(ctx context.Context, projectID string) (*DomainRecord, error) {
	var d DomainRecord
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, port, ip FROM domains WHERE project_id = ?`, projectID).
		Scan(&idStr, &d.ProjectID, &d.Name, &d.Port, &d.IP)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse domain id: %w", err)
	}
	d.ID = id
	return &d, nil
}

func (s *SQLiteStore) InsertDomain(ctx context.Context, id uuid.UUID, projectID, name string, port int, ip string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO domains (id, project_id, name, port, ip) VALUES (?, ?, ?, ?, ?)`,
		id.String(), projectID, name, port, ip)
	return err
}

func (s *SQLiteStore) HasAccess(ctx context.Context, owner, repo, userID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM projects
		JOIN project_owners ON projects.owner_id = project_owners.id
		LEFT JOIN users_owners ON project_owners.id = users_owners.owner_id
		LEFT JOIN project_shares ON projects.id = project_shares.project_id
		WHERE projects.name = ? AND project_owners.name = ?
		  AND (users_owners.user_id = ? OR project_shares.user_id = ?)
		LIMIT 1`, repo, owner, userID, userID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) ListMembers(ctx context.Context, owner string) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT users.id, users.username, users.name, users_owners.created_at
		FROM users_owners
		JOIN project_owners ON project_owners.id = users_owners.owner_id
		JOIN users ON users.id = users_owners.user_id
		WHERE project_owners.name = ?
		ORDER BY users_owners.created_at ASC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Username, &m.Name, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DashboardProjects(ctx context.Context, userID string) ([]DashboardProject, int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT projects.id, projects.name, project_owners.name
		FROM projects
		JOIN project_owners ON projects.owner_id = project_owners.id
		LEFT JOIN users_owners ON project_owners.id = users_owners.owner_id
		LEFT JOIN project_shares ON projects.id = project_shares.project_id
		WHERE users_owners.user_id = ? OR project_shares.user_id = ?
		ORDER BY projects.name ASC`, userID, userID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []DashboardProject
	for rows.Next() {
		var p DashboardProject
		if err := rows.Scan(&p.ID, &p.Name, &p.OwnerName); err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var owned int
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM projects
		JOIN project_owners ON projects.owner_id = project_owners.id
		JOIN users_owners ON project_owners.id = users_owners.owner_id
		WHERE users_owners.user_id = ?`, userID).Scan(&owned)
	if err != nil {
		return nil, 0, err
	}

	return out, owned, nil
}
