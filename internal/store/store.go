// Package store defines the ProjectStore contract consumed by the push-auth
// middleware, build queue, and build executor, plus the data model they
// share. The core never depends on a concrete store; cmd/shipgitd wires in
// the SQLite-backed implementation in sqlite.go.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = errors.New("store: not found")

// BuildStatus is the state of a BuildRecord's pending/building/terminal
// lifecycle.
type BuildStatus string

const (
	BuildPending    BuildStatus = "pending"
	BuildBuilding   BuildStatus = "building"
	BuildSuccessful BuildStatus = "successful"
	BuildFailed     BuildStatus = "failed"
)

// ProjectToken is one row of the owner/repo/token triple the push-auth
// middleware checks a request against.
type ProjectToken struct {
	ProjectName  string
	ProjectOwner string
	Token        string
}

// Project identifies a project row by its owners and repo name.
type Project struct {
	ID    string
	Owner string
	Name  string
}

// BuildRecord is the persisted build state machine.
type BuildRecord struct {
	ID         uuid.UUID
	ProjectID  string
	Status     BuildStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt *time.Time
	Log        string
}

// DomainRecord binds a built container to a subdomain. Inserted at most
// once per project, after its first successful build.
type DomainRecord struct {
	ID        uuid.UUID
	ProjectID string
	Name      string
	Port      int
	IP        string
}

// Member is one row of an owner's membership list, returned by
// ListMembers.
type Member struct {
	UserID    string
	Username  string
	Name      string
	CreatedAt time.Time
}

// DashboardProject is one row of a caller's project listing, returned by
// DashboardProjects.
type DashboardProject struct {
	ID        string
	Name      string
	OwnerName string
}

// ProjectStore is the storage interface the core package consumes.
// All methods must be safe for concurrent use by both the enqueue and
// dispatch sides of the build queue.
type ProjectStore interface {
	ListTokensByOwner(ctx context.Context, owner string) ([]ProjectToken, error)
	FindProject(ctx context.Context, owner, repo string) (*Project, error)

	InsertBuild(ctx context.Context, id uuid.UUID, projectID string) error
	GetBuild(ctx context.Context, id uuid.UUID) (*BuildRecord, error)
	UpdateBuildStatus(ctx context.Context, id uuid.UUID, status BuildStatus, log string) error
	LatestBuild(ctx context.Context, projectID string) (*BuildRecord, error)

	GetDomain(ctx context.Context, projectID string) (*DomainRecord, error)
	InsertDomain(ctx context.Context, id uuid.UUID, projectID, name string, port int, ip string) error

	// HasAccess reports whether userID owns or has been shared owner/repo.
	HasAccess(ctx context.Context, owner, repo, userID string) (bool, error)
	// ListMembers returns the users belonging to owner, oldest first.
	ListMembers(ctx context.Context, owner string) ([]Member, error)
	// DashboardProjects returns the projects userID owns or is shared on,
	// name-ordered, plus how many of them are owned outright.
	DashboardProjects(ctx context.Context, userID string) (projects []DashboardProject, ownedCount int, err error)
}
