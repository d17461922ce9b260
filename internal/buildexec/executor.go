// Package buildexec implements the Build Executor: for each
// dispatched BuildItem, it drives the project's BuildRecord through its
// state machine, invokes the external Builder under a timeout, and binds
// the resulting subdomain on first success.
package buildexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shipgit/shipgit/internal/builder"
	"github.com/shipgit/shipgit/internal/buildid"
	"github.com/shipgit/shipgit/internal/buildlog"
	"github.com/shipgit/shipgit/internal/buildqueue"
	"github.com/shipgit/shipgit/internal/domainbind"
	"github.com/shipgit/shipgit/internal/metrics"
	"github.com/shipgit/shipgit/internal/store"
)

// Executor ties a Builder and a ProjectStore together. BuildTimeout is
// documented in configuration as milliseconds; it is converted to whole
// seconds here, matching the original system's observable timeout-message
// wording rather than silently changing units.
type Executor struct {
	Store        store.ProjectStore
	Builder      builder.Builder
	DomainBinder domainbind.Binder
	BuildLog     *buildlog.Store // optional; full build output of successful builds, see succeed
	Log          *slog.Logger
	Metrics      *metrics.Metrics
	BuildTimeout time.Duration // already-converted; see NewExecutor
	Release      func()        // returns the build slot to the queue; see buildqueue.Queue.Release
}

// NewExecutor converts buildTimeoutMS (milliseconds, per configuration) to
// a whole-second timeout before constructing the Executor.
func NewExecutor(st store.ProjectStore, b builder.Builder, binder domainbind.Binder, bl *buildlog.Store, log *slog.Logger, m *metrics.Metrics, buildTimeoutMS int, release func()) *Executor {
	return &Executor{
		Store:        st,
		Builder:      b,
		DomainBinder: binder,
		BuildLog:     bl,
		Log:          log,
		Metrics:      m,
		BuildTimeout: time.Duration(buildTimeoutMS/1000) * time.Second,
		Release:      release,
	}
}

// Run processes one popped BuildItem to completion. The caller (the
// dispatch loop) has already reserved a slot for item; Run always calls
// Release exactly once, regardless of outcome.
func (e *Executor) Run(ctx context.Context, item buildqueue.BuildItem) {
	defer e.Release()

	log := e.Log.With("build_id", item.BuildID, "container", item.ContainerName, "owner", item.Owner, "repo", item.Repo)

	if _, err := e.Store.GetBuild(ctx, item.BuildID); err != nil {
		log.Error("build record missing, abandoning dispatch", "err", err)
		return
	}

	if err := e.Store.UpdateBuildStatus(ctx, item.BuildID, store.BuildBuilding, ""); err != nil {
		log.Error("failed to mark build as building", "err", err)
	}

	buildCtx, cancel := context.WithTimeout(ctx, e.BuildTimeout)
	defer cancel()

	started := time.Now()
	outcome, err := e.Builder.Build(buildCtx, item.Owner, item.Repo, item.ContainerName, item.ContainerSrc)
	if e.Metrics != nil {
		e.Metrics.BuildDuration.Observe(time.Since(started).Seconds())
	}

	switch {
	case err == nil:
		e.succeed(ctx, item, outcome, log)
	case errors.Is(buildCtx.Err(), context.DeadlineExceeded):
		e.timeout(ctx, item, log)
	default:
		e.fail(ctx, item, err, log)
	}
}

func (e *Executor) succeed(ctx context.Context, item buildqueue.BuildItem, outcome *builder.Outcome, log *slog.Logger) {
	if err := e.Store.UpdateBuildStatus(ctx, item.BuildID, store.BuildSuccessful, "build succeeded"); err != nil {
		log.Error("failed to record successful build", "err", err)
	}
	e.persistLog(item.BuildID, outcome.BuildLog, log)
	log.Info("build succeeded", "ip", outcome.IP, "port", outcome.Port)
	e.countBuild(string(store.BuildSuccessful))

	if err := e.bindDomain(ctx, item, outcome); err != nil {
		log.Error("failed to bind domain", "err", err)
	}
}

// persistLog writes the full build transcript to the on-disk log store,
// when one is configured; the SQLite BuildRecord.Log column only ever
// holds the short status message set alongside it.
func (e *Executor) persistLog(buildID uuid.UUID, contents string, log *slog.Logger) {
	if e.BuildLog == nil || contents == "" {
		return
	}
	if err := e.BuildLog.WriteString(buildID.String(), contents); err != nil {
		log.Error("failed to persist build log", "err", err)
	}
}

func (e *Executor) bindDomain(ctx context.Context, item buildqueue.BuildItem, outcome *builder.Outcome) error {
	existing, err := e.Store.GetDomain(ctx, item.ProjectID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("check existing domain: %w", err)
	}
	if existing != nil {
		return nil // at most one DomainRecord per project
	}

	id := buildid.New()
	if err := e.Store.InsertDomain(ctx, id, item.ProjectID, item.ContainerName, outcome.Port, outcome.IP); err != nil {
		return fmt.Errorf("insert domain record: %w", err)
	}

	if e.DomainBinder != nil {
		if err := e.DomainBinder.Bind(ctx, item.ContainerName, outcome.IP); err != nil {
			return fmt.Errorf("bind dns record: %w", err)
		}
	}
	return nil
}

func (e *Executor) fail(ctx context.Context, item buildqueue.BuildItem, buildErr error, log *slog.Logger) {
	if err := e.Store.UpdateBuildStatus(ctx, item.BuildID, store.BuildFailed, buildErr.Error()); err != nil {
		log.Error("failed to record failed build", "err", err)
	}
	log.Warn("build failed", "err", buildErr)
	e.countBuild(string(store.BuildFailed))
}

func (e *Executor) timeout(ctx context.Context, item buildqueue.BuildItem, log *slog.Logger) {
	msg := fmt.Sprintf("Build timeout after %d seconds", int(e.BuildTimeout.Seconds()))
	if err := e.Store.UpdateBuildStatus(ctx, item.BuildID, store.BuildFailed, msg); err != nil {
		log.Error("failed to record build timeout", "err", err)
	}
	log.Warn("build timed out", "timeout", e.BuildTimeout)
	e.countBuild("timeout")
}

func (e *Executor) countBuild(status string) {
	if e.Metrics != nil {
		e.Metrics.BuildsTotal.WithLabelValues(status).Inc()
	}
}
