package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shipgit/shipgit/internal/builder"
	"github.com/shipgit/shipgit/internal/buildexec"
	"github.com/shipgit/shipgit/internal/buildlog"
	"github.com/shipgit/shipgit/internal/buildqueue"
	"github.com/shipgit/shipgit/internal/cloudmap"
	"github.com/shipgit/shipgit/internal/config"
	"github.com/shipgit/shipgit/internal/domainbind"
	"github.com/shipgit/shipgit/internal/httpapi"
	"github.com/shipgit/shipgit/internal/logging"
	"github.com/shipgit/shipgit/internal/metrics"
	"github.com/shipgit/shipgit/internal/pushauth"
	"github.com/shipgit/shipgit/internal/smarthttp"
	"github.com/shipgit/shipgit/internal/store"
	"github.com/shipgit/shipgit/internal/worktree"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}

	projectStore, err := store.Open(cfg.StoreDSN)
	if err != nil {
		logger.Error("store init failed", "err", err)
		os.Exit(1)
	}
	defer projectStore.Close()

	buildLogStore, err := buildlog.New(cfg.BuildLogDir, cfg.BuildLogMaxBytes, logger)
	if err != nil {
		logger.Error("build log store init failed", "err", err)
		os.Exit(1)
	}

	m := metrics.New()

	binder, err := newDomainBinder(cfg, logger)
	if err != nil {
		logger.Error("domain binder init failed", "err", err)
		os.Exit(1)
	}

	dockerBuilder := builder.NewDockerCLIBuilder(cfg.DockerContainerPort, cfg.DockerHost)

	queue := buildqueue.New(cfg.BuildCapacity, projectStore, logger).WithMetrics(m)

	executor := buildexec.NewExecutor(projectStore, dockerBuilder, binder, buildLogStore, logger, m, cfg.BuildTimeoutMS, queue.Release)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := queue.Start(ctx, executor.Run); err != nil {
		logger.Error("build queue start failed", "err", err)
		os.Exit(1)
	}

	gitServer := &smarthttp.Server{
		Base:      cfg.Base,
		BodyLimit: cfg.BodyLimit,
		Auth:      &pushauth.Middleware{Store: projectStore, Enabled: cfg.GitAuth, Log: logger, Metrics: m},
		Sync:      worktree.New(),
		Queue:     queue,
		Log:       logger,
		Metrics:   m,
	}

	apiServer := &httpapi.Server{
		Base:     cfg.Base,
		Store:    projectStore,
		BuildLog: buildLogStore,
		Log:      logger,
	}

	cm, err := newCloudMapManager(ctx, cfg, logger)
	if err != nil {
		logger.Error("cloud map init failed", "err", err)
		os.Exit(1)
	}
	if cm != nil {
		if err := cm.Start(ctx); err != nil {
			logger.Error("cloud map start failed", "err", err)
			os.Exit(1)
		}
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.HealthPath, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}))
	mux.Handle(cfg.MetricsPath, promhttp.Handler())
	mux.Handle("/api/", apiServer.Handler())
	mux.Handle("/", gitServer.Handler())

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr, "base", cfg.Base, "git_auth", cfg.GitAuth, "build_capacity", cfg.BuildCapacity)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "err", err)
	}
	if cm != nil {
		cm.Stop(shutdownCtx)
	}
}

// newDomainBinder returns a Noop binder when no hosted zone is configured.
func newDomainBinder(cfg *config.Config, logger *slog.Logger) (domainbind.Binder, error) {
	if cfg.Route53HostedZoneID == "" {
		return domainbind.Noop{}, nil
	}
	return domainbind.NewRoute53Binder(context.Background(), cfg.Route53HostedZoneID, cfg.BaseDomain, logger)
}

// newCloudMapManager returns nil when no Cloud Map service ID is
// configured; daemons run standalone just as well without one.
func newCloudMapManager(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*cloudmap.Manager, error) {
	if cfg.CloudMapServiceID == "" {
		return nil, nil
	}
	healthURL := "http://localhost" + cfg.ListenAddr + cfg.HealthPath
	return cloudmap.New(ctx, cfg.CloudMapServiceID, healthURL, logger)
}
