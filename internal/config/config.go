// Package config loads shipgitd's configuration from flags and environment
// variables, with .env support for local development.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string
	Base       string // root directory holding <owner>/<repo>.git bare repos
	StoreDSN   string // sqlite DSN for the ProjectStore
	LogLevel   string

	GitAuth        bool
	BodyLimit      int64 // bytes
	BuildTimeoutMS int
	BuildCapacity  int

	DockerContainerPort int
	DockerHost          string

	Route53HostedZoneID string
	BaseDomain          string

	MetricsPath string
	HealthPath  string

	BuildLogDir      string
	BuildLogMaxBytes int64

	CloudMapServiceID string
}

func Load() (*Config, error) {
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Config, error) {
	// Best-effort: a missing .env is not an error, matching how local
	// development layers it on top of real environment variables.
	_ = godotenv.Load()

	cfg := &Config{}

	fs := flag.NewFlagSet("shipgitd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ListenAddr, "listen-addr", envOrDefault("LISTEN_ADDR", ":8080"), "HTTP listen address")
	fs.StringVar(&cfg.Base, "base", envOrDefault("BASE", "/srv/git"), "root directory holding bare repositories")
	fs.StringVar(&cfg.StoreDSN, "store-dsn", envOrDefault("STORE_DSN", "/srv/git/shipgit.db"), "sqlite DSN for the project store")
	fs.StringVar(&cfg.LogLevel, "log-level", envOrDefault("LOG_LEVEL", "info"), "log level: debug,info,warn,error")

	fs.BoolVar(&cfg.GitAuth, "git-auth", envOrDefaultBool("GIT_AUTH", true), "require per-project token auth on git routes")
	bodyLimitStr := fs.String("body-limit", envOrDefault("BODY_LIMIT", "100MB"), "max request body size for git routes")
	fs.IntVar(&cfg.BuildTimeoutMS, "build-timeout-ms", envOrDefaultInt("BUILD_TIMEOUT_MS", 10*60*1000), "per-build timeout in milliseconds")
	fs.IntVar(&cfg.BuildCapacity, "build-capacity", envOrDefaultInt("BUILD_CAPACITY", 2), "number of builds that may run concurrently")

	fs.IntVar(&cfg.DockerContainerPort, "docker-container-port", envOrDefaultInt("DOCKER_CONTAINER_PORT", 8080), "port the built container listens on inside the container")
	fs.StringVar(&cfg.DockerHost, "docker-host", envOrDefault("DOCKER_HOST_IP", "127.0.0.1"), "host IP recorded in DomainRecord for built containers")

	fs.StringVar(&cfg.Route53HostedZoneID, "route53-hosted-zone-id", envOrDefault("ROUTE53_HOSTED_ZONE_ID", ""), "Route53 hosted zone for per-project subdomains; empty disables DNS binding")
	fs.StringVar(&cfg.BaseDomain, "base-domain", envOrDefault("BASE_DOMAIN", ""), "base domain that container subdomains are bound under")

	fs.StringVar(&cfg.MetricsPath, "metrics-path", envOrDefault("METRICS_PATH", "/metrics"), "path for Prometheus metrics")
	fs.StringVar(&cfg.HealthPath, "health-path", envOrDefault("HEALTH_PATH", "/healthz"), "path for health checks")

	fs.StringVar(&cfg.BuildLogDir, "build-log-dir", envOrDefault("BUILD_LOG_DIR", "/srv/git/build-logs"), "directory holding full build transcripts")
	buildLogMaxStr := fs.String("build-log-max-size", envOrDefault("BUILD_LOG_MAX_SIZE", "1GiB"), "eviction budget for the build log directory")

	fs.StringVar(&cfg.CloudMapServiceID, "cloudmap-service-id", envOrDefault("CLOUDMAP_SERVICE_ID", ""), "AWS Cloud Map service ID to self-register under; empty disables Cloud Map")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if cfg.BodyLimit, err = parseSize(*bodyLimitStr); err != nil {
		return nil, fmt.Errorf("invalid body-limit: %w", err)
	}
	if cfg.BuildLogMaxBytes, err = parseSize(*buildLogMaxStr); err != nil {
		return nil, fmt.Errorf("invalid build-log-max-size: %w", err)
	}

	if cfg.Base == "" {
		return nil, errors.New("base repository directory is required")
	}
	if cfg.BuildCapacity <= 0 {
		return nil, errors.New("build-capacity must be positive")
	}
	if cfg.Route53HostedZoneID != "" && cfg.BaseDomain == "" {
		return nil, errors.New("base-domain is required when route53-hosted-zone-id is set")
	}

	return cfg, nil
}

// parseSize parses sizes like "100MB", "512KiB", or a bare byte count.
func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	units := []struct {
		suffix string
		factor int64
	}{
		{"KiB", 1024}, {"MiB", 1024 * 1024}, {"GiB", 1024 * 1024 * 1024},
		{"KB", 1000}, {"MB", 1000 * 1000}, {"GB", 1000 * 1000 * 1000},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			n, err := strconv.ParseInt(strings.TrimSuffix(s, u.suffix), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size %q: %w", s, err)
			}
			return n * u.factor, nil
		}
	}
	return strconv.ParseInt(s, 10, 64)
}

func envOrDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envOrDefaultInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}
