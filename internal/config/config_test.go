package config

import (
	"os"
	"testing"
)

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadArgs([]string{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("listen addr default mismatch: %s", cfg.ListenAddr)
	}
	if cfg.Base == "" {
		t.Fatalf("base default empty")
	}
	if cfg.BodyLimit <= 0 {
		t.Fatalf("body limit default invalid: %d", cfg.BodyLimit)
	}
	if !cfg.GitAuth {
		t.Fatalf("expected git-auth to default on")
	}
	if cfg.BuildCapacity <= 0 {
		t.Fatalf("build capacity default invalid: %d", cfg.BuildCapacity)
	}
}

func TestRoute53RequiresBaseDomain(t *testing.T) {
	clearEnv(t)
	_, err := LoadArgs([]string{"-route53-hosted-zone-id=Z123"})
	if err == nil {
		t.Fatalf("expected error when base-domain missing")
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("BODY_LIMIT", "1GB")
	t.Setenv("GIT_AUTH", "false")
	cfg, err := LoadArgs([]string{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BodyLimit != 1_000_000_000 {
		t.Fatalf("expected body limit override, got %d", cfg.BodyLimit)
	}
	if cfg.GitAuth {
		t.Fatalf("expected git-auth to be disabled")
	}
}

func TestBuildCapacityMustBePositive(t *testing.T) {
	clearEnv(t)
	_, err := LoadArgs([]string{"-build-capacity=0"})
	if err == nil {
		t.Fatalf("expected error for non-positive build capacity")
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LISTEN_ADDR", "BASE", "STORE_DSN", "LOG_LEVEL", "GIT_AUTH", "BODY_LIMIT",
		"BUILD_TIMEOUT_MS", "BUILD_CAPACITY", "DOCKER_CONTAINER_PORT", "DOCKER_HOST_IP",
		"ROUTE53_HOSTED_ZONE_ID", "BASE_DOMAIN", "METRICS_PATH", "HEALTH_PATH",
	} {
		_ = os.Unsetenv(k)
	}
}
