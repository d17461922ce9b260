// Package builder defines the container-builder contract the Build
// Executor consumes and a concrete docker-CLI-driven
// implementation suitable for a single-host deployment.
package builder

import "context"

// Outcome is what a successful build produces.
type Outcome struct {
	IP       string
	Port     int
	BuildLog string
}

// Builder turns a working-copy checkout into a running container. The core
// build executor only depends on this interface; see docker.go for the
// concrete implementation wired in cmd/shipgitd.
type Builder interface {
	Build(ctx context.Context, owner, repo, containerName, containerSrc string) (*Outcome, error)
}
