package builder

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os/exec"
)

// DockerCLIBuilder drives the local `docker` binary directly: build an
// image from containerSrc, stop/remove any prior container with the same
// name, and run a fresh one, publishing a host port chosen at random.
// It assumes containerSrc contains a Dockerfile at its root.
type DockerCLIBuilder struct {
	// ContainerPort is the port the built image is expected to listen on.
	ContainerPort int
	// Host is the address the executor should report back as the
	// container's reachable IP (typically the docker host's address).
	Host string
}

func NewDockerCLIBuilder(containerPort int, host string) *DockerCLIBuilder {
	return &DockerCLIBuilder{ContainerPort: containerPort, Host: host}
}

func (b *DockerCLIBuilder) Build(ctx context.Context, owner, repo, containerName, containerSrc string) (*Outcome, error) {
	var log bytes.Buffer

	image := "shipgit/" + containerName + ":latest"
	if err := run(ctx, &log, containerSrc, "docker", "build", "-t", image, "."); err != nil {
		return nil, fmt.Errorf("docker build: %w: %s", err, log.String())
	}

	// best-effort: tear down any previous container for this project
	_ = run(ctx, &log, "", "docker", "rm", "-f", containerName)

	hostPort, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("allocate host port: %w", err)
	}

	if err := run(ctx, &log, "", "docker", "run", "-d",
		"--name", containerName,
		"-p", fmt.Sprintf("%d:%d", hostPort, b.ContainerPort),
		image,
	); err != nil {
		return nil, fmt.Errorf("docker run: %w: %s", err, log.String())
	}

	return &Outcome{IP: b.Host, Port: hostPort, BuildLog: log.String()}, nil
}

func run(ctx context.Context, log *bytes.Buffer, dir string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Stdout = log
	cmd.Stderr = log
	return cmd.Run()
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
