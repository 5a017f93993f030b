// Copyright (c) 2025 Promptforge Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package runner provides an optional Docker-isolated environment for the
// side-effecting coder tools. When enabled, run_command and install_package
// execute inside a long-lived container with the project root bind-mounted,
// instead of on the host shell.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const (
	// containerWorkdir is where the project root is mounted inside the container.
	containerWorkdir = "/workspace"

	// stopTimeout is the grace period for stopping the container.
	stopTimeout = 10 * time.Second
)

// ImageForStack picks a base image for the project's tech stack.
func ImageForStack(techStack []string) string {
	for _, entry := range techStack {
		switch strings.ToLower(entry) {
		case "node", "nodejs", "javascript", "typescript", "react", "express":
			return "node:20-slim"
		case "go", "golang":
			return "golang:1.25"
		}
	}
	return "python:3.12-slim"
}

// DockerRunner executes shell commands inside one container per project.
// It implements the executor's CommandRunner contract.
type DockerRunner struct {
	cli         *client.Client
	image       string
	containerID string
}

// New creates a runner with the default Docker client.
func New(image string) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &DockerRunner{cli: cli, image: image}, nil
}

// Start pulls the image and starts the project container with hostDir
// mounted at the container workdir. Must be called before Run.
func (r *DockerRunner) Start(ctx context.Context, hostDir string) error {
	pull, err := r.cli.ImagePull(ctx, r.image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", r.image, err)
	}
	// The pull stream must be drained for the pull to complete.
	_, _ = io.Copy(io.Discard, pull)
	pull.Close()

	created, err := r.cli.ContainerCreate(ctx,
		&container.Config{
			Image:      r.image,
			Cmd:        []string{"sleep", "infinity"},
			WorkingDir: containerWorkdir,
		},
		&container.HostConfig{
			Mounts: []mount.Mount{{
				Type:   mount.TypeBind,
				Source: hostDir,
				Target: containerWorkdir,
			}},
		},
		nil, nil, "")
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	r.containerID = created.ID

	if err := r.cli.ContainerStart(ctx, r.containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

// Run executes one shell command inside the container and returns its
// combined output. The dir argument is the host project root; all commands
// run at the mounted workdir.
func (r *DockerRunner) Run(ctx context.Context, dir, command string) (string, error) {
	if r.containerID == "" {
		return "", fmt.Errorf("container not started")
	}

	exec, err := r.cli.ContainerExecCreate(ctx, r.containerID, container.ExecOptions{
		Cmd:          []string{"sh", "-c", command},
		WorkingDir:   containerWorkdir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create exec: %w", err)
	}

	attach, err := r.cli.ContainerExecAttach(ctx, exec.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to attach exec: %w", err)
	}
	defer attach.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, attach.Reader); err != nil {
		return buf.String(), fmt.Errorf("failed to read exec output: %w", err)
	}

	inspect, err := r.cli.ContainerExecInspect(ctx, exec.ID)
	if err != nil {
		return buf.String(), fmt.Errorf("failed to inspect exec: %w", err)
	}
	if inspect.ExitCode != 0 {
		return buf.String(), fmt.Errorf("command exited with status %d", inspect.ExitCode)
	}
	return buf.String(), nil
}

// Close stops and removes the project container. Idempotent: a container
// that is already gone is not an error.
func (r *DockerRunner) Close(ctx context.Context) error {
	defer r.cli.Close()
	if r.containerID == "" {
		return nil
	}

	timeout := int(stopTimeout.Seconds())
	// Stop failures are tolerated; removal is forced below.
	_ = r.cli.ContainerStop(ctx, r.containerID, container.StopOptions{Timeout: &timeout})

	err := r.cli.ContainerRemove(ctx, r.containerID, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", r.containerID, err)
	}
	r.containerID = ""
	return nil
}
