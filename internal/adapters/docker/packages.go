package docker

import (
	"bytes"
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/melih/lighthouse-launch/internal/core/domain"
	"github.com/melih/lighthouse-launch/internal/recipe"
)

var freezeCmd = []string{"python", "-m", "pip", "freeze", "--all"}

// ListPackages runs pip freeze in a throwaway container of image and
// returns the installed distributions sorted by name.
func (a *Adapter) ListPackages(ctx context.Context, image string) ([]domain.Package, error) {
	resp, err := a.cli.ContainerCreate(ctx, &container.Config{
		Image:  image,
		Cmd:    freezeCmd,
		Labels: map[string]string{LabelManaged: "false"},
	}, &container.HostConfig{NetworkMode: "none"}, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	defer func() {
		_ = a.cli.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true})
	}()

	waitC, errC := a.cli.ContainerWait(ctx, resp.ID, container.WaitConditionNextExit)
	if err := a.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	var status container.WaitResponse
	select {
	case status = <-waitC:
	case err := <-errC:
		return nil, fmt.Errorf("failed to wait for container: %w", err)
	}

	logs, err := a.cli.ContainerLogs(ctx, resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read container output: %w", err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return nil, fmt.Errorf("failed to read container output: %w", err)
	}
	if status.StatusCode != 0 {
		return nil, fmt.Errorf("pip freeze exited with %d: %s", status.StatusCode, bytes.TrimSpace(stderr.Bytes()))
	}
	return recipe.ParseFreeze(&stdout)
}
