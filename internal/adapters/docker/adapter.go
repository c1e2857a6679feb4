package docker

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/melih/lighthouse-launch/internal/core/domain"
	"github.com/melih/lighthouse-launch/internal/core/ports"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/sirupsen/logrus"
)

const (
	// LabelManaged marks containers started by lighthouse.
	LabelManaged = "io.lighthouse.managed"
	// LabelPort records the port the app listens on inside the container.
	LabelPort = "io.lighthouse.port"

	// StopGracePeriod is how long a stopped container has to exit after SIGTERM.
	StopGracePeriod = 10 * time.Second
	// the stop request itself waits for the kill that follows the grace period
	stopRequestSlack = 10 * time.Second
)

// containerAPI is the part of the Docker client the adapter needs.
type containerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// Adapter implements ports.ContainerService using Docker SDK
type Adapter struct {
	cli containerAPI
	log logrus.FieldLogger
}

var _ ports.ContainerService = (*Adapter)(nil)

// NewAdapter creates a new Docker adapter instance
func NewAdapter(log logrus.FieldLogger) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli, log: log}, nil
}

// ListContainers returns the containers lighthouse started, running or not.
func (a *Adapter) ListContainers(ctx context.Context) ([]domain.Container, error) {
	containers, err := a.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", LabelManaged+"=true")),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]domain.Container, 0, len(containers))
	for _, c := range containers {
		// Use the first name if available, remove slash
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		port, _ := strconv.Atoi(c.Labels[LabelPort])

		result = append(result, domain.Container{
			ID:        shortID(c.ID),
			Name:      name,
			Image:     c.Image,
			Status:    c.Status,
			State:     c.State,
			IPAddress: ipAddress(c),
			Port:      port,
		})
	}
	return result, nil
}

// StartContainer creates and starts a container from a built image. The
// port is both injected as PORT and published on 0.0.0.0.
func (a *Adapter) StartContainer(ctx context.Context, spec domain.RunSpec) (string, error) {
	if spec.Image == "" {
		return "", fmt.Errorf("image is required")
	}
	if spec.Port == 0 {
		spec.Port = domain.DefaultPort
	}
	if !domain.ValidPort(spec.Port) {
		return "", fmt.Errorf("invalid port %d", spec.Port)
	}
	port, err := nat.NewPort("tcp", strconv.Itoa(spec.Port))
	if err != nil {
		return "", fmt.Errorf("invalid port %d: %w", spec.Port, err)
	}

	env := []string{"PORT=" + strconv.Itoa(spec.Port)}
	for _, e := range spec.Env {
		env = append(env, e.Name+"="+e.Value)
	}
	restart := container.RestartPolicyMode(spec.RestartPolicy)
	if restart == "" {
		restart = container.RestartPolicyDisabled
	}

	resp, err := a.cli.ContainerCreate(ctx, &container.Config{
		Image:        spec.Image,
		Env:          env,
		ExposedPorts: nat.PortSet{port: struct{}{}},
		Labels: map[string]string{
			LabelManaged: "true",
			LabelPort:    strconv.Itoa(spec.Port),
		},
	}, &container.HostConfig{
		PortBindings:  nat.PortMap{port: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: port.Port()}}},
		RestartPolicy: container.RestartPolicy{Name: restart},
	}, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := a.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}
	a.log.WithFields(logrus.Fields{"id": shortID(resp.ID), "image": spec.Image, "port": spec.Port}).Info("container started")
	return resp.ID, nil
}

// StopContainer stops a running container
// StopContainer sends SIGTERM and lets the daemon kill the container once
// StopGracePeriod has passed.
func (a *Adapter) StopContainer(ctx context.Context, id string) error {
	grace := int(StopGracePeriod / time.Second)
	ctx, cancel := context.WithTimeout(ctx, StopGracePeriod+stopRequestSlack)
	defer cancel()
	if err := a.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &grace}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	return nil
}

// GetContainerLogs returns a stream of container logs
func (a *Adapter) GetContainerLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	options := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     false, // Can be true for streaming
		Timestamps: true,
	}
	return a.cli.ContainerLogs(ctx, id, options)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func ipAddress(c types.Container) string {
	if c.NetworkSettings == nil {
		return ""
	}
	for _, n := range c.NetworkSettings.Networks {
		if n != nil && n.IPAddress != "" {
			return n.IPAddress
		}
	}
	return ""
}
