package ports

import (
	"context"
	"io"

	"github.com/melih/lighthouse-launch/internal/core/domain"
)

// ContainerService defines the core operations for managing containers
// started from built images.
type ContainerService interface {
	ListContainers(ctx context.Context) ([]domain.Container, error)
	StartContainer(ctx context.Context, spec domain.RunSpec) (string, error)
	StopContainer(ctx context.Context, id string) error
	GetContainerLogs(ctx context.Context, id string) (io.ReadCloser, error)
	// ListPackages reports the dependency set installed in image.
	ListPackages(ctx context.Context, image string) ([]domain.Package, error)
}
