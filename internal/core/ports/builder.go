package ports

import (
	"context"

	"github.com/melih/lighthouse-launch/internal/core/domain"
)

// BuildRequest names the source tree and the tag of the image to produce.
// Exactly one of SourceDir and RepoURL is set.
type BuildRequest struct {
	SourceDir string
	RepoURL   string
	// Ref is a branch name; empty means the remote default branch.
	Ref    string
	Image  string
	Recipe domain.Recipe
}

// BuilderService defines operations for building container images from source code.
type BuilderService interface {
	// BuildImage assembles the image described by req.Recipe. Any failing
	// step aborts the build and no result is returned.
	BuildImage(ctx context.Context, req BuildRequest) (domain.BuildResult, error)
}
