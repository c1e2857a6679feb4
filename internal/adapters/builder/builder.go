package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/dustin/go-humanize"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/melih/lighthouse-launch/internal/core/domain"
	"github.com/melih/lighthouse-launch/internal/core/ports"
	"github.com/melih/lighthouse-launch/internal/recipe"
	"github.com/sirupsen/logrus"
)

var (
	ErrMissingManifest = recipe.ErrMissingManifest
	ErrUnpinned        = errors.New("manifest has unpinned requirements")
)

// imageAPI is the part of the Docker client the builder needs.
type imageAPI interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
}

// Adapter implements ports.BuilderService on top of the Docker daemon.
type Adapter struct {
	cli imageAPI
	log logrus.FieldLogger
	// out receives clone and build progress.
	out io.Writer
}

var _ ports.BuilderService = (*Adapter)(nil)

func NewBuilderAdapter(log logrus.FieldLogger, out io.Writer) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newAdapter(cli, log, out), nil
}

func newAdapter(cli imageAPI, log logrus.FieldLogger, out io.Writer) *Adapter {
	if out == nil {
		out = io.Discard
	}
	return &Adapter{cli: cli, log: log, out: out}
}

// BuildImage runs toolchain install, dependency install and source copy as
// one Docker build. Every step must succeed; the first failure aborts the
// build and the tag is never reported.
func (a *Adapter) BuildImage(ctx context.Context, req ports.BuildRequest) (domain.BuildResult, error) {
	if req.Image == "" {
		return domain.BuildResult{}, fmt.Errorf("image name is required")
	}
	if (req.SourceDir == "") == (req.RepoURL == "") {
		return domain.BuildResult{}, fmt.Errorf("exactly one of source dir and repo url is required")
	}
	if err := req.Recipe.Validate(); err != nil {
		return domain.BuildResult{}, err
	}
	log := a.log.WithField("image", req.Image)

	src := req.SourceDir
	if req.RepoURL != "" {
		tmpDir, err := os.MkdirTemp("", "lighthouse-build-*")
		if err != nil {
			return domain.BuildResult{}, fmt.Errorf("failed to create temp dir: %w", err)
		}
		defer os.RemoveAll(tmpDir)

		log.WithFields(logrus.Fields{"repo": req.RepoURL, "ref": req.Ref}).Info("cloning source")
		if err := a.clone(ctx, req.RepoURL, req.Ref, tmpDir); err != nil {
			return domain.BuildResult{}, err
		}
		src = tmpDir
	}

	manifest, err := recipe.LoadManifest(os.DirFS(src), req.Recipe.Manifest)
	if err != nil {
		return domain.BuildResult{}, err
	}
	if unpinned := manifest.Unpinned(); len(unpinned) > 0 {
		names := make([]string, 0, len(unpinned))
		for _, r := range unpinned {
			names = append(names, r.String())
		}
		if req.Recipe.RequirePinned {
			return domain.BuildResult{}, fmt.Errorf("%w: %s", ErrUnpinned, strings.Join(names, ", "))
		}
		log.WithField("requirements", names).Warn("unpinned requirements may resolve differently between builds")
	}

	dockerfile, err := recipe.RenderString(req.Recipe, manifest.Files...)
	if err != nil {
		return domain.BuildResult{}, err
	}
	buildCtx, err := Context(src, []byte(dockerfile))
	if err != nil {
		return domain.BuildResult{}, err
	}
	defer buildCtx.Close()

	log.WithField("requirements", len(manifest.Requirements)).Info("building image")
	resp, err := a.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{req.Image},
		Dockerfile:  recipe.DockerfileName,
		Remove:      true, // Remove intermediate containers
		ForceRemove: true,
	})
	if err != nil {
		return domain.BuildResult{}, fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	id, err := readBuildOutput(resp.Body, a.out)
	if err != nil {
		return domain.BuildResult{}, fmt.Errorf("failed to build image: %w", err)
	}

	result := domain.BuildResult{Image: req.Image, ImageID: id}
	inspect, _, err := a.cli.ImageInspectWithRaw(ctx, req.Image)
	if err != nil {
		return domain.BuildResult{}, fmt.Errorf("failed to inspect built image: %w", err)
	}
	result.ImageID = inspect.ID
	result.Size = inspect.Size

	log.WithFields(logrus.Fields{"id": result.ImageID, "size": humanize.Bytes(uint64(result.Size))}).Info("image built")
	return result, nil
}

func (a *Adapter) clone(ctx context.Context, repoURL, ref, dir string) error {
	opts := &git.CloneOptions{
		URL:          repoURL,
		Progress:     a.out,
		Depth:        1, // Shallow clone for speed
		SingleBranch: true,
	}
	if ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(ref)
	}
	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		return fmt.Errorf("failed to clone repo: %w", err)
	}
	return nil
}

// readBuildOutput drains the daemon's JSON progress stream into out. The
// build is only finished once the stream ends; an errorDetail message means
// a step failed.
func readBuildOutput(r io.Reader, out io.Writer) (string, error) {
	var id string
	err := jsonmessage.DisplayJSONMessagesStream(r, out, 0, false, func(msg jsonmessage.JSONMessage) {
		if msg.Aux == nil {
			return
		}
		var res types.BuildResult
		if err := json.Unmarshal(*msg.Aux, &res); err == nil && res.ID != "" {
			id = res.ID
		}
	})
	if err != nil {
		return "", err
	}
	return id, nil
}
