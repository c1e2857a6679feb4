package http

import (
	"errors"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/melih/lighthouse-launch/internal/adapters/builder"
	"github.com/melih/lighthouse-launch/internal/core/domain"
	"github.com/melih/lighthouse-launch/internal/core/ports"
	"github.com/melih/lighthouse-launch/internal/recipe"
)

type ContainerHandler struct {
	service ports.ContainerService
	builder ports.BuilderService
	recipe  domain.Recipe
}

// NewContainerHandler serves the control API. base is the recipe requests
// start from before applying their overrides.
func NewContainerHandler(service ports.ContainerService, builder ports.BuilderService, base domain.Recipe) *ContainerHandler {
	return &ContainerHandler{service: service, builder: builder, recipe: base}
}

// Register mounts the API routes under /api/v1.
func (h *ContainerHandler) Register(app *fiber.App) {
	v1 := app.Group("/api").Group("/v1")

	containers := v1.Group("/containers")
	containers.Get("/", h.ListContainers)
	containers.Post("/", h.StartContainer)
	containers.Delete("/:id", h.StopContainer)
	containers.Get("/:id/logs", h.GetContainerLogs)

	v1.Post("/builds", h.BuildImage)
	v1.Post("/recipes/render", h.RenderRecipe)
	v1.Get("/packages", h.ListPackages)
}

func errorJSON(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func (h *ContainerHandler) ListContainers(c *fiber.Ctx) error {
	containers, err := h.service.ListContainers(c.Context())
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err)
	}
	return c.JSON(containers)
}

type StartContainerRequest struct {
	Image   string          `json:"image"`
	Name    string          `json:"name"`
	Port    int             `json:"port"`
	Env     []domain.EnvVar `json:"env"`
	RepoURL string          `json:"repo_url"`
	Ref     string          `json:"ref"`
	Restart string          `json:"restart"`
}

func (h *ContainerHandler) StartContainer(c *fiber.Ctx) error {
	var req StartContainerRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, errors.New("invalid request body"))
	}
	if req.Image == "" {
		return errorJSON(c, fiber.StatusBadRequest, errors.New("image is required"))
	}
	if req.Port != 0 && !domain.ValidPort(req.Port) {
		return errorJSON(c, fiber.StatusBadRequest, errors.New("port must be between 1 and 65535"))
	}

	// Build from source first when a repository is given.
	// This is a blocking operation and might take time.
	if req.RepoURL != "" {
		if _, err := h.builder.BuildImage(c.Context(), ports.BuildRequest{
			RepoURL: req.RepoURL,
			Ref:     req.Ref,
			Image:   req.Image,
			Recipe:  h.recipe,
		}); err != nil {
			return errorJSON(c, fiber.StatusInternalServerError, errors.New("build failed: "+err.Error()))
		}
	}

	if req.Port == 0 {
		req.Port = h.recipe.DefaultPort
	}
	containerID, err := h.service.StartContainer(c.Context(), domain.RunSpec{
		Image:         req.Image,
		Name:          req.Name,
		Port:          req.Port,
		Env:           req.Env,
		RestartPolicy: req.Restart,
	})
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":    containerID,
		"image": req.Image,
		"port":  req.Port,
	})
}

func (h *ContainerHandler) StopContainer(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.StopContainer(c.Context(), id); err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *ContainerHandler) GetContainerLogs(c *fiber.Ctx) error {
	id := c.Params("id")
	logs, err := h.service.GetContainerLogs(c.Context(), id)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err)
	}
	// SendStream closes the reader once the body is written.
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendStream(logs)
}

type BuildRequest struct {
	RepoURL   string         `json:"repo_url"`
	Ref       string         `json:"ref"`
	SourceDir string         `json:"source_dir"`
	Image     string         `json:"image"`
	Recipe    *domain.Recipe `json:"recipe"`
}

func (h *ContainerHandler) BuildImage(c *fiber.Ctx) error {
	var req BuildRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, errors.New("invalid request body"))
	}
	if req.Image == "" {
		return errorJSON(c, fiber.StatusBadRequest, errors.New("image is required"))
	}
	if (req.RepoURL == "") == (req.SourceDir == "") {
		return errorJSON(c, fiber.StatusBadRequest, errors.New("exactly one of repo_url and source_dir is required"))
	}
	r := h.recipe
	if req.Recipe != nil {
		r = *req.Recipe
	}
	if err := r.Validate(); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}

	res, err := h.builder.BuildImage(c.Context(), ports.BuildRequest{
		RepoURL:   req.RepoURL,
		Ref:       req.Ref,
		SourceDir: req.SourceDir,
		Image:     req.Image,
		Recipe:    r,
	})
	switch {
	case errors.Is(err, builder.ErrMissingManifest), errors.Is(err, builder.ErrUnpinned), errors.Is(err, os.ErrNotExist):
		return errorJSON(c, fiber.StatusUnprocessableEntity, err)
	case err != nil:
		return errorJSON(c, fiber.StatusInternalServerError, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// RenderRecipe returns the Dockerfile for the posted recipe; an empty body
// renders the server's recipe.
func (h *ContainerHandler) RenderRecipe(c *fiber.Ctx) error {
	r := h.recipe
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&r); err != nil {
			return errorJSON(c, fiber.StatusBadRequest, errors.New("invalid request body"))
		}
	}
	out, err := recipe.RenderString(r)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, err)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.SendString(out)
}

// ListPackages takes the image as ?image= since references carry '/' and ':'.
func (h *ContainerHandler) ListPackages(c *fiber.Ctx) error {
	image := c.Query("image")
	if image == "" {
		return errorJSON(c, fiber.StatusBadRequest, errors.New("image query parameter is required"))
	}
	pkgs, err := h.service.ListPackages(c.Context(), image)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, err)
	}
	return c.JSON(pkgs)
}
