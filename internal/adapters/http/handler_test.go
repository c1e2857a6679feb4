package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/melih/lighthouse-launch/internal/adapters/builder"
	"github.com/melih/lighthouse-launch/internal/core/domain"
	"github.com/melih/lighthouse-launch/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	containers []domain.Container
	started    []domain.RunSpec
	stopped    []string
	packages   []domain.Package
	images     []string
	err        error
}

func (f *fakeService) ListContainers(context.Context) ([]domain.Container, error) {
	return f.containers, f.err
}

func (f *fakeService) StartContainer(_ context.Context, spec domain.RunSpec) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.started = append(f.started, spec)
	return "c0ffee", nil
}

func (f *fakeService) StopContainer(_ context.Context, id string) error {
	f.stopped = append(f.stopped, id)
	return f.err
}

func (f *fakeService) GetContainerLogs(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("INFO:     Uvicorn running on http://0.0.0.0:8000\n")), f.err
}

func (f *fakeService) ListPackages(_ context.Context, image string) ([]domain.Package, error) {
	f.images = append(f.images, image)
	return f.packages, f.err
}

type fakeBuilder struct {
	reqs []ports.BuildRequest
	err  error
}

func (f *fakeBuilder) BuildImage(_ context.Context, req ports.BuildRequest) (domain.BuildResult, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return domain.BuildResult{}, f.err
	}
	return domain.BuildResult{Image: req.Image, ImageID: "sha256:abc"}, nil
}

func newTestApp(svc *fakeService, b *fakeBuilder) *fiber.App {
	app := fiber.New()
	NewContainerHandler(svc, b, domain.DefaultRecipe()).Register(app)
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func TestStartContainerDefaultsPort(t *testing.T) {
	svc := &fakeService{}
	app := newTestApp(svc, &fakeBuilder{})

	resp, body := do(t, app, http.MethodPost, "/api/v1/containers", `{"image":"synapse:latest","name":"synapse"}`)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"id":"c0ffee","image":"synapse:latest","port":8000}`, body)
	require.Len(t, svc.started, 1)
	assert.Equal(t, domain.RunSpec{Image: "synapse:latest", Name: "synapse", Port: 8000}, svc.started[0])
}

func TestStartContainerBuildsFromRepo(t *testing.T) {
	svc := &fakeService{}
	b := &fakeBuilder{}
	app := newTestApp(svc, b)

	resp, _ := do(t, app, http.MethodPost, "/api/v1/containers", `{"image":"synapse","repo_url":"https://example.com/synapse.git","port":9999}`)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	require.Len(t, b.reqs, 1)
	assert.Equal(t, "https://example.com/synapse.git", b.reqs[0].RepoURL)
	assert.Equal(t, 9999, svc.started[0].Port)
}

func TestStartContainerBuildFailureStartsNothing(t *testing.T) {
	svc := &fakeService{}
	app := newTestApp(svc, &fakeBuilder{err: errors.New("pip install failed")})

	resp, body := do(t, app, http.MethodPost, "/api/v1/containers", `{"image":"synapse","repo_url":"https://example.com/synapse.git"}`)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, "build failed: pip install failed")
	assert.Empty(t, svc.started)
}

func TestStartContainerValidation(t *testing.T) {
	app := newTestApp(&fakeService{}, &fakeBuilder{})

	resp, _ := do(t, app, http.MethodPost, "/api/v1/containers", `{}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, app, http.MethodPost, "/api/v1/containers", `{"image":"x","port":70000}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, app, http.MethodPost, "/api/v1/containers", `{not json`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestListAndStopContainers(t *testing.T) {
	svc := &fakeService{containers: []domain.Container{{ID: "abc", Name: "synapse", State: "running", Port: 8000}}}
	app := newTestApp(svc, &fakeBuilder{})

	resp, body := do(t, app, http.MethodGet, "/api/v1/containers", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var got []domain.Container
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, svc.containers, got)

	resp, _ = do(t, app, http.MethodDelete, "/api/v1/containers/abc", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"abc"}, svc.stopped)

	resp, body = do(t, app, http.MethodGet, "/api/v1/containers/abc/logs", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Uvicorn running")
}

func TestBuildImageEndpoint(t *testing.T) {
	b := &fakeBuilder{}
	app := newTestApp(&fakeService{}, b)

	resp, body := do(t, app, http.MethodPost, "/api/v1/builds", `{"source_dir":"/src/synapse","image":"synapse:1"}`)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"image":"synapse:1","image_id":"sha256:abc","size":0}`, body)
	assert.Equal(t, domain.DefaultRecipe(), b.reqs[0].Recipe)

	resp, _ = do(t, app, http.MethodPost, "/api/v1/builds", `{"image":"synapse:1"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, app, http.MethodPost, "/api/v1/builds", `{"source_dir":"/src","image":"x","recipe":{"workdir":"relative"}}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	b.err = fmt.Errorf("wrapped: %w", builder.ErrMissingManifest)
	resp, _ = do(t, app, http.MethodPost, "/api/v1/builds", `{"source_dir":"/src","image":"x"}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
}

func TestRenderRecipeEndpoint(t *testing.T) {
	app := newTestApp(&fakeService{}, &fakeBuilder{})

	resp, body := do(t, app, http.MethodPost, "/api/v1/recipes/render", "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "FROM python:3.11-slim")

	resp, body = do(t, app, http.MethodPost, "/api/v1/recipes/render", `{"default_port":9000,"system_packages":[]}`)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "${PORT:-9000}")
	assert.NotContains(t, body, "apt-get")

	resp, _ = do(t, app, http.MethodPost, "/api/v1/recipes/render", `{"app":"main"}`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestListPackagesEndpoint(t *testing.T) {
	svc := &fakeService{packages: []domain.Package{{Name: "fastapi", Version: "0.110.0"}}}
	app := newTestApp(svc, &fakeBuilder{})

	resp, body := do(t, app, http.MethodGet, "/api/v1/packages?image="+url.QueryEscape("ghcr.io/org/app:1"), "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[{"name":"fastapi","version":"0.110.0"}]`, body)
	assert.Equal(t, []string{"ghcr.io/org/app:1"}, svc.images)

	resp, _ = do(t, app, http.MethodGet, "/api/v1/packages", "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Len(t, svc.images, 1)
}

func TestProxyRequest(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "hello from %s", r.URL.Path)
	}))
	defer upstream.Close()
	host, port, err := net.SplitHostPort(strings.TrimPrefix(upstream.URL, "http://"))
	require.NoError(t, err)
	var portNum int
	_, err = fmt.Sscan(port, &portNum)
	require.NoError(t, err)

	svc := &fakeService{containers: []domain.Container{
		{Name: "synapse", State: "exited", IPAddress: "10.0.0.9", Port: 1},
		{Name: "synapse", State: "running", IPAddress: host, Port: portNum},
	}}
	app := fiber.New()
	app.Use(NewProxyHandler(svc).ProxyRequest)
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("control plane") })

	req := httptest.NewRequest(http.MethodGet, "http://synapse.localhost/search", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello from /search", string(body))

	req = httptest.NewRequest(http.MethodGet, "http://missing.localhost/", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "http://localhost/", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Equal(t, "control plane", string(body))
}
