// Package recipe turns a domain.Recipe into a Dockerfile and reads the
// dependency manifest it installs.
package recipe

import (
	"fmt"
	"io"
	"path"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/melih/lighthouse-launch/internal/core/domain"
)

const (
	// DockerfileName is the reserved build-context path of the rendered Dockerfile.
	DockerfileName = ".lighthouse.Dockerfile"
	// LauncherPath is where the lighthouse binary lives in the launcher image
	// and in the application image.
	LauncherPath = "/usr/local/bin/lighthouse"
)

// Steps are kept in separate layers: the dependency install only depends on
// the manifest, the source copy comes last.
const dockerfileTemplate = `FROM {{.BaseImage}}

ENV PYTHONDONTWRITEBYTECODE=1 \
    PYTHONUNBUFFERED=1
{{- range .Env}}
ENV {{.Name}}={{quote .Value}}
{{- end}}

WORKDIR {{.WorkDir}}
{{if .SystemPackages}}
RUN apt-get update \
    && apt-get install -y --no-install-recommends {{join .SystemPackages " "}} \
    && rm -rf /var/lib/apt/lists/*
{{end}}
COPY {{.Manifest}} {{.ManifestDest}}
{{- range .Files}}
COPY {{.Src}} {{.Dest}}
{{- end}}
RUN pip install --no-cache-dir -r {{.ManifestDest}}
{{if .Launcher}}
COPY --from={{.Launcher}} {{.LauncherPath}} {{.LauncherPath}}
{{end}}
COPY . .

EXPOSE {{.ExposedPort}}

CMD {{.Cmd}}
`

var fileRe = regexp.MustCompile(`^[A-Za-z0-9._\-/]+$`)

var tmpl = template.Must(template.New("Dockerfile").Funcs(template.FuncMap{
	"join":  strings.Join,
	"quote": dockerQuote,
}).Parse(dockerfileTemplate))

type templateData struct {
	domain.Recipe
	ManifestDest string
	Files        []domain.ContextPath
	LauncherPath string
	Cmd          string
}

// Render writes the Dockerfile for r to w. files are the extra paths the
// dependency install reads (see LoadManifest); they are copied next to the
// manifest before the install step.
func Render(w io.Writer, r domain.Recipe, files ...domain.ContextPath) error {
	if err := r.Validate(); err != nil {
		return err
	}
	for _, f := range files {
		if !contextPathValid(f.Src) || !contextPathValid(strings.TrimPrefix(f.Dest, "./")) || f.Src == DockerfileName {
			return fmt.Errorf("%w: context path %q -> %q must stay inside the source tree", domain.ErrInvalidRecipe, f.Src, f.Dest)
		}
	}
	data := templateData{
		Recipe:       r,
		ManifestDest: "./" + lastElem(r.Manifest),
		Files:        files,
		LauncherPath: LauncherPath,
		Cmd:          LaunchCmd(r),
	}
	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render Dockerfile: %w", err)
	}
	return nil
}

// RenderString is Render into a string.
func RenderString(r domain.Recipe, files ...domain.ContextPath) (string, error) {
	var sb strings.Builder
	if err := Render(&sb, r, files...); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// LaunchCmd is the exec-form CMD. With a launcher image the lighthouse
// binary resolves PORT and runs the server. Otherwise the shell only expands
// PORT and then replaces itself with the server, so the server is the
// container's only process.
func LaunchCmd(r domain.Recipe) string {
	if r.Launcher != "" {
		argv := []string{path.Base(LauncherPath), "launch",
			"--app", r.App,
			"--server", r.Server,
			"--default-port", strconv.Itoa(r.DefaultPort),
		}
		quoted := make([]string, len(argv))
		for i, a := range argv {
			quoted[i] = strconv.Quote(a)
		}
		return "[" + strings.Join(quoted, ", ") + "]"
	}
	line := fmt.Sprintf("exec %s %s --host 0.0.0.0 --port ${PORT:-%d}", r.Server, r.App, r.DefaultPort)
	return fmt.Sprintf(`["sh", "-c", %s]`, strconv.Quote(line))
}

// dockerQuote double-quotes s for an ENV instruction. Backslash, quote and
// '$' are escaped so the value reaches the environment literally.
func dockerQuote(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, c := range s {
		switch c {
		case '\\', '"', '$':
			sb.WriteByte('\\')
		}
		sb.WriteRune(c)
	}
	sb.WriteByte('"')
	return sb.String()
}

func contextPathValid(p string) bool {
	if p == "" || path.IsAbs(p) || !fileRe.MatchString(p) {
		return false
	}
	for _, elem := range strings.Split(p, "/") {
		if elem == ".." {
			return false
		}
	}
	return true
}

func lastElem(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
