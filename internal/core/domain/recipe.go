package domain

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"unicode"
)

const (
	DefaultBaseImage    = "python:3.11-slim"
	DefaultWorkDir      = "/app"
	DefaultManifest     = "requirements.txt"
	DefaultPort         = 8000
	DefaultServer       = "uvicorn"
	DefaultAppReference = "main:app"
	// BuildToolchain is the OS package group providing a C/C++ compiler.
	BuildToolchain = "build-essential"
)

var (
	ErrInvalidRecipe = errors.New("invalid recipe")
	ErrInvalidAppRef = errors.New("invalid app reference")

	identRe   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	pkgNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9+.\-]*$`)
	envNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	imageRe   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-/:@]*$`)
	fileRe    = regexp.MustCompile(`^[A-Za-z0-9._\-/]+$`)
)

// EnvVar is a single environment variable baked into the image.
type EnvVar struct {
	Name  string `json:"name" yaml:"name" mapstructure:"name"`
	Value string `json:"value" yaml:"value" mapstructure:"value"`
}

// Recipe holds every knob of the image build and the launch command.
type Recipe struct {
	BaseImage      string   `json:"base_image" yaml:"base_image" mapstructure:"base_image"`
	WorkDir        string   `json:"workdir" yaml:"workdir" mapstructure:"workdir"`
	SystemPackages []string `json:"system_packages" yaml:"system_packages" mapstructure:"system_packages"`
	Manifest       string   `json:"manifest" yaml:"manifest" mapstructure:"manifest"`
	Env            []EnvVar `json:"env,omitempty" yaml:"env,omitempty" mapstructure:"env"`
	ExposedPort    int      `json:"exposed_port" yaml:"exposed_port" mapstructure:"exposed_port"`
	DefaultPort    int      `json:"default_port" yaml:"default_port" mapstructure:"default_port"`
	App            string   `json:"app" yaml:"app" mapstructure:"app"`
	Server         string   `json:"server" yaml:"server" mapstructure:"server"`
	RequirePinned  bool     `json:"require_pinned" yaml:"require_pinned" mapstructure:"require_pinned"`
	// Launcher is an image carrying the lighthouse binary. When set, the
	// image starts through "lighthouse launch" instead of a shell command.
	Launcher       string   `json:"launcher,omitempty" yaml:"launcher,omitempty" mapstructure:"launcher"`
}

// DefaultRecipe returns the recipe for a FastAPI-style app served by uvicorn.
func DefaultRecipe() Recipe {
	return Recipe{
		BaseImage:      DefaultBaseImage,
		WorkDir:        DefaultWorkDir,
		SystemPackages: []string{BuildToolchain},
		Manifest:       DefaultManifest,
		ExposedPort:    DefaultPort,
		DefaultPort:    DefaultPort,
		App:            DefaultAppReference,
		Server:         DefaultServer,
	}
}

// Validate checks that every value is safe to place into a Dockerfile.
func (r Recipe) Validate() error {
	var errs []error
	if !imageRe.MatchString(r.BaseImage) {
		errs = append(errs, fmt.Errorf("base image %q is not a valid reference", r.BaseImage))
	}
	if !path.IsAbs(r.WorkDir) || !fileRe.MatchString(r.WorkDir) {
		errs = append(errs, fmt.Errorf("workdir %q must be an absolute path", r.WorkDir))
	}
	for _, p := range r.SystemPackages {
		if !pkgNameRe.MatchString(p) {
			errs = append(errs, fmt.Errorf("system package %q is not a valid package name", p))
		}
	}
	if r.Manifest == "" || path.IsAbs(r.Manifest) || !fileRe.MatchString(r.Manifest) || strings.Contains(r.Manifest, "..") {
		errs = append(errs, fmt.Errorf("manifest %q must be a relative path inside the source tree", r.Manifest))
	}
	for _, e := range r.Env {
		if !envNameRe.MatchString(e.Name) {
			errs = append(errs, fmt.Errorf("env name %q is not valid", e.Name))
		}
		if strings.IndexFunc(e.Value, func(c rune) bool { return !unicode.IsPrint(c) }) >= 0 {
			errs = append(errs, fmt.Errorf("env %s must be a single line of printable characters", e.Name))
		}
	}
	if !ValidPort(r.ExposedPort) {
		errs = append(errs, fmt.Errorf("exposed port %d out of range", r.ExposedPort))
	}
	if !ValidPort(r.DefaultPort) {
		errs = append(errs, fmt.Errorf("default port %d out of range", r.DefaultPort))
	}
	if _, err := ParseAppRef(r.App); err != nil {
		errs = append(errs, err)
	}
	if r.Launcher != "" && !imageRe.MatchString(r.Launcher) {
		errs = append(errs, fmt.Errorf("launcher image %q is not a valid reference", r.Launcher))
	}
	if r.Server == "" || !fileRe.MatchString(r.Server) {
		errs = append(errs, fmt.Errorf("server %q must be a single executable name", r.Server))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRecipe, errors.Join(errs...))
	}
	return nil
}

// ValidPort reports whether p can be bound as a TCP port.
func ValidPort(p int) bool {
	return p > 0 && p <= 65535
}

// AppRef names the application object as module:attribute.
type AppRef struct {
	Module string
	Attr   string
}

// ParseAppRef parses "pkg.module:attr".
func ParseAppRef(s string) (AppRef, error) {
	mod, attr, ok := strings.Cut(s, ":")
	if !ok || !identRe.MatchString(attr) {
		return AppRef{}, fmt.Errorf("%w: %q", ErrInvalidAppRef, s)
	}
	for _, part := range strings.Split(mod, ".") {
		if !identRe.MatchString(part) {
			return AppRef{}, fmt.Errorf("%w: %q", ErrInvalidAppRef, s)
		}
	}
	return AppRef{Module: mod, Attr: attr}, nil
}

func (a AppRef) String() string {
	return a.Module + ":" + a.Attr
}
