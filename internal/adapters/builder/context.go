// Package builder turns a source tree and a recipe into a container image.
package builder

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/pkg/archive"
	"github.com/melih/lighthouse-launch/internal/recipe"
	"github.com/moby/patternmatcher/ignorefile"
)

// Context tars src, honoring .dockerignore, and appends dockerfile under
// recipe.DockerfileName. A file with that name in src is replaced.
func Context(src string, dockerfile []byte) (io.ReadCloser, error) {
	excludes, err := readIgnore(src)
	if err != nil {
		return nil, err
	}
	tarball, err := archive.TarWithOptions(src, &archive.TarOptions{ExcludePatterns: excludes})
	if err != nil {
		return nil, fmt.Errorf("failed to create build context: %w", err)
	}

	pr, pw := io.Pipe()
	go func() {
		defer tarball.Close()
		pw.CloseWithError(appendFile(pw, tarball, recipe.DockerfileName, dockerfile))
	}()
	return pr, nil
}

func readIgnore(src string) ([]string, error) {
	f, err := os.Open(filepath.Join(src, ".dockerignore"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read .dockerignore: %w", err)
	}
	defer f.Close()
	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse .dockerignore: %w", err)
	}
	return patterns, nil
}

func appendFile(w io.Writer, in io.Reader, name string, data []byte) error {
	tr := tar.NewReader(in)
	tw := tar.NewWriter(w)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read build context: %w", err)
		}
		if hdr.Name == name {
			continue
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if _, err := io.Copy(tw, tr); err != nil {
			return err
		}
	}
	// fixed mtime keeps the context byte-identical across runs
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(data)),
		ModTime:  time.Unix(0, 0),
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	if _, err := tw.Write(data); err != nil {
		return err
	}
	return tw.Close()
}
