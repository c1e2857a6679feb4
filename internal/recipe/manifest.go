package recipe

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"regexp"
	"strings"

	"github.com/melih/lighthouse-launch/internal/core/domain"
)

var (
	ErrMissingManifest = errors.New("dependency manifest not found")
	ErrOutsideContext  = errors.New("manifest reference outside the build context")

	reqNameRe = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._\-]*)(\[[^\]]*\])?`)
	eggRe     = regexp.MustCompile(`[#&]egg=([A-Za-z0-9][A-Za-z0-9._\-]*)`)
)

// ParseManifest reads a requirements file. Order is preserved, comments and
// blank lines are dropped, and option lines are kept verbatim. URL, VCS and
// local path requirements are accepted as direct requirements; the installer
// owns their format.
func ParseManifest(r io.Reader) (domain.Manifest, error) {
	var m domain.Manifest
	sc := bufio.NewScanner(r)
	lineNo := 0
	var cont strings.Builder
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if strings.HasSuffix(line, `\`) {
			cont.WriteString(strings.TrimSuffix(line, `\`))
			continue
		}
		if cont.Len() > 0 {
			cont.WriteString(line)
			line = cont.String()
			cont.Reset()
		}
		if err := parseLine(&m, line, lineNo); err != nil {
			return domain.Manifest{}, err
		}
	}
	if err := sc.Err(); err != nil {
		return domain.Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}
	// a trailing backslash on the last line continues into EOF
	if cont.Len() > 0 {
		if err := parseLine(&m, cont.String(), lineNo); err != nil {
			return domain.Manifest{}, err
		}
	}
	return m, nil
}

func parseLine(m *domain.Manifest, line string, lineNo int) error {
	line = stripComment(line)
	if line == "" {
		return nil
	}
	if strings.HasPrefix(line, "-") {
		m.Options = append(m.Options, line)
		parseOption(m, line, lineNo)
		return nil
	}
	loc := reqNameRe.FindStringSubmatchIndex(line)
	if loc != nil && strings.HasPrefix(strings.TrimSpace(line[loc[1]:]), "@") {
		// name @ url
		m.Requirements = append(m.Requirements, domain.Requirement{
			Name:       line[loc[2]:loc[3]],
			Constraint: strings.TrimSpace(line[loc[1]:]),
			Line:       lineNo,
			Direct:     true,
		})
		return nil
	}
	if isLocalPath(line) || strings.Contains(line, "://") {
		m.Requirements = append(m.Requirements, domain.Requirement{Name: directName(line), Line: lineNo, Direct: true})
		if isLocalPath(line) {
			m.LocalPaths = append(m.LocalPaths, stripExtras(line))
		}
		return nil
	}
	if loc == nil {
		return fmt.Errorf("manifest line %d: no package name in %q", lineNo, line)
	}
	m.Requirements = append(m.Requirements, domain.Requirement{
		Name:       line[loc[2]:loc[3]],
		Constraint: strings.TrimSpace(line[loc[3]:]),
		Line:       lineNo,
	})
	return nil
}

func parseOption(m *domain.Manifest, line string, lineNo int) {
	flag, value := splitOption(line)
	switch flag {
	case "-r", "--requirement":
		m.Requires = append(m.Requires, value)
	case "-c", "--constraint":
		m.Constraints = append(m.Constraints, value)
	case "-e", "--editable":
		m.Requirements = append(m.Requirements, domain.Requirement{Name: directName(value), Line: lineNo, Direct: true})
		if isLocalPath(value) {
			m.LocalPaths = append(m.LocalPaths, stripExtras(value))
		}
	}
}

// splitOption accepts "-r file", "-rfile", "--requirement file" and
// "--requirement=file".
func splitOption(line string) (string, string) {
	flag, value, found := strings.Cut(line, " ")
	if !found {
		flag, value, found = strings.Cut(line, "=")
	}
	if !found && len(line) > 2 && !strings.HasPrefix(line, "--") {
		flag, value = line[:2], line[2:]
	}
	return flag, strings.TrimSpace(value)
}

// directName is the #egg= project name of a VCS or URL requirement, or the
// reference itself.
func directName(ref string) string {
	if egg := eggRe.FindStringSubmatch(ref); egg != nil {
		return egg[1]
	}
	return ref
}

func isLocalPath(s string) bool {
	return strings.HasPrefix(s, ".") || strings.HasPrefix(s, "/")
}

func stripExtras(p string) string {
	if i := strings.Index(p, "["); i > 0 {
		return p[:i]
	}
	return p
}

// A '#' only starts a comment at line start or after whitespace.
func stripComment(line string) string {
	for i := 0; i < len(line); i++ {
		if line[i] == '#' && (i == 0 || line[i-1] == ' ' || line[i-1] == '\t') {
			line = line[:i]
			break
		}
	}
	return strings.TrimSpace(line)
}

// LoadManifest parses name from fsys and follows its -r and -c references.
// Requirements of -r files are merged in order; constraints files only add
// to Files. Files lists every referenced file and local path with the
// destination it needs next to the manifest in the image.
func LoadManifest(fsys fs.FS, name string) (domain.Manifest, error) {
	base := path.Dir(name)
	l := &manifestLoader{fsys: fsys, base: base, seen: map[string]bool{name: true}}
	if err := l.load(name, false); err != nil {
		return domain.Manifest{}, err
	}
	return l.out, nil
}

type manifestRef struct {
	ref        string
	constraint bool
}

type manifestLoader struct {
	fsys fs.FS
	base string
	seen map[string]bool
	out  domain.Manifest
}

func (l *manifestLoader) load(file string, constraintsOnly bool) error {
	f, err := l.fsys.Open(file)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrMissingManifest, file)
	}
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	m, err := ParseManifest(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("%s: %w", file, err)
	}

	if !constraintsOnly {
		l.out.Requirements = append(l.out.Requirements, m.Requirements...)
		l.out.LocalPaths = append(l.out.LocalPaths, m.LocalPaths...)
		for _, p := range m.LocalPaths {
			// installer resolves local paths from the working directory,
			// which is the source root once the tree is copied
			clean := path.Clean(p)
			if path.IsAbs(clean) || !fs.ValidPath(clean) {
				return fmt.Errorf("%w: local path %q in %s must be inside the source tree", ErrOutsideContext, p, file)
			}
			l.addFile(clean, "./"+clean)
		}
	}
	l.out.Options = append(l.out.Options, m.Options...)
	l.out.Requires = append(l.out.Requires, m.Requires...)
	l.out.Constraints = append(l.out.Constraints, m.Constraints...)

	refs := make([]manifestRef, 0, len(m.Requires)+len(m.Constraints))
	for _, r := range m.Requires {
		refs = append(refs, manifestRef{ref: r, constraint: constraintsOnly})
	}
	for _, c := range m.Constraints {
		refs = append(refs, manifestRef{ref: c, constraint: true})
	}

	for _, r := range refs {
		if strings.Contains(r.ref, "://") {
			continue // fetched by the installer
		}
		src := path.Join(path.Dir(file), r.ref)
		rel := src
		if l.base != "." {
			rel = strings.TrimPrefix(src, l.base+"/")
		}
		if path.IsAbs(r.ref) || !fs.ValidPath(src) || rel == src && l.base != "." {
			return fmt.Errorf("%w: %q in %s must be in the directory of %s", ErrOutsideContext, r.ref, file, l.base)
		}
		l.addFile(src, "./"+rel)
		if l.seen[src] {
			continue
		}
		l.seen[src] = true
		if err := l.load(src, r.constraint); err != nil {
			return err
		}
	}
	return nil
}

func (l *manifestLoader) addFile(src, dest string) {
	for _, f := range l.out.Files {
		if f.Src == src {
			return
		}
	}
	l.out.Files = append(l.out.Files, domain.ContextPath{Src: src, Dest: dest})
}
