package domain

import "strings"

// Requirement is one line of the dependency manifest.
type Requirement struct {
	Name string
	// Constraint is everything after the name, e.g. "==1.2.0" or ">=2; python_version<'3.12'".
	Constraint string
	Line       int
	// Direct is set for URL, VCS and local path requirements. The installer
	// resolves them itself, so they never count as pinned.
	Direct bool
}

// Pinned reports whether the requirement resolves to exactly one version.
func (r Requirement) Pinned() bool {
	if r.Direct {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(r.Constraint), "==") && !strings.Contains(r.Constraint, "*")
}

func (r Requirement) String() string {
	if r.Direct && r.Constraint == "" {
		return r.Name
	}
	if strings.HasPrefix(r.Constraint, "@") {
		return r.Name + " " + r.Constraint
	}
	return r.Name + r.Constraint
}

// ContextPath is a file or directory of the source tree that the dependency
// install reads, copied into the image ahead of the source tree.
type ContextPath struct {
	Src  string
	Dest string
}

// Manifest is the ordered dependency list read once at build time.
type Manifest struct {
	Requirements []Requirement
	// Options holds installer option lines such as --index-url, kept verbatim.
	Options []string
	// Requires and Constraints are the -r and -c references, as written.
	Requires    []string
	Constraints []string
	// LocalPaths are local directories or archives named as requirements.
	LocalPaths []string
	// Files is filled by recipe.LoadManifest with everything the install
	// reads besides the manifest itself.
	Files []ContextPath
}

// Unpinned returns the requirements that may resolve differently between builds.
func (m Manifest) Unpinned() []Requirement {
	var out []Requirement
	for _, r := range m.Requirements {
		if !r.Pinned() {
			out = append(out, r)
		}
	}
	return out
}
