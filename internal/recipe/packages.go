package recipe

import (
	"bufio"
	"io"
	"sort"
	"strings"

	"github.com/melih/lighthouse-launch/internal/core/domain"
)

// ParseFreeze reads "name==version" lines as printed by pip freeze.
// Names are normalized so that diffs are not sensitive to spelling.
func ParseFreeze(r io.Reader) ([]domain.Package, error) {
	var pkgs []domain.Package
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, version, ok := strings.Cut(line, "==")
		if !ok {
			// "name @ file:///..." style entries
			name, version, _ = strings.Cut(line, " @ ")
		}
		pkgs = append(pkgs, domain.Package{
			Name:    NormalizeName(name),
			Version: strings.TrimSpace(version),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Name < pkgs[j].Name })
	return pkgs, nil
}

// NormalizeName lowercases and folds runs of "-_." into "-".
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var sb strings.Builder
	sep := false
	for _, c := range name {
		if c == '-' || c == '_' || c == '.' {
			sep = true
			continue
		}
		if sep && sb.Len() > 0 {
			sb.WriteByte('-')
		}
		sep = false
		sb.WriteRune(c)
	}
	return sb.String()
}

// DiffPackages lists packages added, removed or changed from a to b, by name.
// Two builds of the same manifest must produce an empty diff.
func DiffPackages(a, b []domain.Package) []domain.PackageChange {
	before := make(map[string]string, len(a))
	for _, p := range a {
		before[p.Name] = p.Version
	}
	after := make(map[string]string, len(b))
	for _, p := range b {
		after[p.Name] = p.Version
	}

	var changes []domain.PackageChange
	for name, v := range before {
		if w, ok := after[name]; !ok || w != v {
			changes = append(changes, domain.PackageChange{Name: name, Before: v, After: w})
		}
	}
	for name, w := range after {
		if _, ok := before[name]; !ok {
			changes = append(changes, domain.PackageChange{Name: name, After: w})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Name < changes[j].Name })
	return changes
}
