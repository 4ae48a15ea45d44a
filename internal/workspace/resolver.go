// Package workspace maps client-supplied paths onto an allow-list of
// filesystem roots. Terminal working directories always resolve to something
// usable (falling back to the default root), while file API paths fail
// loudly when they escape the allow-list.
package workspace

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// Resolver validates requested paths against a fixed set of root directories.
type Resolver struct {
	roots       []string
	defaultRoot string
}

// NewResolver builds a resolver from the given roots. The first root is the
// default; it is created if missing. Roots that cannot be canonicalized are
// skipped with a warning, but the default root must be usable.
func NewResolver(roots ...string) (*Resolver, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("at least one workspace root is required")
	}

	if err := os.MkdirAll(roots[0], 0755); err != nil {
		return nil, fmt.Errorf("create default root %s: %w", roots[0], err)
	}

	r := &Resolver{}
	for i, root := range roots {
		canon, err := canonicalize(root)
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("canonicalize default root %s: %w", root, err)
			}
			log.Printf("[workspace] skipping unusable root %s: %v", root, err)
			continue
		}
		if i == 0 {
			r.defaultRoot = canon
		}
		r.roots = append(r.roots, canon)
	}
	return r, nil
}

// DefaultRoot returns the fallback working directory.
func (r *Resolver) DefaultRoot() string { return r.defaultRoot }

// Roots returns the canonicalized allow-listed roots.
func (r *Resolver) Roots() []string {
	out := make([]string, len(r.roots))
	copy(out, r.roots)
	return out
}

// Resolve maps a requested working directory to an absolute path inside an
// allow-listed root. It never fails: anything that cannot be validated (a
// path outside every root, a nonexistent path, a file instead of a
// directory) resolves to the default root, because a terminal must always
// have some working directory.
func (r *Resolver) Resolve(requested string) string {
	if requested == "" {
		return r.defaultRoot
	}

	candidate := requested
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(r.defaultRoot, candidate)
	}

	canon, err := canonicalize(candidate)
	if err != nil {
		log.Printf("[workspace] cwd %q rejected (%v), using default", requested, err)
		return r.defaultRoot
	}
	if !r.contains(canon) {
		log.Printf("[workspace] cwd %q escapes workspace roots, using default", requested)
		return r.defaultRoot
	}
	return canon
}

// Within resolves a file API path and errors if it escapes the allow-listed
// roots. Unlike Resolve it does not require the path to exist (writes create
// files), only that its parent directory does and sits inside a root.
func (r *Resolver) Within(requested string) (string, error) {
	if requested == "" {
		return "", fmt.Errorf("empty path")
	}

	candidate := requested
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(r.defaultRoot, candidate)
	}
	candidate = filepath.Clean(candidate)

	// Canonicalize the deepest existing ancestor so symlinks cannot smuggle
	// the path out of the workspace.
	dir, base := filepath.Split(candidate)
	canonDir, err := canonicalizeDir(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", requested, err)
	}
	resolved := filepath.Join(canonDir, base)

	if !r.contains(resolved) {
		return "", fmt.Errorf("path %s is outside the workspace", requested)
	}
	return resolved, nil
}

func (r *Resolver) contains(path string) bool {
	for _, root := range r.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// canonicalize makes path absolute, resolves symlinks, and requires it to be
// an existing directory.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(canon)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", path)
	}
	return canon, nil
}

// canonicalizeDir is canonicalize for a parent directory that must exist.
func canonicalizeDir(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	return canonicalize(filepath.Clean(dir))
}
