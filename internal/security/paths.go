// Package security checks file paths taken from the command line before
// anything is written to them.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CheckWithin returns an error unless path lies inside dir once symlinks
// are resolved. Paths that do not exist yet are resolved through their
// deepest existing ancestor, so a link in a parent cannot escape dir.
func CheckWithin(path, dir string) error {
	canonical, err := resolve(path)
	if err != nil {
		return err
	}
	base, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if base, err = filepath.EvalSymlinks(base); err != nil {
		return fmt.Errorf("resolve %s: %w", dir, err)
	}

	rel, err := filepath.Rel(base, canonical)
	if err != nil {
		return fmt.Errorf("%s is outside %s: %w", path, dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%s escapes %s", path, dir)
	}
	return nil
}

func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if r, err := filepath.EvalSymlinks(abs); err == nil {
		return r, nil
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if r, err := filepath.EvalSymlinks(dir); err == nil {
			rest, _ := filepath.Rel(dir, abs)
			return filepath.Join(r, rest), nil
		}
		if dir == filepath.Dir(dir) {
			return abs, nil
		}
	}
}

// CheckOutputPath accepts paths below the working directory, the system
// temp directory or any of extra.
func CheckOutputPath(path string, extra ...string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	allowed := append([]string{cwd, os.TempDir()}, extra...)
	for _, dir := range allowed {
		if CheckWithin(path, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("output path %s must be below one of %v", path, allowed)
}
