// Package pathutil confines file access to the results directory. Run ids
// from agents become file names, so every such path is checked after
// symlinks are resolved.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for paths that resolve outside the root.
var ErrOutsideRoot = errors.New("path is outside the results directory")

// RedactPath shortens a path to .../<parent>/<base> for messages that may
// reach an agent. "/home/user/sims/results/log.csv" becomes
// ".../results/log.csv".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}

// Within reports an error unless path, with symlinks resolved, is root or
// lies below it. Neither needs to exist yet.
func Within(root, path string) error {
	if root == "" || path == "" {
		return fmt.Errorf("path check failed: empty path")
	}
	if strings.ContainsRune(path, 0) || strings.ContainsRune(root, 0) {
		return fmt.Errorf("path check failed: path contains null byte")
	}

	base, err := resolve(root)
	if err != nil {
		return fmt.Errorf("path check failed: %w", err)
	}
	target, err := resolve(path)
	if err != nil {
		return fmt.Errorf("path check failed: %w", err)
	}

	rel, err := filepath.Rel(base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, RedactPath(target))
	}
	return nil
}

// Join joins elem onto root and checks the result with Within.
func Join(root string, elem ...string) (string, error) {
	path := filepath.Join(append([]string{root}, elem...)...)
	if err := Within(root, path); err != nil {
		return "", err
	}
	return path, nil
}

// resolve makes path absolute and resolves symlinks in its deepest existing
// ancestor, keeping any missing tail as is.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	var tail []string
	cur := abs
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("cannot resolve %s", RedactPath(abs))
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}
