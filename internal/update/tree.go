package update

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// RemoveTree deletes root and everything below it. Directories are walked
// with an explicit stack so nesting depth does not grow the call stack;
// children are removed before their parent. A missing root is not an error.
func RemoveTree(fs afero.Fs, root string) error {
	info, err := lstat(fs, root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", root, err)
	}

	if !info.IsDir() {
		if err := fs.Remove(root); err != nil {
			return fmt.Errorf("failed to remove %s: %w", root, err)
		}
		return nil
	}

	type frame struct {
		path     string
		expanded bool
	}
	stack := []frame{{path: root}}

	for len(stack) > 0 {
		top := len(stack) - 1
		dir := stack[top].path

		if stack[top].expanded {
			// All children are gone.
			if err := fs.Remove(dir); err != nil {
				return fmt.Errorf("failed to remove directory %s: %w", dir, err)
			}
			stack = stack[:top]
			continue
		}
		stack[top].expanded = true

		entries, err := afero.ReadDir(fs, dir)
		if err != nil {
			return fmt.Errorf("failed to read directory %s: %w", dir, err)
		}
		for _, entry := range entries {
			child := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				stack = append(stack, frame{path: child})
				continue
			}
			if err := fs.Remove(child); err != nil {
				return fmt.Errorf("failed to remove %s: %w", child, err)
			}
		}
	}

	return nil
}

func lstat(fs afero.Fs, path string) (os.FileInfo, error) {
	if l, ok := fs.(afero.Lstater); ok {
		info, _, err := l.LstatIfPossible(path)
		return info, err
	}
	return fs.Stat(path)
}

// readMarker returns the version stored in the marker file at path. ok is
// false when the marker is missing or unreadable.
func readMarker(fs afero.Fs, path string) (version string, ok bool) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", false
	}
	return strings.TrimRight(string(data), "\r\n"), true
}

// writeMarker writes and syncs the marker file.
func writeMarker(fs afero.Fs, path, version string) error {
	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create version marker: %w", err)
	}

	if _, err := f.WriteString(version); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write version marker: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync version marker: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close version marker: %w", err)
	}
	return nil
}
