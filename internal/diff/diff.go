// Package diff computes the file-level difference between the live tree and
// a staged update.
package diff

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// Action represents what applying the update does to a file.
type Action string

const (
	ActionNone   Action = "none"   // Identical in both trees
	ActionAdd    Action = "add"    // Only in the staged tree
	ActionRemove Action = "remove" // Only in the live tree
	ActionUpdate Action = "update" // Content differs
)

// FileDiff is the change to one file, by path relative to the tree root.
type FileDiff struct {
	Path   string `json:"path" yaml:"path"`
	Action Action `json:"action" yaml:"action"`
	Size   int64  `json:"size" yaml:"size"`
}

// Result contains the complete diff between the live and staged trees.
type Result struct {
	FromVersion string     `json:"from_version,omitempty" yaml:"from_version,omitempty"`
	ToVersion   string     `json:"to_version,omitempty" yaml:"to_version,omitempty"`
	Files       []FileDiff `json:"files" yaml:"files"`
}

// Summary returns counts of actions needed.
func (r *Result) Summary() (add, update, remove int) {
	for _, f := range r.Files {
		switch f.Action {
		case ActionAdd:
			add++
		case ActionUpdate:
			update++
		case ActionRemove:
			remove++
		}
	}
	return
}

// Changes returns the files that differ, in path order.
func (r *Result) Changes() []FileDiff {
	var changes []FileDiff
	for _, f := range r.Files {
		if f.Action != ActionNone {
			changes = append(changes, f)
		}
	}
	return changes
}

// HasChanges reports whether applying the update changes any file.
func (r *Result) HasChanges() bool {
	return len(r.Changes()) > 0
}

// Headers implements output.Tabular.
func (r *Result) Headers() []string {
	return []string{"ACTION", "PATH", "SIZE"}
}

// Rows implements output.Tabular. Unchanged files are left out.
func (r *Result) Rows() [][]string {
	var rows [][]string
	for _, f := range r.Changes() {
		rows = append(rows, []string{string(f.Action), f.Path, fmt.Sprintf("%d", f.Size)})
	}
	return rows
}

// Compute compares the trees at live and staged. Files named in ignore (by
// base name, at the tree root) are skipped. A missing live tree counts as
// empty.
func Compute(fsys afero.Fs, live, staged string, ignore ...string) (*Result, error) {
	skip := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		skip[name] = true
	}

	liveFiles, err := listFiles(fsys, live, skip)
	if err != nil {
		return nil, err
	}
	stagedFiles, err := listFiles(fsys, staged, skip)
	if err != nil {
		return nil, err
	}

	result := &Result{Files: []FileDiff{}}
	for rel, size := range stagedFiles {
		fd := FileDiff{Path: rel, Size: size}
		if _, ok := liveFiles[rel]; !ok {
			fd.Action = ActionAdd
		} else {
			same, err := sameContent(fsys, filepath.Join(live, rel), filepath.Join(staged, rel))
			if err != nil {
				return nil, err
			}
			fd.Action = ActionUpdate
			if same {
				fd.Action = ActionNone
			}
		}
		result.Files = append(result.Files, fd)
	}
	for rel, size := range liveFiles {
		if _, ok := stagedFiles[rel]; !ok {
			result.Files = append(result.Files, FileDiff{Path: rel, Action: ActionRemove, Size: size})
		}
	}

	sort.Slice(result.Files, func(i, j int) bool {
		return result.Files[i].Path < result.Files[j].Path
	})
	return result, nil
}

// listFiles maps slash-separated relative paths to sizes for every regular
// file below root.
func listFiles(fsys afero.Fs, root string, skip map[string]bool) (map[string]int64, error) {
	files := map[string]int64{}
	if _, err := fsys.Stat(root); os.IsNotExist(err) {
		return files, nil
	}

	err := afero.Walk(fsys, root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if skip[rel] {
			return nil
		}
		files[rel] = info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return files, nil
}

func sameContent(fsys afero.Fs, a, b string) (bool, error) {
	left, err := afero.ReadFile(fsys, a)
	if err != nil {
		return false, err
	}
	right, err := afero.ReadFile(fsys, b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(left, right), nil
}
