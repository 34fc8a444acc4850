package update

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// Stage mirrors the remote main directory at tag ver into the staging tree.
//
// The remote tree is walked depth-first with an explicit stack, one listing
// per directory, children in listing order. The marker file is written and
// synced only after every file is on disk, so a staging tree without a
// marker is always incomplete. Stage never removes an existing staging tree;
// it fails with ErrStagingExists instead.
//
// The returned report is non-nil even on failure.
func (u *Updater) Stage(ver string) (*StageReport, error) {
	report := &StageReport{Version: ver}
	staging := u.layout.StagingPath()

	if err := u.layout.Check(); err != nil {
		return report, err
	}
	if err := u.fs.MkdirAll(u.layout.ModuleDir(), 0o755); err != nil {
		return report, fmt.Errorf("failed to create module directory: %w", err)
	}
	if err := u.fs.Mkdir(staging, 0o755); err != nil {
		if os.IsExist(err) {
			return report, fmt.Errorf("%w: %s", ErrStagingExists, staging)
		}
		return report, fmt.Errorf("failed to create staging tree: %w", err)
	}

	u.logger.Info("Downloading update", "version", ver, "to", staging)

	stack := []string{u.layout.MainDir}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		subdirs, err := u.stageDir(report, dir, ver)
		if err != nil {
			report.Pending = append(slices.Clone(stack), dir)
			return report, err
		}

		// Reversed so the first listed directory is visited next.
		for i := len(subdirs) - 1; i >= 0; i-- {
			stack = append(stack, subdirs[i])
		}
	}

	if err := writeMarker(u.fs, u.layout.StagingMarker(), ver); err != nil {
		return report, err
	}

	u.logger.Info("Update downloaded", "version", ver, "files", len(report.Files), "bytes", report.Bytes)
	return report, nil
}

// stageDir downloads the files of one remote directory and creates its
// subdirectories. It returns the remote paths of those subdirectories.
func (u *Updater) stageDir(report *StageReport, dir, ver string) ([]string, error) {
	entries, err := u.source.ListDir(dir, ver)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	var subdirs []string
	for _, entry := range entries {
		if !entry.IsFile() && !entry.IsDir() {
			u.logger.Debug("Skipping entry", "path", entry.Path, "type", entry.Type)
			continue
		}

		rel, err := u.layout.stagingRel(entry.Path)
		if err != nil {
			return nil, err
		}
		local := filepath.Join(u.layout.StagingPath(), rel)

		if entry.IsDir() {
			if err := u.fs.Mkdir(local, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create %s: %w", local, err)
			}
			report.Dirs = append(report.Dirs, rel)
			subdirs = append(subdirs, entry.Path)
			continue
		}

		n, err := u.fetchFile(entry.DownloadURL, local)
		if err != nil {
			return nil, err
		}
		u.logger.Debug("Downloaded", "path", entry.Path, "bytes", n)
		report.Files = append(report.Files, rel)
		report.Bytes += n
	}
	return subdirs, nil
}

func (u *Updater) fetchFile(downloadURL, local string) (int64, error) {
	f, err := u.fs.OpenFile(local, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", local, err)
	}

	n, err := u.source.Fetch(downloadURL, f)
	if err != nil {
		_ = f.Close()
		return n, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	// The marker is synced last; the data it vouches for must reach disk first.
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return n, fmt.Errorf("failed to sync %s: %w", local, err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("failed to write %s: %w", local, err)
	}
	return n, nil
}
