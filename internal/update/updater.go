// Package update keeps a local code tree in sync with the latest release of a
// remote repository. New releases are mirrored into a staging tree next to
// the live one; the staging tree is promoted on the next start.
package update

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/adamancini/otaup/internal/version"
)

// Updater checks, stages and applies updates for one Layout.
type Updater struct {
	source Source
	layout Layout
	fs     afero.Fs
	policy version.Policy
	logger *log.Logger
}

// Option configures an Updater.
type Option func(*Updater)

// WithFs sets the filesystem holding the live and staging trees.
func WithFs(fs afero.Fs) Option {
	return func(u *Updater) {
		u.fs = fs
	}
}

// WithPolicy sets the version comparison used to decide whether to update.
func WithPolicy(p version.Policy) Option {
	return func(u *Updater) {
		u.policy = p
	}
}

// WithLogger sets the logger for progress messages.
func WithLogger(l *log.Logger) Option {
	return func(u *Updater) {
		u.logger = l
	}
}

// New creates an Updater reading releases from source.
func New(source Source, layout Layout, opts ...Option) *Updater {
	u := &Updater{
		source: source,
		layout: layout,
		fs:     afero.NewOsFs(),
		policy: version.Lexical,
		logger: log.NewWithOptions(io.Discard, log.Options{}),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Layout returns the tree locations this updater manages.
func (u *Updater) Layout() Layout {
	return u.layout
}

// InstalledVersion returns the live tree's version, or "" when its marker
// is missing or unreadable.
func (u *Updater) InstalledVersion() string {
	v, _ := readMarker(u.fs, u.layout.LiveMarker())
	return v
}

// Check compares the installed version against the latest release.
func (u *Updater) Check() (*UpdateInfo, error) {
	info := &UpdateInfo{CurrentVersion: u.InstalledVersion()}
	u.logger.Debug("Checking for updates", "installed", info.CurrentVersion)

	latest, found, err := u.source.LatestVersion()
	if err != nil {
		return nil, err
	}
	info.Found = found
	info.LatestVersion = latest
	info.Available = found && version.ShouldUpdate(u.policy, info.CurrentVersion, latest)

	if info.Available {
		u.logger.Info("New version available", "installed", info.CurrentVersion, "latest", latest)
	}
	return info, nil
}

// DownloadIfAvailable stages the latest release when it is newer than the
// installed one. A complete staged update that is still waiting to be
// applied is reported as ActionPending.
func (u *Updater) DownloadIfAvailable() (*Result, error) {
	info, err := u.Check()
	if err != nil {
		return nil, err
	}

	result := &Result{InstalledVersion: info.CurrentVersion}
	switch {
	case !info.Found:
		u.logger.Info("No release published")
		result.Action = ActionNoRelease
		return result, nil
	case !info.Available:
		u.logger.Info("Already running latest version", "version", info.CurrentVersion)
		result.Action = ActionUpToDate
		return result, nil
	}

	state, pending, err := u.Inspect()
	if err != nil {
		return nil, err
	}
	if state == StateStagingComplete {
		result.Action = ActionPending
		result.Version = pending
		return result, nil
	}

	report, err := u.Stage(info.LatestVersion)
	if err != nil {
		return nil, err
	}

	result.Action = ActionStaged
	result.Version = report.Version
	result.Files = len(report.Files)
	result.Bytes = report.Bytes
	return result, nil
}

// Inspect classifies the staging area. staged is the staged version when
// the state is StateStagingComplete.
func (u *Updater) Inspect() (state State, staged string, err error) {
	if err := u.layout.Check(); err != nil {
		return StateNoStaging, "", err
	}

	exists, err := afero.Exists(u.fs, u.layout.StagingPath())
	if err != nil {
		return StateNoStaging, "", fmt.Errorf("failed to inspect staging tree: %w", err)
	}
	if !exists {
		return StateNoStaging, "", nil
	}

	v, ok := readMarker(u.fs, u.layout.StagingMarker())
	if !ok {
		return StateStagingCorrupt, "", nil
	}
	return StateStagingComplete, v, nil
}

// ApplyPending promotes or discards the staging tree. It does no network I/O.
//
// A complete staging tree replaces the live tree. A staging tree without a
// readable marker is deleted and the live tree is left untouched; that case
// is reported through the Result, not as an error.
func (u *Updater) ApplyPending() (*Result, error) {
	state, pending, err := u.Inspect()
	if err != nil {
		return nil, err
	}

	switch state {
	case StateNoStaging:
		u.logger.Info("No pending update found")
		return &Result{Action: ActionNone, InstalledVersion: u.InstalledVersion()}, nil

	case StateStagingCorrupt:
		u.logger.Warn("Corrupt pending update found, discarding", "path", u.layout.StagingPath())
		if err := RemoveTree(u.fs, u.layout.StagingPath()); err != nil {
			return nil, fmt.Errorf("failed to discard staging tree: %w", err)
		}
		return &Result{
			Action:           ActionDiscarded,
			InstalledVersion: u.InstalledVersion(),
			Reason:           ErrCorruptStaging.Error(),
		}, nil
	}

	previous := u.InstalledVersion()
	u.logger.Info("Pending update found", "version", pending)
	if err := u.promote(); err != nil {
		return nil, err
	}
	u.logger.Info("Update applied", "version", pending)

	return &Result{Action: ActionApplied, InstalledVersion: previous, Version: pending}, nil
}

// promote removes the live tree and renames the staging tree into its place.
func (u *Updater) promote() error {
	live := u.layout.LivePath()
	if err := RemoveTree(u.fs, live); err != nil {
		return fmt.Errorf("failed to remove live tree: %w", err)
	}
	if err := u.fs.MkdirAll(filepath.Dir(live), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(live), err)
	}
	if err := u.fs.Rename(u.layout.StagingPath(), live); err != nil {
		return fmt.Errorf("failed to promote staging tree: %w", err)
	}
	return nil
}
