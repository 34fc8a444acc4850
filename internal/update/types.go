package update

import (
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/adamancini/otaup/internal/release"
)

const (
	// MarkerName is the file holding a tree's version string.
	MarkerName = ".version"

	// StagingDirName is the staging tree's directory inside the module.
	StagingDirName = "next"

	// DefaultMainDir is the live tree's directory inside the module.
	DefaultMainDir = "main"
)

var (
	// ErrStagingExists is returned by Stage when a staging tree is already present.
	ErrStagingExists = errors.New("staging tree already exists")

	// ErrFetch wraps any listing or download failure during staging.
	ErrFetch = errors.New("fetch failed")

	// ErrCorruptStaging describes a staging tree without a readable marker.
	ErrCorruptStaging = errors.New("corrupt staging tree")

	// ErrUnsafePath is returned for remote entries that would land outside the staging tree.
	ErrUnsafePath = errors.New("unsafe remote path")

	// ErrLayoutConflict is returned when the live tree and the staging tree overlap.
	ErrLayoutConflict = errors.New("live and staging trees overlap")
)

// Source is the release host as seen by the updater. *release.Client implements it.
type Source interface {
	LatestVersion() (tag string, found bool, err error)
	ListDir(dir, version string) ([]release.Entry, error)
	Fetch(downloadURL string, w io.Writer) (int64, error)
}

// Layout locates the live and staging trees on local storage.
type Layout struct {
	Module  string // Directory holding both trees; empty means the working directory
	MainDir string // Live tree inside Module, also the remote directory to mirror
}

// NewLayout fills in the default main directory.
func NewLayout(module, mainDir string) Layout {
	mainDir = strings.Trim(filepath.ToSlash(mainDir), "/")
	if mainDir == "" {
		mainDir = DefaultMainDir
	}
	return Layout{Module: strings.TrimRight(module, "/"), MainDir: path.Clean(mainDir)}
}

// Check fails with ErrLayoutConflict when either tree contains the other,
// e.g. a main directory of "next" or ".". Promotion would then delete the
// tree it is about to install.
func (l Layout) Check() error {
	live := filepath.Clean(l.LivePath())
	staging := filepath.Clean(l.StagingPath())
	if within(live, staging) || within(staging, live) {
		return fmt.Errorf("%w: live %s, staging %s", ErrLayoutConflict, live, staging)
	}
	return nil
}

// within reports whether child is parent or lies below it.
func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	return err == nil && filepath.IsLocal(rel)
}

// ModuleDir returns the directory holding both trees.
func (l Layout) ModuleDir() string {
	if l.Module == "" {
		return "."
	}
	return l.Module
}

// LivePath returns <module>/<main_dir>.
func (l Layout) LivePath() string {
	return filepath.Join(l.ModuleDir(), filepath.FromSlash(l.MainDir))
}

// StagingPath returns <module>/next.
func (l Layout) StagingPath() string {
	return filepath.Join(l.ModuleDir(), StagingDirName)
}

// LiveMarker returns <module>/<main_dir>/.version.
func (l Layout) LiveMarker() string {
	return filepath.Join(l.LivePath(), MarkerName)
}

// StagingMarker returns <module>/next/.version.
func (l Layout) StagingMarker() string {
	return filepath.Join(l.StagingPath(), MarkerName)
}

// stagingRel maps a remote repository path below MainDir to a path relative
// to the staging tree.
func (l Layout) stagingRel(remotePath string) (string, error) {
	rel, ok := strings.CutPrefix(remotePath, l.MainDir+"/")
	if !ok || !filepath.IsLocal(filepath.FromSlash(rel)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, remotePath)
	}
	return filepath.FromSlash(rel), nil
}

// UpdateInfo describes the result of comparing the installed and latest versions.
type UpdateInfo struct {
	Available      bool   `json:"available" yaml:"available"`
	Found          bool   `json:"found" yaml:"found"`
	CurrentVersion string `json:"current_version,omitempty" yaml:"current_version,omitempty"`
	LatestVersion  string `json:"latest_version,omitempty" yaml:"latest_version,omitempty"`
}

func (i *UpdateInfo) String() string {
	current := i.CurrentVersion
	if current == "" {
		current = "(none)"
	}
	switch {
	case !i.Found:
		return fmt.Sprintf("Current version: %s\nNo release published", current)
	case i.Available:
		return fmt.Sprintf("Current version: %s\nLatest version: %s available", current, i.LatestVersion)
	default:
		return fmt.Sprintf("Current version: %s\nAlready running latest version", current)
	}
}

// State is the condition of the staging area.
type State int

const (
	StateNoStaging State = iota
	StateStagingComplete
	StateStagingCorrupt
)

func (s State) String() string {
	switch s {
	case StateNoStaging:
		return "no-staging"
	case StateStagingComplete:
		return "staging-complete"
	case StateStagingCorrupt:
		return "staging-corrupt"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Action is what an update step ended up doing.
type Action string

const (
	ActionNone      Action = "none"
	ActionNoRelease Action = "no-release"
	ActionUpToDate  Action = "up-to-date"
	ActionStaged    Action = "staged"
	ActionPending   Action = "pending"
	ActionApplied   Action = "applied"
	ActionDiscarded Action = "discarded"
)

// Result reports the outcome of a check, stage or apply step.
type Result struct {
	Action           Action `json:"action" yaml:"action"`
	InstalledVersion string `json:"installed_version,omitempty" yaml:"installed_version,omitempty"`
	Version          string `json:"version,omitempty" yaml:"version,omitempty"`
	Files            int    `json:"files,omitempty" yaml:"files,omitempty"`
	Bytes            int64  `json:"bytes,omitempty" yaml:"bytes,omitempty"`
	Reason           string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

func (r *Result) String() string {
	switch r.Action {
	case ActionNone:
		return "No pending update found"
	case ActionNoRelease:
		return "No release published"
	case ActionUpToDate:
		return fmt.Sprintf("Already running latest version (%s)", r.InstalledVersion)
	case ActionStaged:
		return fmt.Sprintf("Staged %s (%d files); restart to apply", r.Version, r.Files)
	case ActionPending:
		return fmt.Sprintf("Update %s already staged; restart to apply", r.Version)
	case ActionApplied:
		return fmt.Sprintf("Update applied (%s)", r.Version)
	case ActionDiscarded:
		return "Corrupt pending update discarded"
	}
	return string(r.Action)
}

// StageReport records the progress of a staging walk. On failure Pending
// lists the remote directories that were not finished.
type StageReport struct {
	Version string   `json:"version" yaml:"version"`
	Files   []string `json:"files" yaml:"files"`
	Dirs    []string `json:"dirs,omitempty" yaml:"dirs,omitempty"`
	Bytes   int64    `json:"bytes" yaml:"bytes"`
	Pending []string `json:"pending,omitempty" yaml:"pending,omitempty"`
}
