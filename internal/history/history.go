// Package history journals the outcome of every update step so a device's
// update record can be inspected after the fact.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/adamancini/otaup/internal/update"
)

// Latest selects the most recent entry in Get.
const Latest = "latest"

// ErrNotFound is returned when an entry does not exist.
var ErrNotFound = errors.New("history entry not found")

// Entry is one journaled update step.
type Entry struct {
	ID               string        `json:"id" yaml:"id"`
	CreatedAt        time.Time     `json:"created_at" yaml:"created_at"`
	Command          string        `json:"command" yaml:"command"`
	Action           update.Action `json:"action,omitempty" yaml:"action,omitempty"`
	InstalledVersion string        `json:"installed_version,omitempty" yaml:"installed_version,omitempty"`
	Version          string        `json:"version,omitempty" yaml:"version,omitempty"`
	Files            int           `json:"files,omitempty" yaml:"files,omitempty"`
	Bytes            int64         `json:"bytes,omitempty" yaml:"bytes,omitempty"`
	Reason           string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Error            string        `json:"error,omitempty" yaml:"error,omitempty"`
	OtaupVersion     string        `json:"otaup_version" yaml:"otaup_version"`
}

// Failed reports whether the step ended in an error.
func (e *Entry) Failed() bool {
	return e.Error != ""
}

func (e *Entry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ID:        %s\n", e.ID)
	fmt.Fprintf(&b, "Created:   %s\n", e.CreatedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(&b, "Command:   %s\n", e.Command)
	if e.Action != "" {
		fmt.Fprintf(&b, "Action:    %s\n", e.Action)
	}
	if e.InstalledVersion != "" {
		fmt.Fprintf(&b, "From:      %s\n", e.InstalledVersion)
	}
	if e.Version != "" {
		fmt.Fprintf(&b, "To:        %s\n", e.Version)
	}
	if e.Files > 0 {
		fmt.Fprintf(&b, "Files:     %d (%d bytes)\n", e.Files, e.Bytes)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, "Reason:    %s\n", e.Reason)
	}
	if e.Failed() {
		fmt.Fprintf(&b, "Error:     %s\n", e.Error)
	}
	fmt.Fprintf(&b, "otaup:     %s", e.OtaupVersion)
	return b.String()
}

// Entries is a list of entries, newest first.
type Entries []Entry

// Headers implements output.Tabular.
func (Entries) Headers() []string {
	return []string{"ID", "COMMAND", "ACTION", "FROM", "TO", "RESULT"}
}

// Rows implements output.Tabular.
func (es Entries) Rows() [][]string {
	rows := make([][]string, 0, len(es))
	for _, e := range es {
		result := "ok"
		switch {
		case e.Failed():
			result = e.Error
		case e.Reason != "":
			result = e.Reason
		}
		rows = append(rows, []string{e.ID, e.Command, string(e.Action), e.InstalledVersion, e.Version, result})
	}
	return rows
}

// Journal stores entries as one JSON file each in a directory.
type Journal struct {
	fs           afero.Fs
	dir          string
	otaupVersion string
	now          func() time.Time
}

// NewJournal creates a journal in dir on fs.
func NewJournal(fs afero.Fs, dir, otaupVersion string) *Journal {
	return &Journal{
		fs:           fs,
		dir:          dir,
		otaupVersion: otaupVersion,
		now:          time.Now,
	}
}

// Dir returns the journal directory.
func (j *Journal) Dir() string {
	return j.dir
}

// Record journals the outcome of command. Either result or stepErr may be nil.
func (j *Journal) Record(command string, result *update.Result, stepErr error) (*Entry, error) {
	if err := j.fs.MkdirAll(j.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	now := j.now().UTC()
	entry := &Entry{
		CreatedAt:    now,
		Command:      command,
		OtaupVersion: j.otaupVersion,
	}
	if result != nil {
		entry.Action = result.Action
		entry.InstalledVersion = result.InstalledVersion
		entry.Version = result.Version
		entry.Files = result.Files
		entry.Bytes = result.Bytes
		entry.Reason = result.Reason
	}
	if stepErr != nil {
		entry.Error = stepErr.Error()
	}

	// IDs sort by time; a suffix separates entries created in the same instant.
	base := now.Format("20060102-150405.000000000")
	for n := 0; ; n++ {
		entry.ID = base
		if n > 0 {
			entry.ID = base + "-" + strconv.Itoa(n)
		}

		data, err := json.MarshalIndent(entry, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal history entry: %w", err)
		}

		f, err := j.fs.OpenFile(j.path(entry.ID), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create history entry: %w", err)
		}
		_, err = f.Write(data)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return nil, fmt.Errorf("failed to write history entry: %w", err)
		}
		return entry, nil
	}
}

// List returns all entries sorted by creation time, newest first.
// Unreadable files are skipped.
func (j *Journal) List() (Entries, error) {
	infos, err := afero.ReadDir(j.fs, j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Entries{}, nil
		}
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	entries := Entries{}
	for _, info := range infos {
		if info.IsDir() || filepath.Ext(info.Name()) != ".json" {
			continue
		}
		entry, err := j.load(strings.TrimSuffix(info.Name(), ".json"))
		if err != nil {
			continue
		}
		entries = append(entries, *entry)
	}

	sort.SliceStable(entries, func(a, b int) bool {
		if entries[a].CreatedAt.Equal(entries[b].CreatedAt) {
			return entries[a].ID > entries[b].ID
		}
		return entries[a].CreatedAt.After(entries[b].CreatedAt)
	})

	return entries, nil
}

// Get retrieves an entry by ID. Latest selects the most recent entry.
func (j *Journal) Get(id string) (*Entry, error) {
	if id == Latest {
		entries, err := j.List()
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, fmt.Errorf("%w: journal is empty", ErrNotFound)
		}
		return &entries[0], nil
	}
	return j.load(id)
}

// Delete removes an entry by ID.
func (j *Journal) Delete(id string) error {
	path := j.path(id)
	if ok, _ := afero.Exists(j.fs, path); !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := j.fs.Remove(path); err != nil {
		return fmt.Errorf("failed to delete history entry: %w", err)
	}
	return nil
}

func (j *Journal) path(id string) string {
	return filepath.Join(j.dir, filepath.Base(id)+".json")
}

func (j *Journal) load(id string) (*Entry, error) {
	data, err := afero.ReadFile(j.fs, j.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read history entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to parse history entry %s: %w", id, err)
	}
	return &entry, nil
}
