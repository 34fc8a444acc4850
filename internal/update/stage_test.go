package update

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/adamancini/otaup/internal/release"
)

func TestStage(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := sampleSource()
	layout := NewLayout("/app", "main")
	u := New(src, layout, WithFs(fs), WithLogger(quietLogger()))

	src.onFetch = func(string) {
		if ok, _ := afero.Exists(fs, layout.StagingMarker()); ok {
			t.Error("marker written before all files were fetched")
		}
	}

	report, err := u.Stage("v1.2")
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}

	want := map[string]string{
		"/app/next/a.py":     "print('a')\n",
		"/app/next/sub/b.py": "print('b')\n",
		"/app/next/.version": "v1.2",
	}
	if diff := cmp.Diff(want, snapshot(t, fs, "/app/next")); diff != "" {
		t.Errorf("staging tree mismatch (-want +got):\n%s", diff)
	}

	wantFiles := []string{"a.py", filepath.Join("sub", "b.py")}
	if diff := cmp.Diff(wantFiles, report.Files); diff != "" {
		t.Errorf("report.Files mismatch (-want +got):\n%s", diff)
	}
	if report.Bytes != int64(len("print('a')\n")+len("print('b')\n")) {
		t.Errorf("report.Bytes = %d", report.Bytes)
	}
	if len(report.Pending) != 0 {
		t.Errorf("report.Pending = %v, want empty", report.Pending)
	}
}

func TestStageDepthFirstListingOrder(t *testing.T) {
	src := &fakeSource{
		dirs: map[string][]release.Entry{
			"main":         {dir("main/b"), file("main/x.py"), dir("main/a")},
			"main/b":       {dir("main/b/inner")},
			"main/b/inner": {file("main/b/inner/deep.py")},
			"main/a":       {},
		},
		files: map[string]string{
			"raw://main/x.py":            "x",
			"raw://main/b/inner/deep.py": "deep",
		},
	}
	fs := afero.NewMemMapFs()
	u := New(src, NewLayout("/app", "main"), WithFs(fs), WithLogger(quietLogger()))

	if _, err := u.Stage("v2"); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}

	want := []string{"main", "main/b", "main/b/inner", "main/a"}
	if diff := cmp.Diff(want, src.listed); diff != "" {
		t.Errorf("listing order mismatch (-want +got):\n%s", diff)
	}
	if ok, _ := afero.DirExists(fs, "/app/next/a"); !ok {
		t.Error("empty remote directory was not created")
	}
}

func TestStageFetchFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	src := sampleSource()
	src.failURL = "raw://main/sub/b.py"
	layout := NewLayout("/app", "main")
	u := New(src, layout, WithFs(fs), WithLogger(quietLogger()))

	report, err := u.Stage("v1.2")
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("Stage() error = %v, want ErrFetch", err)
	}
	if report == nil {
		t.Fatal("report should be returned on failure")
	}
	if diff := cmp.Diff([]string{"main/sub"}, report.Pending); diff != "" {
		t.Errorf("report.Pending mismatch (-want +got):\n%s", diff)
	}
	if ok, _ := afero.Exists(fs, layout.StagingMarker()); ok {
		t.Error("marker must not exist after a failed download")
	}

	state, _, err := u.Inspect()
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if state != StateStagingCorrupt {
		t.Errorf("Inspect() = %v, want %v", state, StateStagingCorrupt)
	}
}

// syncFailFs fails Sync on every file except the version marker.
type syncFailFs struct {
	afero.Fs
}

func (s syncFailFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f, err := s.Fs.OpenFile(name, flag, perm)
	if err != nil || filepath.Base(name) == MarkerName {
		return f, err
	}
	return syncFailFile{f}, nil
}

type syncFailFile struct {
	afero.File
}

func (syncFailFile) Sync() error {
	return errors.New("input/output error")
}

func TestStageSyncFailure(t *testing.T) {
	fs := syncFailFs{afero.NewMemMapFs()}
	layout := NewLayout("/app", "main")
	u := New(sampleSource(), layout, WithFs(fs), WithLogger(quietLogger()))

	_, err := u.Stage("v1.2")
	if err == nil || !strings.Contains(err.Error(), "failed to sync") {
		t.Fatalf("Stage() error = %v, want sync failure", err)
	}
	if ok, _ := afero.Exists(fs, layout.StagingMarker()); ok {
		t.Error("marker must not be written when file data was not synced")
	}
}

func TestStageListingFailure(t *testing.T) {
	src := sampleSource()
	delete(src.dirs, "main/sub")
	u := New(src, NewLayout("/app", "main"), WithFs(afero.NewMemMapFs()), WithLogger(quietLogger()))

	_, err := u.Stage("v1.2")
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("Stage() error = %v, want ErrFetch", err)
	}
}

func TestStageExistingStagingTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/app/next/old.py": "old"})
	src := sampleSource()
	u := New(src, NewLayout("/app", "main"), WithFs(fs), WithLogger(quietLogger()))

	_, err := u.Stage("v1.2")
	if !errors.Is(err, ErrStagingExists) {
		t.Fatalf("Stage() error = %v, want ErrStagingExists", err)
	}
	if len(src.listed) != 0 {
		t.Error("no listing should happen when staging exists")
	}
	if got := readFile(t, fs, "/app/next/old.py"); got != "old" {
		t.Errorf("existing staging content changed: %q", got)
	}
}

func TestStageRejectsPathsOutsideMainDir(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{name: "parent traversal", path: "main/../evil.py"},
		{name: "other directory", path: "lib/x.py"},
		{name: "prefix lookalike", path: "mainx/y.py"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{
				dirs:  map[string][]release.Entry{"main": {file(tt.path)}},
				files: map[string]string{"raw://" + tt.path: "x"},
			}
			u := New(src, NewLayout("/app", "main"), WithFs(afero.NewMemMapFs()), WithLogger(quietLogger()))

			_, err := u.Stage("v1")
			if !errors.Is(err, ErrUnsafePath) {
				t.Fatalf("Stage() error = %v, want ErrUnsafePath", err)
			}
		})
	}
}

func TestStageSkipsUnknownEntryTypes(t *testing.T) {
	src := sampleSource()
	src.dirs["main"] = append(src.dirs["main"], release.Entry{Type: "submodule", Path: "main/vendor", Name: "vendor"})
	fs := afero.NewMemMapFs()
	u := New(src, NewLayout("/app", "main"), WithFs(fs), WithLogger(quietLogger()))

	if _, err := u.Stage("v1.2"); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if ok, _ := afero.Exists(fs, "/app/next/vendor"); ok {
		t.Error("submodule entry should be skipped")
	}
}

func TestStageNestedMainDir(t *testing.T) {
	src := &fakeSource{
		dirs:  map[string][]release.Entry{"src/app": {file("src/app/boot.py")}},
		files: map[string]string{"raw://src/app/boot.py": "boot"},
	}
	fs := afero.NewMemMapFs()
	u := New(src, NewLayout("/dev", "src/app"), WithFs(fs), WithLogger(quietLogger()))

	if _, err := u.Stage("v3"); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if got := readFile(t, fs, "/dev/next/boot.py"); got != "boot" {
		t.Errorf("boot.py = %q", got)
	}
}
