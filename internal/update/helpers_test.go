package update

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/adamancini/otaup/internal/release"
)

// fakeSource serves a fixed remote tree. Directory listings are keyed by
// remote path, file contents by download URL.
type fakeSource struct {
	latest    string
	found     bool
	latestErr error

	dirs  map[string][]release.Entry
	files map[string]string

	failURL string
	onFetch func(url string)
	listed  []string
}

func (f *fakeSource) LatestVersion() (string, bool, error) {
	return f.latest, f.found, f.latestErr
}

func (f *fakeSource) ListDir(dir, version string) ([]release.Entry, error) {
	f.listed = append(f.listed, dir)
	entries, ok := f.dirs[dir]
	if !ok {
		return nil, fmt.Errorf("no listing for %s at %s", dir, version)
	}
	return entries, nil
}

func (f *fakeSource) Fetch(url string, w io.Writer) (int64, error) {
	if f.onFetch != nil {
		f.onFetch(url)
	}
	if url == f.failURL {
		return 0, errors.New("connection reset")
	}
	content, ok := f.files[url]
	if !ok {
		return 0, fmt.Errorf("no file at %s", url)
	}
	n, err := io.Copy(w, strings.NewReader(content))
	return n, err
}

func file(path string) release.Entry {
	name := path[strings.LastIndex(path, "/")+1:]
	return release.Entry{Type: release.EntryFile, Path: path, Name: name, DownloadURL: "raw://" + path}
}

func dir(path string) release.Entry {
	name := path[strings.LastIndex(path, "/")+1:]
	return release.Entry{Type: release.EntryDir, Path: path, Name: name}
}

// sampleSource publishes v1.2 with main/{a.py, sub/b.py}.
func sampleSource() *fakeSource {
	return &fakeSource{
		latest: "v1.2",
		found:  true,
		dirs: map[string][]release.Entry{
			"main":     {file("main/a.py"), dir("main/sub")},
			"main/sub": {file("main/sub/b.py")},
		},
		files: map[string]string{
			"raw://main/a.py":     "print('a')\n",
			"raw://main/sub/b.py": "print('b')\n",
		},
	}
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for path, content := range files {
		if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", path, err)
		}
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
}

func readFile(t *testing.T, fs afero.Fs, path string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// snapshot returns every regular file below root keyed by its path.
func snapshot(t *testing.T, fs afero.Fs, root string) map[string]string {
	t.Helper()
	files := map[string]string{}
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files[path] = readFile(t, fs, path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk %s: %v", root, err)
	}
	return files
}
