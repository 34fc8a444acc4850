package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adamancini/otaup/internal/config"
	"github.com/adamancini/otaup/internal/release"
)

// isolate points every config search location at empty temp directories.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(config.EnvConfig, "")
	t.Setenv("GITHUB_TOKEN", "")
	chdirTest(t, t.TempDir())
}

// releaseServer serves repository o/r with release v1.2 holding
// main/{a.py, sub/b.py}. Setting failList makes directory listings fail.
type releaseServer struct {
	*httptest.Server
	failList bool
}

func newReleaseServer(t *testing.T) *releaseServer {
	t.Helper()
	files := map[string]string{
		"main/a.py":     "print('a')\n",
		"main/sub/b.py": "print('b')\n",
	}

	rs := &releaseServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/releases/latest", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tag_name":"v1.2"}`))
	})
	mux.HandleFunc("/repos/o/r/contents/", func(w http.ResponseWriter, r *http.Request) {
		if rs.failList {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		listing := map[string][]release.Entry{
			"main": {
				{Type: release.EntryFile, Path: "main/a.py", Name: "a.py"},
				{Type: release.EntryDir, Path: "main/sub", Name: "sub"},
			},
			"main/sub": {
				{Type: release.EntryFile, Path: "main/sub/b.py", Name: "b.py"},
			},
		}
		entries, ok := listing[strings.TrimPrefix(r.URL.Path, "/repos/o/r/contents/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		for i := range entries {
			if entries[i].IsFile() {
				entries[i].DownloadURL = rs.URL + "/raw/" + entries[i].Path
			}
		}
		_ = json.NewEncoder(w).Encode(entries)
	})
	mux.HandleFunc("/raw/", func(w http.ResponseWriter, r *http.Request) {
		content, ok := files[strings.TrimPrefix(r.URL.Path, "/raw/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(content))
	})

	rs.Server = httptest.NewServer(mux)
	t.Cleanup(rs.Close)
	return rs
}

func (rs *releaseServer) repo() string {
	return rs.URL + "/repos/o/r"
}

// testSession builds a session for a module directory holding a live tree
// at version installed ("" for no live tree).
func testSession(t *testing.T, rs *releaseServer, format, installed string) (*session, *bytes.Buffer, string) {
	t.Helper()
	isolate(t)

	module := t.TempDir()
	if installed != "" {
		writeFile(t, filepath.Join(module, "main", ".version"), installed)
		writeFile(t, filepath.Join(module, "main", "a.py"), "print('old')\n")
	}

	var stdout, stderr bytes.Buffer
	s, err := newSession(&stdout, &stderr, globalOptions{
		outputFormat: format,
		repo:         rs.repo(),
		module:       module,
	})
	if err != nil {
		t.Fatalf("newSession() error = %v", err)
	}
	return s, &stdout, module
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
