package release

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/adamancini/otaup/internal/rawhttp"
)

func TestAPIRoot(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "github web url",
			url:  "https://github.com/bensherlock/app",
			want: "https://api.github.com/repos/bensherlock/app",
		},
		{
			name: "trailing slash",
			url:  "https://github.com/bensherlock/app/",
			want: "https://api.github.com/repos/bensherlock/app",
		},
		{
			name: "git suffix",
			url:  "https://github.com/bensherlock/app.git",
			want: "https://api.github.com/repos/bensherlock/app",
		},
		{
			name: "api url kept",
			url:  "https://api.github.com/repos/o/r",
			want: "https://api.github.com/repos/o/r",
		},
		{
			name: "self hosted",
			url:  "http://10.0.0.2:8080/repos/o/r/",
			want: "http://10.0.0.2:8080/repos/o/r",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := APIRoot(tt.url); got != tt.want {
				t.Errorf("APIRoot(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestRawURL(t *testing.T) {
	got := RawURL("https://raw.githubusercontent.com/o/r/refs/tags/v1.2/main/a.py")
	want := "https://raw.githubusercontent.com/o/r/v1.2/main/a.py"
	if got != want {
		t.Errorf("RawURL() = %q, want %q", got, want)
	}
}

func TestLatestVersion(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantTag   string
		wantFound bool
	}{
		{
			name:      "published release",
			status:    http.StatusOK,
			body:      `{"tag_name":"v1.2","name":"Release 1.2"}`,
			wantTag:   "v1.2",
			wantFound: true,
		},
		{
			name:      "tag kept verbatim",
			status:    http.StatusOK,
			body:      `{"tag_name":" weird/Tag "}`,
			wantTag:   " weird/Tag ",
			wantFound: true,
		},
		{
			name:   "no releases",
			status: http.StatusNotFound,
			body:   `{"message":"Not Found"}`,
		},
		{
			name:   "empty object",
			status: http.StatusOK,
			body:   `{}`,
		},
		{
			name:   "non-string tag",
			status: http.StatusOK,
			body:   `{"tag_name":12}`,
		},
		{
			name:   "null tag",
			status: http.StatusOK,
			body:   `{"tag_name":null}`,
		},
		{
			name:      "empty tag",
			status:    http.StatusOK,
			body:      `{"tag_name":""}`,
			wantTag:   "",
			wantFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth, gotPath string
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotAuth = r.Header.Get("Authorization")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL+"/repos/o/r", WithToken("pat123"))
			tag, found, err := client.LatestVersion()
			if err != nil {
				t.Fatalf("LatestVersion() error = %v", err)
			}
			if tag != tt.wantTag || found != tt.wantFound {
				t.Errorf("LatestVersion() = (%q, %v), want (%q, %v)", tag, found, tt.wantTag, tt.wantFound)
			}
			if gotPath != "/repos/o/r/releases/latest" {
				t.Errorf("path = %q", gotPath)
			}
			if gotAuth != "token pat123" {
				t.Errorf("Authorization = %q, want %q", gotAuth, "token pat123")
			}
		})
	}
}

func TestLatestVersionMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	_, _, err := NewClient(server.URL).LatestVersion()
	if err == nil {
		t.Fatal("expected error for malformed body")
	}
}

func TestLatestVersionRedirect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusMovedPermanently)
	}))
	defer server.Close()

	_, _, err := NewClient(server.URL).LatestVersion()
	if !errors.Is(err, rawhttp.ErrUnsupportedRedirect) {
		t.Fatalf("error = %v, want ErrUnsupportedRedirect", err)
	}
}

func TestListDir(t *testing.T) {
	var gotRef, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRef = r.URL.Query().Get("ref")
		_, _ = w.Write([]byte(`[
			{"type":"file","path":"main/a.py","name":"a.py","download_url":"http://raw/a.py"},
			{"type":"dir","path":"main/sub","name":"sub","download_url":null}
		]`))
	}))
	defer server.Close()

	entries, err := NewClient(server.URL).ListDir("main", "v1.2")
	if err != nil {
		t.Fatalf("ListDir() error = %v", err)
	}

	want := []Entry{
		{Type: EntryFile, Path: "main/a.py", Name: "a.py", DownloadURL: "http://raw/a.py"},
		{Type: EntryDir, Path: "main/sub", Name: "sub"},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("ListDir() mismatch (-want +got):\n%s", diff)
	}
	if gotPath != "/contents/main" {
		t.Errorf("path = %q, want /contents/main", gotPath)
	}
	if gotRef != "refs/tags/v1.2" {
		t.Errorf("ref = %q, want refs/tags/v1.2", gotRef)
	}
	if !entries[0].IsFile() || !entries[1].IsDir() {
		t.Error("entry type helpers disagree with Type")
	}
}

func TestListDirHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewClient(server.URL).ListDir("main", "v1")
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("error = %v, want ErrUnexpectedStatus", err)
	}
}

func TestFetch(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte("print('hello')\n"))
	}))
	defer server.Close()

	var buf bytes.Buffer
	n, err := NewClient(server.URL).Fetch(server.URL+"/o/r/refs/tags/v1.2/main/a.py", &buf)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if buf.String() != "print('hello')\n" {
		t.Errorf("content = %q", buf.String())
	}
	if n != int64(buf.Len()) {
		t.Errorf("n = %d, want %d", n, buf.Len())
	}
	if gotPath != "/o/r/v1.2/main/a.py" {
		t.Errorf("path = %q, want tag ref stripped", gotPath)
	}
}

func TestFetchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	var buf bytes.Buffer
	_, err := NewClient(server.URL).Fetch(server.URL+"/missing", &buf)
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Fatalf("error = %v, want ErrUnexpectedStatus", err)
	}
	if buf.Len() != 0 {
		t.Errorf("no content should be written on error, got %d bytes", buf.Len())
	}
}

func TestFetchBodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 64))
	}))
	defer server.Close()

	client := NewClient(server.URL, WithHTTPClient(rawhttp.NewClient(rawhttp.WithMaxBodyBytes(16))))
	var buf bytes.Buffer
	_, err := client.Fetch(server.URL+"/big", &buf)
	if !errors.Is(err, rawhttp.ErrBodyTooLarge) {
		t.Fatalf("error = %v, want ErrBodyTooLarge", err)
	}
}
