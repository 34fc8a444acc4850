// Package release talks to a GitHub-style release host: it resolves the latest
// release tag and lists and fetches the files of a tagged tree.
package release

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/adamancini/otaup/internal/rawhttp"
)

// ErrUnexpectedStatus is returned when the release host answers with a non-2xx status.
var ErrUnexpectedStatus = errors.New("unexpected status")

// Entry types returned by the contents API.
const (
	EntryFile = "file"
	EntryDir  = "dir"
)

// Entry is one item of a remote directory listing.
type Entry struct {
	Type        string `json:"type"`
	Path        string `json:"path"`
	Name        string `json:"name"`
	DownloadURL string `json:"download_url"`
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Type == EntryDir }

// IsFile reports whether the entry is a regular file.
func (e Entry) IsFile() bool { return e.Type == EntryFile }

// latestRelease is the subset of the release object we read. TagName is
// left untyped so an absent or non-string field is not a decode error.
type latestRelease struct {
	TagName any `json:"tag_name"`
}

// Client queries one repository on the release host.
type Client struct {
	http    *rawhttp.Client
	apiRoot string
	token   string
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets a personal access token sent as "Authorization: token <pat>".
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient sets the transport used for every request.
func WithHTTPClient(h *rawhttp.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// NewClient creates a client for the repository at repoURL. GitHub web URLs
// are rewritten to the matching API root.
func NewClient(repoURL string, opts ...Option) *Client {
	c := &Client{
		http:    rawhttp.NewClient(),
		apiRoot: APIRoot(repoURL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIRoot converts "https://github.com/<owner>/<repo>" to
// "https://api.github.com/repos/<owner>/<repo>". Other URLs are returned
// without a trailing slash.
func APIRoot(repoURL string) string {
	root := strings.TrimRight(strings.TrimSpace(repoURL), "/")
	const web = "https://github.com/"
	if strings.HasPrefix(root, web) {
		return "https://api.github.com/repos/" + strings.TrimSuffix(strings.TrimPrefix(root, web), ".git")
	}
	return root
}

// APIRoot returns the repository API root this client talks to.
func (c *Client) APIRoot() string {
	return c.apiRoot
}

func (c *Client) headers() map[string]string {
	h := map[string]string{"Accept": "application/vnd.github+json"}
	if c.token != "" {
		h["Authorization"] = "token " + c.token
	}
	return h
}

// LatestVersion returns the tag of the latest published release. found is
// false when the host reports no release (no tag_name in the answer); that
// is not an error.
func (c *Client) LatestVersion() (tag string, found bool, err error) {
	err = c.http.Get(c.apiRoot+"/releases/latest", c.headers(), func(resp *rawhttp.Response) error {
		var rel latestRelease
		if err := resp.JSON(&rel); err != nil {
			return err
		}
		tag, found = rel.TagName.(string)
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to get latest release: %w", err)
	}
	return tag, found, nil
}

// ListDir lists the directory dir (relative to the repository root) at tag version.
func (c *Client) ListDir(dir, version string) ([]Entry, error) {
	listURL := fmt.Sprintf("%s/contents/%s?ref=refs/tags/%s",
		c.apiRoot, escapePath(dir), url.QueryEscape(version))

	var entries []Entry
	err := c.http.Get(listURL, c.headers(), func(resp *rawhttp.Response) error {
		if !resp.OK() {
			return fmt.Errorf("%w %d %s", ErrUnexpectedStatus, resp.StatusCode, resp.Reason)
		}
		return resp.JSON(&entries)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s at %s: %w", dir, version, err)
	}
	return entries, nil
}

// Fetch streams the file at downloadURL into w. Tag refs are stripped from
// the URL because raw-content hosts address tags directly.
func (c *Client) Fetch(downloadURL string, w io.Writer) (int64, error) {
	var n int64
	err := c.http.Get(RawURL(downloadURL), c.headers(), func(resp *rawhttp.Response) error {
		if !resp.OK() {
			return fmt.Errorf("%w %d %s", ErrUnexpectedStatus, resp.StatusCode, resp.Reason)
		}
		var err error
		n, err = resp.WriteTo(w)
		return err
	})
	if err != nil {
		return n, fmt.Errorf("failed to fetch %s: %w", downloadURL, err)
	}
	return n, nil
}

// RawURL removes the "refs/tags/" segment the contents API puts in download URLs.
func RawURL(downloadURL string) string {
	return strings.Replace(downloadURL, "refs/tags/", "", 1)
}

func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
