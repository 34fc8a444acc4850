// Package rawhttp is a minimal HTTP/1.0 client that speaks directly over a
// TCP or TLS socket.
//
// It supports only what a release host needs: one request per
// connection, identity-encoded bodies and no redirects. Chunked responses and
// 3xx statuses are rejected instead of followed.
package rawhttp

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTimeout is applied to every socket read and write.
	DefaultTimeout = 5 * time.Second

	// DefaultMaxBodyBytes bounds a single response body (1 MiB).
	DefaultMaxBodyBytes = 1 << 20

	// DefaultUserAgent identifies the client to the release host.
	DefaultUserAgent = "otaup"

	// maxHeaderLines guards against endless header sections.
	maxHeaderLines = 128
)

var (
	// ErrUnsupportedProtocol is returned for URL schemes other than http and https.
	ErrUnsupportedProtocol = errors.New("unsupported protocol")

	// ErrResolve is returned when the host name cannot be resolved.
	ErrResolve = errors.New("host resolution failed")

	// ErrConnect is returned when the TCP (or TLS) connection cannot be established.
	ErrConnect = errors.New("connect failed")

	// ErrTimeout is returned when a socket operation exceeds the I/O timeout.
	ErrTimeout = errors.New("i/o timeout")

	// ErrUnsupportedEncoding is returned when the response uses chunked transfer-encoding.
	ErrUnsupportedEncoding = errors.New("unsupported transfer-encoding")

	// ErrUnsupportedRedirect is returned for any 3xx response status.
	ErrUnsupportedRedirect = errors.New("redirects not supported")

	// ErrMalformedResponse is returned when the status line or headers cannot be parsed.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrBodyTooLarge is returned when a body exceeds the configured bound.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrInvalidHeader is returned before dialing when a request line or
	// header would break the framing, e.g. a value containing CR or LF.
	ErrInvalidHeader = errors.New("invalid request header")
)

// RedirectError describes a rejected 3xx response.
// It wraps ErrUnsupportedRedirect so callers can use errors.Is.
type RedirectError struct {
	StatusCode int
	Location   string
}

func (e *RedirectError) Error() string {
	if e.Location == "" {
		return fmt.Sprintf("redirects not supported (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("redirects not supported (status %d to %s)", e.StatusCode, e.Location)
}

// Unwrap returns ErrUnsupportedRedirect.
func (e *RedirectError) Unwrap() error { return ErrUnsupportedRedirect }

// Request is a single HTTP/1.0 request.
type Request struct {
	Method string
	URL    string
	Header map[string]string

	// JSON, when non-nil, is encoded as the body with an application/json content type.
	JSON any

	// Body is sent verbatim. It must be empty when JSON is set.
	Body []byte
}

// Client opens one socket per request. The zero value is not usable; use NewClient.
type Client struct {
	timeout      time.Duration
	maxBodyBytes int64
	userAgent    string
	tlsConfig    *tls.Config
	resolver     *net.Resolver
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-operation socket timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxBodyBytes bounds the size of any response body.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithTLSConfig sets the base TLS configuration. ServerName is filled in per request.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *Client) {
		c.tlsConfig = cfg
	}
}

// NewClient creates a Client with a 5s timeout and a 1 MiB body bound.
func NewClient(opts ...Option) *Client {
	c := &Client{
		timeout:      DefaultTimeout,
		maxBodyBytes: DefaultMaxBodyBytes,
		userAgent:    DefaultUserAgent,
		resolver:     net.DefaultResolver,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the socket timeout in use.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Do opens the request, passes the response to fn and always closes it,
// whatever fn returns.
func (c *Client) Do(req *Request, fn func(*Response) error) error {
	resp, err := c.Open(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Close() }()

	return fn(resp)
}

// Get is shorthand for Do with a GET request.
func (c *Client) Get(rawURL string, header map[string]string, fn func(*Response) error) error {
	return c.Do(&Request{Method: http.MethodGet, URL: rawURL, Header: header}, fn)
}

// Open sends req and parses the status line and headers. On success the
// caller owns the returned Response and must close it. On failure the socket
// has already been closed.
func (c *Client) Open(req *Request) (*Response, error) {
	target, err := parseTarget(req.URL)
	if err != nil {
		return nil, err
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	if err := c.checkFraming(req); err != nil {
		return nil, err
	}

	conn, err := c.dial(target)
	if err != nil {
		return nil, err
	}

	resp, err := c.exchange(conn, req, target, body, contentType)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return resp, nil
}

// checkFraming rejects a method, User-Agent or caller header that would
// inject extra lines into the request head.
func (c *Client) checkFraming(req *Request) error {
	if strings.ContainsAny(req.Method, " \r\n") {
		return fmt.Errorf("%w: method %q", ErrInvalidHeader, req.Method)
	}
	if strings.ContainsAny(c.userAgent, "\r\n") {
		return fmt.Errorf("%w: User-Agent %q", ErrInvalidHeader, c.userAgent)
	}
	for name, value := range req.Header {
		if name == "" || strings.ContainsAny(name, ": \t\r\n") {
			return fmt.Errorf("%w: name %q", ErrInvalidHeader, name)
		}
		if strings.ContainsAny(value, "\r\n") {
			return fmt.Errorf("%w: value of %s contains a line break", ErrInvalidHeader, name)
		}
	}
	return nil
}

// target is the decomposed request URL.
type target struct {
	scheme     string
	host       string
	port       string
	requestURI string
}

func (t target) hostHeader() string {
	if (t.scheme == "http" && t.port == "80") || (t.scheme == "https" && t.port == "443") {
		return t.host
	}
	return net.JoinHostPort(t.host, t.port)
}

func parseTarget(rawURL string) (target, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return target{}, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	t := target{scheme: strings.ToLower(u.Scheme), host: u.Hostname(), port: u.Port()}
	switch t.scheme {
	case "http":
		if t.port == "" {
			t.port = "80"
		}
	case "https":
		if t.port == "" {
			t.port = "443"
		}
	default:
		return target{}, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, u.Scheme)
	}

	if t.host == "" {
		return target{}, fmt.Errorf("invalid URL %q: missing host", rawURL)
	}

	t.requestURI = u.RequestURI()
	return t, nil
}

func encodeBody(req *Request) ([]byte, string, error) {
	if req.JSON == nil {
		return req.Body, "", nil
	}
	if len(req.Body) > 0 {
		return nil, "", errors.New("request has both a JSON and a raw body")
	}
	data, err := json.Marshal(req.JSON)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode JSON body: %w", err)
	}
	return data, "application/json", nil
}

// dial resolves the host, connects with the I/O timeout and, for https,
// completes the TLS handshake.
func (c *Client) dial(t target) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	addrs, err := c.resolver.LookupIPAddr(ctx, t.host)
	if err == nil && len(addrs) == 0 {
		err = errors.New("no addresses")
	}
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: resolving %s: %w", ErrTimeout, t.host, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrResolve, t.host, err)
	}

	addr := net.JoinHostPort(addrs[0].IP.String(), t.port)
	raw, err := net.DialTimeout("tcp", addr, c.timeout)
	if err != nil {
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: connecting to %s: %w", ErrTimeout, addr, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrConnect, addr, err)
	}

	var conn net.Conn = &deadlineConn{Conn: raw, timeout: c.timeout}
	if t.scheme != "https" {
		return conn, nil
	}

	cfg := &tls.Config{}
	if c.tlsConfig != nil {
		cfg = c.tlsConfig.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName = t.host
	}

	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.Handshake(); err != nil {
		_ = raw.Close()
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: TLS handshake with %s: %w", ErrTimeout, t.host, err)
		}
		return nil, fmt.Errorf("%w: TLS handshake with %s: %w", ErrConnect, t.host, err)
	}
	return tlsConn, nil
}

// exchange writes the request and reads the response head from conn.
func (c *Client) exchange(conn net.Conn, req *Request, t target, body []byte, contentType string) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var head bytes.Buffer
	fmt.Fprintf(&head, "%s %s HTTP/1.0\r\n", method, t.requestURI)
	if !hasHeader(req.Header, "Host") {
		fmt.Fprintf(&head, "Host: %s\r\n", t.hostHeader())
	}
	fmt.Fprintf(&head, "User-Agent: %s\r\n", c.userAgent)

	names := make([]string, 0, len(req.Header))
	for name := range req.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&head, "%s: %s\r\n", name, req.Header[name])
	}

	if contentType != "" {
		fmt.Fprintf(&head, "Content-Type: %s\r\n", contentType)
	}
	if len(body) > 0 {
		fmt.Fprintf(&head, "Content-Length: %d\r\n", len(body))
	}
	head.WriteString("\r\n")
	head.Write(body)

	if _, err := conn.Write(head.Bytes()); err != nil {
		return nil, classify("writing request", err)
	}

	br := bufio.NewReader(conn)
	resp, err := readHead(br)
	if err != nil {
		return nil, err
	}

	resp.method = strings.ToUpper(method)
	resp.conn = conn
	resp.body = br
	resp.maxBodyBytes = c.maxBodyBytes
	return resp, nil
}

// readHead parses the status line and header block. It never reads the body.
func readHead(br *bufio.Reader) (*Response, error) {
	line, err := readLine(br)
	if err != nil {
		return nil, classify("reading status line", err)
	}

	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return nil, fmt.Errorf("%w: status line %q", ErrMalformedResponse, line)
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: status code %q", ErrMalformedResponse, parts[1])
	}

	resp := &Response{
		Proto:      parts[0],
		StatusCode: status,
		Header:     make(http.Header),
	}
	if len(parts) > 2 {
		resp.Reason = strings.TrimSpace(parts[2])
	}

	for i := 0; ; i++ {
		if i == maxHeaderLines {
			return nil, fmt.Errorf("%w: more than %d header lines", ErrMalformedResponse, maxHeaderLines)
		}

		line, err := readLine(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Connection closed right after the headers.
				break
			}
			return nil, classify("reading headers", err)
		}
		if line == "" {
			break
		}

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("%w: header line %q", ErrMalformedResponse, line)
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)

		if strings.EqualFold(name, "Transfer-Encoding") && strings.Contains(strings.ToLower(value), "chunked") {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, value)
		}
		resp.Header.Add(name, value)
	}

	if status >= 300 && status <= 399 {
		return nil, &RedirectError{StatusCode: status, Location: resp.Header.Get("Location")}
	}

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: Content-Length %q", ErrMalformedResponse, cl)
		}
		resp.ContentLength = n
	} else {
		resp.ContentLength = -1
	}

	return resp, nil
}

// readLine returns one CRLF- or LF-terminated line without its terminator.
func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimRight(line, "\r\n"), nil
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func hasHeader(header map[string]string, name string) bool {
	for k := range header {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

// classify maps socket errors onto the package error kinds.
func classify(op string, err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%w: %s: %w", ErrTimeout, op, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %s: connection closed", ErrMalformedResponse, op)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// deadlineConn refreshes the socket deadline before every read and write,
// turning a fixed timeout into a per-operation idle timeout.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}
