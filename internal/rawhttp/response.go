package rawhttp

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"unicode/utf8"
)

// ErrBodyConsumed is returned by Bytes after the body was streamed with WriteTo.
var ErrBodyConsumed = errors.New("response body already streamed")

// Response is an open HTTP response. It owns the socket until Close, or until
// the body has been consumed by Bytes or WriteTo.
type Response struct {
	Proto         string
	StatusCode    int
	Reason        string
	Header        http.Header
	ContentLength int64 // -1 when the server did not advertise one

	method       string
	conn         net.Conn
	body         *bufio.Reader
	maxBodyBytes int64

	read     bool
	streamed bool
	cached   []byte
	readErr  error
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// hasBody reports whether a body follows the head. Answers to HEAD and
// 1xx, 204 and 304 statuses never carry one, whatever Content-Length says.
func (r *Response) hasBody() bool {
	switch {
	case r.method == http.MethodHead:
		return false
	case r.StatusCode >= 100 && r.StatusCode <= 199:
		return false
	case r.StatusCode == http.StatusNoContent, r.StatusCode == http.StatusNotModified:
		return false
	}
	return true
}

// Close releases the socket. It is safe to call any number of times.
func (r *Response) Close() error {
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	r.body = nil
	return err
}

// Bytes reads the whole body once and closes the socket, whether or not the
// read succeeded. Later calls return the same result.
func (r *Response) Bytes() ([]byte, error) {
	if r.streamed {
		return nil, ErrBodyConsumed
	}
	if r.read {
		return r.cached, r.readErr
	}
	r.read = true

	defer func() { _ = r.Close() }()

	if r.body == nil {
		r.readErr = errors.New("response already closed")
		return nil, r.readErr
	}
	if !r.hasBody() {
		r.cached = []byte{}
		return r.cached, nil
	}

	r.cached, r.readErr = io.ReadAll(r.limitedBody())
	if r.readErr != nil {
		r.cached = nil
		r.readErr = r.bodyError(r.readErr)
		return nil, r.readErr
	}
	if int64(len(r.cached)) > r.maxBodyBytes {
		r.cached = nil
		r.readErr = fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, r.maxBodyBytes)
		return nil, r.readErr
	}
	if r.ContentLength >= 0 && int64(len(r.cached)) < r.ContentLength {
		r.cached = nil
		r.readErr = fmt.Errorf("%w: body shorter than Content-Length", ErrMalformedResponse)
	}
	return r.cached, r.readErr
}

// Text returns the body decoded as UTF-8.
func (r *Response) Text() (string, error) {
	data, err := r.Bytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", errors.New("response body is not valid UTF-8")
	}
	return string(data), nil
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	data, err := r.Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode JSON body: %w", err)
	}
	return nil
}

// WriteTo streams the body into w without buffering it and closes the
// socket. It implements io.WriterTo.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	if r.read || r.streamed {
		return 0, ErrBodyConsumed
	}
	r.streamed = true

	defer func() { _ = r.Close() }()

	if r.body == nil {
		return 0, errors.New("response already closed")
	}
	if !r.hasBody() {
		return 0, nil
	}

	n, err := io.Copy(w, r.limitedBody())
	if err != nil {
		return n, r.bodyError(err)
	}
	if n > r.maxBodyBytes {
		return n, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, r.maxBodyBytes)
	}
	if r.ContentLength >= 0 && n < r.ContentLength {
		return n, fmt.Errorf("%w: body shorter than Content-Length", ErrMalformedResponse)
	}
	return n, nil
}

// limitedBody yields at most one byte more than the allowed size so an
// oversized body is detectable without reading all of it.
func (r *Response) limitedBody() io.Reader {
	limit := r.maxBodyBytes + 1
	if r.ContentLength >= 0 && r.ContentLength < limit {
		limit = r.ContentLength
	}
	return io.LimitReader(r.body, limit)
}

func (r *Response) bodyError(err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%w: reading body: %w", ErrTimeout, err)
	}
	return fmt.Errorf("reading body: %w", err)
}
