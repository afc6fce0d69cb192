// Package requestline reads the one line of a client request the proxy acts on.
//
// It is intentionally not an HTTP parser: a single bounded receive is
// performed, only the first line of it is inspected, and everything after
// that line (headers, body) is ignored and never forwarded.
package requestline

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// DefaultBufferSize bounds the single receive from the client.
const DefaultBufferSize = 1024

var ErrMalformedRequestLine = errors.New("malformed request line")

// Request is the parsed first line of a client request.
type Request struct {
	Method string
	Target string
	// Version is the protocol token, e.g. "HTTP/1.0". It is not interpreted.
	Version string
}

// Read performs exactly one read of at most size bytes from r.
// A request line longer than size is truncated, which usually makes it fail
// to parse. Receiving nothing before EOF yields an empty slice.
func Read(r io.Reader, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultBufferSize
	}
	buf := make([]byte, size)
	n, err := r.Read(buf)
	if n > 0 {
		return buf[:n], nil
	}
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:0], nil
}

// Parse splits the first line of raw on single spaces.
// Exactly three tokens (method, target, version) are required, and the
// whole receive must decode as UTF-8 text.
func Parse(raw []byte) (Request, error) {
	if !utf8.Valid(raw) {
		return Request{}, fmt.Errorf("%w: request is not valid UTF-8", ErrMalformedRequestLine)
	}
	line, _, _ := strings.Cut(string(raw), "\n")
	tokens := strings.Split(line, " ")
	if len(tokens) != 3 {
		return Request{}, fmt.Errorf("%w: expected 3 tokens, got %d in %q", ErrMalformedRequestLine, len(tokens), line)
	}
	return Request{
		Method:  tokens[0],
		Target:  tokens[1],
		Version: strings.TrimSuffix(tokens[2], "\r"),
	}, nil
}

// ReadRequest reads once from r and parses the result.
func ReadRequest(r io.Reader, size int) (Request, error) {
	raw, err := Read(r, size)
	if err != nil {
		return Request{}, fmt.Errorf("could not read request: %w", err)
	}
	return Parse(raw)
}
