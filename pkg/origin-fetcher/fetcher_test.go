package originfetcher

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startOrigin starts a one-shot origin that records the request it receives
// and answers with response (or never answers if response is nil).
func startOrigin(t *testing.T, response []byte) (port int, requests <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	ch := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		reader := bufio.NewReader(conn)
		var req strings.Builder
		for {
			line, err := reader.ReadString('\n')
			req.WriteString(line)
			if err != nil || line == "\r\n" {
				break
			}
		}
		ch <- req.String()
		if response == nil {
			// hold the connection open until the client gives up
			io.Copy(io.Discard, conn)
			return
		}
		// write in pieces to exercise reading until EOF
		for len(response) > 0 {
			n := 7
			if n > len(response) {
				n = len(response)
			}
			conn.Write(response[:n])
			response = response[n:]
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port, ch
}

type failingDialer struct {
	err error
}

func (d failingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return nil, d.err
}

type recordingDialer struct {
	addresses []string
	err       error
}

func (d *recordingDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	d.addresses = append(d.addresses, address)
	return nil, d.err
}

func TestFetchSuccess(t *testing.T) {
	response := append([]byte("HTTP/1.0 200 OK\r\nContent-Type: application/octet-stream\r\n\r\n"), 0x00, 0xff, 0xfe, '\r', '\n', 0x80)
	port, requests := startOrigin(t, response)

	outcome := New(Config{Port: port, Timeout: 5 * time.Second}).Fetch(context.Background(), "http://127.0.0.1/a/b?c=d")

	require.Equal(t, Success, outcome.Kind, "%v", outcome.Err)
	assert.NoError(t, outcome.Err)
	assert.Equal(t, response, outcome.Bytes)
	assert.Equal(t, response, outcome.Response())
	assert.Equal(t, "GET /a/b?c=d HTTP/1.0\r\nHost: 127.0.0.1\r\n\r\n", <-requests)
}

func TestFetchStripsLeadingSlash(t *testing.T) {
	port, requests := startOrigin(t, []byte("HTTP/1.0 200 OK\r\n\r\nhi"))

	outcome := New(Config{Port: port}).Fetch(context.Background(), "/127.0.0.1")

	require.Equal(t, Success, outcome.Kind, "%v", outcome.Err)
	assert.Equal(t, "GET / HTTP/1.0\r\nHost: 127.0.0.1\r\n\r\n", <-requests)
}

func TestFetchDialsDefaultPort(t *testing.T) {
	dialer := &recordingDialer{err: errors.New("no network in tests")}

	New(Config{Dialer: dialer}).Fetch(context.Background(), "http://example.com/index.html")

	assert.Equal(t, []string{"example.com:80"}, dialer.addresses)
}

func TestFetchUnreachable(t *testing.T) {
	dialErr := errors.New("connection refused")

	outcome := New(Config{Dialer: failingDialer{dialErr}}).Fetch(context.Background(), "http://example.com/")

	assert.Equal(t, Unreachable, outcome.Kind)
	assert.ErrorIs(t, outcome.Err, dialErr)
	assert.Nil(t, outcome.Bytes)
	assert.Equal(t, []byte("HTTP/1.0 404 Not Found\r\n\r\n"), outcome.Response())
}

func TestFetchRefused(t *testing.T) {
	// grab a free port and release it so nothing is listening there
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	outcome := New(Config{Port: port}).Fetch(context.Background(), "http://127.0.0.1/")

	assert.Equal(t, Unreachable, outcome.Kind)
	assert.Equal(t, NotFoundResponse, outcome.Response())
}

func TestFetchTimeout(t *testing.T) {
	port, _ := startOrigin(t, nil)

	start := time.Now()
	outcome := New(Config{Port: port, Timeout: 200 * time.Millisecond}).Fetch(context.Background(), "http://127.0.0.1/slow")

	assert.Equal(t, Timeout, outcome.Kind)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, NotFoundResponse, outcome.Response())
}

func TestResponseDoesNotAliasNotFound(t *testing.T) {
	b := Outcome{Kind: Unreachable}.Response()
	b[0] = 'X'
	assert.Equal(t, byte('H'), NotFoundResponse[0])
}
