package originfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	targetresolver "github.com/always-cache/proxycache/pkg/target-resolver"

	"github.com/rs/zerolog"
)

const (
	DefaultPort    = 80
	DefaultTimeout = 30 * time.Second
)

// NotFoundResponse is served for every fetch that did not succeed.
var NotFoundResponse = []byte("HTTP/1.0 404 Not Found\r\n\r\n")

type Kind string

const (
	Success     Kind = "success"
	Unreachable Kind = "unreachable"
	Timeout     Kind = "timeout"
)

// Outcome is the result of a single fetch attempt.
// Bytes is only set for Success; Err is only set otherwise.
type Outcome struct {
	Kind  Kind
	Bytes []byte
	Err   error
}

// Response returns the bytes to send to the client for this outcome.
// All failures collapse to a bare 404, so a client cannot tell an
// unreachable host from a missing path.
func (o Outcome) Response() []byte {
	if o.Kind == Success {
		return o.Bytes
	}
	return append([]byte(nil), NotFoundResponse...)
}

// Dialer opens outbound connections. *net.Dialer implements it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

type Config struct {
	// Origin port. Defaults to 80.
	Port int
	// Bound on dial, send and read combined. Zero disables the bound.
	Timeout time.Duration
	// Dialer to use. A plain net.Dialer is used if nil.
	Dialer Dialer
	// Logger to use. The global zerolog logger is used if nil.
	Logger *zerolog.Logger
}

type Fetcher struct {
	port    int
	timeout time.Duration
	dialer  Dialer
	log     zerolog.Logger
}

func New(config Config) *Fetcher {
	f := &Fetcher{
		port:    config.Port,
		timeout: config.Timeout,
		dialer:  config.Dialer,
	}
	if f.port == 0 {
		f.port = DefaultPort
	}
	if f.dialer == nil {
		f.dialer = &net.Dialer{}
	}
	if config.Logger != nil {
		f.log = *config.Logger
	} else {
		f.log = zerolog.Nop()
	}
	return f
}

// Fetch requests target from its origin over a fresh connection and reads
// until the origin closes it. A single leading slash on target is dropped,
// so both "http://host/p" and "/host/p" are accepted.
func (f *Fetcher) Fetch(ctx context.Context, target string) Outcome {
	dest := targetresolver.Resolve(strings.TrimPrefix(target, "/"))
	log := f.log.With().Str("host", dest.Host).Str("path", dest.Path).Logger()
	log.Trace().Msg("Fetching from origin")

	b, err := f.fetch(ctx, dest)
	if err != nil {
		kind := Unreachable
		if isTimeout(err) {
			kind = Timeout
		}
		log.Warn().Err(err).Str("outcome", string(kind)).Msg("Error fetching from origin")
		return Outcome{Kind: kind, Err: err}
	}
	log.Trace().Int("bytes", len(b)).Msg("Got response from origin")
	return Outcome{Kind: Success, Bytes: b}
}

func (f *Fetcher) fetch(ctx context.Context, dest targetresolver.Target) ([]byte, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	conn, err := f.dialer.DialContext(ctx, "tcp", net.JoinHostPort(dest.Host, strconv.Itoa(f.port)))
	if err != nil {
		return nil, fmt.Errorf("could not connect to origin: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	// unblock reads and writes when ctx is done
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if _, err := io.WriteString(conn, forwardRequest(dest)); err != nil {
		return nil, fmt.Errorf("could not send request to origin: %w", contextErr(ctx, err))
	}
	// no framing: the response ends when the origin closes its side
	b, err := io.ReadAll(conn)
	if err != nil {
		return nil, fmt.Errorf("could not read response from origin: %w", contextErr(ctx, err))
	}
	return b, nil
}

// forwardRequest is the only request ever sent upstream.
// No client headers are forwarded.
func forwardRequest(dest targetresolver.Target) string {
	return "GET " + dest.Path + " HTTP/1.0\r\nHost: " + dest.Host + "\r\n\r\n"
}

// contextErr prefers the context error when the deadline was set by ctx.
func contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w (%v)", ctxErr, err)
	}
	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
