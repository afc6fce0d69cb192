package proxycache

import (
	"context"
	"errors"
	"net"
	"time"

	requestline "github.com/always-cache/proxycache/pkg/request-line"
	"github.com/always-cache/proxycache/rfc9211"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

var MethodNotAllowedResponse = []byte("HTTP/1.0 405 Method Not Allowed\r\n\r\n")

// request carries the per-connection state through the pipeline.
type request struct {
	requestline.Request
	key         string
	cacheStatus rfc9211.CacheStatus
	log         zerolog.Logger
}

// handleConn answers exactly one request on conn and closes it.
func (p *Proxy) handleConn(ctx context.Context, conn net.Conn) {
	log := p.log.With().
		Str("conn", xid.New().String()).
		Str("remote", conn.RemoteAddr().String()).
		Logger()
	defer conn.Close()
	defer func() {
		if err := recover(); err != nil {
			log.WithLevel(zerolog.PanicLevel).Interface("panic", err).Msg("Recovered from panic in connection handler")
		}
	}()

	if p.readTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(p.readTimeout))
	}
	rl, err := requestline.ReadRequest(conn, p.bufferSize)
	if err != nil {
		// nothing is sent back for requests we cannot parse
		if errors.Is(err, requestline.ErrMalformedRequestLine) {
			log.Warn().Err(err).Msg("Could not parse request")
		} else {
			log.Warn().Err(err).Msg("Could not read request")
		}
		return
	}

	r := &request{
		Request: rl,
		log:     log.With().Str("method", rl.Method).Str("target", rl.Target).Logger(),
	}
	r.log.Trace().Str("version", rl.Version).Msg("Got request")

	res := p.respond(ctx, r)
	n, err := conn.Write(res)
	if err != nil {
		r.log.Error().Err(err).Msg("Could not write response to client")
	}
	p.logRequest(r, n)
}

// respond computes the bytes to send for r.
func (p *Proxy) respond(ctx context.Context, r *request) []byte {
	if r.Method != "GET" {
		r.cacheStatus.Forward(rfc9211.FwdReasonMethod)
		r.cacheStatus.Detail = "method not allowed"
		return append([]byte(nil), MethodNotAllowedResponse...)
	}
	r.key = p.keyer.Key(r.Target)
	r.log = r.log.With().Str("key", r.key).Logger()

	if !p.concurrent {
		p.reload(r)
	}
	if res, ok := p.cachedResponse(r); ok {
		r.cacheStatus.Hit()
		return res
	}
	return p.fetchAndStore(ctx, r)
}

func (p *Proxy) logRequest(r *request, bytesWritten int) {
	isHit := 0
	if r.cacheStatus.IsHit() {
		isHit = 1
	}
	r.log.Debug().
		Str("status", string(r.cacheStatus.Status)).
		Str("fwd", string(r.cacheStatus.FwdReason)).
		Bool("stored", r.cacheStatus.Stored).
		Bool("collapsed", r.cacheStatus.Collapsed).
		Int("hit", isHit).
		Int("bytes", bytesWritten).
		Str("cacheStatus", r.cacheStatus.String()).
		Msg("Sending response to client")
}
