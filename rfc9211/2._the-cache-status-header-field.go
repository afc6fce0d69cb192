package rfc9211

import (
	"fmt"
	"strings"
)

// §  2.  The Cache-Status HTTP Response Header Field
// §
// §     The Cache-Status HTTP response header field indicates how caches have
// §     handled that response and its corresponding request.
//
// The proxy never adds the field to responses it serves (replayed bytes must
// stay as stored, apart from Cache-Control). CacheStatus is used to describe
// each request in the log, with the vocabulary of the RFC.

type Status string

const (
	StatusHit Status = "hit"
	StatusFwd Status = "fwd"
)

type FwdReason string

// §  2.2.  The fwd Parameter
const (
	// The cache was configured to not handle this request.
	FwdReasonBypass FwdReason = "bypass"
	// The request method's semantics require the request to be forwarded.
	FwdReasonMethod FwdReason = "method"
	// The cache did not contain any responses that matched the request URI.
	FwdReasonUriMiss FwdReason = "uri-miss"
	// The cache did not contain any responses that could be used to
	// satisfy this request.
	FwdReasonMiss FwdReason = "miss"
)

// Name of this cache in rendered values.
const CacheName = "Proxycache"

type CacheStatus struct {
	Status    Status
	FwdReason FwdReason
	// §  2.5.  The stored Parameter
	Stored bool
	// §  2.6.  The collapsed Parameter
	Collapsed bool
	Detail    string
}

func (cs *CacheStatus) Hit() {
	cs.Status = StatusHit
	cs.FwdReason = ""
}

func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.Status = StatusFwd
	cs.FwdReason = reason
}

// IsHit reports whether the response was served from the cache.
func (cs CacheStatus) IsHit() bool {
	return cs.Status == StatusHit
}

// String renders the status as a Cache-Status field value,
// e.g. `Proxycache; fwd=uri-miss; stored`.
func (cs CacheStatus) String() string {
	params := []string{CacheName}
	switch cs.Status {
	case StatusHit:
		params = append(params, string(StatusHit))
	case StatusFwd:
		params = append(params, fmt.Sprintf("fwd=%s", cs.FwdReason))
	}
	if cs.Collapsed {
		params = append(params, "collapsed")
	}
	if cs.Stored {
		params = append(params, "stored")
	}
	if cs.Detail != "" {
		params = append(params, fmt.Sprintf("detail=%q", cs.Detail))
	}
	return strings.Join(params, "; ")
}
