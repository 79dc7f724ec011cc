// Package cachestatus builds Cache-Status values (RFC 9211) describing
// how a fetch was satisfied.
package cachestatus

import (
	"fmt"
	"strings"
)

const cacheName = "Portal-Cache"

type Status string

const (
	StatusHit Status = "hit"
	StatusFwd Status = "fwd"
)

type FwdReason string

const (
	// The cache was configured to not handle this request.
	FwdReasonBypass FwdReason = "bypass"

	// The request method's semantics require the request to be
	// forwarded.
	FwdReasonMethod FwdReason = "method"

	// The cache did not contain any responses that matched the
	// request URI.
	FwdReasonUriMiss FwdReason = "uri-miss"

	// The cache was able to select a fresh response for the
	// request, but the request's semantics (e.g., Cache-Control request
	// directives) did not allow its use.
	FwdReasonRequest FwdReason = "request"

	// The cache was able to select a response for the request, but
	// it was stale.
	FwdReasonStale FwdReason = "stale"
)

type CacheStatus struct {
	Status    Status
	FwdReason FwdReason
	// Whether the response was stored in the cache.
	Stored bool
	// Remaining freshness lifetime in seconds, negative when stale.
	TimeToLive int
	HasTTL     bool
	Detail     string
}

func (cs *CacheStatus) Hit() {
	cs.Status = StatusHit
	cs.FwdReason = ""
}

func (cs *CacheStatus) Forward(reason FwdReason) {
	cs.Status = StatusFwd
	cs.FwdReason = reason
}

func (cs *CacheStatus) TTL(seconds int) {
	cs.TimeToLive = seconds
	cs.HasTTL = true
}

func (cs *CacheStatus) IsHit() bool {
	return cs.Status == StatusHit
}

func (cs CacheStatus) String() string {
	parts := []string{cacheName}
	switch cs.Status {
	case StatusHit:
		parts = append(parts, "hit")
	case StatusFwd:
		if cs.FwdReason != "" {
			parts = append(parts, "fwd="+string(cs.FwdReason))
		} else {
			parts = append(parts, "fwd=miss")
		}
	}
	if cs.Stored {
		parts = append(parts, "stored")
	}
	if cs.HasTTL {
		parts = append(parts, fmt.Sprintf("ttl=%d", cs.TimeToLive))
	}
	if cs.Detail != "" {
		parts = append(parts, "detail="+cs.Detail)
	}
	return strings.Join(parts, "; ")
}
