package portalcache

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrUpstreamUnavailable wraps transport failures (connection errors, timeouts).
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Response   *Response
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// IsTimeout reports whether the fetch failed because it ran out of time.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
