package transport

import (
	"errors"
	"io"
	"net"
	"strings"
)

// isFatal reports whether a reader-goroutine error should tear the
// connection down (Connected -> None) rather than being logged and
// retried on the same connection.
func isFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := err.Error()
	for _, fatal := range []string{"connection reset", "broken pipe", "connection refused", "use of closed network connection"} {
		if strings.Contains(msg, fatal) {
			return true
		}
	}
	return false
}
