package catalog

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// StatusError carries a non-retryable HTTP status.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog API returned %s", e.Status)
}

// isTimeout reports whether err is a request or read timeout. Deadline
// expiry and net.Error timeouts both route into the timeout retry branch.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
