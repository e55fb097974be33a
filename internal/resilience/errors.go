package resilience

import (
	"errors"
	"net"
	"net/http"
	"slices"
	"strings"
	"syscall"
)

// TransientError marks a failure that may succeed on retry, such as a 503
// from the model service.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as transient. statusCode is 0 for network
// failures.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

var (
	transientErrnos = []error{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED}

	// Substrings of errors that lost their type on the way up, e.g. through
	// a proxy or a formatted message.
	transientMessages = []string{
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"server closed idle connection",
	}

	transientStatuses = []int{
		http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	}
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	var netErr net.Error
	switch {
	case errors.As(err, &te):
		return true
	case errors.As(err, &netErr) && netErr.Timeout():
		return true
	case slices.ContainsFunc(transientErrnos, func(target error) bool { return errors.Is(err, target) }):
		return true
	}

	msg := strings.ToLower(err.Error())
	return slices.ContainsFunc(transientMessages, func(s string) bool { return strings.Contains(msg, s) })
}

// IsTransientHTTPStatus reports whether a model service status code is
// worth retrying. 501 is not: the endpoint will never exist.
func IsTransientHTTPStatus(code int) bool {
	return slices.Contains(transientStatuses, code)
}
