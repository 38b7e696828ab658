package retry

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// transientCodes are the socket error codes treated as worth another attempt.
var transientCodes = map[syscall.Errno]string{
	syscall.ETIMEDOUT:    "ETIMEDOUT",
	syscall.ECONNRESET:   "ECONNRESET",
	syscall.ECONNREFUSED: "ECONNREFUSED",
	syscall.EPIPE:        "EPIPE",
	syscall.EAGAIN:       "EAGAIN",
}

type tagged struct {
	err       error
	retryable bool
}

func (t *tagged) Error() string { return t.err.Error() }
func (t *tagged) Unwrap() error { return t.err }

// Retryable marks err as transient regardless of its underlying cause.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &tagged{err: err, retryable: true}
}

// Fatal marks err as not worth retrying regardless of its underlying cause.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &tagged{err: err, retryable: false}
}

// IsRetryable classifies err. The outermost explicit verdict in the chain
// wins, whether a tag or an error exposing IsRetryable, so a wrapper can
// overrule its cause. Otherwise transient socket codes and network
// timeouts are retryable.
func IsRetryable(err error) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch v := e.(type) {
		case *tagged:
			return v.retryable
		case interface{ IsRetryable() bool }:
			return v.IsRetryable()
		}
	}
	return IsTransient(err)
}

// IsTransient reports whether err is a transient network failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	for errno := range transientCodes {
		if errors.Is(err, errno) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// Code extracts a short machine readable code for err.
func Code(err error) string {
	if err == nil {
		return ""
	}

	var c interface{ ErrorCode() string }
	if errors.As(err, &c) {
		if code := c.ErrorCode(); code != "" {
			return code
		}
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		if code, ok := transientCodes[errno]; ok {
			return code
		}
		return errno.Error()
	}

	switch {
	case errors.Is(err, context.Canceled):
		return "CANCELED"
	case errors.Is(err, context.DeadlineExceeded):
		return "DEADLINE_EXCEEDED"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "ETIMEDOUT"
	}

	return "UNKNOWN"
}
