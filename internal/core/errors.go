package core

import "errors"

var (
	// ErrConnClosed is returned by Push after the connection has been closed.
	ErrConnClosed = errors.New("connection closed")
	// ErrQueueFull is returned by Push when the recipient's send queue is saturated.
	ErrQueueFull = errors.New("send queue full")
)

// Push outcome labels used in logs and metrics.
const (
	resultDelivered = "delivered"
	resultOffline   = "offline"
	resultDropped   = "dropped"
	resultClosed    = "closed"
	resultFailed    = "failed"
)

func pushResult(err error) string {
	switch {
	case err == nil:
		return resultDelivered
	case errors.Is(err, ErrQueueFull):
		return resultDropped
	case errors.Is(err, ErrConnClosed):
		return resultClosed
	default:
		return resultFailed
	}
}
