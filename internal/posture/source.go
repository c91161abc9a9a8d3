package posture

import (
	"context"
	"errors"
	"time"
)

var ErrSourceClosed = errors.New("event source closed")

// EventSource reports occurrences of hardware events. Wait blocks for at most
// timeout and returns the number of events seen, zero on timeout. It returns
// early with ctx.Err() when ctx is done.
type EventSource interface {
	Wait(ctx context.Context, timeout time.Duration) (int, error)
	Close() error
}
