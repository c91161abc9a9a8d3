//go:build !linux

package posture

import (
	"context"
	"errors"
	"time"
)

type InotifySource struct{}

func OpenInotifySource(path string) (*InotifySource, error) {
	return nil, errors.New("inotify event source requires linux")
}

func (s *InotifySource) Wait(_ context.Context, _ time.Duration) (int, error) {
	return 0, ErrSourceClosed
}

func (s *InotifySource) Close() error {
	return nil
}
