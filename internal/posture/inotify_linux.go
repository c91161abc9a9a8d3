//go:build linux

package posture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// InotifySource watches a device node for access. Only the occurrence of an
// event matters; the device itself is never read.
type InotifySource struct {
	path   string
	fd     int
	wd     int
	wakeFd int
	buf    []byte

	mu     sync.Mutex
	closed bool
}

func OpenInotifySource(path string) (*InotifySource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("event device: %w", err)
	}
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init1: %w", err)
	}
	wd, err := unix.InotifyAddWatch(fd, path, unix.IN_ACCESS|unix.IN_MODIFY)
	if err != nil {
		unix.Close(fd) //nolint:errcheck
		return nil, fmt.Errorf("inotify_add_watch on %s: %w", path, err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(fd) //nolint:errcheck
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	return &InotifySource{
		path:   path,
		fd:     fd,
		wd:     wd,
		wakeFd: wakeFd,
		buf:    make([]byte, 4096),
	}, nil
}

// Wait polls the inotify descriptor together with a wake descriptor that is
// written when ctx is done, so cancellation does not have to wait for the
// timeout.
func (s *InotifySource) Wait(ctx context.Context, timeout time.Duration) (int, error) {
	if s.isClosed() {
		return 0, ErrSourceClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	stop := context.AfterFunc(ctx, s.wake)
	defer stop()

	fds := []unix.PollFd{
		{Fd: int32(s.fd), Events: unix.POLLIN},
		{Fd: int32(s.wakeFd), Events: unix.POLLIN},
	}
	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	if fds[1].Revents&unix.POLLIN != 0 {
		s.drainWake()
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}
	if fds[0].Revents&unix.POLLIN == 0 {
		return 0, nil
	}
	read, err := unix.Read(s.fd, s.buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("read inotify events: %w", err)
	}
	return countEvents(s.buf[:read]), nil
}

// Close releases the descriptors. It must not race with Wait.
func (s *InotifySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, _ = unix.InotifyRmWatch(s.fd, uint32(s.wd))
	return errors.Join(unix.Close(s.fd), unix.Close(s.wakeFd))
}

func (s *InotifySource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *InotifySource) wake() {
	var one [8]byte
	binary.NativeEndian.PutUint64(one[:], 1)
	_, _ = unix.Write(s.wakeFd, one[:])
}

func (s *InotifySource) drainWake() {
	var counter [8]byte
	_, _ = unix.Read(s.wakeFd, counter[:])
}

// countEvents counts the inotify_event records in buf. Each record is a
// 16-byte header followed by len bytes of name.
func countEvents(buf []byte) int {
	count := 0
	offset := 0
	for offset+unix.SizeofInotifyEvent <= len(buf) {
		nameLength := int(binary.NativeEndian.Uint32(buf[offset+12 : offset+16]))
		size := unix.SizeofInotifyEvent + nameLength
		if offset+size > len(buf) {
			break
		}
		count++
		offset += size
	}
	return count
}
