// Package change provides the coalescing notification shared by the watchers
// and the orchestrator.
package change

import (
	"context"
	"sync"
	"time"
)

// Signal is a dirty flag. Any number of Set calls between two Clear calls
// collapse into a single pending notification. Once set it stays set until
// Clear is called.
type Signal struct {
	mu     sync.Mutex
	set    bool
	notify chan struct{}
}

func NewSignal() *Signal {
	return &Signal{notify: make(chan struct{}, 1)}
}

// Set marks the signal. Safe for concurrent use; setting an already set
// signal is a no-op.
func (s *Signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return
	}
	s.set = true
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Wait blocks until the signal is set, the timeout elapses or ctx is done.
// It reports whether the signal is set and does not clear it.
func (s *Signal) Wait(ctx context.Context, timeout time.Duration) bool {
	if s.IsSet() {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.notify:
		return s.IsSet()
	case <-timer.C:
		return s.IsSet()
	case <-ctx.Done():
		return false
	}
}

// Clear resets the flag and drops any undelivered notification.
func (s *Signal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = false
	select {
	case <-s.notify:
	default:
	}
}
