// Package posture tracks whether the convertible is folded into tablet
// posture. The hardware only tells us that something happened on the virtual
// button device; which way the hinge moved is read back from the kernel log.
package posture

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/g960059/devmode/internal/change"
	"github.com/g960059/devmode/internal/config"
	"github.com/g960059/devmode/internal/model"
)

type Watcher struct {
	source       EventSource
	signal       *change.Signal
	logPath      string
	marker       string
	chunkSize    int
	runtimeLines int
	debounce     time.Duration
	settle       time.Duration
	logger       *slog.Logger
	now          func() time.Time

	current   atomic.Value
	lastEvent time.Time
}

// NewWatcher seeds the posture from the existing log before returning. When
// the log holds no recognisable event the posture starts as laptop.
func NewWatcher(cfg config.Config, source EventSource, signal *change.Signal, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{
		source:       source,
		signal:       signal,
		logPath:      cfg.LogPath,
		marker:       cfg.EventMarker,
		chunkSize:    cfg.ScanChunkSize,
		runtimeLines: cfg.RuntimeScanLines,
		debounce:     cfg.PostureDebounce,
		settle:       cfg.PostureSettle,
		logger:       logger,
		now:          time.Now,
	}
	w.current.Store(model.PostureLaptop)
	if p, ok := w.parse(cfg.InitialScanLines); ok {
		w.current.Store(p)
	}
	w.logger.Info("initial posture", "posture", w.Posture())
	return w
}

func (w *Watcher) Posture() model.Posture {
	return w.current.Load().(model.Posture)
}

// Run waits for device events until ctx is done. Wait errors are logged and
// the loop goes back to waiting.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("posture watcher started")
	defer w.logger.Info("posture watcher stopped")
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := w.source.Wait(ctx, w.debounce)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrSourceClosed) {
				return err
			}
			w.logger.Warn("event wait failed", "err", err)
			if !sleep(ctx, w.debounce) {
				return nil
			}
			continue
		}
		if n == 0 {
			continue
		}
		w.handleEvent(ctx, w.now())
	}
}

// handleEvent applies the debounce window and, for an accepted event, waits
// for the log entry to land and re-reads the posture. A single hinge rotation
// produces a burst of device events; every event inside the window pushes the
// window further out. It reports whether the event was accepted.
func (w *Watcher) handleEvent(ctx context.Context, at time.Time) bool {
	last := w.lastEvent
	w.lastEvent = at
	if !last.IsZero() && at.Sub(last) <= w.debounce {
		w.logger.Debug("event discarded, too soon", "since_last", at.Sub(last))
		return false
	}
	w.logger.Debug("hinge event, reading log")
	if !sleep(ctx, w.settle) {
		return true
	}
	p, ok := w.parse(w.runtimeLines)
	if !ok {
		w.logger.Warn("posture not updated")
		return true
	}
	w.current.Store(p)
	w.logger.Info("posture updated", "posture", p)
	w.signal.Set()
	return true
}

func (w *Watcher) parse(maxLines int) (model.Posture, bool) {
	p, ok, err := ParseLog(w.logPath, w.chunkSize, maxLines, w.marker)
	if err != nil {
		w.logger.Warn("could not read log", "path", w.logPath, "err", err)
		return model.PostureUnknown, false
	}
	if !ok {
		w.logger.Warn("could not parse posture from log", "path", w.logPath, "max_lines", maxLines)
	}
	return p, ok
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
