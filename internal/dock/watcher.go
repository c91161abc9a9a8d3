// Package dock tracks whether external displays are attached.
package dock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/g960059/devmode/internal/change"
	"github.com/g960059/devmode/internal/config"
	"github.com/g960059/devmode/internal/model"
)

type Watcher struct {
	enumerator     Enumerator
	bus            Bus
	signal         *change.Signal
	internalOutput string
	settle         time.Duration
	logger         *slog.Logger

	quit     chan struct{}
	stopOnce sync.Once
}

func NewWatcher(cfg config.Config, enumerator Enumerator, bus Bus, signal *change.Signal, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		enumerator:     enumerator,
		bus:            bus,
		signal:         signal,
		internalOutput: cfg.InternalOutput,
		settle:         cfg.DockSettle,
		logger:         logger,
		quit:           make(chan struct{}),
	}
}

// Query enumerates the connected displays and derives the docked flag. An
// enumeration failure yields an empty topology, which counts as docked.
func (w *Watcher) Query(ctx context.Context) (model.Topology, bool) {
	topo, err := w.enumerator.Displays(ctx)
	if err != nil {
		w.logger.Warn("display enumeration failed", "err", err)
		topo = model.Topology{}
	}
	return topo, topo.Docked(w.internalOutput)
}

func (w *Watcher) IsDocked(ctx context.Context) bool {
	_, docked := w.Query(ctx)
	return docked
}

// Run processes display change notifications one at a time until Stop is
// called or ctx is done. Each notification waits for the settle delay before
// setting the change signal, since the topology may still be in flux when the
// notification fires.
func (w *Watcher) Run(ctx context.Context) error {
	events, unsubscribe, err := w.bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe display changes: %w", err)
	}
	defer unsubscribe()
	w.logger.Info("dock watcher started")
	defer w.logger.Info("dock watcher stopped")

	for {
		select {
		case <-w.quit:
			return nil
		case <-ctx.Done():
			return nil
		case _, ok := <-events:
			if !ok {
				return errors.New("display change subscription closed")
			}
			w.logger.Info("display change event")
			if !w.wait(ctx, w.settle) {
				return nil
			}
			w.signal.Set()
		}
	}
}

// Stop asks Run to return. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}

func (w *Watcher) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-w.quit:
		return false
	case <-ctx.Done():
		return false
	}
}
