package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/g960059/devmode/internal/change"
	"github.com/g960059/devmode/internal/mode"
	"github.com/g960059/devmode/internal/model"
)

const defaultChangeWaitTimeout = 500 * time.Millisecond

type PostureSource interface {
	Posture() model.Posture
	Run(ctx context.Context) error
}

type DockSource interface {
	Query(ctx context.Context) (model.Topology, bool)
	Run(ctx context.Context) error
	Stop()
}

type Applier interface {
	Apply(ctx context.Context, plan model.Plan)
	StopHelpers() error
	HelpersRunning() (keyboard, rotation bool)
}

type Journal interface {
	InsertTransition(ctx context.Context, tr model.Transition) error
}

type OrchestratorDeps struct {
	Posture     PostureSource
	Dock        DockSource
	Signal      *change.Signal
	Applier     Applier
	Journal     Journal
	Logger      *slog.Logger
	WaitTimeout time.Duration
}

// Status is a snapshot of what the orchestrator last applied.
type Status struct {
	Posture        model.Posture
	Docked         bool
	Last           *model.Transition
	KeyboardHelper bool
	RotationHelper bool
}

type Orchestrator struct {
	posture     PostureSource
	dock        DockSource
	signal      *change.Signal
	applier     Applier
	journal     Journal
	logger      *slog.Logger
	waitTimeout time.Duration
	now         func() time.Time

	quit     chan struct{}
	stopOnce sync.Once
	downOnce sync.Once

	mu     sync.Mutex
	docked bool
	last   *model.Transition
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := deps.WaitTimeout
	if timeout <= 0 {
		timeout = defaultChangeWaitTimeout
	}
	signal := deps.Signal
	if signal == nil {
		signal = change.NewSignal()
	}
	return &Orchestrator{
		posture:     deps.Posture,
		dock:        deps.Dock,
		signal:      signal,
		applier:     deps.Applier,
		journal:     deps.Journal,
		logger:      logger.With("component", "orchestrator"),
		waitTimeout: timeout,
		now:         time.Now,
		quit:        make(chan struct{}),
	}
}

// Run applies the startup mode, starts both watchers and then re-resolves the
// mode every time the change signal fires. It returns after ctx is done or
// Stop is called, once the watchers have exited and the helpers are stopped.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-o.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	o.update(ctx, model.TriggerStartup)

	postureCtx, cancelPosture := context.WithCancel(ctx)
	defer cancelPosture()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := o.posture.Run(postureCtx); err != nil {
			o.logger.Error("posture watcher exited", "err", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := o.dock.Run(ctx); err != nil {
			o.logger.Error("dock watcher exited", "err", err)
		}
	}()

	for ctx.Err() == nil {
		if !o.signal.Wait(ctx, o.waitTimeout) {
			continue
		}
		o.signal.Clear()
		o.update(ctx, model.TriggerChange)
	}

	o.shutdown(cancelPosture, &wg)
	return nil
}

// Stop asks Run to shut down. It is safe to call more than once and from any
// goroutine.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.quit) })
}

func (o *Orchestrator) Status() Status {
	keyboard, rotation := o.applier.HelpersRunning()
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{
		Posture:        o.posture.Posture(),
		Docked:         o.docked,
		KeyboardHelper: keyboard,
		RotationHelper: rotation,
	}
	if o.last != nil {
		last := *o.last
		st.Last = &last
	}
	return st
}

func (o *Orchestrator) shutdown(cancelPosture context.CancelFunc, wg *sync.WaitGroup) {
	o.downOnce.Do(func() {
		o.logger.Info("shutting down")
		o.dock.Stop()
		cancelPosture()
		wg.Wait()
		if err := o.applier.StopHelpers(); err != nil {
			o.logger.Warn("stop helpers", "err", err)
		}
	})
}

// update computes the mode tuple fresh, resolves it and applies the plan.
func (o *Orchestrator) update(ctx context.Context, trigger model.Trigger) {
	topo, docked := o.dock.Query(ctx)
	if ctx.Err() != nil {
		// a cancelled query reads as docked; do not act on it
		return
	}
	posture := o.posture.Posture()
	plan, ok := mode.Resolve(docked, posture)
	if !ok {
		o.logger.Warn("unresolved posture, keeping current mode", "posture", posture, "docked", docked)
		return
	}
	o.logger.Info("applying mode", "plan", plan.Name, "posture", posture, "docked", docked, "trigger", trigger)
	o.applier.Apply(ctx, plan)

	tr := model.Transition{
		TransitionID: uuid.NewString(),
		Trigger:      trigger,
		Posture:      posture,
		Docked:       docked,
		Plan:         plan.Name,
		Actions:      plan.Describe(),
		Displays:     topo.Names(),
		AppliedAt:    o.now().UTC(),
	}
	o.mu.Lock()
	o.docked = docked
	o.last = &tr
	o.mu.Unlock()

	if o.journal == nil {
		return
	}
	if err := o.journal.InsertTransition(ctx, tr); err != nil {
		o.logger.Warn("journal transition", "transition_id", tr.TransitionID, "err", err)
	}
}
