package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/g960059/devmode/internal/actuator"
	"github.com/g960059/devmode/internal/change"
	"github.com/g960059/devmode/internal/command"
	"github.com/g960059/devmode/internal/config"
	"github.com/g960059/devmode/internal/dock"
	"github.com/g960059/devmode/internal/model"
	"github.com/g960059/devmode/internal/posture"
	"github.com/g960059/devmode/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePosture struct {
	current atomic.Value
	exited  atomic.Bool
}

func newFakePosture(p model.Posture) *fakePosture {
	f := &fakePosture{}
	f.current.Store(p)
	return f
}

func (f *fakePosture) Posture() model.Posture { return f.current.Load().(model.Posture) }

func (f *fakePosture) Run(ctx context.Context) error {
	<-ctx.Done()
	f.exited.Store(true)
	return nil
}

type fakeDock struct {
	mu       sync.Mutex
	topo     model.Topology
	quit     chan struct{}
	stopOnce sync.Once
	stopped  atomic.Bool
}

func newFakeDock(names ...string) *fakeDock {
	d := &fakeDock{quit: make(chan struct{})}
	d.setDisplays(names...)
	return d
}

func (d *fakeDock) setDisplays(names ...string) {
	topo := model.Topology{}
	for _, n := range names {
		topo[n] = model.Display{Name: n}
	}
	d.mu.Lock()
	d.topo = topo
	d.mu.Unlock()
}

func (d *fakeDock) Query(_ context.Context) (model.Topology, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.topo, d.topo.Docked("eDP-1")
}

func (d *fakeDock) Run(ctx context.Context) error {
	select {
	case <-d.quit:
	case <-ctx.Done():
	}
	return nil
}

func (d *fakeDock) Stop() {
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.quit)
	})
}

type fakeApplier struct {
	mu          sync.Mutex
	plans       []model.PlanName
	helpersOn   bool
	stopHelpers int
	stopHelpErr error
}

func (a *fakeApplier) Apply(_ context.Context, plan model.Plan) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.plans = append(a.plans, plan.Name)
	a.helpersOn = plan.Name == model.PlanTablet
}

func (a *fakeApplier) StopHelpers() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopHelpers++
	a.helpersOn = false
	return a.stopHelpErr
}

func (a *fakeApplier) HelpersRunning() (bool, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.helpersOn, a.helpersOn
}

func (a *fakeApplier) applied() []model.PlanName {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]model.PlanName(nil), a.plans...)
}

type fakeJournal struct {
	mu   sync.Mutex
	rows []model.Transition
	err  error
}

func (j *fakeJournal) InsertTransition(_ context.Context, tr model.Transition) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.rows = append(j.rows, tr)
	return nil
}

func (j *fakeJournal) transitions() []model.Transition {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]model.Transition(nil), j.rows...)
}

func startOrchestrator(t *testing.T, o *Orchestrator) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		errCh <- o.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
		}
	})
	return cancel, errCh
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitRun(t *testing.T, errCh <-chan error) {
	t.Helper()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for run to return")
	}
}

func TestRunAppliesStartupModeAndJournals(t *testing.T) {
	applier := &fakeApplier{}
	journal := &fakeJournal{}
	o := NewOrchestrator(OrchestratorDeps{
		Posture:     newFakePosture(model.PostureLaptop),
		Dock:        newFakeDock("eDP-1"),
		Signal:      change.NewSignal(),
		Applier:     applier,
		Journal:     journal,
		Logger:      discardLogger(),
		WaitTimeout: 10 * time.Millisecond,
	})
	startOrchestrator(t, o)

	waitFor(t, "startup transition", func() bool { return len(journal.transitions()) == 1 })
	tr := journal.transitions()[0]
	if tr.Trigger != model.TriggerStartup || tr.Plan != model.PlanLaptop || tr.Docked {
		t.Fatalf("unexpected startup transition: %+v", tr)
	}
	if tr.TransitionID == "" || !reflect.DeepEqual(tr.Displays, []string{"eDP-1"}) {
		t.Fatalf("unexpected transition identity: %+v", tr)
	}
	st := o.Status()
	if st.Last == nil || st.Last.Plan != model.PlanLaptop || st.Posture != model.PostureLaptop {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestRunReappliesOnChange(t *testing.T) {
	postureSrc := newFakePosture(model.PostureLaptop)
	signal := change.NewSignal()
	applier := &fakeApplier{}
	journal := &fakeJournal{}
	o := NewOrchestrator(OrchestratorDeps{
		Posture:     postureSrc,
		Dock:        newFakeDock("eDP-1"),
		Signal:      signal,
		Applier:     applier,
		Journal:     journal,
		Logger:      discardLogger(),
		WaitTimeout: 10 * time.Millisecond,
	})
	startOrchestrator(t, o)
	waitFor(t, "startup apply", func() bool { return len(applier.applied()) == 1 })

	postureSrc.current.Store(model.PostureTablet)
	signal.Set()
	waitFor(t, "tablet apply", func() bool { return len(applier.applied()) == 2 })

	if got := applier.applied(); got[1] != model.PlanTablet {
		t.Fatalf("expected tablet plan, got %v", got)
	}
	waitFor(t, "signal cleared", func() bool { return !signal.IsSet() })
	rows := journal.transitions()
	if rows[len(rows)-1].Trigger != model.TriggerChange {
		t.Fatalf("expected change trigger, got %+v", rows[len(rows)-1])
	}
	if st := o.Status(); !st.KeyboardHelper || !st.RotationHelper {
		t.Fatalf("expected helpers reported running: %+v", st)
	}
}

func TestRunUnknownPostureUndockedKeepsMode(t *testing.T) {
	applier := &fakeApplier{}
	journal := &fakeJournal{}
	signal := change.NewSignal()
	o := NewOrchestrator(OrchestratorDeps{
		Posture:     newFakePosture(model.PostureUnknown),
		Dock:        newFakeDock("eDP-1"),
		Signal:      signal,
		Applier:     applier,
		Journal:     journal,
		Logger:      discardLogger(),
		WaitTimeout: 10 * time.Millisecond,
	})
	startOrchestrator(t, o)

	signal.Set()
	waitFor(t, "signal consumed", func() bool { return !signal.IsSet() })
	time.Sleep(30 * time.Millisecond)
	if got := applier.applied(); len(got) != 0 {
		t.Fatalf("expected no plan applied, got %v", got)
	}
	if len(journal.transitions()) != 0 {
		t.Fatalf("expected empty journal")
	}
	if st := o.Status(); st.Last != nil {
		t.Fatalf("expected no last transition, got %+v", st.Last)
	}
}

func TestRunJournalFailureDoesNotStopLoop(t *testing.T) {
	applier := &fakeApplier{}
	signal := change.NewSignal()
	o := NewOrchestrator(OrchestratorDeps{
		Posture:     newFakePosture(model.PostureLaptop),
		Dock:        newFakeDock("eDP-1", "HDMI-1"),
		Signal:      signal,
		Applier:     applier,
		Journal:     &fakeJournal{err: errors.New("disk full")},
		Logger:      discardLogger(),
		WaitTimeout: 10 * time.Millisecond,
	})
	startOrchestrator(t, o)
	waitFor(t, "startup apply", func() bool { return len(applier.applied()) == 1 })
	signal.Set()
	waitFor(t, "second apply", func() bool { return len(applier.applied()) == 2 })
	if got := applier.applied(); got[0] != model.PlanDocked || got[1] != model.PlanDocked {
		t.Fatalf("expected docked plans, got %v", got)
	}
}

func TestStopRunsShutdownSequence(t *testing.T) {
	postureSrc := newFakePosture(model.PostureTablet)
	dockSrc := newFakeDock("eDP-1")
	applier := &fakeApplier{}
	o := NewOrchestrator(OrchestratorDeps{
		Posture:     postureSrc,
		Dock:        dockSrc,
		Applier:     applier,
		Logger:      discardLogger(),
		WaitTimeout: 10 * time.Millisecond,
	})
	_, errCh := startOrchestrator(t, o)
	waitFor(t, "startup apply", func() bool { return len(applier.applied()) == 1 })

	o.Stop()
	o.Stop()
	waitRun(t, errCh)

	if !dockSrc.stopped.Load() {
		t.Fatalf("dock watcher was not stopped")
	}
	if !postureSrc.exited.Load() {
		t.Fatalf("posture watcher did not exit")
	}
	applier.mu.Lock()
	defer applier.mu.Unlock()
	if applier.stopHelpers != 1 {
		t.Fatalf("expected helpers stopped once, got %d", applier.stopHelpers)
	}
}

func TestCancelRunsShutdownSequence(t *testing.T) {
	applier := &fakeApplier{stopHelpErr: errors.New("already gone")}
	o := NewOrchestrator(OrchestratorDeps{
		Posture:     newFakePosture(model.PostureLaptop),
		Dock:        newFakeDock("eDP-1"),
		Applier:     applier,
		Logger:      discardLogger(),
		WaitTimeout: 10 * time.Millisecond,
	})
	cancel, errCh := startOrchestrator(t, o)
	waitFor(t, "startup apply", func() bool { return len(applier.applied()) == 1 })
	cancel()
	waitRun(t, errCh)
	o.Stop()
}

type recordingRunner struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, strings.Join(append([]string{name}, args...), " "))
	return nil, nil
}

func (r *recordingRunner) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.calls
	r.calls = nil
	return out
}

type noopLauncher struct{}

func (noopLauncher) Start(_ []string) (actuator.Process, error) {
	return nil, errors.New("helpers disabled in test")
}

type idleSource struct{}

func (idleSource) Wait(ctx context.Context, timeout time.Duration) (int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (idleSource) Close() error { return nil }

type fakeEnumerator struct {
	mu   sync.Mutex
	topo model.Topology
}

func (f *fakeEnumerator) set(names ...string) {
	topo := model.Topology{}
	for _, n := range names {
		topo[n] = model.Display{Name: n}
	}
	f.mu.Lock()
	f.topo = topo
	f.mu.Unlock()
}

func (f *fakeEnumerator) Displays(_ context.Context) (model.Topology, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := model.Topology{}
	for k, v := range f.topo {
		out[k] = v
	}
	return out, nil
}

type chanBus struct {
	events chan struct{}
}

func (b *chanBus) Subscribe(_ context.Context) (<-chan struct{}, func(), error) {
	return b.events, func() {}, nil
}

func TestDockingEventAppliesDockedPlanOnce(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "syslog")
	line := "Mar  3 10:12:01 spectre kernel: [ 4211.339021] intel-vbtn INT33D6:00: unknown event index 0xcd\n"
	if err := os.WriteFile(logPath, []byte(line), 0o600); err != nil {
		t.Fatalf("write log: %v", err)
	}
	cfg := config.DefaultConfig()
	cfg.LogPath = logPath
	cfg.DockSettle = 10 * time.Millisecond
	cfg.ChangeWaitTimeout = 10 * time.Millisecond
	logger := discardLogger()

	signal := change.NewSignal()
	enum := &fakeEnumerator{}
	enum.set("eDP-1")
	bus := &chanBus{events: make(chan struct{}, 1)}
	runner := &recordingRunner{}
	store, _ := testutil.NewStore(t)

	o := NewOrchestrator(OrchestratorDeps{
		Posture:     posture.NewWatcher(cfg, idleSource{}, signal, logger),
		Dock:        dock.NewWatcher(cfg, enum, bus, signal, logger),
		Signal:      signal,
		Applier:     actuator.New(cfg, command.NewExecutorWithRunner(cfg, runner), noopLauncher{}, logger),
		Journal:     store,
		Logger:      logger,
		WaitTimeout: cfg.ChangeWaitTimeout,
	})
	startOrchestrator(t, o)

	waitFor(t, "startup laptop mode", func() bool {
		st := o.Status()
		return st.Last != nil && st.Last.Plan == model.PlanLaptop
	})
	startup := runner.take()
	if len(startup) != 3 || startup[1] != "dconf write /com/canonical/unity/interface/text-scale-factor 1.3" {
		t.Fatalf("unexpected startup commands: %#v", startup)
	}

	enum.set("eDP-1", "HDMI-1")
	bus.events <- struct{}{}

	waitFor(t, "docked mode", func() bool {
		st := o.Status()
		return st.Last != nil && st.Last.Plan == model.PlanDocked
	})
	time.Sleep(50 * time.Millisecond)

	want := []string{
		"xinput --enable SynPS/2 Synaptics TouchPad",
		"dconf write /com/canonical/unity/interface/text-scale-factor 1.0",
		"dconf write /com/ubuntu/user-interface/scale-factor {'HDMI-1': 8, 'eDP-1': 8}",
	}
	if got := runner.take(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected docked sequence exactly once, got %#v", got)
	}

	st := o.Status()
	if !st.Docked || !reflect.DeepEqual(st.Last.Displays, []string{"HDMI-1", "eDP-1"}) {
		t.Fatalf("unexpected status after docking: %+v", st)
	}
	latest, err := store.LatestTransition(context.Background())
	if err != nil {
		t.Fatalf("latest transition: %v", err)
	}
	if latest.Plan != model.PlanDocked || latest.Trigger != model.TriggerChange {
		t.Fatalf("unexpected journalled transition: %+v", latest)
	}
}
