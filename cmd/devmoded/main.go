package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/g960059/devmode/internal/actuator"
	"github.com/g960059/devmode/internal/change"
	"github.com/g960059/devmode/internal/command"
	"github.com/g960059/devmode/internal/config"
	"github.com/g960059/devmode/internal/daemon"
	"github.com/g960059/devmode/internal/db"
	"github.com/g960059/devmode/internal/dock"
	"github.com/g960059/devmode/internal/posture"
)

const retentionInterval = time.Hour

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "devmoded: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	cfg   config.Config
	debug bool
}

// parseOptions builds the daemon configuration: defaults, then the --config
// file if given, then any flag set explicitly on the command line.
func parseOptions(args []string, stderr io.Writer) (options, error) {
	flagSet := pflag.NewFlagSet("devmoded", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	defaults := config.DefaultConfig()
	configPath := flagSet.String("config", "", "YAML config file")
	device := flagSet.String("device", defaults.DevicePath, "hinge input event device")
	touchpad := flagSet.String("touchpad", defaults.TouchpadName, "xinput touchpad device name")
	logPath := flagSet.String("log", defaults.LogPath, "system log carrying hinge events")
	socket := flagSet.String("socket", defaults.SocketPath, "UDS path for the status API")
	dbPath := flagSet.String("db", defaults.DBPath, "SQLite path for the transition history")
	debug := flagSet.Bool("debug", false, "enable debug logging")
	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if flagSet.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}

	cfg := defaults
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			return options{}, err
		}
		cfg = loaded
	}
	if flagSet.Changed("device") {
		cfg.DevicePath = *device
	}
	if flagSet.Changed("touchpad") {
		cfg.TouchpadName = *touchpad
	}
	if flagSet.Changed("log") {
		cfg.LogPath = *logPath
	}
	if flagSet.Changed("socket") {
		cfg.SocketPath = *socket
	}
	if flagSet.Changed("db") {
		cfg.DBPath = *dbPath
	}
	if err := cfg.Validate(); err != nil {
		return options{}, fmt.Errorf("invalid config: %w", err)
	}
	return options{cfg: cfg, debug: *debug || os.Getenv("DEVMODE_DEBUG") != ""}, nil
}

func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func run(args []string) error {
	opts, err := parseOptions(args, os.Stderr)
	if err != nil {
		return err
	}
	cfg := opts.cfg
	logger := newLogger(os.Stderr, opts.debug)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck
	if err := db.ApplyMigrations(ctx, store.DB()); err != nil {
		return err
	}

	source, err := posture.OpenInotifySource(cfg.DevicePath)
	if err != nil {
		return fmt.Errorf("watch hinge device: %w", err)
	}
	defer source.Close() //nolint:errcheck

	bus, err := dock.DialSessionBus()
	if err != nil {
		return err
	}
	defer bus.Close() //nolint:errcheck

	changed := change.NewSignal()
	executor := command.NewExecutor(cfg)
	orch := daemon.NewOrchestrator(daemon.OrchestratorDeps{
		Posture:     posture.NewWatcher(cfg, source, changed, logger.With("component", "posture")),
		Dock:        dock.NewWatcher(cfg, dock.NewXrandrEnumerator(executor), bus, changed, logger.With("component", "dock")),
		Signal:      changed,
		Applier:     actuator.New(cfg, executor, actuator.OSLauncher{}, logger.With("component", "actuator")),
		Journal:     store,
		Logger:      logger,
		WaitTimeout: cfg.ChangeWaitTimeout,
	})
	srv := daemon.NewServerWithDeps(cfg, store, orch, logger)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start(ctx)
	}()
	startRetentionLoop(ctx, store, cfg, logger)

	runErr := make(chan error, 1)
	go func() {
		runErr <- orch.Run(ctx)
	}()

	select {
	case err := <-srvErr:
		orch.Stop()
		<-runErr
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("status api: %w", err)
		}
		return nil
	case err := <-runErr:
		stop()
		<-srvErr
		return err
	}
}

type historyPurger interface {
	PurgeTransitions(ctx context.Context, cutoff time.Time) (int64, error)
}

func purgeHistory(ctx context.Context, store historyPurger, ttl time.Duration, now time.Time, logger *slog.Logger) {
	if ttl <= 0 {
		return
	}
	n, err := store.PurgeTransitions(ctx, now.Add(-ttl))
	if err != nil {
		logger.Warn("history purge failed", "err", err)
		return
	}
	if n > 0 {
		logger.Info("history purged", "rows", n)
	}
}

func startRetentionLoop(ctx context.Context, store historyPurger, cfg config.Config, logger *slog.Logger) {
	run := func() {
		purgeHistory(ctx, store, cfg.HistoryTTL, time.Now().UTC(), logger)
	}

	run()
	go func() {
		ticker := time.NewTicker(retentionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}
