// Package actuator turns resolved plans into external commands. Every step is
// best effort: failures are logged and the remaining steps still run.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/g960059/devmode/internal/command"
	"github.com/g960059/devmode/internal/config"
	"github.com/g960059/devmode/internal/model"
)

type Actuator struct {
	cfg      config.Config
	executor *command.Executor
	keyboard *Helper
	rotation *Helper
	logger   *slog.Logger
}

func New(cfg config.Config, executor *command.Executor, launcher Launcher, logger *slog.Logger) *Actuator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Actuator{
		cfg:      cfg,
		executor: executor,
		keyboard: NewHelper("keyboard", cfg.KeyboardCommand, launcher),
		rotation: NewHelper("rotation", cfg.RotationCommand, launcher),
		logger:   logger,
	}
}

// Apply runs the plan's actions in order.
func (a *Actuator) Apply(ctx context.Context, plan model.Plan) {
	for _, action := range plan.Actions {
		if ctx.Err() != nil {
			return
		}
		if err := a.apply(ctx, action); err != nil {
			a.logger.Warn("action failed", "plan", plan.Name, "action", action.String(), "err", err)
			continue
		}
		a.logger.Debug("action applied", "plan", plan.Name, "action", action.String())
	}
}

func (a *Actuator) apply(ctx context.Context, action model.Action) error {
	switch action.Kind {
	case model.ActionTouchpad:
		return a.SetTouchpad(ctx, action.Enable)
	case model.ActionTextScale:
		return a.SetTextScale(ctx, action.TextScale)
	case model.ActionWindowScale:
		return a.SetWindowScale(ctx, action.WindowScale)
	case model.ActionKeyboardHelper:
		return a.toggle(a.keyboard, action.Enable)
	case model.ActionRotationHelper:
		return a.toggle(a.rotation, action.Enable)
	default:
		return fmt.Errorf("unsupported action kind: %s", action.Kind)
	}
}

func (a *Actuator) SetTouchpad(ctx context.Context, enable bool) error {
	flag := "--disable"
	if enable {
		flag = "--enable"
	}
	return a.run(ctx, []string{"xinput", flag, a.cfg.TouchpadName})
}

func (a *Actuator) SetTextScale(ctx context.Context, factor float64) error {
	return a.run(ctx, []string{"dconf", "write", a.cfg.TextScaleKey, fmt.Sprintf("%.1f", factor)})
}

// SetWindowScale writes the per-output scale map. The external output keeps
// the base factor; only the internal panel follows factor.
func (a *Actuator) SetWindowScale(ctx context.Context, factor int) error {
	val := fmt.Sprintf("{'%s': 8, '%s': %d}", a.cfg.ExternalOutput, a.cfg.InternalOutput, factor)
	return a.run(ctx, []string{"dconf", "write", a.cfg.WindowScaleKey, val})
}

// StopHelpers terminates both helper programs.
func (a *Actuator) StopHelpers() error {
	return errors.Join(a.keyboard.Stop(), a.rotation.Stop())
}

// HelpersRunning reports the keyboard and rotation helper state.
func (a *Actuator) HelpersRunning() (keyboard, rotation bool) {
	return a.keyboard.Running(), a.rotation.Running()
}

func (a *Actuator) run(ctx context.Context, cmd []string) error {
	res, err := a.executor.Run(ctx, cmd)
	if err != nil {
		return err
	}
	a.logger.Debug("command finished", "command", cmd[0], "duration", res.Duration)
	return nil
}

func (a *Actuator) toggle(h *Helper, enable bool) error {
	var err error
	if enable {
		err = h.Start()
	} else {
		err = h.Stop()
	}
	if err != nil {
		return err
	}
	a.logger.Debug("helper toggled", "helper", h.Name(), "enable", enable, "running", h.Running())
	return nil
}
