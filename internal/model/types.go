package model

import (
	"fmt"
	"sort"
	"time"
)

// Posture is the physical state of the convertible hinge.
type Posture string

const (
	PostureUnknown Posture = "unknown"
	PostureLaptop  Posture = "laptop"
	PostureTablet  Posture = "tablet"
)

// Display is one connected output as reported by the display enumerator.
type Display struct {
	Name     string
	Geometry string
	Primary  bool
}

// Topology maps output name to display. It is rebuilt on every query.
type Topology map[string]Display

// Docked reports whether anything other than the internal panel alone is
// connected. An empty topology counts as docked.
func (t Topology) Docked(internalOutput string) bool {
	if len(t) != 1 {
		return true
	}
	_, ok := t[internalOutput]
	return !ok
}

// Names returns the output names in sorted order.
func (t Topology) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type ActionKind string

const (
	ActionTouchpad       ActionKind = "touchpad"
	ActionTextScale      ActionKind = "text-scale"
	ActionWindowScale    ActionKind = "window-scale"
	ActionKeyboardHelper ActionKind = "keyboard-helper"
	ActionRotationHelper ActionKind = "rotation-helper"
)

// Action is one configuration step. Enable is used by the touchpad and helper
// kinds, TextScale and WindowScale by the scale kinds.
type Action struct {
	Kind        ActionKind
	Enable      bool
	TextScale   float64
	WindowScale int
}

func (a Action) String() string {
	switch a.Kind {
	case ActionTextScale:
		return fmt.Sprintf("%s=%.1f", a.Kind, a.TextScale)
	case ActionWindowScale:
		return fmt.Sprintf("%s=%d", a.Kind, a.WindowScale)
	default:
		if a.Enable {
			return fmt.Sprintf("%s=on", a.Kind)
		}
		return fmt.Sprintf("%s=off", a.Kind)
	}
}

type PlanName string

const (
	PlanDocked PlanName = "docked"
	PlanLaptop PlanName = "laptop"
	PlanTablet PlanName = "tablet"
)

// Plan is an ordered list of actions for one resolved mode.
type Plan struct {
	Name    PlanName
	Actions []Action
}

// Describe renders the actions in order.
func (p Plan) Describe() []string {
	out := make([]string, 0, len(p.Actions))
	for _, a := range p.Actions {
		out = append(out, a.String())
	}
	return out
}

type Trigger string

const (
	TriggerStartup Trigger = "startup"
	TriggerChange  Trigger = "change"
)

// Transition is a journalled application of a plan.
type Transition struct {
	TransitionID string
	Trigger      Trigger
	Posture      Posture
	Docked       bool
	Plan         PlanName
	Actions      []string
	Displays     []string
	AppliedAt    time.Time
}

// Error codes defined by API contract.
const (
	ErrRefInvalid         = "E_REF_INVALID"
	ErrRefNotFound        = "E_REF_NOT_FOUND"
	ErrPreconditionFailed = "E_PRECONDITION_FAILED"
	ErrCommandFailed      = "E_COMMAND_FAILED"
)
