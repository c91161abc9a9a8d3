// Package mode maps the observed device state to the ordered list of
// configuration steps that realise it.
//
// Every plan lists its steps in the same order: touchpad, text scale, window
// scale, keyboard helper, rotation helper. The window scale change also
// rescales text, so the text scale must land first.
package mode

import "github.com/g960059/devmode/internal/model"

// Resolve returns the plan for the given state. Docking takes precedence over
// posture. ok is false when the device is undocked and the posture is not
// known; the plan is empty in that case.
func Resolve(docked bool, posture model.Posture) (model.Plan, bool) {
	switch {
	case docked:
		return plan(model.PlanDocked, true, 1.0, 8, false), true
	case posture == model.PostureLaptop:
		return plan(model.PlanLaptop, true, 1.3, 8, false), true
	case posture == model.PostureTablet:
		return plan(model.PlanTablet, false, 1.0, 11, true), true
	default:
		return model.Plan{}, false
	}
}

func plan(name model.PlanName, touchpad bool, textScale float64, windowScale int, helpers bool) model.Plan {
	return model.Plan{
		Name: name,
		Actions: []model.Action{
			{Kind: model.ActionTouchpad, Enable: touchpad},
			{Kind: model.ActionTextScale, TextScale: textScale},
			{Kind: model.ActionWindowScale, WindowScale: windowScale},
			{Kind: model.ActionKeyboardHelper, Enable: helpers},
			{Kind: model.ActionRotationHelper, Enable: helpers},
		},
	}
}
