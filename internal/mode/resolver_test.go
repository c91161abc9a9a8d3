package mode

import (
	"reflect"
	"testing"

	"github.com/g960059/devmode/internal/model"
)

func TestResolveDecisionTable(t *testing.T) {
	cases := []struct {
		docked  bool
		posture model.Posture
		name    model.PlanName
		want    []string
	}{
		{
			docked: true, posture: model.PostureTablet, name: model.PlanDocked,
			want: []string{"touchpad=on", "text-scale=1.0", "window-scale=8", "keyboard-helper=off", "rotation-helper=off"},
		},
		{
			docked: true, posture: model.PostureUnknown, name: model.PlanDocked,
			want: []string{"touchpad=on", "text-scale=1.0", "window-scale=8", "keyboard-helper=off", "rotation-helper=off"},
		},
		{
			docked: false, posture: model.PostureLaptop, name: model.PlanLaptop,
			want: []string{"touchpad=on", "text-scale=1.3", "window-scale=8", "keyboard-helper=off", "rotation-helper=off"},
		},
		{
			docked: false, posture: model.PostureTablet, name: model.PlanTablet,
			want: []string{"touchpad=off", "text-scale=1.0", "window-scale=11", "keyboard-helper=on", "rotation-helper=on"},
		},
	}
	for _, tc := range cases {
		p, ok := Resolve(tc.docked, tc.posture)
		if !ok {
			t.Fatalf("docked=%v posture=%s: expected a plan", tc.docked, tc.posture)
		}
		if p.Name != tc.name {
			t.Fatalf("docked=%v posture=%s: expected plan %s, got %s", tc.docked, tc.posture, tc.name, p.Name)
		}
		if got := p.Describe(); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("docked=%v posture=%s: unexpected actions %#v", tc.docked, tc.posture, got)
		}
	}
}

func TestResolveUnknownPostureUndocked(t *testing.T) {
	p, ok := Resolve(false, model.PostureUnknown)
	if ok {
		t.Fatalf("expected unresolved posture")
	}
	if len(p.Actions) != 0 {
		t.Fatalf("expected no actions, got %#v", p.Actions)
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	for _, docked := range []bool{true, false} {
		for _, posture := range []model.Posture{model.PostureLaptop, model.PostureTablet, model.PostureUnknown} {
			first, okFirst := Resolve(docked, posture)
			second, okSecond := Resolve(docked, posture)
			if okFirst != okSecond || !reflect.DeepEqual(first, second) {
				t.Fatalf("docked=%v posture=%s: resolve is not deterministic", docked, posture)
			}
		}
	}
}

func TestTabletSetsTextScaleBeforeWindowScale(t *testing.T) {
	p, _ := Resolve(false, model.PostureTablet)
	text, window := -1, -1
	for i, a := range p.Actions {
		switch a.Kind {
		case model.ActionTextScale:
			text = i
		case model.ActionWindowScale:
			window = i
		}
	}
	if text < 0 || window < 0 || text > window {
		t.Fatalf("text scale must precede window scale: text=%d window=%d", text, window)
	}
}
