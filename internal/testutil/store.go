package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/g960059/devmode/internal/db"
	"github.com/g960059/devmode/internal/model"
)

func NewStore(t *testing.T) (*db.Store, context.Context) {
	t.Helper()
	ctx := context.Background()
	store, err := db.Open(ctx, filepath.Join(t.TempDir(), "devmode-test.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	if err := db.ApplyMigrations(ctx, store.DB()); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return store, ctx
}

// SeedTransition journals a transition for plan applied at the given time.
func SeedTransition(t *testing.T, store *db.Store, ctx context.Context, id string, plan model.PlanName, at time.Time) model.Transition {
	t.Helper()
	tr := model.Transition{
		TransitionID: id,
		Trigger:      model.TriggerChange,
		Posture:      model.PostureLaptop,
		Docked:       plan == model.PlanDocked,
		Plan:         plan,
		Actions:      []string{"touchpad=on"},
		Displays:     []string{"eDP-1"},
		AppliedAt:    at.UTC(),
	}
	if plan == model.PlanTablet {
		tr.Posture = model.PostureTablet
	}
	if err := store.InsertTransition(ctx, tr); err != nil {
		t.Fatalf("seed transition: %v", err)
	}
	return tr
}
