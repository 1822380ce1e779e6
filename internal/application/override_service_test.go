package application

import (
	"context"
	"errors"
	"testing"

	"github.com/example/doorsync/internal/persistence"
)

func TestOverrideService_UpdateNormalizesNames(t *testing.T) {
	t.Parallel()

	store := &stubOverrideStore{}
	service := NewOverrideService(store, officeHoursCatalog())

	overrides := persistence.EventOverrides{
		" Youth Group ": {DoorOverrides: map[string]persistence.DoorOverride{
			"gym": {Windows: []persistence.OverrideWindow{{OpenTime: "18:00", CloseTime: "21:00"}}},
		}},
	}
	if err := service.Update(context.Background(), overrides); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if _, ok := store.overrides["youth group"]; !ok {
		t.Fatalf("expected lowercased trimmed key, got %v", store.overrides)
	}
}

func TestOverrideService_UpdateRejectsInvalid(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		overrides persistence.EventOverrides
		wantField string
	}{
		"empty event name": {
			overrides: persistence.EventOverrides{"  ": {}},
			wantField: "overrides",
		},
		"unknown door key": {
			overrides: persistence.EventOverrides{
				"youth group": {DoorOverrides: map[string]persistence.DoorOverride{"venus": {}}},
			},
			wantField: "youth group.venus",
		},
		"bad open time": {
			overrides: persistence.EventOverrides{
				"youth group": {DoorOverrides: map[string]persistence.DoorOverride{
					"gym": {Windows: []persistence.OverrideWindow{{OpenTime: "25:99", CloseTime: "21:00"}}},
				}},
			},
			wantField: "youth group.gym.windows[0].openTime",
		},
		"bad close time": {
			overrides: persistence.EventOverrides{
				"youth group": {DoorOverrides: map[string]persistence.DoorOverride{
					"gym": {Windows: []persistence.OverrideWindow{{OpenTime: "18:00", CloseTime: "later"}}},
				}},
			},
			wantField: "youth group.gym.windows[0].closeTime",
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			store := &stubOverrideStore{}
			service := NewOverrideService(store, officeHoursCatalog())

			err := service.Update(context.Background(), tc.overrides)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if _, ok := vErr.FieldErrors[tc.wantField]; !ok {
				t.Fatalf("expected field %q in %v", tc.wantField, vErr.FieldErrors)
			}
			if store.saves != 0 {
				t.Fatalf("expected rejected overrides not to be saved")
			}
		})
	}
}

func TestOverrideService_UpdateAcceptsSuppression(t *testing.T) {
	t.Parallel()

	store := &stubOverrideStore{}
	service := NewOverrideService(store, officeHoursCatalog())

	overrides := persistence.EventOverrides{
		"bell choir": {DoorOverrides: map[string]persistence.DoorOverride{
			"gym": {Windows: []persistence.OverrideWindow{}},
		}},
	}
	if err := service.Update(context.Background(), overrides); err != nil {
		t.Fatalf("expected empty window list to pass as suppression, got %v", err)
	}
}

func TestOverrideService_SnapshotParsesWindows(t *testing.T) {
	t.Parallel()

	store := &stubOverrideStore{overrides: persistence.EventOverrides{
		"youth group": {DoorOverrides: map[string]persistence.DoorOverride{
			"gym": {Windows: []persistence.OverrideWindow{{OpenTime: "18:00", CloseTime: "21:30"}}},
		}},
		"bell choir": {DoorOverrides: map[string]persistence.DoorOverride{
			"gym": {Windows: []persistence.OverrideWindow{}},
		}},
	}}
	service := NewOverrideService(store, officeHoursCatalog())

	overrides, err := service.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	youth, ok := overrides.Resolve("Youth Group", "gym")
	if !ok {
		t.Fatalf("expected youth group override to resolve")
	}
	if len(youth.Windows) != 1 || youth.Windows[0].Open.Hour != 18 || youth.Windows[0].Close.Minute != 30 {
		t.Fatalf("unexpected parsed windows: %+v", youth.Windows)
	}

	choir, ok := overrides.Resolve("bell choir", "gym")
	if !ok {
		t.Fatalf("expected bell choir suppression to resolve")
	}
	if len(choir.Windows) != 0 {
		t.Fatalf("expected suppression to keep zero windows, got %+v", choir.Windows)
	}
}

func TestOverrideService_SnapshotDropsBrokenWindows(t *testing.T) {
	t.Parallel()

	// A hand-edited file with windows that no longer parse must not collapse
	// into a suppression; the door override disappears instead.
	store := &stubOverrideStore{overrides: persistence.EventOverrides{
		"youth group": {DoorOverrides: map[string]persistence.DoorOverride{
			"gym": {Windows: []persistence.OverrideWindow{{OpenTime: "whenever", CloseTime: "21:00"}}},
		}},
	}}
	service := NewOverrideService(store, officeHoursCatalog())

	overrides, err := service.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if _, ok := overrides.Resolve("youth group", "gym"); ok {
		t.Fatalf("expected broken override to be dropped, not treated as suppression")
	}
}
