package repository

import (
	"context"
	"errors"
	"testing"

	"av-trip/internal/orchestrator/domain"
	"av-trip/pkg/faults"
)

func newTrip(t *testing.T, id string) *domain.Trip {
	t.Helper()
	trip, err := domain.NewTrip(id, "R1", "P", "Q", "V1")
	if err != nil {
		t.Fatalf("NewTrip: %v", err)
	}
	return trip
}

func TestSaveAndFind(t *testing.T) {
	repo := NewMemoryTripRepository()
	ctx := context.Background()

	trip := newTrip(t, "T1")
	if err := repo.Save(ctx, trip); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.FindByID(ctx, "T1")
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.ID() != "T1" || got.Status() != domain.StatusConfirmed {
		t.Errorf("retrieved trip = %s/%s", got.ID(), got.Status())
	}

	if err := repo.Save(ctx, newTrip(t, "T1")); !errors.Is(err, faults.ErrAlreadyExists) {
		t.Errorf("duplicate Save = %v, want ErrAlreadyExists", err)
	}
}

func TestUpdate(t *testing.T) {
	repo := NewMemoryTripRepository()
	ctx := context.Background()

	trip := newTrip(t, "T1")
	if err := repo.Save(ctx, trip); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := trip.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := repo.Update(ctx, trip); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := repo.FindByID(ctx, "T1")
	if got.Status() != domain.StatusInProgress {
		t.Errorf("status after update = %s, want IN_PROGRESS", got.Status())
	}

	if err := repo.Update(ctx, newTrip(t, "T9")); !errors.Is(err, faults.ErrNotFound) {
		t.Errorf("Update of unknown trip = %v, want ErrNotFound", err)
	}
}

func TestFindByIDReturnsCopy(t *testing.T) {
	repo := NewMemoryTripRepository()
	ctx := context.Background()

	if err := repo.Save(ctx, newTrip(t, "T1")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutating a retrieved entity must not leak into the store.
	got, _ := repo.FindByID(ctx, "T1")
	if err := got.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	fresh, _ := repo.FindByID(ctx, "T1")
	if fresh.Status() != domain.StatusConfirmed {
		t.Errorf("stored status = %s, want CONFIRMED", fresh.Status())
	}
}

func TestCountTrips(t *testing.T) {
	repo := NewMemoryTripRepository()
	ctx := context.Background()

	if n, err := repo.CountTrips(ctx); err != nil || n != 0 {
		t.Errorf("CountTrips on empty store = %d, %v", n, err)
	}
	for _, id := range []string{"T1", "T2", "T3"} {
		if err := repo.Save(ctx, newTrip(t, id)); err != nil {
			t.Fatalf("Save(%s): %v", id, err)
		}
	}
	if n, err := repo.CountTrips(ctx); err != nil || n != 3 {
		t.Errorf("CountTrips = %d, %v, want 3", n, err)
	}
}

func TestFindByStatus(t *testing.T) {
	repo := NewMemoryTripRepository()
	ctx := context.Background()

	for _, id := range []string{"T1", "T2"} {
		if err := repo.Save(ctx, newTrip(t, id)); err != nil {
			t.Fatalf("Save(%s): %v", id, err)
		}
	}
	started := newTrip(t, "T3")
	if err := repo.Save(ctx, started); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := started.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := repo.Update(ctx, started); err != nil {
		t.Fatalf("Update: %v", err)
	}

	confirmed, err := repo.FindByStatus(ctx, domain.StatusConfirmed)
	if err != nil {
		t.Fatalf("FindByStatus: %v", err)
	}
	if len(confirmed) != 2 {
		t.Errorf("confirmed count = %d, want 2", len(confirmed))
	}

	inProgress, _ := repo.FindByStatus(ctx, domain.StatusInProgress)
	if len(inProgress) != 1 || inProgress[0].ID() != "T3" {
		t.Errorf("in-progress trips = %+v", inProgress)
	}
}
