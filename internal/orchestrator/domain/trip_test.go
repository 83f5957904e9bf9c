package domain

import (
	"errors"
	"testing"

	"av-trip/pkg/faults"
)

func TestNewTrip(t *testing.T) {
	trip, err := NewTrip("T1", "R1", "P", "Q", "V1")
	if err != nil {
		t.Fatalf("NewTrip: %v", err)
	}
	if trip.Status() != StatusConfirmed {
		t.Errorf("new trip status = %s, want CONFIRMED", trip.Status())
	}
	if trip.CreatedAt().IsZero() {
		t.Error("new trip has zero creation time")
	}

	if _, err := NewTrip("", "R1", "P", "Q", "V1"); !errors.Is(err, faults.ErrInvalidArgument) {
		t.Errorf("NewTrip with empty id = %v, want ErrInvalidArgument", err)
	}
}

func TestLifecycle(t *testing.T) {
	trip, err := NewTrip("T1", "R1", "P", "Q", "V1")
	if err != nil {
		t.Fatalf("NewTrip: %v", err)
	}

	if err := trip.Complete(); !errors.Is(err, faults.ErrInvalidState) {
		t.Errorf("Complete from CONFIRMED = %v, want ErrInvalidState", err)
	}

	if err := trip.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := trip.Start(); !errors.Is(err, faults.ErrInvalidState) {
		t.Errorf("second Start = %v, want ErrInvalidState", err)
	}

	if err := trip.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !trip.IsTerminal() {
		t.Error("completed trip not terminal")
	}
}

func TestCancel(t *testing.T) {
	trip, err := NewTrip("T1", "R1", "P", "Q", "V1")
	if err != nil {
		t.Fatalf("NewTrip: %v", err)
	}
	if !trip.CanBeCancelled() {
		t.Error("CONFIRMED trip not cancellable")
	}
	if err := trip.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if !trip.IsTerminal() {
		t.Error("cancelled trip not terminal")
	}
	if err := trip.Cancel(); !errors.Is(err, faults.ErrInvalidState) {
		t.Errorf("second Cancel = %v, want ErrInvalidState", err)
	}
}

func TestCancelInProgress(t *testing.T) {
	trip, err := NewTrip("T1", "R1", "P", "Q", "V1")
	if err != nil {
		t.Fatalf("NewTrip: %v", err)
	}
	if err := trip.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if trip.CanBeCancelled() {
		t.Error("IN_PROGRESS trip reported cancellable")
	}
	if err := trip.Cancel(); !errors.Is(err, faults.ErrInvalidState) {
		t.Errorf("Cancel of IN_PROGRESS = %v, want ErrInvalidState", err)
	}
}

func TestStatusIsValid(t *testing.T) {
	for _, s := range []TripStatus{StatusRequested, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled} {
		if !s.IsValid() {
			t.Errorf("%s reported invalid", s)
		}
	}
	if TripStatus("BOGUS").IsValid() {
		t.Error("bogus status reported valid")
	}
}
