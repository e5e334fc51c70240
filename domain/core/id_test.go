package core

import (
	"errors"
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}
}

func TestParseRunID(t *testing.T) {
	id := NewRunID()
	parsed, err := ParseRunID(id.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed != id {
		t.Errorf("expected %s, got %s", id, parsed)
	}

	if _, err := ParseRunID("   "); err == nil {
		t.Error("expected error for blank run ID")
	}
	if _, err := ParseRunID("not-a-uuid"); err == nil {
		t.Error("expected error for malformed run ID")
	}
}

func TestSeriesKeyString(t *testing.T) {
	if got := (SeriesKey{Metric: "pts", Entity: "bell"}).String(); got != "pts/bell" {
		t.Errorf("expected pts/bell, got %s", got)
	}
	if got := (SeriesKey{Metric: "team_to_pct"}).String(); got != "team_to_pct" {
		t.Errorf("expected team_to_pct, got %s", got)
	}
}

func TestErrorHelpers(t *testing.T) {
	cfg := NewConfigurationError("fold_count", "exceeds observations")
	if !IsConfigurationError(cfg) || IsInsufficientData(cfg) {
		t.Errorf("configuration error misclassified: %v", cfg)
	}

	data := NewInsufficientDataError("sample", 1, 2)
	if !IsInsufficientData(data) {
		t.Errorf("insufficient data error misclassified: %v", data)
	}

	deg := NewDegenerateError("pooled sample")
	if !IsDegenerate(deg) || !errors.Is(deg, ErrNumericDegenerate) {
		t.Errorf("degenerate error misclassified: %v", deg)
	}

	if !IsNotFoundError(NewNotFoundError("run", "abc")) || !IsNotFoundError(ErrRunNotFound) {
		t.Error("not found errors misclassified")
	}
}
