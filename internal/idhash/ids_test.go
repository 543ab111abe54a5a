package idhash

import (
	"testing"
	"time"

	"sst-bot/internal/domain"
)

func TestComputeLevelID(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	got := ComputeLevelID("EUR_USD", day, domain.LevelHigh)
	if len(got) != 64 {
		t.Errorf("ComputeLevelID() length = %d, want 64", len(got))
	}

	// Determinism: same inputs produce the same id.
	got2 := ComputeLevelID("EUR_USD", day, domain.LevelHigh)
	if got != got2 {
		t.Errorf("ComputeLevelID() not deterministic: %s != %s", got, got2)
	}

	// Side, instrument and session date each change the id.
	if got == ComputeLevelID("EUR_USD", day, domain.LevelLow) {
		t.Error("expected different id for different side")
	}
	if got == ComputeLevelID("USD_JPY", day, domain.LevelHigh) {
		t.Error("expected different id for different instrument")
	}
	if got == ComputeLevelID("EUR_USD", day.AddDate(0, 0, 1), domain.LevelHigh) {
		t.Error("expected different id for different session date")
	}
}

func TestComputeLevelID_NormalizesTimezone(t *testing.T) {
	utc := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	ny, _ := time.LoadLocation("America/New_York")
	sameInstant := utc.In(ny)

	if ComputeLevelID("EUR_USD", utc, domain.LevelHigh) != ComputeLevelID("EUR_USD", sameInstant, domain.LevelHigh) {
		t.Error("expected identical id regardless of time zone representation")
	}
}

func TestComputeSignalID(t *testing.T) {
	levelID := ComputeLevelID("EUR_USD", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), domain.LevelHigh)

	got := ComputeSignalID("EUR_USD", levelID, domain.SetupCHOCH, domain.DirectionSell, 1700000000000)
	if len(got) != 64 {
		t.Errorf("ComputeSignalID() length = %d, want 64", len(got))
	}

	got2 := ComputeSignalID("EUR_USD", levelID, domain.SetupCHOCH, domain.DirectionSell, 1700000000000)
	if got != got2 {
		t.Errorf("ComputeSignalID() not deterministic: %s != %s", got, got2)
	}

	if got == ComputeSignalID("EUR_USD", levelID, domain.SetupBOS, domain.DirectionSell, 1700000000000) {
		t.Error("expected different id for different setup")
	}
	if got == ComputeSignalID("EUR_USD", levelID, domain.SetupCHOCH, domain.DirectionBuy, 1700000000000) {
		t.Error("expected different id for different direction")
	}
	if got == ComputeSignalID("EUR_USD", levelID, domain.SetupCHOCH, domain.DirectionSell, 1700000060000) {
		t.Error("expected different id for different trigger time")
	}
}
