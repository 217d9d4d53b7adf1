package pricing

import (
	"math"
	"testing"
)

// TestEstimateKnownModel checks arithmetic against the table rates.
func TestEstimateKnownModel(t *testing.T) {
	got := Estimate("gpt-4o", 1_000_000, 1_000_000)
	want := 12.50
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("Estimate() = %v, want %v", got, want)
	}
}

// TestEstimateUnknownModelUsesDefault checks the conservative fallback rate.
func TestEstimateUnknownModelUsesDefault(t *testing.T) {
	got := Estimate("some-future-model", 2_000_000, 1_000_000)
	want := 2*1.00 + 1*3.00
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("Estimate() = %v, want %v", got, want)
	}

	if _, known := RateFor("some-future-model"); known {
		t.Fatal("unknown model reported as known")
	}
	if _, known := RateFor("deepseek-chat"); !known {
		t.Fatal("deepseek-chat should be in the table")
	}
}

// TestEstimateZeroTokens checks that empty usage costs nothing.
func TestEstimateZeroTokens(t *testing.T) {
	if got := Estimate("deepseek-chat", 0, 0); got != 0 {
		t.Fatalf("Estimate() = %v, want 0", got)
	}
}
