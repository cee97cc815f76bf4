package domain

import "testing"

func TestVerdictForScore(t *testing.T) {
	th := DefaultVerdictThresholds()
	cases := []struct {
		score float64
		want  Verdict
	}{
		{1.0, VerdictConfirmed},
		{0.8, VerdictConfirmed}, // boundaries land in the higher bucket
		{0.79, VerdictPartiallyConfirmed},
		{0.6, VerdictPartiallyConfirmed},
		{0.59, VerdictInsufficientData},
		{0.4, VerdictInsufficientData},
		{0.39, VerdictStale},
		{0.2, VerdictStale},
		{0.19, VerdictContradicted},
		{0.0, VerdictContradicted},
	}
	for _, tc := range cases {
		if got := th.VerdictForScore(tc.score); got != tc.want {
			t.Errorf("score %.2f: got %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestAdjustmentForVerdict(t *testing.T) {
	cases := []struct {
		verdict Verdict
		mode    AdjustmentMode
		amount  float64
	}{
		{VerdictConfirmed, AdjustIncrease, ConfirmedBoost},
		{VerdictPartiallyConfirmed, AdjustIncrease, PartialBoost},
		{VerdictStale, AdjustDecrease, StalePenalty},
		{VerdictContradicted, AdjustSet, ContradictedCeiling},
		// Collector failures and thin data fail open.
		{VerdictError, AdjustNoChange, 0},
		{VerdictInsufficientData, AdjustNoChange, 0},
		{VerdictUnconfirmed, AdjustNoChange, 0},
	}
	for _, tc := range cases {
		mode, amount := AdjustmentForVerdict(tc.verdict)
		if mode != tc.mode || amount != tc.amount {
			t.Errorf("%s: got (%s, %.2f), want (%s, %.2f)",
				tc.verdict, mode, amount, tc.mode, tc.amount)
		}
	}
}

func TestBaseWeightsInsideGuardBand(t *testing.T) {
	sum := 0.0
	for _, et := range AllEvidenceTypes {
		w := et.BaseWeight()
		if w <= 0 {
			t.Errorf("%s: non-positive base weight %v", et, w)
		}
		sum += w
	}
	if sum != 12 {
		t.Fatalf("base weights sum to %v, want 12", sum)
	}
	if sum < 5 || sum > 30 {
		t.Fatal("base weight sum outside the active guard band")
	}
}

func TestBaseWeightUnknownType(t *testing.T) {
	if w := EvidenceType("made_up").BaseWeight(); w != 1.0 {
		t.Fatalf("unknown types fall back to 1.0, got %v", w)
	}
}
