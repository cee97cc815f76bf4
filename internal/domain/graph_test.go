package domain

import (
	"math"
	"testing"
)

func TestClampStrength(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0.5, 0.5},
		{0, 0},
		{1, 1},
		{-0.3, 0},
		{1.7, 1},
		{math.NaN(), 0},
	}
	for _, tc := range cases {
		if got := ClampStrength(tc.in); got != tc.want {
			t.Errorf("ClampStrength(%v): got %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestEvidenceSourceNodeID(t *testing.T) {
	a := EvidenceSourceNodeID("codebase_scan")
	if a != EvidenceSourceNodeID("codebase_scan") {
		t.Fatal("the same source must always map to the same node")
	}
	if a == EvidenceSourceNodeID("other_scan") {
		t.Fatal("different sources must map to different nodes")
	}
}
