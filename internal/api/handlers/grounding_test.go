package handlers

import "testing"

func TestClampCap(t *testing.T) {
	cases := []struct {
		name           string
		requested, max int
		want           int
	}{
		{"zero means server default", 0, 500, 500},
		{"negative means server default", -3, 500, 500},
		{"smaller request honored", 10, 500, 10},
		{"exact max honored", 500, 500, 500},
		{"larger request bounded", 900, 500, 500},
	}
	for _, tc := range cases {
		if got := clampCap(tc.requested, tc.max); got != tc.want {
			t.Errorf("%s: clampCap(%d, %d) = %d, want %d",
				tc.name, tc.requested, tc.max, got, tc.want)
		}
	}
}
