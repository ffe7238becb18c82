package model

import "testing"

func TestIVPercentage(t *testing.T) {
	cases := []struct {
		ivs  IVs
		want string
	}{
		{IVs{31, 31, 31, 31, 31, 31}, "1"},
		{IVs{}, "0"},
		{IVs{31, 31, 31, 31, 31, 19}, "0.935484"},
	}
	for _, tc := range cases {
		c := Creature{IVs: tc.ivs}
		if got := c.IVPercentage().String(); got != tc.want {
			t.Errorf("IVPercentage(%+v) = %s, want %s", tc.ivs, got, tc.want)
		}
	}
}

func TestMaxXP(t *testing.T) {
	if got := (Creature{Level: 50}).MaxXP(); got != 1500 {
		t.Errorf("MaxXP at level 50 = %d, want 1500", got)
	}
	if got := (Creature{Level: 1}).MaxXP(); got != 275 {
		t.Errorf("MaxXP at level 1 = %d, want 275", got)
	}
}
