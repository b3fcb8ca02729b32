package intcoord

import "testing"

func TestInBounds(t *testing.T) {
	cases := []struct {
		c    Coord
		w, h int
		want bool
	}{
		{Coord{0, 0}, 4, 4, true},
		{Coord{3, 3}, 4, 4, true},
		{Coord{4, 0}, 4, 4, false},
		{Coord{-1, 0}, 4, 4, false},
	}
	for _, tc := range cases {
		if got := tc.c.InBounds(tc.w, tc.h); got != tc.want {
			t.Errorf("%v.InBounds(%d,%d) = %v, want %v", tc.c, tc.w, tc.h, got, tc.want)
		}
	}
}

func TestClamp(t *testing.T) {
	got := Coord{-5, 10}.Clamp(4, 4)
	want := Coord{0, 3}
	if got != want {
		t.Errorf("Clamp = %v, want %v", got, want)
	}
}

func TestManhattanDist(t *testing.T) {
	if got := ManhattanDist(Coord{0, 0}, Coord{3, -4}); got != 7 {
		t.Errorf("ManhattanDist = %d, want 7", got)
	}
}
