package raster

import "testing"

func TestSetAt(t *testing.T) {
	img := New[float64](4, 3)
	img.Set(2, 1, 9.5)
	if got := img.At(2, 1); got != 9.5 {
		t.Errorf("At(2,1) = %v, want 9.5", got)
	}
	if img.At(0, 0) != 0 {
		t.Errorf("zero value not preserved elsewhere")
	}
}

func TestClone(t *testing.T) {
	img := NewFilled(2, 2, RGB{1, 0, 0})
	clone := img.Clone()
	clone.Set(0, 0, RGB{0, 1, 0})
	if img.At(0, 0) == clone.At(0, 0) {
		t.Errorf("clone aliases original backing array")
	}
}

func TestRecreateReuse(t *testing.T) {
	img := New[bool](2, 2)
	img.Set(0, 0, true)
	img.Recreate(2, 2)
	if img.At(0, 0) {
		t.Errorf("Recreate with same size must clear pixels")
	}
	img.Recreate(3, 5)
	if img.Width() != 3 || img.Height() != 5 {
		t.Errorf("Recreate did not resize: got %dx%d", img.Width(), img.Height())
	}
}

func TestForEach(t *testing.T) {
	img := New[int](2, 2)
	img.Set(1, 1, 7)
	sum := 0
	img.ForEach(func(x, y int, v int) { sum += v })
	if sum != 7 {
		t.Errorf("ForEach sum = %d, want 7", sum)
	}
}
