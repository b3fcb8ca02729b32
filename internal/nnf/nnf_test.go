package nnf

import (
	"testing"

	"github.com/cwbudde/holefill/internal/raster"
)

func TestInitOnlyPicksEligibleSources(t *testing.T) {
	mask := raster.New[bool](4, 4)
	mask.Set(3, 3, true)
	mask.Set(0, 0, true)

	source := raster.New[raster.RGB](4, 4)
	target := raster.New[raster.RGB](4, 4)
	targetMask := raster.NewFilled[bool](4, 4, true)
	weights := raster.NewFilled[float64](4, 4, 1.0)

	rng := NewRNG(1)
	f, err := Init(source, target, mask, targetMask, weights, 1, rng)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			c := f.Coords.At(x, y)
			if !mask.At(c.X, c.Y) {
				t.Fatalf("pixel (%d,%d) assigned ineligible source %v", x, y, c)
			}
		}
	}
}

func TestInitSkipsPixelsOutsideTargetMask(t *testing.T) {
	mask := raster.NewFilled[bool](4, 4, true)
	source := raster.New[raster.RGB](4, 4)
	target := raster.New[raster.RGB](4, 4)
	targetMask := raster.New[bool](4, 4) // nothing eligible to fill
	weights := raster.NewFilled[float64](4, 4, 1.0)

	rng := NewRNG(1)
	f, err := Init(source, target, mask, targetMask, weights, 1, rng)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	zero := New(4, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if f.Coords.At(x, y) != zero.Coords.At(x, y) {
				t.Fatalf("pixel (%d,%d) outside target mask should be left unassigned", x, y)
			}
		}
	}
}

func TestInitRejectsEmptyMask(t *testing.T) {
	mask := raster.New[bool](2, 2)
	source := raster.New[raster.RGB](2, 2)
	target := raster.New[raster.RGB](2, 2)
	targetMask := raster.NewFilled[bool](2, 2, true)
	weights := raster.NewFilled[float64](2, 2, 1.0)

	rng := NewRNG(1)
	if _, err := Init(source, target, mask, targetMask, weights, 1, rng); err == nil {
		t.Fatal("expected error for empty source mask")
	}
}

func TestUpsampleScalesCoordinates(t *testing.T) {
	mask := raster.NewFilled[bool](8, 8, true)
	coarseMask := raster.NewFilled[bool](4, 4, true)
	source := raster.New[raster.RGB](4, 4)
	target := raster.New[raster.RGB](4, 4)
	targetMask := raster.NewFilled[bool](4, 4, true)
	weights := raster.NewFilled[float64](4, 4, 1.0)

	rng := NewRNG(2)
	coarse, err := Init(source, target, coarseMask, targetMask, weights, 1, rng)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	fine := Upsample(coarse, 8, 8, mask)
	if fine.Coords.Width() != 8 || fine.Coords.Height() != 8 {
		t.Fatalf("unexpected upsample size %dx%d", fine.Coords.Width(), fine.Coords.Height())
	}
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			want := coarse.Coords.At(x/2, y/2).Scale(2)
			if got := fine.Coords.At(x, y); got != want {
				t.Fatalf("fine (%d,%d) = %v, want %v (coarse source scaled by 2)", x, y, got, want)
			}
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	f := New(2, 2)
	clone := f.Clone()
	clone.Costs.Set(0, 0, 5)
	if f.Costs.At(0, 0) == 5 {
		t.Fatal("Clone must not alias the original cost buffer")
	}
}
