package blend

import (
	"testing"

	"github.com/cwbudde/holefill/internal/intcoord"
	"github.com/cwbudde/holefill/internal/nnf"
	"github.com/cwbudde/holefill/internal/raster"
)

func TestRunPreservesNonHolePixels(t *testing.T) {
	const size, patch = 9, 3
	prev := raster.New[raster.RGB](size, size)
	source := raster.New[raster.RGB](size, size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := raster.RGB{R: float64(x) / size, G: float64(y) / size, B: 0.5}
			prev.Set(x, y, c)
			source.Set(x, y, c)
		}
	}
	sourceMask := raster.NewFilled[bool](size, size, true)
	targetMask := raster.New[bool](size, size) // entirely non-hole
	weights := raster.NewFilled[float64](size, size, 1.0)
	field := nnf.New(size, size)

	out := Run(field, prev, sourceMask, targetMask, source, weights, patch)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if out.At(x, y) != prev.At(x, y) {
				t.Fatalf("non-hole pixel (%d,%d) changed: %v -> %v", x, y, prev.At(x, y), out.At(x, y))
			}
		}
	}
}

func TestRunBlendsHolePixelFromSource(t *testing.T) {
	const size, patch = 9, 3
	source := raster.New[raster.RGB](size, size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			source.Set(x, y, raster.RGB{R: float64(x) / size, G: float64(y) / size, B: 0.5})
		}
	}
	prev := source.Clone()
	sourceMask := raster.NewFilled[bool](size, size, true)
	targetMask := raster.New[bool](size, size)
	center := size / 2
	targetMask.Set(center, center, true)
	weights := raster.NewFilled[float64](size, size, 1.0)

	field := nnf.New(size, size)
	// Every possible anchor patch that could cover the hole pixel maps
	// back to the exact same source location as the target, so the
	// blended result should reproduce the source color exactly.
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			field.Coords.Set(x, y, intcoord.Coord{X: x, Y: y})
		}
	}

	out := Run(field, prev, sourceMask, targetMask, source, weights, patch)
	want := source.At(center, center)
	got := out.At(center, center)
	if diff := (got.R-want.R)*(got.R-want.R) + (got.G-want.G)*(got.G-want.G) + (got.B-want.B)*(got.B-want.B); diff > 1e-9 {
		t.Errorf("blended hole pixel = %v, want %v", got, want)
	}
}

func TestDiffuseConverges(t *testing.T) {
	const size = 6
	target := raster.New[raster.RGB](size, size)
	hole := raster.New[bool](size, size)
	for y := 1; y < size-1; y++ {
		for x := 1; x < size-1; x++ {
			hole.Set(x, y, true)
		}
	}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if !hole.At(x, y) {
				target.Set(x, y, raster.RGB{R: 1, G: 1, B: 1})
			}
		}
	}

	Diffuse(target, hole, 0)

	center := target.At(size/2, size/2)
	if center.R <= 0 || center.R > 1 {
		t.Errorf("diffused center pixel R out of expected range: %v", center.R)
	}
}

func TestDiffuseRespectsIterationCap(t *testing.T) {
	const size = 6
	target := raster.New[raster.RGB](size, size)
	hole := raster.NewFilled[bool](size, size, true)
	hole.Set(0, 0, false)
	target.Set(0, 0, raster.RGB{R: 1})

	Diffuse(target, hole, 1)
	// With only one iteration allowed, the far corner should not yet
	// have received any signal from the single known pixel.
	if got := target.At(size-1, size-1); got.R != 0 {
		t.Errorf("expected far corner untouched after 1 iteration, got %v", got)
	}
}
