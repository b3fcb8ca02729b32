package propagate

import (
	"testing"

	"github.com/cwbudde/holefill/internal/intcoord"
	"github.com/cwbudde/holefill/internal/nnf"
	"github.com/cwbudde/holefill/internal/raster"
)

func uniformScene(size int) (source, target *raster.Image[raster.RGB], sourceMask, targetMask *raster.Image[bool], weights *raster.Image[float64]) {
	source = raster.New[raster.RGB](size, size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			source.Set(x, y, raster.RGB{R: float64(x) / float64(size), G: float64(y) / float64(size), B: 0.25})
		}
	}
	target = source.Clone()
	sourceMask = raster.NewFilled[bool](size, size, true)
	targetMask = raster.NewFilled[bool](size, size, true)
	weights = raster.NewFilled[float64](size, size, 1.0)
	return
}

func bestKnownCostField(t *testing.T, size, patchWidth int, source, target *raster.Image[raster.RGB], weights *raster.Image[float64]) *nnf.Field {
	t.Helper()
	field := nnf.New(size, size)
	// Give one interior pixel the perfect (self) match so propagation
	// has something correct to spread.
	center := size / 2
	field.Coords.Set(center, center, intcoord.Coord{X: center, Y: center})
	field.Costs.Set(center, center, 0)
	return field
}

func runBothVariants(t *testing.T, variant Variant) {
	const size, patch = 12, 3
	source, target, sourceMask, targetMask, weights := uniformScene(size)
	field := bestKnownCostField(t, size, patch, source, target, weights)

	p := Params{
		Source:     source,
		Target:     target,
		SourceMask: sourceMask,
		TargetMask: targetMask,
		Weights:    weights,
		PatchWidth: patch,
	}
	Run(field, p, variant)

	center := size / 2
	if field.Costs.At(center, center) != 0 {
		t.Errorf("seeded best match must survive propagation, cost = %v", field.Costs.At(center, center))
	}

	// A neighboring pixel should have improved from its uninitialized
	// infinite cost once propagation offers it a real candidate.
	neighborCost := field.Costs.At(center+1, center)
	if neighborCost >= 1e300 {
		t.Errorf("neighbor cost was not improved by propagation: %v", neighborCost)
	}
}

func TestLineOrderPropagatesGoodMatches(t *testing.T) {
	runBothVariants(t, LineOrder)
}

func TestJumpFloodPropagatesGoodMatches(t *testing.T) {
	runBothVariants(t, JumpFlood)
}

func TestRangeIncForwardAndReverse(t *testing.T) {
	fwd := rangeInc(0, 5, 1)
	want := []int{0, 1, 2, 3, 4}
	for i, v := range want {
		if fwd[i] != v {
			t.Fatalf("rangeInc forward = %v, want %v", fwd, want)
		}
	}
	rev := rangeInc(0, 5, -1)
	wantRev := []int{4, 3, 2, 1, 0}
	for i, v := range wantRev {
		if rev[i] != v {
			t.Fatalf("rangeInc reverse = %v, want %v", rev, wantRev)
		}
	}
}
