package anchorfield

import (
	"math"
	"testing"

	"github.com/cwbudde/holefill/internal/raster"
)

func TestBuildOutsideHoleIsConstant(t *testing.T) {
	dist := raster.New[float64](3, 1)
	dist.Set(0, 0, -0.001)
	dist.Set(1, 0, -4)
	dist.Set(2, 0, -100)

	field := Build(dist, 7)
	for x := 0; x < 3; x++ {
		if got := field.At(x, 0); got != outsideHoleWeight {
			t.Errorf("outside-hole pixel at x=%d: got %v, want %v", x, got, outsideHoleWeight)
		}
	}
}

func TestBuildDecaysGeometricallyWithDepth(t *testing.T) {
	dist := raster.New[float64](3, 1)
	dist.Set(0, 0, 1)
	dist.Set(1, 0, 4)
	dist.Set(2, 0, 8)

	// Use the narrowest patch (rim band up to depth 1.5) so depths 4
	// and 8 fall outside the rim band, isolating the pure geometric
	// decay for them.
	field := Build(dist, 3)
	if !(field.At(0, 0) > field.At(1, 0) && field.At(1, 0) > field.At(2, 0)) {
		t.Errorf("weight must decrease with hole depth: %v %v %v", field.At(0, 0), field.At(1, 0), field.At(2, 0))
	}
	want := math.Pow(gamma, -4)
	if got := field.At(1, 0); math.Abs(got-want) > 1e-9 {
		t.Errorf("depth 4 weight = %v, want %v", got, want)
	}
}

func TestBuildDoublesWeightInRimBand(t *testing.T) {
	const patchWidth = 7 // overlapDist = 3.5
	dist := raster.New[float64](2, 1)
	dist.Set(0, 0, 3) // inside the rim band (depth <= 3.5)
	dist.Set(1, 0, 10)

	field := Build(dist, patchWidth)
	wantRim := 2.0 * math.Pow(gamma, -3)
	if got := field.At(0, 0); math.Abs(got-wantRim) > 1e-9 {
		t.Errorf("rim-band weight = %v, want %v", got, wantRim)
	}
	wantDeep := math.Pow(gamma, -10)
	if got := field.At(1, 0); math.Abs(got-wantDeep) > 1e-9 {
		t.Errorf("deep-hole weight = %v, want %v", got, wantDeep)
	}
}

func TestBuildPositiveDepthStaysPositive(t *testing.T) {
	dist := raster.New[float64](1, 1)
	dist.Set(0, 0, 5)
	field := Build(dist, 7)
	if field.At(0, 0) <= 0 {
		t.Errorf("inside-hole depth must map to a positive weight, got %v", field.At(0, 0))
	}
}
