package search

import (
	"testing"

	"github.com/cwbudde/holefill/internal/nnf"
	"github.com/cwbudde/holefill/internal/raster"
)

func TestRunNeverIncreasesCost(t *testing.T) {
	const size = 16
	source := raster.New[raster.RGB](size, size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			source.Set(x, y, raster.RGB{R: float64(x) / size, G: float64(y) / size, B: 0.5})
		}
	}
	target := source.Clone()

	sourceMask := raster.NewFilled[bool](size, size, true)
	targetMask := raster.NewFilled[bool](size, size, true)
	weights := raster.NewFilled[float64](size, size, 1.0)

	rng := nnf.NewRNG(7)
	field, err := nnf.Init(source, target, sourceMask, targetMask, weights, 3, rng)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	// Seed every cost with an evaluated value so Run's "never increases"
	// guarantee is well defined from the start.
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			field.Costs.Set(x, y, 1000)
		}
	}
	before := field.Costs.Clone()

	Run(field, source, target, sourceMask, targetMask, weights, 3)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if field.Costs.At(x, y) > before.At(x, y) {
				t.Fatalf("cost increased at (%d,%d): %v -> %v", x, y, before.At(x, y), field.Costs.At(x, y))
			}
		}
	}
}

func TestRunSkipsBorderAndMaskedPixels(t *testing.T) {
	const size = 8
	source := raster.NewFilled[raster.RGB](size, size, raster.RGB{R: 1})
	target := raster.NewFilled[raster.RGB](size, size, raster.RGB{R: 1})
	sourceMask := raster.NewFilled[bool](size, size, true)
	targetMask := raster.New[bool](size, size) // all false: nothing eligible
	weights := raster.NewFilled[float64](size, size, 1.0)

	field := nnf.New(size, size)
	before := field.Coords.Clone()

	Run(field, source, target, sourceMask, targetMask, weights, 3)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if field.Coords.At(x, y) != before.At(x, y) {
				t.Fatalf("pixel (%d,%d) outside target mask was modified", x, y)
			}
		}
	}

	// Border pixels cannot anchor a full 3x3 patch, so they stay
	// untouched even when the whole target is marked as hole.
	targetMask.Fill(true)
	Run(field, source, target, sourceMask, targetMask, weights, 3)
	for i := 0; i < size; i++ {
		for _, c := range [][2]int{{i, 0}, {i, size - 1}, {0, i}, {size - 1, i}} {
			if field.Coords.At(c[0], c[1]) != before.At(c[0], c[1]) {
				t.Fatalf("border pixel (%d,%d) was modified", c[0], c[1])
			}
		}
	}
}
