// Package nnf implements the nearest-neighbor field: for every target
// pixel, a candidate source coordinate and the patch-match cost of
// that candidate. Search and line-order propagation update a Field in
// place, each pixel written only by the worker that owns its row;
// jump-flood propagation reads a cloned snapshot of the previous pass
// while writing the live field.
package nnf

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/cwbudde/holefill/internal/anchorfield"
	"github.com/cwbudde/holefill/internal/intcoord"
	"github.com/cwbudde/holefill/internal/patchcost"
	"github.com/cwbudde/holefill/internal/raster"
)

// DefaultSeed is the fixed PRNG seed used for all NNF initialization
// and search proposals, guaranteeing determinism within one back end.
const DefaultSeed = 42

// SourceMask marks which pixels may be proposed as patch sources: true
// means the pixel (and its full patch neighborhood) lies outside the
// hole and is eligible.
type SourceMask = raster.Image[bool]

// Field is the nearest-neighbor field for one pyramid level.
type Field struct {
	Coords *raster.Image[intcoord.Coord]
	Costs  *raster.Image[float64]
}

// New allocates an empty width×height field.
func New(width, height int) *Field {
	return &Field{
		Coords: raster.New[intcoord.Coord](width, height),
		Costs:  raster.NewFilled[float64](width, height, math.Inf(1)),
	}
}

// Clone returns an independent deep copy, used by jump-flood
// propagation to read the previous pass's field while writing the
// live one.
func (f *Field) Clone() *Field {
	return &Field{Coords: f.Coords.Clone(), Costs: f.Costs.Clone()}
}

// NewRNG builds the field's deterministic PRNG from DefaultSeed offset
// by a round/level salt, so successive rounds draw distinct but
// reproducible sequences.
func NewRNG(salt uint64) *rand.Rand {
	return rand.New(rand.NewPCG(DefaultSeed, salt))
}

// Init builds an initial field over target/source, assigning every
// target pixel that is both a possible anchor and marked true in
// targetMask a uniformly random source coordinate drawn from the
// subset of mask that is itself a possible anchor (so the source
// patch it names is guaranteed to fit entirely inside source), with
// that coordinate's real patch cost evaluated immediately rather than
// left at +Inf. Pixels outside targetMask, or too close to the target
// border to anchor a full patch, are left at their zero Field value:
// search/propagate/blend all skip them via the same targetMask and
// IsPossibleAnchor checks. mask must have at least one eligible pixel
// or Init returns an error (an engine with no valid source region
// cannot do anything useful).
func Init(source, target *raster.Image[raster.RGB], mask *SourceMask, targetMask *raster.Image[bool], weights *anchorfield.Field, patchWidth int, rng *rand.Rand) (*Field, error) {
	mw, mh := mask.Width(), mask.Height()
	eligible := make([]intcoord.Coord, 0, mw*mh)
	for y := 0; y < mh; y++ {
		for x := 0; x < mw; x++ {
			c := intcoord.Coord{X: x, Y: y}
			if mask.At(x, y) && patchcost.IsPossibleAnchor(c, mw, mh, patchWidth) {
				eligible = append(eligible, c)
			}
		}
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("nnf: no eligible source pixels")
	}

	width, height := target.Width(), target.Height()
	f := New(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			t := intcoord.Coord{X: x, Y: y}
			if !targetMask.At(x, y) || !patchcost.IsPossibleAnchor(t, width, height, patchWidth) {
				continue
			}
			src := eligible[rng.IntN(len(eligible))]
			cost := patchcost.Cost(source, target, weights, src, t, patchWidth, math.Inf(1))
			f.Coords.SetCoord(t, src)
			f.Costs.SetCoord(t, cost)
		}
	}
	return f, nil
}

// Upsample produces a field for a finer level (newWidth×newHeight)
// from a coarser one, scaling each source coordinate by the same
// factor as the target grid and clamping into the new source mask's
// bounds. Costs are left stale (math.Inf) so the first search/
// propagate round at the new level recomputes them rather than
// trusting a coarse-level cost against a finer patch.
func Upsample(prev *Field, newWidth, newHeight int, mask *SourceMask) *Field {
	out := New(newWidth, newHeight)
	sw, sh := prev.Coords.Width(), prev.Coords.Height()
	if sw == 0 || sh == 0 {
		return out
	}
	sx := float64(newWidth) / float64(sw)
	sy := float64(newHeight) / float64(sh)

	for y := 0; y < newHeight; y++ {
		py := int(float64(y) / sy)
		if py >= sh {
			py = sh - 1
		}
		for x := 0; x < newWidth; x++ {
			px := int(float64(x) / sx)
			if px >= sw {
				px = sw - 1
			}
			src := prev.Coords.At(px, py)
			scaled := intcoord.Coord{
				X: int(float64(src.X) * sx),
				Y: int(float64(src.Y) * sy),
			}
			scaled = scaled.Clamp(mask.Width(), mask.Height())
			if !mask.AtCoord(scaled) {
				scaled = nearestEligible(scaled, mask)
			}
			out.Coords.Set(x, y, scaled)
		}
	}
	return out
}

// nearestEligible finds the closest eligible source pixel to c by
// spiraling search, falling back to a linear scan if the spiral gives
// up within a bounded radius — correctness over elegance, this path is
// only hit for pixels whose upsampled coordinate lands inside the
// (larger, finer) hole region.
func nearestEligible(c intcoord.Coord, mask *SourceMask) intcoord.Coord {
	const maxRadius = 64
	for r := 1; r <= maxRadius; r++ {
		for dy := -r; dy <= r; dy++ {
			for dx := -r; dx <= r; dx++ {
				if dx*dx+dy*dy > r*r {
					continue
				}
				cand := intcoord.Coord{X: c.X + dx, Y: c.Y + dy}
				if cand.InBounds(mask.Width(), mask.Height()) && mask.AtCoord(cand) {
					return cand
				}
			}
		}
	}
	for y := 0; y < mask.Height(); y++ {
		for x := 0; x < mask.Width(); x++ {
			if mask.At(x, y) {
				return intcoord.Coord{X: x, Y: y}
			}
		}
	}
	return c
}
