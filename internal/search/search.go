// Package search implements the exponential-radius random search
// primitive: for every hole pixel, repeatedly propose a random
// candidate source anchor within a shrinking window around the
// current best match and keep it only if it lowers the patch cost.
package search

import (
	"math/rand/v2"

	"github.com/cwbudde/holefill/internal/anchorfield"
	"github.com/cwbudde/holefill/internal/intcoord"
	"github.com/cwbudde/holefill/internal/nnf"
	"github.com/cwbudde/holefill/internal/parallelfor"
	"github.com/cwbudde/holefill/internal/patchcost"
	"github.com/cwbudde/holefill/internal/raster"
)

// Alpha is the per-iteration radius shrink factor (spec.md §4.5).
const Alpha = 0.5

// Run performs one random-search pass over field in place: every
// target pixel that is both a possible anchor and marked true in
// targetMask draws proposals from an exponentially shrinking window
// around its current source anchor, accepting a proposal only when it
// strictly lowers the stored match cost.
//
// Rows are dispatched through parallelfor.Rows; each pixel draws from
// its own PCG stream seeded from nnf.DefaultSeed and the pixel's flat
// index, so the result is identical regardless of how rows are
// chunked across workers.
func Run(field *nnf.Field, source, target *raster.Image[raster.RGB], sourceMask *nnf.SourceMask, targetMask *raster.Image[bool], weights *anchorfield.Field, patchWidth int) {
	w, h := target.Width(), target.Height()
	sw, sh := source.Width(), source.Height()
	maxR := sw
	if sh > maxR {
		maxR = sh
	}

	parallelfor.Rows(h, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			for x := 0; x < w; x++ {
				t := intcoord.Coord{X: x, Y: y}
				if !targetMask.At(x, y) {
					continue
				}
				if !patchcost.IsPossibleAnchor(t, w, h, patchWidth) {
					continue
				}
				rng := rand.New(rand.NewPCG(nnf.DefaultSeed, uint64(y*w+x)))
				searchPixel(field, source, target, sourceMask, weights, t, patchWidth, sw, sh, maxR, rng)
			}
		}
	})
}

func searchPixel(field *nnf.Field, source, target *raster.Image[raster.RGB], sourceMask *nnf.SourceMask, weights *anchorfield.Field, t intcoord.Coord, patchWidth, sw, sh, maxR int, rng *rand.Rand) {
	r := float64(maxR)
	s := field.Coords.AtCoord(t)

	for r > 1 {
		half := int(r)
		dx := rng.IntN(2*half+1) - half
		dy := rng.IntN(2*half+1) - half
		cand := intcoord.Coord{X: s.X + dx, Y: s.Y + dy}.Clamp(sw, sh)

		if patchcost.IsPossibleAnchor(cand, sw, sh, patchWidth) && sourceMask.AtCoord(cand) {
			currentCost := field.Costs.AtCoord(t)
			cost := patchcost.Cost(source, target, weights, cand, t, patchWidth, currentCost)
			if cost < currentCost {
				field.Coords.SetCoord(t, cand)
				field.Costs.SetCoord(t, cost)
				s = cand
			}
		}
		r *= Alpha
	}
}
