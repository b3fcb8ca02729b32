// Package blend implements the coherence-weighted patch blend (spec.md
// §4.7) that turns the current NNF into a new target image, and the
// neighborhood-average diffusion (spec.md §4.9) that seeds the
// coarsest pyramid level before the first search.
package blend

import (
	"github.com/cwbudde/holefill/internal/anchorfield"
	"github.com/cwbudde/holefill/internal/intcoord"
	"github.com/cwbudde/holefill/internal/nnf"
	"github.com/cwbudde/holefill/internal/parallelfor"
	"github.com/cwbudde/holefill/internal/patchcost"
	"github.com/cwbudde/holefill/internal/raster"
)

// Run produces a new target image from field. Pixels outside the hole
// copy prev verbatim (P7); hole pixels accumulate a coherence-weighted
// average over every patch that covers them. A pixel with no valid
// contributor is written black, the spec's explicit warning sentinel
// for "nothing could be blended here".
func Run(field *nnf.Field, prev *raster.Image[raster.RGB], sourceMask *nnf.SourceMask, targetMask *raster.Image[bool], source *raster.Image[raster.RGB], weights *anchorfield.Field, patchWidth int) *raster.Image[raster.RGB] {
	w, h := prev.Width(), prev.Height()
	out := raster.New[raster.RGB](w, h)
	half := patchcost.HalfWidth(patchWidth)

	parallelfor.Rows(h, func(yStart, yEnd int) {
		for y := yStart; y < yEnd; y++ {
			for x := 0; x < w; x++ {
				if !targetMask.At(x, y) {
					out.Set(x, y, prev.At(x, y))
					continue
				}
				out.Set(x, y, blendPixel(field, prev, sourceMask, targetMask, source, weights, intcoord.Coord{X: x, Y: y}, half, w, h))
			}
		}
	})
	return out
}

func blendPixel(field *nnf.Field, prev *raster.Image[raster.RGB], sourceMask *nnf.SourceMask, targetMask *raster.Image[bool], source *raster.Image[raster.RGB], weights *anchorfield.Field, pixel intcoord.Coord, half, w, h int) raster.RGB {
	var rSum, gSum, bSum, weightSum float64
	any := false

	for patchY := -half; patchY <= half; patchY++ {
		for patchX := -half; patchX <= half; patchX++ {
			a := intcoord.Coord{X: pixel.X + patchX, Y: pixel.Y + patchY}
			if !a.InBounds(w, h) || !patchcost.IsPossibleAnchor(a, w, h, 2*half+1) || !targetMask.AtCoord(a) {
				continue
			}
			sAnchor := field.Coords.AtCoord(a)
			s := sAnchor.Sub(intcoord.Coord{X: patchX, Y: patchY})
			if !s.InBounds(source.Width(), source.Height()) || !sourceMask.AtCoord(s) {
				continue
			}

			// Coherence bonus: count NNF neighbors of `a` whose stored
			// source anchor agrees with the relative geometry of their
			// target neighbor. spec.md §9 flags the original's
			// `getStoredSourceCoord(x+i, y+i)` as a likely bug (both
			// operands use i); this uses the corrected (i, j) pairing.
			c := coherence(field, a, sAnchor, w, h)
			weight := weights.AtCoord(a) + 0.5*float64(c*c)

			color := source.AtCoord(s)
			rSum += color.R * weight
			gSum += color.G * weight
			bSum += color.B * weight
			weightSum += weight
			any = true
		}
	}

	if !any || weightSum == 0 {
		return raster.RGB{}
	}
	return raster.RGB{R: rSum / weightSum, G: gSum / weightSum, B: bSum / weightSum}
}

func coherence(field *nnf.Field, a, sAnchor intcoord.Coord, w, h int) int {
	count := 0
	for j := -1; j <= 1; j++ {
		for i := -1; i <= 1; i++ {
			if i == 0 && j == 0 {
				continue
			}
			n := intcoord.Coord{X: a.X + i, Y: a.Y + j}
			if !n.InBounds(w, h) {
				continue
			}
			want := sAnchor.Add(intcoord.Coord{X: i, Y: j})
			if field.Coords.AtCoord(n) == want {
				count++
			}
		}
	}
	return count
}

// Diffuse iteratively replaces every hole pixel's color with the mean
// of its four-connected neighbors, seeding a coarsest-level target
// image before the first search round. It stops once no pixel's
// squared color change exceeds 1e-7, or after maxIterations (the
// GPU back end's safety bound is 100; the CPU back end may pass 0 for
// no cap).
func Diffuse(target *raster.Image[raster.RGB], hole *raster.Image[bool], maxIterations int) {
	w, h := target.Width(), target.Height()
	const threshold = 1e-7

	iter := 0
	for {
		next := target.Clone()
		var maxDelta float64

		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if !hole.At(x, y) {
					continue
				}
				var rSum, gSum, bSum float64
				n := 0
				for _, o := range [4]intcoord.Coord{{X: -1}, {X: 1}, {Y: -1}, {Y: 1}} {
					nb := intcoord.Coord{X: x + o.X, Y: y + o.Y}
					if !nb.InBounds(w, h) {
						continue
					}
					c := target.AtCoord(nb)
					rSum += c.R
					gSum += c.G
					bSum += c.B
					n++
				}
				if n == 0 {
					continue
				}
				nv := raster.RGB{R: rSum / float64(n), G: gSum / float64(n), B: bSum / float64(n)}
				old := target.At(x, y)
				dr, dg, db := nv.R-old.R, nv.G-old.G, nv.B-old.B
				delta := dr*dr + dg*dg + db*db
				if delta > maxDelta {
					maxDelta = delta
				}
				next.Set(x, y, nv)
			}
		}

		*target = *next
		iter++
		if maxDelta <= threshold {
			break
		}
		if maxIterations > 0 && iter >= maxIterations {
			break
		}
	}
}
