// Package propagate implements the NNF propagation primitive: each
// target pixel tries to adopt its neighbors' source anchors, shifted
// by the neighbor offset, whenever that adoption lowers match cost.
// Two variants are provided (spec.md §4.6): the default line-order
// scan (sequential within a pass, parallel-unsafe by design) and a
// jump-flood variant that is parallel-friendly via double buffering.
package propagate

import (
	"math"

	"github.com/cwbudde/holefill/internal/anchorfield"
	"github.com/cwbudde/holefill/internal/intcoord"
	"github.com/cwbudde/holefill/internal/nnf"
	"github.com/cwbudde/holefill/internal/parallelfor"
	"github.com/cwbudde/holefill/internal/patchcost"
	"github.com/cwbudde/holefill/internal/raster"
)

// Variant selects which propagation scheme Run dispatches to.
type Variant int

const (
	LineOrder Variant = iota
	JumpFlood
)

// Params bundles the read-only inputs every propagation variant needs.
type Params struct {
	Source, Target *raster.Image[raster.RGB]
	SourceMask     *nnf.SourceMask
	TargetMask     *raster.Image[bool]
	Weights        *anchorfield.Field
	PatchWidth     int
}

// Run mutates field in place according to variant.
func Run(field *nnf.Field, p Params, variant Variant) {
	if variant == JumpFlood {
		runJumpFlood(field, p)
		return
	}
	runLineOrder(field, p)
}

// runLineOrder performs the two-pass line-order scan: forward raster
// order consulting the (-1,0) and (0,-1) neighbors, then reverse order
// consulting the negated offsets. Each pass is inherently sequential —
// a pixel's candidate depends on a neighbor already updated earlier in
// the same pass — so this is intentionally not dispatched through
// parallelfor.
func runLineOrder(field *nnf.Field, p Params) {
	w, h := p.Target.Width(), p.Target.Height()

	pass := func(inc int, offsets []intcoord.Coord) {
		ys := rangeInc(0, h, inc)
		xs := rangeInc(0, w, inc)
		for _, y := range ys {
			for _, x := range xs {
				t := intcoord.Coord{X: x, Y: y}
				if !p.TargetMask.At(x, y) || !patchcost.IsPossibleAnchor(t, w, h, p.PatchWidth) {
					continue
				}
				for _, o := range offsets {
					tryCandidate(field, p, t, o, w, h)
				}
			}
		}
	}

	pass(1, []intcoord.Coord{{X: -1, Y: 0}, {X: 0, Y: -1}})
	pass(-1, []intcoord.Coord{{X: 1, Y: 0}, {X: 0, Y: 1}})
}

func tryCandidate(field *nnf.Field, p Params, t, o intcoord.Coord, w, h int) {
	neighbor := t.Add(o)
	if !neighbor.InBounds(w, h) || !p.TargetMask.AtCoord(neighbor) {
		return
	}
	sCand := field.Coords.AtCoord(neighbor).Sub(o)
	if !patchcost.IsPossibleAnchor(sCand, p.Source.Width(), p.Source.Height(), p.PatchWidth) || !p.SourceMask.AtCoord(sCand) {
		return
	}
	currentCost := field.Costs.AtCoord(t)
	cost := patchcost.Cost(p.Source, p.Target, p.Weights, sCand, t, p.PatchWidth, currentCost)
	if cost < currentCost {
		field.Coords.SetCoord(t, sCand)
		field.Costs.SetCoord(t, cost)
	}
}

func rangeInc(start, end, inc int) []int {
	n := end - start
	out := make([]int, n)
	if inc > 0 {
		for i := 0; i < n; i++ {
			out[i] = start + i
		}
	} else {
		for i := 0; i < n; i++ {
			out[i] = end - 1 - i
		}
	}
	return out
}

// runJumpFlood performs the parallel-safe variant: radius k starts at
// ceil(log2(max(w,h))) and halves each round until it reaches 0.
// Every round reads from one field buffer and writes a fresh one, so
// no worker ever observes a partially-updated round — the double
// buffer is swapped by reference after each round completes, never
// mutated in place mid-round.
func runJumpFlood(field *nnf.Field, p Params) {
	w, h := p.Target.Width(), p.Target.Height()

	maxDim := w
	if h > maxDim {
		maxDim = h
	}
	k := int(math.Ceil(math.Log2(float64(maxDim))))

	offsets9 := func(k int) []intcoord.Coord {
		vals := []int{-k, 0, k}
		out := make([]intcoord.Coord, 0, 9)
		for _, dy := range vals {
			for _, dx := range vals {
				if dx == 0 && dy == 0 {
					continue
				}
				out = append(out, intcoord.Coord{X: dx, Y: dy})
			}
		}
		return out
	}

	for k > 0 {
		next := field.Clone()
		offsets := offsets9(k)

		parallelfor.Rows(h, func(yStart, yEnd int) {
			for y := yStart; y < yEnd; y++ {
				for x := 0; x < w; x++ {
					t := intcoord.Coord{X: x, Y: y}
					if !p.TargetMask.At(x, y) || !patchcost.IsPossibleAnchor(t, w, h, p.PatchWidth) {
						continue
					}
					best := field.Coords.AtCoord(t)
					bestCost := field.Costs.AtCoord(t)

					for _, o := range offsets {
						tp := t.Add(o)
						if !tp.InBounds(w, h) || !p.TargetMask.AtCoord(tp) || !patchcost.IsPossibleAnchor(tp, w, h, p.PatchWidth) {
							continue
						}
						sCand := field.Coords.AtCoord(tp).Sub(o)
						if !patchcost.IsPossibleAnchor(sCand, p.Source.Width(), p.Source.Height(), p.PatchWidth) || !p.SourceMask.AtCoord(sCand) {
							continue
						}
						cost := patchcost.Cost(p.Source, p.Target, p.Weights, sCand, t, p.PatchWidth, bestCost)
						if cost < bestCost {
							best = sCand
							bestCost = cost
						}
					}

					next.Coords.SetCoord(t, best)
					next.Costs.SetCoord(t, bestCost)
				}
			}
		})

		*field = *next
		k /= 2
	}
}
