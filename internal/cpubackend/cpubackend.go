// Package cpubackend implements HoleFillCore, the CPU driver that
// glues the pyramid controller, the NNF, and the three refinement
// primitives (search, propagate, blend) into the primitive surface
// spec.md §4.10 describes: a struct that reuses its scratch buffers
// across calls, the same "reuse, don't reallocate" idiom the teacher's
// CPURenderer applies to its canvas field.
package cpubackend

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/holefill/internal/anchorfield"
	"github.com/cwbudde/holefill/internal/blend"
	"github.com/cwbudde/holefill/internal/nnf"
	"github.com/cwbudde/holefill/internal/propagate"
	"github.com/cwbudde/holefill/internal/pyramid"
	"github.com/cwbudde/holefill/internal/raster"
	"github.com/cwbudde/holefill/internal/search"
)

// Core is the CPU hole-fill driver for one (source, target, mask)
// triple. It owns clones of the caller's original images so pyramid
// rebuilds never depend on the caller keeping its buffers alive.
type Core struct {
	patchWidth  int
	propagation propagate.Variant

	origSource *raster.Image[raster.RGB]
	origTarget *raster.Image[raster.RGB]
	origMask   *raster.Image[bool]

	// levels[0] is the coarsest pyramid target size, levels[len-1] the
	// finest (original resolution); idx indexes into levels and moves
	// from 0 toward len-1 as MoveToNextPyramidLevel is called.
	levels []pyramid.Plan
	idx    int

	sourceCur     *raster.Image[raster.RGB]
	targetCur     *raster.Image[raster.RGB]
	sourceMaskCur *raster.Image[bool]
	targetMaskCur *raster.Image[bool]
	weightsCur    *anchorfield.Field
	field         *nnf.Field
}

// Option configures optional Core behavior at construction.
type Option func(*Core)

// WithPropagationVariant selects line-order (default) or jump-flood
// propagation for every Propagate call.
func WithPropagationVariant(v propagate.Variant) Option {
	return func(c *Core) { c.propagation = v }
}

// NewCore constructs a driver for the given patch width, source,
// target, and hole mask, with a pyramid schedule of exactly numLevels
// levels (pyramid.BuildPlan builds every requested level and never
// drops any). Preconditions mirror spec.md §6: patchWidth
// must be an odd integer in [3, 50], every image dimension must be at
// least patchWidth, target and mask sizes must match, and numLevels
// must be at least 1.
func NewCore(patchWidth int, source, target *raster.Image[raster.RGB], mask *raster.Image[bool], numLevels int, opts ...Option) (*Core, error) {
	if patchWidth < 3 || patchWidth > 50 || patchWidth%2 == 0 {
		return nil, fmt.Errorf("cpubackend: patch width %d must be an odd integer in [3, 50]", patchWidth)
	}
	if target.Width() != mask.Width() || target.Height() != mask.Height() {
		return nil, fmt.Errorf("cpubackend: target size %dx%d does not match mask size %dx%d",
			target.Width(), target.Height(), mask.Width(), mask.Height())
	}
	if target.Width() < patchWidth || target.Height() < patchWidth || source.Width() < patchWidth || source.Height() < patchWidth {
		return nil, fmt.Errorf("cpubackend: every image dimension must be >= patch width %d", patchWidth)
	}
	if numLevels < 1 {
		return nil, fmt.Errorf("cpubackend: numPyramidLevels must be >= 1, got %d", numLevels)
	}

	origTarget := pyramid.Size{Width: target.Width(), Height: target.Height()}
	origSource := pyramid.Size{Width: source.Width(), Height: source.Height()}
	levels, err := pyramid.BuildPlan(numLevels, patchWidth, origTarget, origSource)
	if err != nil {
		return nil, fmt.Errorf("cpubackend: %w", err)
	}

	c := &Core{
		patchWidth:  patchWidth,
		propagation: propagate.LineOrder,
		origSource:  source.Clone(),
		origTarget:  target.Clone(),
		origMask:    mask.Clone(),
		levels:      levels,
		idx:         0,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.enterLevel(true); err != nil {
		return nil, err
	}
	return c, nil
}

// enterLevel (re)builds every current-level buffer for c.levels[c.idx]
// and either seeds the NNF randomly (coarsest = first call) or
// upsamples it from the previous level's field.
func (c *Core) enterLevel(coarsest bool) error {
	level := c.levels[c.idx]
	srcW, srcH := level.Source.Width, level.Source.Height

	newTarget := pyramid.Downsample(c.origTarget, level.Target.Width, level.Target.Height)
	newSource := pyramid.Downsample(c.origSource, srcW, srcH)
	newTargetMask := pyramid.DownsampleBool(c.origMask, level.Target.Width, level.Target.Height, true)
	newSourceMask := raster.New[bool](srcW, srcH)
	se, anchor := pyramid.FullPatchStructuringElement(c.patchWidth)
	dilated, err := pyramid.Dilate(newTargetMask, se, anchor)
	if err != nil {
		return fmt.Errorf("cpubackend: %w", err)
	}
	// Scale the dilated hole mask into source space; for equal-sized
	// source/target (the common case, and the only case the spec's
	// single-image engine exercises) this is a straight copy.
	for y := 0; y < srcH; y++ {
		ty := y * level.Target.Height / srcH
		if ty >= level.Target.Height {
			ty = level.Target.Height - 1
		}
		for x := 0; x < srcW; x++ {
			tx := x * level.Target.Width / srcW
			if tx >= level.Target.Width {
				tx = level.Target.Width - 1
			}
			newSourceMask.Set(x, y, !dilated.At(tx, ty))
		}
	}

	distance := pyramid.DistanceMap(newTargetMask)
	weights := anchorfield.Build(distance, c.patchWidth)

	if !coarsest && c.targetCur != nil {
		// Carry forward the previous level's filled hole content,
		// resampled up; exterior pixels take the fresh downsample so
		// known structure never degrades across levels.
		upsampled := pyramid.UpsampleRGB(c.targetCur, level.Target.Width, level.Target.Height)
		for y := 0; y < level.Target.Height; y++ {
			for x := 0; x < level.Target.Width; x++ {
				if newTargetMask.At(x, y) {
					newTarget.Set(x, y, upsampled.At(x, y))
				}
			}
		}
	}

	var field *nnf.Field
	if coarsest || c.field == nil {
		f, err := nnf.Init(newSource, newTarget, newSourceMask, newTargetMask, weights, c.patchWidth, nnf.NewRNG(uint64(c.idx)))
		if err != nil {
			return fmt.Errorf("cpubackend: %w", err)
		}
		field = f
		blend.Diffuse(newTarget, newTargetMask, 0)
	} else {
		field = nnf.Upsample(c.field, level.Target.Width, level.Target.Height, newSourceMask)
	}

	c.targetCur = newTarget
	c.sourceCur = newSource
	c.targetMaskCur = newTargetMask
	c.sourceMaskCur = newSourceMask
	c.weightsCur = weights
	c.field = field

	slog.Debug("pyramid level entered", "level_index", c.idx, "target_width", level.Target.Width, "target_height", level.Target.Height, "coarsest", coarsest)
	return nil
}

// Search runs one random-search pass in place over the current level.
func (c *Core) Search() {
	search.Run(c.field, c.sourceCur, c.targetCur, c.sourceMaskCur, c.targetMaskCur, c.weightsCur, c.patchWidth)
}

// Propagate runs one propagation pass (line-order or jump-flood,
// per the Core's configured variant) in place over the current level.
func (c *Core) Propagate() {
	propagate.Run(c.field, propagate.Params{
		Source:     c.sourceCur,
		Target:     c.targetCur,
		SourceMask: c.sourceMaskCur,
		TargetMask: c.targetMaskCur,
		Weights:    c.weightsCur,
		PatchWidth: c.patchWidth,
	}, c.propagation)
}

// Blend recomputes the current-level target image from the NNF.
func (c *Core) Blend() {
	c.targetCur = blend.Run(c.field, c.targetCur, c.sourceMaskCur, c.targetMaskCur, c.sourceCur, c.weightsCur, c.patchWidth)
}

// CurrentPyramidLevel reports the spec-numbered level: 0 is full
// resolution, increasing toward the coarsest level.
func (c *Core) CurrentPyramidLevel() int {
	return len(c.levels) - 1 - c.idx
}

// NumPyramidLevels reports the total number of levels in the
// schedule, so a caller can tell whether CurrentPyramidLevel is
// currently at the coarsest level (level == NumPyramidLevels()-1).
func (c *Core) NumPyramidLevels() int {
	return len(c.levels)
}

// MoveToNextPyramidLevel advances one step toward full resolution and
// returns the new spec-numbered level. At level 0 it is a no-op that
// returns 0.
func (c *Core) MoveToNextPyramidLevel() (int, error) {
	if c.idx == len(c.levels)-1 {
		return 0, nil
	}
	c.idx++
	if err := c.enterLevel(false); err != nil {
		return 0, err
	}
	return c.CurrentPyramidLevel(), nil
}

// TargetImage returns the current-level target image.
func (c *Core) TargetImage() *raster.Image[raster.RGB] { return c.targetCur }

// SourceImage returns the current-level source image.
func (c *Core) SourceImage() *raster.Image[raster.RGB] { return c.sourceCur }

// TargetMask returns the current-level hole mask.
func (c *Core) TargetMask() *raster.Image[bool] { return c.targetMaskCur }

// Field exposes the current-level NNF, read-only by convention — no
// Core method mutates it except through Search/Propagate/Blend.
func (c *Core) Field() *nnf.Field { return c.field }
