package engine

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/cwbudde/holefill/internal/checkpoint"
	"github.com/cwbudde/holefill/internal/cpubackend"
	"github.com/cwbudde/holefill/internal/gpubackend"
	"github.com/cwbudde/holefill/internal/raster"
)

// ProgressFunc is called once per round of the automatic fill
// schedule, after that round's blend, reporting the pyramid level
// (spec-numbered: 0 is full resolution) and round index within the
// level along with the field's current mean cost.
type ProgressFunc func(level, round int, meanCost float64)

// Engine runs the automatic coarse-to-fine fill schedule spec.md §6
// describes over either the CPU or the GPU back end, selected by
// Config.Backend. It is the only package that imports both backend
// packages, so neither backend ever needs to import engine.
type Engine struct {
	cfg Config
	cpu *cpubackend.Core
	gpu *gpubackend.Plan
}

// New constructs an Engine for the given source/target/mask triple
// and config, selecting and initializing the configured backend.
func New(cfg Config, source, target *raster.Image[raster.RGB], mask *raster.Image[bool]) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg}
	switch cfg.Backend {
	case BackendCPU:
		core, err := cpubackend.NewCore(cfg.PatchWidth, source, target, mask, cfg.NumLevels,
			cpubackend.WithPropagationVariant(cfg.propagationVariant()))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		e.cpu = core
	case BackendGPU:
		plan, err := gpubackend.NewPlan(target, mask, cfg.NumLevels, cfg.PatchWidth)
		if err != nil {
			return nil, wrapBackendError(err)
		}
		e.gpu = plan
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrInvalidInput, cfg.Backend)
	}
	return e, nil
}

// Run executes the full automatic fill schedule and returns the
// finest-level filled target image.
//
// At the coarsest pyramid level, CoarsestBlends rounds each consist
// of CoarsestSearchPropagatePerBlend (search, propagate) pairs
// followed by one blend; every finer level uses FinerBlends rounds of
// FinerSearchPropagatePerBlend pairs instead. progress, if non-nil,
// is invoked after every blend.
func (e *Engine) Run(progress ProgressFunc) (*raster.Image[raster.RGB], error) {
	if e.cpu != nil {
		return e.runCPU(progress)
	}
	return e.runGPU(progress)
}

func (e *Engine) runCPU(progress ProgressFunc) (*raster.Image[raster.RGB], error) {
	for {
		coarsest := e.cpu.CurrentPyramidLevel() == e.cpu.NumPyramidLevels()-1
		perBlend, blends := e.cfg.FinerSearchPropagatePerBlend, e.cfg.FinerBlends
		if coarsest {
			perBlend, blends = e.cfg.CoarsestSearchPropagatePerBlend, e.cfg.CoarsestBlends
		}

		for round := 0; round < blends; round++ {
			for i := 0; i < perBlend; i++ {
				e.cpu.Search()
				e.cpu.Propagate()
			}
			e.cpu.Blend()
			if progress != nil {
				progress(e.cpu.CurrentPyramidLevel(), round, meanCost(e.cpu.Field().Costs))
			}
			slog.Debug("fill round complete", "level", e.cpu.CurrentPyramidLevel(), "round", round)
		}

		if e.cpu.CurrentPyramidLevel() == 0 {
			break
		}
		if _, err := e.cpu.MoveToNextPyramidLevel(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInternalInvariantViolated, err)
		}
	}
	return e.cpu.TargetImage(), nil
}

func (e *Engine) runGPU(progress ProgressFunc) (*raster.Image[raster.RGB], error) {
	out := raster.New[raster.RGB](0, 0)
	if err := e.gpu.PlanStep(gpubackend.Search); err != nil {
		return nil, wrapBackendError(err)
	}
	if err := e.gpu.PlanStep(gpubackend.Propagate); err != nil {
		return nil, wrapBackendError(err)
	}
	if err := e.gpu.PlanStep(gpubackend.Blend); err != nil {
		return nil, wrapBackendError(err)
	}
	if err := e.gpu.ExecuteSteps(out); err != nil {
		return nil, wrapBackendError(err)
	}
	if progress != nil {
		progress(0, 0, 0)
	}
	return out, nil
}

// Checkpoint snapshots the engine's current CPU-backend state. GPU
// backend checkpointing is not supported: device-resident state has
// no host-side NNF to snapshot without a readback the spec does not
// require.
func (e *Engine) Checkpoint(jobID string) (*checkpoint.Checkpoint, error) {
	if e.cpu == nil {
		return nil, fmt.Errorf("%w: checkpointing is only supported on the cpu backend", ErrInvalidState)
	}
	field := e.cpu.Field()
	return &checkpoint.Checkpoint{
		JobID:        jobID,
		PyramidLevel: e.cpu.CurrentPyramidLevel(),
		Field:        checkpoint.SnapshotField(field.Coords, field.Costs),
		Config: checkpoint.Config{
			PatchWidth:  e.cfg.PatchWidth,
			NumLevels:   e.cfg.NumLevels,
			Propagation: e.cfg.Propagation,
			Seed:        e.cfg.Seed,
			Backend:     string(e.cfg.Backend),
		},
	}, nil
}

func meanCost(costs *raster.Image[float64]) float64 {
	var sum float64
	var n int
	for y := 0; y < costs.Height(); y++ {
		for _, c := range costs.Row(y) {
			if math.IsInf(c, 1) {
				continue
			}
			sum += c
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
