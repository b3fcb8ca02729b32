package gpubackend

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/holefill/internal/raster"
)

type queueState int

const (
	stateIdle queueState = iota
	statePlanOpen
	stateExecuting
)

// Plan is the GPU plan-queue driver (spec.md §4.11): callers enqueue
// tagged steps with PlanStep and drain them with ExecuteSteps, which
// runs each Search, Propagate and Blend step as OpenCL kernels against
// device allocations and each NextPyramid step as a host-side rebuild
// of the next level. State machine: Idle -> PlanOpen -> ... ->
// Executing -> Idle.
type Plan struct {
	target     *raster.Image[raster.RGB]
	mask       *raster.Image[bool]
	numLevels  int
	patchWidth int

	queue []StepTag
	state queueState
	rt    *runtime
}

// NewPlan selects a device (GPU preferred, then CPU, then
// first-available) and creates an OpenCL context and command queue,
// exactly as the teacher's gpu.InitOpenCL does. On a build without the
// `gpu` tag, or when no OpenCL device is present, it returns an error
// wrapping ErrResourceExhausted so callers can fall back to cpubackend.
func NewPlan(target *raster.Image[raster.RGB], mask *raster.Image[bool], numLevels, patchWidth int) (*Plan, error) {
	if patchWidth < 3 || patchWidth > 50 || patchWidth%2 == 0 {
		return nil, fmt.Errorf("%w: patch width %d must be an odd integer in [3, 50]", ErrInvalidInput, patchWidth)
	}
	if target.Width() != mask.Width() || target.Height() != mask.Height() {
		return nil, fmt.Errorf("%w: target/mask size mismatch", ErrInvalidInput)
	}
	if numLevels < 1 {
		return nil, fmt.Errorf("%w: numPyramidLevels must be >= 1", ErrInvalidInput)
	}
	if target.Width() < patchWidth || target.Height() < patchWidth {
		return nil, fmt.Errorf("%w: every image dimension must be >= patch width %d", ErrInvalidInput, patchWidth)
	}

	rt, err := newRuntime(target, mask, numLevels, patchWidth)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResourceExhausted, err)
	}

	return &Plan{
		target:     target.Clone(),
		mask:       mask.Clone(),
		numLevels:  numLevels,
		patchWidth: patchWidth,
		rt:         rt,
		state:      stateIdle,
	}, nil
}

// PlanStep appends tag to the queue. Two consecutive Blend tags are
// rejected with ErrInvalidInput, matching spec.md §3's GPU plan queue
// invariant.
func (p *Plan) PlanStep(tag StepTag) error {
	if len(p.queue) > 0 && p.queue[len(p.queue)-1] == Blend && tag == Blend {
		return fmt.Errorf("%w: consecutive Blend steps are not allowed", ErrInvalidInput)
	}
	p.queue = append(p.queue, tag)
	p.state = statePlanOpen
	return nil
}

// ExecuteSteps drains the queue, running each step in order, and
// reads back the current-level target image into out. The final
// queued step must be Blend (ErrInvalidState otherwise); after
// execution the queue is empty and the state returns to Idle.
func (p *Plan) ExecuteSteps(out *raster.Image[raster.RGB]) error {
	if len(p.queue) == 0 || p.queue[len(p.queue)-1] != Blend {
		return fmt.Errorf("%w: queue must end in a Blend step", ErrInvalidState)
	}

	p.state = stateExecuting
	for _, step := range p.queue {
		slog.Debug("gpu plan step dispatched", "step", step.String())
		if err := p.rt.dispatch(step); err != nil {
			p.queue = nil
			p.state = stateIdle
			return err
		}
	}

	p.queue = nil
	p.state = stateIdle

	result := p.rt.readback(p.target.Width(), p.target.Height())
	*out = *result
	return nil
}

// Queued reports the currently-planned but not-yet-executed steps.
func (p *Plan) Queued() []StepTag {
	out := make([]StepTag, len(p.queue))
	copy(out, p.queue)
	return out
}

// Close releases the underlying OpenCL context and command queue.
func (p *Plan) Close() {
	if p.rt != nil {
		p.rt.close()
	}
}

// EnumerateDevices lists OpenCL platforms/devices, replacing the
// GUI's device-selection dialog (explicitly out of scope per spec.md
// §1) with a plain listing the CLI's `devices` subcommand renders.
func EnumerateDevices() ([]PlatformInfo, error) {
	return enumeratePlatforms()
}
