// Package gpubackend implements GPUPlan, the OpenCL-backed plan-queue
// driver of spec.md §4.11. Callers enqueue tagged steps (NextPyramid,
// Search, Propagate, Blend) and drain them with ExecuteSteps. The
// package is cgo-gated behind the `gpu` build tag exactly like the
// teacher's renderer_opencl_gpu.go/_stub.go pair: the default build
// provides a stub that reports the backend unavailable so callers can
// fall back to cpubackend without a cgo toolchain or OpenCL headers
// present.
package gpubackend

import "errors"

// DeviceType describes the class of an OpenCL device.
type DeviceType string

const (
	DeviceTypeGPU         DeviceType = "GPU"
	DeviceTypeCPU         DeviceType = "CPU"
	DeviceTypeAccelerator DeviceType = "Accelerator"
	DeviceTypeDefault     DeviceType = "Default"
	DeviceTypeUnknown     DeviceType = "Unknown"
)

// DeviceInfo captures metadata about an OpenCL device.
type DeviceInfo struct {
	Name            string
	Vendor          string
	Version         string
	Type            DeviceType
	MaxComputeUnits uint32
}

// PlatformInfo captures metadata about an OpenCL platform and its devices.
type PlatformInfo struct {
	Name    string
	Vendor  string
	Version string
	Devices []DeviceInfo
}

// StepTag identifies one recorded step in a plan queue.
type StepTag int

const (
	NextPyramid StepTag = iota
	Search
	Propagate
	Blend
)

func (t StepTag) String() string {
	switch t {
	case NextPyramid:
		return "NextPyramid"
	case Search:
		return "Search"
	case Propagate:
		return "Propagate"
	case Blend:
		return "Blend"
	default:
		return "Unknown"
	}
}

// Error taxonomy (spec.md §7). These are the GPU back end's local
// sentinels; engine re-exports them as part of its unified error
// taxonomy rather than the other way around, so this package never
// imports engine.
var (
	ErrInvalidInput              = errors.New("gpubackend: invalid input")
	ErrInvalidState              = errors.New("gpubackend: invalid state")
	ErrResourceExhausted         = errors.New("gpubackend: resource exhausted")
	ErrInternalInvariantViolated = errors.New("gpubackend: internal invariant violated")
	ErrBackendUnavailable        = errors.New("gpubackend: built without the 'gpu' tag or no OpenCL device found")
	ErrBackendNotImplemented     = errors.New("gpubackend: OpenCL kernel dispatch not yet implemented")
)
