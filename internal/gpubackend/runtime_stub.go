//go:build !gpu

package gpubackend

import (
	"fmt"

	"github.com/cwbudde/holefill/internal/raster"
)

// runtime is a placeholder used when the binary is built without the
// `gpu` tag, mirroring the teacher's renderer_opencl_stub.go /
// opencl_runtime_stub.go pair.
type runtime struct{}

func newRuntime(target *raster.Image[raster.RGB], mask *raster.Image[bool], numLevels, patchWidth int) (*runtime, error) {
	return nil, fmt.Errorf("opencl support requires building with '-tags gpu'")
}

func (r *runtime) dispatch(step StepTag) error { return ErrBackendUnavailable }

func (r *runtime) readback(width, height int) *raster.Image[raster.RGB] {
	return raster.New[raster.RGB](width, height)
}

func (r *runtime) close() {}

func enumeratePlatforms() ([]PlatformInfo, error) {
	return nil, ErrBackendUnavailable
}
