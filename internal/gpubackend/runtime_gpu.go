//go:build gpu

package gpubackend

/*
#cgo LDFLAGS: -lOpenCL
#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#include <CL/cl.h>
#include <stdlib.h>

static const char* holefill_cl_error_string(cl_int status) {
	switch (status) {
	case CL_SUCCESS: return "CL_SUCCESS";
	case CL_DEVICE_NOT_FOUND: return "CL_DEVICE_NOT_FOUND";
	case CL_DEVICE_NOT_AVAILABLE: return "CL_DEVICE_NOT_AVAILABLE";
	case CL_COMPILER_NOT_AVAILABLE: return "CL_COMPILER_NOT_AVAILABLE";
	case CL_MEM_OBJECT_ALLOCATION_FAILURE: return "CL_MEM_OBJECT_ALLOCATION_FAILURE";
	case CL_OUT_OF_RESOURCES: return "CL_OUT_OF_RESOURCES";
	case CL_OUT_OF_HOST_MEMORY: return "CL_OUT_OF_HOST_MEMORY";
	case CL_BUILD_PROGRAM_FAILURE: return "CL_BUILD_PROGRAM_FAILURE";
	case CL_INVALID_VALUE: return "CL_INVALID_VALUE";
	case CL_INVALID_DEVICE_TYPE: return "CL_INVALID_DEVICE_TYPE";
	case CL_INVALID_PLATFORM: return "CL_INVALID_PLATFORM";
	case CL_INVALID_DEVICE: return "CL_INVALID_DEVICE";
	case CL_INVALID_CONTEXT: return "CL_INVALID_CONTEXT";
	case CL_INVALID_QUEUE_PROPERTIES: return "CL_INVALID_QUEUE_PROPERTIES";
	case CL_INVALID_COMMAND_QUEUE: return "CL_INVALID_COMMAND_QUEUE";
	case CL_INVALID_MEM_OBJECT: return "CL_INVALID_MEM_OBJECT";
	case CL_INVALID_KERNEL_NAME: return "CL_INVALID_KERNEL_NAME";
	case CL_INVALID_KERNEL: return "CL_INVALID_KERNEL";
	case CL_INVALID_ARG_INDEX: return "CL_INVALID_ARG_INDEX";
	case CL_INVALID_ARG_VALUE: return "CL_INVALID_ARG_VALUE";
	case CL_INVALID_ARG_SIZE: return "CL_INVALID_ARG_SIZE";
	case CL_INVALID_KERNEL_ARGS: return "CL_INVALID_KERNEL_ARGS";
	case CL_INVALID_WORK_GROUP_SIZE: return "CL_INVALID_WORK_GROUP_SIZE";
	case CL_INVALID_WORK_DIMENSION: return "CL_INVALID_WORK_DIMENSION";
	default: return "CL_UNKNOWN_ERROR";
	}
}

static cl_command_queue holefill_create_queue(cl_context ctx, cl_device_id device, cl_int *status) {
#if CL_TARGET_OPENCL_VERSION >= 200
	const cl_queue_properties props[] = {0};
	return clCreateCommandQueueWithProperties(ctx, device, props, status);
#else
	return clCreateCommandQueue(ctx, device, 0, status);
#endif
}
*/
import "C"

import (
	"errors"
	"fmt"
	"math"
	"unsafe"

	"github.com/cwbudde/holefill/internal/anchorfield"
	"github.com/cwbudde/holefill/internal/blend"
	"github.com/cwbudde/holefill/internal/intcoord"
	"github.com/cwbudde/holefill/internal/nnf"
	"github.com/cwbudde/holefill/internal/pyramid"
	"github.com/cwbudde/holefill/internal/raster"
)

// holefillKernelSource holds the three device kernels that implement
// spec.md's search/propagate/blend primitives on top of the same
// weighted-SSD patch cost the CPU back end's patchcost package
// computes. Pyramid rebuilding (downsample/dilate/distance map) stays
// host-side, reusing the pyramid/anchorfield/nnf packages directly,
// exactly as cpubackend.Core does; only the three per-pixel hot loops
// move onto the device.
const holefillKernelSource = `
inline int holefill_possible_anchor(int x, int y, int width, int height, int half) {
    return x - half >= 0 && x + half < width && y - half >= 0 && y + half < height;
}

inline float holefill_patch_cost(
    __global const float4 *source, __global const float4 *target,
    __global const float *weights,
    int sx, int sy, int tx, int ty, int half,
    int srcWidth, int tgtWidth, float costNotToExceed) {

    float sum = 0.0f;
    for (int dy = -half; dy <= half; ++dy) {
        int sRow = (sy + dy) * srcWidth;
        int tRow = (ty + dy) * tgtWidth;
        for (int dx = -half; dx <= half; ++dx) {
            float4 s = source[sRow + sx + dx];
            float4 t = target[tRow + tx + dx];
            float w = weights[tRow + tx + dx];
            float dr = s.x - t.x;
            float dg = s.y - t.y;
            float db = s.z - t.z;
            sum += (dr * dr + dg * dg + db * db) * w;
        }
        if (sum > costNotToExceed) {
            return sum;
        }
    }
    return sum;
}

inline uint holefill_xorshift32(uint state) {
    state ^= state << 13;
    state ^= state >> 17;
    state ^= state << 5;
    return state;
}

__kernel void search_kernel(
    __global const float4 *source, __global const float4 *target,
    __global const uchar *sourceMask, __global const uchar *targetMask,
    __global const float *weights,
    __global int *nnfX, __global int *nnfY, __global float *nnfCost,
    __global uint *rngState,
    int width, int height, int srcWidth, int srcHeight, int patchWidth, int maxRadius) {

    int idx = get_global_id(0);
    if (idx >= width * height) {
        return;
    }
    int x = idx % width;
    int y = idx / width;
    int half = patchWidth / 2;
    if (!targetMask[idx] || !holefill_possible_anchor(x, y, width, height, half)) {
        return;
    }

    int sx = nnfX[idx];
    int sy = nnfY[idx];
    float cost = nnfCost[idx];
    uint state = rngState[idx];
    float r = (float)maxRadius;

    while (r > 1.0f) {
        int rad = (int)r;
        state = holefill_xorshift32(state);
        int dx = (int)(state % (uint)(2 * rad + 1)) - rad;
        state = holefill_xorshift32(state);
        int dy = (int)(state % (uint)(2 * rad + 1)) - rad;

        int cx = clamp(sx + dx, 0, srcWidth - 1);
        int cy = clamp(sy + dy, 0, srcHeight - 1);

        if (holefill_possible_anchor(cx, cy, srcWidth, srcHeight, half) && sourceMask[cy * srcWidth + cx]) {
            float c = holefill_patch_cost(source, target, weights, cx, cy, x, y, half, srcWidth, width, cost);
            if (c < cost) {
                sx = cx;
                sy = cy;
                cost = c;
            }
        }
        r *= 0.5f;
    }

    nnfX[idx] = sx;
    nnfY[idx] = sy;
    nnfCost[idx] = cost;
    rngState[idx] = state;
}

__kernel void propagate_kernel(
    __global const float4 *source, __global const float4 *target,
    __global const uchar *sourceMask, __global const uchar *targetMask,
    __global const float *weights,
    __global const int *nnfX, __global const int *nnfY, __global const float *nnfCost,
    __global int *nextX, __global int *nextY, __global float *nextCost,
    int width, int height, int srcWidth, int srcHeight, int patchWidth, int k) {

    int idx = get_global_id(0);
    if (idx >= width * height) {
        return;
    }
    int x = idx % width;
    int y = idx / width;
    int half = patchWidth / 2;

    int bestX = nnfX[idx];
    int bestY = nnfY[idx];
    float bestCost = nnfCost[idx];

    if (!targetMask[idx] || !holefill_possible_anchor(x, y, width, height, half)) {
        nextX[idx] = bestX;
        nextY[idx] = bestY;
        nextCost[idx] = bestCost;
        return;
    }

    const int offX[8] = {-k, 0, k, -k, k, -k, 0, k};
    const int offY[8] = {-k, -k, -k, 0, 0, k, k, k};

    for (int i = 0; i < 8; ++i) {
        int nx = x + offX[i];
        int ny = y + offY[i];
        if (nx < 0 || ny < 0 || nx >= width || ny >= height) {
            continue;
        }
        int nidx = ny * width + nx;
        if (!targetMask[nidx] || !holefill_possible_anchor(nx, ny, width, height, half)) {
            continue;
        }
        int sCandX = nnfX[nidx] - offX[i];
        int sCandY = nnfY[nidx] - offY[i];
        if (!holefill_possible_anchor(sCandX, sCandY, srcWidth, srcHeight, half)) {
            continue;
        }
        if (!sourceMask[sCandY * srcWidth + sCandX]) {
            continue;
        }
        float c = holefill_patch_cost(source, target, weights, sCandX, sCandY, x, y, half, srcWidth, width, bestCost);
        if (c < bestCost) {
            bestX = sCandX;
            bestY = sCandY;
            bestCost = c;
        }
    }

    nextX[idx] = bestX;
    nextY[idx] = bestY;
    nextCost[idx] = bestCost;
}

__kernel void blend_kernel(
    __global const float4 *source, __global const float4 *prevTarget,
    __global const uchar *sourceMask, __global const uchar *targetMask,
    __global const float *weights,
    __global const int *nnfX, __global const int *nnfY,
    __global float4 *outTarget,
    int width, int height, int srcWidth, int srcHeight, int patchWidth) {

    int idx = get_global_id(0);
    if (idx >= width * height) {
        return;
    }
    int x = idx % width;
    int y = idx / width;

    if (!targetMask[idx]) {
        outTarget[idx] = prevTarget[idx];
        return;
    }

    int half = patchWidth / 2;
    float rSum = 0.0f, gSum = 0.0f, bSum = 0.0f, wSum = 0.0f;
    int any = 0;

    for (int py = -half; py <= half; ++py) {
        int ay = y + py;
        if (ay < 0 || ay >= height) {
            continue;
        }
        for (int px = -half; px <= half; ++px) {
            int ax = x + px;
            if (ax < 0 || ax >= width || !holefill_possible_anchor(ax, ay, width, height, half)) {
                continue;
            }
            int aidx = ay * width + ax;
            if (!targetMask[aidx]) {
                continue;
            }

            int sAnchorX = nnfX[aidx];
            int sAnchorY = nnfY[aidx];
            int sx = sAnchorX - px;
            int sy = sAnchorY - py;
            if (sx < 0 || sy < 0 || sx >= srcWidth || sy >= srcHeight || !sourceMask[sy * srcWidth + sx]) {
                continue;
            }

            int coherence = 0;
            for (int j = -1; j <= 1; ++j) {
                for (int i = -1; i <= 1; ++i) {
                    if (i == 0 && j == 0) {
                        continue;
                    }
                    int nx = ax + i;
                    int ny = ay + j;
                    if (nx < 0 || ny < 0 || nx >= width || ny >= height) {
                        continue;
                    }
                    int nidx = ny * width + nx;
                    if (nnfX[nidx] == sAnchorX + i && nnfY[nidx] == sAnchorY + j) {
                        coherence++;
                    }
                }
            }

            float weight = weights[aidx] + 0.5f * (float)(coherence * coherence);
            float4 c = source[sy * srcWidth + sx];
            rSum += c.x * weight;
            gSum += c.y * weight;
            bSum += c.z * weight;
            wSum += weight;
            any = 1;
        }
    }

    if (!any || wSum == 0.0f) {
        outTarget[idx] = (float4)(0.0f, 0.0f, 0.0f, 0.0f);
    } else {
        outTarget[idx] = (float4)(rSum / wSum, gSum / wSum, bSum / wSum, 0.0f);
    }
}
`

// runtime owns the OpenCL context, command queue, compiled program,
// and the current pyramid level's device buffers for one Plan. Device
// selection mirrors the teacher's gpu.Runtime exactly (GPU preferred,
// then CPU, then first available); everything from the program build
// down is new, grounded on the shape of renderer_opencl_gpu.go's
// init()/ensure()/release() split rather than its content.
type runtime struct {
	platformID C.cl_platform_id
	deviceID   C.cl_device_id
	context    C.cl_context
	queue      C.cl_command_queue
	platform   PlatformInfo
	device     DeviceInfo

	program         C.cl_program
	kernelSearch    C.cl_kernel
	kernelPropagate C.cl_kernel
	kernelBlend     C.cl_kernel

	patchWidth int
	levels     []pyramid.Plan
	idx        int

	origTarget *raster.Image[raster.RGB]
	origSource *raster.Image[raster.RGB]
	origMask   *raster.Image[bool]

	// Host mirrors of the current level. These are rebuilt by
	// enterLevel using the same pyramid/anchorfield/nnf primitives
	// cpubackend.Core uses, and kept in sync with the device buffers
	// below after every Blend (target) and before every NextPyramid
	// (target and field), so a level transition never needs its own
	// device-side resampling kernels.
	targetCur     *raster.Image[raster.RGB]
	sourceCur     *raster.Image[raster.RGB]
	targetMaskCur *raster.Image[bool]
	sourceMaskCur *raster.Image[bool]
	weightsCur    *anchorfield.Field
	fieldCur      *nnf.Field

	width, height       int
	srcWidth, srcHeight int

	bufSource      C.cl_mem
	bufTarget      C.cl_mem
	bufSourceMask  C.cl_mem
	bufTargetMask  C.cl_mem
	bufWeights     C.cl_mem
	bufNNFX        C.cl_mem
	bufNNFY        C.cl_mem
	bufNNFCost     C.cl_mem
	bufNNFXNext    C.cl_mem
	bufNNFYNext    C.cl_mem
	bufNNFCostNext C.cl_mem
	bufRNGState    C.cl_mem
	bufBlendOut    C.cl_mem
}

var errNoDevices = errors.New("no OpenCL devices found")

// newRuntime selects a device, builds the kernel program, computes
// the pyramid schedule for target/mask via pyramid.BuildPlan, and
// uploads the coarsest level's buffers — the GPU-plan equivalent of
// cpubackend.NewCore's constructor-time enterLevel(true) call.
func newRuntime(target *raster.Image[raster.RGB], mask *raster.Image[bool], numLevels, patchWidth int) (*runtime, error) {
	records, err := enumeratePlatformRecords()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errNoDevices
	}

	type selection struct {
		platform platformRecord
		device   deviceRecord
	}
	var chosen *selection

	for _, platform := range records {
		for _, device := range platform.devices {
			if device.info.Type == DeviceTypeGPU {
				chosen = &selection{platform, device}
				break
			}
		}
		if chosen != nil {
			break
		}
	}
	if chosen == nil {
		for _, platform := range records {
			for _, device := range platform.devices {
				if device.info.Type == DeviceTypeCPU {
					chosen = &selection{platform, device}
					break
				}
			}
			if chosen != nil {
				break
			}
		}
	}
	if chosen == nil {
		for _, platform := range records {
			if len(platform.devices) == 0 {
				continue
			}
			chosen = &selection{platform, platform.devices[0]}
			break
		}
	}
	if chosen == nil {
		return nil, errNoDevices
	}

	var status C.cl_int
	context := C.clCreateContext(nil, 1, &chosen.device.id, nil, nil, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateContext", status)
	}

	queue := C.holefill_create_queue(context, chosen.device.id, &status)
	if status != C.CL_SUCCESS {
		C.clReleaseContext(context)
		return nil, statusError("clCreateCommandQueue", status)
	}

	r := &runtime{
		platformID: chosen.platform.id,
		deviceID:   chosen.device.id,
		context:    context,
		queue:      queue,
		platform:   chosen.platform.info,
		device:     chosen.device.info,
		patchWidth: patchWidth,
		origTarget: target.Clone(),
		origSource: target.Clone(),
		origMask:   mask.Clone(),
	}

	if err := r.buildProgram(); err != nil {
		r.close()
		return nil, err
	}

	origSize := pyramid.Size{Width: target.Width(), Height: target.Height()}
	levels, err := pyramid.BuildPlan(numLevels, patchWidth, origSize, origSize)
	if err != nil {
		r.close()
		return nil, err
	}
	r.levels = levels
	r.idx = 0

	if err := r.enterLevel(true); err != nil {
		r.close()
		return nil, err
	}
	return r, nil
}

func (r *runtime) buildProgram() error {
	source := C.CString(holefillKernelSource)
	defer C.free(unsafe.Pointer(source))

	var status C.cl_int
	r.program = C.clCreateProgramWithSource(r.context, 1, &source, nil, &status)
	if status != C.CL_SUCCESS {
		return statusError("clCreateProgramWithSource", status)
	}

	status = C.clBuildProgram(r.program, 1, &r.deviceID, nil, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clBuildProgram", status)
	}

	search := C.CString("search_kernel")
	defer C.free(unsafe.Pointer(search))
	r.kernelSearch = C.clCreateKernel(r.program, search, &status)
	if status != C.CL_SUCCESS {
		return statusError("clCreateKernel(search_kernel)", status)
	}

	propagate := C.CString("propagate_kernel")
	defer C.free(unsafe.Pointer(propagate))
	r.kernelPropagate = C.clCreateKernel(r.program, propagate, &status)
	if status != C.CL_SUCCESS {
		return statusError("clCreateKernel(propagate_kernel)", status)
	}

	blendName := C.CString("blend_kernel")
	defer C.free(unsafe.Pointer(blendName))
	r.kernelBlend = C.clCreateKernel(r.program, blendName, &status)
	if status != C.CL_SUCCESS {
		return statusError("clCreateKernel(blend_kernel)", status)
	}

	return nil
}

// enterLevel (re)builds every current-level host buffer for
// r.levels[r.idx] and uploads it to the device, adapted line for line
// from cpubackend.Core.enterLevel — the pyramid rebuild itself is
// identical between back ends, only the destination (Go struct vs.
// OpenCL buffer) differs.
func (r *runtime) enterLevel(coarsest bool) error {
	level := r.levels[r.idx]
	srcW, srcH := level.Source.Width, level.Source.Height

	newTarget := pyramid.Downsample(r.origTarget, level.Target.Width, level.Target.Height)
	newSource := pyramid.Downsample(r.origSource, srcW, srcH)
	newTargetMask := pyramid.DownsampleBool(r.origMask, level.Target.Width, level.Target.Height, true)
	newSourceMask := raster.New[bool](srcW, srcH)
	se, anchor := pyramid.FullPatchStructuringElement(r.patchWidth)
	dilated, err := pyramid.Dilate(newTargetMask, se, anchor)
	if err != nil {
		return fmt.Errorf("gpubackend: %w", err)
	}
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
	weights := anchorfield.Build(distance, r.patchWidth)

	if !coarsest && r.targetCur != nil {
		upsampled := pyramid.UpsampleRGB(r.targetCur, level.Target.Width, level.Target.Height)
		for y := 0; y < level.Target.Height; y++ {
			for x := 0; x < level.Target.Width; x++ {
				if newTargetMask.At(x, y) {
					newTarget.Set(x, y, upsampled.At(x, y))
				}
			}
		}
	}

	var field *nnf.Field
	if coarsest || r.fieldCur == nil {
		f, err := nnf.Init(newSource, newTarget, newSourceMask, newTargetMask, weights, r.patchWidth, nnf.NewRNG(uint64(r.idx)))
		if err != nil {
			return fmt.Errorf("gpubackend: %w", err)
		}
		field = f
		blend.Diffuse(newTarget, newTargetMask, 100)
	} else {
		field = nnf.Upsample(r.fieldCur, level.Target.Width, level.Target.Height, newSourceMask)
	}

	r.targetCur = newTarget
	r.sourceCur = newSource
	r.targetMaskCur = newTargetMask
	r.sourceMaskCur = newSourceMask
	r.weightsCur = weights
	r.fieldCur = field

	return r.uploadLevel()
}

func (r *runtime) uploadLevel() error {
	r.releaseLevelBuffers()

	w, h := r.targetCur.Width(), r.targetCur.Height()
	sw, sh := r.sourceCur.Width(), r.sourceCur.Height()
	r.width, r.height = w, h
	r.srcWidth, r.srcHeight = sw, sh

	var err error
	if r.bufSource, err = r.bufferF32(C.CL_MEM_READ_ONLY|C.CL_MEM_COPY_HOST_PTR, rgbToFloat4(r.sourceCur)); err != nil {
		return err
	}
	if r.bufTarget, err = r.bufferF32(C.CL_MEM_READ_WRITE|C.CL_MEM_COPY_HOST_PTR, rgbToFloat4(r.targetCur)); err != nil {
		return err
	}
	if r.bufSourceMask, err = r.bufferU8(C.CL_MEM_READ_ONLY|C.CL_MEM_COPY_HOST_PTR, boolToUchar(r.sourceMaskCur)); err != nil {
		return err
	}
	if r.bufTargetMask, err = r.bufferU8(C.CL_MEM_READ_ONLY|C.CL_MEM_COPY_HOST_PTR, boolToUchar(r.targetMaskCur)); err != nil {
		return err
	}
	if r.bufWeights, err = r.bufferF32(C.CL_MEM_READ_ONLY|C.CL_MEM_COPY_HOST_PTR, weightsToFloat32(r.weightsCur)); err != nil {
		return err
	}

	xs, ys := coordsToInt32(r.fieldCur.Coords)
	if r.bufNNFX, err = r.bufferI32(C.CL_MEM_READ_WRITE|C.CL_MEM_COPY_HOST_PTR, xs); err != nil {
		return err
	}
	if r.bufNNFY, err = r.bufferI32(C.CL_MEM_READ_WRITE|C.CL_MEM_COPY_HOST_PTR, ys); err != nil {
		return err
	}
	if r.bufNNFCost, err = r.bufferF32(C.CL_MEM_READ_WRITE|C.CL_MEM_COPY_HOST_PTR, costsToFloat32(r.fieldCur.Costs)); err != nil {
		return err
	}

	if r.bufNNFXNext, err = r.emptyBufferI32(C.CL_MEM_READ_WRITE, w*h); err != nil {
		return err
	}
	if r.bufNNFYNext, err = r.emptyBufferI32(C.CL_MEM_READ_WRITE, w*h); err != nil {
		return err
	}
	if r.bufNNFCostNext, err = r.emptyBufferF32(C.CL_MEM_READ_WRITE, w*h); err != nil {
		return err
	}
	if r.bufBlendOut, err = r.emptyBufferF32(C.CL_MEM_READ_WRITE, w*h*4); err != nil {
		return err
	}

	seeds := make([]uint32, w*h)
	salt := uint32(r.idx)*0x9e3779b9 + 1
	for i := range seeds {
		seeds[i] = uint32(i)*2654435761 + salt
	}
	if r.bufRNGState, err = r.bufferU32(C.CL_MEM_READ_WRITE|C.CL_MEM_COPY_HOST_PTR, seeds); err != nil {
		return err
	}

	return nil
}

func (r *runtime) releaseLevelBuffers() {
	bufs := []C.cl_mem{
		r.bufSource, r.bufTarget, r.bufSourceMask, r.bufTargetMask, r.bufWeights,
		r.bufNNFX, r.bufNNFY, r.bufNNFCost,
		r.bufNNFXNext, r.bufNNFYNext, r.bufNNFCostNext,
		r.bufRNGState, r.bufBlendOut,
	}
	for _, buf := range bufs {
		if buf != nil {
			C.clReleaseMemObject(buf)
		}
	}
	r.bufSource, r.bufTarget, r.bufSourceMask, r.bufTargetMask, r.bufWeights = nil, nil, nil, nil, nil
	r.bufNNFX, r.bufNNFY, r.bufNNFCost = nil, nil, nil
	r.bufNNFXNext, r.bufNNFYNext, r.bufNNFCostNext = nil, nil, nil
	r.bufRNGState, r.bufBlendOut = nil, nil
}

// dispatch enqueues the OpenCL kernel (or, for NextPyramid, the
// host-side pyramid rebuild) for one queued step.
func (r *runtime) dispatch(step StepTag) error {
	switch step {
	case Search:
		return r.runSearch()
	case Propagate:
		return r.runPropagate()
	case Blend:
		return r.runBlend()
	case NextPyramid:
		if r.idx == len(r.levels)-1 {
			return nil
		}
		if err := r.syncFieldFromDevice(); err != nil {
			return err
		}
		if err := r.syncTargetFromDevice(); err != nil {
			return err
		}
		r.idx++
		return r.enterLevel(false)
	default:
		return fmt.Errorf("%w: unknown step %s", ErrInvalidInput, step.String())
	}
}

func (r *runtime) runSearch() error {
	maxR := r.srcWidth
	if r.srcHeight > maxR {
		maxR = r.srcHeight
	}

	k := r.kernelSearch
	if err := setArgMem(k, 0, r.bufSource); err != nil {
		return err
	}
	if err := setArgMem(k, 1, r.bufTarget); err != nil {
		return err
	}
	if err := setArgMem(k, 2, r.bufSourceMask); err != nil {
		return err
	}
	if err := setArgMem(k, 3, r.bufTargetMask); err != nil {
		return err
	}
	if err := setArgMem(k, 4, r.bufWeights); err != nil {
		return err
	}
	if err := setArgMem(k, 5, r.bufNNFX); err != nil {
		return err
	}
	if err := setArgMem(k, 6, r.bufNNFY); err != nil {
		return err
	}
	if err := setArgMem(k, 7, r.bufNNFCost); err != nil {
		return err
	}
	if err := setArgMem(k, 8, r.bufRNGState); err != nil {
		return err
	}
	if err := setArgInt(k, 9, int32(r.width)); err != nil {
		return err
	}
	if err := setArgInt(k, 10, int32(r.height)); err != nil {
		return err
	}
	if err := setArgInt(k, 11, int32(r.srcWidth)); err != nil {
		return err
	}
	if err := setArgInt(k, 12, int32(r.srcHeight)); err != nil {
		return err
	}
	if err := setArgInt(k, 13, int32(r.patchWidth)); err != nil {
		return err
	}
	if err := setArgInt(k, 14, int32(maxR)); err != nil {
		return err
	}

	return r.enqueue1D(k, r.width*r.height)
}

// runPropagate performs the same jump-flood schedule as
// propagate.runJumpFlood: radius starts at ceil(log2(maxDim)) and
// halves each round, each round reading one NNF buffer pair and
// writing a fresh one so no work-item ever observes a partially
// updated round.
func (r *runtime) runPropagate() error {
	maxDim := r.width
	if r.height > maxDim {
		maxDim = r.height
	}
	radius := int(math.Ceil(math.Log2(float64(maxDim))))

	for radius > 0 {
		k := r.kernelPropagate
		if err := setArgMem(k, 0, r.bufSource); err != nil {
			return err
		}
		if err := setArgMem(k, 1, r.bufTarget); err != nil {
			return err
		}
		if err := setArgMem(k, 2, r.bufSourceMask); err != nil {
			return err
		}
		if err := setArgMem(k, 3, r.bufTargetMask); err != nil {
			return err
		}
		if err := setArgMem(k, 4, r.bufWeights); err != nil {
			return err
		}
		if err := setArgMem(k, 5, r.bufNNFX); err != nil {
			return err
		}
		if err := setArgMem(k, 6, r.bufNNFY); err != nil {
			return err
		}
		if err := setArgMem(k, 7, r.bufNNFCost); err != nil {
			return err
		}
		if err := setArgMem(k, 8, r.bufNNFXNext); err != nil {
			return err
		}
		if err := setArgMem(k, 9, r.bufNNFYNext); err != nil {
			return err
		}
		if err := setArgMem(k, 10, r.bufNNFCostNext); err != nil {
			return err
		}
		if err := setArgInt(k, 11, int32(r.width)); err != nil {
			return err
		}
		if err := setArgInt(k, 12, int32(r.height)); err != nil {
			return err
		}
		if err := setArgInt(k, 13, int32(r.srcWidth)); err != nil {
			return err
		}
		if err := setArgInt(k, 14, int32(r.srcHeight)); err != nil {
			return err
		}
		if err := setArgInt(k, 15, int32(r.patchWidth)); err != nil {
			return err
		}
		if err := setArgInt(k, 16, int32(radius)); err != nil {
			return err
		}

		if err := r.enqueue1D(k, r.width*r.height); err != nil {
			return err
		}

		r.bufNNFX, r.bufNNFXNext = r.bufNNFXNext, r.bufNNFX
		r.bufNNFY, r.bufNNFYNext = r.bufNNFYNext, r.bufNNFY
		r.bufNNFCost, r.bufNNFCostNext = r.bufNNFCostNext, r.bufNNFCost

		radius /= 2
	}
	return nil
}

func (r *runtime) runBlend() error {
	k := r.kernelBlend
	if err := setArgMem(k, 0, r.bufSource); err != nil {
		return err
	}
	if err := setArgMem(k, 1, r.bufTarget); err != nil {
		return err
	}
	if err := setArgMem(k, 2, r.bufSourceMask); err != nil {
		return err
	}
	if err := setArgMem(k, 3, r.bufTargetMask); err != nil {
		return err
	}
	if err := setArgMem(k, 4, r.bufWeights); err != nil {
		return err
	}
	if err := setArgMem(k, 5, r.bufNNFX); err != nil {
		return err
	}
	if err := setArgMem(k, 6, r.bufNNFY); err != nil {
		return err
	}
	if err := setArgMem(k, 7, r.bufBlendOut); err != nil {
		return err
	}
	if err := setArgInt(k, 8, int32(r.width)); err != nil {
		return err
	}
	if err := setArgInt(k, 9, int32(r.height)); err != nil {
		return err
	}
	if err := setArgInt(k, 10, int32(r.srcWidth)); err != nil {
		return err
	}
	if err := setArgInt(k, 11, int32(r.srcHeight)); err != nil {
		return err
	}
	if err := setArgInt(k, 12, int32(r.patchWidth)); err != nil {
		return err
	}

	if err := r.enqueue1D(k, r.width*r.height); err != nil {
		return err
	}

	r.bufTarget, r.bufBlendOut = r.bufBlendOut, r.bufTarget
	return r.syncTargetFromDevice()
}

func (r *runtime) enqueue1D(kernel C.cl_kernel, n int) error {
	global := C.size_t(n)
	status := C.clEnqueueNDRangeKernel(r.queue, kernel, 1, nil, &global, nil, 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueNDRangeKernel", status)
	}
	status = C.clFinish(r.queue)
	if status != C.CL_SUCCESS {
		return statusError("clFinish", status)
	}
	return nil
}

func (r *runtime) syncTargetFromDevice() error {
	n := r.width * r.height
	buf := make([]float32, n*4)
	status := C.clEnqueueReadBuffer(r.queue, r.bufTarget, C.CL_TRUE, 0, C.size_t(len(buf)*4), unsafe.Pointer(&buf[0]), 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueReadBuffer(target)", status)
	}
	r.targetCur = float4ToRGB(buf, r.width, r.height)
	return nil
}

func (r *runtime) syncFieldFromDevice() error {
	n := r.width * r.height
	xs := make([]int32, n)
	ys := make([]int32, n)
	costs := make([]float32, n)
	if status := C.clEnqueueReadBuffer(r.queue, r.bufNNFX, C.CL_TRUE, 0, C.size_t(n*4), unsafe.Pointer(&xs[0]), 0, nil, nil); status != C.CL_SUCCESS {
		return statusError("clEnqueueReadBuffer(nnfX)", status)
	}
	if status := C.clEnqueueReadBuffer(r.queue, r.bufNNFY, C.CL_TRUE, 0, C.size_t(n*4), unsafe.Pointer(&ys[0]), 0, nil, nil); status != C.CL_SUCCESS {
		return statusError("clEnqueueReadBuffer(nnfY)", status)
	}
	if status := C.clEnqueueReadBuffer(r.queue, r.bufNNFCost, C.CL_TRUE, 0, C.size_t(n*4), unsafe.Pointer(&costs[0]), 0, nil, nil); status != C.CL_SUCCESS {
		return statusError("clEnqueueReadBuffer(nnfCost)", status)
	}
	r.fieldCur = &nnf.Field{
		Coords: int32ToCoords(xs, ys, r.width, r.height),
		Costs:  float32ToFloat64Image(costs, r.width, r.height),
	}
	return nil
}

func (r *runtime) readback(width, height int) *raster.Image[raster.RGB] {
	if r.targetCur == nil {
		return raster.New[raster.RGB](width, height)
	}
	return r.targetCur.Clone()
}

func (r *runtime) close() {
	if r == nil {
		return
	}
	r.releaseLevelBuffers()
	if r.kernelSearch != nil {
		C.clReleaseKernel(r.kernelSearch)
		r.kernelSearch = nil
	}
	if r.kernelPropagate != nil {
		C.clReleaseKernel(r.kernelPropagate)
		r.kernelPropagate = nil
	}
	if r.kernelBlend != nil {
		C.clReleaseKernel(r.kernelBlend)
		r.kernelBlend = nil
	}
	if r.program != nil {
		C.clReleaseProgram(r.program)
		r.program = nil
	}
	if r.queue != nil {
		C.clReleaseCommandQueue(r.queue)
		r.queue = nil
	}
	if r.context != nil {
		C.clReleaseContext(r.context)
		r.context = nil
	}
}

// --- buffer marshaling helpers ---

func rgbToFloat4(img *raster.Image[raster.RGB]) []float32 {
	pix := img.Pixels()
	out := make([]float32, len(pix)*4)
	for i, p := range pix {
		out[i*4+0] = float32(p.R)
		out[i*4+1] = float32(p.G)
		out[i*4+2] = float32(p.B)
		out[i*4+3] = 0
	}
	return out
}

func float4ToRGB(buf []float32, w, h int) *raster.Image[raster.RGB] {
	pix := make([]raster.RGB, w*h)
	for i := range pix {
		pix[i] = raster.RGB{R: float64(buf[i*4+0]), G: float64(buf[i*4+1]), B: float64(buf[i*4+2])}
	}
	return raster.FromPixels(w, h, pix)
}

func boolToUchar(img *raster.Image[bool]) []byte {
	pix := img.Pixels()
	out := make([]byte, len(pix))
	for i, v := range pix {
		if v {
			out[i] = 1
		}
	}
	return out
}

func weightsToFloat32(field *anchorfield.Field) []float32 {
	pix := field.Pixels()
	out := make([]float32, len(pix))
	for i, v := range pix {
		out[i] = float32(v)
	}
	return out
}

func costsToFloat32(field *raster.Image[float64]) []float32 {
	pix := field.Pixels()
	out := make([]float32, len(pix))
	for i, v := range pix {
		out[i] = float32(v)
	}
	return out
}

func float32ToFloat64Image(buf []float32, w, h int) *raster.Image[float64] {
	pix := make([]float64, w*h)
	for i, v := range buf {
		pix[i] = float64(v)
	}
	return raster.FromPixels(w, h, pix)
}

func coordsToInt32(field *raster.Image[intcoord.Coord]) (xs, ys []int32) {
	pix := field.Pixels()
	xs = make([]int32, len(pix))
	ys = make([]int32, len(pix))
	for i, c := range pix {
		xs[i] = int32(c.X)
		ys[i] = int32(c.Y)
	}
	return xs, ys
}

func int32ToCoords(xs, ys []int32, w, h int) *raster.Image[intcoord.Coord] {
	pix := make([]intcoord.Coord, w*h)
	for i := range pix {
		pix[i] = intcoord.Coord{X: int(xs[i]), Y: int(ys[i])}
	}
	return raster.FromPixels(w, h, pix)
}

// --- OpenCL buffer/argument plumbing ---

func (r *runtime) createBuffer(flags C.cl_mem_flags, byteSize int, ptr unsafe.Pointer) (C.cl_mem, error) {
	size := C.size_t(byteSize)
	if size == 0 {
		size = 1
	}
	var status C.cl_int
	buf := C.clCreateBuffer(r.context, flags, size, ptr, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateBuffer", status)
	}
	return buf, nil
}

func (r *runtime) bufferF32(flags C.cl_mem_flags, data []float32) (C.cl_mem, error) {
	var ptr unsafe.Pointer
	if len(data) > 0 {
		ptr = unsafe.Pointer(&data[0])
	}
	return r.createBuffer(flags, len(data)*4, ptr)
}

func (r *runtime) bufferI32(flags C.cl_mem_flags, data []int32) (C.cl_mem, error) {
	var ptr unsafe.Pointer
	if len(data) > 0 {
		ptr = unsafe.Pointer(&data[0])
	}
	return r.createBuffer(flags, len(data)*4, ptr)
}

func (r *runtime) bufferU8(flags C.cl_mem_flags, data []byte) (C.cl_mem, error) {
	var ptr unsafe.Pointer
	if len(data) > 0 {
		ptr = unsafe.Pointer(&data[0])
	}
	return r.createBuffer(flags, len(data), ptr)
}

func (r *runtime) bufferU32(flags C.cl_mem_flags, data []uint32) (C.cl_mem, error) {
	var ptr unsafe.Pointer
	if len(data) > 0 {
		ptr = unsafe.Pointer(&data[0])
	}
	return r.createBuffer(flags, len(data)*4, ptr)
}

func (r *runtime) emptyBufferF32(flags C.cl_mem_flags, n int) (C.cl_mem, error) {
	return r.createBuffer(flags, n*4, nil)
}

func (r *runtime) emptyBufferI32(flags C.cl_mem_flags, n int) (C.cl_mem, error) {
	return r.createBuffer(flags, n*4, nil)
}

func setArgMem(kernel C.cl_kernel, index int, buf C.cl_mem) error {
	status := C.clSetKernelArg(kernel, C.cl_uint(index), C.size_t(unsafe.Sizeof(buf)), unsafe.Pointer(&buf))
	if status != C.CL_SUCCESS {
		return statusError(fmt.Sprintf("clSetKernelArg(%d)", index), status)
	}
	return nil
}

func setArgInt(kernel C.cl_kernel, index int, v int32) error {
	c := C.cl_int(v)
	status := C.clSetKernelArg(kernel, C.cl_uint(index), C.size_t(unsafe.Sizeof(c)), unsafe.Pointer(&c))
	if status != C.CL_SUCCESS {
		return statusError(fmt.Sprintf("clSetKernelArg(%d)", index), status)
	}
	return nil
}

// --- device/platform enumeration (unchanged device-selection shape) ---

func enumeratePlatforms() ([]PlatformInfo, error) {
	records, err := enumeratePlatformRecords()
	if err != nil {
		return nil, err
	}
	out := make([]PlatformInfo, len(records))
	for i, platform := range records {
		devices := make([]DeviceInfo, len(platform.devices))
		for j, device := range platform.devices {
			devices[j] = device.info
		}
		info := platform.info
		info.Devices = devices
		out[i] = info
	}
	return out, nil
}

type platformRecord struct {
	id      C.cl_platform_id
	info    PlatformInfo
	devices []deviceRecord
}

type deviceRecord struct {
	id   C.cl_device_id
	info DeviceInfo
}

func enumeratePlatformRecords() ([]platformRecord, error) {
	var count C.cl_uint
	status := C.clGetPlatformIDs(0, nil, &count)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetPlatformIDs(count)", status)
	}
	if count == 0 {
		return nil, nil
	}

	platformIDs := make([]C.cl_platform_id, int(count))
	status = C.clGetPlatformIDs(count, &platformIDs[0], nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetPlatformIDs(list)", status)
	}

	records := make([]platformRecord, 0, int(count))
	for _, pid := range platformIDs {
		name, err := getPlatformString(pid, C.CL_PLATFORM_NAME)
		if err != nil {
			return nil, err
		}
		vendor, err := getPlatformString(pid, C.CL_PLATFORM_VENDOR)
		if err != nil {
			return nil, err
		}
		version, err := getPlatformString(pid, C.CL_PLATFORM_VERSION)
		if err != nil {
			return nil, err
		}

		rec := platformRecord{id: pid, info: PlatformInfo{Name: name, Vendor: vendor, Version: version}}

		devices, err := enumerateDevices(pid)
		if err != nil {
			if errors.Is(err, errNoDevices) {
				records = append(records, rec)
				continue
			}
			return nil, err
		}
		rec.devices = devices
		rec.info.Devices = make([]DeviceInfo, len(devices))
		for i, d := range devices {
			rec.info.Devices[i] = d.info
		}
		records = append(records, rec)
	}
	return records, nil
}

func enumerateDevices(platform C.cl_platform_id) ([]deviceRecord, error) {
	var count C.cl_uint
	status := C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_ALL, 0, nil, &count)
	if status == C.CL_DEVICE_NOT_FOUND {
		return nil, errNoDevices
	}
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceIDs(count)", status)
	}
	if count == 0 {
		return nil, errNoDevices
	}

	deviceIDs := make([]C.cl_device_id, int(count))
	status = C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_ALL, count, &deviceIDs[0], nil)
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceIDs(list)", status)
	}

	devices := make([]deviceRecord, 0, int(count))
	for _, id := range deviceIDs {
		info, err := buildDeviceInfo(id)
		if err != nil {
			return nil, err
		}
		devices = append(devices, deviceRecord{id: id, info: info})
	}
	return devices, nil
}

func buildDeviceInfo(id C.cl_device_id) (DeviceInfo, error) {
	name, err := getDeviceString(id, C.CL_DEVICE_NAME)
	if err != nil {
		return DeviceInfo{}, err
	}
	vendor, err := getDeviceString(id, C.CL_DEVICE_VENDOR)
	if err != nil {
		return DeviceInfo{}, err
	}
	version, err := getDeviceString(id, C.CL_DEVICE_VERSION)
	if err != nil {
		return DeviceInfo{}, err
	}

	var rawType C.cl_device_type
	status := C.clGetDeviceInfo(id, C.CL_DEVICE_TYPE, C.size_t(unsafe.Sizeof(rawType)), unsafe.Pointer(&rawType), nil)
	if status != C.CL_SUCCESS {
		return DeviceInfo{}, statusError("clGetDeviceInfo(type)", status)
	}

	var computeUnits C.cl_uint
	status = C.clGetDeviceInfo(id, C.CL_DEVICE_MAX_COMPUTE_UNITS, C.size_t(unsafe.Sizeof(computeUnits)), unsafe.Pointer(&computeUnits), nil)
	if status != C.CL_SUCCESS {
		return DeviceInfo{}, statusError("clGetDeviceInfo(computeUnits)", status)
	}

	return DeviceInfo{
		Name:            name,
		Vendor:          vendor,
		Version:         version,
		Type:            mapDeviceType(rawType),
		MaxComputeUnits: uint32(computeUnits),
	}, nil
}

func getPlatformString(id C.cl_platform_id, param C.cl_platform_info) (string, error) {
	var size C.size_t
	status := C.clGetPlatformInfo(id, param, 0, nil, &size)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetPlatformInfo(size)", status)
	}
	if size == 0 {
		return "", nil
	}
	buf := make([]byte, int(size))
	status = C.clGetPlatformInfo(id, param, size, unsafe.Pointer(&buf[0]), nil)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetPlatformInfo(value)", status)
	}
	return trimNull(buf), nil
}

func getDeviceString(id C.cl_device_id, param C.cl_device_info) (string, error) {
	var size C.size_t
	status := C.clGetDeviceInfo(id, param, 0, nil, &size)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetDeviceInfo(size)", status)
	}
	if size == 0 {
		return "", nil
	}
	buf := make([]byte, int(size))
	status = C.clGetDeviceInfo(id, param, size, unsafe.Pointer(&buf[0]), nil)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetDeviceInfo(value)", status)
	}
	return trimNull(buf), nil
}

func trimNull(buf []byte) string {
	if len(buf) == 0 {
		return ""
	}
	if buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}
	return string(buf)
}

func mapDeviceType(dt C.cl_device_type) DeviceType {
	switch {
	case dt&C.CL_DEVICE_TYPE_GPU != 0:
		return DeviceTypeGPU
	case dt&C.CL_DEVICE_TYPE_CPU != 0:
		return DeviceTypeCPU
	case dt&C.CL_DEVICE_TYPE_ACCELERATOR != 0:
		return DeviceTypeAccelerator
	case dt&C.CL_DEVICE_TYPE_DEFAULT != 0:
		return DeviceTypeDefault
	default:
		return DeviceTypeUnknown
	}
}

func statusError(prefix string, status C.cl_int) error {
	return fmt.Errorf("%s: %s (%d)", prefix, C.GoString(C.holefill_cl_error_string(status)), int(status))
}
