package rhi

import (
	"context"
	"fmt"
)

// PipelineDesc describes a graphics pipeline with one subpass.
type PipelineDesc struct {
	Label  string
	Raster RasterStyle

	// ColorFormats lists the color attachments in framebuffer order.
	ColorFormats []ImageFormat
	// DepthFormat is the depth attachment format, or nil for none.
	DepthFormat *ImageFormat

	// MaxBoundBuffers sizes the bindless storage buffer set.
	MaxBoundBuffers uint32
	// MaxBoundTextures sizes the bindless sampled texture set.
	MaxBoundTextures uint32

	// VertexShader and FragmentShader are paths to shader bytecode.
	VertexShader   string
	FragmentShader string

	// VertexEntry and FragmentEntry name the shader entry points. Empty
	// means DefaultEntryPoint.
	VertexEntry   string
	FragmentEntry string
}

// DefaultEntryPoint is the entry point used when a PipelineDesc leaves it empty.
const DefaultEntryPoint = "main"

// EntryPoints returns the vertex and fragment entry points with defaults applied.
func (d *PipelineDesc) EntryPoints() (vertex, fragment string) {
	vertex, fragment = d.VertexEntry, d.FragmentEntry
	if vertex == "" {
		vertex = DefaultEntryPoint
	}
	if fragment == "" {
		fragment = DefaultEntryPoint
	}
	return vertex, fragment
}

// Validate checks the description without touching the file system.
func (d *PipelineDesc) Validate() error {
	if len(d.ColorFormats) == 0 && d.DepthFormat == nil {
		return fmt.Errorf("%w: pipeline has no attachments", ErrInvalidArgument)
	}
	for i, f := range d.ColorFormats {
		if f.IsDepth() {
			return fmt.Errorf("%w: color attachment %d has depth format", ErrInvalidArgument, i)
		}
	}
	if d.DepthFormat != nil && !d.DepthFormat.IsDepth() {
		return fmt.Errorf("%w: depth attachment has color format %s", ErrInvalidArgument, *d.DepthFormat)
	}
	if d.VertexShader == "" || d.FragmentShader == "" {
		return fmt.Errorf("%w: both shader paths are required", ErrInvalidArgument)
	}
	return nil
}

// Backend is the capability interface every concrete backend implements.
//
// Backends are not reentrant. Implementations serialize all calls behind
// one lock; callers must not rely on any finer-grained concurrency.
type Backend interface {
	// Name returns the registry name of the backend.
	Name() string

	CreateBuffer(size uint64, usage BufferUsage, loc MemoryLocation) (BufferID, error)
	// WriteBuffer uploads data into a buffer at offset.
	WriteBuffer(id BufferID, offset uint64, data []byte) error
	DestroyBuffer(id BufferID) error

	CreateTexture2D(res Resolution2D, format ImageFormat, usage ImageUsage, loc MemoryLocation) (ImageID, error)
	DestroyImage(id ImageID) error

	// CreateGraphicsPipeline reads both shaders from storage before
	// building native objects. A failing stage is reported as *ShaderError.
	CreateGraphicsPipeline(ctx context.Context, desc PipelineDesc) (PipelineID, error)
	DestroyPipeline(id PipelineID) error

	// CreateFramebuffer binds attachments for a pipeline. The resolution is
	// taken from the first color image and is not cross-checked against the
	// other attachments.
	CreateFramebuffer(pipeline PipelineID, colors []ImageID, depth *ImageID) (FramebufferID, error)
	DestroyFramebuffer(id FramebufferID) error

	CreateInputSet(pipeline PipelineID) (InputSetID, error)
	// UpdateInputSet replaces all bindings of the set.
	UpdateInputSet(id InputSetID, buffers []BufferID, textures []ImageID) error
	DestroyInputSet(id InputSetID) error

	CreateFence(signaled bool) (FenceID, error)
	// WaitForFence blocks until the fence signals or the configured timeout
	// elapses, in which case the error wraps ErrTimeout.
	WaitForFence(id FenceID) error
	DestroyFence(id FenceID) error

	CreateCommandBuffer() (CommandBufferID, error)
	// CompileCommands records cmds into the command buffer, inserting image
	// layout barriers. On error the command buffer holds nothing submittable.
	CompileCommands(id CommandBufferID, cmds []Command) error
	// RunCommands submits a compiled command buffer and signals fence when
	// the GPU finishes it.
	RunCommands(id CommandBufferID, fence FenceID) error
	DestroyCommandBuffer(id CommandBufferID) error

	// AcquirePresentImage acquires the next swapchain image and signals
	// fence once it is available.
	AcquirePresentImage(fence FenceID) (uint32, error)
	// PresentSwapchainImage presents an acquired image. It reports whether
	// the surface changed size and the swapchain should be recreated.
	PresentSwapchainImage(index uint32) (bool, error)
	// SwapchainImages returns the image handles of the swapchain in index order.
	SwapchainImages() []ImageID
	SurfaceInfo() SurfaceInfo

	Stats() Stats

	// Destroy releases every live resource and then the device. It is
	// best-effort and reports all failures joined.
	Destroy() error
}
