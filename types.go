package rhi

import (
	"fmt"
	"strings"
)

// Resource handles. Each is unique among live resources of its own type
// only; an ImageID and a BufferID may carry the same value.
type (
	ImageID         uint32
	BufferID        uint32
	PipelineID      uint32
	FramebufferID   uint32
	InputSetID      uint32
	FenceID         uint32
	CommandBufferID uint32
)

func (id ImageID) String() string         { return fmt.Sprintf("image#%d", uint32(id)) }
func (id BufferID) String() string        { return fmt.Sprintf("buffer#%d", uint32(id)) }
func (id PipelineID) String() string      { return fmt.Sprintf("pipeline#%d", uint32(id)) }
func (id FramebufferID) String() string   { return fmt.Sprintf("framebuffer#%d", uint32(id)) }
func (id InputSetID) String() string      { return fmt.Sprintf("inputset#%d", uint32(id)) }
func (id FenceID) String() string         { return fmt.Sprintf("fence#%d", uint32(id)) }
func (id CommandBufferID) String() string { return fmt.Sprintf("cmdbuf#%d", uint32(id)) }

// Resolution2D is a width and height in pixels.
type Resolution2D struct {
	Width  uint32
	Height uint32
}

func (r Resolution2D) String() string { return fmt.Sprintf("%dx%d", r.Width, r.Height) }

// Empty reports whether either dimension is zero.
func (r Resolution2D) Empty() bool { return r.Width == 0 || r.Height == 0 }

// ImageFormat is the logical pixel format of an image. Each maps to exactly
// one native format inside a backend.
type ImageFormat uint8

const (
	// ImageFormatTexture is an 8-bit RGBA color texture.
	ImageFormatTexture ImageFormat = iota
	// ImageFormatFloat holds 32-bit float channels.
	ImageFormatFloat
	// ImageFormatDepth is a depth/stencil attachment.
	ImageFormatDepth
	// ImageFormatRenderIntermediate is an offscreen color target.
	ImageFormatRenderIntermediate
	// ImageFormatPresentation matches the swapchain.
	ImageFormatPresentation
)

func (f ImageFormat) String() string {
	switch f {
	case ImageFormatTexture:
		return "texture"
	case ImageFormatFloat:
		return "float"
	case ImageFormatDepth:
		return "depth"
	case ImageFormatRenderIntermediate:
		return "render-intermediate"
	case ImageFormatPresentation:
		return "presentation"
	default:
		return fmt.Sprintf("ImageFormat(%d)", uint8(f))
	}
}

// IsDepth reports whether the format is a depth/stencil format.
func (f ImageFormat) IsDepth() bool { return f == ImageFormatDepth }

// ImageUsage is a set of ways an image may be used.
type ImageUsage uint32

const (
	ImageUsageCopySrc ImageUsage = 1 << iota
	ImageUsageCopyDst
	ImageUsageBlitSrc
	ImageUsageBlitDst
	ImageUsageShaderSampled
	ImageUsageShaderStorage
)

var imageUsageNames = []string{"copy-src", "copy-dst", "blit-src", "blit-dst", "shader-sampled", "shader-storage"}

// Has reports whether all bits of o are set in u.
func (u ImageUsage) Has(o ImageUsage) bool { return u&o == o }

func (u ImageUsage) String() string { return flagString(uint32(u), imageUsageNames) }

// BufferUsage is a set of ways a buffer may be used.
type BufferUsage uint32

const (
	BufferUsageCopySrc BufferUsage = 1 << iota
	BufferUsageCopyDst
	BufferUsageUniform
	BufferUsageStorage
)

var bufferUsageNames = []string{"copy-src", "copy-dst", "uniform", "storage"}

// Has reports whether all bits of o are set in u.
func (u BufferUsage) Has(o BufferUsage) bool { return u&o == o }

func (u BufferUsage) String() string { return flagString(uint32(u), bufferUsageNames) }

func flagString(v uint32, names []string) string {
	if v == 0 {
		return "none"
	}
	var parts []string
	for i, name := range names {
		if v&(1<<i) != 0 {
			parts = append(parts, name)
			v &^= 1 << i
		}
	}
	if v != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", v))
	}
	return strings.Join(parts, "|")
}

// MemoryLocation selects where the backing memory of a resource lives.
type MemoryLocation uint8

const (
	// MemoryAny lets the backend choose; it behaves like MemoryGPUOnly.
	MemoryAny MemoryLocation = iota
	// MemoryGPUOnly is device-local memory not visible to the host.
	MemoryGPUOnly
	// MemoryShared is host-visible memory used for uploads.
	MemoryShared
)

func (m MemoryLocation) String() string {
	switch m {
	case MemoryAny:
		return "any"
	case MemoryGPUOnly:
		return "gpu-only"
	case MemoryShared:
		return "shared"
	default:
		return fmt.Sprintf("MemoryLocation(%d)", uint8(m))
	}
}

// HostVisible reports whether the host can write the memory directly.
func (m MemoryLocation) HostVisible() bool { return m == MemoryShared }

// RasterStyle controls polygon rasterization of a graphics pipeline.
// The zero value is Fill.
type RasterStyle struct {
	wireframe bool
	thickness float32
}

// Fill rasterizes filled polygons.
func Fill() RasterStyle { return RasterStyle{} }

// Wireframe rasterizes polygon edges with the given line thickness.
func Wireframe(thickness float32) RasterStyle {
	return RasterStyle{wireframe: true, thickness: thickness}
}

// IsWireframe reports whether the style draws edges only.
func (r RasterStyle) IsWireframe() bool { return r.wireframe }

// LineThickness returns the wireframe line thickness, or 1 for Fill.
func (r RasterStyle) LineThickness() float32 {
	if !r.wireframe {
		return 1
	}
	return r.thickness
}

func (r RasterStyle) String() string {
	if r.wireframe {
		return fmt.Sprintf("wireframe(%g)", r.thickness)
	}
	return "fill"
}

// GPUInfo describes a physical device offered by a backend.
type GPUInfo struct {
	ID         uint32
	Name       string
	Integrated bool
}

// SelectGPU picks the first discrete GPU, or the first GPU when all are
// integrated. It returns false for an empty list.
func SelectGPU(gpus []GPUInfo) (GPUInfo, bool) {
	if len(gpus) == 0 {
		return GPUInfo{}, false
	}
	for _, g := range gpus {
		if !g.Integrated {
			return g, true
		}
	}
	return gpus[0], true
}

// SurfaceInfo is the swapchain configuration negotiated at construction.
type SurfaceInfo struct {
	Resolution Resolution2D
	ImageCount uint32
	Format     string
}

// Stats reports live resource counts and memory accounting of a backend.
type Stats struct {
	Images         int
	Buffers        int
	Pipelines      int
	Framebuffers   int
	InputSets      int
	Fences         int
	CommandBuffers int

	// DescriptorSetsInUse counts native descriptor sets drawn from the
	// pool. Each input set holds two.
	DescriptorSetsInUse int
	// MemoryUsedBytes is backing memory currently held by images and buffers.
	MemoryUsedBytes uint64
}

func (s Stats) String() string {
	return fmt.Sprintf("Stats[images=%d buffers=%d pipelines=%d framebuffers=%d inputsets=%d fences=%d cmdbufs=%d mem=%dKB]",
		s.Images, s.Buffers, s.Pipelines, s.Framebuffers, s.InputSets, s.Fences, s.CommandBuffers,
		s.MemoryUsedBytes/1024)
}
