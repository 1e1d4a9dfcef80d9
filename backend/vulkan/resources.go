// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/alloc"
)

// image is a 2D texture with one view covering its only mip level.
type image struct {
	texture hal.Texture
	view    hal.TextureView
	res     rhi.Resolution2D
	format  rhi.ImageFormat
	native  gputypes.TextureFormat
	usage   rhi.ImageUsage
	memory  *alloc.Allocation

	// swapchain images are owned by the surface and cannot be destroyed
	// through DestroyImage.
	swapchain bool
}

type buffer struct {
	buf    hal.Buffer
	size   uint64
	usage  rhi.BufferUsage
	loc    rhi.MemoryLocation
	memory *alloc.Allocation
}

// pipeline owns its layouts and shader modules. Input sets created for it
// allocate bind groups from bufferLayout (group 0) and textureLayout
// (group 1).
type pipeline struct {
	label         string
	native        hal.RenderPipeline
	layout        hal.PipelineLayout
	bufferLayout  hal.BindGroupLayout
	textureLayout hal.BindGroupLayout
	vertex        hal.ShaderModule
	fragment      hal.ShaderModule

	colorFormats []rhi.ImageFormat
	depthFormat  *rhi.ImageFormat
	maxBuffers   uint32
	maxTextures  uint32
	raster       rhi.RasterStyle
}

type framebuffer struct {
	pipeline rhi.PipelineID
	colors   []rhi.ImageID
	depth    *rhi.ImageID
	res      rhi.Resolution2D
}

// inputSet holds the two bind groups of a pipeline's bindless layout and
// the resources last bound through UpdateInputSet.
type inputSet struct {
	pipeline    rhi.PipelineID
	bufferSet   hal.BindGroup
	textureSet  hal.BindGroup
	maxBuffers  uint32
	maxTextures uint32
	buffers     []rhi.BufferID
	textures    []rhi.ImageID
}

// fence tracks the queue submission it waits for. A fence is signaled
// once the queue has completed submission target.
type fence struct {
	target uint64
}

const (
	fenceSignaled   uint64 = 0
	fenceUnsignaled uint64 = math.MaxUint64
)

func (f *fence) signaled(completed uint64) bool {
	return completed >= f.target
}

// commandBuffer keeps the compiled command list so it can be recorded
// again after a submission consumed the native buffer.
type commandBuffer struct {
	cmds     []rhi.Command
	compiled bool
	barriers int

	// recorded is a native buffer ready for submission, or nil.
	recorded hal.CommandBuffer
}

// submission is a native command buffer in flight.
type submission struct {
	cmd   hal.CommandBuffer
	index uint64
}
