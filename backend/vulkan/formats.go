// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/alloc"
	"github.com/gogpu/rhi/internal/barrier"
)

// nativeFormat maps a logical image format to its native pixel format.
// Presentation images use the negotiated swapchain format.
func (b *Backend) nativeFormat(f rhi.ImageFormat) gputypes.TextureFormat {
	switch f {
	case rhi.ImageFormatFloat:
		return gputypes.TextureFormatRGBA32Float
	case rhi.ImageFormatDepth:
		return gputypes.TextureFormatDepth24PlusStencil8
	case rhi.ImageFormatPresentation:
		if b.swapchain != nil {
			return b.swapchain.format
		}
		return gputypes.TextureFormatBGRA8Unorm
	default:
		return gputypes.TextureFormatRGBA8Unorm
	}
}

func bytesPerPixel(f rhi.ImageFormat) uint32 {
	if f == rhi.ImageFormatFloat {
		return 16
	}
	return 4
}

// textureUsage translates image usage flags. Every image may be used as a
// render attachment; blits are implemented as copies.
func textureUsage(u rhi.ImageUsage) gputypes.TextureUsage {
	flags := gputypes.TextureUsageRenderAttachment
	if u.Has(rhi.ImageUsageCopySrc) || u.Has(rhi.ImageUsageBlitSrc) {
		flags |= gputypes.TextureUsageCopySrc
	}
	if u.Has(rhi.ImageUsageCopyDst) || u.Has(rhi.ImageUsageBlitDst) {
		flags |= gputypes.TextureUsageCopyDst
	}
	if u.Has(rhi.ImageUsageShaderSampled) {
		flags |= gputypes.TextureUsageTextureBinding
	}
	if u.Has(rhi.ImageUsageShaderStorage) {
		flags |= gputypes.TextureUsageStorageBinding
	}
	return flags
}

func bufferUsage(u rhi.BufferUsage, loc rhi.MemoryLocation) gputypes.BufferUsage {
	var flags gputypes.BufferUsage
	if u.Has(rhi.BufferUsageCopySrc) {
		flags |= gputypes.BufferUsageCopySrc
	}
	if u.Has(rhi.BufferUsageCopyDst) {
		flags |= gputypes.BufferUsageCopyDst
	}
	if u.Has(rhi.BufferUsageUniform) {
		flags |= gputypes.BufferUsageUniform
	}
	if u.Has(rhi.BufferUsageStorage) {
		flags |= gputypes.BufferUsageStorage
	}
	if loc.HostVisible() {
		// Shared memory is written directly through the queue.
		flags |= gputypes.BufferUsageCopyDst
	}
	return flags
}

func memoryLocation(loc rhi.MemoryLocation) alloc.Location {
	if loc.HostVisible() {
		return alloc.HostVisible
	}
	return alloc.DeviceLocal
}

// layoutUsage maps a barrier layout to the texture usage the HAL derives
// the native layout, stage and access mask from.
func layoutUsage(l barrier.Layout) gputypes.TextureUsage {
	switch l {
	case barrier.LayoutColorAttachment, barrier.LayoutDepthAttachment:
		return gputypes.TextureUsageRenderAttachment
	case barrier.LayoutShaderReadOnly:
		return gputypes.TextureUsageTextureBinding
	case barrier.LayoutTransferSrc:
		return gputypes.TextureUsageCopySrc
	case barrier.LayoutTransferDst:
		return gputypes.TextureUsageCopyDst
	default:
		return gputypes.TextureUsage(0)
	}
}
