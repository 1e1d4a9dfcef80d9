// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
)

// placeholderBufferSize is the size of the storage buffer bound to empty
// buffer slots.
const placeholderBufferSize = 256

// placeholders are bound to every input set slot that has no resource, so
// bind groups are always complete.
type placeholders struct {
	buffer  hal.Buffer
	texture hal.Texture
	view    hal.TextureView
	sampler hal.Sampler
}

func (p *placeholders) create(b *Backend) error {
	var err error
	p.buffer, err = b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: b.opts.label + "_placeholder_buffer",
		Size:  placeholderBufferSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return rhi.Native("create placeholder buffer", err)
	}

	p.texture, err = b.device.CreateTexture(&hal.TextureDescriptor{
		Label:         b.opts.label + "_placeholder_texture",
		Size:          hal.Extent3D{Width: 1, Height: 1, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		p.destroy(b.device)
		return rhi.Native("create placeholder texture", err)
	}
	p.view, err = b.createView(p.texture, gputypes.TextureFormatRGBA8Unorm)
	if err != nil {
		p.destroy(b.device)
		return err
	}

	p.sampler, err = b.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        b.opts.label + "_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		p.destroy(b.device)
		return rhi.Native("create sampler", err)
	}

	if err := p.prime(b); err != nil {
		p.destroy(b.device)
		return err
	}
	return nil
}

// prime moves the placeholder texture into the sampled layout once, so it
// never appears in a barrier plan.
func (p *placeholders) prime(b *Backend) error {
	encoder, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: b.opts.label + "_prime",
	})
	if err != nil {
		return rhi.Native("create command encoder", err)
	}
	if err := encoder.BeginEncoding(b.opts.label + "_prime"); err != nil {
		return rhi.Native("begin encoding", err)
	}
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: p.texture,
		Range:   hal.TextureRange{Aspect: gputypes.TextureAspectAll},
		Usage: hal.TextureUsageTransition{
			OldUsage: 0,
			NewUsage: gputypes.TextureUsageTextureBinding,
		},
	}})
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return rhi.Native("end encoding", err)
	}
	defer b.device.FreeCommandBuffer(cmd)

	if _, err := b.queue.Submit([]hal.CommandBuffer{cmd}); err != nil {
		return rhi.Native("submit", err)
	}
	if err := b.device.WaitIdle(); err != nil {
		return rhi.Native("wait idle", err)
	}
	return nil
}

func (p *placeholders) destroy(device hal.Device) {
	if p.sampler != nil {
		device.DestroySampler(p.sampler)
		p.sampler = nil
	}
	if p.view != nil {
		device.DestroyTextureView(p.view)
		p.view = nil
	}
	if p.texture != nil {
		device.DestroyTexture(p.texture)
		p.texture = nil
	}
	if p.buffer != nil {
		device.DestroyBuffer(p.buffer)
		p.buffer = nil
	}
}
