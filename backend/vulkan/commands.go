// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/barrier"
	"github.com/gogpu/rhi/internal/handles"
)

// Polling bounds for WaitForFence.
const (
	minFencePoll = 50 * time.Microsecond
	maxFencePoll = 2 * time.Millisecond
)

// CreateFence implements rhi.Backend.
func (b *Backend) CreateFence(signaled bool) (rhi.FenceID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLive(); err != nil {
		return 0, err
	}

	f := &fence{target: fenceUnsignaled}
	if signaled {
		f.target = fenceSignaled
	}
	h, err := add(b.fences, f, "fence")
	if err != nil {
		return 0, err
	}
	return rhi.FenceID(h), nil
}

// WaitForFence implements rhi.Backend. The backend lock is released while
// waiting, so other calls proceed. A timeout leaves the fence unchanged.
func (b *Backend) WaitForFence(id rhi.FenceID) error {
	b.mu.Lock()
	if err := b.checkLive(); err != nil {
		b.mu.Unlock()
		return err
	}
	f, err := get(b.fences, handles.Handle(id), id)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	snapshot, timeout := *f, b.opts.fenceTimeout
	b.mu.Unlock()

	if snapshot.target == fenceSignaled {
		return nil
	}
	deadline := time.Now().Add(timeout)
	delay := minFencePoll
	for !snapshot.signaled(b.queue.PollCompleted()) {
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %s not signaled after %s", rhi.ErrTimeout, id, timeout)
		}
		time.Sleep(delay)
		delay = min(delay*2, maxFencePoll)
	}
	return nil
}

// DestroyFence implements rhi.Backend.
func (b *Backend) DestroyFence(id rhi.FenceID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLive(); err != nil {
		return err
	}

	if _, err := b.fences.Remove(handles.Handle(id)); err != nil {
		return fmt.Errorf("%w: %s: %w", rhi.ErrNotFound, id, err)
	}
	return nil
}

// CreateCommandBuffer implements rhi.Backend.
func (b *Backend) CreateCommandBuffer() (rhi.CommandBufferID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLive(); err != nil {
		return 0, err
	}

	h, err := add(b.commandBuffers, &commandBuffer{}, "command buffer")
	if err != nil {
		return 0, err
	}
	return rhi.CommandBufferID(h), nil
}

// CompileCommands implements rhi.Backend. Image layout transitions are
// derived from the command list and recorded in front of the commands
// that need them. Any previous recording of the buffer is discarded,
// including when compilation fails.
func (b *Backend) CompileCommands(id rhi.CommandBufferID, cmds []rhi.Command) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLive(); err != nil {
		return err
	}

	cb, err := get(b.commandBuffers, handles.Handle(id), id)
	if err != nil {
		return err
	}
	b.reclaim()
	b.freeRecorded(cb)
	cb.cmds, cb.compiled, cb.barriers = nil, false, 0

	native, plan, err := b.record(b.label("cmdbuf", handles.Handle(id)), cmds)
	if err != nil {
		return err
	}
	cb.recorded = native
	cb.cmds = append([]rhi.Command(nil), cmds...)
	cb.compiled = true
	cb.barriers = plan.Len()

	slogger().Debug("vulkan: commands compiled",
		"id", id,
		"commands", len(cmds),
		"barriers", plan.Len(),
		"images", len(plan.Images()))
	return nil
}

// record encodes cmds into a new native command buffer. The caller holds b.mu.
func (b *Backend) record(label string, cmds []rhi.Command) (hal.CommandBuffer, *barrier.Plan, error) {
	enc, err := b.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, nil, rhi.Native("create command encoder", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		enc.DiscardEncoding()
		return nil, nil, rhi.Native("begin encoding", err)
	}

	plan, err := barrier.Compile(cmds, b, &recorder{b: b, enc: enc})
	if err != nil {
		enc.DiscardEncoding()
		return nil, nil, err
	}
	native, err := enc.EndEncoding()
	if err != nil {
		enc.DiscardEncoding()
		return nil, nil, rhi.Native("end encoding", err)
	}
	return native, plan, nil
}

// RunCommands implements rhi.Backend. A command buffer may be run more
// than once; each run after the first records the compiled list again.
func (b *Backend) RunCommands(id rhi.CommandBufferID, fenceID rhi.FenceID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLive(); err != nil {
		return err
	}

	cb, err := get(b.commandBuffers, handles.Handle(id), id)
	if err != nil {
		return err
	}
	f, err := get(b.fences, handles.Handle(fenceID), fenceID)
	if err != nil {
		return err
	}
	if !cb.compiled {
		return fmt.Errorf("%w: %s has no compiled commands", rhi.ErrInvalidArgument, id)
	}
	b.reclaim()

	native := cb.recorded
	cb.recorded = nil
	if native == nil {
		var plan *barrier.Plan
		native, plan, err = b.record(b.label("cmdbuf", handles.Handle(id)), cb.cmds)
		if err != nil {
			return fmt.Errorf("record %s again: %w", id, err)
		}
		cb.barriers = plan.Len()
	}

	index, err := b.queue.Submit([]hal.CommandBuffer{native})
	if err != nil {
		b.device.FreeCommandBuffer(native)
		return rhi.Native("submit", err)
	}
	b.pending = append(b.pending, submission{cmd: native, index: index})
	f.target = index
	return nil
}

// DestroyCommandBuffer implements rhi.Backend. Submissions still in
// flight are released once the queue completes them.
func (b *Backend) DestroyCommandBuffer(id rhi.CommandBufferID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLive(); err != nil {
		return err
	}

	cb, err := b.commandBuffers.Remove(handles.Handle(id))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", rhi.ErrNotFound, id, err)
	}
	b.freeRecorded(cb)
	b.reclaim()
	return nil
}

// dropRecordings frees every recorded but unsubmitted command buffer.
// Called whenever a native object a recording may bind is destroyed or
// replaced; the next RunCommands records again from current state, or
// fails with rhi.ErrNotFound if a referenced handle is gone. The caller
// holds b.mu.
func (b *Backend) dropRecordings() {
	b.commandBuffers.Each(func(_ handles.Handle, cb *commandBuffer) {
		b.freeRecorded(cb)
	})
}

func (b *Backend) freeRecorded(cb *commandBuffer) {
	if cb.recorded != nil {
		b.device.FreeCommandBuffer(cb.recorded)
		cb.recorded = nil
	}
}

// reclaim frees native command buffers the queue has completed.
func (b *Backend) reclaim() {
	if len(b.pending) == 0 {
		return
	}
	done := b.queue.PollCompleted()
	kept := b.pending[:0]
	for _, s := range b.pending {
		if s.index <= done {
			b.device.FreeCommandBuffer(s.cmd)
			continue
		}
		kept = append(kept, s)
	}
	b.pending = kept
}

// recorder replays a command list into a HAL command encoder.
type recorder struct {
	b   *Backend
	enc hal.CommandEncoder
}

var wholeTexture = hal.TextureRange{Aspect: gputypes.TextureAspectAll}

func (r *recorder) Transition(barriers []barrier.Barrier) error {
	out := make([]hal.TextureBarrier, len(barriers))
	for i, br := range barriers {
		img, err := r.b.image(br.Image)
		if err != nil {
			return err
		}
		out[i] = hal.TextureBarrier{
			Texture: img.texture,
			Range:   wholeTexture,
			Usage: hal.TextureUsageTransition{
				OldUsage: layoutUsage(br.Before.Layout),
				NewUsage: layoutUsage(br.After.Layout),
			},
		}
	}
	r.enc.TransitionTextures(out)
	return nil
}

func (r *recorder) Record(_ int, cmd rhi.Command) error {
	switch c := cmd.(type) {
	case rhi.CopyBufferToBuffer:
		return r.copyBuffer(c)
	case rhi.CopyBufferToImage:
		return r.copyBufferToImage(c)
	case rhi.BlitImage:
		return r.blit(c)
	case rhi.RunGraphicsPipeline:
		return r.runPipeline(c)
	default:
		return fmt.Errorf("%w: %T", barrier.ErrUnknownCommand, cmd)
	}
}

func (r *recorder) copyBuffer(c rhi.CopyBufferToBuffer) error {
	src, err := r.b.buffer(c.Src)
	if err != nil {
		return err
	}
	dst, err := r.b.buffer(c.Dst)
	if err != nil {
		return err
	}
	if c.SrcOffset > src.size {
		return fmt.Errorf("%w: source offset %d past end of %s", rhi.ErrInvalidArgument, c.SrcOffset, c.Src)
	}
	size := c.Size
	if size == 0 {
		size = src.size - c.SrcOffset
	}
	if size > src.size-c.SrcOffset || c.DstOffset > dst.size || size > dst.size-c.DstOffset {
		return fmt.Errorf("%w: copy of %d bytes out of bounds (%s is %d bytes, %s is %d bytes)",
			rhi.ErrInvalidArgument, size, c.Src, src.size, c.Dst, dst.size)
	}
	r.enc.CopyBufferToBuffer(src.buf, dst.buf, []hal.BufferCopy{{
		SrcOffset: c.SrcOffset,
		DstOffset: c.DstOffset,
		Size:      size,
	}})
	return nil
}

func (r *recorder) copyBufferToImage(c rhi.CopyBufferToImage) error {
	src, err := r.b.buffer(c.Src)
	if err != nil {
		return err
	}
	dst, err := r.b.image(c.Dst)
	if err != nil {
		return err
	}
	if dst.format.IsDepth() {
		return fmt.Errorf("%w: cannot upload into depth image %s", rhi.ErrInvalidArgument, c.Dst)
	}
	bytesPerRow := dst.res.Width * bytesPerPixel(dst.format)
	need := uint64(bytesPerRow) * uint64(dst.res.Height)
	if c.Offset > src.size || need > src.size-c.Offset {
		return fmt.Errorf("%w: %s needs %d bytes at offset %d, %s has %d",
			rhi.ErrInvalidArgument, c.Dst, need, c.Offset, c.Src, src.size)
	}
	r.enc.CopyBufferToTexture(src.buf, dst.texture, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{
			Offset:       c.Offset,
			BytesPerRow:  bytesPerRow,
			RowsPerImage: dst.res.Height,
		},
		TextureBase: hal.ImageCopyTexture{
			Texture: dst.texture,
			Aspect:  gputypes.TextureAspectAll,
		},
		Size: hal.Extent3D{Width: dst.res.Width, Height: dst.res.Height, DepthOrArrayLayers: 1},
	}})
	return nil
}

// blit copies the region both images cover. Scaling and format conversion
// are not supported.
func (r *recorder) blit(c rhi.BlitImage) error {
	src, err := r.b.image(c.Src)
	if err != nil {
		return err
	}
	dst, err := r.b.image(c.Dst)
	if err != nil {
		return err
	}
	if src.native != dst.native {
		return fmt.Errorf("%w: blit %s to %s between formats %s and %s",
			rhi.ErrInvalidArgument, c.Src, c.Dst, src.format, dst.format)
	}
	r.enc.CopyTextureToTexture(src.texture, dst.texture, []hal.TextureCopy{{
		SrcBase: hal.ImageCopyTexture{Texture: src.texture, Aspect: gputypes.TextureAspectAll},
		DstBase: hal.ImageCopyTexture{Texture: dst.texture, Aspect: gputypes.TextureAspectAll},
		Size: hal.Extent3D{
			Width:              min(src.res.Width, dst.res.Width),
			Height:             min(src.res.Height, dst.res.Height),
			DepthOrArrayLayers: 1,
		},
	}})
	return nil
}

func (r *recorder) runPipeline(c rhi.RunGraphicsPipeline) error {
	b := r.b
	p, err := get(b.pipelines, handles.Handle(c.Pipeline), c.Pipeline)
	if err != nil {
		return err
	}
	fb, err := get(b.framebuffers, handles.Handle(c.Framebuffer), c.Framebuffer)
	if err != nil {
		return err
	}
	set, err := get(b.inputSets, handles.Handle(c.InputSet), c.InputSet)
	if err != nil {
		return err
	}
	if set.pipeline != c.Pipeline {
		return fmt.Errorf("%w: %s was created for %s, not %s",
			rhi.ErrInvalidArgument, c.InputSet, set.pipeline, c.Pipeline)
	}
	for _, id := range set.buffers {
		if _, err := b.buffer(id); err != nil {
			return fmt.Errorf("%s: %w", c.InputSet, err)
		}
	}

	desc := &hal.RenderPassDescriptor{Label: p.label}
	for _, id := range fb.colors {
		img, err := b.image(id)
		if err != nil {
			return err
		}
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       img.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 0},
		})
	}
	if fb.depth != nil {
		img, err := b.image(*fb.depth)
		if err != nil {
			return err
		}
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              img.view,
			DepthLoadOp:       gputypes.LoadOpClear,
			DepthStoreOp:      gputypes.StoreOpStore,
			DepthClearValue:   1.0,
			StencilLoadOp:     gputypes.LoadOpClear,
			StencilStoreOp:    gputypes.StoreOpStore,
			StencilClearValue: 0,
		}
	}

	rp := r.enc.BeginRenderPass(desc)
	rp.SetPipeline(p.native)
	rp.SetBindGroup(bufferGroup, set.bufferSet, nil)
	rp.SetBindGroup(textureGroup, set.textureSet, nil)
	rp.SetViewport(0, 0, float32(fb.res.Width), float32(fb.res.Height), 0, 1)
	rp.SetScissorRect(0, 0, fb.res.Width, fb.res.Height)
	for _, d := range c.Draws {
		rp.Draw(d.VertexCount, d.InstanceCount, d.FirstVertex, d.FirstInstance)
	}
	rp.End()
	return nil
}
