// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/handles"
)

func TestFenceCreatedSignaled(t *testing.T) {
	b := newTestBackend(t)

	f, err := b.CreateFence(true)
	if err != nil {
		t.Fatalf("CreateFence: %v", err)
	}
	if err := b.WaitForFence(f); err != nil {
		t.Errorf("WaitForFence on signaled fence: %v", err)
	}
}

func TestFenceTimeout(t *testing.T) {
	b := newTestBackend(t, WithFenceTimeout(5*time.Millisecond))

	f, err := b.CreateFence(false)
	if err != nil {
		t.Fatalf("CreateFence: %v", err)
	}
	start := time.Now()
	if err := b.WaitForFence(f); !errors.Is(err, rhi.ErrTimeout) {
		t.Fatalf("WaitForFence error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("WaitForFence returned after %s, before the timeout", elapsed)
	}
	// A timeout changes nothing.
	if err := b.WaitForFence(f); !errors.Is(err, rhi.ErrTimeout) {
		t.Errorf("second WaitForFence error = %v, want ErrTimeout", err)
	}

	if err := b.DestroyFence(f); err != nil {
		t.Fatalf("DestroyFence: %v", err)
	}
	if err := b.WaitForFence(f); !errors.Is(err, rhi.ErrNotFound) {
		t.Errorf("WaitForFence on destroyed fence error = %v, want ErrNotFound", err)
	}
}

func TestRunCommands(t *testing.T) {
	b := newTestBackend(t, WithFenceTimeout(time.Second))

	src, err := b.CreateBuffer(128, rhi.BufferUsageCopySrc, rhi.MemoryShared)
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	dst, err := b.CreateBuffer(128, rhi.BufferUsageCopyDst, rhi.MemoryGPUOnly)
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	cb, err := b.CreateCommandBuffer()
	if err != nil {
		t.Fatalf("CreateCommandBuffer: %v", err)
	}
	f, err := b.CreateFence(false)
	if err != nil {
		t.Fatalf("CreateFence: %v", err)
	}

	if err := b.RunCommands(cb, f); !errors.Is(err, rhi.ErrInvalidArgument) {
		t.Errorf("RunCommands before compile error = %v, want ErrInvalidArgument", err)
	}

	if err := b.CompileCommands(cb, []rhi.Command{
		rhi.CopyBufferToBuffer{Src: src, Dst: dst},
	}); err != nil {
		t.Fatalf("CompileCommands: %v", err)
	}

	for run := range 3 {
		if err := b.RunCommands(cb, f); err != nil {
			t.Fatalf("run %d: RunCommands: %v", run, err)
		}
		if err := b.WaitForFence(f); err != nil {
			t.Fatalf("run %d: WaitForFence: %v", run, err)
		}
	}

	b.mu.Lock()
	pending := len(b.pending)
	b.mu.Unlock()
	if pending != 1 {
		t.Errorf("pending submissions = %d, want 1", pending)
	}

	if err := b.DestroyCommandBuffer(cb); err != nil {
		t.Fatalf("DestroyCommandBuffer: %v", err)
	}
	b.mu.Lock()
	pending = len(b.pending)
	b.mu.Unlock()
	if pending != 0 {
		t.Errorf("pending submissions after destroy = %d, want 0", pending)
	}
	if err := b.RunCommands(cb, f); !errors.Is(err, rhi.ErrNotFound) {
		t.Errorf("RunCommands on destroyed buffer error = %v, want ErrNotFound", err)
	}
}

func TestCompileStaleHandle(t *testing.T) {
	b := newTestBackend(t)

	buf, err := b.CreateBuffer(64, rhi.BufferUsageCopySrc, rhi.MemoryShared)
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	img, err := b.CreateTexture2D(rhi.Resolution2D{Width: 4, Height: 4}, rhi.ImageFormatTexture, rhi.ImageUsageCopyDst, rhi.MemoryAny)
	if err != nil {
		t.Fatalf("CreateTexture2D: %v", err)
	}
	cb, err := b.CreateCommandBuffer()
	if err != nil {
		t.Fatalf("CreateCommandBuffer: %v", err)
	}
	cmds := []rhi.Command{rhi.CopyBufferToImage{Src: buf, Dst: img}}
	if err := b.CompileCommands(cb, cmds); err != nil {
		t.Fatalf("CompileCommands: %v", err)
	}

	if err := b.DestroyImage(img); err != nil {
		t.Fatalf("DestroyImage: %v", err)
	}
	if err := b.CompileCommands(cb, cmds); !errors.Is(err, rhi.ErrNotFound) {
		t.Fatalf("CompileCommands with destroyed image error = %v, want ErrNotFound", err)
	}

	// The failed compile discarded the earlier recording.
	f, err := b.CreateFence(false)
	if err != nil {
		t.Fatalf("CreateFence: %v", err)
	}
	if err := b.RunCommands(cb, f); !errors.Is(err, rhi.ErrInvalidArgument) {
		t.Errorf("RunCommands after failed compile error = %v, want ErrInvalidArgument", err)
	}
}

func TestCompileRejectsBadCopies(t *testing.T) {
	b := newTestBackend(t)

	small, err := b.CreateBuffer(32, rhi.BufferUsageCopySrc, rhi.MemoryShared)
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	big, err := b.CreateBuffer(256, rhi.BufferUsageCopyDst, rhi.MemoryAny)
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	color, err := b.CreateTexture2D(rhi.Resolution2D{Width: 8, Height: 8}, rhi.ImageFormatTexture, rhi.ImageUsageCopyDst, rhi.MemoryAny)
	if err != nil {
		t.Fatalf("CreateTexture2D: %v", err)
	}
	depth, err := b.CreateTexture2D(rhi.Resolution2D{Width: 8, Height: 8}, rhi.ImageFormatDepth, rhi.ImageUsageCopyDst, rhi.MemoryAny)
	if err != nil {
		t.Fatalf("CreateTexture2D: %v", err)
	}
	float, err := b.CreateTexture2D(rhi.Resolution2D{Width: 8, Height: 8}, rhi.ImageFormatFloat, rhi.ImageUsageBlitDst, rhi.MemoryAny)
	if err != nil {
		t.Fatalf("CreateTexture2D: %v", err)
	}
	cb, err := b.CreateCommandBuffer()
	if err != nil {
		t.Fatalf("CreateCommandBuffer: %v", err)
	}

	tests := []struct {
		name string
		cmd  rhi.Command
	}{
		{"copy past source", rhi.CopyBufferToBuffer{Src: small, Dst: big, Size: 64}},
		{"copy past destination", rhi.CopyBufferToBuffer{Src: big, Dst: small}},
		{"offset past source", rhi.CopyBufferToBuffer{Src: small, Dst: big, SrcOffset: 33}},
		{"size wraps past source", rhi.CopyBufferToBuffer{Src: big, Dst: big, SrcOffset: 16, DstOffset: 16, Size: math.MaxUint64 - 10}},
		{"destination offset wraps", rhi.CopyBufferToBuffer{Src: small, Dst: big, Size: 16, DstOffset: math.MaxUint64 - 8}},
		{"upload larger than buffer", rhi.CopyBufferToImage{Src: small, Dst: color}},
		{"upload offset wraps", rhi.CopyBufferToImage{Src: big, Dst: color, Offset: math.MaxUint64 - 10}},
		{"upload into depth", rhi.CopyBufferToImage{Src: big, Dst: depth}},
		{"blit across formats", rhi.BlitImage{Src: color, Dst: float}},
		{"nil blit", (*rhi.BlitImage)(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := b.CompileCommands(cb, []rhi.Command{tt.cmd}); !errors.Is(err, rhi.ErrInvalidArgument) {
				t.Errorf("CompileCommands error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestCompileCountsBarriers(t *testing.T) {
	b := newTestBackend(t)

	buf, err := b.CreateBuffer(256, rhi.BufferUsageCopySrc, rhi.MemoryShared)
	if err != nil {
		t.Fatalf("CreateBuffer: %v", err)
	}
	a, err := b.CreateTexture2D(rhi.Resolution2D{Width: 4, Height: 4}, rhi.ImageFormatTexture, rhi.ImageUsageCopyDst|rhi.ImageUsageBlitSrc, rhi.MemoryAny)
	if err != nil {
		t.Fatalf("CreateTexture2D: %v", err)
	}
	c, err := b.CreateTexture2D(rhi.Resolution2D{Width: 8, Height: 8}, rhi.ImageFormatTexture, rhi.ImageUsageBlitDst, rhi.MemoryAny)
	if err != nil {
		t.Fatalf("CreateTexture2D: %v", err)
	}
	cb, err := b.CreateCommandBuffer()
	if err != nil {
		t.Fatalf("CreateCommandBuffer: %v", err)
	}

	// a: undefined->dst, dst->src; c: undefined->dst.
	if err := b.CompileCommands(cb, []rhi.Command{
		rhi.CopyBufferToImage{Src: buf, Dst: a},
		&rhi.BlitImage{Src: a, Dst: c},
	}); err != nil {
		t.Fatalf("CompileCommands: %v", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	cmd, err := b.commandBuffers.Get(handles.Handle(cb))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !cmd.compiled || cmd.recorded == nil {
		t.Errorf("command buffer not compiled: %+v", cmd)
	}
	if cmd.barriers != 3 {
		t.Errorf("barriers = %d, want 3", cmd.barriers)
	}
}
