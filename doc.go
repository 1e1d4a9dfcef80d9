// Package rhi is a render hardware interface: a backend-agnostic vocabulary
// of GPU resources and commands with pluggable native backends.
//
// # Overview
//
// Callers create images, buffers, pipelines, framebuffers, input sets
// (bindless descriptor sets), fences and command buffers through a
// [Backend]. Every resource is identified by a small typed handle such as
// [ImageID]; handles are unique among live resources of one type and may
// be reissued after the resource is destroyed.
//
// Work is described as an ordered list of [Command] values and compiled
// into a command buffer with [Backend.CompileCommands]. The compiler
// derives the layout every image must be in at each command from the
// command list itself and inserts the barriers between uses. Images carry
// no "current layout" state, so the same image can appear in many
// independently compiled command buffers.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/rhi"
//	    _ "github.com/gogpu/rhi/backend/vulkan"
//	)
//
//	b, err := rhi.OpenDefault(ctx)
//	if err != nil {
//	    return err
//	}
//	defer b.Destroy()
//
//	img, err := b.CreateTexture2D(rhi.Resolution2D{Width: 256, Height: 256},
//	    rhi.ImageFormatTexture, rhi.ImageUsageShaderSampled, rhi.MemoryGPUOnly)
//
// # Batched tasks
//
// [Dispatch] evaluates a tree of [Task] values built from [Ordered],
// [Unordered] and leaf constructors, and returns an [Output] tree of the
// same shape.
//
// # Concurrency
//
// Backends serialize every call behind a single lock. Pipeline creation,
// fence waits and swapchain acquisition are the only calls that block on
// something external.
package rhi
