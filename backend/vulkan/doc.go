// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package vulkan implements rhi.Backend on the gogpu/wgpu HAL.
//
// Importing the package registers the backend as "vulkan":
//
//	import _ "github.com/gogpu/rhi/backend/vulkan"
//
//	b, err := rhi.Open(ctx, "vulkan")
//
// A backend can also be opened directly with Open, built on an existing
// HAL device with New, or share the device of a host application with
// NewFromProvider.
//
// # Bindless input sets
//
// Every pipeline has the same two bind groups. Group 0 holds
// MaxBoundBuffers storage buffers. Group 1 holds one sampler followed by
// MaxBoundTextures sampled textures. Slots without a resource are bound to
// placeholders, so shaders may index any slot.
//
// # Synchronization
//
// CompileCommands derives image layout transitions from the command list
// alone (see internal/barrier). Fences wait on queue submission indices.
// Native command buffers are freed once the queue reports their
// submission complete.
package vulkan
