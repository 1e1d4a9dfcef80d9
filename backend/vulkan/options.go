// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/rhi/internal/shader"
)

// PoolSizes bounds the descriptor pool all input sets are drawn from.
type PoolSizes struct {
	// Sets is the number of descriptor sets. Each input set uses two.
	Sets uint32
	// StorageBuffers is the number of storage buffer descriptors.
	StorageBuffers uint32
	// CombinedImageSamplers is the number of sampled texture descriptors.
	CombinedImageSamplers uint32
}

// DefaultPoolSizes are used when WithDescriptorPool is not given.
var DefaultPoolSizes = PoolSizes{
	Sets:                  512,
	StorageBuffers:        512,
	CombinedImageSamplers: 8192,
}

// Capacities pre-size the handle tables. They are hints, not limits.
type Capacities struct {
	Images         int
	Buffers        int
	CommandBuffers int
	Fences         int
	InputSets      int
	Framebuffers   int
	Pipelines      int
}

// DefaultCapacities are used when WithStoreCapacity is not given.
var DefaultCapacities = Capacities{
	Images:         1024,
	Buffers:        1024,
	CommandBuffers: 256,
	Fences:         256,
	InputSets:      512,
	Framebuffers:   256,
	Pipelines:      32,
}

const (
	// DefaultFenceTimeout bounds WaitForFence.
	DefaultFenceTimeout = time.Second

	// DefaultAcquireTimeout bounds swapchain image acquisition.
	DefaultAcquireTimeout = 999999 * time.Nanosecond
)

// Option configures a Backend during creation.
type Option func(*options)

type options struct {
	label          string
	pool           PoolSizes
	capacities     Capacities
	memoryBudget   uint64
	fenceTimeout   time.Duration
	acquireTimeout time.Duration
	shaderCache    int

	// Used by Open only.
	halBackend gputypes.Backend
	validation bool
	gpu        *uint32
}

func defaultOptions() options {
	return options{
		label:          "rhi",
		pool:           DefaultPoolSizes,
		capacities:     DefaultCapacities,
		fenceTimeout:   DefaultFenceTimeout,
		acquireTimeout: DefaultAcquireTimeout,
		shaderCache:    shader.DefaultLoaderCapacity,
		halBackend:     gputypes.BackendVulkan,
	}
}

// WithLabel sets the prefix of native object labels.
func WithLabel(label string) Option {
	return func(o *options) { o.label = label }
}

// WithDescriptorPool sets the descriptor pool capacity.
func WithDescriptorPool(p PoolSizes) Option {
	return func(o *options) { o.pool = p }
}

// WithStoreCapacity pre-sizes the handle tables.
func WithStoreCapacity(c Capacities) Option {
	return func(o *options) { o.capacities = c }
}

// WithMemoryBudget sets the backing memory budget in bytes.
func WithMemoryBudget(bytes uint64) Option {
	return func(o *options) { o.memoryBudget = bytes }
}

// WithFenceTimeout bounds how long WaitForFence blocks.
func WithFenceTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.fenceTimeout = d
		}
	}
}

// WithAcquireTimeout bounds swapchain image acquisition.
func WithAcquireTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.acquireTimeout = d
		}
	}
}

// WithShaderCache sets how many decoded shader modules the backend keeps
// between pipeline creations.
func WithShaderCache(modules int) Option {
	return func(o *options) { o.shaderCache = modules }
}

// WithHALBackend makes Open use another registered HAL backend, such as
// gputypes.BackendEmpty for the noop device in tests.
func WithHALBackend(variant gputypes.Backend) Option {
	return func(o *options) { o.halBackend = variant }
}

// WithValidation enables driver validation layers in Open.
func WithValidation(enabled bool) Option {
	return func(o *options) { o.validation = enabled }
}

// WithGPU makes Open use the GPU with the given ID from EnumerateGPUs
// instead of rhi.SelectGPU.
func WithGPU(id uint32) Option {
	return func(o *options) { o.gpu = &id }
}
