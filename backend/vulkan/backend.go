// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/alloc"
	"github.com/gogpu/rhi/internal/cache"
	"github.com/gogpu/rhi/internal/handles"
	"github.com/gogpu/rhi/internal/shader"
)

// Name is the registry name of this backend.
const Name = "vulkan"

// Backend implements rhi.Backend on a HAL device.
//
// All methods are serialized behind one mutex. Shader files are read
// before the lock is taken, so slow storage does not stall other callers.
type Backend struct {
	mu sync.Mutex

	opts     options
	device   hal.Device
	queue    hal.Queue
	// Set when the backend opened the device itself.
	adapter  hal.Adapter
	instance hal.Instance

	ownsDevice bool
	destroyed  bool

	mem     *alloc.Allocator
	pool    *descriptorPool
	shaders *shader.Loader

	images         *handles.Store[*image]
	buffers        *handles.Store[*buffer]
	pipelines      *handles.Store[*pipeline]
	framebuffers   *handles.Store[*framebuffer]
	inputSets      *handles.Store[*inputSet]
	fences         *handles.Store[*fence]
	commandBuffers *handles.Store[*commandBuffer]

	// pending holds submitted command buffers until the queue completes them.
	pending []submission

	// placeholders fill input set slots nothing has been bound to yet.
	placeholders placeholders

	surface   Surface
	swapchain *swapchain
}

var _ rhi.Backend = (*Backend)(nil)

func slogger() *slog.Logger { return rhi.Logger() }

// New creates a backend on device and queue and takes ownership of the
// device. A nil surface creates a headless backend.
func New(device hal.Device, queue hal.Queue, surface Surface, opts ...Option) (*Backend, error) {
	b, err := newBackend(device, queue, surface, buildOptions(opts))
	if err != nil {
		return nil, err
	}
	b.ownsDevice = true
	return b, nil
}

// NewFromProvider creates a backend on a device shared by a host
// application. The provider must also implement HalDevice() any and
// HalQueue() any returning hal.Device and hal.Queue. The device stays
// owned by the provider.
func NewFromProvider(provider gpucontext.DeviceProvider, surface Surface, opts ...Option) (*Backend, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", rhi.ErrInvalidArgument)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", rhi.ErrInvalidArgument)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", rhi.ErrInvalidArgument)
	}
	if surface == nil {
		if s, ok := provider.(interface{ SurfaceFormat() gputypes.TextureFormat }); ok {
			slogger().Debug("vulkan: provider surface not used", "format", s.SurfaceFormat())
		}
	}
	return newBackend(device, queue, surface, buildOptions(opts))
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newBackend(device hal.Device, queue hal.Queue, surface Surface, o options) (*Backend, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("%w: nil device or queue", rhi.ErrInvalidArgument)
	}

	c := o.capacities
	b := &Backend{
		opts:           o,
		device:         device,
		queue:          queue,
		mem:            alloc.New(alloc.Config{BudgetBytes: o.memoryBudget}),
		pool:           newDescriptorPool(o.pool),
		shaders:        shader.NewLoader(o.shaderCache),
		images:         handles.NewStore[*image](c.Images),
		buffers:        handles.NewStore[*buffer](c.Buffers),
		pipelines:      handles.NewStore[*pipeline](c.Pipelines),
		framebuffers:   handles.NewStore[*framebuffer](c.Framebuffers),
		inputSets:      handles.NewStore[*inputSet](c.InputSets),
		fences:         handles.NewStore[*fence](c.Fences),
		commandBuffers: handles.NewStore[*commandBuffer](c.CommandBuffers),
		surface:        surface,
	}

	if err := b.placeholders.create(b); err != nil {
		return nil, err
	}
	if surface != nil {
		if err := b.createSwapchain(); err != nil {
			b.placeholders.destroy(device)
			return nil, err
		}
	}

	slogger().Info("vulkan: backend created",
		"label", o.label,
		"headless", surface == nil,
		"pool_sets", o.pool.Sets,
		"memory", b.mem.Stats().String())
	return b, nil
}

// Name implements rhi.Backend.
func (b *Backend) Name() string { return Name }

// Device returns the HAL device the backend records on.
func (b *Backend) Device() hal.Device { return b.device }

func (b *Backend) label(kind string, h handles.Handle) string {
	return fmt.Sprintf("%s_%s_%d", b.opts.label, kind, h)
}

func (b *Backend) checkLive() error {
	if b.destroyed {
		return rhi.ErrDestroyed
	}
	return nil
}

// get resolves h in s, mapping a stale handle onto rhi.ErrNotFound.
func get[T any](s *handles.Store[T], h handles.Handle, what fmt.Stringer) (T, error) {
	v, err := s.Get(h)
	if err != nil {
		return v, fmt.Errorf("%w: %s: %w", rhi.ErrNotFound, what, err)
	}
	return v, nil
}

// add stores v in s, mapping a full table onto rhi.ErrExhausted.
func add[T any](s *handles.Store[T], v T, what string) (handles.Handle, error) {
	h, err := s.Add(v)
	if err != nil {
		return h, fmt.Errorf("%w: %s table: %w", rhi.ErrExhausted, what, err)
	}
	return h, nil
}

func (b *Backend) image(id rhi.ImageID) (*image, error) {
	return get(b.images, handles.Handle(id), id)
}

func (b *Backend) buffer(id rhi.BufferID) (*buffer, error) {
	return get(b.buffers, handles.Handle(id), id)
}

// CreateBuffer implements rhi.Backend.
func (b *Backend) CreateBuffer(size uint64, usage rhi.BufferUsage, loc rhi.MemoryLocation) (rhi.BufferID, error) {
	if size == 0 {
		return 0, fmt.Errorf("%w: zero-sized buffer", rhi.ErrInvalidArgument)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLive(); err != nil {
		return 0, err
	}

	mem, err := b.mem.Allocate("buffer", size, memoryLocation(loc))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", rhi.ErrExhausted, err)
	}
	native, err := b.device.CreateBuffer(&hal.BufferDescriptor{
		Label: b.opts.label + "_buffer",
		Size:  size,
		Usage: bufferUsage(usage, loc),
	})
	if err != nil {
		_ = b.mem.Free(mem)
		return 0, rhi.Native("create buffer", err)
	}

	h, err := add(b.buffers, &buffer{buf: native, size: size, usage: usage, loc: loc, memory: mem}, "buffer")
	if err != nil {
		b.device.DestroyBuffer(native)
		_ = b.mem.Free(mem)
		return 0, err
	}
	slogger().Debug("vulkan: buffer created", "id", rhi.BufferID(h), "size", size, "usage", usage, "location", loc)
	return rhi.BufferID(h), nil
}

// WriteBuffer implements rhi.Backend.
func (b *Backend) WriteBuffer(id rhi.BufferID, offset uint64, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLive(); err != nil {
		return err
	}

	buf, err := b.buffer(id)
	if err != nil {
		return err
	}
	if offset > buf.size || uint64(len(data)) > buf.size-offset {
		return fmt.Errorf("%w: write of %d bytes at %d overflows %s of %d bytes",
			rhi.ErrInvalidArgument, len(data), offset, id, buf.size)
	}
	if err := b.queue.WriteBuffer(buf.buf, offset, data); err != nil {
		return rhi.Native("write buffer", err)
	}
	return nil
}

// DestroyBuffer implements rhi.Backend.
func (b *Backend) DestroyBuffer(id rhi.BufferID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLive(); err != nil {
		return err
	}

	buf, err := b.buffers.Remove(handles.Handle(id))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", rhi.ErrNotFound, id, err)
	}
	b.dropRecordings()
	b.device.DestroyBuffer(buf.buf)
	return b.mem.Free(buf.memory)
}

// CreateTexture2D implements rhi.Backend.
func (b *Backend) CreateTexture2D(res rhi.Resolution2D, format rhi.ImageFormat, usage rhi.ImageUsage, loc rhi.MemoryLocation) (rhi.ImageID, error) {
	if res.Empty() {
		return 0, fmt.Errorf("%w: empty resolution %s", rhi.ErrInvalidArgument, res)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLive(); err != nil {
		return 0, err
	}

	mem, err := b.mem.Allocate("image", alloc.TextureSize(res.Width, res.Height, bytesPerPixel(format)), memoryLocation(loc))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", rhi.ErrExhausted, err)
	}

	img, err := b.createImageObjects(res, format, usage)
	if err != nil {
		_ = b.mem.Free(mem)
		return 0, err
	}
	img.memory = mem

	h, err := add(b.images, img, "image")
	if err != nil {
		b.destroyImageObjects(img)
		_ = b.mem.Free(mem)
		return 0, err
	}
	slogger().Debug("vulkan: image created", "id", rhi.ImageID(h), "resolution", res, "format", format, "usage", usage)
	return rhi.ImageID(h), nil
}

func (b *Backend) createImageObjects(res rhi.Resolution2D, format rhi.ImageFormat, usage rhi.ImageUsage) (*image, error) {
	native := b.nativeFormat(format)
	tex, err := b.device.CreateTexture(&hal.TextureDescriptor{
		Label: b.opts.label + "_image",
		Size: hal.Extent3D{
			Width:              res.Width,
			Height:             res.Height,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        native,
		Usage:         textureUsage(usage),
	})
	if err != nil {
		return nil, rhi.Native("create texture", err)
	}
	view, err := b.createView(tex, native)
	if err != nil {
		b.device.DestroyTexture(tex)
		return nil, err
	}
	return &image{texture: tex, view: view, res: res, format: format, native: native, usage: usage}, nil
}

func (b *Backend) createView(tex hal.Texture, format gputypes.TextureFormat) (hal.TextureView, error) {
	view, err := b.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:           b.opts.label + "_view",
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    0,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return nil, rhi.Native("create texture view", err)
	}
	return view, nil
}

// destroyImageObjects releases the view, then the texture unless the
// surface owns it.
func (b *Backend) destroyImageObjects(img *image) {
	if img.view != nil {
		b.device.DestroyTextureView(img.view)
	}
	if !img.swapchain && img.texture != nil {
		b.device.DestroyTexture(img.texture)
	}
}

// DestroyImage implements rhi.Backend. Swapchain images are rejected.
func (b *Backend) DestroyImage(id rhi.ImageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLive(); err != nil {
		return err
	}

	img, err := b.image(id)
	if err != nil {
		return err
	}
	if img.swapchain {
		return fmt.Errorf("%w: %s belongs to the swapchain", rhi.ErrInvalidArgument, id)
	}
	if _, err := b.images.Remove(handles.Handle(id)); err != nil {
		return fmt.Errorf("%w: %s: %w", rhi.ErrNotFound, id, err)
	}
	b.dropRecordings()
	b.destroyImageObjects(img)
	return b.mem.Free(img.memory)
}

// Stats implements rhi.Backend.
func (b *Backend) Stats() rhi.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return rhi.Stats{
		Images:              b.images.Len(),
		Buffers:             b.buffers.Len(),
		Pipelines:           b.pipelines.Len(),
		Framebuffers:        b.framebuffers.Len(),
		InputSets:           b.inputSets.Len(),
		Fences:              b.fences.Len(),
		CommandBuffers:      b.commandBuffers.Len(),
		DescriptorSetsInUse: b.pool.setsInUse(),
		MemoryUsedBytes:     b.mem.Stats().UsedBytes,
	}
}

// MemoryStats returns the backing memory accounting.
func (b *Backend) MemoryStats() alloc.Stats {
	return b.mem.Stats()
}

// ShaderCacheStats reports how often pipeline creation reused a decoded
// shader module.
func (b *Backend) ShaderCacheStats() cache.Stats {
	return b.shaders.Stats()
}

// Destroy implements rhi.Backend. It waits for the device to go idle and
// releases resources in dependency order: command buffers, input sets,
// framebuffers, pipelines, images, buffers, fences, then the swapchain and
// the device.
func (b *Backend) Destroy() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return nil
	}
	b.destroyed = true

	var errs []error
	if err := b.device.WaitIdle(); err != nil {
		errs = append(errs, rhi.Native("wait idle", err))
	}
	for _, s := range b.pending {
		b.device.FreeCommandBuffer(s.cmd)
	}
	b.pending = nil
	b.commandBuffers.Drain(func(_ handles.Handle, c *commandBuffer) {
		b.freeRecorded(c)
	})
	b.inputSets.Drain(func(_ handles.Handle, s *inputSet) {
		b.destroyInputSetObjects(s)
	})
	b.framebuffers.Drain(func(handles.Handle, *framebuffer) {})
	b.pipelines.Drain(func(_ handles.Handle, p *pipeline) {
		b.destroyPipelineObjects(p)
	})
	b.images.Drain(func(h handles.Handle, img *image) {
		b.destroyImageObjects(img)
		if err := b.mem.Free(img.memory); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rhi.ImageID(h), err))
		}
	})
	b.buffers.Drain(func(h handles.Handle, buf *buffer) {
		b.device.DestroyBuffer(buf.buf)
		if err := b.mem.Free(buf.memory); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rhi.BufferID(h), err))
		}
	})
	b.fences.Drain(func(handles.Handle, *fence) {})

	if b.swapchain != nil {
		b.surface.Unconfigure(b.device)
		b.swapchain = nil
	}
	b.placeholders.destroy(b.device)
	b.shaders.Purge()

	if leaked := b.mem.Close(); leaked > 0 {
		slogger().Warn("vulkan: allocations leaked at destroy", "count", leaked)
	}
	if b.ownsDevice {
		b.device.Destroy()
	}
	if b.adapter != nil {
		b.adapter.Destroy()
		b.adapter = nil
	}
	if b.instance != nil {
		b.instance.Destroy()
		b.instance = nil
	}

	err := errors.Join(errs...)
	if err != nil {
		slogger().Warn("vulkan: backend destroyed with errors", "err", err)
	} else {
		slogger().Info("vulkan: backend destroyed")
	}
	return err
}
