// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/handles"
)

// ColorSpace is the color space a surface format is presented in.
type ColorSpace uint8

const (
	// ColorSpaceSRGBNonLinear is the standard non-linear sRGB space.
	ColorSpaceSRGBNonLinear ColorSpace = iota
	// ColorSpaceOther is any other space (extended, HDR, linear).
	ColorSpaceOther
)

// SurfaceFormat pairs a pixel format with its color space.
type SurfaceFormat struct {
	Format     gputypes.TextureFormat
	ColorSpace ColorSpace
}

// SurfaceCapabilities is what a surface supports on a device.
type SurfaceCapabilities struct {
	Formats       []SurfaceFormat
	MinImageCount uint32
	// MaxImageCount of 0 means no upper bound.
	MaxImageCount uint32
	CurrentExtent rhi.Resolution2D
}

// SwapchainConfig is the configuration negotiated from SurfaceCapabilities.
type SwapchainConfig struct {
	Format      SurfaceFormat
	Resolution  rhi.Resolution2D
	ImageCount  uint32
	PresentMode gputypes.PresentMode
	Usage       gputypes.TextureUsage
}

// Surface is the window the backend presents to. The window system
// integration lives with the host application.
//
// Unlike hal.Surface, which hands out one texture per acquire, a Surface
// exposes its images up front and addresses them by index.
type Surface interface {
	Capabilities(device hal.Device) (SurfaceCapabilities, error)

	// Configure creates the swapchain and returns its images in index order.
	// The surface keeps ownership of the textures.
	Configure(device hal.Device, cfg SwapchainConfig) ([]hal.Texture, error)

	// Acquire blocks until an image is available or timeout elapses. A
	// timeout must be reported with an error wrapping rhi.ErrTimeout.
	Acquire(timeout time.Duration) (uint32, error)

	// Present queues image index for display. resized reports that the
	// window changed size and the swapchain is out of date.
	Present(queue hal.Queue, index uint32) (resized bool, err error)

	Unconfigure(device hal.Device)
}

type swapchain struct {
	format     gputypes.TextureFormat
	colorSpace ColorSpace
	resolution rhi.Resolution2D
	images     []rhi.ImageID
}

// chooseFormat prefers an 8-bit BGRA or RGBA format in non-linear sRGB and
// otherwise takes the first format offered.
func chooseFormat(formats []SurfaceFormat) SurfaceFormat {
	for _, f := range formats {
		if f.ColorSpace != ColorSpaceSRGBNonLinear {
			continue
		}
		switch f.Format {
		case gputypes.TextureFormatBGRA8UnormSrgb, gputypes.TextureFormatRGBA8UnormSrgb:
			return f
		}
	}
	for _, f := range formats {
		if f.ColorSpace == ColorSpaceSRGBNonLinear {
			return f
		}
	}
	return formats[0]
}

// imageCount asks for one image more than the minimum, clamped to max.
func imageCount(minCount, maxCount uint32) uint32 {
	n := minCount + 1
	if maxCount > 0 && n > maxCount {
		n = maxCount
	}
	return n
}

// createSwapchain negotiates the swapchain once and registers its images.
// On failure nothing stays configured.
func (b *Backend) createSwapchain() error {
	caps, err := b.surface.Capabilities(b.device)
	if err != nil {
		return rhi.Native("surface capabilities", err)
	}
	if len(caps.Formats) == 0 {
		return fmt.Errorf("%w: surface reports no formats", rhi.ErrInvalidArgument)
	}
	if caps.CurrentExtent.Empty() {
		return fmt.Errorf("%w: surface extent is %s", rhi.ErrInvalidArgument, caps.CurrentExtent)
	}

	cfg := SwapchainConfig{
		Format:      chooseFormat(caps.Formats),
		Resolution:  caps.CurrentExtent,
		ImageCount:  imageCount(caps.MinImageCount, caps.MaxImageCount),
		PresentMode: gputypes.PresentModeFifo,
		Usage:       gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopyDst,
	}
	textures, err := b.surface.Configure(b.device, cfg)
	if err != nil {
		return rhi.Native("configure surface", err)
	}

	b.swapchain = &swapchain{
		format:     cfg.Format.Format,
		colorSpace: cfg.Format.ColorSpace,
		resolution: cfg.Resolution,
	}
	for i, tex := range textures {
		view, err := b.createView(tex, cfg.Format.Format)
		if err != nil {
			b.releaseSwapchain()
			return fmt.Errorf("swapchain image %d: %w", i, err)
		}
		img := &image{
			texture:   tex,
			view:      view,
			res:       cfg.Resolution,
			format:    rhi.ImageFormatPresentation,
			native:    cfg.Format.Format,
			usage:     rhi.ImageUsageCopyDst | rhi.ImageUsageBlitDst,
			swapchain: true,
		}
		h, err := add(b.images, img, "image")
		if err != nil {
			b.device.DestroyTextureView(view)
			b.releaseSwapchain()
			return err
		}
		b.swapchain.images = append(b.swapchain.images, rhi.ImageID(h))
	}

	slogger().Info("vulkan: swapchain configured",
		"resolution", cfg.Resolution,
		"images", len(textures),
		"requested", cfg.ImageCount,
		"format", cfg.Format.Format)
	return nil
}

func (b *Backend) releaseSwapchain() {
	for _, id := range b.swapchain.images {
		if img, err := b.images.Remove(handles.Handle(id)); err == nil {
			b.destroyImageObjects(img)
		}
	}
	b.surface.Unconfigure(b.device)
	b.swapchain = nil
}

// AcquirePresentImage implements rhi.Backend. The backend lock is released
// while waiting for the surface.
func (b *Backend) AcquirePresentImage(fenceID rhi.FenceID) (uint32, error) {
	b.mu.Lock()
	if err := b.checkLive(); err != nil {
		b.mu.Unlock()
		return 0, err
	}
	if b.swapchain == nil {
		b.mu.Unlock()
		return 0, rhi.ErrNoSurface
	}
	if _, err := get(b.fences, handles.Handle(fenceID), fenceID); err != nil {
		b.mu.Unlock()
		return 0, err
	}
	surface, count, timeout := b.surface, len(b.swapchain.images), b.opts.acquireTimeout
	b.mu.Unlock()

	index, err := surface.Acquire(timeout)
	if err != nil {
		if errors.Is(err, rhi.ErrTimeout) {
			return 0, fmt.Errorf("acquire swapchain image: %w", err)
		}
		return 0, rhi.Native("acquire swapchain image", err)
	}
	if int(index) >= count {
		return 0, rhi.Native("acquire swapchain image", fmt.Errorf("index %d of %d images", index, count))
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLive(); err != nil {
		return 0, err
	}
	f, err := get(b.fences, handles.Handle(fenceID), fenceID)
	if err != nil {
		return 0, err
	}
	f.target = fenceSignaled
	return index, nil
}

// PresentSwapchainImage implements rhi.Backend.
func (b *Backend) PresentSwapchainImage(index uint32) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLive(); err != nil {
		return false, err
	}
	if b.swapchain == nil {
		return false, rhi.ErrNoSurface
	}
	if int(index) >= len(b.swapchain.images) {
		return false, fmt.Errorf("%w: swapchain image %d of %d", rhi.ErrInvalidArgument, index, len(b.swapchain.images))
	}

	resized, err := b.surface.Present(b.queue, index)
	if err != nil {
		return false, rhi.Native("present", err)
	}
	if resized {
		slogger().Debug("vulkan: surface out of date", "index", index)
	}
	return resized, nil
}

// SwapchainImages implements rhi.Backend. It returns nil when headless.
func (b *Backend) SwapchainImages() []rhi.ImageID {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.swapchain == nil {
		return nil
	}
	return slices.Clone(b.swapchain.images)
}

// SurfaceInfo implements rhi.Backend.
func (b *Backend) SurfaceInfo() rhi.SurfaceInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.swapchain == nil {
		return rhi.SurfaceInfo{}
	}
	return rhi.SurfaceInfo{
		Resolution: b.swapchain.resolution,
		ImageCount: uint32(len(b.swapchain.images)),
		Format:     b.swapchain.format.String(),
	}
}
