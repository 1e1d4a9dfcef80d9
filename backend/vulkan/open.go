// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"context"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan" // registers the Vulkan HAL backend

	"github.com/gogpu/rhi"
)

func init() {
	rhi.Register(Name, func(ctx context.Context) (rhi.Backend, error) {
		return Open(ctx, nil)
	})
}

func createInstance(o options) (hal.Instance, error) {
	hb, ok := hal.GetBackend(o.halBackend)
	if !ok {
		return nil, fmt.Errorf("%w: HAL backend %s is not registered", rhi.ErrBackendNotAvailable, o.halBackend)
	}
	desc := &hal.InstanceDescriptor{
		Backends: gputypes.Backends(1) << o.halBackend,
	}
	if o.validation {
		desc.Flags = gputypes.InstanceFlagsDebug | gputypes.InstanceFlagsValidation
	}
	inst, err := hb.CreateInstance(desc)
	if err != nil {
		return nil, rhi.Native("create instance", err)
	}
	return inst, nil
}

func gpuInfos(adapters []hal.ExposedAdapter) []rhi.GPUInfo {
	gpus := make([]rhi.GPUInfo, len(adapters))
	for i, a := range adapters {
		gpus[i] = rhi.GPUInfo{
			ID:         uint32(i),
			Name:       a.Info.Name,
			Integrated: a.Info.DeviceType == gputypes.DeviceTypeIntegratedGPU,
		}
	}
	return gpus
}

// EnumerateGPUs lists the physical devices of the HAL backend. Only
// WithHALBackend and WithValidation are honored.
func EnumerateGPUs(ctx context.Context, opts ...Option) ([]rhi.GPUInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	inst, err := createInstance(buildOptions(opts))
	if err != nil {
		return nil, err
	}
	defer inst.Destroy()

	adapters := inst.EnumerateAdapters(nil)
	defer func() {
		for _, a := range adapters {
			a.Adapter.Destroy()
		}
	}()
	return gpuInfos(adapters), nil
}

// Open creates an instance, picks a GPU and opens a device on it. The
// backend owns everything it opened and releases it in Destroy. A nil
// surface creates a headless backend.
func Open(ctx context.Context, surface Surface, opts ...Option) (*Backend, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	inst, err := createInstance(o)
	if err != nil {
		return nil, err
	}
	adapters := inst.EnumerateAdapters(nil)

	var (
		chosen *hal.ExposedAdapter
		info   rhi.GPUInfo
	)
	gpus := gpuInfos(adapters)
	if o.gpu != nil {
		if int(*o.gpu) < len(gpus) {
			info, chosen = gpus[*o.gpu], &adapters[*o.gpu]
		}
	} else if g, ok := rhi.SelectGPU(gpus); ok {
		info, chosen = g, &adapters[g.ID]
	}
	release := func() {
		for _, a := range adapters {
			if chosen == nil || a.Adapter != chosen.Adapter {
				a.Adapter.Destroy()
			}
		}
	}
	if chosen == nil {
		release()
		inst.Destroy()
		return nil, fmt.Errorf("%w: no usable GPU among %d", rhi.ErrBackendNotAvailable, len(gpus))
	}
	release()

	dev, err := chosen.Adapter.Open(0, chosen.Capabilities.Limits)
	if err != nil {
		chosen.Adapter.Destroy()
		inst.Destroy()
		return nil, rhi.Native("open device", err)
	}
	fail := func(err error) (*Backend, error) {
		dev.Device.Destroy()
		chosen.Adapter.Destroy()
		inst.Destroy()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	b, err := newBackend(dev.Device, dev.Queue, surface, o)
	if err != nil {
		return fail(err)
	}
	b.ownsDevice = true
	b.adapter = chosen.Adapter
	b.instance = inst

	slogger().Info("vulkan: device opened",
		"gpu", info.Name,
		"id", info.ID,
		"integrated", info.Integrated,
		"driver", chosen.Info.Driver,
		"hal", chosen.Info.Backend)
	return b, nil
}
