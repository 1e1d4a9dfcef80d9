// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vulkan

import (
	"context"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/internal/handles"
	"github.com/gogpu/rhi/internal/shader"
)

// Bind group indices of the bindless layout.
const (
	bufferGroup  = 0
	textureGroup = 1
)

// samplerBinding is the binding of the shared sampler in the texture
// group. Texture slot i is bound at samplerBinding+1+i.
const samplerBinding = 0

// loadShaders reads both stages concurrently. The first failure is
// returned as *rhi.ShaderError naming the stage.
func (b *Backend) loadShaders(ctx context.Context, desc *rhi.PipelineDesc) (vs, fs *shader.Module, err error) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := b.loadStage(ctx, rhi.ShaderStageVertex, desc.VertexShader)
		vs = m
		return err
	})
	g.Go(func() error {
		m, err := b.loadStage(ctx, rhi.ShaderStageFragment, desc.FragmentShader)
		fs = m
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return vs, fs, nil
}

func (b *Backend) loadStage(ctx context.Context, stage rhi.ShaderStage, path string) (*shader.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, &rhi.ShaderError{Stage: stage, Path: path, Err: err}
	}
	m, err := b.shaders.Load(path)
	if err != nil {
		return nil, &rhi.ShaderError{Stage: stage, Path: path, Err: err}
	}
	return m, nil
}

// CreateGraphicsPipeline implements rhi.Backend.
func (b *Backend) CreateGraphicsPipeline(ctx context.Context, desc rhi.PipelineDesc) (rhi.PipelineID, error) {
	if err := desc.Validate(); err != nil {
		return 0, err
	}
	vsCode, fsCode, err := b.loadShaders(ctx, &desc)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLive(); err != nil {
		return 0, err
	}

	p, err := b.buildPipeline(&desc, vsCode, fsCode)
	if err != nil {
		return 0, err
	}
	h, err := add(b.pipelines, p, "pipeline")
	if err != nil {
		b.destroyPipelineObjects(p)
		return 0, err
	}
	slogger().Debug("vulkan: pipeline created",
		"id", rhi.PipelineID(h),
		"label", desc.Label,
		"colors", len(desc.ColorFormats),
		"depth", desc.DepthFormat != nil,
		"raster", desc.Raster,
		"spirv_bytes", vsCode.Size()+fsCode.Size())
	return rhi.PipelineID(h), nil
}

// buildPipeline creates the native objects of a pipeline. On failure every
// object created so far is released.
func (b *Backend) buildPipeline(desc *rhi.PipelineDesc, vsCode, fsCode *shader.Module) (_ *pipeline, err error) {
	label := desc.Label
	if label == "" {
		label = b.opts.label + "_pipeline"
	}
	p := &pipeline{
		label:        label,
		colorFormats: append([]rhi.ImageFormat(nil), desc.ColorFormats...),
		maxBuffers:   desc.MaxBoundBuffers,
		maxTextures:  desc.MaxBoundTextures,
		raster:       desc.Raster,
	}
	if desc.DepthFormat != nil {
		f := *desc.DepthFormat
		p.depthFormat = &f
	}
	defer func() {
		if err != nil {
			b.destroyPipelineObjects(p)
		}
	}()

	if p.vertex, err = b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label + "_vs",
		Source: hal.ShaderSource{SPIRV: vsCode.Words},
	}); err != nil {
		return nil, &rhi.ShaderError{Stage: rhi.ShaderStageVertex, Path: desc.VertexShader, Err: rhi.Native("create shader module", err)}
	}
	if p.fragment, err = b.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label + "_fs",
		Source: hal.ShaderSource{SPIRV: fsCode.Words},
	}); err != nil {
		return nil, &rhi.ShaderError{Stage: rhi.ShaderStageFragment, Path: desc.FragmentShader, Err: rhi.Native("create shader module", err)}
	}

	if p.bufferLayout, err = b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label + "_buffers",
		Entries: bufferLayoutEntries(p.maxBuffers),
	}); err != nil {
		return nil, rhi.Native("create buffer bind group layout", err)
	}
	if p.textureLayout, err = b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   label + "_textures",
		Entries: textureLayoutEntries(p.maxTextures),
	}); err != nil {
		return nil, rhi.Native("create texture bind group layout", err)
	}
	if p.layout, err = b.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            label + "_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bufferLayout, p.textureLayout},
	}); err != nil {
		return nil, rhi.Native("create pipeline layout", err)
	}

	topology := gputypes.PrimitiveTopologyTriangleList
	if desc.Raster.IsWireframe() {
		topology = gputypes.PrimitiveTopologyLineList
		if t := desc.Raster.LineThickness(); t != 1 {
			slogger().Warn("vulkan: line thickness other than 1 is not supported", "pipeline", label, "thickness", t)
		}
	}

	targets := make([]gputypes.ColorTargetState, len(p.colorFormats))
	for i, f := range p.colorFormats {
		targets[i] = gputypes.ColorTargetState{
			Format:    b.nativeFormat(f),
			WriteMask: gputypes.ColorWriteMaskAll,
		}
	}

	var depth *hal.DepthStencilState
	if p.depthFormat != nil {
		keep := hal.StencilFaceState{
			Compare:     gputypes.CompareFunctionAlways,
			FailOp:      hal.StencilOperationKeep,
			DepthFailOp: hal.StencilOperationKeep,
			PassOp:      hal.StencilOperationKeep,
		}
		depth = &hal.DepthStencilState{
			Format:            b.nativeFormat(*p.depthFormat),
			DepthWriteEnabled: true,
			DepthCompare:      gputypes.CompareFunctionLess,
			StencilFront:      keep,
			StencilBack:       keep,
		}
	}

	vsEntry, fsEntry := desc.EntryPoints()
	if p.native, err = b.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  label,
		Layout: p.layout,
		Vertex: hal.VertexState{
			Module:     p.vertex,
			EntryPoint: vsEntry,
		},
		Fragment: &hal.FragmentState{
			Module:     p.fragment,
			EntryPoint: fsEntry,
			Targets:    targets,
		},
		DepthStencil: depth,
		Primitive: gputypes.PrimitiveState{
			Topology: topology,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}); err != nil {
		return nil, rhi.Native("create render pipeline", err)
	}
	return p, nil
}

func bufferLayoutEntries(n uint32) []gputypes.BindGroupLayoutEntry {
	entries := make([]gputypes.BindGroupLayoutEntry, n)
	for i := range entries {
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: gputypes.ShaderStagesVertexFragment,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
		}
	}
	return entries
}

func textureLayoutEntries(n uint32) []gputypes.BindGroupLayoutEntry {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, n+1)
	entries = append(entries, gputypes.BindGroupLayoutEntry{
		Binding:    samplerBinding,
		Visibility: gputypes.ShaderStageFragment,
		Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
	})
	for i := uint32(0); i < n; i++ {
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    samplerBinding + 1 + i,
			Visibility: gputypes.ShaderStagesVertexFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		})
	}
	return entries
}

func (b *Backend) destroyPipelineObjects(p *pipeline) {
	if p.native != nil {
		b.device.DestroyRenderPipeline(p.native)
	}
	if p.layout != nil {
		b.device.DestroyPipelineLayout(p.layout)
	}
	if p.textureLayout != nil {
		b.device.DestroyBindGroupLayout(p.textureLayout)
	}
	if p.bufferLayout != nil {
		b.device.DestroyBindGroupLayout(p.bufferLayout)
	}
	if p.fragment != nil {
		b.device.DestroyShaderModule(p.fragment)
	}
	if p.vertex != nil {
		b.device.DestroyShaderModule(p.vertex)
	}
}

// DestroyPipeline implements rhi.Backend. Framebuffers and input sets
// created for the pipeline stay valid handles but can no longer be
// updated or run.
func (b *Backend) DestroyPipeline(id rhi.PipelineID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLive(); err != nil {
		return err
	}

	p, err := b.pipelines.Remove(handles.Handle(id))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", rhi.ErrNotFound, id, err)
	}
	b.dropRecordings()
	b.destroyPipelineObjects(p)
	return nil
}

// CreateFramebuffer implements rhi.Backend.
func (b *Backend) CreateFramebuffer(pipelineID rhi.PipelineID, colors []rhi.ImageID, depth *rhi.ImageID) (rhi.FramebufferID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLive(); err != nil {
		return 0, err
	}

	p, err := get(b.pipelines, handles.Handle(pipelineID), pipelineID)
	if err != nil {
		return 0, err
	}
	if len(colors) != len(p.colorFormats) {
		return 0, fmt.Errorf("%w: %s expects %d color attachments, got %d",
			rhi.ErrInvalidArgument, pipelineID, len(p.colorFormats), len(colors))
	}
	if (depth != nil) != (p.depthFormat != nil) {
		return 0, fmt.Errorf("%w: depth attachment does not match %s", rhi.ErrInvalidArgument, pipelineID)
	}

	fb := &framebuffer{pipeline: pipelineID, colors: append([]rhi.ImageID(nil), colors...)}
	for i, id := range colors {
		img, err := b.image(id)
		if err != nil {
			return 0, fmt.Errorf("color attachment %d: %w", i, err)
		}
		if i == 0 {
			fb.res = img.res
		}
	}
	if depth != nil {
		img, err := b.image(*depth)
		if err != nil {
			return 0, fmt.Errorf("depth attachment: %w", err)
		}
		d := *depth
		fb.depth = &d
		if len(colors) == 0 {
			fb.res = img.res
		}
	}

	h, err := add(b.framebuffers, fb, "framebuffer")
	if err != nil {
		return 0, err
	}
	return rhi.FramebufferID(h), nil
}

// DestroyFramebuffer implements rhi.Backend.
func (b *Backend) DestroyFramebuffer(id rhi.FramebufferID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLive(); err != nil {
		return err
	}

	if _, err := b.framebuffers.Remove(handles.Handle(id)); err != nil {
		return fmt.Errorf("%w: %s: %w", rhi.ErrNotFound, id, err)
	}
	b.dropRecordings()
	return nil
}

// FramebufferAttachments resolves the attachments of a framebuffer for
// barrier analysis. The caller holds b.mu.
func (b *Backend) FramebufferAttachments(id rhi.FramebufferID) ([]rhi.ImageID, *rhi.ImageID, error) {
	fb, err := get(b.framebuffers, handles.Handle(id), id)
	if err != nil {
		return nil, nil, err
	}
	return fb.colors, fb.depth, nil
}

// InputSetTextures resolves the textures bound to an input set for
// barrier analysis. The caller holds b.mu.
func (b *Backend) InputSetTextures(id rhi.InputSetID) ([]rhi.ImageID, error) {
	s, err := get(b.inputSets, handles.Handle(id), id)
	if err != nil {
		return nil, err
	}
	return s.textures, nil
}

// CreateInputSet implements rhi.Backend. The set starts with every slot
// bound to a placeholder.
func (b *Backend) CreateInputSet(pipelineID rhi.PipelineID) (rhi.InputSetID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLive(); err != nil {
		return 0, err
	}

	p, err := get(b.pipelines, handles.Handle(pipelineID), pipelineID)
	if err != nil {
		return 0, err
	}
	if err := b.pool.reserve(p.maxBuffers, p.maxTextures); err != nil {
		return 0, err
	}

	s := &inputSet{pipeline: pipelineID, maxBuffers: p.maxBuffers, maxTextures: p.maxTextures}
	if err := b.bindInputSet(s, p, nil, nil); err != nil {
		b.pool.release(s.maxBuffers, s.maxTextures)
		return 0, err
	}
	h, err := add(b.inputSets, s, "input set")
	if err != nil {
		b.destroyInputSetObjects(s)
		return 0, err
	}
	return rhi.InputSetID(h), nil
}

// UpdateInputSet implements rhi.Backend. Buffer i is bound at binding i of
// group 0 and texture i at binding i+1 of group 1. Slots past the given
// resources are reset to placeholders.
func (b *Backend) UpdateInputSet(id rhi.InputSetID, buffers []rhi.BufferID, textures []rhi.ImageID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLive(); err != nil {
		return err
	}

	s, err := get(b.inputSets, handles.Handle(id), id)
	if err != nil {
		return err
	}
	if uint32(len(buffers)) > s.maxBuffers || uint32(len(textures)) > s.maxTextures {
		return fmt.Errorf("%w: %s holds %d buffers and %d textures, got %d and %d",
			rhi.ErrInvalidArgument, id, s.maxBuffers, s.maxTextures, len(buffers), len(textures))
	}
	p, err := get(b.pipelines, handles.Handle(s.pipeline), s.pipeline)
	if err != nil {
		return err
	}

	old := *s
	if err := b.bindInputSet(s, p, buffers, textures); err != nil {
		return err
	}
	b.dropRecordings()
	b.device.DestroyBindGroup(old.bufferSet)
	b.device.DestroyBindGroup(old.textureSet)
	return nil
}

// bindInputSet builds both bind groups of s from the given resources and
// stores them in s. s is unchanged on error.
func (b *Backend) bindInputSet(s *inputSet, p *pipeline, buffers []rhi.BufferID, textures []rhi.ImageID) error {
	bufEntries := make([]gputypes.BindGroupEntry, s.maxBuffers)
	for i := range bufEntries {
		res := gputypes.BufferBinding{Buffer: b.placeholders.buffer.NativeHandle()}
		if i < len(buffers) {
			buf, err := b.buffer(buffers[i])
			if err != nil {
				return fmt.Errorf("buffer slot %d: %w", i, err)
			}
			res = gputypes.BufferBinding{Buffer: buf.buf.NativeHandle(), Size: buf.size}
		}
		bufEntries[i] = gputypes.BindGroupEntry{Binding: uint32(i), Resource: res}
	}

	texEntries := make([]gputypes.BindGroupEntry, 0, s.maxTextures+1)
	texEntries = append(texEntries, gputypes.BindGroupEntry{
		Binding:  samplerBinding,
		Resource: gputypes.SamplerBinding{Sampler: b.placeholders.sampler.NativeHandle()},
	})
	for i := uint32(0); i < s.maxTextures; i++ {
		view := b.placeholders.view
		if int(i) < len(textures) {
			img, err := b.image(textures[i])
			if err != nil {
				return fmt.Errorf("texture slot %d: %w", i, err)
			}
			if img.format.IsDepth() {
				return fmt.Errorf("%w: texture slot %d: %s is a depth image", rhi.ErrInvalidArgument, i, textures[i])
			}
			view = img.view
		}
		texEntries = append(texEntries, gputypes.BindGroupEntry{
			Binding:  samplerBinding + 1 + i,
			Resource: gputypes.TextureViewBinding{TextureView: view.NativeHandle()},
		})
	}

	bufferSet, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   p.label + "_buffers",
		Layout:  p.bufferLayout,
		Entries: bufEntries,
	})
	if err != nil {
		return rhi.Native("create buffer bind group", err)
	}
	textureSet, err := b.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   p.label + "_textures",
		Layout:  p.textureLayout,
		Entries: texEntries,
	})
	if err != nil {
		b.device.DestroyBindGroup(bufferSet)
		return rhi.Native("create texture bind group", err)
	}

	s.bufferSet, s.textureSet = bufferSet, textureSet
	s.buffers = append(s.buffers[:0:0], buffers...)
	s.textures = append(s.textures[:0:0], textures...)
	return nil
}

func (b *Backend) destroyInputSetObjects(s *inputSet) {
	if s.bufferSet != nil {
		b.device.DestroyBindGroup(s.bufferSet)
	}
	if s.textureSet != nil {
		b.device.DestroyBindGroup(s.textureSet)
	}
	b.pool.release(s.maxBuffers, s.maxTextures)
}

// DestroyInputSet implements rhi.Backend and returns the set's
// descriptors to the pool.
func (b *Backend) DestroyInputSet(id rhi.InputSetID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkLive(); err != nil {
		return err
	}

	s, err := b.inputSets.Remove(handles.Handle(id))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", rhi.ErrNotFound, id, err)
	}
	b.dropRecordings()
	b.destroyInputSetObjects(s)
	return nil
}
