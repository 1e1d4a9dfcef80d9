package rhi

import "context"

// Leaf constructors for the Backend operations. Each output Value holds
// the operation's result (an ID, a bool, or nil for unit results).

func CreateBufferTask(size uint64, usage BufferUsage, loc MemoryLocation) Task {
	return Leaf("create-buffer", func(_ context.Context, b Backend) (any, error) {
		return b.CreateBuffer(size, usage, loc)
	})
}

func DestroyBufferTask(id BufferID) Task {
	return Leaf("destroy-buffer", func(_ context.Context, b Backend) (any, error) {
		return nil, b.DestroyBuffer(id)
	})
}

func CreateTexture2DTask(res Resolution2D, format ImageFormat, usage ImageUsage, loc MemoryLocation) Task {
	return Leaf("create-texture-2d", func(_ context.Context, b Backend) (any, error) {
		return b.CreateTexture2D(res, format, usage, loc)
	})
}

func DestroyImageTask(id ImageID) Task {
	return Leaf("destroy-image", func(_ context.Context, b Backend) (any, error) {
		return nil, b.DestroyImage(id)
	})
}

func CreateGraphicsPipelineTask(desc PipelineDesc) Task {
	return Leaf("create-graphics-pipeline", func(ctx context.Context, b Backend) (any, error) {
		return b.CreateGraphicsPipeline(ctx, desc)
	})
}

func DestroyPipelineTask(id PipelineID) Task {
	return Leaf("destroy-pipeline", func(_ context.Context, b Backend) (any, error) {
		return nil, b.DestroyPipeline(id)
	})
}

func CreateFramebufferTask(pipeline PipelineID, colors []ImageID, depth *ImageID) Task {
	return Leaf("create-framebuffer", func(_ context.Context, b Backend) (any, error) {
		return b.CreateFramebuffer(pipeline, colors, depth)
	})
}

func DestroyFramebufferTask(id FramebufferID) Task {
	return Leaf("destroy-framebuffer", func(_ context.Context, b Backend) (any, error) {
		return nil, b.DestroyFramebuffer(id)
	})
}

func CreateInputSetTask(pipeline PipelineID) Task {
	return Leaf("create-input-set", func(_ context.Context, b Backend) (any, error) {
		return b.CreateInputSet(pipeline)
	})
}

func UpdateInputSetTask(id InputSetID, buffers []BufferID, textures []ImageID) Task {
	return Leaf("update-input-set", func(_ context.Context, b Backend) (any, error) {
		return nil, b.UpdateInputSet(id, buffers, textures)
	})
}

func CreateFenceTask(signaled bool) Task {
	return Leaf("create-fence", func(_ context.Context, b Backend) (any, error) {
		return b.CreateFence(signaled)
	})
}

func WaitForFenceTask(id FenceID) Task {
	return Leaf("wait-for-fence", func(_ context.Context, b Backend) (any, error) {
		return nil, b.WaitForFence(id)
	})
}

func CreateCommandBufferTask() Task {
	return Leaf("create-command-buffer", func(_ context.Context, b Backend) (any, error) {
		return b.CreateCommandBuffer()
	})
}

func CompileCommandsTask(id CommandBufferID, cmds []Command) Task {
	return Leaf("compile-commands", func(_ context.Context, b Backend) (any, error) {
		return nil, b.CompileCommands(id, cmds)
	})
}

func RunCommandsTask(id CommandBufferID, fence FenceID) Task {
	return Leaf("run-commands", func(_ context.Context, b Backend) (any, error) {
		return nil, b.RunCommands(id, fence)
	})
}
