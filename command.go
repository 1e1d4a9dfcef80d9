package rhi

import "reflect"

// Command is one abstract GPU operation in a command list passed to
// Backend.CompileCommands. The set of commands is closed.
type Command interface {
	commandName() string
}

// CopyBufferToBuffer copies Size bytes between two buffers. A zero Size
// copies the whole source buffer from SrcOffset.
type CopyBufferToBuffer struct {
	Src       BufferID
	Dst       BufferID
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

// CopyBufferToImage uploads tightly packed texels starting at Offset in Src
// into the full extent of Dst.
type CopyBufferToImage struct {
	Src    BufferID
	Dst    ImageID
	Offset uint64
}

// BlitImage copies Src into Dst.
type BlitImage struct {
	Src ImageID
	Dst ImageID
}

// DrawRange is one non-indexed draw.
type DrawRange struct {
	FirstVertex   uint32
	VertexCount   uint32
	FirstInstance uint32
	InstanceCount uint32
}

// RunGraphicsPipeline renders Draws into Framebuffer with Pipeline, reading
// the buffers and textures bound in InputSet.
type RunGraphicsPipeline struct {
	Pipeline    PipelineID
	Framebuffer FramebufferID
	InputSet    InputSetID
	Draws       []DrawRange
}

func (CopyBufferToBuffer) commandName() string  { return "copy-buffer-to-buffer" }
func (CopyBufferToImage) commandName() string   { return "copy-buffer-to-image" }
func (BlitImage) commandName() string           { return "blit-image" }
func (RunGraphicsPipeline) commandName() string { return "run-graphics-pipeline" }

// CommandName returns a short name for logging.
func CommandName(c Command) string {
	if c == nil {
		return "<nil>"
	}
	if v := reflect.ValueOf(c); v.Kind() == reflect.Pointer && v.IsNil() {
		return "<nil>"
	}
	return c.commandName()
}
