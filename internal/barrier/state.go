// Package barrier derives image layout transitions from an ordered command
// list and replays the list with barriers inserted before each command.
//
// The layout an image is in is never stored on the image. It is a function
// of the position in one command list: the engine walks the list once to
// collect the state every command requires of every image it touches, and
// then emits, before each command, a transition from the state required by
// the previous use of that image.
package barrier

import (
	"fmt"
	"strings"
)

// Layout is the access mode an image must be in for an operation.
type Layout uint8

const (
	LayoutUndefined Layout = iota
	LayoutColorAttachment
	LayoutDepthAttachment
	LayoutShaderReadOnly
	LayoutTransferSrc
	LayoutTransferDst
)

func (l Layout) String() string {
	switch l {
	case LayoutUndefined:
		return "undefined"
	case LayoutColorAttachment:
		return "color-attachment-optimal"
	case LayoutDepthAttachment:
		return "depth-attachment-optimal"
	case LayoutShaderReadOnly:
		return "shader-read-only-optimal"
	case LayoutTransferSrc:
		return "transfer-src"
	case LayoutTransferDst:
		return "transfer-dst"
	default:
		return fmt.Sprintf("Layout(%d)", uint8(l))
	}
}

// Access returns the memory access an image in layout l is used with.
func (l Layout) Access() Access {
	switch l {
	case LayoutColorAttachment:
		return AccessColorAttachmentWrite
	case LayoutDepthAttachment:
		return AccessDepthStencilAttachmentWrite
	case LayoutShaderReadOnly:
		return AccessShaderRead
	case LayoutTransferSrc:
		return AccessTransferRead
	case LayoutTransferDst:
		return AccessTransferWrite
	default:
		return AccessNone
	}
}

// Stage is a set of pipeline stages.
type Stage uint32

const (
	StageTopOfPipe Stage = 1 << iota
	StageTransfer
	StageEarlyFragmentTests
	StageFragmentShader
	StageColorAttachmentOutput
	StageBottomOfPipe
)

var stageNames = []string{"top-of-pipe", "transfer", "early-fragment-tests", "fragment-shader", "color-attachment-output", "bottom-of-pipe"}

func (s Stage) String() string { return maskString(uint32(s), stageNames) }

// Access is a set of memory access kinds.
type Access uint32

const AccessNone Access = 0

const (
	AccessColorAttachmentWrite Access = 1 << iota
	AccessDepthStencilAttachmentWrite
	AccessShaderRead
	AccessTransferRead
	AccessTransferWrite
)

var accessNames = []string{"color-attachment-write", "depth-stencil-attachment-write", "shader-read", "transfer-read", "transfer-write"}

func (a Access) String() string { return maskString(uint32(a), accessNames) }

func maskString(v uint32, names []string) string {
	if v == 0 {
		return "none"
	}
	var parts []string
	for i, n := range names {
		if v&(1<<i) != 0 {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "|")
}

// State is the layout and pipeline stage a command requires of an image.
type State struct {
	Layout Layout
	Stage  Stage
}

// Initial is the state assumed before the first use of an image in a
// command list.
var Initial = State{Layout: LayoutUndefined, Stage: StageBottomOfPipe}

func (s State) String() string { return s.Layout.String() + "@" + s.Stage.String() }

// States required by each kind of use.
var (
	TransferDst       = State{LayoutTransferDst, StageTransfer}
	TransferSrc       = State{LayoutTransferSrc, StageTransfer}
	ColorAttachment   = State{LayoutColorAttachment, StageColorAttachmentOutput}
	DepthAttachment   = State{LayoutDepthAttachment, StageEarlyFragmentTests}
	ShaderSampledRead = State{LayoutShaderReadOnly, StageFragmentShader}
)
