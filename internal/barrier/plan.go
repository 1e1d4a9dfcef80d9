package barrier

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gogpu/rhi"
)

var (
	// ErrStateConflict is returned when one command needs the same image
	// in two different states, such as sampling a bound color attachment.
	ErrStateConflict = errors.New("barrier: image required in two states by one command")

	// ErrUnknownCommand is returned for command types the engine cannot analyze.
	ErrUnknownCommand = errors.New("barrier: unknown command")
)

// Resolver looks up the images referenced indirectly through framebuffer
// and input set handles. Lookups of stale handles must return an error
// wrapping rhi.ErrNotFound.
type Resolver interface {
	FramebufferAttachments(id rhi.FramebufferID) (colors []rhi.ImageID, depth *rhi.ImageID, err error)
	InputSetTextures(id rhi.InputSetID) ([]rhi.ImageID, error)
}

// Barrier transitions one image between two states. Every barrier stays
// within one queue family and is scoped by region.
type Barrier struct {
	Image  rhi.ImageID
	Before State
	After  State
}

// SrcAccess is the access that must complete before the transition.
func (b Barrier) SrcAccess() Access { return b.Before.Layout.Access() }

// DstAccess is the access that waits for the transition.
func (b Barrier) DstAccess() Access { return b.After.Layout.Access() }

func (b Barrier) String() string {
	return fmt.Sprintf("%s: %s -> %s", b.Image, b.Before, b.After)
}

// Use is the state one command requires of an image.
type Use struct {
	Index int
	State State
}

// Plan is the analysis of one command list.
type Plan struct {
	uses   map[rhi.ImageID][]Use
	before [][]Barrier
	count  int
}

// Before returns the barriers to record ahead of command i, ordered by image.
func (p *Plan) Before(i int) []Barrier {
	if i < 0 || i >= len(p.before) {
		return nil
	}
	return p.before[i]
}

// Uses returns the requirements on img in command order.
func (p *Plan) Uses(img rhi.ImageID) []Use { return p.uses[img] }

// Images returns every image the command list touches, in ascending order.
func (p *Plan) Images() []rhi.ImageID {
	ids := make([]rhi.ImageID, 0, len(p.uses))
	for id := range p.uses {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the total number of barriers in the plan.
func (p *Plan) Len() int { return p.count }

// Analyze walks cmds and computes the barriers to insert before each one.
//
// The first use of an image in the list transitions from Initial. Later
// uses transition from the state required by the previous use. A repeated
// read-only state needs no barrier and is elided; a repeated writable
// state keeps its barrier so consecutive writes stay ordered.
func Analyze(cmds []rhi.Command, r Resolver) (*Plan, error) {
	p := &Plan{
		uses:   make(map[rhi.ImageID][]Use),
		before: make([][]Barrier, len(cmds)),
	}

	for i, cmd := range cmds {
		reqs, err := requirements(cmd, r)
		if err != nil {
			return nil, fmt.Errorf("command %d (%s): %w", i, rhi.CommandName(cmd), err)
		}
		for _, req := range reqs {
			p.uses[req.image] = append(p.uses[req.image], Use{Index: i, State: req.state})
		}
	}

	for _, img := range p.Images() {
		prev := Initial
		for n, u := range p.uses[img] {
			if n > 0 && u.State == prev && u.State.Layout.Access()&writeAccess == 0 {
				continue
			}
			p.before[u.Index] = append(p.before[u.Index], Barrier{Image: img, Before: prev, After: u.State})
			p.count++
			prev = u.State
		}
	}
	return p, nil
}

const writeAccess = AccessColorAttachmentWrite | AccessDepthStencilAttachmentWrite | AccessTransferWrite

type requirement struct {
	image rhi.ImageID
	state State
}

// requirements lists the image states one command needs, deduplicated.
func requirements(cmd rhi.Command, r Resolver) ([]requirement, error) {
	var reqs []requirement
	add := func(img rhi.ImageID, s State) error {
		for _, q := range reqs {
			if q.image != img {
				continue
			}
			if q.state != s {
				return fmt.Errorf("%w: %s as %s and %s", ErrStateConflict, img, q.state.Layout, s.Layout)
			}
			return nil
		}
		reqs = append(reqs, requirement{img, s})
		return nil
	}

	switch c := Deref(cmd).(type) {
	case rhi.CopyBufferToBuffer:
	case rhi.CopyBufferToImage:
		if err := add(c.Dst, TransferDst); err != nil {
			return nil, err
		}
	case rhi.BlitImage:
		if err := add(c.Src, TransferSrc); err != nil {
			return nil, err
		}
		if err := add(c.Dst, TransferDst); err != nil {
			return nil, err
		}
	case rhi.RunGraphicsPipeline:
		colors, depth, err := r.FramebufferAttachments(c.Framebuffer)
		if err != nil {
			return nil, err
		}
		for _, img := range colors {
			if err := add(img, ColorAttachment); err != nil {
				return nil, err
			}
		}
		if depth != nil {
			if err := add(*depth, DepthAttachment); err != nil {
				return nil, err
			}
		}
		textures, err := r.InputSetTextures(c.InputSet)
		if err != nil {
			return nil, err
		}
		for _, img := range textures {
			if err := add(img, ShaderSampledRead); err != nil {
				return nil, err
			}
		}
	case nil, *rhi.CopyBufferToBuffer, *rhi.CopyBufferToImage, *rhi.BlitImage, *rhi.RunGraphicsPipeline:
		// Deref leaves only nil pointers behind.
		return nil, fmt.Errorf("%w: nil %T command", rhi.ErrInvalidArgument, cmd)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
	return reqs, nil
}

// Deref converts pointer commands to their value form.
func Deref(cmd rhi.Command) rhi.Command {
	switch c := cmd.(type) {
	case *rhi.CopyBufferToBuffer:
		if c != nil {
			return *c
		}
	case *rhi.CopyBufferToImage:
		if c != nil {
			return *c
		}
	case *rhi.BlitImage:
		if c != nil {
			return *c
		}
	case *rhi.RunGraphicsPipeline:
		if c != nil {
			return *c
		}
	}
	return cmd
}
