package barrier

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gogpu/rhi"
)

// fakeResolver serves framebuffer and input set contents from maps.
type fakeResolver struct {
	framebuffers map[rhi.FramebufferID][]rhi.ImageID
	depths       map[rhi.FramebufferID]rhi.ImageID
	inputSets    map[rhi.InputSetID][]rhi.ImageID
}

func (f *fakeResolver) FramebufferAttachments(id rhi.FramebufferID) ([]rhi.ImageID, *rhi.ImageID, error) {
	colors, ok := f.framebuffers[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", rhi.ErrNotFound, id)
	}
	if d, ok := f.depths[id]; ok {
		return colors, &d, nil
	}
	return colors, nil, nil
}

func (f *fakeResolver) InputSetTextures(id rhi.InputSetID) ([]rhi.ImageID, error) {
	textures, ok := f.inputSets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", rhi.ErrNotFound, id)
	}
	return textures, nil
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		framebuffers: make(map[rhi.FramebufferID][]rhi.ImageID),
		depths:       make(map[rhi.FramebufferID]rhi.ImageID),
		inputSets:    make(map[rhi.InputSetID][]rhi.ImageID),
	}
}

func copyBuffers() rhi.Command { return rhi.CopyBufferToBuffer{Src: 0, Dst: 1} }

// TestAnalyzeThreeUses covers an image used at indices 2, 5 and 9 as
// transfer destination, sampled texture and transfer destination again.
func TestAnalyzeThreeUses(t *testing.T) {
	const x rhi.ImageID = 4
	r := newFakeResolver()
	r.framebuffers[0] = []rhi.ImageID{10}
	r.inputSets[0] = []rhi.ImageID{x}

	cmds := make([]rhi.Command, 10)
	for i := range cmds {
		cmds[i] = copyBuffers()
	}
	cmds[2] = rhi.CopyBufferToImage{Src: 0, Dst: x}
	cmds[5] = rhi.RunGraphicsPipeline{Framebuffer: 0, InputSet: 0}
	cmds[9] = rhi.CopyBufferToImage{Src: 0, Dst: x}

	plan, err := Analyze(cmds, r)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	var got []Barrier
	at := make(map[int]Barrier)
	for i := range cmds {
		for _, b := range plan.Before(i) {
			if b.Image == x {
				got = append(got, b)
				at[i] = b
			}
		}
	}
	if len(got) != 3 {
		t.Fatalf("barriers on %s = %v, want 3", x, got)
	}

	want := map[int][2]State{
		2: {Initial, TransferDst},
		5: {TransferDst, ShaderSampledRead},
		9: {ShaderSampledRead, TransferDst},
	}
	for idx, w := range want {
		b, ok := at[idx]
		if !ok {
			t.Errorf("no barrier before command %d", idx)
			continue
		}
		if b.Before != w[0] || b.After != w[1] {
			t.Errorf("barrier before %d = %v, want %v -> %v", idx, b, w[0], w[1])
		}
	}
}

func TestAnalyzeAccessMasks(t *testing.T) {
	tests := []struct {
		layout Layout
		want   Access
	}{
		{LayoutUndefined, AccessNone},
		{LayoutColorAttachment, AccessColorAttachmentWrite},
		{LayoutDepthAttachment, AccessDepthStencilAttachmentWrite},
		{LayoutShaderReadOnly, AccessShaderRead},
		{LayoutTransferSrc, AccessTransferRead},
		{LayoutTransferDst, AccessTransferWrite},
	}
	for _, tt := range tests {
		if got := tt.layout.Access(); got != tt.want {
			t.Errorf("%s.Access() = %s, want %s", tt.layout, got, tt.want)
		}
	}

	b := Barrier{Image: 1, Before: Initial, After: ColorAttachment}
	if b.SrcAccess() != AccessNone || b.DstAccess() != AccessColorAttachmentWrite {
		t.Errorf("first-use barrier access = %s -> %s", b.SrcAccess(), b.DstAccess())
	}
	if Initial.Stage != StageBottomOfPipe {
		t.Errorf("Initial stage = %s", Initial.Stage)
	}
}

func TestAnalyzeRenderPass(t *testing.T) {
	r := newFakeResolver()
	r.framebuffers[3] = []rhi.ImageID{1, 2}
	r.depths[3] = 9
	r.inputSets[5] = []rhi.ImageID{7, 7}

	plan, err := Analyze([]rhi.Command{
		rhi.RunGraphicsPipeline{Framebuffer: 3, InputSet: 5, Draws: []rhi.DrawRange{{VertexCount: 3, InstanceCount: 1}}},
	}, r)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	want := []Barrier{
		{Image: 1, Before: Initial, After: ColorAttachment},
		{Image: 2, Before: Initial, After: ColorAttachment},
		{Image: 7, Before: Initial, After: ShaderSampledRead},
		{Image: 9, Before: Initial, After: DepthAttachment},
	}
	got := plan.Before(0)
	if len(got) != len(want) {
		t.Fatalf("Before(0) = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("barrier %d = %v, want %v", i, got[i], want[i])
		}
	}
	if plan.Len() != 4 {
		t.Errorf("Len() = %d, want 4", plan.Len())
	}
}

func TestAnalyzeRepeatedStates(t *testing.T) {
	r := newFakeResolver()
	r.framebuffers[0] = []rhi.ImageID{1}
	r.inputSets[0] = []rhi.ImageID{2}

	draw := rhi.RunGraphicsPipeline{Framebuffer: 0, InputSet: 0}
	plan, err := Analyze([]rhi.Command{draw, draw, draw}, r)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	// The attachment is written every time, so each draw keeps a barrier.
	// The sampled texture only needs its first transition.
	var color, sampled int
	for i := 0; i < 3; i++ {
		for _, b := range plan.Before(i) {
			switch b.Image {
			case 1:
				color++
			case 2:
				sampled++
			}
		}
	}
	if color != 3 {
		t.Errorf("color attachment barriers = %d, want 3", color)
	}
	if sampled != 1 {
		t.Errorf("sampled texture barriers = %d, want 1", sampled)
	}
}

func TestAnalyzeUntouchedIndices(t *testing.T) {
	plan, err := Analyze([]rhi.Command{
		copyBuffers(),
		rhi.BlitImage{Src: 1, Dst: 2},
		copyBuffers(),
	}, newFakeResolver())
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Before(0)) != 0 || len(plan.Before(2)) != 0 {
		t.Errorf("barriers emitted for commands that touch no image")
	}
	bs := plan.Before(1)
	if len(bs) != 2 || bs[0].After != TransferSrc || bs[1].After != TransferDst {
		t.Errorf("blit barriers = %v", bs)
	}
	if plan.Before(7) != nil {
		t.Error("Before(out of range) should be nil")
	}
}

func TestAnalyzeErrors(t *testing.T) {
	r := newFakeResolver()
	r.framebuffers[0] = []rhi.ImageID{1}
	r.inputSets[0] = []rhi.ImageID{1}
	r.inputSets[1] = nil

	tests := []struct {
		name string
		cmds []rhi.Command
		want error
	}{
		{"stale framebuffer", []rhi.Command{rhi.RunGraphicsPipeline{Framebuffer: 8, InputSet: 1}}, rhi.ErrNotFound},
		{"stale input set", []rhi.Command{rhi.RunGraphicsPipeline{Framebuffer: 0, InputSet: 4}}, rhi.ErrNotFound},
		{"feedback loop", []rhi.Command{rhi.RunGraphicsPipeline{Framebuffer: 0, InputSet: 0}}, ErrStateConflict},
		{"self blit", []rhi.Command{rhi.BlitImage{Src: 3, Dst: 3}}, ErrStateConflict},
		{"nil command", []rhi.Command{nil}, ErrUnknownCommand},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Analyze(tt.cmds, r)
			if !errors.Is(err, tt.want) {
				t.Errorf("Analyze() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAnalyzePointerCommands(t *testing.T) {
	plan, err := Analyze([]rhi.Command{&rhi.CopyBufferToImage{Dst: 6}}, newFakeResolver())
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if plan.Len() != 1 {
		t.Errorf("Len() = %d, want 1", plan.Len())
	}
}

func TestAnalyzeRejectsNilCommands(t *testing.T) {
	tests := []struct {
		name string
		cmd  rhi.Command
	}{
		{"nil interface", nil},
		{"nil blit", (*rhi.BlitImage)(nil)},
		{"nil copy", (*rhi.CopyBufferToBuffer)(nil)},
		{"nil upload", (*rhi.CopyBufferToImage)(nil)},
		{"nil draw", (*rhi.RunGraphicsPipeline)(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Analyze([]rhi.Command{rhi.BlitImage{Src: 1, Dst: 2}, tt.cmd}, newFakeResolver())
			if !errors.Is(err, rhi.ErrInvalidArgument) {
				t.Errorf("Analyze() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func BenchmarkAnalyze(b *testing.B) {
	r := newFakeResolver()
	r.framebuffers[0] = []rhi.ImageID{100, 101}
	r.depths[0] = 102
	for i := 0; i < 64; i++ {
		r.inputSets[0] = append(r.inputSets[0], rhi.ImageID(i))
	}
	cmds := make([]rhi.Command, 0, 256)
	for i := 0; i < 64; i++ {
		cmds = append(cmds, rhi.CopyBufferToImage{Dst: rhi.ImageID(i)})
	}
	for i := 0; i < 192; i++ {
		cmds = append(cmds, rhi.RunGraphicsPipeline{Framebuffer: 0, InputSet: 0})
	}

	b.ReportAllocs()
	for b.Loop() {
		if _, err := Analyze(cmds, r); err != nil {
			b.Fatal(err)
		}
	}
}
