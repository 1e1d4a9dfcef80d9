package barrier

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gogpu/rhi"
)

// traceRecorder logs every call as a string.
type traceRecorder struct {
	trace   []string
	failAt  int
	failErr error
}

func (t *traceRecorder) Transition(bs []Barrier) error {
	for _, b := range bs {
		t.trace = append(t.trace, fmt.Sprintf("barrier %d %s->%s", b.Image, b.Before.Layout, b.After.Layout))
	}
	return nil
}

func (t *traceRecorder) Record(i int, cmd rhi.Command) error {
	if t.failErr != nil && i == t.failAt {
		return t.failErr
	}
	t.trace = append(t.trace, fmt.Sprintf("cmd %d %s", i, rhi.CommandName(cmd)))
	return nil
}

func TestCompileInterleaves(t *testing.T) {
	r := newFakeResolver()
	r.framebuffers[0] = []rhi.ImageID{2}
	r.inputSets[0] = []rhi.ImageID{1}

	rec := &traceRecorder{}
	plan, err := Compile([]rhi.Command{
		rhi.CopyBufferToImage{Src: 0, Dst: 1},
		rhi.CopyBufferToBuffer{Src: 0, Dst: 1},
		rhi.RunGraphicsPipeline{Framebuffer: 0, InputSet: 0},
	}, r, rec)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	want := []string{
		"barrier 1 undefined->transfer-dst",
		"cmd 0 copy-buffer-to-image",
		"cmd 1 copy-buffer-to-buffer",
		"barrier 1 transfer-dst->shader-read-only-optimal",
		"barrier 2 undefined->color-attachment-optimal",
		"cmd 2 run-graphics-pipeline",
	}
	if len(rec.trace) != len(want) {
		t.Fatalf("trace = %q\nwant %q", rec.trace, want)
	}
	for i := range want {
		if rec.trace[i] != want[i] {
			t.Errorf("trace[%d] = %q, want %q", i, rec.trace[i], want[i])
		}
	}
	if plan.Len() != 3 {
		t.Errorf("plan.Len() = %d, want 3", plan.Len())
	}
}

func TestCompileNotFoundRecordsNothing(t *testing.T) {
	rec := &traceRecorder{}
	_, err := Compile([]rhi.Command{
		rhi.CopyBufferToImage{Dst: 1},
		rhi.RunGraphicsPipeline{Framebuffer: 42},
	}, newFakeResolver(), rec)
	if !errors.Is(err, rhi.ErrNotFound) {
		t.Fatalf("Compile() error = %v, want ErrNotFound", err)
	}
	if len(rec.trace) != 0 {
		t.Errorf("recorder called before analysis finished: %q", rec.trace)
	}
}

func TestCompileRecorderError(t *testing.T) {
	boom := errors.New("stale buffer")
	rec := &traceRecorder{failAt: 1, failErr: boom}
	_, err := Compile([]rhi.Command{
		rhi.CopyBufferToBuffer{},
		rhi.CopyBufferToBuffer{},
		rhi.CopyBufferToBuffer{},
	}, newFakeResolver(), rec)
	if !errors.Is(err, boom) {
		t.Fatalf("Compile() error = %v, want %v", err, boom)
	}
	if len(rec.trace) != 1 {
		t.Errorf("replay continued after failure: %q", rec.trace)
	}
}
