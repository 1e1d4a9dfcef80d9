package rhi

import (
	"errors"
	"testing"
)

func TestSelectGPU(t *testing.T) {
	tests := []struct {
		name   string
		gpus   []GPUInfo
		wantID uint32
		wantOK bool
	}{
		{"empty", nil, 0, false},
		{"integrated only", []GPUInfo{{ID: 0, Integrated: true}, {ID: 1, Integrated: true}}, 0, true},
		{"prefers discrete", []GPUInfo{{ID: 0, Integrated: true}, {ID: 1}, {ID: 2}}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectGPU(tt.gpus)
			if ok != tt.wantOK || got.ID != tt.wantID {
				t.Errorf("SelectGPU() = %+v, %v; want ID %d, %v", got, ok, tt.wantID, tt.wantOK)
			}
		})
	}
}

func TestUsageString(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{ImageUsage(0).String(), "none"},
		{(ImageUsageCopyDst | ImageUsageShaderSampled).String(), "copy-dst|shader-sampled"},
		{(BufferUsageUniform | BufferUsageStorage).String(), "uniform|storage"},
		{BufferUsage(1 << 9).String(), "0x200"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("String() = %q, want %q", tt.got, tt.want)
		}
	}
	if !(ImageUsageBlitSrc | ImageUsageCopySrc).Has(ImageUsageBlitSrc) {
		t.Error("Has(BlitSrc) = false")
	}
}

func TestRasterStyle(t *testing.T) {
	var zero RasterStyle
	if zero.IsWireframe() || zero != Fill() {
		t.Error("zero RasterStyle should be Fill")
	}
	w := Wireframe(2.5)
	if !w.IsWireframe() || w.LineThickness() != 2.5 {
		t.Errorf("Wireframe(2.5) = %v", w)
	}
	if Fill().LineThickness() != 1 {
		t.Errorf("Fill().LineThickness() = %v", Fill().LineThickness())
	}
}

func TestPipelineDescValidate(t *testing.T) {
	depth := ImageFormatDepth
	color := ImageFormatTexture
	tests := []struct {
		name    string
		desc    PipelineDesc
		wantErr bool
	}{
		{"color only", PipelineDesc{ColorFormats: []ImageFormat{ImageFormatRenderIntermediate}, VertexShader: "a", FragmentShader: "b"}, false},
		{"depth only", PipelineDesc{DepthFormat: &depth, VertexShader: "a", FragmentShader: "b"}, false},
		{"no attachments", PipelineDesc{VertexShader: "a", FragmentShader: "b"}, true},
		{"depth as color", PipelineDesc{ColorFormats: []ImageFormat{ImageFormatDepth}, VertexShader: "a", FragmentShader: "b"}, true},
		{"color as depth", PipelineDesc{DepthFormat: &color, VertexShader: "a", FragmentShader: "b"}, true},
		{"missing shader", PipelineDesc{ColorFormats: []ImageFormat{ImageFormatTexture}, VertexShader: "a"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("error %v should wrap ErrInvalidArgument", err)
			}
		})
	}
}

func TestNativeError(t *testing.T) {
	cause := errors.New("VK_ERROR_OUT_OF_DEVICE_MEMORY")
	err := Native("create texture", cause)
	if !errors.Is(err, ErrNativeCall) || !errors.Is(err, cause) {
		t.Errorf("Native() = %v should match ErrNativeCall and the cause", err)
	}
	if Native("noop", nil) != nil {
		t.Error("Native(nil) should be nil")
	}

	se := &ShaderError{Stage: ShaderStageFragment, Path: "f.spv", Err: ErrIO}
	if !errors.Is(se, ErrIO) {
		t.Error("ShaderError should unwrap to its cause")
	}
	if got := se.Error(); got != `rhi: fragment shader "f.spv": rhi: io failure` {
		t.Errorf("Error() = %q", got)
	}
}

func TestPipelineDescEntryPoints(t *testing.T) {
	d := PipelineDesc{FragmentEntry: "fs_main"}
	vs, fs := d.EntryPoints()
	if vs != DefaultEntryPoint || fs != "fs_main" {
		t.Errorf("EntryPoints() = %q, %q", vs, fs)
	}
}
