// Command rhiinfo lists the GPUs visible to the Vulkan backend and can
// open one for a short smoke test.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/noop" // registers the noop HAL backend

	"github.com/gogpu/rhi"
	"github.com/gogpu/rhi/backend/vulkan"
)

func main() {
	var (
		halName    = flag.String("hal", "vulkan", "HAL backend: vulkan or noop")
		verbose    = flag.Bool("v", false, "debug logging")
		validation = flag.Bool("validation", false, "enable validation layers")
		smoke      = flag.Bool("smoke", false, "open the selected GPU and create a few resources")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	rhi.SetLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, *halName, *validation, *smoke); err != nil {
		logger.Error("rhiinfo failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, halName string, validation, smoke bool) error {
	variant := gputypes.BackendVulkan
	switch halName {
	case "vulkan":
	case "noop":
		variant = gputypes.BackendEmpty
	default:
		return fmt.Errorf("unknown HAL backend %q", halName)
	}
	opts := []vulkan.Option{vulkan.WithHALBackend(variant), vulkan.WithValidation(validation)}

	gpus, err := vulkan.EnumerateGPUs(ctx, opts...)
	if err != nil {
		return err
	}
	selected, ok := rhi.SelectGPU(gpus)
	for _, g := range gpus {
		kind := "discrete"
		if g.Integrated {
			kind = "integrated"
		}
		mark := " "
		if ok && g.ID == selected.ID {
			mark = "*"
		}
		fmt.Printf("%s %d  %-40s %s\n", mark, g.ID, g.Name, kind)
	}
	if !ok {
		return rhi.ErrBackendNotAvailable
	}
	if !smoke {
		return nil
	}
	return smokeTest(ctx, opts)
}

func smokeTest(ctx context.Context, opts []vulkan.Option) (err error) {
	b, err := vulkan.Open(ctx, nil, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if derr := b.Destroy(); derr != nil && err == nil {
			err = derr
		}
	}()

	res := rhi.Resolution2D{Width: 256, Height: 256}
	out, err := rhi.Dispatch(ctx, b, rhi.Ordered(
		rhi.Unordered(
			rhi.CreateBufferTask(4096, rhi.BufferUsageStorage|rhi.BufferUsageCopyDst, rhi.MemoryShared),
			rhi.CreateTexture2DTask(res, rhi.ImageFormatTexture, rhi.ImageUsageCopyDst|rhi.ImageUsageShaderSampled, rhi.MemoryGPUOnly),
			rhi.CreateTexture2DTask(res, rhi.ImageFormatDepth, 0, rhi.MemoryGPUOnly),
		),
		rhi.CreateFenceTask(true),
		rhi.CreateCommandBufferTask(),
	))
	if err != nil {
		return err
	}
	if errs := out.Errors(); len(errs) > 0 {
		return fmt.Errorf("smoke test: %d of the tasks failed: %w", len(errs), errs[0])
	}

	fence, err := rhi.ValueOf[rhi.FenceID](out.Children[1])
	if err != nil {
		return err
	}
	if err := b.WaitForFence(fence); err != nil {
		return err
	}
	fmt.Println(b.Stats())
	return nil
}
