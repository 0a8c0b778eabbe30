package main

import (
	"log"
	"runtime"

	"github.com/vkngwrapper/quad/config"
	"github.com/vkngwrapper/quad/frame"
	"github.com/vkngwrapper/quad/gpu"
	"github.com/vkngwrapper/quad/stats"
	"github.com/vkngwrapper/quad/window"
)

func run(cfg config.Config, logger *log.Logger) error {
	err := cfg.Validate()
	if err != nil {
		return err
	}

	win, err := window.Open(cfg)
	if err != nil {
		return err
	}
	defer win.Close()

	ctx, err := gpu.Bootstrap(win.Window, cfg, logger)
	if err != nil {
		return err
	}
	defer ctx.Destroy()

	swapchain, err := gpu.NewSwapchain(ctx)
	if err != nil {
		return err
	}
	defer swapchain.Destroy()

	renderPass, err := gpu.NewRenderPass(ctx, swapchain.Format())
	if err != nil {
		return err
	}
	defer renderPass.Destroy()

	pipeline, err := gpu.NewPipeline(ctx, renderPass, logger)
	if err != nil {
		return err
	}
	defer pipeline.Destroy()

	vertices, err := gpu.NewVertexBuffer(ctx, frame.Quad[:])
	if err != nil {
		return err
	}
	defer vertices.Destroy()

	recorder, err := gpu.NewRecorder(ctx, renderPass, pipeline, vertices, cfg.ClearColor)
	if err != nil {
		return err
	}
	defer recorder.Destroy()

	// Runs before everything above is destroyed
	defer ctx.WaitIdle()

	renderer, err := frame.NewRenderer(frame.Options{
		Surface:   win,
		Swapchain: swapchain,
		Pass:      renderPass,
		Recorder:  recorder,
		Queue:     gpu.NewQueue(ctx, swapchain),
		Logger:    logger,
		Meter:     stats.NewMeter(cfg.StatsInterval),
	})
	if err != nil {
		return err
	}

	err = renderer.Run(win)
	closeErr := renderer.Close()
	if err != nil {
		return err
	}
	return closeErr
}

func main() {
	runtime.LockOSThread()

	err := run(config.Default(), log.Default())
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
}
